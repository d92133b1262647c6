package storage

import (
	"context"

	"github.com/johnwmail/pastebin/models"
)

// KeyPrefix namespaces paste records in shared key spaces.
const KeyPrefix = "paste:"

// Key returns the storage key for a paste id.
func Key(id string) string {
	return KeyPrefix + id
}

// PasteStore defines the interface for paste storage backends.
//
// Absence is not an error: Get and IncrementViews return (nil, nil) when the
// record does not exist or cannot be decoded.
type PasteStore interface {
	// Put writes the full record under the id, overwriting any previous value
	Put(ctx context.Context, id string, paste *models.Paste) error

	// Get retrieves a paste by its ID
	Get(ctx context.Context, id string) (*models.Paste, error)

	// IncrementViews atomically adds one view and returns the post-increment record
	IncrementViews(ctx context.Context, id string) (*models.Paste, error)

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error

	// Close releases the storage connection
	Close() error
}
