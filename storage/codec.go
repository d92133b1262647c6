package storage

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/johnwmail/pastebin/models"
)

// storageGrace keeps backend-level expiry strictly after expires_at so the
// read-time check stays authoritative.
const storageGrace = time.Minute

const maxLifetimeMs = int64(math.MaxInt64/int64(time.Millisecond)) - int64(storageGrace/time.Millisecond)

var errMalformed = errors.New("malformed paste record")

func encodePaste(p *models.Paste) ([]byte, error) {
	return json.Marshal(p)
}

// decodePaste parses a stored JSON value. Unknown shapes are rejected.
func decodePaste(data []byte) (*models.Paste, error) {
	var p models.Paste
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if err := validateRecord(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// validateRecord rejects records that no Create call could have written.
func validateRecord(p *models.Paste) error {
	if p.Content == "" || p.Views < 0 || (p.MaxViews != nil && *p.MaxViews < 1) {
		return errMalformed
	}
	return nil
}

// decodeOrAbsent treats undecodable records as missing and logs them.
func decodeOrAbsent(logger *slog.Logger, backend, id string, data []byte) *models.Paste {
	p, err := decodePaste(data)
	if err != nil {
		logger.Warn("discarding malformed paste record", "backend", backend, "id", id, "error", err)
		return nil
	}
	return p
}

// storageLifetime is how long a backend should keep the record after it is
// written, or zero for forever. It is measured from created_at rather than
// the wall clock so overridden request times stay consistent.
func storageLifetime(p *models.Paste) time.Duration {
	if p.ExpiresAt == nil {
		return 0
	}
	ms := *p.ExpiresAt - p.CreatedAt
	if ms > maxLifetimeMs {
		// Too far out for a Duration; let read-time checks handle it.
		return 0
	}
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms)*time.Millisecond + storageGrace
}

// purgeAt is the absolute time a backend may drop the record, or nil.
func purgeAt(p *models.Paste, written time.Time) *time.Time {
	d := storageLifetime(p)
	if d == 0 {
		return nil
	}
	t := written.Add(d)
	return &t
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
