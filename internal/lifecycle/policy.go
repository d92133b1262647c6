// Package lifecycle decides whether a paste may still be served. Everything
// here is pure: the caller supplies the record and the current time.
package lifecycle

import (
	"fmt"

	"github.com/johnwmail/pastebin/models"
)

// State is the visibility of a paste at a given instant.
type State int

const (
	Visible State = iota
	Expired
	Exhausted
)

func (s State) String() string {
	switch s {
	case Visible:
		return "visible"
	case Expired:
		return "expired"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Classify checks time first, then the view budget. Both Expired and
// Exhausted are terminal.
func Classify(p *models.Paste, nowMs int64) State {
	if p.ExpiresAt != nil && nowMs >= *p.ExpiresAt {
		return Expired
	}
	if p.MaxViews != nil && p.Views >= *p.MaxViews {
		return Exhausted
	}
	return Visible
}

// IsVisible reports whether Classify yields Visible.
func IsVisible(p *models.Paste, nowMs int64) bool {
	return Classify(p, nowMs) == Visible
}

// ClassifyConsumed judges a record returned by an increment. The caller's own
// view is already counted, so it was within budget iff views <= max_views.
func ClassifyConsumed(p *models.Paste, nowMs int64) State {
	if p.ExpiresAt != nil && nowMs >= *p.ExpiresAt {
		return Expired
	}
	if p.MaxViews != nil && p.Views > *p.MaxViews {
		return Exhausted
	}
	return Visible
}

// RemainingViews returns max(0, max_views-views), or nil when views are
// unlimited.
func RemainingViews(p *models.Paste) *int64 {
	if p.MaxViews == nil {
		return nil
	}
	remaining := *p.MaxViews - p.Views
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}
