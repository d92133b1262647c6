package models

import (
	"time"
)

// ISOLayout matches the millisecond-precision UTC form used in API responses.
const ISOLayout = "2006-01-02T15:04:05.000Z"

// Paste is the persisted record for a single paste. All timestamps are Unix
// milliseconds. The id is not part of the value; stores keep it in the key.
type Paste struct {
	Content   string `json:"content" bson:"content"`
	CreatedAt int64  `json:"created_at" bson:"created_at"`
	ExpiresAt *int64 `json:"expires_at" bson:"expires_at"`
	MaxViews  *int64 `json:"max_views" bson:"max_views"`
	Views     int64  `json:"views" bson:"views"`
}

// Clone returns a deep copy so callers can mutate the result freely.
func (p *Paste) Clone() *Paste {
	if p == nil {
		return nil
	}
	cp := *p
	if p.ExpiresAt != nil {
		v := *p.ExpiresAt
		cp.ExpiresAt = &v
	}
	if p.MaxViews != nil {
		v := *p.MaxViews
		cp.MaxViews = &v
	}
	return &cp
}

// FormatISO renders a millisecond timestamp in ISO-8601 UTC form.
func FormatISO(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(ISOLayout)
}

// FormatISOPtr is FormatISO for optional timestamps; nil stays nil.
func FormatISOPtr(ms *int64) *string {
	if ms == nil {
		return nil
	}
	s := FormatISO(*ms)
	return &s
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}
