// Package clock supplies "now" in Unix milliseconds. The transport resolves
// the time once per request and passes it explicitly to the service, so tests
// can pin it without touching global state.
package clock

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// TestNowHeader carries an override timestamp (ms) when test mode is enabled.
const TestNowHeader = "X-Test-Now-Ms"

// Clock returns the current time in Unix milliseconds.
type Clock interface {
	NowMs() int64
}

// Func adapts a plain function to Clock.
type Func func() int64

func (f Func) NowMs() int64 { return f() }

// System returns the wall clock.
func System() Clock {
	return Func(func() int64 { return time.Now().UnixMilli() })
}

// Fixed always reports the same instant.
type Fixed int64

func (f Fixed) NowMs() int64 { return int64(f) }

// Resolver picks the timestamp for an incoming request.
type Resolver struct {
	base     Clock
	testMode bool
}

// NewResolver returns a resolver backed by base. The test header is ignored
// unless testMode is true.
func NewResolver(base Clock, testMode bool) *Resolver {
	if base == nil {
		base = System()
	}
	return &Resolver{base: base, testMode: testMode}
}

// TestMode reports whether request overrides are honoured.
func (r *Resolver) TestMode() bool {
	return r.testMode
}

// Now returns the override from headers in test mode, otherwise the base
// clock. Unparseable overrides fall back to the base clock.
func (r *Resolver) Now(h http.Header) int64 {
	if r.testMode && h != nil {
		if v := strings.TrimSpace(h.Get(TestNowHeader)); v != "" {
			if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
				return ms
			}
		}
	}
	return r.base.NowMs()
}
