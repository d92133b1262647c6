// Package metrics holds the Prometheus collectors for the service and the
// gin middleware that records HTTP traffic.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Consume outcomes
const (
	OutcomeServed    = "served"
	OutcomeMissing   = "missing"
	OutcomeExpired   = "expired"
	OutcomeExhausted = "exhausted"
	OutcomeRaced     = "raced"
	OutcomeError     = "error"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	pastesCreated      prometheus.Counter
	consumeTotal       *prometheus.CounterVec
	degradedIncrements prometheus.Counter
	requestCount       *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		pastesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pastebin_pastes_created_total",
			Help: "Total number of pastes created.",
		}),
		consumeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pastebin_consume_total",
			Help: "Consume attempts by outcome.",
		}, []string{"outcome"}),
		degradedIncrements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pastebin_degraded_increments_total",
			Help: "View increments performed without server-side atomicity.",
		}),
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	for _, c := range []prometheus.Collector{
		m.pastesCreated, m.consumeTotal, m.degradedIncrements, m.requestCount, m.requestDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// PasteCreated counts a successful create.
func (m *Metrics) PasteCreated() {
	if m == nil {
		return
	}
	m.pastesCreated.Inc()
}

// ConsumeOutcome counts one consume attempt.
func (m *Metrics) ConsumeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.consumeTotal.WithLabelValues(outcome).Inc()
}

// DegradedIncrement counts a non-atomic view increment.
func (m *Metrics) DegradedIncrement() {
	if m == nil {
		return
	}
	m.degradedIncrements.Inc()
}

// Middleware records request counts and latency by route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		// Route pattern (/pastes/:id), not the raw path, to bound cardinality
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.requestCount.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
