package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/johnwmail/pastebin/config"
	"github.com/johnwmail/pastebin/internal/lifecycle"
	"github.com/johnwmail/pastebin/internal/metrics"
	"github.com/johnwmail/pastebin/internal/slug"
	"github.com/johnwmail/pastebin/models"
	"github.com/johnwmail/pastebin/storage"
)

const (
	tracerName          = "github.com/johnwmail/pastebin/internal/services"
	defaultStoreTimeout = 5 * time.Second
)

// IDGenerator returns a fresh paste id.
type IDGenerator func() (string, error)

// PasteService handles paste business logic
type PasteService struct {
	store   storage.PasteStore
	config  *config.Config
	newID   IDGenerator
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option customises a PasteService.
type Option func(*PasteService)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *PasteService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *PasteService) { s.metrics = m }
}

// WithIDGenerator replaces the random id source.
func WithIDGenerator(gen IDGenerator) Option {
	return func(s *PasteService) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewPasteService creates a new paste service
func NewPasteService(store storage.PasteStore, cfg *config.Config, opts ...Option) *PasteService {
	s := &PasteService{
		store:  store,
		config: cfg,
		newID:  slug.New(cfg.IDLength).Generate,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatePasteRequest represents a request to create a paste. Nil limits mean
// "never expires" and "unlimited views".
type CreatePasteRequest struct {
	Content    string
	TTLSeconds *int64
	MaxViews   *int64
}

// CreatePasteResponse represents the response from creating a paste
type CreatePasteResponse struct {
	ID    string
	Paste *models.Paste
}

// PasteView is what a reader sees of a visible paste.
type PasteView struct {
	ID             string
	Content        string
	CreatedAt      int64
	ExpiresAt      *int64
	RemainingViews *int64
}

func newView(id string, p *models.Paste) *PasteView {
	return &PasteView{
		ID:             id,
		Content:        p.Content,
		CreatedAt:      p.CreatedAt,
		ExpiresAt:      p.ExpiresAt,
		RemainingViews: lifecycle.RemainingViews(p),
	}
}

// Create validates the request and stores a new paste created at now (ms).
func (s *PasteService) Create(ctx context.Context, req CreatePasteRequest, now int64) (*CreatePasteResponse, error) {
	ctx, span := s.tracer.Start(ctx, "PasteService.Create")
	defer span.End()

	paste, err := buildPaste(req, now)
	if err != nil {
		s.logger.Debug("rejected paste", "error", err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}

	id, err := s.newID()
	if err != nil {
		s.logger.Error("failed to generate paste id", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "id generation failed")
		return nil, fmt.Errorf("generate id: %w", err)
	}
	span.SetAttributes(attribute.String("paste.id", id))

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.store.Put(storeCtx, id, paste); err != nil {
		return nil, s.storeFailure(span, "put", id, err)
	}

	s.metrics.PasteCreated()
	s.logger.Debug("paste created", "id", id, "expires_at", paste.ExpiresAt, "max_views", paste.MaxViews)
	return &CreatePasteResponse{ID: id, Paste: paste}, nil
}

func buildPaste(req CreatePasteRequest, now int64) (*models.Paste, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, invalid("content", "must be a non-empty string")
	}

	paste := &models.Paste{Content: content, CreatedAt: now}

	if req.TTLSeconds != nil {
		ttl := *req.TTLSeconds
		if ttl < 1 {
			return nil, invalid("ttl_seconds", "must be an integer >= 1")
		}
		base := now
		if base < 0 {
			base = 0
		}
		if ttl > (math.MaxInt64-base)/1000 {
			return nil, invalid("ttl_seconds", "is too large")
		}
		paste.ExpiresAt = models.Int64(now + ttl*1000)
	}

	if req.MaxViews != nil {
		if *req.MaxViews < 1 {
			return nil, invalid("max_views", "must be an integer >= 1")
		}
		paste.MaxViews = models.Int64(*req.MaxViews)
	}
	return paste, nil
}

// Consume serves one view of a paste at now (ms). The pre-increment check is
// advisory; the check on the incremented record decides, so exactly max_views
// callers receive the content. Rejected increments are not undone.
func (s *PasteService) Consume(ctx context.Context, id string, now int64) (*PasteView, error) {
	ctx, span := s.tracer.Start(ctx, "PasteService.Consume", trace.WithAttributes(attribute.String("paste.id", id)))
	defer span.End()

	paste, outcome, err := s.lookup(ctx, span, id, now)
	if err != nil {
		s.metrics.ConsumeOutcome(metrics.OutcomeError)
		return nil, err
	}
	if paste == nil {
		s.notServed(span, id, outcome, true)
		return nil, ErrNotFound
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	updated, err := s.store.IncrementViews(storeCtx, id)
	if err != nil {
		s.metrics.ConsumeOutcome(metrics.OutcomeError)
		return nil, s.storeFailure(span, "increment_views", id, err)
	}
	if updated == nil || lifecycle.ClassifyConsumed(updated, now) != lifecycle.Visible {
		s.notServed(span, id, metrics.OutcomeRaced, true)
		return nil, ErrNotFound
	}

	span.SetAttributes(attribute.String("paste.outcome", metrics.OutcomeServed))
	s.metrics.ConsumeOutcome(metrics.OutcomeServed)
	return newView(id, updated), nil
}

// Preview reports a visible paste without consuming a view.
func (s *PasteService) Preview(ctx context.Context, id string, now int64) (*PasteView, error) {
	ctx, span := s.tracer.Start(ctx, "PasteService.Preview", trace.WithAttributes(attribute.String("paste.id", id)))
	defer span.End()

	paste, outcome, err := s.lookup(ctx, span, id, now)
	if err != nil {
		return nil, err
	}
	if paste == nil {
		s.notServed(span, id, outcome, false)
		return nil, ErrNotFound
	}
	return newView(id, paste), nil
}

// Health pings the record store.
func (s *PasteService) Health(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "PasteService.Health")
	defer span.End()

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.store.Ping(storeCtx); err != nil {
		return s.storeFailure(span, "ping", "", err)
	}
	return nil
}

// lookup loads the paste and returns it only if it may be served at now.
// Otherwise the paste is nil and outcome says why.
func (s *PasteService) lookup(ctx context.Context, span trace.Span, id string, now int64) (*models.Paste, string, error) {
	if !slug.IsValid(id) {
		return nil, metrics.OutcomeMissing, nil
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	paste, err := s.store.Get(storeCtx, id)
	if err != nil {
		return nil, "", s.storeFailure(span, "get", id, err)
	}
	if paste == nil {
		return nil, metrics.OutcomeMissing, nil
	}

	switch lifecycle.Classify(paste, now) {
	case lifecycle.Expired:
		return nil, metrics.OutcomeExpired, nil
	case lifecycle.Exhausted:
		return nil, metrics.OutcomeExhausted, nil
	}
	return paste, "", nil
}

func (s *PasteService) notServed(span trace.Span, id, outcome string, consuming bool) {
	span.SetAttributes(attribute.String("paste.outcome", outcome))
	if consuming {
		s.metrics.ConsumeOutcome(outcome)
	}
	s.logger.Debug("paste not served", "id", id, "outcome", outcome)
}

func (s *PasteService) storeFailure(span trace.Span, op, id string, err error) error {
	s.logger.Error("store operation failed", "op", op, "id", id, "error", err)
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	return &StoreError{Op: op, Err: err}
}

func (s *PasteService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.config.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
