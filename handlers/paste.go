package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/pastebin/config"
	"github.com/johnwmail/pastebin/internal/clock"
	"github.com/johnwmail/pastebin/internal/services"
	"github.com/johnwmail/pastebin/models"
)

const (
	msgNotFound        = "Paste not found"
	msgInternalError   = "Internal server error"
	msgInvalidJSON     = "Invalid JSON body"
	defaultBodyLimit   = 1 << 20
	bodyTooLargeFormat = "request body exceeds limit of %d bytes"
)

// PasteHandler serves the JSON paste API
type PasteHandler struct {
	service *services.PasteService
	config  *config.Config
	clock   *clock.Resolver
	logger  *slog.Logger
}

// NewPasteHandler creates a new paste handler
func NewPasteHandler(service *services.PasteService, cfg *config.Config, clk *clock.Resolver, logger *slog.Logger) *PasteHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PasteHandler{
		service: service,
		config:  cfg,
		clock:   clk,
		logger:  logger,
	}
}

// createPasteBody keeps the raw fields so type errors can be reported per
// field instead of as a generic decode failure.
type createPasteBody struct {
	Content    json.RawMessage `json:"content"`
	TTLSeconds json.RawMessage `json:"ttl_seconds"`
	MaxViews   json.RawMessage `json:"max_views"`
}

// Create handles paste creation via POST /pastes
func (h *PasteHandler) Create(c *gin.Context) {
	raw, status, err := h.readBody(c)
	if err != nil {
		respondError(c, status, err.Error())
		return
	}

	req, err := parseCreateRequest(raw)
	if err != nil {
		h.logger.Debug("rejected create request", "error", err)
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	now := h.clock.Now(c.Request.Header)
	resp, err := h.service.Create(c.Request.Context(), req, now)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":  resp.ID,
		"url": pasteURL(c, h.config.URL, resp.ID),
	})
}

// Consume handles paste retrieval via GET /pastes/:id. Every successful call
// uses up one view.
func (h *PasteHandler) Consume(c *gin.Context) {
	id := c.Param("id")
	now := h.clock.Now(c.Request.Header)

	view, err := h.service.Consume(c.Request.Context(), id, now)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"content":         view.Content,
		"remaining_views": view.RemainingViews,
		"expires_at":      models.FormatISOPtr(view.ExpiresAt),
	})
}

func (h *PasteHandler) readBody(c *gin.Context) ([]byte, int, error) {
	limit := h.config.MaxContentBytes
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	if c.Request.ContentLength > limit {
		return nil, http.StatusRequestEntityTooLarge, fmt.Errorf(bodyTooLargeFormat, limit)
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf(bodyTooLargeFormat, limit)
		}
		return nil, http.StatusBadRequest, errors.New("failed to read request body")
	}
	return body, 0, nil
}

func parseCreateRequest(raw []byte) (services.CreatePasteRequest, error) {
	var req services.CreatePasteRequest
	var body createPasteBody
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return req, errors.New(msgInvalidJSON)
	}
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return req, errors.New(msgInvalidJSON)
	}

	if !isJSONString(body.Content) {
		return req, &services.ValidationError{Field: "content", Message: "must be a non-empty string"}
	}
	if err := json.Unmarshal(body.Content, &req.Content); err != nil {
		return req, errors.New(msgInvalidJSON)
	}

	var err error
	if req.TTLSeconds, err = optionalInteger("ttl_seconds", body.TTLSeconds); err != nil {
		return req, err
	}
	if req.MaxViews, err = optionalInteger("max_views", body.MaxViews); err != nil {
		return req, err
	}
	return req, nil
}

func isJSONString(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '"'
}

// optionalInteger treats a missing field and JSON null alike. Anything else
// must be a number with an integral value, so 5, 5.0 and 5e0 all read as 5.
func optionalInteger(field string, raw json.RawMessage) (*int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	invalid := &services.ValidationError{Field: field, Message: "must be an integer >= 1"}
	if raw[0] != '-' && (raw[0] < '0' || raw[0] > '9') {
		return nil, invalid
	}
	if n, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
		return &n, nil
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	// 2^63 is exact in float64; anything at or past it overflows int64.
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= -math.MinInt64 {
		return nil, invalid
	}
	n := int64(f)
	return &n, nil
}

func (h *PasteHandler) respondServiceError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	respondError(c, status, msg)
}

// statusFor maps service errors onto HTTP. Store details never reach clients.
func statusFor(err error) (int, string) {
	var validation *services.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Error()
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, msgNotFound
	default:
		return http.StatusInternalServerError, msgInternalError
	}
}

// Helper: respondError sends a JSON error response
func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// pasteURL builds the public preview link for id.
func pasteURL(c *gin.Context, baseURL, id string) string {
	return baseOrigin(c, baseURL) + "/p/" + id
}

// baseOrigin uses the configured URL or derives one from the request
func baseOrigin(c *gin.Context, baseURL string) string {
	if baseURL != "" {
		return baseURL
	}
	scheme := "http"
	if isHTTPS(c) {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

// isHTTPS detects if the original request was HTTPS, even behind proxies
func isHTTPS(c *gin.Context) bool {
	if c.Request.TLS != nil {
		return true
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto == "https" {
		return true
	}
	if scheme := c.GetHeader("X-Forwarded-Scheme"); scheme == "https" {
		return true
	}
	return c.GetHeader("X-Forwarded-Ssl") == "on"
}
