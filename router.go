package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/johnwmail/pastebin/config"
	"github.com/johnwmail/pastebin/handlers"
	"github.com/johnwmail/pastebin/internal/clock"
	"github.com/johnwmail/pastebin/internal/metrics"
	"github.com/johnwmail/pastebin/internal/services"
)

const requestIDHeader = "X-Request-ID"

// routerDeps is everything setupRouter wires together.
type routerDeps struct {
	config   *config.Config
	service  *services.PasteService
	clock    *clock.Resolver
	logger   *slog.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
}

// setupRouter creates and configures the Gin router
func setupRouter(deps routerDeps) (*gin.Engine, error) {
	cfg := deps.config
	logger := deps.logger
	if logger == nil {
		logger = slog.Default()
	}

	tmpl, err := handlers.Templates()
	if err != nil {
		return nil, err
	}

	// Initialize handlers
	pasteHandler := handlers.NewPasteHandler(deps.service, cfg, deps.clock, logger)
	metaHandler := handlers.NewMetaHandler(deps.service, deps.clock)
	systemHandler := handlers.NewSystemHandler(deps.service)
	webuiHandler := handlers.NewWebUIHandler(deps.service, cfg, deps.clock)

	router := gin.New()
	router.SetHTMLTemplate(tmpl)

	// Request id first so every later log line and panic can carry it
	router.Use(requestID())
	router.Use(accessLog(logger))
	router.Use(jsonRecovery(logger))
	if deps.metrics != nil {
		router.Use(deps.metrics.Middleware())
		gatherer := deps.gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// Web UI routes
	router.GET("/", webuiHandler.Index)
	router.GET("/p/:id", webuiHandler.View)

	// Core API routes. Errors on these are always {"error": "..."}
	api := router.Group("/pastes", canonicalErrors(logger))
	api.POST("", pasteHandler.Create)
	api.GET("/:id", pasteHandler.Consume)

	// Metadata API
	meta := router.Group("/api/v1", canonicalErrors(logger))
	meta.GET("/meta/:id", metaHandler.GetMetadata)

	// System routes
	router.GET("/healthz", systemHandler.Health)

	// Global 404 handler
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
	})

	return router, nil
}

// requestID propagates X-Request-ID or assigns a fresh one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// accessLog writes one structured line per request.
func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client", c.ClientIP(),
			"request_id", c.GetString("request_id"),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.Last().Error())
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("request", attrs...)
		case status >= http.StatusBadRequest:
			logger.Info("request", attrs...)
		default:
			logger.Debug("request", attrs...)
		}
	}
}

// jsonRecovery returns a middleware that recovers from panics and ensures
// the response is JSON formatted so the web UI can parse error responses.
func jsonRecovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", "panic", r, "path", c.Request.URL.Path, "request_id", c.GetString("request_id"))
				c.Header("Content-Type", "application/json; charset=utf-8")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
		}()
		c.Next()
	}
}

// canonicalErrors ensures every error response (>=400) on the API is a small
// JSON {"error": msg} body, whatever the handler or gin itself wrote.
func canonicalErrors(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		origWriter := c.Writer
		bcw := &bodyCaptureWriter{ResponseWriter: origWriter}
		c.Writer = bcw
		// Restored even on panic so the recovery middleware writes for real
		defer func() { c.Writer = origWriter }()

		c.Next()

		status := bcw.Status()
		buf := bcw.body.Bytes()

		if status < http.StatusBadRequest {
			origWriter.WriteHeader(status)
			if len(buf) > 0 {
				if _, err := origWriter.Write(buf); err != nil {
					logger.Warn("failed to write response body", "error", err)
				}
			}
			return
		}

		msg := errorMessage(buf, bcw.Header().Get("Content-Type"))
		if msg == "" {
			msg = http.StatusText(status)
		}

		origWriter.Header().Set("Content-Type", "application/json; charset=utf-8")
		origWriter.WriteHeader(status)
		out, _ := json.Marshal(gin.H{"error": msg})
		if _, err := origWriter.Write(out); err != nil {
			logger.Warn("failed to write error response", "error", err)
		}
	}
}

// errorMessage extracts the message a handler meant to send.
func errorMessage(buf []byte, contentType string) string {
	if len(buf) == 0 {
		return ""
	}
	if strings.Contains(contentType, "application/json") {
		var parsed map[string]interface{}
		if err := json.Unmarshal(buf, &parsed); err == nil {
			if e, ok := parsed["error"].(string); ok {
				return e
			}
			if m, ok := parsed["message"].(string); ok {
				return m
			}
		}
		return ""
	}
	return string(bytes.TrimSpace(buf))
}

// bodyCaptureWriter buffers response body writes so middleware can inspect
// and optionally rewrite the output before sending to the client.
type bodyCaptureWriter struct {
	gin.ResponseWriter
	body   bytes.Buffer
	status int
}

func (w *bodyCaptureWriter) WriteHeader(code int) {
	w.status = code
}

func (w *bodyCaptureWriter) WriteHeaderNow() {}

func (w *bodyCaptureWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *bodyCaptureWriter) Written() bool {
	return w.status != 0 || w.body.Len() > 0
}

func (w *bodyCaptureWriter) Size() int {
	return w.body.Len()
}

// Write implements io.Writer; buffer the bytes but do not write to the
// underlying writer until the middleware decides to forward them.
func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}
