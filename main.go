package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/johnwmail/pastebin/config"
	"github.com/johnwmail/pastebin/internal/clock"
	"github.com/johnwmail/pastebin/internal/metrics"
	"github.com/johnwmail/pastebin/internal/services"
	"github.com/johnwmail/pastebin/internal/telemetry"
	"github.com/johnwmail/pastebin/storage"
)

// Version/build info (set via -ldflags at build time)
var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "none"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "pastebin: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.LoadConfig(args)
	if err != nil {
		return err
	}
	cfg.Version = Version
	cfg.BuildTime = BuildTime
	cfg.CommitHash = CommitHash

	logger, closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	logger.Info("Starting pastebin",
		"version", Version,
		"build_time", BuildTime,
		"commit", CommitHash,
		"store", cfg.StoreType)

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	shutdownTracing, err := telemetry.Init(ctx, "pastebin", Version, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("Failed to flush traces", "error", err)
		}
	}()

	var m *metrics.Metrics
	if cfg.EnableMetrics {
		if m, err = metrics.New(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
	}

	// Initialize storage backend
	store, err := storage.NewStore(ctx, cfg, logger, storage.FactoryOptions{
		OnDegradedIncrement: m.DegradedIncrement,
	})
	if err != nil {
		return fmt.Errorf("init %s store: %w", cfg.StoreType, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()

	resolver := clock.NewResolver(clock.System(), cfg.TestMode)
	if resolver.TestMode() {
		logger.Warn("Test mode enabled: request header overrides the clock", "header", clock.TestNowHeader)
	}

	service := services.NewPasteService(store, cfg,
		services.WithLogger(logger),
		services.WithMetrics(m),
	)
	router, err := setupRouter(routerDeps{
		config:  cfg,
		service: service,
		clock:   resolver,
		logger:  logger,
		metrics: m,
	})
	if err != nil {
		return fmt.Errorf("setup router: %w", err)
	}

	if isLambdaEnvironment() {
		logger.Info("Starting in AWS Lambda mode")
		lambda.Start(newLambdaProxy(router, logger).Handle)
		return nil
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runHTTPServer(sigCtx, newHTTPServer(cfg, router), logger)
}

// newHTTPServer builds the server for container mode
func newHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           otelhttp.NewHandler(handler, "pastebin"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// runHTTPServer serves until ctx is cancelled, then shuts down gracefully.
func runHTTPServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server shutdown complete")
	return nil
}

// setupLogging builds the process logger. A log file always gets JSON lines.
func setupLogging(cfg *config.Config) (*slog.Logger, func() error, error) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var out io.Writer = os.Stderr
	closeFn := func() error { return nil }
	jsonFormat := strings.EqualFold(cfg.LogFormat, "json")

	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = file
		closeFn = file.Close
		jsonFormat = true
	}

	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), closeFn, nil
}
