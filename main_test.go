package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnwmail/pastebin/config"
	"github.com/johnwmail/pastebin/internal/clock"
	"github.com/johnwmail/pastebin/internal/metrics"
	"github.com/johnwmail/pastebin/internal/services"
	"github.com/johnwmail/pastebin/storage"
)

type testServer struct {
	*httptest.Server
	registry *prometheus.Registry
}

func newTestServer(t *testing.T, testMode bool, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		IDLength:        21,
		MaxContentBytes: 4096,
		StoreType:       config.StoreFilesystem,
		StoreTimeout:    time.Second,
		DataDir:         t.TempDir(),
		TestMode:        testMode,
		EnableMetrics:   true,
	}
	for _, fn := range mutate {
		fn(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.NewStore(context.Background(), cfg, logger, storage.FactoryOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	router, err := setupRouter(routerDeps{
		config:   cfg,
		service:  services.NewPasteService(store, cfg, services.WithLogger(logger), services.WithMetrics(m)),
		clock:    clock.NewResolver(clock.System(), cfg.TestMode),
		logger:   logger,
		metrics:  m,
		gatherer: reg,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, registry: reg}
}

func (s *testServer) request(t *testing.T, method, path, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (s *testServer) createPaste(t *testing.T, body string, headers map[string]string) (string, string) {
	t.Helper()
	resp, data := s.request(t, http.MethodPost, "/pastes", body, headers)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	var created struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(data, &created))
	return created.ID, created.URL
}

type consumeResponse struct {
	Content        string  `json:"content"`
	RemainingViews *int64  `json:"remaining_views"`
	ExpiresAt      *string `json:"expires_at"`
}

func at(ms string) map[string]string {
	return map[string]string{clock.TestNowHeader: ms}
}

func TestCreateAndConsume_SameTestTimestamp(t *testing.T) {
	srv := newTestServer(t, true)

	id, url := srv.createPaste(t, `{"content":"hello","ttl_seconds":10,"max_views":2}`, at("1000"))
	assert.Equal(t, srv.URL+"/p/"+id, url)

	resp, data := srv.request(t, http.MethodGet, "/pastes/"+id, "", at("1000"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got consumeResponse
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "hello", got.Content)
	require.NotNil(t, got.RemainingViews)
	assert.Equal(t, int64(1), *got.RemainingViews)
	require.NotNil(t, got.ExpiresAt)
	assert.Equal(t, "1970-01-01T00:00:11.000Z", *got.ExpiresAt)
}

func TestExpiryBoundary(t *testing.T) {
	srv := newTestServer(t, true)
	id, _ := srv.createPaste(t, `{"content":"hello","ttl_seconds":10}`, at("1000"))

	resp, _ := srv.request(t, http.MethodGet, "/pastes/"+id, "", at("10999"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data := srv.request(t, http.MethodGet, "/pastes/"+id, "", at("11000"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Paste not found"}`, string(data))
}

func TestTestHeaderIgnoredOutsideTestMode(t *testing.T) {
	srv := newTestServer(t, false)
	id, _ := srv.createPaste(t, `{"content":"hello","ttl_seconds":60}`, at("1000"))

	// Created with the wall clock, so a far-future header must not expire it.
	resp, _ := srv.request(t, http.MethodGet, "/pastes/"+id, "", at("999999999999999"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMaxViewsUnderConcurrency(t *testing.T) {
	srv := newTestServer(t, true)
	id, _ := srv.createPaste(t, `{"content":"race","max_views":3}`, nil)

	const racers = 12
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		served int
		gone   int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := srv.Client().Get(srv.URL + "/pastes/" + id)
			if err != nil {
				t.Error(err)
				return
			}
			_ = resp.Body.Close()
			mu.Lock()
			defer mu.Unlock()
			switch resp.StatusCode {
			case http.StatusOK:
				served++
			case http.StatusNotFound:
				gone++
			default:
				t.Errorf("unexpected status %d", resp.StatusCode)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, served)
	assert.Equal(t, racers-3, gone)
}

func TestAPIErrorsAreJSON(t *testing.T) {
	srv := newTestServer(t, true)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"invalid json", http.MethodPost, "/pastes", `{"content":`, http.StatusBadRequest},
		{"wrong type", http.MethodPost, "/pastes", `{"content":"x","max_views":"2"}`, http.StatusBadRequest},
		{"oversized", http.MethodPost, "/pastes", `{"content":"` + strings.Repeat("x", 5000) + `"}`, http.StatusRequestEntityTooLarge},
		{"unknown paste", http.MethodGet, "/pastes/doesnotexist", "", http.StatusNotFound},
		{"bad id", http.MethodGet, "/pastes/%24%24%24", "", http.StatusNotFound},
		{"unknown meta", http.MethodGet, "/api/v1/meta/doesnotexist", "", http.StatusNotFound},
		{"unknown route", http.MethodGet, "/nope", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := srv.request(t, tt.method, tt.path, tt.body, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &body), string(data))
			msg, ok := body["error"].(string)
			assert.True(t, ok, "error must be a string")
			assert.NotEmpty(t, msg)
			assert.Len(t, body, 1)
		})
	}
}

func TestHealthz(t *testing.T) {
	dir := t.TempDir()
	srv := newTestServer(t, false, func(cfg *config.Config) { cfg.DataDir = dir })

	resp, data := srv.request(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(data))

	require.NoError(t, os.RemoveAll(dir))
	resp, data = srv.request(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(data), `"ok":false`)
}

func TestPreviewPageDoesNotConsume(t *testing.T) {
	srv := newTestServer(t, true)
	id, _ := srv.createPaste(t, `{"content":"look <b>but</b> do not touch","max_views":1}`, nil)

	for i := 0; i < 2; i++ {
		resp, data := srv.request(t, http.MethodGet, "/p/"+id, "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
		assert.Contains(t, string(data), "look &lt;b&gt;but&lt;/b&gt; do not touch")
	}

	resp, _ := srv.request(t, http.MethodGet, "/pastes/"+id, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data := srv.request(t, http.MethodGet, "/p/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(data), "Paste Not Found")
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(t, false)

	resp, _ := srv.request(t, http.MethodGet, "/healthz", "", nil)
	assert.Len(t, resp.Header.Get("X-Request-ID"), 36)

	resp, _ = srv.request(t, http.MethodGet, "/healthz", "", map[string]string{"X-Request-ID": "trace-me"})
	assert.Equal(t, "trace-me", resp.Header.Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, true)
	id, _ := srv.createPaste(t, `{"content":"count me"}`, nil)
	srv.request(t, http.MethodGet, "/pastes/"+id, "", nil)
	srv.request(t, http.MethodGet, "/pastes/missing-one", "", nil)

	resp, data := srv.request(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := string(data)
	assert.Contains(t, body, "pastebin_pastes_created_total 1")
	assert.Contains(t, body, `pastebin_consume_total{outcome="served"} 1`)
	assert.Contains(t, body, `pastebin_consume_total{outcome="missing"} 1`)
	assert.Contains(t, body, `http_requests_total{method="GET",path="/pastes/:id",status="200"} 1`)
}

func TestPanicRecoveredAsJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r.Use(jsonRecovery(logger))
	r.GET("/boom", canonicalErrors(logger), func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())
}

func TestCanonicalErrors_RewritesPlainBodies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r.Use(canonicalErrors(logger))
	r.GET("/plain", func(c *gin.Context) { c.String(http.StatusBadGateway, "upstream down\n") })
	r.GET("/empty", func(c *gin.Context) { c.Status(http.StatusForbidden) })
	r.GET("/ok", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"fine": true}) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plain", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"error":"upstream down"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/empty", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"Forbidden"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"fine":true}`, w.Body.String())
}

func TestSetupLogging(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "pastebin.log")
	logger, closeFn, err := setupLogging(&config.Config{LogLevel: "warn", LogFile: logFile})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "v", entry["k"])
}

func TestIsLambdaEnvironment(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	assert.False(t, isLambdaEnvironment())

	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "pastebin")
	assert.True(t, isLambdaEnvironment())
}

func TestLambdaProxy(t *testing.T) {
	srv := newTestServer(t, false)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	proxy := newLambdaProxy(srv.Config.Handler.(*gin.Engine), logger)

	v2 := `{"version":"2.0","rawPath":"/healthz","requestContext":{"http":{"method":"GET","path":"/healthz"}}}`
	out, err := proxy.Handle(context.Background(), json.RawMessage(v2))
	require.NoError(t, err)
	encoded, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"statusCode":200`)

	v1 := `{"httpMethod":"GET","path":"/healthz","resource":"/{proxy+}"}`
	out, err = proxy.Handle(context.Background(), json.RawMessage(v1))
	require.NoError(t, err)
	encoded, err = json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"statusCode":200`)

	_, err = proxy.Handle(context.Background(), json.RawMessage(`{"key1":"value1"}`))
	assert.Error(t, err)
}
