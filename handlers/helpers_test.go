package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/pastebin/config"
	"github.com/johnwmail/pastebin/internal/clock"
	"github.com/johnwmail/pastebin/internal/services"
	"github.com/johnwmail/pastebin/models"
)

// memoryStore implements storage.PasteStore for testing
type memoryStore struct {
	mu      sync.Mutex
	pastes  map[string]*models.Paste
	err     error
	incrs   int
	pingErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{pastes: make(map[string]*models.Paste)}
}

func (m *memoryStore) Put(_ context.Context, id string, paste *models.Paste) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.pastes[id] = paste.Clone()
	return nil
}

func (m *memoryStore) Get(_ context.Context, id string) (*models.Paste, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.pastes[id].Clone(), nil
}

func (m *memoryStore) IncrementViews(_ context.Context, id string) (*models.Paste, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.incrs++
	p, ok := m.pastes[id]
	if !ok {
		return nil, nil
	}
	p.Views++
	return p.Clone(), nil
}

func (m *memoryStore) Ping(context.Context) error { return m.pingErr }
func (m *memoryStore) Close() error               { return nil }

func (m *memoryStore) views(id string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pastes[id]; ok {
		return p.Views
	}
	return -1
}

func (m *memoryStore) increments() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incrs
}

func testConfig() *config.Config {
	return &config.Config{
		URL:             "https://paste.example.com",
		IDLength:        21,
		MaxContentBytes: 1024,
		StoreTimeout:    time.Second,
		Version:         "test",
		BuildTime:       "test-time",
		CommitHash:      "test-hash",
	}
}

type testEnv struct {
	store  *memoryStore
	router *gin.Engine
}

// newTestEnv wires every handler onto a bare engine. The clock is pinned to
// 1000ms unless a test header overrides it.
func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := services.NewPasteService(store, cfg, services.WithLogger(logger))
	clk := clock.NewResolver(clock.Fixed(1000), true)

	tmpl, err := Templates()
	if err != nil {
		t.Fatalf("Failed to parse templates: %v", err)
	}

	pastes := NewPasteHandler(svc, cfg, clk, logger)
	meta := NewMetaHandler(svc, clk)
	system := NewSystemHandler(svc)
	web := NewWebUIHandler(svc, cfg, clk)

	r := gin.New()
	r.SetHTMLTemplate(tmpl)
	r.GET("/", web.Index)
	r.GET("/p/:id", web.View)
	r.POST("/pastes", pastes.Create)
	r.GET("/pastes/:id", pastes.Consume)
	r.GET("/api/v1/meta/:id", meta.GetMetadata)
	r.GET("/healthz", system.Health)

	return &testEnv{store: store, router: r}
}

func (e *testEnv) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// create posts body and returns the new paste id.
func (e *testEnv) create(t *testing.T, body string) string {
	t.Helper()
	w := e.do(http.MethodPost, "/pastes", body, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	return resp.ID
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to unmarshal response %q: %v", w.Body.String(), err)
	}
	return out
}
