package handlers

import (
	"errors"
	"net/http"
	"testing"
)

func TestMetaHandler_GetMetadata(t *testing.T) {
	env := newTestEnv(t, testConfig())
	id := env.create(t, `{"content":"secret","ttl_seconds":60,"max_views":3}`)

	w := env.do(http.MethodGet, "/api/v1/meta/"+id, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	response := decodeJSON(t, w)
	if response["id"] != id {
		t.Errorf("Expected id %s, got %v", id, response["id"])
	}
	if response["created_at"] != "1970-01-01T00:00:01.000Z" {
		t.Errorf("Unexpected created_at %v", response["created_at"])
	}
	if response["expires_at"] != "1970-01-01T00:01:01.000Z" {
		t.Errorf("Unexpected expires_at %v", response["expires_at"])
	}
	if response["remaining_views"] != float64(3) {
		t.Errorf("Expected remaining_views 3, got %v", response["remaining_views"])
	}
	if _, ok := response["content"]; ok {
		t.Error("Metadata must not include content")
	}
}

func TestMetaHandler_DoesNotConsume(t *testing.T) {
	env := newTestEnv(t, testConfig())
	id := env.create(t, `{"content":"secret","max_views":1}`)

	for i := 0; i < 3; i++ {
		if w := env.do(http.MethodGet, "/api/v1/meta/"+id, "", nil); w.Code != http.StatusOK {
			t.Fatalf("Preview %d: expected %d, got %d", i, http.StatusOK, w.Code)
		}
	}
	if views := env.store.views(id); views != 0 {
		t.Errorf("Expected 0 views after previews, got %d", views)
	}
	if env.store.increments() != 0 {
		t.Error("Preview must never increment views")
	}

	if w := env.do(http.MethodGet, "/pastes/"+id, "", nil); w.Code != http.StatusOK {
		t.Fatalf("Consume: expected %d, got %d", http.StatusOK, w.Code)
	}
	if w := env.do(http.MethodGet, "/api/v1/meta/"+id, "", nil); w.Code != http.StatusNotFound {
		t.Errorf("Exhausted paste: expected %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestMetaHandler_NotFoundAndErrors(t *testing.T) {
	env := newTestEnv(t, testConfig())

	w := env.do(http.MethodGet, "/api/v1/meta/doesnotexist", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	id := env.create(t, `{"content":"x","ttl_seconds":1}`)
	w = env.do(http.MethodGet, "/api/v1/meta/"+id, "", map[string]string{"X-Test-Now-Ms": "2000"})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expired paste: expected %d, got %d", http.StatusNotFound, w.Code)
	}

	env.store.err = errors.New("boom")
	w = env.do(http.MethodGet, "/api/v1/meta/"+id, "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}
