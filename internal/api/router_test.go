package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Harshitk-cp/engram-causal/internal/api/handlers"
	"github.com/Harshitk-cp/engram-causal/internal/traversal"
	"go.uber.org/zap"
)

func testApp(t *testing.T, ping func(context.Context) error) *App {
	t.Helper()
	app := &App{done: make(chan struct{})}
	t.Cleanup(app.Close)
	app.Router = app.mount(zap.NewNop(), routes{
		causal:         handlers.NewCausalHandler(nil, traversal.DefaultConfig()),
		contradictions: handlers.NewContradictionHandler(nil, nil),
		memories:       handlers.NewMemoryHandler(nil, nil, zap.NewNop()),
		graph:          handlers.NewGraphHandler(nil, nil),
		ping:           ping,
		apiKey:         "k",
		rps:            1000,
		burst:          1000,
	})
	return app
}

func TestHealth(t *testing.T) {
	app := testApp(t, func(context.Context) error { return nil })
	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	app = testApp(t, func(context.Context) error { return errors.New("down") })
	w = httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestVersionAndMetrics(t *testing.T) {
	app := testApp(t, func(context.Context) error { return nil })

	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest("GET", "/version", nil))
	var info map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info["service"] != "engram-causal" {
		t.Errorf("service = %q", info["service"])
	}

	w = httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	var metrics map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &metrics); err != nil {
		t.Fatal(err)
	}
	requests := metrics["requests"].(map[string]any)
	if requests["request_count"].(float64) != 2 {
		t.Errorf("request_count = %v, want 2", requests["request_count"])
	}
}

func TestV1RequiresAPIKey(t *testing.T) {
	app := testApp(t, func(context.Context) error { return nil })
	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/graph/stats", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
