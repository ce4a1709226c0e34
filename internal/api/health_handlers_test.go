package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// mockHealthChecker is a mock implementation of HealthChecker for testing.
type mockHealthChecker struct {
	shouldFail bool
	err        error
}

func (m *mockHealthChecker) HealthCheck(ctx context.Context) error {
	if m.shouldFail {
		if m.err != nil {
			return m.err
		}
		return errors.New("health check failed")
	}
	return nil
}

// deadlineChecker records whether HealthCheck received a bounded context.
type deadlineChecker struct {
	hadDeadline bool
}

func (d *deadlineChecker) HealthCheck(ctx context.Context) error {
	_, d.hadDeadline = ctx.Deadline()
	return nil
}

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return response
}

func TestHealth_Success(t *testing.T) {
	handlers := NewHealthHandlers(HealthHandlersConfig{})

	w := httptest.NewRecorder()
	handlers.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	response := decodeHealth(t, w)
	if response.Status != "healthy" {
		t.Errorf("expected status 'healthy', got %s", response.Status)
	}
	if response.Checks["runtime"] != "ok" {
		t.Errorf("expected runtime check to be 'ok', got %s", response.Checks["runtime"])
	}
	if _, err := time.Parse(time.RFC3339, response.Timestamp); err != nil {
		t.Errorf("expected RFC3339 timestamp, got %q", response.Timestamp)
	}
}

func TestHealth_IgnoresDependencies(t *testing.T) {
	handlers := NewHealthHandlers(HealthHandlersConfig{
		DBChecker: &mockHealthChecker{shouldFail: true},
	})

	w := httptest.NewRecorder()
	handlers.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("liveness must not depend on the database, got %d", w.Code)
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		config     HealthHandlersConfig
		wantStatus int
		wantBody   string
		wantChecks map[string]string
	}{
		{
			name: "all healthy",
			config: HealthHandlersConfig{
				DBChecker:       &mockHealthChecker{},
				RedisChecker:    &mockHealthChecker{},
				DistanceChecker: &mockHealthChecker{},
			},
			wantStatus: http.StatusOK,
			wantBody:   "healthy",
			wantChecks: map[string]string{"database": "ok", "redis": "ok", "distance": "ok"},
		},
		{
			name:       "nothing configured",
			config:     HealthHandlersConfig{},
			wantStatus: http.StatusOK,
			wantBody:   "healthy",
			wantChecks: map[string]string{"database": "not_configured", "redis": "not_configured", "distance": "not_configured"},
		},
		{
			name: "database down",
			config: HealthHandlersConfig{
				DBChecker:       &mockHealthChecker{shouldFail: true},
				DistanceChecker: &mockHealthChecker{},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unhealthy",
			wantChecks: map[string]string{"database": "error", "redis": "not_configured", "distance": "ok"},
		},
		{
			name: "redis down",
			config: HealthHandlersConfig{
				DBChecker:    &mockHealthChecker{},
				RedisChecker: &mockHealthChecker{shouldFail: true, err: errors.New("connection refused")},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unhealthy",
			wantChecks: map[string]string{"database": "ok", "redis": "error"},
		},
		{
			name: "distance provider down is degraded",
			config: HealthHandlersConfig{
				DBChecker:       &mockHealthChecker{},
				DistanceChecker: &mockHealthChecker{shouldFail: true},
			},
			wantStatus: http.StatusOK,
			wantBody:   "degraded",
			wantChecks: map[string]string{"database": "ok", "distance": "error"},
		},
		{
			name: "database and distance down",
			config: HealthHandlersConfig{
				DBChecker:       &mockHealthChecker{shouldFail: true},
				DistanceChecker: &mockHealthChecker{shouldFail: true},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unhealthy",
			wantChecks: map[string]string{"database": "error", "distance": "error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers := NewHealthHandlers(tt.config)

			w := httptest.NewRecorder()
			handlers.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			response := decodeHealth(t, w)
			if response.Status != tt.wantBody {
				t.Errorf("expected status %q, got %q", tt.wantBody, response.Status)
			}
			for name, want := range tt.wantChecks {
				if got := response.Checks[name]; got != want {
					t.Errorf("check %s: expected %q, got %q", name, want, got)
				}
			}
		})
	}
}

func TestReady_BoundedContext(t *testing.T) {
	checker := &deadlineChecker{}
	handlers := NewHealthHandlers(HealthHandlersConfig{DBChecker: checker})

	handlers.Ready(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ready", nil))

	if !checker.hadDeadline {
		t.Error("expected readiness checks to run with a deadline")
	}
}

func TestHealthEndpoints_MethodNotAllowed(t *testing.T) {
	handlers := NewHealthHandlers(HealthHandlersConfig{})

	for name, h := range map[string]http.HandlerFunc{"health": handlers.Health, "ready": handlers.Ready} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h(w, httptest.NewRequest(http.MethodPost, "/"+name, nil))

			if w.Code != http.StatusMethodNotAllowed {
				t.Errorf("expected status 405, got %d", w.Code)
			}
		})
	}
}
