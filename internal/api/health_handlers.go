package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// readinessTimeout bounds all dependency checks of one /ready call.
const readinessTimeout = 5 * time.Second

// HealthChecker defines the interface for components that can be health checked.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandlers provides health and readiness check endpoints for Kubernetes probes.
type HealthHandlers struct {
	dbChecker       HealthChecker
	redisChecker    HealthChecker
	distanceChecker HealthChecker
}

// HealthHandlersConfig configures the health check handlers. Nil checkers
// are reported as not configured.
type HealthHandlersConfig struct {
	// DBChecker is critical: a failure makes /ready return 503.
	DBChecker HealthChecker
	// RedisChecker is critical when the shared stores use Redis.
	RedisChecker HealthChecker
	// DistanceChecker is advisory: a failure marks the service degraded
	// but keeps it in rotation.
	DistanceChecker HealthChecker
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	return &HealthHandlers{
		dbChecker:       config.DBChecker,
		redisChecker:    config.RedisChecker,
		distanceChecker: config.DistanceChecker,
	}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Check results reported per dependency.
const (
	checkOK            = "ok"
	checkError         = "error"
	checkNotConfigured = "not_configured"
)

// Health handles GET /health (liveness probe).
// Returns 200 as long as the process can serve requests.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
		return
	}

	response := HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": checkOK},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode health response", "error", err)
	}
}

// Ready handles GET /ready (readiness probe).
// Returns 503 if the database or Redis is unavailable. An unreachable
// distance provider yields 200 with status "degraded".
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]string)
	healthy := true
	degraded := false

	if !runCheck(ctx, checks, "database", h.dbChecker) {
		healthy = false
	}
	if !runCheck(ctx, checks, "redis", h.redisChecker) {
		healthy = false
	}
	if !runCheck(ctx, checks, "distance", h.distanceChecker) {
		degraded = true
	}

	status := "healthy"
	statusCode := http.StatusOK
	switch {
	case !healthy:
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	case degraded:
		status = "degraded"
	}

	response := HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode readiness response", "error", err)
	}
}

// runCheck records the outcome of one checker under name and reports
// whether it passed. A nil checker passes as not configured.
func runCheck(ctx context.Context, checks map[string]string, name string, checker HealthChecker) bool {
	if checker == nil {
		checks[name] = checkNotConfigured
		return true
	}
	if err := checker.HealthCheck(ctx); err != nil {
		checks[name] = checkError
		slog.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
		return false
	}
	checks[name] = checkOK
	return true
}
