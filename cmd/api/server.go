package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/farmrank/internal/api"
	"github.com/onnwee/farmrank/internal/idempotency"
	"github.com/onnwee/farmrank/internal/middleware"
)

const serviceName = "farmrank-api"

// serverDeps are the components the HTTP surface is assembled from.
type serverDeps struct {
	Logger         *slog.Logger
	Farms          *api.FarmHandlers
	Users          *api.UserHandlers
	Health         *api.HealthHandlers
	Tokens         middleware.TokenValidator
	RateLimitStore middleware.RateLimitStore
	Idempotency    idempotency.Repository
	RateLimit      middleware.RateLimitConfig
	Metrics        *middleware.Metrics
	Gatherer       prometheus.Gatherer
}

// newHandler builds the route tree and wraps it in the middleware chain:
// RequestID -> Tracing -> Logging -> HTTPMetrics -> mux.
// /api/farms additionally requires a bearer token, is rate limited per user
// and replays POST responses for a repeated Idempotency-Key. Registration and
// login are public and rate limited per client IP.
func newHandler(d serverDeps) http.Handler {
	mux := http.NewServeMux()

	farms := http.Handler(http.HandlerFunc(d.Farms.Farms))
	farms = middleware.Idempotency(d.Idempotency, d.Logger)(farms)
	farms = middleware.RateLimiter(d.RateLimitStore, d.RateLimit, middleware.UserKeyFunc(), d.Metrics)(farms)
	farms = middleware.Authenticate(d.Tokens)(farms)
	mux.Handle("/api/farms", farms)

	limitByIP := middleware.RateLimiter(d.RateLimitStore, d.RateLimit, middleware.IPKeyFunc(), d.Metrics)
	mux.Handle("/api/users", limitByIP(http.HandlerFunc(d.Users.Register)))
	mux.Handle("/api/auth/login", limitByIP(http.HandlerFunc(d.Users.Login)))

	mux.HandleFunc("/health", d.Health.Health)
	mux.HandleFunc("/ready", d.Health.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		api.WriteError(w, r.Context(), http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
	})

	handler := middleware.HTTPMetrics(d.Metrics)(mux)
	handler = middleware.Logging(d.Logger)(handler)
	handler = middleware.Tracing(serviceName)(handler)
	return middleware.RequestID(handler)
}

// newServer wraps handler in an http.Server with the API's timeouts.
func newServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
