package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// unmatchedRoute labels requests to paths the API does not serve.
const unmatchedRoute = "other"

// knownRoutes are the paths exported as-is in metric labels.
var knownRoutes = map[string]bool{
	"/api/farms": true,
	"/health":    true,
	"/ready":     true,
	"/metrics":   true,
}

// normalizePath maps a request path to a bounded label set. The API has no
// path parameters, so anything outside knownRoutes collapses into one label.
func normalizePath(path string) string {
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	if knownRoutes[path] {
		return path
	}
	return unmatchedRoute
}

// HTTPMetrics is a middleware that records HTTP request metrics: duration,
// request/response sizes and request counts. Health probes (/health, /ready)
// are excluded.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := newResponseWriter(w)

			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}

			next.ServeHTTP(rw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(rw.statusCode),
				time.Since(start).Seconds(),
				requestSize,
				rw.size,
			)
		})
	}
}
