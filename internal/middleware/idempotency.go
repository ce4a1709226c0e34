package middleware

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/farmrank/internal/idempotency"
)

// IdempotencyKeyHeader is the request header carrying the client's key.
const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotentReplayHeader marks a response served from the idempotency store.
const IdempotentReplayHeader = "Idempotent-Replayed"

// idempotencyResponseWriter tees the response into a buffer.
type idempotencyResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	body        bytes.Buffer
	wroteHeader bool
}

func (w *idempotencyResponseWriter) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.statusCode = statusCode
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	w.body.Write(b[:n])
	return n, err
}

func (w *idempotencyResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Idempotency replays the stored response for POST requests that repeat an
// Idempotency-Key. Keys are optional and scoped to the authenticated user,
// so it must run after Authenticate. Only 2xx responses are stored. Store
// errors are logged and the request proceeds without idempotency.
func Idempotency(repo idempotency.Repository, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if err := idempotency.ValidateKey(key); err != nil {
				code, message := "invalid_idempotency_key", "Invalid Idempotency-Key"
				if errors.Is(err, idempotency.ErrKeyTooLong) {
					code, message = "idempotency_key_too_long", "Idempotency-Key exceeds maximum length of 64 characters"
				}
				SetErrorCode(r.Context(), code)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"code":"` + code + `","message":"` + message + `"}}` + "\n"))
				return
			}

			ctx := r.Context()
			scoped := idempotency.ScopedKey(GetUserID(ctx), key)

			existing, err := repo.Get(ctx, scoped)
			switch {
			case err == nil:
				logger.InfoContext(ctx, "replaying idempotent response", "key", key, "status", existing.StatusCode)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(IdempotentReplayHeader, "true")
				w.WriteHeader(existing.StatusCode)
				_, _ = w.Write([]byte(existing.Body))
				return
			case !errors.Is(err, idempotency.ErrKeyNotFound):
				logger.ErrorContext(ctx, "failed to check idempotency key", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			capture := &idempotencyResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			if capture.statusCode < 200 || capture.statusCode >= 300 {
				return
			}
			body := capture.body.String()
			record := &idempotency.Record{
				Key:          scoped,
				Method:       r.Method,
				Route:        r.URL.Path,
				StatusCode:   capture.statusCode,
				Body:         body,
				ResponseHash: idempotency.ComputeResponseHash(body),
			}
			if err := repo.Store(ctx, record); err != nil {
				logger.ErrorContext(ctx, "failed to store idempotency key", "key", key, "error", err)
			}
		})
	}
}
