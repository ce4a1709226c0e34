// Package api provides the HTTP handlers of the farm ranking API and its
// standardized error responses.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/farmrank/internal/middleware"
	"github.com/onnwee/farmrank/internal/ranking"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeAuthFailed indicates authentication failure.
	ErrCodeAuthFailed = "auth_failed"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeMethodNotAllowed indicates the route exists but not for this method.
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// ErrCodeEmailTaken indicates a registration for an email already in use.
	ErrCodeEmailTaken = "email_taken"

	// ErrCodeInvalidCredentials indicates a login with an unknown email or wrong password.
	ErrCodeInvalidCredentials = "invalid_credentials"

	// Ranking failure codes, equal to ranking.Kind.String().
	ErrCodeEntityNotFound      = "entity_not_found"
	ErrCodeInvalidParameter    = "invalid_parameter"
	ErrCodeStoreUnavailable    = "store_unavailable"
	ErrCodeUpstreamUnavailable = "upstream_unavailable"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// The code is also recorded with middleware.SetErrorCode so the logging
// middleware reports it for 4xx and 5xx responses.
//
// Example:
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
//	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "Farm not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	ctx = middleware.SetErrorCode(ctx, code)

	data, err := json.Marshal(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// rankingStatus maps each ranking failure kind to its HTTP status.
var rankingStatus = map[ranking.Kind]int{
	ranking.KindEntityNotFound:      http.StatusNotFound,
	ranking.KindInvalidParameter:    http.StatusBadRequest,
	ranking.KindStoreUnavailable:    http.StatusServiceUnavailable,
	ranking.KindUpstreamUnavailable: http.StatusBadGateway,
}

// rankingMessage is the client-facing text per kind. Internal error
// details are logged, never returned.
var rankingMessage = map[ranking.Kind]string{
	ranking.KindEntityNotFound:      "Requesting user not found",
	ranking.KindStoreUnavailable:    "Farm store is unavailable",
	ranking.KindUpstreamUnavailable: "Distance provider is unavailable",
}

// WriteRankingError writes the response for an error returned by the
// ranking pipeline. Invalid parameters echo the validation message.
func WriteRankingError(w http.ResponseWriter, ctx context.Context, err error) {
	kind := ranking.KindOf(err)
	status, ok := rankingStatus[kind]
	if !ok {
		slog.ErrorContext(ctx, "unclassified ranking error", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	message := rankingMessage[kind]
	if kind == ranking.KindInvalidParameter {
		message = invalidParameterMessage(err)
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "ranking failed", "kind", kind.String(), "error", err)
	}
	WriteError(w, ctx, status, kind.String(), message)
}

// invalidParameterMessage unwraps the pipeline's Error to the underlying
// validation message.
func invalidParameterMessage(err error) string {
	var rerr *ranking.Error
	if errors.As(err, &rerr) && rerr.Err != nil {
		return rerr.Err.Error()
	}
	return err.Error()
}

// StatusCodeMapping returns the recommended HTTP status code for an error code.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest, ErrCodeInvalidParameter:
		return http.StatusBadRequest
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeNotFound, ErrCodeEntityNotFound:
		return http.StatusNotFound
	case ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrCodeEmailTaken, ErrCodeInvalidCredentials:
		return http.StatusUnprocessableEntity
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
