package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/onnwee/farmrank/internal/farm"
	"github.com/onnwee/farmrank/internal/middleware"
	"github.com/onnwee/farmrank/internal/ranking"
)

// maxCreateBodyBytes bounds the POST /api/farms request body.
const maxCreateBodyBytes = 1 << 20

// Ranker produces a ranked page of farms for a user.
type Ranker interface {
	Rank(ctx context.Context, userID string, req ranking.Request) ([]ranking.RankedFarm, error)
}

// FarmCreator persists new farms.
type FarmCreator interface {
	Insert(ctx context.Context, f *farm.Farm) error
}

// FarmHandlers serves /api/farms.
type FarmHandlers struct {
	ranker Ranker
	farms  FarmCreator
	logger *slog.Logger
}

// NewFarmHandlers creates the farm handlers.
func NewFarmHandlers(ranker Ranker, farms FarmCreator, logger *slog.Logger) *FarmHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &FarmHandlers{
		ranker: ranker,
		farms:  farms,
		logger: logger,
	}
}

// ListFarmsResponse is the body of GET /api/farms.
type ListFarmsResponse struct {
	Farms []ranking.RankedFarm `json:"farms"`
	Count int                  `json:"count"`
}

// CreateFarmRequest is the body of POST /api/farms.
type CreateFarmRequest struct {
	Name        string  `json:"name"`
	Coordinates string  `json:"coordinates"`
	Address     string  `json:"address"`
	Size        float64 `json:"size"`
	Yield       float64 `json:"yield"`
}

// Farms dispatches /api/farms by method.
func (h *FarmHandlers) Farms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.ListFarms(w, r)
	case http.MethodPost:
		h.CreateFarm(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
	}
}

// ListFarms handles GET /api/farms?limit&offset&sortColumn&sortOrder&outliers.
func (h *FarmHandlers) ListFarms(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteError(w, r.Context(), http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	req, err := parseRankingRequest(r.URL.Query())
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeInvalidParameter, err.Error())
		return
	}

	ranked, err := h.ranker.Rank(r.Context(), userID, req)
	if err != nil {
		WriteRankingError(w, r.Context(), err)
		return
	}
	if ranked == nil {
		ranked = []ranking.RankedFarm{}
	}

	writeJSON(w, r.Context(), http.StatusOK, ListFarmsResponse{
		Farms: ranked,
		Count: len(ranked),
	})
}

// parseRankingRequest reads and bounds the ranking query parameters.
// Absent parameters take the ranking defaults.
func parseRankingRequest(q url.Values) (ranking.Request, error) {
	req := ranking.DefaultRequest()

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("limit must be an integer (got %q)", raw)
		}
		req.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("offset must be an integer (got %q)", raw)
		}
		req.Offset = n
	}

	col, err := ranking.ParseSortColumn(q.Get("sortColumn"))
	if err != nil {
		return req, err
	}
	req.SortColumn = col

	order, err := ranking.ParseSortOrder(q.Get("sortOrder"))
	if err != nil {
		return req, err
	}
	req.SortOrder = order

	if raw := q.Get("outliers"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return req, fmt.Errorf("outliers must be true or false (got %q)", raw)
		}
		req.Outliers = b
	}

	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// CreateFarm handles POST /api/farms. The farm is owned by the
// authenticated user.
func (h *FarmHandlers) CreateFarm(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteError(w, r.Context(), http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	var body CreateFarmRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCreateBodyBytes)).Decode(&body); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	f := &farm.Farm{
		Name:        strings.TrimSpace(body.Name),
		Coordinates: strings.TrimSpace(body.Coordinates),
		Address:     strings.TrimSpace(body.Address),
		Size:        body.Size,
		Yield:       body.Yield,
		UserID:      userID,
	}
	if errs := f.Validate(); len(errs) > 0 {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, joinErrors(errs))
		return
	}

	if err := h.farms.Insert(r.Context(), f); err != nil {
		switch {
		case errors.Is(err, farm.ErrOwnerNotFound):
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeEntityNotFound, "Owner not found")
		case errors.Is(err, farm.ErrStoreUnavailable):
			h.logger.ErrorContext(r.Context(), "farm insert failed", "error", err)
			WriteError(w, r.Context(), http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "Farm store is unavailable")
		default:
			h.logger.ErrorContext(r.Context(), "farm insert failed", "error", err)
			WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to create farm")
		}
		return
	}

	h.logger.InfoContext(r.Context(), "farm created", "farm_id", f.ID)
	writeJSON(w, r.Context(), http.StatusCreated, f)
}

func joinErrors(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, ctx context.Context, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}
