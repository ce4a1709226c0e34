package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/farmrank/internal/user"
)

// maxAuthBodyBytes bounds registration and login request bodies.
const maxAuthBodyBytes = 64 << 10

// UserStore persists and looks up accounts.
type UserStore interface {
	Insert(ctx context.Context, u *user.User) error
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}

// TokenIssuer issues access tokens for authenticated users.
type TokenIssuer interface {
	GenerateAccessToken(userID, email string) (string, error)
}

// UserHandlers serves registration and login.
type UserHandlers struct {
	users      UserStore
	tokens     TokenIssuer
	bcryptCost int
	logger     *slog.Logger
}

// NewUserHandlers creates the account handlers. A zero bcryptCost uses the
// bcrypt default.
func NewUserHandlers(users UserStore, tokens TokenIssuer, bcryptCost int, logger *slog.Logger) *UserHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandlers{users: users, tokens: tokens, bcryptCost: bcryptCost, logger: logger}
}

// CreateUserRequest is the body of POST /api/users.
type CreateUserRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Coordinates string `json:"coordinates"`
	Address     string `json:"address"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued access token.
type LoginResponse struct {
	Token string `json:"token"`
}

// Register handles POST /api/users.
func (h *UserHandlers) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
		return
	}

	var body CreateUserRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBodyBytes)).Decode(&body); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	u := &user.User{
		Email:       body.Email,
		Coordinates: strings.TrimSpace(body.Coordinates),
		Address:     body.Address,
	}
	errs := u.Normalize()
	if body.Password == "" || len(body.Password) > user.MaxPasswordBytes {
		errs = append(errs, user.ErrInvalidPassword)
	}
	if len(errs) > 0 {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, joinErrors(errs))
		return
	}
	if err := u.SetPassword(body.Password, h.bcryptCost); err != nil {
		h.logger.ErrorContext(r.Context(), "password hashing failed", "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to create user")
		return
	}

	if err := h.users.Insert(r.Context(), u); err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			WriteError(w, r.Context(), http.StatusUnprocessableEntity, ErrCodeEmailTaken, "A user for the email already exists")
			return
		}
		h.logger.ErrorContext(r.Context(), "user insert failed", "error", err)
		WriteError(w, r.Context(), http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "User store is unavailable")
		return
	}

	h.logger.InfoContext(r.Context(), "user registered", "user_id", u.ID)
	writeJSON(w, r.Context(), http.StatusCreated, u)
}

// Login handles POST /api/auth/login. Unknown emails and wrong passwords
// get the same response.
func (h *UserHandlers) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
		return
	}

	var body LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBodyBytes)).Decode(&body); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	u, err := h.users.GetByEmail(r.Context(), strings.TrimSpace(body.Email))
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		h.logger.ErrorContext(r.Context(), "user lookup failed", "error", err)
		WriteError(w, r.Context(), http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "User store is unavailable")
		return
	}
	if !u.CheckPassword(body.Password) {
		WriteError(w, r.Context(), http.StatusUnprocessableEntity, ErrCodeInvalidCredentials, "Invalid user email or password")
		return
	}

	token, err := h.tokens.GenerateAccessToken(u.ID, u.Email)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "token generation failed", "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to issue token")
		return
	}

	writeJSON(w, r.Context(), http.StatusCreated, LoginResponse{Token: token})
}
