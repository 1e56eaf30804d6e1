package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/chainarb/internal/domain"
	"github.com/alanyoungcy/chainarb/internal/server/middleware"
)

// UserService registers API users.
type UserService interface {
	Create(ctx context.Context, email, wallet string, tier domain.UserTier) (domain.User, string, error)
}

// UserHandler serves user registration and profile endpoints.
type UserHandler struct {
	svc    UserService
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(svc UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{svc: svc, logger: logger.With(slog.String("handler", "user"))}
}

type createUserRequest struct {
	Email         string          `json:"email"`
	WalletAddress string          `json:"wallet_address"`
	Tier          domain.UserTier `json:"tier"`
}

type createUserResponse struct {
	User   domain.User `json:"user"`
	APIKey string      `json:"api_key"`
}

// Create registers a user. The API key is only ever returned here.
// POST /api/v1/users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	u, key, err := h.svc.Create(r.Context(), req.Email, req.WalletAddress, req.Tier)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, createUserResponse{User: u, APIKey: key})
}

// Me returns the authenticated user.
// GET /api/v1/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, u)
}
