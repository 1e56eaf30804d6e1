package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/chainarb/internal/domain"
	"github.com/alanyoungcy/chainarb/internal/server/middleware"
	"github.com/alanyoungcy/chainarb/internal/service"
)

// ExecutionService accepts execution requests.
type ExecutionService interface {
	Request(ctx context.Context, user domain.User, req service.ExecutionRequest) (service.ExecutionResponse, error)
}

// ExecuteHandler serves execution requests.
type ExecuteHandler struct {
	svc    ExecutionService
	logger *slog.Logger
}

// NewExecuteHandler creates an ExecuteHandler.
func NewExecuteHandler(svc ExecutionService, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{svc: svc, logger: logger.With(slog.String("handler", "execute"))}
}

// Execute queues an execution request for the authenticated user.
// POST /api/v1/execute
func (h *ExecuteHandler) Execute(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req service.ExecutionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}

	resp, err := h.svc.Request(r.Context(), user, req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}
