package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// OpportunityService is what the opportunity endpoints need.
type OpportunityService interface {
	Detect(ctx context.Context) ([]domain.Opportunity, error)
	DetectAsset(ctx context.Context, assetID string) ([]domain.Opportunity, error)
	ListActive(ctx context.Context, limit int) ([]domain.OpportunityRecord, error)
}

// OpportunityHandler serves detection results.
type OpportunityHandler struct {
	svc    OpportunityService
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(svc OpportunityService, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{svc: svc, logger: logger.With(slog.String("handler", "opportunity"))}
}

type opportunitiesResponse struct {
	Opportunities []domain.Opportunity `json:"opportunities"`
	Count         int                  `json:"count"`
	Timestamp     string               `json:"timestamp"`
}

// List runs a fresh detection cycle over every asset.
// GET /api/v1/opportunities
func (h *OpportunityHandler) List(w http.ResponseWriter, r *http.Request) {
	opps, err := h.svc.Detect(r.Context())
	if err != nil {
		h.detectionFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOpportunitiesResponse(opps))
}

// ByAsset runs a fresh detection cycle and keeps one asset.
// GET /api/v1/opportunities/{asset}
func (h *OpportunityHandler) ByAsset(w http.ResponseWriter, r *http.Request) {
	opps, err := h.svc.DetectAsset(r.Context(), assetParam(r))
	if err != nil {
		h.detectionFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOpportunitiesResponse(opps))
}

// Recent returns persisted active opportunities, best first.
// GET /api/v1/opportunities/recent?limit=50
func (h *OpportunityHandler) Recent(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.ListActive(r.Context(), parseLimit(r, 50, 500))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if recs == nil {
		recs = []domain.OpportunityRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": recs,
		"count":         len(recs),
	})
}

// detectionFailed reports a failed cycle as an explicit internal error so a
// client never mistakes it for "no opportunities".
func (h *OpportunityHandler) detectionFailed(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "detection failed", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "detection_failed", "opportunity detection failed")
}

func newOpportunitiesResponse(opps []domain.Opportunity) opportunitiesResponse {
	if opps == nil {
		opps = []domain.Opportunity{}
	}
	return opportunitiesResponse{
		Opportunities: opps,
		Count:         len(opps),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
}
