package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// PriceService returns the latest quotes of an asset.
type PriceService interface {
	Latest(ctx context.Context, assetID string) ([]domain.Quote, error)
}

// PriceHandler serves per-venue prices.
type PriceHandler struct {
	svc    PriceService
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(svc PriceService, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{svc: svc, logger: logger.With(slog.String("handler", "price"))}
}

// Latest returns the latest quote per venue.
// GET /api/v1/prices/{asset}
func (h *PriceHandler) Latest(w http.ResponseWriter, r *http.Request) {
	asset := assetParam(r)
	quotes, err := h.svc.Latest(r.Context(), asset)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	prices := make(map[string]float64, len(quotes))
	for _, q := range quotes {
		prices[q.VenueID] = q.Price
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asset_id": asset,
		"prices":   prices,
		"quotes":   quotes,
	})
}
