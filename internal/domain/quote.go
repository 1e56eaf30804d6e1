package domain

import (
	"context"
	"time"
)

// Quote is a single venue's price observation for an asset.
type Quote struct {
	AssetID    string    `json:"asset_id"`
	VenueID    string    `json:"venue_id"`
	Price      float64   `json:"price"`
	Volume24h  float64   `json:"volume_24h"`
	Liquidity  float64   `json:"liquidity"`
	ObservedAt time.Time `json:"observed_at"`
}

// PriceSource supplies one quote for (asset, venue). Implementations fail with
// an error wrapping ErrSourceUnavailable or ErrSourceTimeout.
type PriceSource interface {
	Quote(ctx context.Context, assetID, venueID string) (Quote, error)
}
