package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alanyoungcy/chainarb/internal/aggregator"
	"github.com/alanyoungcy/chainarb/internal/domain"
)

// QuoteAggregator fetches live quotes for one asset.
type QuoteAggregator interface {
	Aggregate(ctx context.Context, assetID string, venues []string) (aggregator.Snapshot, error)
}

// PriceService serves the latest per-venue quotes of an asset. It reads the
// quote cache first and falls back to a live fetch when nothing is cached.
type PriceService struct {
	cache  domain.QuoteCache
	live   QuoteAggregator
	venues []string
	logger *slog.Logger
}

// NewPriceService creates a PriceService. Either cache or live may be nil,
// not both.
func NewPriceService(cache domain.QuoteCache, live QuoteAggregator, venues []string, logger *slog.Logger) *PriceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PriceService{
		cache:  cache,
		live:   live,
		venues: venues,
		logger: logger.With(slog.String("component", "price_service")),
	}
}

// Latest returns the latest quotes for assetID sorted by venue, or
// domain.ErrNotFound when no venue has a price.
func (s *PriceService) Latest(ctx context.Context, assetID string) ([]domain.Quote, error) {
	if s.cache != nil {
		quotes, err := s.cache.GetQuotes(ctx, assetID)
		switch {
		case err == nil:
			return quotes, nil
		case errors.Is(err, domain.ErrNotFound):
		default:
			s.logger.WarnContext(ctx, "quote cache read failed, fetching live",
				slog.String("asset_id", assetID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.live == nil {
		return nil, fmt.Errorf("price_service: quotes for %q: %w", assetID, domain.ErrNotFound)
	}

	snap, err := s.live.Aggregate(ctx, assetID, s.venues)
	if err != nil {
		return nil, fmt.Errorf("price_service: live quotes for %q: %w", assetID, err)
	}
	if len(snap.Quotes) == 0 {
		return nil, fmt.Errorf("price_service: quotes for %q: %w", assetID, domain.ErrNotFound)
	}
	quotes := make([]domain.Quote, 0, len(snap.Quotes))
	for _, q := range snap.Quotes {
		quotes = append(quotes, q)
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].VenueID < quotes[j].VenueID })
	return quotes, nil
}
