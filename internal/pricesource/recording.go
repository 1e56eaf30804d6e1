package pricesource

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// Recording wraps a PriceSource and writes every successful quote to a
// QuoteCache. Cache failures are logged and never fail the fetch.
type Recording struct {
	next   domain.PriceSource
	cache  domain.QuoteCache
	logger *slog.Logger
}

// NewRecording creates a Recording decorator.
func NewRecording(next domain.PriceSource, cache domain.QuoteCache, logger *slog.Logger) *Recording {
	return &Recording{
		next:   next,
		cache:  cache,
		logger: logger.With(slog.String("component", "quote_recorder")),
	}
}

// Quote implements domain.PriceSource.
func (r *Recording) Quote(ctx context.Context, assetID, venueID string) (domain.Quote, error) {
	q, err := r.next.Quote(ctx, assetID, venueID)
	if err != nil {
		return q, err
	}
	if err := r.cache.SetQuote(ctx, q); err != nil {
		r.logger.WarnContext(ctx, "failed to cache quote",
			slog.String("asset", assetID),
			slog.String("venue", venueID),
			slog.String("error", err.Error()),
		)
	}
	return q, nil
}
