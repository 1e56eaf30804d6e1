package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/chainarb/internal/domain"
	"github.com/redis/go-redis/v9"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. The latest
// quote of every venue for an asset lives at "quotes:{assetID}", one
// JSON-encoded field per venue.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache backed by the given Client. A positive
// ttl expires an asset's hash when no quote has been written for that long.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(assetID string) string {
	return "quotes:" + assetID
}

// SetQuote stores q as the latest quote of its venue.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.Quote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("redis: marshal quote %s/%s: %w", q.AssetID, q.VenueID, err)
	}

	key := quoteKey(q.AssetID)
	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key, q.VenueID, data)
	if qc.ttl > 0 {
		pipe.Expire(ctx, key, qc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s/%s: %w", q.AssetID, q.VenueID, err)
	}
	return nil
}

// GetQuotes returns the latest quote per venue for assetID, ordered by
// venue. It returns domain.ErrNotFound when nothing is cached.
func (qc *QuoteCache) GetQuotes(ctx context.Context, assetID string) ([]domain.Quote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(assetID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get quotes %s: %w", assetID, err)
	}
	if len(vals) == 0 {
		return nil, domain.ErrNotFound
	}

	quotes := make([]domain.Quote, 0, len(vals))
	for venue, raw := range vals {
		var q domain.Quote
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, fmt.Errorf("redis: decode quote %s/%s: %w", assetID, venue, err)
		}
		quotes = append(quotes, q)
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].VenueID < quotes[j].VenueID })
	return quotes, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
