package pricesource

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

type memQuoteCache struct {
	mu     sync.Mutex
	quotes []domain.Quote
	err    error
}

func (c *memQuoteCache) SetQuote(_ context.Context, q domain.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.quotes = append(c.quotes, q)
	return nil
}

func (c *memQuoteCache) GetQuotes(_ context.Context, assetID string) ([]domain.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Quote
	for _, q := range c.quotes {
		if q.AssetID == assetID {
			out = append(out, q)
		}
	}
	return out, nil
}

func TestRecordingStoresSuccessfulQuotes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	src := NewStatic().Set("X", "a", 10).FailVenue("b", domain.ErrSourceUnavailable)
	cache := &memQuoteCache{}
	rec := NewRecording(src, cache, logger)

	ctx := context.Background()
	_, err := rec.Quote(ctx, "X", "a")
	require.NoError(t, err)
	_, err = rec.Quote(ctx, "X", "b")
	require.Error(t, err)

	quotes, err := cache.GetQuotes(ctx, "X")
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "a", quotes[0].VenueID)
}

func TestRecordingIgnoresCacheFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := &memQuoteCache{err: errors.New("redis down")}
	rec := NewRecording(NewStatic().Set("X", "a", 10), cache, logger)

	q, err := rec.Quote(context.Background(), "X", "a")
	require.NoError(t, err)
	assert.Equal(t, 10.0, q.Price)
}
