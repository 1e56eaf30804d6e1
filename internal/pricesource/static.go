package pricesource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// Static is a map-backed PriceSource with injectable failures and delays.
type Static struct {
	mu     sync.RWMutex
	prices map[string]float64
	errs   map[string]error
	delays map[string]time.Duration
	calls  atomic.Int64
}

// NewStatic creates an empty Static source.
func NewStatic() *Static {
	return &Static{
		prices: make(map[string]float64),
		errs:   make(map[string]error),
		delays: make(map[string]time.Duration),
	}
}

// Set stores the price of asset on venue.
func (s *Static) Set(assetID, venueID string, price float64) *Static {
	s.mu.Lock()
	s.prices[overrideKey(assetID, venueID)] = price
	s.mu.Unlock()
	return s
}

// FailVenue makes every fetch from venue return err.
func (s *Static) FailVenue(venueID string, err error) *Static {
	s.mu.Lock()
	s.errs[venueID] = err
	s.mu.Unlock()
	return s
}

// Delay makes every fetch from venue block for d or until ctx is done.
func (s *Static) Delay(venueID string, d time.Duration) *Static {
	s.mu.Lock()
	s.delays[venueID] = d
	s.mu.Unlock()
	return s
}

// Calls returns how many quotes have been requested.
func (s *Static) Calls() int64 { return s.calls.Load() }

// Quote implements domain.PriceSource.
func (s *Static) Quote(ctx context.Context, assetID, venueID string) (domain.Quote, error) {
	s.calls.Add(1)

	s.mu.RLock()
	delay := s.delays[venueID]
	failure := s.errs[venueID]
	price, ok := s.prices[overrideKey(assetID, venueID)]
	s.mu.RUnlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			kind := domain.ErrSourceUnavailable
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				kind = domain.ErrSourceTimeout
			}
			return domain.Quote{}, fmt.Errorf("pricesource/static: %s on %s: %w: %w", assetID, venueID, kind, ctx.Err())
		}
	}
	if failure != nil {
		return domain.Quote{}, failure
	}
	if !ok {
		return domain.Quote{}, fmt.Errorf("pricesource/static: %w: no price for %s on %s", domain.ErrSourceUnavailable, assetID, venueID)
	}
	return domain.Quote{
		AssetID:    assetID,
		VenueID:    venueID,
		Price:      price,
		ObservedAt: time.Now().UTC(),
	}, nil
}
