// Package aggregator fans a price request for one asset out to every
// configured venue and collects the venues that answered.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/chainarb/internal/domain"
	"github.com/alanyoungcy/chainarb/internal/metrics"
)

const defaultMaxConcurrency = 16

// Config configures an Aggregator.
type Config struct {
	Source       domain.PriceSource
	FetchTimeout time.Duration
	// MaxConcurrency bounds in-flight fetches per Aggregate call.
	MaxConcurrency int
	Logger         *slog.Logger
}

// Snapshot is the outcome of one Aggregate call. Prices only holds venues
// whose fetch succeeded.
type Snapshot struct {
	AssetID  string
	Prices   map[string]float64
	Quotes   map[string]domain.Quote
	Failures []domain.SourceFailure
}

// Aggregator queries a PriceSource concurrently across venues.
type Aggregator struct {
	source         domain.PriceSource
	fetchTimeout   time.Duration
	maxConcurrency int
	logger         *slog.Logger
}

// New validates cfg and returns an Aggregator.
func New(cfg Config) (*Aggregator, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("aggregator: %w: nil price source", domain.ErrInvalidConfig)
	}
	if cfg.FetchTimeout <= 0 {
		return nil, fmt.Errorf("aggregator: %w: fetch timeout must be positive", domain.ErrInvalidConfig)
	}
	limit := cfg.MaxConcurrency
	if limit <= 0 {
		limit = defaultMaxConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		source:         cfg.Source,
		fetchTimeout:   cfg.FetchTimeout,
		maxConcurrency: limit,
		logger:         logger.With(slog.String("component", "aggregator")),
	}, nil
}

type slot struct {
	quote   domain.Quote
	failure *domain.SourceFailure
}

// Aggregate fetches one quote per venue. It returns once every fetch has
// succeeded, failed or timed out. Failed venues are left out of Prices and
// listed in Failures. The only error returned is the parent context's.
func (a *Aggregator) Aggregate(ctx context.Context, assetID string, venues []string) (Snapshot, error) {
	venues = dedupe(venues)
	slots := make([]slot, len(venues))

	var g errgroup.Group
	g.SetLimit(a.maxConcurrency)
	for i, venue := range venues {
		g.Go(func() error {
			slots[i] = a.fetch(ctx, assetID, venue)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("aggregator: %s: %w", assetID, err)
	}

	snap := Snapshot{
		AssetID: assetID,
		Prices:  make(map[string]float64, len(venues)),
		Quotes:  make(map[string]domain.Quote, len(venues)),
	}
	for i, venue := range venues {
		if f := slots[i].failure; f != nil {
			snap.Failures = append(snap.Failures, *f)
			continue
		}
		snap.Prices[venue] = slots[i].quote.Price
		snap.Quotes[venue] = slots[i].quote
	}
	return snap, nil
}

func (a *Aggregator) fetch(ctx context.Context, assetID, venue string) (s slot) {
	fetchCtx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s = a.fail(ctx, assetID, venue, fmt.Errorf("%w: source panicked: %v", domain.ErrSourceUnavailable, r))
		}
	}()

	q, err := a.source.Quote(fetchCtx, assetID, venue)
	metrics.QuoteLatency.WithLabelValues(venue).Observe(time.Since(start).Seconds())
	if err != nil {
		return a.fail(ctx, assetID, venue, err)
	}
	if !(q.Price > 0) {
		return a.fail(ctx, assetID, venue, fmt.Errorf("%w: non-positive price %v", domain.ErrSourceUnavailable, q.Price))
	}
	q.AssetID = assetID
	q.VenueID = venue
	return slot{quote: q}
}

func (a *Aggregator) fail(ctx context.Context, assetID, venue string, err error) slot {
	kind := Classify(err)
	metrics.SourceFailures.WithLabelValues(venue, string(kind)).Inc()
	a.logger.WarnContext(ctx, "price source failed",
		slog.String("asset", assetID),
		slog.String("venue", venue),
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()),
	)
	return slot{failure: &domain.SourceFailure{
		AssetID: assetID,
		VenueID: venue,
		Kind:    kind,
		Err:     err.Error(),
	}}
}

// Classify maps a fetch error onto a FailureKind.
func Classify(err error) domain.FailureKind {
	switch {
	case errors.Is(err, domain.ErrSourceTimeout), errors.Is(err, context.DeadlineExceeded):
		return domain.FailureTimeout
	case errors.Is(err, context.Canceled):
		return domain.FailureCancelled
	default:
		return domain.FailureUnavailable
	}
}

func dedupe(venues []string) []string {
	seen := make(map[string]struct{}, len(venues))
	out := make([]string, 0, len(venues))
	for _, v := range venues {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
