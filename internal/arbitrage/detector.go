package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/chainarb/internal/aggregator"
	"github.com/alanyoungcy/chainarb/internal/domain"
	"github.com/alanyoungcy/chainarb/internal/gas"
	"github.com/alanyoungcy/chainarb/internal/metrics"
)

// PriceAggregator collects the venue prices of one asset.
type PriceAggregator interface {
	Aggregate(ctx context.Context, assetID string, venues []string) (aggregator.Snapshot, error)
}

// DetectorConfig configures the detector.
type DetectorConfig struct {
	Assets                    []string
	Venues                    []string
	MinProfitThresholdPercent float64
	TradeSize                 float64
	FetchTimeout              time.Duration
	// MaxConcurrency bounds assets processed in parallel and in-flight
	// fetches per asset.
	MaxConcurrency int

	Source domain.PriceSource
	Gas    *gas.Model
	// Aggregator overrides the aggregator built from Source.
	Aggregator PriceAggregator
	Logger     *slog.Logger
}

// Detector runs detection cycles over every tracked asset. Apart from the
// gas table it keeps no state between calls.
type Detector struct {
	assets         []string
	venues         []string
	maxConcurrency int
	agg            PriceAggregator
	gas            *gas.Model
	scorer         *Scorer
	logger         *slog.Logger
	now            func() time.Time
}

// NewDetector validates cfg and creates a detector. Every configuration
// problem is reported in one error wrapping domain.ErrInvalidConfig.
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	var problems []string
	if len(cfg.Assets) == 0 {
		problems = append(problems, "no assets configured")
	}
	seen := make(map[string]bool, len(cfg.Assets))
	for _, a := range cfg.Assets {
		key := a
		if strings.HasPrefix(a, "0x") || strings.HasPrefix(a, "0X") {
			key = strings.ToLower(a)
		}
		if seen[key] {
			problems = append(problems, fmt.Sprintf("duplicate asset %q", a))
		}
		seen[key] = true
	}
	if len(cfg.Venues) == 0 {
		problems = append(problems, "no venues configured")
	}
	if cfg.FetchTimeout <= 0 {
		problems = append(problems, "fetch timeout must be positive")
	}
	if cfg.Gas == nil {
		problems = append(problems, "gas model is required")
	}
	if cfg.Source == nil && cfg.Aggregator == nil {
		problems = append(problems, "price source is required")
	}
	scoring := ScorerConfig{
		MinProfitThresholdPercent: cfg.MinProfitThresholdPercent,
		TradeSize:                 cfg.TradeSize,
	}
	problems = append(problems, scoring.validate()...)
	if len(problems) > 0 {
		return nil, fmt.Errorf("arbitrage: %w: %s", domain.ErrInvalidConfig, strings.Join(problems, "; "))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.MaxConcurrency
	if limit <= 0 {
		limit = len(cfg.Assets)
	}

	scorer, err := NewScorer(scoring, cfg.Gas)
	if err != nil {
		return nil, err
	}

	agg := cfg.Aggregator
	if agg == nil {
		a, err := aggregator.New(aggregator.Config{
			Source:         cfg.Source,
			FetchTimeout:   cfg.FetchTimeout,
			MaxConcurrency: limit,
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("arbitrage: %w", err)
		}
		agg = a
	}

	return &Detector{
		assets:         slices.Clone(cfg.Assets),
		venues:         slices.Clone(cfg.Venues),
		maxConcurrency: limit,
		agg:            agg,
		gas:            cfg.Gas,
		scorer:         scorer,
		logger:         logger.With(slog.String("component", "detector")),
		now:            time.Now,
	}, nil
}

// Assets returns the tracked assets.
func (d *Detector) Assets() []string { return slices.Clone(d.assets) }

// Venues returns the configured venues.
func (d *Detector) Venues() []string { return slices.Clone(d.venues) }

// Detect runs one cycle and returns its opportunities, sorted by net profit
// descending, then confidence descending, then id ascending.
func (d *Detector) Detect(ctx context.Context) ([]domain.Opportunity, error) {
	cycle, err := d.DetectCycle(ctx)
	if err != nil {
		return nil, err
	}
	return cycle.Opportunities, nil
}

type assetResult struct {
	opportunities []domain.Opportunity
	failures      []domain.SourceFailure
	assetFailure  *domain.AssetFailure
}

// DetectCycle runs one cycle and returns the full report. A failure on one
// asset is recorded in the report and never aborts the others; only
// cancellation of ctx fails the call.
func (d *Detector) DetectCycle(ctx context.Context) (domain.Cycle, error) {
	started := d.now().UTC()

	if err := d.gas.RefreshIfStale(ctx); err != nil {
		d.logger.WarnContext(ctx, "gas table refresh failed, keeping previous table",
			slog.String("error", err.Error()),
		)
	}
	gaps := d.gas.Missing(d.venues)
	for _, venue := range gaps {
		metrics.GasFallbacks.WithLabelValues(venue).Inc()
		d.logger.WarnContext(ctx, "gas_fallback: venue missing from gas table, using default entry",
			slog.String("venue", venue),
		)
	}

	results := make([]assetResult, len(d.assets))
	var g errgroup.Group
	g.SetLimit(d.maxConcurrency)
	for i, asset := range d.assets {
		g.Go(func() error {
			results[i] = d.processAsset(ctx, asset, started)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return domain.Cycle{}, fmt.Errorf("arbitrage: detection cycle: %w", err)
	}

	cycle := domain.Cycle{
		StartedAt:     started,
		Opportunities: []domain.Opportunity{},
		ConfigGaps:    gaps,
	}
	for _, r := range results {
		cycle.Opportunities = append(cycle.Opportunities, r.opportunities...)
		cycle.SourceFailures = append(cycle.SourceFailures, r.failures...)
		if r.assetFailure != nil {
			cycle.AssetFailures = append(cycle.AssetFailures, *r.assetFailure)
		}
	}
	slices.SortFunc(cycle.Opportunities, domain.CompareOpportunities)
	cycle.Duration = d.now().Sub(started)

	metrics.Cycles.Inc()
	metrics.CycleDuration.Observe(cycle.Duration.Seconds())
	metrics.Opportunities.Set(float64(len(cycle.Opportunities)))

	d.logger.InfoContext(ctx, "detection cycle complete",
		slog.Int("opportunities", len(cycle.Opportunities)),
		slog.Int("source_failures", len(cycle.SourceFailures)),
		slog.Int("asset_failures", len(cycle.AssetFailures)),
		slog.Duration("duration", cycle.Duration),
	)
	return cycle, nil
}

func (d *Detector) processAsset(ctx context.Context, assetID string, cycle time.Time) (res assetResult) {
	defer func() {
		if r := recover(); r != nil {
			res = d.assetFailed(ctx, assetID, fmt.Errorf("panic: %v", r))
		}
	}()

	snap, err := d.agg.Aggregate(ctx, assetID, d.venues)
	if err != nil {
		if ctx.Err() != nil {
			return assetResult{}
		}
		return d.assetFailed(ctx, assetID, err)
	}
	res.failures = snap.Failures

	// Walk venues in configured order so pair orientation is stable.
	present := make([]string, 0, len(snap.Prices))
	for _, v := range d.venues {
		if _, ok := snap.Prices[v]; ok && !slices.Contains(present, v) {
			present = append(present, v)
		}
	}
	for i := 0; i < len(present); i++ {
		for j := i + 1; j < len(present); j++ {
			a, b := present[i], present[j]
			if opp, ok := d.scorer.Score(assetID, a, snap.Prices[a], b, snap.Prices[b], cycle); ok {
				res.opportunities = append(res.opportunities, opp)
			}
		}
	}
	return res
}

func (d *Detector) assetFailed(ctx context.Context, assetID string, err error) assetResult {
	metrics.AssetFailures.Inc()
	d.logger.ErrorContext(ctx, "asset processing failed",
		slog.String("asset", assetID),
		slog.String("error", err.Error()),
	)
	return assetResult{assetFailure: &domain.AssetFailure{AssetID: assetID, Err: err.Error()}}
}
