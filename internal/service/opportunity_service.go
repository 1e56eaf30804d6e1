package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// Bus channels and lock keys used by the detection loop.
const (
	OpportunitiesChannel = "opportunities"
	detectCycleLock      = "detect-cycle"
)

// CycleDetector runs one detection cycle.
type CycleDetector interface {
	DetectCycle(ctx context.Context) (domain.Cycle, error)
}

// OpportunityNotifier announces a single opportunity.
type OpportunityNotifier interface {
	NotifyOpportunity(ctx context.Context, opp domain.Opportunity) error
}

// OpportunityConfig tunes the detect loop and what happens to each cycle.
type OpportunityConfig struct {
	// Interval between detection cycles in Run. Also the cycle lock TTL.
	Interval time.Duration
	// TTL is how long a recorded opportunity stays active.
	TTL time.Duration
	// MinNotifyProfit is the smallest net profit that triggers a
	// notification.
	MinNotifyProfit float64
	// ArchiveInterval and ArchiveRetention drive the periodic archive run.
	// A zero interval disables archiving.
	ArchiveInterval  time.Duration
	ArchiveRetention time.Duration
}

// OpportunityDeps are the collaborators of OpportunityService. Only
// Detector is required; a nil dependency disables what it backs.
type OpportunityDeps struct {
	Detector CycleDetector
	Store    domain.OpportunityStore
	Bus      domain.SignalBus
	Audit    domain.AuditStore
	Locks    domain.LockManager
	Notifier OpportunityNotifier
	Archiver domain.Archiver
}

// OpportunityService runs detection and records what it finds: persistence,
// bus events, audit entries and notifications. Downstream failures are
// logged and never fail a cycle.
type OpportunityService struct {
	deps        OpportunityDeps
	cfg         OpportunityConfig
	logger      *slog.Logger
	now         func() time.Time
	lastArchive time.Time
}

// NewOpportunityService creates an OpportunityService.
func NewOpportunityService(deps OpportunityDeps, cfg OpportunityConfig, logger *slog.Logger) (*OpportunityService, error) {
	if deps.Detector == nil {
		return nil, fmt.Errorf("opportunity_service: %w: nil detector", domain.ErrInvalidConfig)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpportunityService{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "opportunity_service")),
		now:    time.Now,
	}, nil
}

// CycleEvent is the payload published on the opportunities channel once per
// cycle.
type CycleEvent struct {
	Event          string                 `json:"event"`
	StartedAt      time.Time              `json:"started_at"`
	Count          int                    `json:"count"`
	Opportunities  []domain.Opportunity   `json:"opportunities"`
	SourceFailures []domain.SourceFailure `json:"source_failures,omitempty"`
}

// DetectCycle runs one cycle and records it.
func (s *OpportunityService) DetectCycle(ctx context.Context) (domain.Cycle, error) {
	cycle, err := s.deps.Detector.DetectCycle(ctx)
	if err != nil {
		return domain.Cycle{}, fmt.Errorf("opportunity_service: detect: %w", err)
	}
	s.Record(ctx, cycle)
	return cycle, nil
}

// Detect runs one cycle, records it and returns the sorted opportunities.
func (s *OpportunityService) Detect(ctx context.Context) ([]domain.Opportunity, error) {
	cycle, err := s.DetectCycle(ctx)
	if err != nil {
		return nil, err
	}
	return cycle.Opportunities, nil
}

// DetectAsset runs a cycle and keeps only the opportunities for assetID.
func (s *OpportunityService) DetectAsset(ctx context.Context, assetID string) ([]domain.Opportunity, error) {
	opps, err := s.Detect(ctx)
	if err != nil {
		return nil, err
	}
	filtered := make([]domain.Opportunity, 0, len(opps))
	for _, o := range opps {
		if o.AssetID == assetID {
			filtered = append(filtered, o)
		}
	}
	return filtered, nil
}

// Record persists the cycle's opportunities, publishes one cycle event,
// writes an audit entry and notifies about the best opportunity.
func (s *OpportunityService) Record(ctx context.Context, cycle domain.Cycle) {
	if s.deps.Store != nil && len(cycle.Opportunities) > 0 {
		recs := make([]domain.OpportunityRecord, len(cycle.Opportunities))
		for i, o := range cycle.Opportunities {
			recs[i] = domain.OpportunityRecord{
				Opportunity: o,
				Status:      domain.OpportunityActive,
				ExpiresAt:   o.DetectedAt.Add(s.cfg.TTL),
			}
		}
		if err := s.deps.Store.UpsertBatch(ctx, recs); err != nil {
			s.logger.WarnContext(ctx, "persist opportunities failed",
				slog.Int("count", len(recs)),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.deps.Bus != nil {
		evt, _ := json.Marshal(CycleEvent{
			Event:          "opportunities_detected",
			StartedAt:      cycle.StartedAt,
			Count:          len(cycle.Opportunities),
			Opportunities:  cycle.Opportunities,
			SourceFailures: cycle.SourceFailures,
		})
		if err := s.deps.Bus.Publish(ctx, OpportunitiesChannel, evt); err != nil {
			s.logger.WarnContext(ctx, "publish cycle event failed",
				slog.String("error", err.Error()),
			)
		}
	}

	if s.deps.Audit != nil {
		if err := s.deps.Audit.Log(ctx, "detection_cycle", map[string]any{
			"started_at":      cycle.StartedAt.Format(time.RFC3339Nano),
			"duration_ms":     cycle.Duration.Milliseconds(),
			"opportunities":   len(cycle.Opportunities),
			"source_failures": len(cycle.SourceFailures),
			"asset_failures":  len(cycle.AssetFailures),
			"config_gaps":     cycle.ConfigGaps,
		}); err != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	if s.deps.Notifier != nil && len(cycle.Opportunities) > 0 {
		best := cycle.Opportunities[0]
		if best.NetProfit >= s.cfg.MinNotifyProfit {
			if err := s.deps.Notifier.NotifyOpportunity(ctx, best); err != nil {
				s.logger.WarnContext(ctx, "notify failed",
					slog.String("opp_id", best.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Run detects every Interval until ctx is cancelled. With a lock manager,
// only the replica holding the cycle lock detects on a given tick.
func (s *OpportunityService) Run(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		return fmt.Errorf("opportunity_service: %w: interval must be positive", domain.ErrInvalidConfig)
	}
	s.logger.InfoContext(ctx, "detect loop started", slog.Duration("interval", s.cfg.Interval))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "detect loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tick runs a single guarded iteration of the detect loop.
func (s *OpportunityService) tick(ctx context.Context) {
	if s.deps.Locks != nil {
		unlock, err := s.deps.Locks.Acquire(ctx, detectCycleLock, s.cfg.Interval)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				s.logger.DebugContext(ctx, "cycle lock held elsewhere, skipping tick")
			} else {
				s.logger.WarnContext(ctx, "acquire cycle lock failed", slog.String("error", err.Error()))
			}
			return
		}
		defer unlock()
	}

	if _, err := s.DetectCycle(ctx); err != nil {
		if ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "detection cycle failed", slog.String("error", err.Error()))
		}
		return
	}

	if s.deps.Store != nil {
		if n, err := s.ExpireStale(ctx); err != nil {
			s.logger.WarnContext(ctx, "expire stale opportunities failed", slog.String("error", err.Error()))
		} else if n > 0 {
			s.logger.InfoContext(ctx, "expired stale opportunities", slog.Int64("count", n))
		}
	}
	s.maybeArchive(ctx)
}

func (s *OpportunityService) maybeArchive(ctx context.Context) {
	if s.deps.Archiver == nil || s.cfg.ArchiveInterval <= 0 {
		return
	}
	now := s.now()
	if !s.lastArchive.IsZero() && now.Sub(s.lastArchive) < s.cfg.ArchiveInterval {
		return
	}
	s.lastArchive = now

	n, err := s.deps.Archiver.ArchiveOpportunities(ctx, now.Add(-s.cfg.ArchiveRetention))
	if err != nil {
		s.logger.WarnContext(ctx, "archive run failed", slog.String("error", err.Error()))
		return
	}
	s.logger.InfoContext(ctx, "archive run complete", slog.Int64("archived", n))
}

// ListActive returns persisted active opportunities, best first.
func (s *OpportunityService) ListActive(ctx context.Context, limit int) ([]domain.OpportunityRecord, error) {
	if s.deps.Store == nil {
		return nil, fmt.Errorf("opportunity_service: list active: %w: no store", domain.ErrInvalidConfig)
	}
	recs, err := s.deps.Store.ListActive(ctx, domain.ListOpts{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("opportunity_service: list active: %w", err)
	}
	return recs, nil
}

// ListByAsset returns persisted opportunities for one asset, newest first.
func (s *OpportunityService) ListByAsset(ctx context.Context, assetID string, limit int) ([]domain.OpportunityRecord, error) {
	if s.deps.Store == nil {
		return nil, fmt.Errorf("opportunity_service: list by asset: %w: no store", domain.ErrInvalidConfig)
	}
	recs, err := s.deps.Store.ListByAsset(ctx, assetID, domain.ListOpts{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("opportunity_service: list by asset %q: %w", assetID, err)
	}
	return recs, nil
}

// Get returns a persisted opportunity.
func (s *OpportunityService) Get(ctx context.Context, id string) (domain.OpportunityRecord, error) {
	if s.deps.Store == nil {
		return domain.OpportunityRecord{}, fmt.Errorf("opportunity_service: get: %w: no store", domain.ErrInvalidConfig)
	}
	rec, err := s.deps.Store.GetByID(ctx, id)
	if err != nil {
		return domain.OpportunityRecord{}, fmt.Errorf("opportunity_service: get %q: %w", id, err)
	}
	return rec, nil
}

// ExpireStale marks active opportunities past their expiry as expired.
func (s *OpportunityService) ExpireStale(ctx context.Context) (int64, error) {
	if s.deps.Store == nil {
		return 0, nil
	}
	n, err := s.deps.Store.ExpireStale(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("opportunity_service: expire stale: %w", err)
	}
	return n, nil
}
