package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

var detectedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleCycle() domain.Cycle {
	return domain.Cycle{
		StartedAt: detectedAt,
		Opportunities: []domain.Opportunity{
			{ID: "a", AssetID: "0xA", BuyVenue: "bsc", SellVenue: "ethereum", NetProfit: 150, ConfidenceScore: 0.8, DetectedAt: detectedAt},
			{ID: "b", AssetID: "0xB", BuyVenue: "polygon", SellVenue: "ethereum", NetProfit: 20, ConfidenceScore: 0.5, DetectedAt: detectedAt},
		},
	}
}

func TestOpportunityServiceRecord(t *testing.T) {
	store := newMemOppStore()
	bus := newMemBus()
	audit := &memAudit{}
	notifier := &fakeNotifier{}

	svc, err := NewOpportunityService(OpportunityDeps{
		Detector: &fakeDetector{cycles: []domain.Cycle{sampleCycle()}},
		Store:    store,
		Bus:      bus,
		Audit:    audit,
		Notifier: notifier,
	}, OpportunityConfig{TTL: time.Hour, MinNotifyProfit: 100}, discardLogger())
	require.NoError(t, err)

	opps, err := svc.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, opps, 2)

	rec, err := store.GetByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, domain.OpportunityActive, rec.Status)
	assert.Equal(t, detectedAt.Add(time.Hour), rec.ExpiresAt)

	require.Len(t, bus.published[OpportunitiesChannel], 1, "one event per cycle")
	var evt CycleEvent
	require.NoError(t, json.Unmarshal(bus.published[OpportunitiesChannel][0], &evt))
	assert.Equal(t, 2, evt.Count)
	assert.Equal(t, "opportunities_detected", evt.Event)

	assert.Equal(t, []string{"detection_cycle"}, audit.events)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "a", notifier.sent[0].ID)
}

func TestOpportunityServiceNotifyThreshold(t *testing.T) {
	notifier := &fakeNotifier{}
	svc, err := NewOpportunityService(OpportunityDeps{
		Detector: &fakeDetector{cycles: []domain.Cycle{sampleCycle()}},
		Notifier: notifier,
	}, OpportunityConfig{MinNotifyProfit: 1000}, discardLogger())
	require.NoError(t, err)

	_, err = svc.Detect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, notifier.sent)
}

func TestOpportunityServiceStoreFailureDoesNotFailCycle(t *testing.T) {
	store := newMemOppStore()
	store.err = errors.New("db down")
	svc, err := NewOpportunityService(OpportunityDeps{
		Detector: &fakeDetector{cycles: []domain.Cycle{sampleCycle()}},
		Store:    store,
	}, OpportunityConfig{}, discardLogger())
	require.NoError(t, err)

	opps, err := svc.Detect(context.Background())
	require.NoError(t, err)
	assert.Len(t, opps, 2)
}

func TestOpportunityServiceDetectAsset(t *testing.T) {
	svc, err := NewOpportunityService(OpportunityDeps{
		Detector: &fakeDetector{cycles: []domain.Cycle{sampleCycle()}},
	}, OpportunityConfig{}, discardLogger())
	require.NoError(t, err)

	opps, err := svc.DetectAsset(context.Background(), "0xB")
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, "b", opps[0].ID)

	none, err := svc.DetectAsset(context.Background(), "0xC")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestOpportunityServiceDetectError(t *testing.T) {
	svc, err := NewOpportunityService(OpportunityDeps{
		Detector: &fakeDetector{err: context.Canceled},
	}, OpportunityConfig{}, discardLogger())
	require.NoError(t, err)

	_, err = svc.Detect(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpportunityServiceRequiresDetector(t *testing.T) {
	_, err := NewOpportunityService(OpportunityDeps{}, OpportunityConfig{}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestOpportunityServiceRunSkipsWhenLockHeld(t *testing.T) {
	det := &fakeDetector{}
	svc, err := NewOpportunityService(OpportunityDeps{
		Detector: det,
		Locks:    heldLocks{},
	}, OpportunityConfig{Interval: 10 * time.Millisecond}, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = svc.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, det.Calls())
}

func TestOpportunityServiceRunDetectsRepeatedly(t *testing.T) {
	det := &fakeDetector{}
	svc, err := NewOpportunityService(OpportunityDeps{Detector: det},
		OpportunityConfig{Interval: 5 * time.Millisecond}, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return det.Calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestOpportunityServiceRunRejectsZeroInterval(t *testing.T) {
	svc, err := NewOpportunityService(OpportunityDeps{Detector: &fakeDetector{}}, OpportunityConfig{}, discardLogger())
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Run(context.Background()), domain.ErrInvalidConfig)
}

func TestOpportunityServiceExpiryAndArchive(t *testing.T) {
	store := newMemOppStore()
	archiver := &fakeArchiver{}
	svc, err := NewOpportunityService(OpportunityDeps{
		Detector: &fakeDetector{cycles: []domain.Cycle{sampleCycle()}},
		Store:    store,
		Archiver: archiver,
	}, OpportunityConfig{
		Interval:         time.Minute,
		TTL:              time.Hour,
		ArchiveInterval:  24 * time.Hour,
		ArchiveRetention: 7 * 24 * time.Hour,
	}, discardLogger())
	require.NoError(t, err)

	now := detectedAt.Add(2 * time.Hour)
	svc.now = func() time.Time { return now }

	svc.tick(context.Background())
	rec, err := store.GetByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, domain.OpportunityExpired, rec.Status)

	require.Len(t, archiver.cutoffs, 1)
	assert.Equal(t, now.Add(-7*24*time.Hour), archiver.cutoffs[0])

	svc.tick(context.Background())
	assert.Len(t, archiver.cutoffs, 1, "archive runs once per interval")
}

func TestOpportunityServiceListsNeedStore(t *testing.T) {
	svc, err := NewOpportunityService(OpportunityDeps{Detector: &fakeDetector{}}, OpportunityConfig{}, discardLogger())
	require.NoError(t, err)

	_, err = svc.ListActive(context.Background(), 10)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	_, err = svc.Get(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestOpportunityServiceListActive(t *testing.T) {
	store := newMemOppStore()
	svc, err := NewOpportunityService(OpportunityDeps{
		Detector: &fakeDetector{cycles: []domain.Cycle{sampleCycle()}},
		Store:    store,
	}, OpportunityConfig{}, discardLogger())
	require.NoError(t, err)

	_, err = svc.Detect(context.Background())
	require.NoError(t, err)

	recs, err := svc.ListActive(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].ID)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
