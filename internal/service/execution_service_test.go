package service

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

const testWallet = "0x52908400098527886e0f7030069857d2e4169ee7"

func seededOpps(t *testing.T, now time.Time) *memOppStore {
	t.Helper()
	store := newMemOppStore()
	require.NoError(t, store.UpsertBatch(context.Background(), []domain.OpportunityRecord{
		{
			Opportunity: domain.Opportunity{ID: "live", AssetID: "0xA", NetProfit: 12.5, DetectedAt: now},
			Status:      domain.OpportunityActive,
			ExpiresAt:   now.Add(time.Hour),
		},
		{
			Opportunity: domain.Opportunity{ID: "stale", AssetID: "0xA", NetProfit: 5, DetectedAt: now.Add(-2 * time.Hour)},
			Status:      domain.OpportunityActive,
			ExpiresAt:   now.Add(-time.Hour),
		},
		{
			Opportunity: domain.Opportunity{ID: "flat", AssetID: "0xA", NetProfit: 0, DetectedAt: now},
			Status:      domain.OpportunityActive,
			ExpiresAt:   now.Add(time.Hour),
		},
	}))
	return store
}

func TestExecutionServiceRequest(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	opps := seededOpps(t, now)
	execs := &memExecStore{}
	bus := newMemBus()
	audit := &memAudit{}

	svc := NewExecutionService(opps, execs, bus, audit, discardLogger())
	svc.now = func() time.Time { return now }

	user := domain.User{ID: "u1", WalletAddress: testWallet}
	resp, err := svc.Request(context.Background(), user, ExecutionRequest{OpportunityID: "live"})
	require.NoError(t, err)

	assert.Equal(t, "execution_started", resp.Status)
	assert.Equal(t, "live", resp.OpportunityID)
	assert.Equal(t, 12.5, resp.EstimatedProfit)
	assert.NotEmpty(t, resp.ExecutionID)

	require.Len(t, execs.execs, 1)
	exec := execs.execs[0]
	assert.Equal(t, DefaultExecutionAmount, exec.AmountRequested)
	assert.Equal(t, "0x52908400098527886E0F7030069857D2E4169EE7", exec.ExecutorAddress)
	assert.Equal(t, domain.ExecutionPending, exec.Status)

	rec, err := opps.GetByID(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, domain.OpportunityExecutionRequested, rec.Status)

	require.Len(t, bus.streams[ExecutionsStream], 1)
	var streamed domain.Execution
	require.NoError(t, json.Unmarshal(bus.streams[ExecutionsStream][0], &streamed))
	assert.Equal(t, exec.ID, streamed.ID)
	assert.Equal(t, []string{"execution_requested"}, audit.events)
}

func TestExecutionServiceRejects(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	user := domain.User{ID: "u1", WalletAddress: testWallet}

	tests := []struct {
		name string
		req  ExecutionRequest
		want error
	}{
		{"unknown opportunity", ExecutionRequest{OpportunityID: "nope"}, domain.ErrNotFound},
		{"expired", ExecutionRequest{OpportunityID: "stale"}, domain.ErrOpportunityExpired},
		{"not profitable", ExecutionRequest{OpportunityID: "flat"}, domain.ErrNotProfitable},
		{"bad wallet", ExecutionRequest{OpportunityID: "live", WalletAddress: "0x123"}, domain.ErrInvalidAddress},
		{"missing id", ExecutionRequest{}, domain.ErrInvalidInput},
		{"negative amount", ExecutionRequest{OpportunityID: "live", Amount: -1}, domain.ErrInvalidInput},
		{"nan amount", ExecutionRequest{OpportunityID: "live", Amount: math.NaN()}, domain.ErrInvalidInput},
		{"infinite amount", ExecutionRequest{OpportunityID: "live", Amount: math.Inf(1)}, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			execs := &memExecStore{}
			svc := NewExecutionService(seededOpps(t, now), execs, nil, nil, discardLogger())
			svc.now = func() time.Time { return now }

			_, err := svc.Request(context.Background(), user, tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, execs.execs)
		})
	}
}
