package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

func TestDSN(t *testing.T) {
	got := DSN(ClientConfig{Host: "db", Database: "chainarb", User: "arb", Password: "p@ss"})
	assert.Equal(t, "postgres://arb:p%40ss@db:5432/chainarb?sslmode=disable", got)

	explicit := DSN(ClientConfig{DSN: "postgres://x@y/z", Host: "ignored"})
	assert.Equal(t, "postgres://x@y/z", explicit)
}

func record(asset, buy, sell string, net float64, detected time.Time) domain.OpportunityRecord {
	return domain.OpportunityRecord{
		Opportunity: domain.Opportunity{
			ID:              uuid.NewString(),
			AssetID:         asset,
			BuyVenue:        buy,
			SellVenue:       sell,
			BuyPrice:        1.0,
			SellPrice:       1.01,
			PriceDifference: 1.0,
			GrossProfit:     net + 1,
			ExecutionCost:   1,
			NetProfit:       net,
			ConfidenceScore: 0.8,
			DetectedAt:      detected,
		},
		Status:    domain.OpportunityActive,
		ExpiresAt: detected.Add(time.Hour),
	}
}

func TestOpportunityStore(t *testing.T) {
	client := setupTestDB(t)
	ctx := context.Background()
	store := NewOpportunityStore(client.Pool())

	now := time.Now().UTC().Truncate(time.Microsecond)
	best := record("0xA", "ethereum", "polygon", 20, now)
	worse := record("0xA", "bsc", "arbitrum", 5, now)
	old := record("0xB", "ethereum", "optimism", 50, now.Add(-48*time.Hour))

	require.NoError(t, client.RunMigrations(ctx), "migrations must be idempotent")
	require.NoError(t, store.UpsertBatch(ctx, []domain.OpportunityRecord{worse, best, old}))
	require.NoError(t, store.UpsertBatch(ctx, []domain.OpportunityRecord{best}), "re-upsert is a no-op")

	got, err := store.GetByID(ctx, best.ID)
	require.NoError(t, err)
	assert.Equal(t, best, got)

	_, err = store.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	active, err := store.ListActive(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, active, 2, "the old row has already expired")
	assert.Equal(t, best.ID, active[0].ID)
	assert.Equal(t, worse.ID, active[1].ID)

	byAsset, err := store.ListByAsset(ctx, "0xA", domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, byAsset, 1)

	require.NoError(t, store.UpdateStatus(ctx, worse.ID, domain.OpportunityExecutionRequested))
	assert.ErrorIs(t, store.UpdateStatus(ctx, uuid.NewString(), domain.OpportunityExpired), domain.ErrNotFound)

	expired, err := store.ExpireStale(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	before, err := store.ListBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Equal(t, old.ID, before[0].ID)
	assert.Equal(t, domain.OpportunityExpired, before[0].Status)

	deleted, err := store.DeleteBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestUserAndExecutionStores(t *testing.T) {
	client := setupTestDB(t)
	ctx := context.Background()
	users := NewUserStore(client.Pool())
	execs := NewExecutionStore(client.Pool())

	u := domain.User{
		ID:            uuid.NewString(),
		Email:         "trader@example.com",
		WalletAddress: "0x1111111111111111111111111111111111111111",
		APIKeyDigest:  "digest-1",
		Tier:          domain.TierFree,
		IsActive:      true,
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, users.Create(ctx, u))

	dup := u
	dup.ID = uuid.NewString()
	dup.APIKeyDigest = "digest-2"
	assert.ErrorIs(t, users.Create(ctx, dup), domain.ErrAlreadyExists)

	got, err := users.GetByAPIKeyDigest(ctx, "digest-1")
	require.NoError(t, err)
	assert.Equal(t, u, got)

	_, err = users.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	e := domain.Execution{
		ID:              uuid.NewString(),
		OpportunityID:   uuid.NewString(),
		UserID:          u.ID,
		ExecutorAddress: u.WalletAddress,
		AmountRequested: 1000,
		EstimatedProfit: 12.5,
		Status:          domain.ExecutionPending,
		RequestedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, execs.Create(ctx, e))

	gotExec, err := execs.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e, gotExec)

	list, err := execs.ListByUser(ctx, u.ID, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAuditStore(t *testing.T) {
	client := setupTestDB(t)
	ctx := context.Background()
	audit := NewAuditStore(client.Pool())

	require.NoError(t, audit.Log(ctx, "archive_completed", map[string]any{"rows": float64(3)}))
	require.NoError(t, audit.Log(ctx, "user_created", nil))

	entries, err := audit.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "user_created", entries[0].Event)
	assert.Equal(t, float64(3), entries[1].Detail["rows"])
}
