package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OpportunityStore persists detected opportunities.
type OpportunityStore interface {
	UpsertBatch(ctx context.Context, recs []OpportunityRecord) error
	GetByID(ctx context.Context, id string) (OpportunityRecord, error)
	ListActive(ctx context.Context, opts ListOpts) ([]OpportunityRecord, error)
	ListByAsset(ctx context.Context, assetID string, opts ListOpts) ([]OpportunityRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]OpportunityRecord, error)
	UpdateStatus(ctx context.Context, id string, status OpportunityStatus) error
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ExecutionStore persists execution requests.
type ExecutionStore interface {
	Create(ctx context.Context, exec Execution) error
	GetByID(ctx context.Context, id string) (Execution, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Execution, error)
}

// UserStore persists API users.
type UserStore interface {
	Create(ctx context.Context, u User) error
	GetByID(ctx context.Context, id string) (User, error)
	GetByAPIKeyDigest(ctx context.Context, digest string) (User, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
