package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunitySelectCols = `id, asset_id, buy_venue, sell_venue,
	buy_price, sell_price, price_difference,
	gross_profit, execution_cost, net_profit, confidence_score,
	detected_at, expires_at, status`

// UpsertBatch stores a cycle's opportunities in one batch. Ids are
// deterministic per cycle, so re-recording the same cycle is a no-op apart
// from refreshing the computed fields.
func (s *OpportunityStore) UpsertBatch(ctx context.Context, recs []domain.OpportunityRecord) error {
	if len(recs) == 0 {
		return nil
	}

	const query = `
		INSERT INTO opportunities (
			id, asset_id, buy_venue, sell_venue,
			buy_price, sell_price, price_difference,
			gross_profit, execution_cost, net_profit, confidence_score,
			detected_at, expires_at, status
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14
		)
		ON CONFLICT (id) DO UPDATE SET
			buy_price        = EXCLUDED.buy_price,
			sell_price       = EXCLUDED.sell_price,
			price_difference = EXCLUDED.price_difference,
			gross_profit     = EXCLUDED.gross_profit,
			execution_cost   = EXCLUDED.execution_cost,
			net_profit       = EXCLUDED.net_profit,
			confidence_score = EXCLUDED.confidence_score,
			expires_at       = EXCLUDED.expires_at`

	batch := &pgx.Batch{}
	for _, r := range recs {
		batch.Queue(query,
			r.ID, r.AssetID, r.BuyVenue, r.SellVenue,
			r.BuyPrice, r.SellPrice, r.PriceDifference,
			r.GrossProfit, r.ExecutionCost, r.NetProfit, r.ConfidenceScore,
			r.DetectedAt, r.ExpiresAt, string(r.Status),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range recs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert opportunity batch item %d: %w", i, err)
		}
	}
	return nil
}

// GetByID returns one opportunity or domain.ErrNotFound.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.OpportunityRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+opportunitySelectCols+` FROM opportunities WHERE id = $1`, id)
	rec, err := scanOpportunity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OpportunityRecord{}, domain.ErrNotFound
		}
		return domain.OpportunityRecord{}, fmt.Errorf("postgres: get opportunity %s: %w", id, err)
	}
	return rec, nil
}

// ListActive returns active, unexpired opportunities, best first.
func (s *OpportunityStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.OpportunityRecord, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities
		WHERE status = 'active' AND expires_at > NOW()`
	args := []any{}
	query, args = applyTimeRange(query, args, "detected_at", opts)
	query += " ORDER BY net_profit DESC, confidence_score DESC, id ASC"
	query, args = applyPaging(query, args, opts)
	return s.list(ctx, "list active opportunities", query, args)
}

// ListByAsset returns opportunities for one asset, newest first.
func (s *OpportunityStore) ListByAsset(ctx context.Context, assetID string, opts domain.ListOpts) ([]domain.OpportunityRecord, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities WHERE asset_id = $1`
	args := []any{assetID}
	query, args = applyTimeRange(query, args, "detected_at", opts)
	query += " ORDER BY detected_at DESC, net_profit DESC"
	query, args = applyPaging(query, args, opts)
	return s.list(ctx, "list opportunities by asset", query, args)
}

// ListBefore returns every opportunity detected strictly before the cutoff.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.OpportunityRecord, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities
		WHERE detected_at < $1 ORDER BY detected_at ASC`
	return s.list(ctx, "list opportunities before", query, []any{before})
}

// UpdateStatus sets the lifecycle status of an opportunity.
func (s *OpportunityStore) UpdateStatus(ctx context.Context, id string, status domain.OpportunityStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE opportunities SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update opportunity status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ExpireStale marks active opportunities past their expiry as expired and
// returns how many changed.
func (s *OpportunityStore) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE opportunities SET status = 'expired' WHERE status = 'active' AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("postgres: expire stale opportunities: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteBefore removes opportunities detected strictly before the cutoff.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM opportunities WHERE detected_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func (s *OpportunityStore) list(ctx context.Context, what, query string, args []any) ([]domain.OpportunityRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", what, err)
	}
	defer rows.Close()

	recs := []domain.OpportunityRecord{}
	for rows.Next() {
		rec, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", what, err)
	}
	return recs, nil
}

// scanOpportunity scans a single row into a domain.OpportunityRecord.
func scanOpportunity(row pgx.Row) (domain.OpportunityRecord, error) {
	var r domain.OpportunityRecord
	var status string
	err := row.Scan(
		&r.ID, &r.AssetID, &r.BuyVenue, &r.SellVenue,
		&r.BuyPrice, &r.SellPrice, &r.PriceDifference,
		&r.GrossProfit, &r.ExecutionCost, &r.NetProfit, &r.ConfidenceScore,
		&r.DetectedAt, &r.ExpiresAt, &status,
	)
	if err != nil {
		return domain.OpportunityRecord{}, err
	}
	r.Status = domain.OpportunityStatus(status)
	r.DetectedAt = r.DetectedAt.UTC()
	r.ExpiresAt = r.ExpiresAt.UTC()
	return r, nil
}

// applyTimeRange appends Since/Until filters on column.
func applyTimeRange(query string, args []any, column string, opts domain.ListOpts) (string, []any) {
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND %s >= $%d", column, len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND %s <= $%d", column, len(args))
	}
	return query, args
}

// applyPaging appends LIMIT/OFFSET.
func applyPaging(query string, args []any, opts domain.ListOpts) (string, []any) {
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
