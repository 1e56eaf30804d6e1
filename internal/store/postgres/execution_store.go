package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionSelectCols = `id, opportunity_id, user_id, executor_address,
	amount_requested, estimated_profit, transaction_hash, actual_profit,
	gas_used, status, requested_at`

// Create inserts an execution request.
func (s *ExecutionStore) Create(ctx context.Context, exec domain.Execution) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO executions (`+executionSelectCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		exec.ID, exec.OpportunityID, exec.UserID, exec.ExecutorAddress,
		exec.AmountRequested, exec.EstimatedProfit, exec.TransactionHash, exec.ActualProfit,
		exec.GasUsed, string(exec.Status), exec.RequestedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert execution %s: %w", exec.ID, err)
	}
	return nil
}

// GetByID returns an execution or domain.ErrNotFound.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.Execution, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+executionSelectCols+` FROM executions WHERE id = $1`, id)
	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Execution{}, domain.ErrNotFound
		}
		return domain.Execution{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}
	return exec, nil
}

// ListByUser returns a user's executions, newest first.
func (s *ExecutionStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Execution, error) {
	query := `SELECT ` + executionSelectCols + ` FROM executions WHERE user_id = $1`
	args := []any{userID}
	query, args = applyTimeRange(query, args, "requested_at", opts)
	query += " ORDER BY requested_at DESC"
	query, args = applyPaging(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	execs := []domain.Execution{}
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		execs = append(execs, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list executions rows: %w", err)
	}
	return execs, nil
}

func scanExecution(row pgx.Row) (domain.Execution, error) {
	var e domain.Execution
	var status string
	if err := row.Scan(
		&e.ID, &e.OpportunityID, &e.UserID, &e.ExecutorAddress,
		&e.AmountRequested, &e.EstimatedProfit, &e.TransactionHash, &e.ActualProfit,
		&e.GasUsed, &status, &e.RequestedAt,
	); err != nil {
		return domain.Execution{}, err
	}
	e.Status = domain.ExecutionStatus(status)
	e.RequestedAt = e.RequestedAt.UTC()
	return e, nil
}

// Compile-time interface check.
var _ domain.ExecutionStore = (*ExecutionStore)(nil)
