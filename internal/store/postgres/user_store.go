package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new UserStore.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userSelectCols = `id, email, wallet_address, api_key_digest, tier, is_active, created_at`

// Create inserts a user. A duplicate email, wallet or key digest yields
// domain.ErrAlreadyExists.
func (s *UserStore) Create(ctx context.Context, u domain.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+userSelectCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.WalletAddress, u.APIKeyDigest, string(u.Tier), u.IsActive, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert user: %w", err)
	}
	return nil
}

// GetByID returns a user or domain.ErrNotFound.
func (s *UserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	return s.getOne(ctx, "id", id)
}

// GetByAPIKeyDigest returns the user owning the key digest or
// domain.ErrNotFound.
func (s *UserStore) GetByAPIKeyDigest(ctx context.Context, digest string) (domain.User, error) {
	return s.getOne(ctx, "api_key_digest", digest)
}

func (s *UserStore) getOne(ctx context.Context, column, value string) (domain.User, error) {
	var u domain.User
	var tier string
	err := s.pool.QueryRow(ctx,
		`SELECT `+userSelectCols+` FROM users WHERE `+column+` = $1`, value,
	).Scan(&u.ID, &u.Email, &u.WalletAddress, &u.APIKeyDigest, &tier, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user by %s: %w", column, err)
	}
	u.Tier = domain.UserTier(tier)
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

// Compile-time interface check.
var _ domain.UserStore = (*UserStore)(nil)
