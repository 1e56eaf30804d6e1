package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

const apiKeyBytes = 32

// UserService registers API users and authenticates their keys. Keys are
// returned once at creation; only their blake2b-256 digest is stored.
type UserService struct {
	users  domain.UserStore
	audit  domain.AuditStore
	logger *slog.Logger
	now    func() time.Time
}

// NewUserService creates a UserService. audit may be nil.
func NewUserService(users domain.UserStore, audit domain.AuditStore, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		users:  users,
		audit:  audit,
		logger: logger.With(slog.String("component", "user_service")),
		now:    time.Now,
	}
}

// Create registers a user and returns it with its plaintext API key. An
// empty tier means free. Duplicate emails or wallets yield
// domain.ErrAlreadyExists.
func (s *UserService) Create(ctx context.Context, email, wallet string, tier domain.UserTier) (domain.User, string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return domain.User{}, "", fmt.Errorf("user_service: %w: email %q: %v", domain.ErrInvalidInput, email, err)
	}
	if !common.IsHexAddress(wallet) {
		return domain.User{}, "", fmt.Errorf("user_service: wallet %q: %w", wallet, domain.ErrInvalidAddress)
	}
	if tier == "" {
		tier = domain.TierFree
	}
	if !tier.Valid() {
		return domain.User{}, "", fmt.Errorf("user_service: %w: unknown tier %q", domain.ErrInvalidInput, tier)
	}

	key, err := newAPIKey()
	if err != nil {
		return domain.User{}, "", fmt.Errorf("user_service: generate api key: %w", err)
	}

	u := domain.User{
		ID:            uuid.NewString(),
		Email:         strings.ToLower(addr.Address),
		WalletAddress: common.HexToAddress(wallet).Hex(),
		APIKeyDigest:  DigestAPIKey(key),
		Tier:          tier,
		IsActive:      true,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return domain.User{}, "", fmt.Errorf("user_service: create user: %w", err)
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, "user_created", map[string]any{
			"user_id": u.ID,
			"tier":    string(u.Tier),
		}); err != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "user created",
		slog.String("user_id", u.ID),
		slog.String("tier", string(u.Tier)),
	)
	return u, key, nil
}

// Authenticate resolves an API key to an active user. Unknown keys and
// inactive users both yield domain.ErrUnauthorized.
func (s *UserService) Authenticate(ctx context.Context, apiKey string) (domain.User, error) {
	if apiKey == "" {
		return domain.User{}, domain.ErrUnauthorized
	}
	u, err := s.users.GetByAPIKeyDigest(ctx, DigestAPIKey(apiKey))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.ErrUnauthorized
		}
		return domain.User{}, fmt.Errorf("user_service: authenticate: %w", err)
	}
	if !u.IsActive {
		return domain.User{}, domain.ErrUnauthorized
	}
	return u, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id string) (domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("user_service: get %q: %w", id, err)
	}
	return u, nil
}

// DigestAPIKey returns the hex blake2b-256 digest stored for an API key.
func DigestAPIKey(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func newAPIKey() (string, error) {
	buf := make([]byte, apiKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
