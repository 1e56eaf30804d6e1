package service

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

func TestUserServiceCreateAndAuthenticate(t *testing.T) {
	users := newMemUserStore()
	audit := &memAudit{}
	svc := NewUserService(users, audit, discardLogger())

	u, key, err := svc.Create(context.Background(), "Trader@Example.com", testWallet, "")
	require.NoError(t, err)

	assert.Equal(t, "trader@example.com", u.Email)
	assert.Equal(t, domain.TierFree, u.Tier)
	assert.True(t, u.IsActive)

	raw, err := base64.RawURLEncoding.DecodeString(key)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	stored, err := users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, DigestAPIKey(key), stored.APIKeyDigest)
	assert.NotContains(t, stored.APIKeyDigest, key)

	got, err := svc.Authenticate(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, []string{"user_created"}, audit.events)
}

func TestUserServiceAuthenticateRejects(t *testing.T) {
	users := newMemUserStore()
	svc := NewUserService(users, nil, discardLogger())

	_, err := svc.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = svc.Authenticate(context.Background(), "unknown")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	u, key, err := svc.Create(context.Background(), "a@b.io", testWallet, domain.TierPro)
	require.NoError(t, err)
	u.IsActive = false
	users.users[u.ID] = u

	_, err = svc.Authenticate(context.Background(), key)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestUserServiceCreateValidation(t *testing.T) {
	svc := NewUserService(newMemUserStore(), nil, discardLogger())
	ctx := context.Background()

	_, _, err := svc.Create(ctx, "not-an-email", testWallet, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, _, err = svc.Create(ctx, "a@b.io", "wallet", "")
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, _, err = svc.Create(ctx, "a@b.io", testWallet, "platinum")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestUserServiceDuplicate(t *testing.T) {
	svc := NewUserService(newMemUserStore(), nil, discardLogger())
	ctx := context.Background()

	_, _, err := svc.Create(ctx, "a@b.io", testWallet, "")
	require.NoError(t, err)
	_, _, err = svc.Create(ctx, "A@B.io", "0x1111111111111111111111111111111111111111", "")
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}
