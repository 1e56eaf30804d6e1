package domain

import "time"

// UserTier is the subscription tier of an API user.
type UserTier string

const (
	TierFree       UserTier = "free"
	TierPro        UserTier = "pro"
	TierEnterprise UserTier = "enterprise"
)

// Valid reports whether t is a known tier.
func (t UserTier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierEnterprise:
		return true
	}
	return false
}

// User is an API consumer. Only a digest of the API key is kept.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	WalletAddress string    `json:"wallet_address"`
	APIKeyDigest  string    `json:"-"`
	Tier          UserTier  `json:"tier"`
	CreatedAt     time.Time `json:"created_at"`
	IsActive      bool      `json:"is_active"`
}
