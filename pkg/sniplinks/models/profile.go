package models

import (
	"strings"
	"time"
)

// Tier represents an account's subscription level
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Premium reports whether the tier unlocks unlimited links and custom codes.
func (t Tier) Premium() bool {
	return t == TierPro || t == TierEnterprise
}

// ParseTier maps a stored value to a Tier. Unknown or empty values are free.
func ParseTier(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierPro:
		return TierPro
	case TierEnterprise:
		return TierEnterprise
	default:
		return TierFree
	}
}

// Profile holds the account data the engine reads: the subscription tier.
// Rows are owned by the billing system; the engine never writes them.
type Profile struct {
	ID               string    `gorm:"primaryKey;size:64" json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	SubscriptionTier Tier      `gorm:"type:varchar(20);default:'free'" json:"subscription_tier"`
}
