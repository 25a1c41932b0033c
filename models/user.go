package models

import "time"

// UserProfile is the local profile row; Coins is the denormalized balance
// mirror of the claim ledger and is only changed inside a claim transaction.
// Populated lazily by the first claim or ahead of time by the profile sync worker.
type UserProfile struct {
	UserID   string `gorm:"primaryKey;type:varchar(128)" json:"user_id"`
	Username string `gorm:"index" json:"username,omitempty"`
	Coins    int64  `gorm:"not null;default:0" json:"coins"`

	RewardSummary RewardSummary `gorm:"embedded;embeddedPrefix:summary_" json:"reward_summary"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (UserProfile) TableName() string { return "user_profiles" }

// RewardSummary mirrors the ledger total for cheap reads elsewhere in the app
type RewardSummary struct {
	TotalCoins    int64      `json:"total_coins"`
	LastClaimID   string     `json:"last_claim_id,omitempty"`
	LastUpdatedAt *time.Time `json:"last_updated_at,omitempty"`
}

// RemoteProfile mirrors the profile service payload consumed by the sync worker (read-only).
type RemoteProfile struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Username   string    `json:"username"`
	UpdatedAt  time.Time `json:"updated_at"`
}
