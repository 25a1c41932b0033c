package models

import "time"

// ClaimLedger is the per-user claim ledger header (table: coin_claims).
// TotalCoins always equals the sum of Coins over the user's claim_entries.
type ClaimLedger struct {
	UserID     string    `gorm:"primaryKey;type:varchar(128)" json:"user_id"`
	TotalCoins int64     `gorm:"not null;default:0" json:"total_coins"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Claimed is loaded alongside the header; keys are claim ids
	Claimed map[string]ClaimRecord `gorm:"-" json:"claimed"`
}

func (ClaimLedger) TableName() string { return "coin_claims" }

// Has reports whether claimID was already recorded.
func (l *ClaimLedger) Has(claimID string) bool {
	if l == nil || l.Claimed == nil {
		return false
	}
	_, ok := l.Claimed[claimID]
	return ok
}

// SumEntries recomputes the total from the recorded entries.
func (l *ClaimLedger) SumEntries() int64 {
	var sum int64
	if l == nil {
		return 0
	}
	for _, e := range l.Claimed {
		sum += e.Coins
	}
	return sum
}

// ClaimRecord is one immutable ledger entry (table: claim_entries).
// (user_id, claim_id) is the primary key, so an event can only be recorded once.
type ClaimRecord struct {
	UserID      string         `gorm:"primaryKey;type:varchar(128)" json:"-"`
	ClaimID     string         `gorm:"primaryKey;type:varchar(128)" json:"claim_id"`
	FragmentID  string         `gorm:"type:varchar(128);not null" json:"fragment_id"`
	Kind        RewardKind     `gorm:"type:varchar(32);not null;index" json:"type"`
	Coins       int64          `gorm:"not null" json:"coins"`
	Rarity      FragmentRarity `gorm:"type:varchar(16)" json:"rarity"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	ClaimedAt   time.Time      `gorm:"not null;index" json:"claimed_at"`
}

func (ClaimRecord) TableName() string { return "claim_entries" }
