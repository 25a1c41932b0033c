package models

// VaultSnapshot is a read-only view of everything the ledger holds for one user.
// Entries are ordered newest first.
type VaultSnapshot struct {
	UserID     string         `json:"user_id"`
	TotalCoins int64          `json:"total_coins"`
	Coins      int64          `json:"coins"`
	Entries    []ClaimRecord  `json:"entries"`
	Engagement UserEngagement `json:"engagement"`
}
