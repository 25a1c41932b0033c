package services

import (
	"context"
	"sort"

	"coin-vault-service/models"
)

// LedgerStore is the transactional document store behind the reward engine.
//
// RunInTransaction runs fn with read-validate-then-write atomicity: either
// every write fn issued is applied or none is. On a write conflict the store
// re-runs fn a bounded number of times and then gives up with
// ErrTransactionConflict. Errors returned by fn abort without retry.
type LedgerStore interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error

	// Snapshot is a non-transactional read for projections and streams.
	Snapshot(ctx context.Context, userID string) (models.VaultSnapshot, error)

	// UserIDs lists every user with a ledger.
	UserIDs(ctx context.Context) ([]string, error)
}

// LedgerTx exposes the three per-user documents a claim touches.
// Getters never return nil: missing documents come back as empty values
// that are created by the first write.
type LedgerTx interface {
	Ledger(userID string) (*models.ClaimLedger, error)
	Profile(userID string) (*models.UserProfile, error)
	Engagement(userID string) (*models.UserEngagement, error)

	// AppendClaim records rec and persists ledger.TotalCoins.
	// ledger must already include rec in its total.
	AppendClaim(ledger *models.ClaimLedger, rec models.ClaimRecord) error
	SaveProfile(p *models.UserProfile) error
	SaveEngagement(e *models.UserEngagement) error
}

func buildSnapshot(ledger models.ClaimLedger, profile models.UserProfile, engagement models.UserEngagement, userID string) models.VaultSnapshot {
	entries := make([]models.ClaimRecord, 0, len(ledger.Claimed))
	for _, e := range ledger.Claimed {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ClaimedAt.Equal(entries[j].ClaimedAt) {
			return entries[i].ClaimID > entries[j].ClaimID
		}
		return entries[i].ClaimedAt.After(entries[j].ClaimedAt)
	})
	engagement.UserID = userID
	return models.VaultSnapshot{
		UserID:     userID,
		TotalCoins: ledger.TotalCoins,
		Coins:      profile.Coins,
		Entries:    entries,
		Engagement: engagement,
	}
}
