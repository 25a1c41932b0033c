package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// AuditFinding describes one user whose stored documents disagree.
type AuditFinding struct {
	UserID     string `json:"user_id"`
	TotalCoins int64  `json:"total_coins"`
	EntrySum   int64  `json:"entry_sum"`
	Coins      int64  `json:"coins"`
	Problem    string `json:"problem"`
}

// LedgerAuditor re-derives every ledger total from its entries. The balance
// mirror is only checked for going negative: it may carry coins granted
// outside the reward ledger.
type LedgerAuditor struct {
	Store   LedgerStore
	Logger  *zap.Logger
	Metrics *Metrics
}

func NewLedgerAuditor(store LedgerStore, logger *zap.Logger, metrics *Metrics) *LedgerAuditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerAuditor{Store: store, Logger: logger, Metrics: metrics}
}

func (a *LedgerAuditor) Audit(ctx context.Context) ([]AuditFinding, error) {
	ids, err := a.Store.UserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ledgers: %w", err)
	}

	var findings []AuditFinding
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		snap, err := a.Store.Snapshot(ctx, id)
		if err != nil {
			return findings, fmt.Errorf("read vault %s: %w", id, err)
		}
		var sum int64
		for _, e := range snap.Entries {
			sum += e.Coins
		}
		base := AuditFinding{UserID: id, TotalCoins: snap.TotalCoins, EntrySum: sum, Coins: snap.Coins}
		if sum != snap.TotalCoins {
			f := base
			f.Problem = "ledger total does not match entries"
			findings = append(findings, f)
		}
		if snap.Coins < 0 {
			f := base
			f.Problem = "negative balance"
			findings = append(findings, f)
		}
	}

	for _, f := range findings {
		a.Logger.Warn("ledger audit finding",
			zap.String("user_id", f.UserID),
			zap.String("problem", f.Problem),
			zap.Int64("total_coins", f.TotalCoins),
			zap.Int64("entry_sum", f.EntrySum),
			zap.Int64("coins", f.Coins),
		)
	}
	a.Metrics.ObserveAudit(len(findings))
	a.Logger.Info("ledger audit finished", zap.Int("ledgers", len(ids)), zap.Int("findings", len(findings)))
	return findings, nil
}
