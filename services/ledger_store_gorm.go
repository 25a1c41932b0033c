package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coin-vault-service/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedgerStore runs claims inside a database transaction. The three user
// rows are created if missing and locked FOR UPDATE, so concurrent claims for
// the same user serialize on the row locks. Serialization failures,
// deadlocks and duplicate keys roll back and retry with exponential backoff.
type GormLedgerStore struct {
	DB          *gorm.DB
	MaxAttempts int
	NewBackOff  func() backoff.BackOff
	Metrics     *Metrics
	Logger      *zap.Logger
}

func NewGormLedgerStore(db *gorm.DB) *GormLedgerStore {
	return &GormLedgerStore{DB: db, MaxAttempts: 5, Logger: zap.NewNop()}
}

func defaultTxBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return b
}

func (s *GormLedgerStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error {
	attempts := s.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	newBackOff := s.NewBackOff
	if newBackOff == nil {
		newBackOff = defaultTxBackOff
	}

	attempt := 0
	op := func() error {
		attempt++
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(ctx, &gormTx{db: tx})
		})
		if err == nil {
			return nil
		}
		if !isRetryableTxError(err) {
			return backoff.Permanent(err)
		}
		s.Metrics.ObserveRetry()
		if s.Logger != nil {
			s.Logger.Warn("ledger transaction conflict, retrying", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), uint64(attempts-1)), ctx)
	err := backoff.Retry(op, b)
	if err != nil && isRetryableTxError(err) {
		return fmt.Errorf("%w: %v", ErrTransactionConflict, err)
	}
	return err
}

// isRetryableTxError reports store-level conflicts that a re-run can resolve.
func isRetryableTxError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505": // serialization_failure, deadlock_detected, unique_violation
			return true
		}
	}
	return false
}

func (s *GormLedgerStore) Snapshot(ctx context.Context, userID string) (models.VaultSnapshot, error) {
	db := s.DB.WithContext(ctx)

	var ledger models.ClaimLedger
	if err := db.Where("user_id = ?", userID).Limit(1).Find(&ledger).Error; err != nil {
		return models.VaultSnapshot{}, err
	}
	entries, err := loadEntries(db, userID)
	if err != nil {
		return models.VaultSnapshot{}, err
	}
	ledger.Claimed = entries

	var profile models.UserProfile
	if err := db.Where("user_id = ?", userID).Limit(1).Find(&profile).Error; err != nil {
		return models.VaultSnapshot{}, err
	}
	var engagement models.UserEngagement
	if err := db.Where("user_id = ?", userID).Limit(1).Find(&engagement).Error; err != nil {
		return models.VaultSnapshot{}, err
	}
	return buildSnapshot(ledger, profile, engagement, userID), nil
}

func (s *GormLedgerStore) UserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.DB.WithContext(ctx).Model(&models.ClaimLedger{}).Order("user_id").Pluck("user_id", &ids).Error
	return ids, err
}

func loadEntries(db *gorm.DB, userID string) (map[string]models.ClaimRecord, error) {
	var rows []models.ClaimRecord
	if err := db.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]models.ClaimRecord, len(rows))
	for _, r := range rows {
		out[r.ClaimID] = r
	}
	return out, nil
}

type gormTx struct {
	db *gorm.DB
}

// lockRow inserts seed if the row is missing, then re-reads it FOR UPDATE.
func (t *gormTx) lockRow(seed any, dst any, userID string) error {
	if err := t.db.Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error; err != nil {
		return err
	}
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(dst).Error
}

func (t *gormTx) Ledger(userID string) (*models.ClaimLedger, error) {
	var ledger models.ClaimLedger
	if err := t.lockRow(&models.ClaimLedger{UserID: userID}, &ledger, userID); err != nil {
		return nil, err
	}
	entries, err := loadEntries(t.db, userID)
	if err != nil {
		return nil, err
	}
	ledger.Claimed = entries
	return &ledger, nil
}

func (t *gormTx) Profile(userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := t.lockRow(&models.UserProfile{UserID: userID}, &profile, userID); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (t *gormTx) Engagement(userID string) (*models.UserEngagement, error) {
	var engagement models.UserEngagement
	if err := t.lockRow(&models.UserEngagement{UserID: userID}, &engagement, userID); err != nil {
		return nil, err
	}
	return &engagement, nil
}

func (t *gormTx) AppendClaim(ledger *models.ClaimLedger, rec models.ClaimRecord) error {
	rec.UserID = ledger.UserID
	if err := t.db.Create(&rec).Error; err != nil {
		return err
	}
	return t.db.Model(&models.ClaimLedger{}).
		Where("user_id = ?", ledger.UserID).
		Updates(map[string]any{"total_coins": ledger.TotalCoins, "updated_at": rec.ClaimedAt}).Error
}

func (t *gormTx) SaveProfile(p *models.UserProfile) error {
	return t.db.Save(p).Error
}

func (t *gormTx) SaveEngagement(e *models.UserEngagement) error {
	return t.db.Save(e).Error
}
