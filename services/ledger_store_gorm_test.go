package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"coin-vault-service/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newGormEngine(t *testing.T) (*RewardEngine, *GormLedgerStore, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	store := NewGormLedgerStore(db)
	store.NewBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return NewRewardEngine(store, testCatalog(), UTCDays()), store, db
}

func TestGormClaimFragmentScenario(t *testing.T) {
	ctx := context.Background()
	engine, store, db := newGormEngine(t)
	require.NoError(t, db.Create(&models.ClaimLedger{UserID: "u1", TotalCoins: 200}).Error)
	require.NoError(t, db.Create(&models.UserProfile{UserID: "u1", Coins: 50}).Error)

	res, err := engine.ClaimFragment(ctx, "u1", "aurora-prism", at(time.June, 1, 9, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(320), res.TotalCoins)

	_, err = engine.ClaimFragment(ctx, "u1", "aurora-prism", at(time.June, 1, 9, 1))
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	snap, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(320), snap.TotalCoins)
	assert.Equal(t, int64(170), snap.Coins)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "aurora-prism", snap.Entries[0].ClaimID)

	var profile models.UserProfile
	require.NoError(t, db.First(&profile, "user_id = ?", "u1").Error)
	assert.Equal(t, int64(320), profile.RewardSummary.TotalCoins)
	assert.Equal(t, "aurora-prism", profile.RewardSummary.LastClaimID)
}

func TestGormDailyAndWatchClaims(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := newGormEngine(t)

	first, err := engine.ClaimDailyBonus(ctx, "u1", at(time.June, 1, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(120), first.Reward)

	_, err = engine.ClaimDailyBonus(ctx, "u1", at(time.June, 1, 11, 0))
	assert.ErrorIs(t, err, ErrAlreadyClaimedToday)

	second, err := engine.ClaimDailyBonus(ctx, "u1", at(time.June, 2, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(144), second.Reward)
	assert.Equal(t, 2, second.Streak)

	_, err = engine.ClaimWatchReward(ctx, "u1", at(time.June, 2, 10, 0))
	require.NoError(t, err)
	_, err = engine.ClaimWatchReward(ctx, "u1", at(time.June, 2, 10, 10))
	assert.ErrorIs(t, err, ErrCooldownActive)

	snap, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(120+144+80), snap.TotalCoins)
	assert.Equal(t, snap.TotalCoins, snap.Coins)
	assert.Equal(t, 2, snap.Engagement.DailyBonus.Streak)
	assert.Equal(t, 1, snap.Engagement.WatchAndEarn.WatchesToday)
	assert.Len(t, snap.Entries, 3)
}

func TestGormConcurrentClaimsCommitOnce(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := newGormEngine(t)
	now := at(time.June, 1, 9, 0)

	const submits = 10
	results := make(chan error, submits*3)
	var wg sync.WaitGroup
	for i := 0; i < submits; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, err := engine.ClaimFragment(ctx, "u1", "aurora-prism", now)
			results <- err
		}()
		go func() {
			defer wg.Done()
			_, err := engine.ClaimDailyBonus(ctx, "u1", now)
			results <- err
		}()
		go func() {
			defer wg.Done()
			_, err := engine.ClaimWatchReward(ctx, "u1", now)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, IsDuplicateClaim(err) || errors.Is(err, ErrCooldownActive), "unexpected error: %v", err)
	}
	assert.Equal(t, 3, ok)

	snap, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(120+120+80), snap.TotalCoins)
	assert.Equal(t, snap.TotalCoins, snap.Coins)
	assert.Len(t, snap.Entries, 3)
}

func TestGormRollbackOnError(t *testing.T) {
	ctx := context.Background()
	_, store, db := newGormEngine(t)
	boom := errors.New("boom")

	err := store.RunInTransaction(ctx, func(ctx context.Context, tx LedgerTx) error {
		ledger, err := tx.Ledger("u1")
		if err != nil {
			return err
		}
		ledger.TotalCoins = 10
		if err := tx.AppendClaim(ledger, models.ClaimRecord{ClaimID: "x", FragmentID: "x", Kind: models.RewardKindFragment, Coins: 10, ClaimedAt: time.Now()}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var ledgers, entries int64
	require.NoError(t, db.Model(&models.ClaimLedger{}).Count(&ledgers).Error)
	require.NoError(t, db.Model(&models.ClaimRecord{}).Count(&entries).Error)
	assert.Zero(t, ledgers)
	assert.Zero(t, entries)
}

func TestGormRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	_, store, _ := newGormEngine(t)
	metrics := NewMetrics()
	store.Metrics = metrics

	calls := 0
	err := store.RunInTransaction(ctx, func(ctx context.Context, tx LedgerTx) error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.txRetries))
}

func TestGormGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	_, store, _ := newGormEngine(t)
	store.MaxAttempts = 3

	calls := 0
	err := store.RunInTransaction(ctx, func(ctx context.Context, tx LedgerTx) error {
		calls++
		return gorm.ErrDuplicatedKey
	})
	assert.ErrorIs(t, err, ErrTransactionConflict)
	assert.Equal(t, 3, calls)
}

func TestGormDoesNotRetryRuleErrors(t *testing.T) {
	ctx := context.Background()
	_, store, _ := newGormEngine(t)

	calls := 0
	err := store.RunInTransaction(ctx, func(ctx context.Context, tx LedgerTx) error {
		calls++
		return ErrAlreadyClaimed
	})
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.Equal(t, 1, calls)
}

func TestGormUserIDs(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := newGormEngine(t)
	now := at(time.June, 1, 9, 0)
	for _, u := range []string{"b", "a"} {
		_, err := engine.ClaimFragment(ctx, u, "lunar-quartz", now)
		require.NoError(t, err)
	}
	ids, err := store.UserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestIsRetryableTxError(t *testing.T) {
	assert.True(t, isRetryableTxError(gorm.ErrDuplicatedKey))
	assert.True(t, isRetryableTxError(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, isRetryableTxError(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isRetryableTxError(ErrAlreadyClaimed))
}
