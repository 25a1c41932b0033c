package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"coin-vault-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimFragmentScenario(t *testing.T) {
	ctx := context.Background()
	engine, store := newMemoryEngine(testCatalog())
	store.Seed(
		&models.ClaimLedger{UserID: "u1", TotalCoins: 200},
		&models.UserProfile{UserID: "u1", Coins: 50},
		nil,
	)

	res, err := engine.ClaimFragment(ctx, "u1", "aurora-prism", at(time.June, 1, 9, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(120), res.CoinsAwarded)
	assert.Equal(t, int64(320), res.TotalCoins)
	assert.Equal(t, "Aurora Prism", res.Fragment.Title)

	snap, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(320), snap.TotalCoins)
	assert.Equal(t, int64(170), snap.Coins)
	require.Len(t, snap.Entries, 1)
	entry := snap.Entries[0]
	assert.Equal(t, "aurora-prism", entry.ClaimID)
	assert.Equal(t, models.RewardKindFragment, entry.Kind)
	assert.Equal(t, int64(120), entry.Coins)
	assert.Equal(t, models.RarityRare, entry.Rarity)

	_, err = engine.ClaimFragment(ctx, "u1", "aurora-prism", at(time.June, 1, 9, 5))
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.True(t, IsDuplicateClaim(err))

	snap, err = store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(320), snap.TotalCoins)
	assert.Equal(t, int64(170), snap.Coins)
	assert.Len(t, snap.Entries, 1)
}

func TestClaimFragmentValidation(t *testing.T) {
	ctx := context.Background()
	engine, store := newMemoryEngine(testCatalog())

	_, err := engine.ClaimFragment(ctx, "", "aurora-prism", at(time.June, 1, 9, 0))
	assert.ErrorIs(t, err, ErrInvalidUser)
	_, err = engine.ClaimFragment(ctx, "  ", "aurora-prism", at(time.June, 1, 9, 0))
	assert.ErrorIs(t, err, ErrInvalidUser)

	_, err = engine.ClaimFragment(ctx, "u1", "retired-fragment", at(time.June, 1, 9, 0))
	assert.ErrorIs(t, err, ErrRewardNotFound)

	ids, err := store.UserIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids, "rejected claims must not create documents")
}

func TestClaimFragmentConcurrentIsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	engine, store := newMemoryEngine(testCatalog())

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dupes     int
		other     []error
	)
	now := at(time.June, 1, 9, 0)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.ClaimFragment(ctx, "u1", "eclipse-vein", now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case IsDuplicateClaim(err):
				dupes++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, dupes)
	assert.Empty(t, other)

	snap, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(400), snap.TotalCoins)
	assert.Equal(t, int64(400), snap.Coins)
	assert.Len(t, snap.Entries, 1)
}

func TestConcurrentDistinctFragmentsAllCommit(t *testing.T) {
	ctx := context.Background()
	engine, store := newMemoryEngine(testCatalog())
	now := at(time.June, 1, 9, 0)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for _, id := range []string{"aurora-prism", "solstice-core", "lunar-quartz", "eclipse-vein"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := engine.ClaimFragment(ctx, "u1", id, now)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	snap, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(860), snap.TotalCoins)
	assert.Equal(t, int64(860), snap.Coins)

	var sum int64
	for _, e := range snap.Entries {
		sum += e.Coins
	}
	assert.Equal(t, snap.TotalCoins, sum)
}

func TestConcurrentDailyAndWatchCommitOnce(t *testing.T) {
	ctx := context.Background()
	engine, store := newMemoryEngine(testCatalog())
	now := at(time.June, 1, 9, 0)

	const submits = 30
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		dailyOK    int
		watchOK    int
		unexpected []error
	)
	record := func(ok *int, err error, rejected func(error) bool) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err == nil:
			*ok++
		case !rejected(err):
			unexpected = append(unexpected, err)
		}
	}
	for i := 0; i < submits; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := engine.ClaimDailyBonus(ctx, "u1", now)
			record(&dailyOK, err, IsDuplicateClaim)
		}()
		go func() {
			defer wg.Done()
			_, err := engine.ClaimWatchReward(ctx, "u1", now)
			record(&watchOK, err, func(err error) bool {
				return IsDuplicateClaim(err) || errors.Is(err, ErrCooldownActive)
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, dailyOK)
	assert.Equal(t, 1, watchOK)
	assert.Empty(t, unexpected)

	snap, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), snap.TotalCoins)
	assert.Equal(t, int64(200), snap.Coins)
	assert.Len(t, snap.Entries, 2)
	assert.Equal(t, 1, snap.Engagement.DailyBonus.Streak)
	assert.Equal(t, 1, snap.Engagement.WatchAndEarn.WatchesToday)
}

func TestReservedFragmentIDCannotShadowDailyBonus(t *testing.T) {
	ctx := context.Background()
	catalog := testCatalog()
	catalog.Rewards.Fragments = append(catalog.Rewards.Fragments, models.CoinFragment{
		ID: DailyClaimID("2025-06-01"), Title: "Shadow", Value: 10, Rarity: models.RarityCommon,
	})
	engine, _ := newMemoryEngine(catalog)
	now := at(time.June, 1, 9, 0)

	_, err := engine.ClaimFragment(ctx, "u1", DailyClaimID("2025-06-01"), now)
	assert.ErrorIs(t, err, ErrRewardNotFound)

	res, err := engine.ClaimDailyBonus(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, int64(120), res.Reward)
}

func TestClaimDailyBonusScenario(t *testing.T) {
	ctx := context.Background()
	engine, store := newMemoryEngine(testCatalog())

	first, err := engine.ClaimDailyBonus(ctx, "u1", at(time.June, 1, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(120), first.Reward)
	assert.Equal(t, 1, first.Streak)
	assert.Equal(t, int64(120), first.TotalCoins)
	assert.Equal(t, at(time.June, 2, 0, 0), first.NextEligibleAt)

	_, err = engine.ClaimDailyBonus(ctx, "u1", at(time.June, 1, 22, 0))
	assert.ErrorIs(t, err, ErrAlreadyClaimedToday)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	second, err := engine.ClaimDailyBonus(ctx, "u1", at(time.June, 2, 8, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(144), second.Reward)
	assert.Equal(t, 2, second.Streak)
	assert.Equal(t, int64(264), second.TotalCoins)

	snap, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(264), snap.Coins)
	assert.Equal(t, "2025-06-02", snap.Engagement.DailyBonus.LastClaimDate)
	assert.Equal(t, int64(2), snap.Engagement.DailyBonus.TotalClaims)
	assert.Equal(t, int64(144), snap.Engagement.DailyBonus.LastReward)
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, "daily-2025-06-02", snap.Entries[0].ClaimID)
	assert.Equal(t, models.RewardKindDailyBonus, snap.Entries[0].Kind)
}

func TestClaimDailyBonusGapResetsStreak(t *testing.T) {
	ctx := context.Background()
	engine, _ := newMemoryEngine(testCatalog())

	for day := 1; day <= 3; day++ {
		_, err := engine.ClaimDailyBonus(ctx, "u1", at(time.June, day, 12, 0))
		require.NoError(t, err)
	}
	res, err := engine.ClaimDailyBonus(ctx, "u1", at(time.June, 5, 12, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)
	assert.Equal(t, int64(120), res.Reward)
}

func TestClaimDailyBonusStreakCap(t *testing.T) {
	ctx := context.Background()
	engine, store := newMemoryEngine(testCatalog())

	prev := 0
	var total int64
	start := at(time.June, 1, 7, 0)
	for i := 0; i < 20; i++ {
		res, err := engine.ClaimDailyBonus(ctx, "u1", start.AddDate(0, 0, i))
		require.NoError(t, err)
		assert.Equal(t, prev+1, res.Streak, "streak grows by one per consecutive day")
		prev = res.Streak
		total += res.Reward
		if res.Streak >= 7 {
			assert.Equal(t, int64(300), res.Reward, "day %d", i+1)
		}
	}

	snap, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 20, snap.Engagement.DailyBonus.Streak)
	assert.Equal(t, total, snap.TotalCoins)
	assert.Equal(t, total, snap.Coins)
}

func watchCatalog(cooldown, maxViews int) *StaticCatalog {
	c := NewStaticCatalog()
	c.Rules.WatchAndEarn = models.WatchAndEarnConfig{RewardPerView: 80, CooldownMinutes: cooldown, MaxViewsPerDay: maxViews}
	return c
}

func TestClaimWatchRewardCooldown(t *testing.T) {
	ctx := context.Background()
	engine, store := newMemoryEngine(watchCatalog(30, 5))
	t0 := at(time.June, 1, 10, 0)

	first, err := engine.ClaimWatchReward(ctx, "u1", t0)
	require.NoError(t, err)
	assert.Equal(t, int64(80), first.Reward)
	assert.Equal(t, 4, first.RemainingViews)
	assert.Equal(t, t0.Add(30*time.Minute), first.NextAvailableAt)

	_, err = engine.ClaimWatchReward(ctx, "u1", t0.Add(29*time.Minute))
	var cooldown *CooldownError
	require.True(t, errors.As(err, &cooldown))
	assert.ErrorIs(t, err, ErrCooldownActive)
	assert.Equal(t, 1, cooldown.MinutesRemaining())
	assert.Equal(t, t0.Add(30*time.Minute), cooldown.AvailableAt)

	second, err := engine.ClaimWatchReward(ctx, "u1", t0.Add(31*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, second.RemainingViews)
	assert.Equal(t, int64(160), second.TotalCoins)

	snap, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Engagement.WatchAndEarn.WatchesToday)
	assert.Equal(t, int64(2), snap.Engagement.WatchAndEarn.TotalViews)
	ids := []string{snap.Entries[0].ClaimID, snap.Entries[1].ClaimID}
	assert.ElementsMatch(t, []string{"watch-2025-06-01-1", "watch-2025-06-01-2"}, ids)
}

func TestClaimWatchRewardDailyCap(t *testing.T) {
	ctx := context.Background()
	engine, store := newMemoryEngine(watchCatalog(0, 2))

	for i := 0; i < 2; i++ {
		_, err := engine.ClaimWatchReward(ctx, "u1", at(time.June, 1, 10, i))
		require.NoError(t, err)
	}
	_, err := engine.ClaimWatchReward(ctx, "u1", at(time.June, 1, 11, 0))
	assert.ErrorIs(t, err, ErrDailyLimitReached)

	res, err := engine.ClaimWatchReward(ctx, "u1", at(time.June, 2, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, 1, res.RemainingViews)

	snap, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Engagement.WatchAndEarn.WatchesToday)
	assert.Equal(t, "2025-06-02", snap.Engagement.WatchAndEarn.LastWatchDate)
	assert.Equal(t, int64(240), snap.TotalCoins)
}

func TestMirrorTracksLedgerAcrossKinds(t *testing.T) {
	ctx := context.Background()
	engine, store := newMemoryEngine(watchCatalog(0, 5))
	store.Seed(nil, &models.UserProfile{UserID: "u1", Coins: 75}, nil)
	now := at(time.June, 1, 10, 0)

	_, err := engine.ClaimFragment(ctx, "u1", "lunar-quartz", now)
	require.NoError(t, err)
	_, err = engine.ClaimDailyBonus(ctx, "u1", now)
	require.NoError(t, err)
	_, err = engine.ClaimWatchReward(ctx, "u1", now)
	require.NoError(t, err)

	snap, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(80+120+80), snap.TotalCoins)
	assert.Equal(t, 75+snap.TotalCoins, snap.Coins)
}

func TestEngineConflictSurfacesAfterRetries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryLedgerStore()
	store.MaxAttempts = 2
	conflicts := 0
	store.OnConflict = func() { conflicts++ }

	// Simulate a concurrent writer bumping the ledger on every attempt.
	err := store.RunInTransaction(ctx, func(ctx context.Context, tx LedgerTx) error {
		if _, err := tx.Ledger("u1"); err != nil {
			return err
		}
		store.Seed(&models.ClaimLedger{UserID: "u1"}, nil, nil)
		return tx.SaveProfile(&models.UserProfile{UserID: "u1", Coins: 1})
	})
	assert.ErrorIs(t, err, ErrTransactionConflict)
	assert.Equal(t, 2, conflicts)

	snap, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, snap.Coins, "conflicting writes are discarded")
}

func TestMemoryStoreAbortDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryLedgerStore()
	boom := errors.New("boom")

	err := store.RunInTransaction(ctx, func(ctx context.Context, tx LedgerTx) error {
		ledger, _ := tx.Ledger("u1")
		ledger.TotalCoins = 10
		if err := tx.AppendClaim(ledger, models.ClaimRecord{ClaimID: "x", Coins: 10}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	ids, err := store.UserIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
