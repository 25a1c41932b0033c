package services

import (
	"context"
	"testing"

	"coin-vault-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigStoreDefaultsWhenEmpty(t *testing.T) {
	ctx := context.Background()
	store := NewConfigStore(newTestDB(t), nil)

	rewards, err := store.CoinRewards(ctx)
	require.NoError(t, err)
	assert.Len(t, rewards.Fragments, 4)

	rules, err := store.Engagement(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(120), rules.DailyBonus.BaseReward)
}

func TestConfigStoreSavePartialEngagement(t *testing.T) {
	ctx := context.Background()
	store := NewConfigStore(newTestDB(t), nil)

	_, err := store.Save(ctx, models.ConfigEngagement, []byte(`{"watchAndEarn":{"rewardPerView":100,"cooldownMinutes":10,"maxViewsPerDay":3}}`), "admin-1")
	require.NoError(t, err)

	rules, err := store.Engagement(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rules.WatchAndEarn.RewardPerView)
	assert.Equal(t, 3, rules.WatchAndEarn.MaxViewsPerDay)
	assert.Equal(t, 14, rules.DailyBonus.CapStreak)
	assert.Len(t, rules.DailyBonus.StreakMultipliers, 7)

	// second save overwrites the row
	_, err = store.Save(ctx, models.ConfigEngagement, []byte(`{"dailyBonus":{"baseReward":50,"streakMultipliers":[1,2],"capStreak":2}}`), "admin-2")
	require.NoError(t, err)
	rules, err = store.Engagement(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, rules.DailyBonus.StreakMultipliers)
	assert.Equal(t, 5, rules.WatchAndEarn.MaxViewsPerDay, "unsaved sections come from defaults")

	var doc models.RewardConfigDocument
	require.NoError(t, store.DB.First(&doc, "name = ?", models.ConfigEngagement).Error)
	assert.Equal(t, "admin-2", doc.UpdatedBy)
}

func TestConfigStoreFragmentsReplaceDefaults(t *testing.T) {
	ctx := context.Background()
	store := NewConfigStore(newTestDB(t), nil)

	saved, err := store.Save(ctx, models.ConfigCoinRewards, []byte(`{"fragments":[{"title":"Comet Dust","value":15}]}`), "admin")
	require.NoError(t, err)
	out, ok := saved.(models.CoinRewardConfig)
	require.True(t, ok)
	require.Len(t, out.Fragments, 1)
	assert.Equal(t, "comet-dust", out.Fragments[0].ID)
	assert.Equal(t, models.RarityCommon, out.Fragments[0].Rarity)

	rewards, err := store.CoinRewards(ctx)
	require.NoError(t, err)
	require.Len(t, rewards.Fragments, 1)
	assert.Equal(t, int64(15), rewards.Fragments[0].Value)
	assert.Equal(t, int64(1000), rewards.Cashout.MinCoins)

	_, err = LookupFragment(ctx, store, "aurora-prism")
	assert.ErrorIs(t, err, ErrRewardNotFound, "removed fragments can no longer be claimed")
}

func TestConfigStoreRejectsInvalidDocuments(t *testing.T) {
	ctx := context.Background()
	store := NewConfigStore(newTestDB(t), nil)

	_, err := store.Save(ctx, models.ConfigEngagement, []byte(`{"dailyBonus":{"capStreak":0}}`), "admin")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = store.Save(ctx, models.ConfigCoinRewards, []byte(`not json`), "admin")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = store.Save(ctx, models.ConfigCoinRewards, []byte(`{"fragments":[{"id":"daily-2025-06-01","title":"Sneaky","value":10}]}`), "admin")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = store.Save(ctx, "payouts", []byte(`{}`), "admin")
	assert.ErrorIs(t, err, ErrUnknownConfig)

	_, err = store.Get(ctx, "payouts")
	assert.ErrorIs(t, err, ErrUnknownConfig)
}

func TestConfigStoreUsesFileDefaults(t *testing.T) {
	ctx := context.Background()
	defaults := NewStaticCatalog()
	defaults.Rules.WatchAndEarn.RewardPerView = 42
	store := NewConfigStore(newTestDB(t), defaults)

	rules, err := store.Engagement(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42.0, rules.WatchAndEarn.RewardPerView)
}

func TestCachedCatalogWithoutRedisPassesThrough(t *testing.T) {
	ctx := context.Background()
	source := NewStaticCatalog()
	cached := NewCachedCatalog(source, nil, 0)

	rewards, err := cached.CoinRewards(ctx)
	require.NoError(t, err)
	assert.Len(t, rewards.Fragments, 4)

	source.Rules.WatchAndEarn.RewardPerView = 7
	rules, err := cached.Engagement(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7.0, rules.WatchAndEarn.RewardPerView)

	cached.Invalidate(ctx)
}
