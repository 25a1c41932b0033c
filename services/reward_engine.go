package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"coin-vault-service/models"

	"go.uber.org/zap"
)

// RewardEngine awards coins exactly once per rewarded action. Every claim is a
// single LedgerStore transaction that validates first and then writes the
// ledger entry, the ledger total, the profile balance mirror and (for the
// recurring rewards) the engagement state together.
type RewardEngine struct {
	Store   LedgerStore
	Catalog RewardCatalog
	Days    DayPolicy
	Logger  *zap.Logger
	Metrics *Metrics
}

func NewRewardEngine(store LedgerStore, catalog RewardCatalog, days DayPolicy) *RewardEngine {
	return &RewardEngine{Store: store, Catalog: catalog, Days: days, Logger: zap.NewNop()}
}

type FragmentClaimResult struct {
	Fragment     models.CoinFragment `json:"fragment"`
	CoinsAwarded int64               `json:"coins_awarded"`
	TotalCoins   int64               `json:"total_coins"`
}

type DailyBonusClaimResult struct {
	Reward         int64     `json:"reward"`
	Streak         int       `json:"streak"`
	TotalCoins     int64     `json:"total_coins"`
	NextEligibleAt time.Time `json:"next_eligible_at"`
}

type WatchRewardClaimResult struct {
	Reward          int64     `json:"reward"`
	TotalCoins      int64     `json:"total_coins"`
	RemainingViews  int       `json:"remaining_views"`
	NextAvailableAt time.Time `json:"next_available_at"`
}

// Ledger keys of the recurring rewards share the namespace with fragment ids.
const (
	dailyClaimPrefix = "daily-"
	watchClaimPrefix = "watch-"
)

// DailyClaimID and WatchClaimID derive the ledger keys of the recurring rewards.
func DailyClaimID(dayID string) string { return dailyClaimPrefix + dayID }

func WatchClaimID(dayID string, seq int) string {
	return fmt.Sprintf("%s%s-%d", watchClaimPrefix, dayID, seq)
}

// reservedClaimID reports ids a catalog fragment may not use.
func reservedClaimID(id string) bool {
	return strings.HasPrefix(id, dailyClaimPrefix) || strings.HasPrefix(id, watchClaimPrefix)
}

// missingUser treats blank and whitespace-only ids as absent.
func missingUser(userID string) bool {
	return strings.TrimSpace(userID) == ""
}

// credit adds rec to the ledger and mirrors the same delta on the profile.
// Callers must have finished all validation before calling it.
func credit(tx LedgerTx, ledger *models.ClaimLedger, profile *models.UserProfile, rec models.ClaimRecord) error {
	ledger.TotalCoins += rec.Coins
	if ledger.Claimed == nil {
		ledger.Claimed = map[string]models.ClaimRecord{}
	}
	rec.UserID = ledger.UserID
	ledger.Claimed[rec.ClaimID] = rec
	if err := tx.AppendClaim(ledger, rec); err != nil {
		return fmt.Errorf("append claim %s: %w", rec.ClaimID, err)
	}

	claimedAt := rec.ClaimedAt
	profile.Coins += rec.Coins
	profile.RewardSummary = models.RewardSummary{
		TotalCoins:    ledger.TotalCoins,
		LastClaimID:   rec.ClaimID,
		LastUpdatedAt: &claimedAt,
	}
	if err := tx.SaveProfile(profile); err != nil {
		return fmt.Errorf("update balance mirror: %w", err)
	}
	return nil
}

// ClaimFragment grants a catalog fragment once per user, ever.
func (e *RewardEngine) ClaimFragment(ctx context.Context, userID, fragmentID string, now time.Time) (res FragmentClaimResult, err error) {
	defer func() { e.observe(string(models.RewardKindFragment), userID, fragmentID, res.CoinsAwarded, err) }()

	if missingUser(userID) {
		return res, ErrInvalidUser
	}
	fragment, err := LookupFragment(ctx, e.Catalog, fragmentID)
	if err != nil {
		return res, err
	}

	err = e.Store.RunInTransaction(ctx, func(ctx context.Context, tx LedgerTx) error {
		ledger, err := tx.Ledger(userID)
		if err != nil {
			return err
		}
		if ledger.Has(fragment.ID) {
			return ErrAlreadyClaimed
		}
		profile, err := tx.Profile(userID)
		if err != nil {
			return err
		}

		rec := models.ClaimRecord{
			ClaimID:     fragment.ID,
			FragmentID:  fragment.ID,
			Kind:        models.RewardKindFragment,
			Coins:       fragment.Value,
			Rarity:      fragment.Rarity,
			Title:       fragment.Title,
			Description: fragment.Description,
			ClaimedAt:   now,
		}
		if err := credit(tx, ledger, profile, rec); err != nil {
			return err
		}
		res = FragmentClaimResult{Fragment: fragment, CoinsAwarded: fragment.Value, TotalCoins: ledger.TotalCoins}
		return nil
	})
	if err != nil {
		return FragmentClaimResult{}, err
	}
	return res, nil
}

// ClaimDailyBonus grants the once-per-calendar-day login bonus and advances
// the streak. A gap of one or more days resets the streak to 1.
func (e *RewardEngine) ClaimDailyBonus(ctx context.Context, userID string, now time.Time) (res DailyBonusClaimResult, err error) {
	todayID := e.Days.DayID(now)
	defer func() { e.observe(string(models.RewardKindDailyBonus), userID, DailyClaimID(todayID), res.Reward, err) }()

	if missingUser(userID) {
		return res, ErrInvalidUser
	}
	cfg, err := e.Catalog.Engagement(ctx)
	if err != nil {
		return res, fmt.Errorf("load engagement config: %w", err)
	}
	yesterdayID := e.Days.PreviousDayID(now)

	err = e.Store.RunInTransaction(ctx, func(ctx context.Context, tx LedgerTx) error {
		engagement, err := tx.Engagement(userID)
		if err != nil {
			return err
		}
		daily := engagement.DailyBonus
		if daily.LastClaimDate == todayID {
			return ErrAlreadyClaimedToday
		}

		streak := 1
		if daily.LastClaimDate == yesterdayID {
			streak = daily.Streak + 1
		}
		reward := ComputeDailyBonusReward(cfg.DailyBonus, streak)

		ledger, err := tx.Ledger(userID)
		if err != nil {
			return err
		}
		claimID := DailyClaimID(todayID)
		if ledger.Has(claimID) {
			return ErrAlreadyClaimed
		}
		profile, err := tx.Profile(userID)
		if err != nil {
			return err
		}

		rec := models.ClaimRecord{
			ClaimID:     claimID,
			FragmentID:  claimID,
			Kind:        models.RewardKindDailyBonus,
			Coins:       reward,
			Rarity:      models.RarityRare,
			Title:       "Daily login bonus",
			Description: "Daily reward for keeping your streak alive.",
			ClaimedAt:   now,
		}
		if err := credit(tx, ledger, profile, rec); err != nil {
			return err
		}

		claimedAt := now
		engagement.DailyBonus = models.DailyBonusState{
			LastClaimDate: todayID,
			Streak:        streak,
			TotalClaims:   daily.TotalClaims + 1,
			LastReward:    reward,
			LastClaimedAt: &claimedAt,
		}
		if err := tx.SaveEngagement(engagement); err != nil {
			return fmt.Errorf("update engagement state: %w", err)
		}

		res = DailyBonusClaimResult{
			Reward:         reward,
			Streak:         streak,
			TotalCoins:     ledger.TotalCoins,
			NextEligibleAt: e.Days.StartOfNextDay(now),
		}
		return nil
	})
	if err != nil {
		return DailyBonusClaimResult{}, err
	}
	return res, nil
}

// ClaimWatchReward grants a watch-and-earn session, gated by a per-day cap
// and a cooldown since the previous session. The day counter resets
// implicitly when the stored day id is not today.
func (e *RewardEngine) ClaimWatchReward(ctx context.Context, userID string, now time.Time) (res WatchRewardClaimResult, err error) {
	todayID := e.Days.DayID(now)
	var claimID string
	defer func() { e.observe(string(models.RewardKindWatchSession), userID, claimID, res.Reward, err) }()

	if missingUser(userID) {
		return res, ErrInvalidUser
	}
	cfg, err := e.Catalog.Engagement(ctx)
	if err != nil {
		return res, fmt.Errorf("load engagement config: %w", err)
	}
	watchCfg := cfg.WatchAndEarn
	cooldown := watchCfg.Cooldown()

	err = e.Store.RunInTransaction(ctx, func(ctx context.Context, tx LedgerTx) error {
		engagement, err := tx.Engagement(userID)
		if err != nil {
			return err
		}
		watch := engagement.WatchAndEarn

		watchesToday := 0
		if watch.LastWatchDate == todayID {
			watchesToday = watch.WatchesToday
		}
		if watchesToday >= watchCfg.MaxViewsPerDay {
			return ErrDailyLimitReached
		}
		if watch.LastWatchedAt != nil {
			availableAt := watch.LastWatchedAt.Add(cooldown)
			if now.Before(availableAt) {
				return &CooldownError{Remaining: availableAt.Sub(now), AvailableAt: availableAt}
			}
		}

		reward := WatchReward(watchCfg)
		nextCount := watchesToday + 1
		claimID = WatchClaimID(todayID, nextCount)

		ledger, err := tx.Ledger(userID)
		if err != nil {
			return err
		}
		if ledger.Has(claimID) {
			return ErrAlreadyClaimed
		}
		profile, err := tx.Profile(userID)
		if err != nil {
			return err
		}

		rec := models.ClaimRecord{
			ClaimID:     claimID,
			FragmentID:  claimID,
			Kind:        models.RewardKindWatchSession,
			Coins:       reward,
			Rarity:      models.RarityCommon,
			Title:       "Watch & earn",
			Description: "Coins earned by completing a rewarded session.",
			ClaimedAt:   now,
		}
		if err := credit(tx, ledger, profile, rec); err != nil {
			return err
		}

		watchedAt := now
		engagement.WatchAndEarn = models.WatchAndEarnState{
			LastWatchDate: todayID,
			WatchesToday:  nextCount,
			TotalViews:    watch.TotalViews + 1,
			LastReward:    reward,
			LastWatchedAt: &watchedAt,
		}
		if err := tx.SaveEngagement(engagement); err != nil {
			return fmt.Errorf("update engagement state: %w", err)
		}

		remaining := watchCfg.MaxViewsPerDay - nextCount
		if remaining < 0 {
			remaining = 0
		}
		res = WatchRewardClaimResult{
			Reward:          reward,
			TotalCoins:      ledger.TotalCoins,
			RemainingViews:  remaining,
			NextAvailableAt: now.Add(cooldown),
		}
		return nil
	})
	if err != nil {
		return WatchRewardClaimResult{}, err
	}
	return res, nil
}

func (e *RewardEngine) observe(kind, userID, claimID string, coins int64, err error) {
	e.Metrics.ObserveClaim(kind, coins, err)
	if e.Logger == nil {
		return
	}
	fields := []zap.Field{zap.String("kind", kind), zap.String("user_id", userID), zap.String("claim_id", claimID)}
	switch {
	case err == nil:
		e.Logger.Info("🪙 coins awarded", append(fields, zap.Int64("coins", coins))...)
	case claimOutcome(err) != "error":
		e.Logger.Debug("claim rejected", append(fields, zap.String("reason", err.Error()))...)
	default:
		e.Logger.Error("claim failed", append(fields, zap.Error(err))...)
	}
}
