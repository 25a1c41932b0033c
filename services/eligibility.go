package services

import (
	"context"
	"fmt"
	"time"

	"coin-vault-service/models"
)

type DailyBonusEligibility struct {
	Streak         int        `json:"streak"`
	NextStreak     int        `json:"next_streak"`
	Reward         int64      `json:"reward"`
	Available      bool       `json:"available"`
	LastClaimDate  string     `json:"last_claim_date,omitempty"`
	LastClaimedAt  *time.Time `json:"last_claimed_at,omitempty"`
	NextEligibleAt time.Time  `json:"next_eligible_at"`
}

type WatchEligibility struct {
	Available         bool          `json:"available"`
	RemainingToday    int           `json:"remaining_today"`
	Reward            int64         `json:"reward"`
	CooldownMinutes   int           `json:"cooldown_minutes"`
	MaxViewsPerDay    int           `json:"max_views_per_day"`
	NextAvailableAt   time.Time     `json:"next_available_at"`
	CooldownRemaining time.Duration `json:"cooldown_remaining_ns"`
	LastWatchedAt     *time.Time    `json:"last_watched_at,omitempty"`
}

// Eligibility is the advisory "can I claim now" view. It may be computed
// from stale data; the engine re-validates everything at claim time.
type Eligibility struct {
	UserID       string                `json:"user_id"`
	TotalCoins   int64                 `json:"total_coins"`
	Coins        int64                 `json:"coins"`
	DailyBonus   DailyBonusEligibility `json:"daily_bonus"`
	WatchAndEarn WatchEligibility      `json:"watch_and_earn"`
	ComputedAt   time.Time             `json:"computed_at"`
}

// ProjectEligibility derives display state from an engagement snapshot. Pure.
func ProjectEligibility(cfg models.EngagementConfig, days DayPolicy, snap models.VaultSnapshot, now time.Time) Eligibility {
	todayID := days.DayID(now)
	yesterdayID := days.PreviousDayID(now)

	daily := snap.Engagement.DailyBonus
	claimedToday := daily.LastClaimDate == todayID
	nextStreak := daily.Streak
	if !claimedToday {
		nextStreak = 1
		if daily.LastClaimDate == yesterdayID {
			nextStreak = daily.Streak + 1
		}
	}
	projected := nextStreak
	if claimedToday && projected < 1 {
		projected = 1
	}
	nextEligible := now
	if claimedToday {
		nextEligible = days.StartOfNextDay(now)
	}

	watch := snap.Engagement.WatchAndEarn
	watchCfg := cfg.WatchAndEarn
	watchesToday := 0
	if watch.LastWatchDate == todayID {
		watchesToday = watch.WatchesToday
	}
	remaining := watchCfg.MaxViewsPerDay - watchesToday
	if remaining < 0 {
		remaining = 0
	}
	var cooldownLeft time.Duration
	if watch.LastWatchedAt != nil {
		if until := watch.LastWatchedAt.Add(watchCfg.Cooldown()); until.After(now) {
			cooldownLeft = until.Sub(now)
		}
	}
	nextWatch := now.Add(cooldownLeft)
	if remaining == 0 {
		nextWatch = days.StartOfNextDay(now)
		if cooldownLeft > 0 && now.Add(cooldownLeft).After(nextWatch) {
			nextWatch = now.Add(cooldownLeft)
		}
	}

	hasUser := snap.UserID != ""
	return Eligibility{
		UserID:     snap.UserID,
		TotalCoins: snap.TotalCoins,
		Coins:      snap.Coins,
		DailyBonus: DailyBonusEligibility{
			Streak:         daily.Streak,
			NextStreak:     nextStreak,
			Reward:         ComputeDailyBonusReward(cfg.DailyBonus, projected),
			Available:      hasUser && !claimedToday,
			LastClaimDate:  daily.LastClaimDate,
			LastClaimedAt:  daily.LastClaimedAt,
			NextEligibleAt: nextEligible,
		},
		WatchAndEarn: WatchEligibility{
			Available:         hasUser && remaining > 0 && cooldownLeft == 0,
			RemainingToday:    remaining,
			Reward:            WatchReward(watchCfg),
			CooldownMinutes:   watchCfg.CooldownMinutes,
			MaxViewsPerDay:    watchCfg.MaxViewsPerDay,
			NextAvailableAt:   nextWatch,
			CooldownRemaining: cooldownLeft,
			LastWatchedAt:     watch.LastWatchedAt,
		},
		ComputedAt: now,
	}
}

// Eligibility reads a fresh snapshot and projects it.
func (e *RewardEngine) Eligibility(ctx context.Context, userID string, now time.Time) (Eligibility, error) {
	if missingUser(userID) {
		return Eligibility{}, ErrInvalidUser
	}
	cfg, err := e.Catalog.Engagement(ctx)
	if err != nil {
		return Eligibility{}, fmt.Errorf("load engagement config: %w", err)
	}
	snap, err := e.Store.Snapshot(ctx, userID)
	if err != nil {
		return Eligibility{}, fmt.Errorf("read vault snapshot: %w", err)
	}
	return ProjectEligibility(cfg, e.Days, snap, now), nil
}
