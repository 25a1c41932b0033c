package services

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"coin-vault-service/models"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

// RewardCatalog is the read-only source of reward definitions.
// The engine never writes through it.
type RewardCatalog interface {
	CoinRewards(ctx context.Context) (models.CoinRewardConfig, error)
	Engagement(ctx context.Context) (models.EngagementConfig, error)
}

// LookupFragment resolves a fragment id, or ErrRewardNotFound when an admin
// removed or renamed it.
func LookupFragment(ctx context.Context, catalog RewardCatalog, fragmentID string) (models.CoinFragment, error) {
	if reservedClaimID(fragmentID) {
		return models.CoinFragment{}, ErrRewardNotFound
	}
	cfg, err := catalog.CoinRewards(ctx)
	if err != nil {
		return models.CoinFragment{}, fmt.Errorf("load reward catalog: %w", err)
	}
	if f, ok := FindFragment(cfg, fragmentID); ok {
		return f, nil
	}
	return models.CoinFragment{}, ErrRewardNotFound
}

func FindFragment(cfg models.CoinRewardConfig, fragmentID string) (models.CoinFragment, bool) {
	for _, f := range cfg.Fragments {
		if f.ID == fragmentID {
			return f, true
		}
	}
	return models.CoinFragment{}, false
}

// ComputeDailyBonusReward applies the streak multiplier table.
// The streak is capped at CapStreak and the index clamped to the table, so a
// non-positive CapStreak pins the first multiplier.
func ComputeDailyBonusReward(cfg models.DailyBonusConfig, streak int) int64 {
	capped := min(streak, cfg.CapStreak)
	multiplier := 1.0
	if n := len(cfg.StreakMultipliers); n > 0 {
		idx := capped - 1
		if idx < 0 {
			idx = 0
		}
		if idx > n-1 {
			idx = n - 1
		}
		multiplier = cfg.StreakMultipliers[idx]
	}
	return int64(math.Round(float64(cfg.BaseReward) * multiplier))
}

// WatchReward is the per-session payout.
func WatchReward(cfg models.WatchAndEarnConfig) int64 {
	return int64(math.Round(cfg.RewardPerView))
}

// DefaultCoinRewards returns a deep copy of the built-in fragment catalog.
func DefaultCoinRewards() models.CoinRewardConfig {
	cfg := models.DefaultCoinRewardConfig
	cfg.Fragments = append([]models.CoinFragment(nil), models.DefaultCoinRewardConfig.Fragments...)
	return cfg
}

// DefaultEngagement returns a deep copy of the built-in engagement rules.
func DefaultEngagement() models.EngagementConfig {
	cfg := models.DefaultEngagementConfig
	cfg.DailyBonus.StreakMultipliers = append([]float64(nil), models.DefaultEngagementConfig.DailyBonus.StreakMultipliers...)
	return cfg
}

// NormalizeCoinRewards fills missing fragment ids from titles and rejects
// duplicates or negative values.
func NormalizeCoinRewards(cfg models.CoinRewardConfig) (models.CoinRewardConfig, error) {
	seen := make(map[string]struct{}, len(cfg.Fragments))
	out := cfg
	out.Fragments = make([]models.CoinFragment, 0, len(cfg.Fragments))
	for i, f := range cfg.Fragments {
		f.ID = strings.TrimSpace(f.ID)
		if f.ID == "" {
			f.ID = slug.Make(f.Title)
		}
		if f.ID == "" {
			return cfg, fmt.Errorf("fragment %d: id or title required", i)
		}
		if reservedClaimID(f.ID) {
			return cfg, fmt.Errorf("fragment %q: ids starting with %q or %q are reserved", f.ID, dailyClaimPrefix, watchClaimPrefix)
		}
		if _, dup := seen[f.ID]; dup {
			return cfg, fmt.Errorf("fragment %q: duplicate id", f.ID)
		}
		seen[f.ID] = struct{}{}
		if f.Value < 0 {
			return cfg, fmt.Errorf("fragment %q: value must be non-negative", f.ID)
		}
		if f.Rarity == "" {
			f.Rarity = models.RarityCommon
		}
		if !f.Rarity.Valid() {
			return cfg, fmt.Errorf("fragment %q: unknown rarity %q", f.ID, f.Rarity)
		}
		out.Fragments = append(out.Fragments, f)
	}
	if out.Cashout.MinCoins < 0 || out.Cashout.ExchangeRate < 0 {
		return cfg, fmt.Errorf("cashout thresholds must be non-negative")
	}
	return out, nil
}

// ValidateEngagement checks the rule parameters an admin may edit.
func ValidateEngagement(cfg models.EngagementConfig) error {
	d := cfg.DailyBonus
	if d.BaseReward < 0 {
		return fmt.Errorf("dailyBonus.baseReward must be non-negative")
	}
	if d.CapStreak < 1 {
		return fmt.Errorf("dailyBonus.capStreak must be at least 1")
	}
	for i := 1; i < len(d.StreakMultipliers); i++ {
		if d.StreakMultipliers[i] < d.StreakMultipliers[i-1] {
			return fmt.Errorf("dailyBonus.streakMultipliers must be non-decreasing")
		}
	}
	for _, m := range d.StreakMultipliers {
		if m < 0 {
			return fmt.Errorf("dailyBonus.streakMultipliers must be non-negative")
		}
	}
	w := cfg.WatchAndEarn
	if w.RewardPerView < 0 || w.CooldownMinutes < 0 || w.MaxViewsPerDay < 0 {
		return fmt.Errorf("watchAndEarn values must be non-negative")
	}
	return nil
}

// StaticCatalog serves a fixed configuration held in memory.
type StaticCatalog struct {
	Rewards models.CoinRewardConfig
	Rules   models.EngagementConfig
}

func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{Rewards: DefaultCoinRewards(), Rules: DefaultEngagement()}
}

func (s *StaticCatalog) CoinRewards(context.Context) (models.CoinRewardConfig, error) {
	return s.Rewards, nil
}

func (s *StaticCatalog) Engagement(context.Context) (models.EngagementConfig, error) {
	return s.Rules, nil
}

// catalogFile is the YAML layout accepted by LoadCatalogFile.
type catalogFile struct {
	CoinRewards models.CoinRewardConfig `yaml:"coinRewards"`
	Engagement  models.EngagementConfig `yaml:"engagement"`
}

// LoadCatalogFile reads a YAML catalog; keys absent from the file keep their defaults.
func LoadCatalogFile(path string) (*StaticCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	file := catalogFile{CoinRewards: DefaultCoinRewards(), Engagement: DefaultEngagement()}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	rewards, err := NormalizeCoinRewards(file.CoinRewards)
	if err != nil {
		return nil, err
	}
	if err := ValidateEngagement(file.Engagement); err != nil {
		return nil, err
	}
	return &StaticCatalog{Rewards: rewards, Rules: file.Engagement}, nil
}
