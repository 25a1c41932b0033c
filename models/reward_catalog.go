package models

import (
	"time"

	"gorm.io/datatypes"
)

// RewardKind tells the ledger which rule produced a claim
type RewardKind string

const (
	RewardKindFragment     RewardKind = "fragment"
	RewardKindDailyBonus   RewardKind = "dailyBonus"
	RewardKindWatchSession RewardKind = "watchAndEarn"
)

// FragmentRarity is a display tag carried into the ledger entry
type FragmentRarity string

const (
	RarityCommon    FragmentRarity = "common"
	RarityRare      FragmentRarity = "rare"
	RarityEpic      FragmentRarity = "epic"
	RarityLegendary FragmentRarity = "legendary"
)

// Valid reports whether r is one of the known rarity tags.
func (r FragmentRarity) Valid() bool {
	switch r {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	}
	return false
}

// CoinFragment is a one-time claimable catalog entry with a fixed coin value.
type CoinFragment struct {
	ID          string         `json:"id" yaml:"id"`
	Title       string         `json:"title" yaml:"title"`
	Description string         `json:"description" yaml:"description"`
	Value       int64          `json:"value" yaml:"value"`
	Rarity      FragmentRarity `json:"rarity" yaml:"rarity"`
	Accent      string         `json:"accent,omitempty" yaml:"accent"`
	Glow        string         `json:"glow,omitempty" yaml:"glow"`
}

// CashoutConfig is read by the payout collaborator; the ledger never spends coins.
type CashoutConfig struct {
	MinCoins     int64   `json:"minCoins" yaml:"minCoins"`
	ExchangeRate float64 `json:"exchangeRate" yaml:"exchangeRate"`
	Currency     string  `json:"currency" yaml:"currency"`
}

// CoinRewardConfig is the admin managed "coinRewards" document
type CoinRewardConfig struct {
	Fragments []CoinFragment `json:"fragments" yaml:"fragments"`
	Cashout   CashoutConfig  `json:"cashout" yaml:"cashout"`
}

// DailyBonusConfig: reward = round(BaseReward * StreakMultipliers[min(streak, CapStreak)-1])
type DailyBonusConfig struct {
	BaseReward        int64     `json:"baseReward" yaml:"baseReward"`
	StreakMultipliers []float64 `json:"streakMultipliers" yaml:"streakMultipliers"`
	CapStreak         int       `json:"capStreak" yaml:"capStreak"`
}

type WatchAndEarnConfig struct {
	RewardPerView   float64 `json:"rewardPerView" yaml:"rewardPerView"`
	CooldownMinutes int     `json:"cooldownMinutes" yaml:"cooldownMinutes"`
	MaxViewsPerDay  int     `json:"maxViewsPerDay" yaml:"maxViewsPerDay"`
}

// Cooldown returns the minimum gap between two watch claims.
func (c WatchAndEarnConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// EngagementConfig is the admin managed "engagement" document
type EngagementConfig struct {
	DailyBonus   DailyBonusConfig   `json:"dailyBonus" yaml:"dailyBonus"`
	WatchAndEarn WatchAndEarnConfig `json:"watchAndEarn" yaml:"watchAndEarn"`
}

var DefaultCoinRewardConfig = CoinRewardConfig{
	Fragments: []CoinFragment{
		{
			ID:          "aurora-prism",
			Title:       "Aurora Prism",
			Description: "Shimmers with polar light and unlocks a burst of squad energy.",
			Value:       120,
			Rarity:      RarityRare,
			Accent:      "from-cyan-400 via-sky-500 to-blue-600",
			Glow:        "shadow-[0_0_60px_rgba(56,189,248,0.45)]",
		},
		{
			ID:          "solstice-core",
			Title:       "Solstice Core",
			Description: "A molten fragment forged at the height of a solar flare.",
			Value:       260,
			Rarity:      RarityEpic,
			Accent:      "from-amber-400 via-orange-500 to-rose-500",
			Glow:        "shadow-[0_0_70px_rgba(251,191,36,0.4)]",
		},
		{
			ID:          "lunar-quartz",
			Title:       "Lunar Quartz",
			Description: "Captured moonlight that amplifies your co-op resonance.",
			Value:       80,
			Rarity:      RarityCommon,
			Accent:      "from-slate-200 via-indigo-300 to-sky-400",
			Glow:        "shadow-[0_0_45px_rgba(129,140,248,0.35)]",
		},
		{
			ID:          "eclipse-vein",
			Title:       "Eclipse Vein",
			Description: "Rare alloy balanced between dark and radiant energy.",
			Value:       400,
			Rarity:      RarityLegendary,
			Accent:      "from-purple-500 via-fuchsia-500 to-violet-600",
			Glow:        "shadow-[0_0_80px_rgba(168,85,247,0.45)]",
		},
	},
	Cashout: CashoutConfig{
		MinCoins:     1000,
		ExchangeRate: 0.5,
		Currency:     "INR",
	},
}

var DefaultEngagementConfig = EngagementConfig{
	DailyBonus: DailyBonusConfig{
		BaseReward:        120,
		StreakMultipliers: []float64{1, 1.2, 1.5, 1.8, 2, 2.25, 2.5},
		CapStreak:         14,
	},
	WatchAndEarn: WatchAndEarnConfig{
		RewardPerView:   80,
		CooldownMinutes: 30,
		MaxViewsPerDay:  5,
	},
}

// Config document names
const (
	ConfigCoinRewards = "coinRewards"
	ConfigEngagement  = "engagement"
)

// RewardConfigDocument stores one admin config document as JSON.
// Table name: reward_configs
type RewardConfigDocument struct {
	Name      string         `gorm:"primaryKey;type:varchar(64)" json:"name"`
	Payload   datatypes.JSON `gorm:"not null" json:"payload"`
	UpdatedBy string         `gorm:"type:varchar(128)" json:"updated_by"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (RewardConfigDocument) TableName() string { return "reward_configs" }
