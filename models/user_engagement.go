package models

import (
	"time"
)

// UserEngagement gates the recurring rewards (table: user_engagements).
// Both sub-states are reset implicitly by comparing stored day ids to today.
type UserEngagement struct {
	UserID string `gorm:"primaryKey;type:varchar(128)" json:"user_id"`

	DailyBonus   DailyBonusState   `gorm:"embedded;embeddedPrefix:daily_" json:"dailyBonus"`
	WatchAndEarn WatchAndEarnState `gorm:"embedded;embeddedPrefix:watch_" json:"watchAndEarn"`

	Timestamps
}

func (UserEngagement) TableName() string { return "user_engagements" }

type DailyBonusState struct {
	LastClaimDate string     `gorm:"type:varchar(10)" json:"lastClaimDate,omitempty"` // YYYY-MM-DD
	Streak        int        `gorm:"default:0" json:"streak"`
	TotalClaims   int64      `gorm:"default:0" json:"totalClaims"`
	LastReward    int64      `gorm:"default:0" json:"lastReward"`
	LastClaimedAt *time.Time `json:"lastClaimedAt,omitempty"`
}

type WatchAndEarnState struct {
	LastWatchDate string     `gorm:"type:varchar(10)" json:"lastWatchDate,omitempty"`
	WatchesToday  int        `gorm:"default:0" json:"watchesToday"`
	TotalViews    int64      `gorm:"default:0" json:"totalViews"`
	LastReward    int64      `gorm:"default:0" json:"lastReward"`
	LastWatchedAt *time.Time `json:"lastWatchedAt,omitempty"` // cooldown anchor
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
