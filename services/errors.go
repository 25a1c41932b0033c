package services

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrInvalidUser         = errors.New("missing user id")
	ErrRewardNotFound      = errors.New("selected reward is no longer available")
	ErrAlreadyClaimed      = errors.New("reward already claimed")
	ErrAlreadyClaimedToday = fmt.Errorf("daily login bonus already claimed today: %w", ErrAlreadyClaimed)
	ErrDailyLimitReached   = errors.New("daily watch limit reached")
	ErrCooldownActive      = errors.New("cooldown active")
	ErrTransactionConflict = errors.New("transaction conflict, please retry")
)

// CooldownError is returned when a watch claim arrives before the cooldown elapsed.
type CooldownError struct {
	Remaining   time.Duration
	AvailableAt time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("next watch available in %d minute(s)", e.MinutesRemaining())
}

func (e *CooldownError) Is(target error) bool { return target == ErrCooldownActive }

// MinutesRemaining rounds up so a caller never retries too early.
func (e *CooldownError) MinutesRemaining() int {
	return int(math.Ceil(e.Remaining.Minutes()))
}

// IsDuplicateClaim separates "already succeeded" outcomes from real failures.
func IsDuplicateClaim(err error) bool {
	return errors.Is(err, ErrAlreadyClaimed)
}
