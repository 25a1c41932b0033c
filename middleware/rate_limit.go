package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	limiterIdle  = 5 * time.Minute
	limiterSweep = time.Minute
)

type userLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// ClaimRateLimiter is a token bucket per user id. Idle buckets are dropped
// by a sweep that runs at most once per limiterSweep.
type ClaimRateLimiter struct {
	limit rate.Limit
	burst int
	clock clockwork.Clock

	mu        sync.Mutex
	limiters  map[string]*userLimiter
	lastSweep time.Time
}

func NewClaimRateLimiter(perMinute int, clock clockwork.Clock) *ClaimRateLimiter {
	perMinute = max(perMinute, 1)
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ClaimRateLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    max(perMinute/2, 1),
		clock:    clock,
		limiters: map[string]*userLimiter{},
	}
}

// Allow consumes one token for key.
func (l *ClaimRateLimiter) Allow(key string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) >= limiterSweep {
		l.sweepLocked(now)
	}
	ul, ok := l.limiters[key]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = ul
	}
	ul.expires = now.Add(limiterIdle)
	return ul.limiter.AllowN(now, 1)
}

func (l *ClaimRateLimiter) sweepLocked(now time.Time) {
	for k, ul := range l.limiters {
		if now.After(ul.expires) {
			delete(l.limiters, k)
		}
	}
	l.lastSweep = now
}

// Handler limits by authenticated user, falling back to client IP.
func (l *ClaimRateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := UserID(c)
		if key == "" {
			key = c.IP()
		}
		if !l.Allow(key) {
			c.Set(fiber.HeaderRetryAfter, "1")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		}
		return c.Next()
	}
}
