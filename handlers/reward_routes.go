package handlers

import (
	"errors"
	"math"
	"strconv"
	"time"

	"coin-vault-service/middleware"
	"coin-vault-service/services"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// RewardHandler serves the user-facing vault endpoints.
type RewardHandler struct {
	Engine     *services.RewardEngine
	Statements *services.StatementService
	Clock      clockwork.Clock
	Logger     *zap.Logger
}

func NewRewardHandler(engine *services.RewardEngine, statements *services.StatementService, clock clockwork.Clock, logger *zap.Logger) *RewardHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RewardHandler{Engine: engine, Statements: statements, Clock: clock, Logger: logger}
}

// SetupRewardRoutes registers /rewards/*. Claims are rate limited per user
// when limiter is non-nil.
func SetupRewardRoutes(app *fiber.App, h *RewardHandler, limiter *middleware.ClaimRateLimiter) {
	userCtx := middleware.UserContextMiddleware()
	claim := []fiber.Handler{userCtx}
	if limiter != nil {
		claim = append(claim, limiter.Handler())
	}

	r := app.Group("/rewards")
	r.Post("/fragments/:id/claim", append(claim, h.claimFragment)...)
	r.Post("/daily/claim", append(claim, h.claimDaily)...)
	r.Post("/watch/claim", append(claim, h.claimWatch)...)
	r.Get("/status", userCtx, h.status)
	r.Get("/vault", userCtx, h.vault)
	r.Get("/catalog", userCtx, h.catalog)
	r.Post("/cashout/quote", userCtx, h.cashoutQuote)
	r.Post("/statements", userCtx, h.exportStatement)
}

func (h *RewardHandler) claimFragment(c *fiber.Ctx) error {
	res, err := h.Engine.ClaimFragment(c.UserContext(), middleware.UserID(c), c.Params("id"), h.Clock.Now())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(res)
}

func (h *RewardHandler) claimDaily(c *fiber.Ctx) error {
	res, err := h.Engine.ClaimDailyBonus(c.UserContext(), middleware.UserID(c), h.Clock.Now())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(res)
}

func (h *RewardHandler) claimWatch(c *fiber.Ctx) error {
	res, err := h.Engine.ClaimWatchReward(c.UserContext(), middleware.UserID(c), h.Clock.Now())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(res)
}

func (h *RewardHandler) status(c *fiber.Ctx) error {
	el, err := h.Engine.Eligibility(c.UserContext(), middleware.UserID(c), h.Clock.Now())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(el)
}

func (h *RewardHandler) vault(c *fiber.Ctx) error {
	snap, err := h.Engine.Store.Snapshot(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(snap)
}

func (h *RewardHandler) catalog(c *fiber.Ctx) error {
	rewards, err := h.Engine.Catalog.CoinRewards(c.UserContext())
	if err != nil {
		return h.writeError(c, err)
	}
	rules, err := h.Engine.Catalog.Engagement(c.UserContext())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(fiber.Map{"coin_rewards": rewards, "engagement": rules})
}

type cashoutQuoteRequest struct {
	Coins int64 `json:"coins"`
}

func (h *RewardHandler) cashoutQuote(c *fiber.Ctx) error {
	var req cashoutQuoteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}
	quote, err := h.Engine.QuoteCashout(c.UserContext(), middleware.UserID(c), req.Coins)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(quote)
}

func (h *RewardHandler) exportStatement(c *fiber.Ctx) error {
	if h.Statements == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "statement export is not configured"})
	}
	receipt, err := h.Statements.Export(c.UserContext(), middleware.UserID(c), h.Clock.Now())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(receipt)
}

// writeError maps service errors onto HTTP responses.
func (h *RewardHandler) writeError(c *fiber.Ctx, err error) error {
	var cooldown *services.CooldownError
	switch {
	case errors.Is(err, services.ErrInvalidUser):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrRewardNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case services.IsDuplicateClaim(err):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "duplicate": true})
	case errors.As(err, &cooldown):
		c.Set(fiber.HeaderRetryAfter, retryAfter(cooldown.Remaining))
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":             err.Error(),
			"minutes_remaining": cooldown.MinutesRemaining(),
			"available_at":      cooldown.AvailableAt,
		})
	case errors.Is(err, services.ErrDailyLimitReached):
		now := h.Clock.Now()
		c.Set(fiber.HeaderRetryAfter, retryAfter(h.Engine.Days.StartOfNextDay(now).Sub(now)))
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrBelowCashoutMinimum),
		errors.Is(err, services.ErrInvalidCashoutAmount),
		errors.Is(err, services.ErrInsufficientCoins):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrTransactionConflict):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	h.Logger.Error("reward request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

func retryAfter(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
