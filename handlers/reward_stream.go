package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"coin-vault-service/middleware"
	"coin-vault-service/models"
	"coin-vault-service/services"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// VaultStream pushes a `vault` event whenever a user's balance or engagement
// state changes. It polls the store; there is no change feed.
type VaultStream struct {
	Engine    *services.RewardEngine
	Clock     clockwork.Clock
	Logger    *zap.Logger
	Interval  time.Duration
	KeepAlive time.Duration

	// Done ends every open stream, e.g. on shutdown.
	Done <-chan struct{}
}

func NewVaultStream(engine *services.RewardEngine, clock clockwork.Clock, logger *zap.Logger, done <-chan struct{}) *VaultStream {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VaultStream{Engine: engine, Clock: clock, Logger: logger, Interval: 2 * time.Second, KeepAlive: 15 * time.Second, Done: done}
}

func SetupStreamRoutes(app *fiber.App, s *VaultStream, auth middleware.TokenValidator) {
	app.Get("/rewards/stream", middleware.SSEAuthMiddleware(auth, s.Logger), s.Stream)
}

// vaultFingerprint changes whenever anything the client renders changes.
func vaultFingerprint(snap models.VaultSnapshot) string {
	d := snap.Engagement.DailyBonus
	w := snap.Engagement.WatchAndEarn
	return fmt.Sprintf("%d|%d|%d|%s|%d|%s|%d|%d",
		snap.TotalCoins, snap.Coins, len(snap.Entries),
		d.LastClaimDate, d.Streak,
		w.LastWatchDate, w.WatchesToday, w.TotalViews)
}

func writeEvent(w *bufio.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}

// poll sends a vault event if the fingerprint moved. It returns the new
// fingerprint and any write error (a write error means the client left).
func (s *VaultStream) poll(ctx context.Context, w *bufio.Writer, userID, last string) (string, error) {
	snap, err := s.Engine.Store.Snapshot(ctx, userID)
	if err != nil {
		s.Logger.Warn("SSE snapshot failed", zap.String("user_id", userID), zap.Error(err))
		return last, nil
	}
	fp := vaultFingerprint(snap)
	if fp == last {
		return last, nil
	}
	rules, err := s.Engine.Catalog.Engagement(ctx)
	if err != nil {
		s.Logger.Warn("SSE engagement config failed", zap.Error(err))
		return last, nil
	}
	el := services.ProjectEligibility(rules, s.Engine.Days, snap, s.Clock.Now())
	return fp, writeEvent(w, "vault", el)
}

func (s *VaultStream) Stream(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ticker := s.Clock.NewTicker(s.Interval)
		defer ticker.Stop()
		lastWrite := s.Clock.Now()

		fp, err := s.poll(ctx, w, userID, "")
		if err != nil {
			return
		}
		for {
			select {
			case <-ticker.Chan():
				next, err := s.poll(ctx, w, userID, fp)
				if err != nil {
					return
				}
				if next != fp {
					fp = next
					lastWrite = s.Clock.Now()
					continue
				}
				if s.Clock.Since(lastWrite) >= s.KeepAlive {
					if _, err := w.WriteString(":\n\n"); err != nil {
						return
					}
					if err := w.Flush(); err != nil {
						return
					}
					lastWrite = s.Clock.Now()
				}
			case <-s.Done:
				return
			}
		}
	})
	return nil
}
