package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"coin-vault-service/models"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type profileChangesResponse struct {
	Users []models.RemoteProfile `json:"users"`
}

// ProfileSyncWorker mirrors users from the profile service into
// user_profiles so the balance mirror row exists before the first claim.
// It only ever writes username; coins belong to the reward engine.
type ProfileSyncWorker struct {
	DB           *gorm.DB
	BaseURL      string
	EndpointPath string
	ServiceToken string
	Interval     time.Duration
	HTTPClient   *http.Client
	Clock        clockwork.Clock
	Logger       *zap.Logger

	since time.Time
}

func NewProfileSyncWorker(db *gorm.DB, baseURL, endpointPath, serviceToken string, logger *zap.Logger) *ProfileSyncWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileSyncWorker{
		DB:           db,
		BaseURL:      baseURL,
		EndpointPath: endpointPath,
		ServiceToken: serviceToken,
		Interval:     time.Minute,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		Clock:        clockwork.NewRealClock(),
		Logger:       logger,
	}
}

// Run backfills once, then polls until ctx is cancelled.
func (w *ProfileSyncWorker) Run(ctx context.Context) {
	w.Logger.Info("🔁 starting profile sync worker (profile service → user_profiles)")
	if _, err := w.SyncOnce(ctx); err != nil {
		w.Logger.Warn("⚠️ initial profile sync failed", zap.Error(err))
	}

	ticker := w.Clock.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			if _, err := w.SyncOnce(ctx); err != nil {
				w.Logger.Error("❌ profile sync batch failed", zap.Error(err))
			}
		case <-ctx.Done():
			w.Logger.Info("⏹️ profile sync worker stopped")
			return
		}
	}
}

// SyncOnce pulls changes since the last seen update and upserts them.
// It returns the number of rows written.
func (w *ProfileSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	users, err := w.fetch(ctx, w.since)
	if err != nil {
		return 0, err
	}
	if len(users) == 0 {
		return 0, nil
	}

	var upserted int
	for _, u := range users {
		userID := u.ExternalID
		if userID == "" {
			userID = u.ID
		}
		if userID == "" {
			continue
		}
		row := models.UserProfile{UserID: userID, Username: u.Username}
		err := w.DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			w.Logger.Warn("⚠️ failed to upsert user profile", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		upserted++
		if u.UpdatedAt.After(w.since) {
			w.since = u.UpdatedAt
		}
	}

	w.Logger.Info("✅ profile sync batch", zap.Int("received", len(users)), zap.Int("upserted", upserted),
		zap.Time("cursor", w.since))
	return upserted, nil
}

func (w *ProfileSyncWorker) fetch(ctx context.Context, since time.Time) ([]models.RemoteProfile, error) {
	base, err := url.Parse(w.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid sync service URL %q: %w", w.BaseURL, err)
	}
	endpoint := base.JoinPath(w.EndpointPath)
	q := endpoint.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Service-Token", w.ServiceToken)

	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request sync service: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned %d: %s", resp.StatusCode, body)
	}

	var out profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode sync service response: %w", err)
	}
	return out.Users, nil
}
