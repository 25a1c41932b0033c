package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coin-vault-service/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUnknownConfig = errors.New("unknown config document")
	ErrInvalidConfig = errors.New("invalid config document")
)

// ConfigStore keeps the admin managed reward configuration in reward_configs.
// Missing documents fall back to Defaults; stored documents are decoded
// over Defaults so partial payloads keep the remaining values.
type ConfigStore struct {
	DB *gorm.DB

	// Defaults is the base catalog, usually the built-in one or a YAML file.
	Defaults *StaticCatalog
}

func NewConfigStore(db *gorm.DB, defaults *StaticCatalog) *ConfigStore {
	if defaults == nil {
		defaults = NewStaticCatalog()
	}
	return &ConfigStore{DB: db, Defaults: defaults}
}

func (s *ConfigStore) baseRewards() models.CoinRewardConfig {
	cfg := s.Defaults.Rewards
	cfg.Fragments = append([]models.CoinFragment(nil), cfg.Fragments...)
	return cfg
}

func (s *ConfigStore) baseEngagement() models.EngagementConfig {
	cfg := s.Defaults.Rules
	cfg.DailyBonus.StreakMultipliers = append([]float64(nil), cfg.DailyBonus.StreakMultipliers...)
	return cfg
}

func (s *ConfigStore) load(ctx context.Context, name string) (datatypes.JSON, error) {
	var doc models.RewardConfigDocument
	err := s.DB.WithContext(ctx).Where("name = ?", name).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.Payload, nil
}

func (s *ConfigStore) CoinRewards(ctx context.Context) (models.CoinRewardConfig, error) {
	payload, err := s.load(ctx, models.ConfigCoinRewards)
	if err != nil || payload == nil {
		return s.baseRewards(), err
	}
	cfg, err := decodeCoinRewards(s.baseRewards(), payload)
	if err != nil {
		return cfg, fmt.Errorf("decode %s: %w", models.ConfigCoinRewards, err)
	}
	return cfg, nil
}

func (s *ConfigStore) Engagement(ctx context.Context) (models.EngagementConfig, error) {
	cfg := s.baseEngagement()
	payload, err := s.load(ctx, models.ConfigEngagement)
	if err != nil || payload == nil {
		return cfg, err
	}
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", models.ConfigEngagement, err)
	}
	return cfg, nil
}

// Get returns the effective document (stored values merged over defaults).
func (s *ConfigStore) Get(ctx context.Context, name string) (any, error) {
	switch name {
	case models.ConfigCoinRewards:
		return s.CoinRewards(ctx)
	case models.ConfigEngagement:
		return s.Engagement(ctx)
	}
	return nil, ErrUnknownConfig
}

// Save validates payload against the document's schema and upserts it.
// The normalized document is stored and returned.
func (s *ConfigStore) Save(ctx context.Context, name string, payload []byte, updatedBy string) (any, error) {
	var normalized any
	switch name {
	case models.ConfigCoinRewards:
		cfg, err := decodeCoinRewards(s.baseRewards(), payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		out, err := NormalizeCoinRewards(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		normalized = out
	case models.ConfigEngagement:
		cfg := s.baseEngagement()
		if err := json.Unmarshal(payload, &cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if err := ValidateEngagement(cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		normalized = cfg
	default:
		return nil, ErrUnknownConfig
	}

	encoded, err := json.Marshal(normalized)
	if err != nil {
		return nil, err
	}
	doc := models.RewardConfigDocument{Name: name, Payload: datatypes.JSON(encoded), UpdatedBy: updatedBy}
	err = s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_by", "updated_at"}),
	}).Create(&doc).Error
	if err != nil {
		return nil, err
	}
	return normalized, nil
}

// decodeCoinRewards decodes payload over base. A fragments list in the
// payload replaces the base list instead of merging element by element.
func decodeCoinRewards(base models.CoinRewardConfig, payload []byte) (models.CoinRewardConfig, error) {
	cfg := base
	cfg.Fragments = nil
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return base, err
	}
	if cfg.Fragments == nil {
		cfg.Fragments = base.Fragments
	}
	return cfg, nil
}

// CachedCatalog is a Redis read-through cache in front of another catalog.
// A nil Redis client disables caching.
type CachedCatalog struct {
	Source RewardCatalog
	Redis  *redis.Client
	TTL    time.Duration
	Prefix string
	Logger *zap.Logger
}

func NewCachedCatalog(source RewardCatalog, rc *redis.Client, ttl time.Duration) *CachedCatalog {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedCatalog{Source: source, Redis: rc, TTL: ttl, Prefix: "vault:catalog:", Logger: zap.NewNop()}
}

func (c *CachedCatalog) CoinRewards(ctx context.Context) (models.CoinRewardConfig, error) {
	var cfg models.CoinRewardConfig
	if c.get(ctx, models.ConfigCoinRewards, &cfg) {
		return cfg, nil
	}
	cfg, err := c.Source.CoinRewards(ctx)
	if err != nil {
		return cfg, err
	}
	c.set(ctx, models.ConfigCoinRewards, cfg)
	return cfg, nil
}

func (c *CachedCatalog) Engagement(ctx context.Context) (models.EngagementConfig, error) {
	var cfg models.EngagementConfig
	if c.get(ctx, models.ConfigEngagement, &cfg) {
		return cfg, nil
	}
	cfg, err := c.Source.Engagement(ctx)
	if err != nil {
		return cfg, err
	}
	c.set(ctx, models.ConfigEngagement, cfg)
	return cfg, nil
}

// Invalidate drops every cached document; called after admin writes.
func (c *CachedCatalog) Invalidate(ctx context.Context) {
	if c.Redis == nil {
		return
	}
	keys := []string{c.Prefix + models.ConfigCoinRewards, c.Prefix + models.ConfigEngagement}
	if err := c.Redis.Del(ctx, keys...).Err(); err != nil {
		c.Logger.Warn("catalog cache invalidate failed", zap.Error(err))
	}
}

func (c *CachedCatalog) get(ctx context.Context, name string, dst any) bool {
	if c.Redis == nil {
		return false
	}
	b, err := c.Redis.Get(ctx, c.Prefix+name).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.Logger.Debug("catalog cache miss", zap.String("doc", name), zap.Error(err))
		}
		return false
	}
	return json.Unmarshal(b, dst) == nil
}

func (c *CachedCatalog) set(ctx context.Context, name string, v any) {
	if c.Redis == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.Redis.Set(ctx, c.Prefix+name, b, c.TTL).Err(); err != nil {
		c.Logger.Warn("catalog cache set failed", zap.String("doc", name), zap.Error(err))
	}
}
