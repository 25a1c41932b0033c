package utils

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedis returns a client for the catalog cache, or nil when addr is empty.
// A failed ping is logged but not fatal: the cache falls through to the store.
func NewRedis(cfg AppConfig) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	rc := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		Sugar.Warnf("⚠️  redis ping failed (%s): %v", cfg.RedisAddr, err)
	}
	return rc
}
