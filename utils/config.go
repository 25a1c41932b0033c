package utils

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig is everything main needs to wire the service.
type AppConfig struct {
	Port              string
	DatabaseURL       string
	GameServiceToken  string
	AllowedOrigins    string
	AuthServiceURL    string
	SyncServiceURL    string
	SyncProfilesPath  string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	CatalogCacheTTL   time.Duration
	RewardCatalogFile string
	DayBoundaryTZ     string

	LedgerAuditInterval time.Duration
	ClaimRatePerMinute  int

	R2AccountID string
	R2AccessKey string
	R2SecretKey string
	R2Bucket    string
	CDNBaseURL  string

	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (AppConfig, error) {
	_ = godotenv.Load()

	cfg := AppConfig{
		Port:                getEnv("PORT", "5200"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		GameServiceToken:    os.Getenv("GAME_SERVICE_TOKEN"),
		AllowedOrigins:      getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		AuthServiceURL:      os.Getenv("AUTH_SERVICE_URL"),
		SyncServiceURL:      os.Getenv("SYNC_SERVICE_URL"),
		SyncProfilesPath:    getEnv("SYNC_PROFILES_PATH", "/api/v1/public/profiles"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             getInt("REDIS_DB", 0),
		CatalogCacheTTL:     getDuration("CATALOG_CACHE_TTL", time.Minute),
		RewardCatalogFile:   os.Getenv("REWARD_CATALOG_FILE"),
		DayBoundaryTZ:       getEnv("DAY_BOUNDARY_TZ", "UTC"),
		LedgerAuditInterval: getDuration("LEDGER_AUDIT_INTERVAL", time.Hour),
		ClaimRatePerMinute:  getInt("CLAIM_RATE_PER_MINUTE", 30),
		R2AccountID:         os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		R2AccessKey:         os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretKey:         os.Getenv("R2_ACCESS_KEY_SECRET"),
		R2Bucket:            os.Getenv("R2_BUCKET_NAME"),
		CDNBaseURL:          os.Getenv("CDN_BASE_URL"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogPath:             os.Getenv("LOG_PATH"),
		LogMaxSizeMB:        getInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups:       getInt("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays:       getInt("LOG_MAX_AGE_DAYS", 7),
		LogCompress:         getBool("LOG_COMPRESS", false),
	}

	if cfg.GameServiceToken == "" {
		return cfg, errors.New("GAME_SERVICE_TOKEN is not set")
	}
	return cfg, nil
}

// InMemory reports whether the service runs without Postgres (local dev only:
// balances are lost on restart).
func (c AppConfig) InMemory() bool {
	return c.DatabaseURL == ""
}

// R2Enabled reports whether statement export has somewhere to upload to.
func (c AppConfig) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2Bucket != ""
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func getBool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func getDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
