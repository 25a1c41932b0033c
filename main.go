package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"coin-vault-service/handlers"
	"coin-vault-service/middleware"
	"coin-vault-service/services"
	"coin-vault-service/utils"
	"coin-vault-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("❌ config: %v", err)
	}
	if err := utils.InitLogger(cfg); err != nil {
		log.Fatalf("❌ logger: %v", err)
	}
	logger := utils.Logger
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	days, err := services.NewDayPolicy(cfg.DayBoundaryTZ)
	if err != nil {
		logger.Fatal("invalid DAY_BOUNDARY_TZ", zap.Error(err))
	}
	metrics := services.NewMetrics()
	clock := clockwork.NewRealClock()

	defaults := services.NewStaticCatalog()
	if cfg.RewardCatalogFile != "" {
		if defaults, err = services.LoadCatalogFile(cfg.RewardCatalogFile); err != nil {
			logger.Fatal("failed to load reward catalog file", zap.String("path", cfg.RewardCatalogFile), zap.Error(err))
		}
	}

	var (
		store   services.LedgerStore
		catalog services.RewardCatalog = defaults
		admin                          = &handlers.AdminHandler{Logger: logger}
	)
	if cfg.InMemory() {
		logger.Warn("⚠️  DATABASE_URL not set, using the in-memory ledger (data is lost on restart)")
		mem := services.NewMemoryLedgerStore()
		mem.OnConflict = metrics.ObserveRetry
		store = mem
	} else {
		db, err := utils.OpenDatabase(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database unavailable", zap.Error(err))
		}
		gormStore := services.NewGormLedgerStore(db)
		gormStore.Metrics = metrics
		gormStore.Logger = logger
		store = gormStore

		configs := services.NewConfigStore(db, defaults)
		cached := services.NewCachedCatalog(configs, utils.NewRedis(cfg), cfg.CatalogCacheTTL)
		cached.Logger = logger
		catalog = cached
		admin.Configs = configs
		admin.Cache = cached

		if cfg.SyncServiceURL != "" {
			syncWorker := workers.NewProfileSyncWorker(db, cfg.SyncServiceURL, cfg.SyncProfilesPath, cfg.GameServiceToken, logger)
			go syncWorker.Run(ctx)
		}
	}

	engine := services.NewRewardEngine(store, catalog, days)
	engine.Logger = logger
	engine.Metrics = metrics

	var statements *services.StatementService
	if cfg.R2Enabled() {
		uploader, err := utils.NewR2Uploader(ctx, cfg)
		if err != nil {
			logger.Fatal("failed to initialize R2 client", zap.Error(err))
		}
		statements = services.NewStatementService(store, uploader)
	}

	auditor := services.NewLedgerAuditor(store, logger, metrics)
	admin.Auditor = auditor
	sched, err := services.StartLedgerAuditScheduler(auditor, cfg.LedgerAuditInterval, clock)
	if err != nil {
		logger.Fatal("failed to start audit scheduler", zap.Error(err))
	}
	defer func() { _ = sched.Shutdown() }()

	app := fiber.New()

	origins := strings.Split(cfg.AllowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(origins, ","),
		AllowMethods:     "GET,POST,PUT,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, Retry-After, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// The stream authenticates by query token and /metrics is scraped internally.
	app.Use(middleware.GatewayAuthMiddleware(cfg.GameServiceToken, logger, "/rewards/stream", "/metrics"))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	limiter := middleware.NewClaimRateLimiter(cfg.ClaimRatePerMinute, clock)
	handlers.SetupRewardRoutes(app, handlers.NewRewardHandler(engine, statements, clock, logger), limiter)
	handlers.SetupAdminRoutes(app, admin)
	if cfg.AuthServiceURL != "" {
		authClient := services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.GameServiceToken, logger)
		handlers.SetupStreamRoutes(app, handlers.NewVaultStream(engine, clock, logger, ctx.Done()), authClient)
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}()

	logger.Info("✅ coin vault running",
		zap.String("port", cfg.Port),
		zap.String("day_boundary", cfg.DayBoundaryTZ),
		zap.Bool("in_memory", cfg.InMemory()),
		zap.Bool("statements", statements != nil),
		zap.Duration("audit_interval", cfg.LedgerAuditInterval),
	)

	<-ctx.Done()
	logger.Info("shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
