package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/kasirpos/kasirpos/internal/app"
	"github.com/kasirpos/kasirpos/internal/auth"
	"github.com/kasirpos/kasirpos/internal/catalog"
	"github.com/kasirpos/kasirpos/internal/inventory"
	"github.com/kasirpos/kasirpos/internal/platform/cache"
	"github.com/kasirpos/kasirpos/internal/platform/db"
	"github.com/kasirpos/kasirpos/internal/pos"
	"github.com/kasirpos/kasirpos/internal/purchasing"
	"github.com/kasirpos/kasirpos/internal/shared"
	"github.com/kasirpos/kasirpos/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Sessions live in Redis, so the terminal cannot run without it.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())

	enqueuer := jobs.NewEnqueuer(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := enqueuer.Close(); err != nil {
			logger.Warn("enqueuer close", slog.Any("error", err))
		}
	}()

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, logger)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	inventoryRepo := inventory.NewRepository(pool, cfg.SaleLockTimeout)
	inventoryService := inventory.NewService(inventoryRepo, logger)
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	posRepo := pos.NewRepository(pool, cfg.SaleLockTimeout)
	posService := pos.NewService(posRepo, enqueuer, redisClient, logger, pos.ServiceConfig{
		DefaultTaxRate:  decimal.NewFromFloat(cfg.DefaultTaxRate),
		CommitRetries:   cfg.SaleCommitRetries,
		RetryBackoff:    cfg.SaleRetryBackoff,
		SummaryCacheTTL: cfg.SummaryCacheTTL,
	})
	posHandler := pos.NewHandler(logger, posService)

	purchasingRepo := purchasing.NewRepository(pool, cfg.SaleLockTimeout)
	purchasingService := purchasing.NewService(purchasingRepo, logger)
	purchasingHandler := purchasing.NewHandler(logger, purchasingService)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		AuthHandler:       authHandler,
		POSHandler:        posHandler,
		CatalogHandler:    catalogHandler,
		InventoryHandler:  inventoryHandler,
		PurchasingHandler: purchasingHandler,
		Pool:              pool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
