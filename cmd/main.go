package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"docflow/internal/bootstrap"
	"docflow/internal/config"
	"docflow/internal/delay"
	"docflow/internal/handler/api"
	"docflow/internal/notify"
	"docflow/internal/pkg/lease"
	"docflow/internal/repository"
	"docflow/internal/router"
	"docflow/internal/schedule"
	"docflow/internal/trigger"
	"docflow/internal/workflow"
)

// delayedExecutor is the lifecycle surface both executor implementations share.
type delayedExecutor interface {
	delay.Executor
	Bind(delay.Handler)
	Start()
	Stop()
}

func main() {
	// --- Logger ---
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := bootstrap.Migrate(db); err != nil {
		logger.Fatal("Failed to bootstrap database schema", zap.Error(err))
	}

	// --- Redis (delay queue + idempotency leases, in-memory fallback) ---
	var (
		executor delayedExecutor
		leaser   lease.Leaser
	)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Pass,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 2*time.Second)
	pingErr := redisClient.Ping(pingCtx).Err()
	cancelPing()
	if pingErr != nil {
		logger.Warn("Redis unavailable, delayed triggers will not survive restarts", zap.Error(pingErr))
		executor = delay.NewMemoryExecutor()
		leaser = lease.NewMemory()
	} else {
		executor = delay.NewRedisExecutor(redisClient, cfg.Scheduler.PollInterval, logger)
		leaser = lease.NewRedis(redisClient)
	}

	// --- Repositories ---
	jobRepo := repository.NewCronJobRepository(db)
	runRepo := repository.NewWorkflowRunRepository(db)
	clientRepo := repository.NewClientRepository(db)

	// --- Services ---
	triggerClient := trigger.NewClient(cfg.Trigger.PrimaryURL, cfg.Trigger.FallbackURL, cfg.Trigger.Timeout, logger)
	notifier := notify.NewTelegram(cfg.Alert.BotToken, cfg.Alert.ChatID, logger)
	orchestrator := schedule.NewOrchestrator(jobRepo, clientRepo, executor, logger)
	execHandler := schedule.NewExecutionHandler(jobRepo, clientRepo, orchestrator, triggerClient, notifier, logger)
	tracker := workflow.NewTracker(runRepo, leaser, notifier, logger)

	executor.Bind(execHandler.HandleFire)
	executor.Start()

	// --- Reconciliation Scheduler ---
	scheduler := schedule.NewScheduler(jobRepo, execHandler, logger)
	scheduler.Start()

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true

	router.Setup(e, router.Deps{
		Clients:  api.NewClientHandler(clientRepo, logger),
		Schedule: api.NewScheduleHandler(orchestrator, jobRepo, logger),
		Runs:     api.NewRunHandler(tracker, runRepo, clientRepo, triggerClient, logger),
	}, cfg.API.Key, logger)

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting docflow server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Stop cron and delayed triggers
	ctx := scheduler.Stop()
	<-ctx.Done()
	executor.Stop()

	// Stop HTTP server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
