package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/paystream-io/paystream/internal/app"
	"github.com/paystream-io/paystream/internal/platform/cache"
	"github.com/paystream-io/paystream/internal/platform/db"
	"github.com/paystream-io/paystream/internal/rates"
	"github.com/paystream-io/paystream/internal/recovery"
	"github.com/paystream-io/paystream/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	rateStore := rates.NewStore(redisClient)
	refresher := rates.NewRefresher(cfg.RateFeedURL, rateStore)
	refreshJob := jobs.NewRateRefreshJob(refresher, logger)

	recoveryService := recovery.NewService(pool, logger)
	sweepJob := jobs.NewRecoverySweepJob(recoveryService, logger)

	refreshTask, err := jobs.NewRateRefreshTask(jobs.RateRefreshPayload{Reason: "scheduled"})
	if err != nil {
		logger.Error("build rate refresh task", slog.Any("error", err))
		os.Exit(1)
	}
	sweepTask, err := jobs.NewRecoverySweepTask(jobs.RecoverySweepPayload{Reason: "scheduled"})
	if err != nil {
		logger.Error("build recovery sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeRateRefresh, Handler: refreshJob.Handle},
			{Type: jobs.TaskTypeRecoverySweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RateRefreshCron, Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.RecoverySweepCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
