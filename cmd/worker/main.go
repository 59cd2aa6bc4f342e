package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/jeenglish/speaking-backend/internal/config"
	"github.com/jeenglish/speaking-backend/internal/database"
	"github.com/jeenglish/speaking-backend/internal/queue"
	"github.com/jeenglish/speaking-backend/internal/queue/workers"
	"github.com/jeenglish/speaking-backend/internal/store"
	"github.com/jeenglish/speaking-backend/internal/usage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ledgerStore, err := buildStore(cfg)
	if err != nil {
		slog.Error("failed to build ledger store", "error", err)
		os.Exit(1)
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 5,
		},
	)

	registry := queue.NewHandlersRegistry()

	usageWorker := workers.NewUsageWorker(ledgerStore)
	registry.Register(queue.TypeUsagePersist, asynq.HandlerFunc(usageWorker.ProcessTask))

	slog.Info("starting worker", "store", cfg.Store.Backend)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}

func buildStore(cfg *config.Config) (usage.Store, error) {
	switch cfg.Store.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return store.NewRedis(rdb, cfg.Store.RedisKey), nil
	case "postgres":
		pool, err := database.NewPool(context.Background(), cfg.Database)
		if err != nil {
			return nil, err
		}
		return store.NewPostgres(pool), nil
	case "memory":
		return store.NewMemory(), nil
	default:
		return store.NewJSONBin(cfg.Store.JSONBinURL, cfg.Store.JSONBinKey), nil
	}
}
