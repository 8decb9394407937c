package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glowgrid/spa-booking-engine/internal/config"
	"github.com/glowgrid/spa-booking-engine/internal/db"
	"github.com/glowgrid/spa-booking-engine/internal/events"
	redisclient "github.com/glowgrid/spa-booking-engine/internal/redis"
	"github.com/glowgrid/spa-booking-engine/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("outbox-worker starting up", "env", cfg.Env, "interval", cfg.OutboxInterval.String())

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewClient(redisclient.Options{
		Addr:         cfg.RedisAddr,
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		PoolSize:     cfg.RedisPoolSize,
		MinIdleConns: cfg.RedisMinIdleConns,
	})
	if err != nil {
		logger.Error("redis connection error", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", "error", err)
		}
	}()
	logger.Info("connected to Redis")

	store := events.NewOutboxStore(pgPool)
	publisher := events.NewRedisPublisher(rdb, "booking.events")

	deliverer := events.NewDeliverer(store, publisher, logger).
		WithInterval(cfg.OutboxInterval).
		WithBatchSize(int32(cfg.OutboxBatch))

	// Drain once at startup, then poll.
	deliverer.DeliverBatch(rootCtx)
	deliverer.Start(rootCtx)

	logger.Info("outbox-worker stopped")
}
