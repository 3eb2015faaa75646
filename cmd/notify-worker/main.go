package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/clinichq/scheduling/internal/booking"
	"github.com/clinichq/scheduling/internal/config"
	"github.com/clinichq/scheduling/internal/db"
	"github.com/clinichq/scheduling/internal/notify"
	"github.com/clinichq/scheduling/internal/observability/metrics"
	redisclient "github.com/clinichq/scheduling/internal/redis"
	"github.com/clinichq/scheduling/internal/token"
	"github.com/clinichq/scheduling/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", "notify-worker").
		Logger()

	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.PollInterval).Msg("notify-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	m := metrics.NewSchedulingMetrics(prometheus.DefaultRegisterer)

	repo := booking.NewPgRepository(pgPool)
	vault := token.NewVault(token.NewPgStore(pgPool))
	delivery := notify.NewRedisQueue(rdb, cfg.DeliveryQueue)
	engine := workflow.NewEngine(workflow.NewStore(pgPool), vault, delivery, repo, cfg.Scheduling, m, logger)

	runner := workflow.NewRunner(engine, cfg.PollInterval, logger)
	runner.Run(rootCtx)

	logger.Info().Msg("notify-worker stopped")
}
