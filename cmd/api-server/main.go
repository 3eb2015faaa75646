package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/clinichq/scheduling/internal/api"
	"github.com/clinichq/scheduling/internal/booking"
	"github.com/clinichq/scheduling/internal/config"
	"github.com/clinichq/scheduling/internal/db"
	"github.com/clinichq/scheduling/internal/notify"
	"github.com/clinichq/scheduling/internal/observability/metrics"
	redisclient "github.com/clinichq/scheduling/internal/redis"
	"github.com/clinichq/scheduling/internal/token"
	"github.com/clinichq/scheduling/internal/waitlist"
	"github.com/clinichq/scheduling/internal/workflow"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := newLogger(cfg, "api-server")
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

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

	// Connect Redis
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
	locker := redisclient.NewRedisAgendaLocker(rdb, cfg.LockTTL)

	vault := token.NewVault(token.NewPgStore(pgPool))
	delivery := notify.NewRedisQueue(rdb, cfg.DeliveryQueue)
	workflowStore := workflow.NewStore(pgPool)
	engine := workflow.NewEngine(workflowStore, vault, delivery, repo, cfg.Scheduling, m, logger)

	bookings := booking.NewService(repo, locker, cfg.Scheduling, engine, m, logger)
	engine.SetAppointmentConfirmer(bookings)

	matcher := waitlist.NewMatcher(repo, cfg.Scheduling)
	waitlists := waitlist.NewService(waitlist.NewPgStore(pgPool), matcher, bookings, engine, repo, logger)
	bookings.SetFreedSlotNotifier(waitlists)

	router := api.NewRouter(api.RouterConfig{
		Bookings:      bookings,
		Waitlist:      waitlists,
		Engine:        engine,
		WorkflowStore: workflowStore,
		PgPool:        pgPool,
		Redis:         rdb,
		Logger:        logger,
		Env:           cfg.Env,
		Version:       version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("http server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}

	logger.Info().Msg("api-server stopped")
}

func newLogger(cfg config.Config, service string) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}
