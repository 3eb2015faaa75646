package workflow

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Runner is the process-wide scheduler loop: a single recurring timer that
// asks the engine for due triggers and executes them. Multiple instances may
// run concurrently; the pending→sent compare-and-swap is the only
// coordination between them.
type Runner struct {
	engine      *Engine
	interval    time.Duration
	tickTimeout time.Duration
	logger      zerolog.Logger
}

func NewRunner(engine *Engine, interval time.Duration, logger zerolog.Logger) *Runner {
	return &Runner{
		engine:      engine,
		interval:    interval,
		tickTimeout: 20 * time.Second,
		logger:      logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run blocks until ctx is done, ticking at the configured interval. A pass
// runs once immediately at startup.
func (r *Runner) Run(ctx context.Context) {
	r.tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("scheduler loop stopping")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, r.tickTimeout)
	defer cancel()

	start := time.Now()
	fired, err := r.engine.FireDue(tickCtx, start.UTC())
	if err != nil {
		r.logger.Error().Err(err).Msg("fire due workflows")
		return
	}
	if _, err := r.engine.ExpireOverdue(tickCtx, start.UTC()); err != nil {
		r.logger.Error().Err(err).Msg("expire overdue workflows")
	}
	if fired > 0 {
		r.logger.Info().Int("fired", fired).Dur("took", time.Since(start)).Msg("scheduler pass complete")
	}
}
