// Package scheduler is the node's cooperative main loop. One goroutine runs
// everything: broker upkeep first, then the lid check and the fill publish,
// each gated by its own interval against a free-running millisecond counter.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/LeonardoBeccarini/smartdustbin/internal/clock"
)

// Broker is the session the loop keeps alive.
type Broker interface {
	Connected() bool
	EnsureConnected(ctx context.Context) error
	Service()
}

type LidChecker interface {
	Check(ctx context.Context) error
}

type FillPublisher interface {
	MeasureAndPublish() float64
}

type Config struct {
	ProximityInterval time.Duration
	FillInterval      time.Duration
	// Idle is a pause between iterations that did no work. Zero spins.
	Idle time.Duration
}

type Scheduler struct {
	cfg    Config
	clk    clock.Clock
	broker Broker
	lid    LidChecker
	fill   FillPublisher
	logger *slog.Logger

	lastProximity clock.Millis
	lastFill      clock.Millis
}

func New(cfg Config, clk clock.Clock, broker Broker, lid LidChecker, fill FillPublisher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{cfg: cfg, clk: clk, broker: broker, lid: lid, fill: fill, logger: logger}
}

// Tick runs one loop iteration and reports whether a cadence fired.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.broker.Connected() {
		// failures are logged by the session; the next tick retries
		_ = s.broker.EnsureConnected(ctx)
	}
	s.broker.Service()

	now := s.clk.Now()
	fired := false

	// proximity first so lid responsiveness wins ties
	if clock.Elapsed(now, s.lastProximity, s.cfg.ProximityInterval) {
		s.lastProximity = now
		fired = true
		if err := s.lid.Check(ctx); err != nil {
			s.logger.Debug("proximity check aborted", "err", err)
		}
	}

	if clock.Elapsed(now, s.lastFill, s.cfg.FillInterval) {
		s.lastFill = now
		fired = true
		s.fill.MeasureAndPublish()
	}
	return fired
}

// Run loops until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("control loop started",
		"proximity_interval", s.cfg.ProximityInterval, "fill_interval", s.cfg.FillInterval)
	for {
		if err := ctx.Err(); err != nil {
			s.logger.Info("control loop stopped")
			return nil
		}
		if !s.Tick(ctx) && s.cfg.Idle > 0 {
			s.clk.Sleep(s.cfg.Idle)
		}
	}
}
