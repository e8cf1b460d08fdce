// Package worker hosts background loops that run beside the HTTP server.
package worker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/iliyamo/event-seat-reservation/internal/clock"
	"github.com/iliyamo/event-seat-reservation/internal/model"
)

// ExpiredHoldLister finds holds whose expiry lies before now.
type ExpiredHoldLister interface {
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.Seat, error)
}

// HoldReclaimer releases one lapsed hold if it is still the stored state.
type HoldReclaimer interface {
	ReleaseExpired(ctx context.Context, snapshot model.Seat) (bool, error)
}

// SweeperConfig controls the sweep cadence.
type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

// SweepResult counts the outcome of one pass.
type SweepResult struct {
	Found    int
	Released int
	Skipped  int
	Failed   int
}

// ExpirySweeper periodically returns expired holds to AVAILABLE through the
// coordinator, so it races user requests on the same version check.
type ExpirySweeper struct {
	seats     ExpiredHoldLister
	reclaimer HoldReclaimer
	clock     clock.Clock
	cfg       SweeperConfig
	log       *zap.Logger
}

func NewExpirySweeper(seats ExpiredHoldLister, reclaimer HoldReclaimer, clk clock.Clock, cfg SweeperConfig, log *zap.Logger) *ExpirySweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ExpirySweeper{seats: seats, reclaimer: reclaimer, clock: clk, cfg: cfg, log: log.Named("sweeper")}
}

// Start sweeps once immediately and then on every tick until ctx is done.
func (w *ExpirySweeper) Start(ctx context.Context) {
	w.log.Info("expiry sweeper started",
		zap.Duration("interval", w.cfg.Interval), zap.Int("batch_size", w.cfg.BatchSize))

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce releases up to one batch of expired holds.
func (w *ExpirySweeper) RunOnce(ctx context.Context) SweepResult {
	ctx, span := otel.Tracer("reservation").Start(ctx, "sweeper.RunOnce")
	defer span.End()

	var res SweepResult
	expired, err := w.seats.ListExpiredHolds(ctx, w.clock.Now(), w.cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		w.log.Error("list expired holds failed", zap.Error(err))
		return res
	}
	res.Found = len(expired)

	for _, s := range expired {
		if ctx.Err() != nil {
			break
		}
		ok, err := w.reclaimer.ReleaseExpired(ctx, s)
		switch {
		case err != nil:
			res.Failed++
			w.log.Warn("release expired hold failed", zap.Uint64("seat_id", s.ID), zap.Error(err))
		case ok:
			res.Released++
		default:
			res.Skipped++
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.found", res.Found),
		attribute.Int("sweep.released", res.Released),
		attribute.Int("sweep.skipped", res.Skipped),
	)
	if res.Found > 0 {
		w.log.Info("expired holds swept",
			zap.Int("found", res.Found),
			zap.Int("released", res.Released),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed))
	}
	return res
}
