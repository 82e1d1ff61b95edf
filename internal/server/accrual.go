package server

import (
	"context"
	"log/slog"
	"time"
)

// Accrual periodically credits per-minute points to every team in a live
// hunt and re-runs unlock propagation so points-gated puzzles open up
// without waiting for the next solve.
type Accrual struct {
	store     Store
	processor *GuessProcessor
	logger    *slog.Logger
	interval  time.Duration
	now       func() time.Time

	// carry holds, per hunt, the fractional points not yet credited.
	// Intervals that are not a whole number of minutes still credit the
	// right amount over time instead of truncating every tick.
	carry map[string]float64
}

func NewAccrual(store Store, processor *GuessProcessor, logger *slog.Logger, interval time.Duration) *Accrual {
	return &Accrual{
		store:     store,
		processor: processor,
		logger:    logger,
		interval:  interval,
		now:       time.Now,
		carry:     make(map[string]float64),
	}
}

// Run ticks until ctx is cancelled. Errors are logged, never fatal: a
// missed tick just means points arrive one interval late.
func (a *Accrual) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Accrual) tick(ctx context.Context) {
	hunts, err := a.store.ListHunts(ctx)
	if err != nil {
		a.logger.Error("accrual: listing hunts", "error", err)
		return
	}

	now := a.now()
	for _, h := range hunts {
		if h.PointsPerMin <= 0 || now.Before(h.StartDate) || h.Closed(now) {
			continue
		}
		earned := float64(h.PointsPerMin)*a.interval.Minutes() + a.carry[h.ID]
		points := int(earned)
		a.carry[h.ID] = earned - float64(points)
		if points <= 0 {
			continue
		}

		teams, err := a.store.ListTeams(ctx, h.ID)
		if err != nil {
			a.logger.Error("accrual: listing teams", "hunt", h.ID, "error", err)
			continue
		}
		for _, t := range teams {
			if err := a.store.AddPoints(ctx, t.ID, points); err != nil {
				a.logger.Error("accrual: adding points", "team", t.ID, "error", err)
				continue
			}
			if _, err := a.processor.Propagate(ctx, t.ID); err != nil {
				a.logger.Error("accrual: propagating unlocks", "team", t.ID, "error", err)
			}
		}
	}
}
