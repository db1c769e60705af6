// Package scheduler owns next_check_at: it computes the next polling
// interval for a trip from its flight phase, and drives the bounded
// worker pool that picks up due trips on each tick.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/flightops/tripnotifier/internal/metrics"
	"github.com/flightops/tripnotifier/internal/models"
	"github.com/flightops/tripnotifier/internal/store"
)

const (
	preDepartureFarInterval  = 6 * time.Hour
	preDepartureMidInterval  = time.Hour
	preDepartureNearInterval = 15 * time.Minute

	preDepartureMidThreshold  = 24 * time.Hour
	preDepartureNearThreshold = 4 * time.Hour

	cruiseInterval        = 30 * time.Minute
	landingWindowInterval = 10 * time.Minute
	lateHuntInterval      = time.Hour
	landingWindowRadius   = 30 * time.Minute
)

// NextCheck computes the next UTC polling instant for a trip, or nil if
// the trip is terminal and should no longer be polled.
func NextCheck(departureUTC, now time.Time, status string, estArrivalUTC *time.Time) *time.Time {
	if isTerminalStatus(status) {
		return nil
	}

	if now.Before(departureUTC) {
		untilDeparture := departureUTC.Sub(now)
		var next time.Time
		switch {
		case untilDeparture > preDepartureMidThreshold:
			next = now.Add(preDepartureFarInterval)
		case untilDeparture > preDepartureNearThreshold:
			next = now.Add(preDepartureMidInterval)
		default:
			next = now.Add(preDepartureNearInterval)
		}
		return &next
	}

	if estArrivalUTC == nil {
		next := now.Add(cruiseInterval)
		return &next
	}

	var next time.Time
	switch {
	case now.Before(estArrivalUTC.Add(-landingWindowRadius)):
		next = now.Add(cruiseInterval)
	case now.Before(estArrivalUTC.Add(landingWindowRadius)):
		next = now.Add(landingWindowInterval)
	default:
		next = now.Add(lateHuntInterval)
	}
	return &next
}

func isTerminalStatus(status string) bool {
	switch status {
	case models.StatusLanded, models.StatusArrived, models.StatusCompleted, models.StatusCancelled:
		return true
	default:
		return false
	}
}

// defaultLookbackWindow bounds the trips_due query to trips whose departure is
// not further in the past than this, keeping a long-abandoned trip from
// being polled forever if its status update was ever missed.
const defaultLookbackWindow = 8 * time.Hour

// CycleHandler processes one due trip end to end. It is supplied by the
// notifications engine.
type CycleHandler func(ctx context.Context, trip *models.Trip) error

// saturationWidenFactor is how much the tick interval widens while the
// due-trip queue stays saturated. The queue is considered saturated when
// it exceeds SaturationMultiplier times the worker-pool size for two
// consecutive ticks.
const saturationWidenFactor = 2

// Config controls the scheduler's tick cadence and admission control.
type Config struct {
	TickInterval         time.Duration
	Workers              int
	CycleTimeout         time.Duration
	LookbackWindow       time.Duration
	SaturationMultiplier int
}

// Scheduler drives the poll loop: on each tick it selects due trips and
// fans them out to a bounded worker pool.
type Scheduler struct {
	cfg     Config
	store   store.TripStore
	handle  CycleHandler
	metrics *metrics.Metrics
	logger  *zap.Logger

	overThresholdTicks int
	currentInterval    time.Duration
}

// New builds a Scheduler. cfg.LookbackWindow defaults to 8h and
// cfg.SaturationMultiplier to 10 when zero.
func New(cfg Config, tripStore store.TripStore, handle CycleHandler, m *metrics.Metrics, logger *zap.Logger) *Scheduler {
	if cfg.LookbackWindow == 0 {
		cfg.LookbackWindow = defaultLookbackWindow
	}
	if cfg.SaturationMultiplier == 0 {
		cfg.SaturationMultiplier = 10
	}
	return &Scheduler{cfg: cfg, store: tripStore, handle: handle, metrics: m, logger: logger, currentInterval: cfg.TickInterval}
}

// Run drives the tick loop until ctx is cancelled. A tick waits for the
// previous one to finish before starting (non-overlapping per job kind).
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.currentInterval)
	defer ticker.Stop()

	s.metrics.ComponentUp.WithLabelValues("scheduler").Set(1)
	s.metrics.SchedulerTickIntervalSeconds.Set(s.currentInterval.Seconds())
	defer s.metrics.ComponentUp.WithLabelValues("scheduler").Set(0)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
			s.adjustTickerIfNeeded(ticker)
		}
	}
}

func (s *Scheduler) adjustTickerIfNeeded(ticker *time.Ticker) {
	desired := s.cfg.TickInterval
	if s.overThresholdTicks >= 2 {
		desired = s.cfg.TickInterval * saturationWidenFactor
	}
	if desired != s.currentInterval {
		s.currentInterval = desired
		ticker.Reset(desired)
		s.metrics.SchedulerTickIntervalSeconds.Set(desired.Seconds())
	}
}

// fetchCap bounds how many due trips a single tick will ever pull from the
// store, independent of the saturation threshold below — it exists only so
// a query can never return an unbounded result set, not as the admission
// control (the worker pool is).
const fetchCap = 10000

func (s *Scheduler) tick(ctx context.Context) {
	start := time.Now()
	now := start.UTC()
	saturationThreshold := s.cfg.Workers * s.cfg.SaturationMultiplier

	due, err := s.store.TripsDue(ctx, now, s.cfg.LookbackWindow, fetchCap)
	if err != nil {
		s.logger.Error("fetching due trips failed", zap.Error(err))
		s.metrics.SchedulerTicksTotal.WithLabelValues("error").Inc()
		return
	}

	s.metrics.SchedulerDueTrips.Set(float64(len(due)))

	if len(due) > saturationThreshold {
		s.overThresholdTicks++
		s.logger.Warn("scheduler saturation", zap.Int("due", len(due)), zap.Int("workers", s.cfg.Workers))
		if s.overThresholdTicks >= 2 {
			s.metrics.SchedulerSaturationEventsTotal.Inc()
		}
	} else {
		s.overThresholdTicks = 0
	}

	g, cycleCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for _, trip := range due {
		trip := trip
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(cycleCtx, s.cfg.CycleTimeout)
			defer cancel()
			if err := s.handle(ctx, trip); err != nil {
				s.logger.Error("trip cycle failed", zap.String("trip_id", trip.ID), zap.Error(err))
			}
			return nil
		})
	}

	_ = g.Wait()

	s.metrics.SchedulerTicksTotal.WithLabelValues("ok").Inc()
	s.metrics.SchedulerTickDuration.Observe(time.Since(start).Seconds())
	s.metrics.ComponentLastSuccess.WithLabelValues("scheduler").Set(float64(time.Now().Unix()))
}
