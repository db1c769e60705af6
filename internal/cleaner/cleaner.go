// Package cleaner implements the periodic retention sweep that removes
// terminal trips' notification-log and flight-status history once they
// have aged past the configured retention period, keeping the database
// from growing without bound.
package cleaner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/flightops/tripnotifier/internal/config"
	"github.com/flightops/tripnotifier/internal/metrics"
	"github.com/flightops/tripnotifier/internal/store"
)

// Cleaner periodically removes notification-log and status-history rows
// belonging to trips that reached a terminal state (LANDED, CANCELLED, ...)
// longer ago than the configured retention period.
type Cleaner struct {
	store   store.RetentionStore
	cfg     *config.Config
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewCleaner creates a new Cleaner with the provided dependencies.
func NewCleaner(s store.RetentionStore, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *Cleaner {
	return &Cleaner{
		store:   s,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
}

// Start begins the cleanup loop, running at the configured cleanup interval.
// The loop stops when ctx is cancelled.
func (c *Cleaner) Start(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Retention.CleanupInterval.Duration)
	defer ticker.Stop()

	c.logger.Info("cleaner started",
		zap.Duration("cleanup_interval", c.cfg.Retention.CleanupInterval.Duration),
		zap.Duration("retention_period", c.cfg.Retention.RetentionPeriod.Duration),
	)

	c.metrics.ComponentUp.WithLabelValues("cleaner").Set(1)
	defer c.metrics.ComponentUp.WithLabelValues("cleaner").Set(0)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cleaner stopping", zap.Error(ctx.Err()))
			return
		case <-ticker.C:
			if err := c.Cleanup(ctx); err != nil {
				c.logger.Error("cleanup failed", zap.Error(err))
			}
		}
	}
}

// Cleanup performs a single cleanup pass. It finds terminal trips older
// than the retention cutoff, deletes their notification-log and
// status-history rows, runs an incremental vacuum to reclaim space, and
// updates metrics. Trips themselves are left in place — only their
// history is purged — so a later lookup by id still resolves.
func (c *Cleaner) Cleanup(ctx context.Context) error {
	start := time.Now()

	cutoff := time.Now().UTC().Add(-c.cfg.Retention.RetentionPeriod.Duration)
	eligible, err := c.store.TerminalTripsOlderThan(ctx, cutoff)
	if err != nil {
		c.metrics.CleanupRunsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("querying cleanup-eligible trips: %w", err)
	}

	c.metrics.CleanupEligibleTrips.Set(float64(len(eligible)))

	if len(eligible) == 0 {
		c.logger.Debug("no trips eligible for cleanup")
		c.metrics.CleanupRunsTotal.WithLabelValues("success").Inc()
		c.metrics.CleanupDuration.Observe(time.Since(start).Seconds())
		return nil
	}

	select {
	case <-ctx.Done():
		c.metrics.CleanupRunsTotal.WithLabelValues("interrupted").Inc()
		return ctx.Err()
	default:
	}

	notifDeleted, err := c.store.DeleteNotificationsForTrips(ctx, eligible)
	if err != nil {
		c.logger.Error("failed to delete notification log rows", zap.Error(err))
		c.metrics.CleanupRunsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("deleting notification log rows: %w", err)
	}

	snapDeleted, err := c.store.DeleteSnapshotsForTrips(ctx, eligible)
	if err != nil {
		c.logger.Error("failed to delete flight-status snapshots", zap.Error(err))
		c.metrics.CleanupRunsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("deleting flight-status snapshots: %w", err)
	}

	c.metrics.CleanupTripsDeleted.Add(float64(len(eligible)))
	c.metrics.CleanupRecordsDeleted.Add(float64(notifDeleted + snapDeleted))

	if err := c.store.RunIncrementalVacuum(ctx); err != nil {
		c.logger.Error("incremental vacuum failed", zap.Error(err))
		// Not fatal; the row deletions above already succeeded.
	}

	duration := time.Since(start)
	c.metrics.CleanupDuration.Observe(duration.Seconds())
	c.metrics.CleanupRunsTotal.WithLabelValues("success").Inc()
	c.metrics.ComponentLastSuccess.WithLabelValues("cleaner").Set(float64(time.Now().Unix()))

	c.logger.Info("cleanup completed",
		zap.Int("trips", len(eligible)),
		zap.Int64("notifications_deleted", notifDeleted),
		zap.Int64("snapshots_deleted", snapDeleted),
		zap.Duration("duration", duration),
	)

	return nil
}
