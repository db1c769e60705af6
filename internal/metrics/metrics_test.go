package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewMetricsDoesNotPanic verifies that creating metrics against a fresh
// registry completes without panicking.
func TestNewMetricsDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	assert.NotPanics(t, func() {
		m := NewMetrics(reg)
		require.NotNil(t, m)
	})
}

// TestMetricsCanBeIncremented verifies that representative metrics from each
// category can be used after registration.
func TestMetricsCanBeIncremented(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	// Scheduler
	m.SchedulerTicksTotal.WithLabelValues("ok").Inc()
	m.SchedulerDueTrips.Set(12)
	m.SchedulerTickDuration.Observe(0.2)
	m.SchedulerSaturationEventsTotal.Inc()
	m.SchedulerTickIntervalSeconds.Set(30)

	// Engine / dispatch
	m.EngineCyclesTotal.WithLabelValues("ok").Inc()
	m.EngineCycleDuration.Observe(0.5)
	m.DispatchTotal.WithLabelValues("DELAYED", "SENT").Inc()
	m.SuppressedTotal.WithLabelValues("REMINDER_24H", "quiet_hours").Inc()
	m.DispatchRetryCount.WithLabelValues("DELAYED").Observe(1)

	// Flight-data
	m.FlightDataCacheHitsTotal.Inc()
	m.FlightDataCacheMissesTotal.Inc()
	m.FlightDataSavedCallsTotal.Inc()
	m.FlightDataCallsTotal.WithLabelValues("ok").Inc()
	m.FlightDataCallDuration.Observe(0.1)

	// Delivery
	m.DeliveryAttemptsTotal.WithLabelValues("template", "sent").Inc()
	m.DeliveryDuration.WithLabelValues("template").Observe(0.3)

	// Retry / circuit breaker
	m.RetryAttemptsTotal.WithLabelValues("messaging").Observe(2)
	m.CircuitBreakerState.WithLabelValues("messaging").Set(0)

	// Cleanup
	m.CleanupRunsTotal.WithLabelValues("success").Inc()
	m.CleanupDuration.Observe(1.1)
	m.CleanupTripsDeleted.Inc()
	m.CleanupRecordsDeleted.Add(3)
	m.CleanupEligibleTrips.Set(5)

	// Storage
	m.DBSizeBytes.Set(1048576)
	m.StorageVolumeSizeBytes.Set(10737418240)
	m.StorageVolumeUsedBytes.Set(5368709120)
	m.StorageVolumeAvailableBytes.Set(5368709120)
	m.StorageVolumeUsagePercent.Set(50)
	m.StorageVolumeInodesTotal.Set(1000000)
	m.StorageVolumeInodesUsed.Set(50000)
	m.StoragePressure.WithLabelValues("warning").Set(1)

	// Component health
	m.ComponentUp.WithLabelValues("scheduler").Set(1)
	m.ComponentLastSuccess.WithLabelValues("scheduler").Set(1234567890)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Greater(t, len(families), 0, "expected at least one metric family to be gathered")
}

// TestNoDuplicateRegistration ensures that creating two separate Metrics
// instances on two fresh registries does not panic (no global state leaks).
func TestNoDuplicateRegistration(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()

	assert.NotPanics(t, func() {
		_ = NewMetrics(reg1)
	})
	assert.NotPanics(t, func() {
		_ = NewMetrics(reg2)
	})
}

// TestDuplicateRegistrationPanics verifies that registering metrics twice on
// the same registry panics, confirming MustRegister is used correctly.
func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewMetrics(reg)

	assert.Panics(t, func() {
		_ = NewMetrics(reg)
	})
}
