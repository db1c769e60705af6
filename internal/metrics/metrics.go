// Package metrics defines and registers all Prometheus metrics used by the
// trip-notification service. Metrics are organised by functional area and
// share the common "tripnotifier_" prefix.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector used by tripnotifier.
type Metrics struct {
	// ---------------------------------------------------------------
	// Scheduler
	// ---------------------------------------------------------------

	// SchedulerTicksTotal counts scheduler ticks by outcome.
	SchedulerTicksTotal *prometheus.CounterVec

	// SchedulerDueTrips tracks how many trips were due on the most recent tick.
	SchedulerDueTrips prometheus.Gauge

	// SchedulerTickDuration observes how long a full tick (selection + fan-out) takes.
	SchedulerTickDuration prometheus.Histogram

	// SchedulerSaturationEventsTotal counts times the due-trip queue exceeded
	// the saturation threshold for two consecutive ticks.
	SchedulerSaturationEventsTotal prometheus.Counter

	// SchedulerTickIntervalSeconds tracks the scheduler's current effective
	// tick interval, which widens under saturation back-pressure.
	SchedulerTickIntervalSeconds prometheus.Gauge

	// ---------------------------------------------------------------
	// Engine / dispatch
	// ---------------------------------------------------------------

	// EngineCyclesTotal counts per-trip processing cycles by outcome.
	EngineCyclesTotal *prometheus.CounterVec

	// EngineCycleDuration observes how long one trip's cycle takes.
	EngineCycleDuration prometheus.Histogram

	// DispatchTotal counts notification dispatch outcomes by kind and status
	// (sent, failed, suppressed).
	DispatchTotal *prometheus.CounterVec

	// SuppressedTotal counts suppressed dispatches by kind and reason
	// (quiet_hours, delay_cooldown, delay_same_eta).
	SuppressedTotal *prometheus.CounterVec

	// DispatchRetryCount observes the retry_count recorded on sent/failed
	// notification log entries.
	DispatchRetryCount *prometheus.HistogramVec

	// ---------------------------------------------------------------
	// Flight-data provider
	// ---------------------------------------------------------------

	// FlightDataCacheHitsTotal / MissesTotal / SavedCallsTotal track the
	// flight-status cache, incremented by flightdata.Client on each lookup.
	FlightDataCacheHitsTotal   prometheus.Counter
	FlightDataCacheMissesTotal prometheus.Counter
	FlightDataSavedCallsTotal  prometheus.Counter
	FlightDataCallsTotal       *prometheus.CounterVec
	FlightDataCallDuration     prometheus.Histogram

	// ---------------------------------------------------------------
	// Delivery / messaging gateway
	// ---------------------------------------------------------------

	// DeliveryAttemptsTotal counts delivery attempts by operation and status.
	DeliveryAttemptsTotal *prometheus.CounterVec

	// DeliveryDuration observes messaging-gateway call latency.
	DeliveryDuration *prometheus.HistogramVec

	// ---------------------------------------------------------------
	// Retry / circuit breaker
	// ---------------------------------------------------------------

	// RetryAttemptsTotal observes how many attempts each retried operation took.
	RetryAttemptsTotal *prometheus.HistogramVec

	// CircuitBreakerState tracks each named executor's breaker state
	// (0 = closed, 1 = half-open, 2 = open).
	CircuitBreakerState *prometheus.GaugeVec

	// ---------------------------------------------------------------
	// Cleanup
	// ---------------------------------------------------------------

	CleanupRunsTotal      *prometheus.CounterVec
	CleanupDuration       prometheus.Histogram
	CleanupTripsDeleted   prometheus.Counter
	CleanupRecordsDeleted prometheus.Counter
	CleanupEligibleTrips  prometheus.Gauge

	// ---------------------------------------------------------------
	// Storage
	// ---------------------------------------------------------------

	DBSizeBytes                 prometheus.Gauge
	StorageVolumeSizeBytes      prometheus.Gauge
	StorageVolumeUsedBytes      prometheus.Gauge
	StorageVolumeAvailableBytes prometheus.Gauge
	StorageVolumeUsagePercent   prometheus.Gauge
	StorageVolumeInodesTotal    prometheus.Gauge
	StorageVolumeInodesUsed     prometheus.Gauge
	StoragePressure             *prometheus.GaugeVec

	// ---------------------------------------------------------------
	// Component health
	// ---------------------------------------------------------------

	ComponentUp          *prometheus.GaugeVec
	ComponentLastSuccess *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics with the supplied
// registerer. Pass prometheus.DefaultRegisterer for global registration or a
// custom registry for testing.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{}

	// -------------------------------------------------------------------
	// Scheduler
	// -------------------------------------------------------------------

	m.SchedulerTicksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripnotifier_scheduler_ticks_total",
		Help: "Total scheduler ticks by outcome.",
	}, []string{"outcome"})
	registerer.MustRegister(m.SchedulerTicksTotal)

	m.SchedulerDueTrips = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tripnotifier_scheduler_due_trips",
		Help: "Number of trips selected as due on the most recent tick.",
	})
	registerer.MustRegister(m.SchedulerDueTrips)

	m.SchedulerTickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tripnotifier_scheduler_tick_duration_seconds",
		Help:    "Duration of a full scheduler tick, selection through fan-out.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
	registerer.MustRegister(m.SchedulerTickDuration)

	m.SchedulerSaturationEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripnotifier_scheduler_saturation_events_total",
		Help: "Times the due-trip queue exceeded the saturation threshold for two consecutive ticks.",
	})
	registerer.MustRegister(m.SchedulerSaturationEventsTotal)

	m.SchedulerTickIntervalSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tripnotifier_scheduler_tick_interval_seconds",
		Help: "The scheduler's current effective tick interval.",
	})
	registerer.MustRegister(m.SchedulerTickIntervalSeconds)

	// -------------------------------------------------------------------
	// Engine / dispatch
	// -------------------------------------------------------------------

	m.EngineCyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripnotifier_engine_cycles_total",
		Help: "Per-trip processing cycles by outcome.",
	}, []string{"outcome"})
	registerer.MustRegister(m.EngineCyclesTotal)

	m.EngineCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tripnotifier_engine_cycle_duration_seconds",
		Help:    "Duration of one trip's fetch-detect-dispatch cycle.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 90},
	})
	registerer.MustRegister(m.EngineCycleDuration)

	m.DispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripnotifier_dispatch_total",
		Help: "Notification dispatch outcomes by kind and delivery status.",
	}, []string{"kind", "status"})
	registerer.MustRegister(m.DispatchTotal)

	m.SuppressedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripnotifier_suppressed_total",
		Help: "Suppressed dispatches by kind and reason.",
	}, []string{"kind", "reason"})
	registerer.MustRegister(m.SuppressedTotal)

	m.DispatchRetryCount = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tripnotifier_dispatch_retry_count",
		Help:    "retry_count recorded on notification log entries.",
		Buckets: []float64{0, 1, 2, 3, 4, 5},
	}, []string{"kind"})
	registerer.MustRegister(m.DispatchRetryCount)

	// -------------------------------------------------------------------
	// Flight-data provider
	// -------------------------------------------------------------------

	m.FlightDataCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripnotifier_flightdata_cache_hits_total",
		Help: "Flight-status cache hits.",
	})
	registerer.MustRegister(m.FlightDataCacheHitsTotal)

	m.FlightDataCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripnotifier_flightdata_cache_misses_total",
		Help: "Flight-status cache misses.",
	})
	registerer.MustRegister(m.FlightDataCacheMissesTotal)

	m.FlightDataSavedCallsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripnotifier_flightdata_saved_calls_total",
		Help: "Outbound provider calls avoided thanks to the cache.",
	})
	registerer.MustRegister(m.FlightDataSavedCallsTotal)

	m.FlightDataCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripnotifier_flightdata_calls_total",
		Help: "Outbound flight-data provider calls by outcome.",
	}, []string{"outcome"})
	registerer.MustRegister(m.FlightDataCallsTotal)

	m.FlightDataCallDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tripnotifier_flightdata_call_duration_seconds",
		Help:    "Flight-data provider call latency.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
	})
	registerer.MustRegister(m.FlightDataCallDuration)

	// -------------------------------------------------------------------
	// Delivery / messaging gateway
	// -------------------------------------------------------------------

	m.DeliveryAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripnotifier_delivery_attempts_total",
		Help: "Messaging-gateway send attempts by operation and status.",
	}, []string{"operation", "status"})
	registerer.MustRegister(m.DeliveryAttemptsTotal)

	m.DeliveryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tripnotifier_delivery_duration_seconds",
		Help:    "Messaging-gateway call latency by operation.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"operation"})
	registerer.MustRegister(m.DeliveryDuration)

	// -------------------------------------------------------------------
	// Retry / circuit breaker
	// -------------------------------------------------------------------

	m.RetryAttemptsTotal = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tripnotifier_retry_attempts_total",
		Help:    "Number of attempts used per retried operation.",
		Buckets: []float64{1, 2, 3, 4, 5},
	}, []string{"service"})
	registerer.MustRegister(m.RetryAttemptsTotal)

	m.CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tripnotifier_circuit_breaker_state",
		Help: "Circuit breaker state per external service (0=closed, 1=half-open, 2=open).",
	}, []string{"service"})
	registerer.MustRegister(m.CircuitBreakerState)

	// -------------------------------------------------------------------
	// Cleanup
	// -------------------------------------------------------------------

	m.CleanupRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripnotifier_cleanup_runs_total",
		Help: "Total retention cleanup runs by status.",
	}, []string{"status"})
	registerer.MustRegister(m.CleanupRunsTotal)

	m.CleanupDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tripnotifier_cleanup_duration_seconds",
		Help:    "Duration of each cleanup run.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
	registerer.MustRegister(m.CleanupDuration)

	m.CleanupTripsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripnotifier_cleanup_trips_deleted_total",
		Help: "Total terminal trips whose history was purged by cleanup.",
	})
	registerer.MustRegister(m.CleanupTripsDeleted)

	m.CleanupRecordsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripnotifier_cleanup_records_deleted_total",
		Help: "Total notification-log and status-history rows deleted by cleanup.",
	})
	registerer.MustRegister(m.CleanupRecordsDeleted)

	m.CleanupEligibleTrips = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tripnotifier_cleanup_eligible_trips",
		Help: "Current number of terminal trips eligible for cleanup.",
	})
	registerer.MustRegister(m.CleanupEligibleTrips)

	// -------------------------------------------------------------------
	// Storage
	// -------------------------------------------------------------------

	m.DBSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tripnotifier_db_size_bytes",
		Help: "Size of the SQLite database file in bytes.",
	})
	registerer.MustRegister(m.DBSizeBytes)

	m.StorageVolumeSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tripnotifier_storage_volume_size_bytes",
		Help: "Total size of the storage volume in bytes.",
	})
	registerer.MustRegister(m.StorageVolumeSizeBytes)

	m.StorageVolumeUsedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tripnotifier_storage_volume_used_bytes",
		Help: "Used bytes on the storage volume.",
	})
	registerer.MustRegister(m.StorageVolumeUsedBytes)

	m.StorageVolumeAvailableBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tripnotifier_storage_volume_available_bytes",
		Help: "Available bytes on the storage volume.",
	})
	registerer.MustRegister(m.StorageVolumeAvailableBytes)

	m.StorageVolumeUsagePercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tripnotifier_storage_volume_usage_percent",
		Help: "Usage percentage of the storage volume.",
	})
	registerer.MustRegister(m.StorageVolumeUsagePercent)

	m.StorageVolumeInodesTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tripnotifier_storage_volume_inodes_total",
		Help: "Total number of inodes on the storage volume.",
	})
	registerer.MustRegister(m.StorageVolumeInodesTotal)

	m.StorageVolumeInodesUsed = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tripnotifier_storage_volume_inodes_used",
		Help: "Number of used inodes on the storage volume.",
	})
	registerer.MustRegister(m.StorageVolumeInodesUsed)

	m.StoragePressure = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tripnotifier_storage_pressure",
		Help: "Storage pressure indicator by severity level.",
	}, []string{"severity"})
	registerer.MustRegister(m.StoragePressure)

	// -------------------------------------------------------------------
	// Component health
	// -------------------------------------------------------------------

	m.ComponentUp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tripnotifier_component_up",
		Help: "Whether a component is healthy (1) or not (0).",
	}, []string{"component"})
	registerer.MustRegister(m.ComponentUp)

	m.ComponentLastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tripnotifier_component_last_success_timestamp",
		Help: "Unix timestamp of each component's last successful operation.",
	}, []string{"component"})
	registerer.MustRegister(m.ComponentLastSuccess)

	return m
}

// New creates a Metrics instance registered against the default Prometheus
// registry. This is a convenience wrapper for production code and tests
// that do not need an isolated registry.
func New() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}
