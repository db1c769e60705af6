package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validConfigYAML = `
app:
  name: tripnotifier
  version: "1.0.0"
  logLevel: debug
  logFormat: text
scheduler:
  tickInterval: 15s
  workers: 4
flightData:
  baseUrl: https://flightdata.example.com
  timeout: 5s
delivery:
  baseUrl: https://gateway.example.com
notify:
  delayCooldown: 10m
  quietHoursLocal: "21-08"
  reminderLeadHours: 12
`

const minimalConfigYAML = `
flightData:
  baseUrl: https://flightdata.example.com
delivery:
  baseUrl: https://gateway.example.com
`

func TestLoadValidConfig(t *testing.T) {
	path := writeTempConfig(t, validConfigYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tripnotifier", cfg.App.Name)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "text", cfg.App.LogFormat)
	assert.Equal(t, 15*time.Second, cfg.Scheduler.TickInterval.Duration)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, "https://flightdata.example.com", cfg.FlightData.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.FlightData.Timeout.Duration)
	assert.Equal(t, 10*time.Minute, cfg.Notify.DelayCooldown.Duration)
	assert.Equal(t, "21-08", cfg.Notify.QuietHoursLocal)
	assert.Equal(t, 12, cfg.Notify.ReminderLeadHours)
}

func TestLoadMinimalConfigAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, minimalConfigYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tripnotifier", cfg.App.Name)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "json", cfg.App.LogFormat)

	assert.Equal(t, 30*time.Second, cfg.Scheduler.TickInterval.Duration)
	assert.Equal(t, 8, cfg.Scheduler.Workers)
	assert.Equal(t, 90*time.Second, cfg.Scheduler.CycleTimeout.Duration)
	assert.Equal(t, 8*time.Hour, cfg.Scheduler.LookbackWindow.Duration)
	assert.Equal(t, 10, cfg.Scheduler.SaturationMultiplier)

	assert.Equal(t, 300*time.Second, cfg.FlightData.CacheTTL.Duration)
	assert.Equal(t, 10*time.Second, cfg.FlightData.Timeout.Duration)

	assert.Equal(t, 30*time.Second, cfg.Delivery.TemplateTimeout.Duration)
	assert.Equal(t, 60*time.Second, cfg.Delivery.MediaTimeout.Duration)

	assert.Equal(t, 15*time.Minute, cfg.Notify.DelayCooldown.Duration)
	assert.Equal(t, 2*time.Hour, cfg.Notify.DelaySameETAWindow.Duration)
	assert.Equal(t, "20-09", cfg.Notify.QuietHoursLocal)
	assert.Equal(t, 24, cfg.Notify.ReminderLeadHours)
	assert.Equal(t, 35, cfg.Notify.BoardingLeadMinutes)

	assert.Equal(t, 3, cfg.Retry.FlightData.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.FlightData.Base.Duration)
	assert.Equal(t, 30*time.Second, cfg.Retry.FlightData.Cap.Duration)
	assert.True(t, cfg.Retry.FlightData.Jitter)

	assert.Equal(t, 2, cfg.Retry.Messaging.MaxAttempts)
	assert.Equal(t, 2, cfg.Retry.Database.MaxAttempts)
	assert.False(t, cfg.Retry.Database.Jitter)

	assert.Equal(t, 8090, cfg.Ingress.Port)

	assert.Equal(t, 1*time.Minute, cfg.Storage.MonitorInterval.Duration)
	assert.Equal(t, "/data/trips.db", cfg.Storage.DBPath)
	assert.Equal(t, "/data", cfg.Storage.VolumePath)
	assert.Equal(t, 80, cfg.Storage.WarningThreshold)
	assert.Equal(t, 90, cfg.Storage.CriticalThreshold)

	assert.True(t, cfg.Retention.Enabled)
	assert.Equal(t, 1*time.Hour, cfg.Retention.CleanupInterval.Duration)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention.RetentionPeriod.Duration)

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 8080, cfg.Metrics.Port)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	assert.Equal(t, "/healthz", cfg.Health.LivenessPath)
	assert.Equal(t, "/ready", cfg.Health.ReadinessPath)
	assert.Equal(t, 8080, cfg.Health.Port)
}

func TestLoadMissingFlightDataBaseURL(t *testing.T) {
	path := writeTempConfig(t, `
delivery:
  baseUrl: https://gateway.example.com
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flightData.baseUrl is required")
}

func TestLoadMissingDeliveryBaseURL(t *testing.T) {
	path := writeTempConfig(t, `
flightData:
  baseUrl: https://flightdata.example.com
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery.baseUrl is required")
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeTempConfig(t, "app: [this is not valid yaml")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoadInvalidLogLevel(t *testing.T) {
	path := writeTempConfig(t, `
app:
  logLevel: verbose
flightData:
  baseUrl: https://flightdata.example.com
delivery:
  baseUrl: https://gateway.example.com
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app.logLevel must be one of")
}

func TestLoadInvalidLogFormat(t *testing.T) {
	path := writeTempConfig(t, `
app:
  logFormat: xml
flightData:
  baseUrl: https://flightdata.example.com
delivery:
  baseUrl: https://gateway.example.com
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app.logFormat must be one of")
}

func TestLoadNonPositiveWorkers(t *testing.T) {
	path := writeTempConfig(t, `
scheduler:
  workers: -1
flightData:
  baseUrl: https://flightdata.example.com
delivery:
  baseUrl: https://gateway.example.com
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler.workers must be positive")
}

func TestEnvOverrideDBPath(t *testing.T) {
	t.Setenv("DB_PATH", "/override/trips.db")
	path := writeTempConfig(t, minimalConfigYAML)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/override/trips.db", cfg.Storage.DBPath)
}

func TestEnvOverrideSchedulerTickSeconds(t *testing.T) {
	t.Setenv("SCHEDULER_TICK_SECONDS", "45")
	path := writeTempConfig(t, minimalConfigYAML)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Scheduler.TickInterval.Duration)
}

func TestEnvOverrideSchedulerWorkers(t *testing.T) {
	t.Setenv("SCHEDULER_WORKERS", "16")
	path := writeTempConfig(t, minimalConfigYAML)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Scheduler.Workers)
}

func TestEnvOverrideQuietHoursAndLeadTimes(t *testing.T) {
	t.Setenv("QUIET_HOURS_LOCAL", "22-07")
	t.Setenv("REMINDER_LEAD_HOURS", "6")
	t.Setenv("BOARDING_LEAD_MINUTES", "20")
	t.Setenv("DELAY_COOLDOWN_MINUTES", "5")
	t.Setenv("DELAY_SAME_ETA_WINDOW_HOURS", "1")
	path := writeTempConfig(t, minimalConfigYAML)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "22-07", cfg.Notify.QuietHoursLocal)
	assert.Equal(t, 6, cfg.Notify.ReminderLeadHours)
	assert.Equal(t, 20, cfg.Notify.BoardingLeadMinutes)
	assert.Equal(t, 5*time.Minute, cfg.Notify.DelayCooldown.Duration)
	assert.Equal(t, 1*time.Hour, cfg.Notify.DelaySameETAWindow.Duration)
}

func TestEnvOverrideAPIKeysAndBaseURLs(t *testing.T) {
	t.Setenv("FLIGHTDATA_API_KEY", "fd-secret")
	t.Setenv("DELIVERY_API_KEY", "dl-secret")
	t.Setenv("FLIGHTDATA_BASE_URL", "https://override-flightdata.example.com")
	t.Setenv("DELIVERY_BASE_URL", "https://override-gateway.example.com")
	path := writeTempConfig(t, minimalConfigYAML)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fd-secret", cfg.FlightDataAPIKey)
	assert.Equal(t, "dl-secret", cfg.DeliveryAPIKey)
	assert.Equal(t, "https://override-flightdata.example.com", cfg.FlightData.BaseURL)
	assert.Equal(t, "https://override-gateway.example.com", cfg.Delivery.BaseURL)
}

func TestEnvOverrideFlightCacheTTL(t *testing.T) {
	t.Setenv("FLIGHT_CACHE_TTL_SECONDS", "120")
	path := writeTempConfig(t, minimalConfigYAML)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, cfg.FlightData.CacheTTL.Duration)
}

func TestDurationUnmarshalYAML(t *testing.T) {
	path := writeTempConfig(t, `
scheduler:
  tickInterval: 1m30s
flightData:
  baseUrl: https://flightdata.example.com
delivery:
  baseUrl: https://gateway.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Scheduler.TickInterval.Duration)
}

func TestInvalidDurationValue(t *testing.T) {
	path := writeTempConfig(t, `
scheduler:
  tickInterval: "not-a-duration"
flightData:
  baseUrl: https://flightdata.example.com
delivery:
  baseUrl: https://gateway.example.com
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}
