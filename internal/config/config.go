// Package config handles loading, validating, and applying defaults to the
// trip-notification service configuration. Configuration is read from a YAML
// file and may be overridden by environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a wrapper around time.Duration that implements yaml.Unmarshaler
// so that Go-style duration strings (e.g. "30s", "5m") can be used in YAML.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a YAML scalar as a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML serialises the duration back to a human-readable string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config is the top-level configuration for the trip-notification service.
type Config struct {
	App        AppConfig           `yaml:"app"`
	Scheduler  SchedulerConfig     `yaml:"scheduler"`
	FlightData FlightDataConfig    `yaml:"flightData"`
	Delivery   DeliveryConfig      `yaml:"delivery"`
	Notify     NotifyConfig        `yaml:"notify"`
	Retry      RetryPoliciesConfig `yaml:"retry"`
	Ingress    IngressConfig       `yaml:"ingress"`
	Storage    StorageConfig       `yaml:"storage"`
	Retention  RetentionConfig     `yaml:"retention"`
	Metrics    MetricsConfig       `yaml:"metrics"`
	Health     HealthConfig        `yaml:"health"`

	// FlightDataAPIKey and DeliveryAPIKey are populated from environment
	// variables; they are never read from the config file.
	FlightDataAPIKey string `yaml:"-"`
	DeliveryAPIKey   string `yaml:"-"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name      string `yaml:"name"`
	Version   string `yaml:"version"`
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// SchedulerConfig controls the polling tick loop and its worker pool.
type SchedulerConfig struct {
	TickInterval         Duration `yaml:"tickInterval"`
	Workers              int      `yaml:"workers"`
	CycleTimeout         Duration `yaml:"cycleTimeout"`
	LookbackWindow       Duration `yaml:"lookbackWindow"`
	SaturationMultiplier int      `yaml:"saturationMultiplier"`
}

// FlightDataConfig configures the external flight-status provider client.
type FlightDataConfig struct {
	BaseURL  string   `yaml:"baseUrl"`
	CacheTTL Duration `yaml:"cacheTtl"`
	Timeout  Duration `yaml:"timeout"`
}

// DeliveryConfig configures the external messaging-gateway client.
type DeliveryConfig struct {
	BaseURL         string   `yaml:"baseUrl"`
	TemplateTimeout Duration `yaml:"templateTimeout"`
	MediaTimeout    Duration `yaml:"mediaTimeout"`
}

// NotifyConfig controls dedup, quiet hours, and lead-time policy.
type NotifyConfig struct {
	DelayCooldown       Duration `yaml:"delayCooldown"`
	DelaySameETAWindow  Duration `yaml:"delaySameEtaWindow"`
	QuietHoursLocal     string   `yaml:"quietHoursLocal"`
	ReminderLeadHours   int      `yaml:"reminderLeadHours"`
	BoardingLeadMinutes int      `yaml:"boardingLeadMinutes"`
}

// RetryPolicyConfig is one named backoff policy.
type RetryPolicyConfig struct {
	MaxAttempts int      `yaml:"maxAttempts"`
	Base        Duration `yaml:"base"`
	Cap         Duration `yaml:"cap"`
	Jitter      bool     `yaml:"jitter"`
}

// RetryPoliciesConfig holds the per-external-service retry policies.
type RetryPoliciesConfig struct {
	FlightData RetryPolicyConfig `yaml:"flightData"`
	Messaging  RetryPolicyConfig `yaml:"messaging"`
	Database   RetryPolicyConfig `yaml:"database"`
}

// IngressConfig configures the HTTP server that accepts trip creation.
type IngressConfig struct {
	Port int `yaml:"port"`
}

// StorageConfig controls the SQLite database and volume monitoring.
type StorageConfig struct {
	MonitorInterval   Duration `yaml:"monitorInterval"`
	DBPath            string   `yaml:"dbPath"`
	VolumePath        string   `yaml:"volumePath"`
	WarningThreshold  int      `yaml:"warningThreshold"`
	CriticalThreshold int      `yaml:"criticalThreshold"`
}

// RetentionConfig controls old-record cleanup.
type RetentionConfig struct {
	Enabled         bool     `yaml:"enabled"`
	CleanupInterval Duration `yaml:"cleanupInterval"`
	RetentionPeriod Duration `yaml:"retentionPeriod"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// HealthConfig controls the health/readiness probe endpoints.
type HealthConfig struct {
	LivenessPath  string `yaml:"livenessPath"`
	ReadinessPath string `yaml:"readinessPath"`
	Port          int    `yaml:"port"`
}

// Load reads the YAML configuration file at path, applies defaults, applies
// environment-variable overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-valued fields with sensible defaults, matching
// the environment-variable defaults enumerated for this service.
func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.LogFormat == "" {
		c.App.LogFormat = "json"
	}
	if c.App.Name == "" {
		c.App.Name = "tripnotifier"
	}

	if c.Scheduler.TickInterval.Duration == 0 {
		c.Scheduler.TickInterval.Duration = 30 * time.Second
	}
	if c.Scheduler.Workers == 0 {
		c.Scheduler.Workers = 8
	}
	if c.Scheduler.CycleTimeout.Duration == 0 {
		c.Scheduler.CycleTimeout.Duration = 90 * time.Second
	}
	if c.Scheduler.LookbackWindow.Duration == 0 {
		c.Scheduler.LookbackWindow.Duration = 8 * time.Hour
	}
	if c.Scheduler.SaturationMultiplier == 0 {
		c.Scheduler.SaturationMultiplier = 10
	}

	if c.FlightData.CacheTTL.Duration == 0 {
		c.FlightData.CacheTTL.Duration = 300 * time.Second
	}
	if c.FlightData.Timeout.Duration == 0 {
		c.FlightData.Timeout.Duration = 10 * time.Second
	}

	if c.Delivery.TemplateTimeout.Duration == 0 {
		c.Delivery.TemplateTimeout.Duration = 30 * time.Second
	}
	if c.Delivery.MediaTimeout.Duration == 0 {
		c.Delivery.MediaTimeout.Duration = 60 * time.Second
	}

	if c.Notify.DelayCooldown.Duration == 0 {
		c.Notify.DelayCooldown.Duration = 15 * time.Minute
	}
	if c.Notify.DelaySameETAWindow.Duration == 0 {
		c.Notify.DelaySameETAWindow.Duration = 2 * time.Hour
	}
	if c.Notify.QuietHoursLocal == "" {
		c.Notify.QuietHoursLocal = "20-09"
	}
	if c.Notify.ReminderLeadHours == 0 {
		c.Notify.ReminderLeadHours = 24
	}
	if c.Notify.BoardingLeadMinutes == 0 {
		c.Notify.BoardingLeadMinutes = 35
	}

	applyPolicyDefaults(&c.Retry.FlightData, 3, 2*time.Second, 30*time.Second, true)
	applyPolicyDefaults(&c.Retry.Messaging, 2, 500*time.Millisecond, 5*time.Second, true)
	applyPolicyDefaults(&c.Retry.Database, 2, 100*time.Millisecond, 1*time.Second, false)

	if c.Ingress.Port == 0 {
		c.Ingress.Port = 8090
	}

	if c.Storage.MonitorInterval.Duration == 0 {
		c.Storage.MonitorInterval.Duration = 1 * time.Minute
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "/data/trips.db"
	}
	if c.Storage.VolumePath == "" {
		c.Storage.VolumePath = "/data"
	}
	if c.Storage.WarningThreshold == 0 {
		c.Storage.WarningThreshold = 80
	}
	if c.Storage.CriticalThreshold == 0 {
		c.Storage.CriticalThreshold = 90
	}

	if c.Retention.CleanupInterval.Duration == 0 {
		c.Retention.Enabled = true
		c.Retention.CleanupInterval.Duration = 1 * time.Hour
		c.Retention.RetentionPeriod.Duration = 30 * 24 * time.Hour
	} else if c.Retention.RetentionPeriod.Duration == 0 {
		c.Retention.RetentionPeriod.Duration = 30 * 24 * time.Hour
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Enabled = true
		c.Metrics.Port = 8080
		c.Metrics.Path = "/metrics"
	} else if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Health.LivenessPath == "" {
		c.Health.LivenessPath = "/healthz"
	}
	if c.Health.ReadinessPath == "" {
		c.Health.ReadinessPath = "/ready"
	}
	if c.Health.Port == 0 {
		c.Health.Port = 8080
	}
}

// applyPolicyDefaults fills zero fields of a retry policy in place.
func applyPolicyDefaults(p *RetryPolicyConfig, maxAttempts int, base, cap time.Duration, jitter bool) {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = maxAttempts
	}
	if p.Base.Duration == 0 {
		p.Base.Duration = base
	}
	if p.Cap.Duration == 0 {
		p.Cap.Duration = cap
	}
	if !p.Jitter && jitter {
		p.Jitter = jitter
	}
}

// applyEnvOverrides applies the environment-variable overrides recognized by
// this service.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SCHEDULER_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scheduler.TickInterval.Duration = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("SCHEDULER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scheduler.Workers = n
		}
	}
	if v := os.Getenv("FLIGHT_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.FlightData.CacheTTL.Duration = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("DELAY_COOLDOWN_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Notify.DelayCooldown.Duration = time.Duration(n) * time.Minute
		}
	}
	if v := os.Getenv("DELAY_SAME_ETA_WINDOW_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Notify.DelaySameETAWindow.Duration = time.Duration(n) * time.Hour
		}
	}
	if v := os.Getenv("QUIET_HOURS_LOCAL"); v != "" {
		c.Notify.QuietHoursLocal = v
	}
	if v := os.Getenv("REMINDER_LEAD_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Notify.ReminderLeadHours = n
		}
	}
	if v := os.Getenv("BOARDING_LEAD_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Notify.BoardingLeadMinutes = n
		}
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("FLIGHTDATA_API_KEY"); v != "" {
		c.FlightDataAPIKey = v
	}
	if v := os.Getenv("DELIVERY_API_KEY"); v != "" {
		c.DeliveryAPIKey = v
	}
	if v := os.Getenv("FLIGHTDATA_BASE_URL"); v != "" {
		c.FlightData.BaseURL = v
	}
	if v := os.Getenv("DELIVERY_BASE_URL"); v != "" {
		c.Delivery.BaseURL = v
	}
}

// validate checks that all required fields are populated and that enum
// values are within the allowed set.
func (c *Config) validate() error {
	if c.FlightData.BaseURL == "" {
		return fmt.Errorf("flightData.baseUrl is required")
	}
	if c.Delivery.BaseURL == "" {
		return fmt.Errorf("delivery.baseUrl is required")
	}

	switch c.App.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("app.logLevel must be one of: debug, info, warn, error; got %q", c.App.LogLevel)
	}

	switch c.App.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("app.logFormat must be one of: json, text; got %q", c.App.LogFormat)
	}

	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be positive")
	}

	return nil
}
