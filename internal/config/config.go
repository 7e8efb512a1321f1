package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvPort              = "PORT"
	EnvDatabaseURL       = "DATABASE_URL"
	EnvStore             = "LUMRA_STORE"
	EnvStateSQLite       = "LUMRA_STATE_SQLITE"
	EnvConfigFile        = "LUMRA_CONFIG"
	EnvRequiredStreak    = "LUMRA_REQUIRED_STREAK"
	EnvNotifyChannel     = "LUMRA_NOTIFY_CHANNEL"
	EnvWebhookURL        = "LUMRA_WEBHOOK_URL"
	EnvWebhookSecret     = "LUMRA_WEBHOOK_SECRET"
	EnvNotifyBaseDelay   = "LUMRA_NOTIFY_BASE_DELAY"
	EnvNotifyMaxDelay    = "LUMRA_NOTIFY_MAX_DELAY"
	EnvNotifyMaxAttempts = "LUMRA_NOTIFY_MAX_ATTEMPTS"
	EnvNotifyWorkers     = "LUMRA_NOTIFY_WORKERS"
	EnvNotifyQueue       = "LUMRA_NOTIFY_QUEUE"
	EnvIngestRate        = "LUMRA_INGEST_RATE"
	EnvIngestBurst       = "LUMRA_INGEST_BURST"
	EnvLogLevel          = "LUMRA_LOG_LEVEL"
	EnvEnvironment       = "LUMRA_ENV"
	EnvAllowedOrigins    = "LUMRA_ALLOWED_ORIGINS"

	StorePostgres = "postgres"
	StoreMemory   = "memory"

	ChannelLog     = "log"
	ChannelWebhook = "webhook"

	DefaultPort           = "5050"
	DefaultRequiredStreak = 2
)

// TrackerConfig tunes the transition debouncer.
type TrackerConfig struct {
	RequiredStreak int
}

// NotifyConfig controls delivery channel selection and the retry schedule.
type NotifyConfig struct {
	Channel       string
	WebhookURL    string
	WebhookSecret string
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	MaxAttempts   int
	Workers       int
	QueueSize     int
}

// IngestConfig is the per-elderly fix rate limit.
type IngestConfig struct {
	RatePerSecond float64
	Burst         int
}

// Config holds the service runtime configuration.
type Config struct {
	Port           string
	DatabaseURL    string
	Store          string
	StateSQLite    string
	LogLevel       string
	Development    bool
	AllowedOrigins []string

	Tracker TrackerConfig
	Notify  NotifyConfig
	Ingest  IngestConfig
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:     DefaultPort,
		Store:    StoreMemory,
		LogLevel: "info",
		AllowedOrigins: []string{
			"http://localhost:8081",
			"http://localhost:19006",
		},
		Tracker: TrackerConfig{RequiredStreak: DefaultRequiredStreak},
		Notify: NotifyConfig{
			Channel:     ChannelLog,
			BaseDelay:   time.Second,
			MaxDelay:    60 * time.Second,
			MaxAttempts: 5,
			Workers:     4,
			QueueSize:   1024,
		},
		Ingest: IngestConfig{RatePerSecond: 1, Burst: 5},
	}
}

// LoadFromEnv loads configuration from environment variables, applies the
// optional YAML file named by LUMRA_CONFIG on top, and validates the result.
//
// Environment variables win over the file so a deployment can override a
// checked-in tuning file without editing it.
func LoadFromEnv() (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv(EnvConfigFile)); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.Port = envOrDefault(EnvPort, cfg.Port)
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv(EnvDatabaseURL))
	if cfg.DatabaseURL != "" {
		cfg.Store = StorePostgres
	}
	cfg.Store = strings.ToLower(envOrDefault(EnvStore, cfg.Store))
	cfg.StateSQLite = envOrDefault(EnvStateSQLite, cfg.StateSQLite)
	cfg.LogLevel = envOrDefault(EnvLogLevel, cfg.LogLevel)
	cfg.Development = strings.EqualFold(envOrDefault(EnvEnvironment, ""), "development") || cfg.Development
	if origins := strings.TrimSpace(os.Getenv(EnvAllowedOrigins)); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}

	cfg.Tracker.RequiredStreak = intEnvOrDefault(EnvRequiredStreak, cfg.Tracker.RequiredStreak)

	cfg.Notify.Channel = strings.ToLower(envOrDefault(EnvNotifyChannel, cfg.Notify.Channel))
	cfg.Notify.WebhookURL = envOrDefault(EnvWebhookURL, cfg.Notify.WebhookURL)
	cfg.Notify.WebhookSecret = envOrDefault(EnvWebhookSecret, cfg.Notify.WebhookSecret)
	cfg.Notify.BaseDelay = durationEnvOrDefault(EnvNotifyBaseDelay, cfg.Notify.BaseDelay)
	cfg.Notify.MaxDelay = durationEnvOrDefault(EnvNotifyMaxDelay, cfg.Notify.MaxDelay)
	cfg.Notify.MaxAttempts = intEnvOrDefault(EnvNotifyMaxAttempts, cfg.Notify.MaxAttempts)
	cfg.Notify.Workers = intEnvOrDefault(EnvNotifyWorkers, cfg.Notify.Workers)
	cfg.Notify.QueueSize = intEnvOrDefault(EnvNotifyQueue, cfg.Notify.QueueSize)

	cfg.Ingest.RatePerSecond = floatEnvOrDefault(EnvIngestRate, cfg.Ingest.RatePerSecond)
	cfg.Ingest.Burst = intEnvOrDefault(EnvIngestBurst, cfg.Ingest.Burst)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is coherent.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("invalid %s: must not be empty", EnvPort)
	}
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("invalid %s: required when %s=%s", EnvDatabaseURL, EnvStore, StorePostgres)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("invalid %s: must be %q or %q", EnvStore, StorePostgres, StoreMemory)
	}
	if c.Tracker.RequiredStreak < 1 {
		return fmt.Errorf("invalid %s: must be >= 1", EnvRequiredStreak)
	}
	switch c.Notify.Channel {
	case ChannelLog:
	case ChannelWebhook:
		if c.Notify.WebhookURL == "" {
			return fmt.Errorf("invalid %s: required for the webhook channel", EnvWebhookURL)
		}
		if c.Notify.WebhookSecret == "" {
			return fmt.Errorf("invalid %s: required for the webhook channel", EnvWebhookSecret)
		}
	default:
		return fmt.Errorf("invalid %s: unknown channel %q", EnvNotifyChannel, c.Notify.Channel)
	}
	if c.Notify.BaseDelay <= 0 {
		return fmt.Errorf("invalid %s: must be > 0", EnvNotifyBaseDelay)
	}
	if c.Notify.MaxDelay < c.Notify.BaseDelay {
		return fmt.Errorf("invalid %s: must be >= %s", EnvNotifyMaxDelay, EnvNotifyBaseDelay)
	}
	if c.Notify.MaxAttempts < 1 {
		return fmt.Errorf("invalid %s: must be >= 1", EnvNotifyMaxAttempts)
	}
	if c.Notify.Workers < 1 {
		return fmt.Errorf("invalid %s: must be >= 1", EnvNotifyWorkers)
	}
	if c.Notify.QueueSize < 1 {
		return fmt.Errorf("invalid %s: must be >= 1", EnvNotifyQueue)
	}
	if c.Ingest.RatePerSecond <= 0 {
		return fmt.Errorf("invalid %s: must be > 0", EnvIngestRate)
	}
	if c.Ingest.Burst < 1 {
		return fmt.Errorf("invalid %s: must be >= 1", EnvIngestBurst)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intEnvOrDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func floatEnvOrDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func durationEnvOrDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
