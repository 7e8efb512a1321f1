package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// fileConfig mirrors the tunable subset of Config as it appears in YAML.
// Durations are strings ("1s", "90s") parsed with time.ParseDuration.
type fileConfig struct {
	Port           string   `yaml:"port"`
	Store          string   `yaml:"store"`
	StateSQLite    string   `yaml:"state_sqlite"`
	LogLevel       string   `yaml:"log_level"`
	Development    bool     `yaml:"development"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	Tracker struct {
		RequiredStreak int `yaml:"required_streak"`
	} `yaml:"tracker"`

	Notify struct {
		Channel     string `yaml:"channel"`
		WebhookURL  string `yaml:"webhook_url"`
		BaseDelay   string `yaml:"base_delay"`
		MaxDelay    string `yaml:"max_delay"`
		MaxAttempts int    `yaml:"max_attempts"`
		Workers     int    `yaml:"workers"`
		QueueSize   int    `yaml:"queue_size"`
	} `yaml:"notify"`

	Ingest struct {
		RatePerSecond float64 `yaml:"rate_per_second"`
		Burst         int     `yaml:"burst"`
	} `yaml:"ingest"`
}

// ApplyFile overlays the non-zero values of a YAML config file onto c.
// Secrets are never read from the file.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %q: %w", path, err)
	}
	return c.ApplyYAML(data)
}

// ApplyYAML overlays YAML-encoded settings onto c.
func (c *Config) ApplyYAML(data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}

	setString(&c.Port, fc.Port)
	setString(&c.Store, fc.Store)
	setString(&c.StateSQLite, fc.StateSQLite)
	setString(&c.LogLevel, fc.LogLevel)
	if fc.Development {
		c.Development = true
	}
	if len(fc.AllowedOrigins) > 0 {
		c.AllowedOrigins = fc.AllowedOrigins
	}

	setInt(&c.Tracker.RequiredStreak, fc.Tracker.RequiredStreak)

	setString(&c.Notify.Channel, fc.Notify.Channel)
	setString(&c.Notify.WebhookURL, fc.Notify.WebhookURL)
	if err := setDuration(&c.Notify.BaseDelay, fc.Notify.BaseDelay); err != nil {
		return fmt.Errorf("notify.base_delay: %w", err)
	}
	if err := setDuration(&c.Notify.MaxDelay, fc.Notify.MaxDelay); err != nil {
		return fmt.Errorf("notify.max_delay: %w", err)
	}
	setInt(&c.Notify.MaxAttempts, fc.Notify.MaxAttempts)
	setInt(&c.Notify.Workers, fc.Notify.Workers)
	setInt(&c.Notify.QueueSize, fc.Notify.QueueSize)

	if fc.Ingest.RatePerSecond > 0 {
		c.Ingest.RatePerSecond = fc.Ingest.RatePerSecond
	}
	setInt(&c.Ingest.Burst, fc.Ingest.Burst)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
