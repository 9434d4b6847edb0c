// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package config

import (
	"time"
)

// Config holds all application configuration
type Config struct {
	Teslamate TeslamateConfig `koanf:"teslamate"`
	Geocoding GeocodingConfig `koanf:"geocoding"`
	Sync      SyncConfig      `koanf:"sync"`
	Tpms      TpmsConfig      `koanf:"tpms"`
	Database  DatabaseConfig  `koanf:"database"`
	KV        KVConfig        `koanf:"kv"`
	Notify    NotifyConfig    `koanf:"notify"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// TeslamateConfig holds the remote TeslaMate API connection settings.
// An empty URL means the server has not been set up yet.
type TeslamateConfig struct {
	URL     string        `koanf:"url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`
}

// IsConfigured reports whether a TeslaMate API server has been set up.
func (c TeslamateConfig) IsConfigured() bool {
	return c.URL != ""
}

// GeocodingConfig controls the reverse geocoder and the queue processor.
type GeocodingConfig struct {
	// Provider is "nominatim" or "amap".
	Provider  string `koanf:"provider"`
	BaseURL   string `koanf:"base_url"`
	APIKey    string `koanf:"api_key"`
	UserAgent string `koanf:"user_agent"`
	Language  string `koanf:"language"`

	// RateLimit is the minimum spacing between two geocode calls.
	RateLimit              time.Duration `koanf:"rate_limit"`
	MaxPerRun              int           `koanf:"max_per_run"`
	MaxConsecutiveFailures int           `koanf:"max_consecutive_failures"`

	// GridPrecision is the number of decimal places kept when quantizing
	// coordinates into grid cells (2 = roughly 1.1km cells).
	GridPrecision int `koanf:"grid_precision"`
}

// SyncConfig holds the sync orchestrator and scheduler settings
type SyncConfig struct {
	Interval       time.Duration `koanf:"interval"`
	RetryBackoff   time.Duration `koanf:"retry_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`
	OfflineRecheck time.Duration `koanf:"offline_recheck"`
}

// TpmsConfig holds the tire pressure polling settings.
type TpmsConfig struct {
	Interval time.Duration `koanf:"interval"`

	// ShortIntervalMode replaces the periodic job with a self-rescheduling
	// one-shot so polling can run more often than the periodic minimum.
	ShortIntervalMode bool          `koanf:"short_interval_mode"`
	ShortInterval     time.Duration `koanf:"short_interval"`
}

// DatabaseConfig holds DuckDB settings
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// KVConfig holds the badger key-value store settings. An empty path
// runs the store in memory.
type KVConfig struct {
	Path string `koanf:"path"`
}

// NotifyConfig selects notification sinks. The log sink is always active.
type NotifyConfig struct {
	WebhookURL        string `koanf:"webhook_url"`
	DiscordWebhookURL string `koanf:"discord_webhook_url"`
	NATSURL           string `koanf:"nats_url"`
	NATSSubject       string `koanf:"nats_subject"`
	NATSJetStream     bool   `koanf:"nats_jetstream"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	Timeout           time.Duration `koanf:"timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`

	// Debug enables the TPMS simulation routes.
	Debug bool `koanf:"debug"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, in that order of precedence.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
