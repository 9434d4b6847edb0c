// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, first match wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/matesync/config.yaml",
	"/etc/matesync/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Teslamate: TeslamateConfig{
			Timeout: 30 * time.Second,
		},
		Geocoding: GeocodingConfig{
			Provider:               "nominatim",
			BaseURL:                "https://nominatim.openstreetmap.org",
			UserAgent:              "MateSync/1.0 (+https://github.com/tomtom215/matesync)",
			Language:               "en",
			RateLimit:              1100 * time.Millisecond,
			MaxPerRun:              100,
			MaxConsecutiveFailures: 5,
			GridPrecision:          2,
		},
		Sync: SyncConfig{
			Interval:       6 * time.Hour,
			RetryBackoff:   30 * time.Second,
			MaxBackoff:     5 * time.Hour,
			OfflineRecheck: 30 * time.Second,
		},
		Tpms: TpmsConfig{
			Interval:      15 * time.Minute,
			ShortInterval: 3 * time.Minute,
		},
		Database: DatabaseConfig{
			Path:      "/data/matesync.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		KV: KVConfig{
			Path: "/data/kv",
		},
		Notify: NotifyConfig{
			NATSSubject: "matesync.tpms",
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              3857,
			Timeout:           30 * time.Second,
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration in three layers:
//
//  1. struct defaults
//  2. the first config file found (see findConfigFile)
//  3. mapped environment variables
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// TESLAMATE_URL -> teslamate.url
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// ConfigFile returns the config file Load reads, or "" when there is none.
func ConfigFile() string {
	return findConfigFile()
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields splits comma-separated env values for slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"teslamate_url":     "teslamate.url",
	"teslamate_token":   "teslamate.token",
	"teslamate_timeout": "teslamate.timeout",

	"geocoding_provider":                 "geocoding.provider",
	"geocoding_base_url":                 "geocoding.base_url",
	"geocoding_api_key":                  "geocoding.api_key",
	"amap_api_key":                       "geocoding.api_key",
	"geocoding_user_agent":               "geocoding.user_agent",
	"geocoding_language":                 "geocoding.language",
	"geocoding_rate_limit":               "geocoding.rate_limit",
	"geocoding_max_per_run":              "geocoding.max_per_run",
	"geocoding_max_consecutive_failures": "geocoding.max_consecutive_failures",
	"geocoding_grid_precision":           "geocoding.grid_precision",

	"sync_interval":        "sync.interval",
	"sync_retry_backoff":   "sync.retry_backoff",
	"sync_max_backoff":     "sync.max_backoff",
	"sync_offline_recheck": "sync.offline_recheck",

	"tpms_interval":            "tpms.interval",
	"tpms_short_interval_mode": "tpms.short_interval_mode",
	"tpms_short_interval":      "tpms.short_interval",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",
	"kv_path":           "kv.path",

	"notify_webhook_url":         "notify.webhook_url",
	"notify_discord_webhook_url": "notify.discord_webhook_url",
	"nats_url":                   "notify.nats_url",
	"nats_subject":               "notify.nats_subject",
	"nats_jetstream":             "notify.nats_jetstream",

	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_timeout":        "server.timeout",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",
	"server_debug":        "server.debug",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to its koanf path.
// Unmapped variables return "" so unrelated environment never leaks into
// the configuration.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// WatchConfigFile calls callback whenever the file at path changes.
// The caller is responsible for reloading and swapping the configuration.
func WatchConfigFile(path string, callback func()) error {
	return file.Provider(path).Watch(func(_ interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
