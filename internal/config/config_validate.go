// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks that configuration values are usable.
// An empty TeslaMate URL is valid: the workers treat it as "not configured".
func (c *Config) Validate() error {
	if err := c.validateTeslamate(); err != nil {
		return err
	}
	if err := c.validateGeocoding(); err != nil {
		return err
	}
	if err := c.validateSchedules(); err != nil {
		return err
	}
	if err := c.validateNotify(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateTeslamate() error {
	if c.Teslamate.URL == "" {
		return nil
	}
	if err := validateHTTPURL("TESLAMATE_URL", c.Teslamate.URL); err != nil {
		return err
	}
	if c.Teslamate.Timeout <= 0 {
		return fmt.Errorf("TESLAMATE_TIMEOUT must be positive, got %s", c.Teslamate.Timeout)
	}
	return nil
}

func (c *Config) validateGeocoding() error {
	g := c.Geocoding
	switch strings.ToLower(g.Provider) {
	case "nominatim":
	case "amap":
		if g.APIKey == "" {
			return fmt.Errorf("GEOCODING_API_KEY is required when GEOCODING_PROVIDER=amap")
		}
	default:
		return fmt.Errorf("GEOCODING_PROVIDER must be nominatim or amap, got %q", g.Provider)
	}
	if g.BaseURL != "" {
		if err := validateHTTPURL("GEOCODING_BASE_URL", g.BaseURL); err != nil {
			return err
		}
	}
	// The public Nominatim policy allows one request per second.
	if g.RateLimit < time.Second {
		return fmt.Errorf("GEOCODING_RATE_LIMIT must be at least 1s, got %s", g.RateLimit)
	}
	if g.MaxPerRun < 1 {
		return fmt.Errorf("GEOCODING_MAX_PER_RUN must be at least 1, got %d", g.MaxPerRun)
	}
	if g.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("GEOCODING_MAX_CONSECUTIVE_FAILURES must be at least 1, got %d", g.MaxConsecutiveFailures)
	}
	if g.GridPrecision < 0 || g.GridPrecision > 6 {
		return fmt.Errorf("GEOCODING_GRID_PRECISION must be between 0 and 6, got %d", g.GridPrecision)
	}
	return nil
}

func (c *Config) validateSchedules() error {
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"SYNC_INTERVAL", c.Sync.Interval},
		{"SYNC_RETRY_BACKOFF", c.Sync.RetryBackoff},
		{"SYNC_MAX_BACKOFF", c.Sync.MaxBackoff},
		{"SYNC_OFFLINE_RECHECK", c.Sync.OfflineRecheck},
		{"TPMS_INTERVAL", c.Tpms.Interval},
		{"TPMS_SHORT_INTERVAL", c.Tpms.ShortInterval},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	if c.Sync.MaxBackoff < c.Sync.RetryBackoff {
		return fmt.Errorf("SYNC_MAX_BACKOFF (%s) must not be shorter than SYNC_RETRY_BACKOFF (%s)",
			c.Sync.MaxBackoff, c.Sync.RetryBackoff)
	}
	return nil
}

func (c *Config) validateNotify() error {
	if c.Notify.WebhookURL != "" {
		if err := validateHTTPURL("NOTIFY_WEBHOOK_URL", c.Notify.WebhookURL); err != nil {
			return err
		}
	}
	if c.Notify.DiscordWebhookURL != "" {
		if err := validateHTTPURL("NOTIFY_DISCORD_WEBHOOK_URL", c.Notify.DiscordWebhookURL); err != nil {
			return err
		}
	}
	if c.Notify.NATSURL != "" && c.Notify.NATSSubject == "" {
		return fmt.Errorf("NATS_SUBJECT is required when NATS_URL is set")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.Server.Timeout)
	}
	if c.Server.RateLimitRequests < 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must not be negative, got %d", c.Server.RateLimitRequests)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func validateHTTPURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
