// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package main

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/tomtom215/matesync/internal/config"
)

const connectivityTimeout = 3 * time.Second

// teslamateConnectivity treats the network as usable when a TCP connection
// to the TeslaMate host succeeds. Without a configured server it always
// reports online so jobs run and fail fast with ErrNotConfigured.
type teslamateConnectivity struct {
	addr   string
	dialer net.Dialer
}

func newTeslamateConnectivity(cfg *config.TeslamateConfig) *teslamateConnectivity {
	return &teslamateConnectivity{
		addr:   dialAddress(cfg.URL),
		dialer: net.Dialer{Timeout: connectivityTimeout},
	}
}

// dialAddress returns host:port for rawURL, or "" when it cannot be parsed.
func dialAddress(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// Online implements scheduler.Connectivity.
func (c *teslamateConnectivity) Online(ctx context.Context) bool {
	if c.addr == "" {
		return true
	}
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
