// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package models

import "time"

// APIResponse is the envelope of every JSON response of the admin API.
type APIResponse struct {
	Status   string      `json:"status"` // "success" or "error"
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response bookkeeping.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// APIError is the error body of a failed request.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthStatus is returned by the health endpoint.
type HealthStatus struct {
	Status              string    `json:"status"` // "healthy" or "degraded"
	Version             string    `json:"version"`
	DatabaseConnected   bool      `json:"database_connected"`
	TeslamateConfigured bool      `json:"teslamate_configured"`
	TeslamateReachable  bool      `json:"teslamate_reachable"`
	Uptime              float64   `json:"uptime_seconds"`
	CheckedAt           time.Time `json:"checked_at"`
}
