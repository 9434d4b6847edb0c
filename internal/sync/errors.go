// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package sync

import (
	"errors"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/tomtom215/matesync/internal/teslamate"
)

// networkKeywords match error text from transports that do not expose typed
// errors.
var networkKeywords = []string{"dns", "network", "connect", "timeout", "unreachable", "refused", "reset"}

// IsNetworkError reports whether err means the remote could not be reached.
// Such failures are retried later rather than recorded as a sync error.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, teslamate.ErrNotConfigured) {
		return false
	}

	var netErr net.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	var urlErr *url.Error
	switch {
	case errors.As(err, &netErr),
		errors.As(err, &opErr),
		errors.As(err, &dnsErr),
		errors.As(err, &urlErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, teslamate.ErrCircuitOpen):
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, kw := range networkKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// isNotConfigured reports whether err means no server has been set up.
func isNotConfigured(err error) bool {
	if errors.Is(err, teslamate.ErrNotConfigured) {
		return true
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "not configured")
}
