// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

// Package services adapts MateSync components to suture.Service.
//
// Each wrapper translates a component's own lifecycle (Start/Stop pairs,
// blocking loops, tickers) into Serve(ctx) error and names itself through
// String() for suture's event log. The wrappers depend on small interfaces
// instead of the concrete packages so they can be tested with doubles.
package services
