// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

/*
Package websocket pushes live sync state to dashboard clients.

The Hub owns the set of connected clients and fans every message out to
them. Each Client runs a read pump (answering ping messages) and a write
pump (forwarding hub messages and sending keepalive pings).

Message Types:

  - sync_status: the OverallSyncStatus snapshot, pushed on every change
  - sync_progress: free-form progress text from the orchestrator and the
    geocode processor
  - notification: a TPMS notification, mirrored from the notify sinks
  - ping / pong: client keepalive

Wiring:

	hub := websocket.NewHub()
	go hub.RunWithContext(ctx)
	go hub.ForwardStatus(ctx, stateMachine)
	orchestrator.SetProgressReporter(hub)

Slow clients whose send buffer fills up are dropped rather than blocking
the broadcast.
*/
package websocket
