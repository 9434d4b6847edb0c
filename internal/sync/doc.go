// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

/*
Package sync mirrors a TeslaMate API server into the local DuckDB cache and
runs the background workers built on top of it.

Key Components:

  - StateMachine: persisted per-vehicle sync bookkeeping plus the observable,
    in-memory progress of every vehicle
  - Orchestrator: the data_sync_work job. Lists vehicles and runs the two-phase
    (summary then detail) ingestion for each of them in sequence
  - GeocodeProcessor: the geocode_worker job. Drains the grid-cell backlog
    through the reverse geocoder at a fixed request spacing
  - TpmsTracker: the tpms_pressure_work job. Polls live status and emits a
    notification when the set of warned tires changes

Sync Lifecycle:

	IDLE -> SYNCING_SUMMARIES -> SYNCING_DRIVE_DETAILS -> SYNCING_CHARGE_DETAILS -> COMPLETE
	          any active phase -> ERROR
	                 any phase -> IDLE (after a reset)

Every progress mutation is one committed SQL statement. A run that is killed
midway resumes from the last committed counter on its next invocation.

Job Results:

Each worker returns a scheduler.Result. Network-classified failures return
Retry so the scheduler re-invokes the job with backoff. "Not configured" is a
Success so an unconfigured install does not spin. Everything else is logged
and either skipped (per item, per vehicle) or returned as Failure.
*/
package sync
