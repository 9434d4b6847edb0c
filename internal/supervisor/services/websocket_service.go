// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package services

import (
	"context"

	ws "github.com/tomtom215/matesync/internal/websocket"
)

// ContextHub is satisfied by *websocket.Hub.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// WebSocketHubService delegates to the hub's own context loop.
type WebSocketHubService struct {
	hub  ContextHub
	name string
}

// NewWebSocketHubService wraps hub.
func NewWebSocketHubService(hub ContextHub) *WebSocketHubService {
	return &WebSocketHubService{hub: hub, name: "websocket-hub"}
}

// Serve implements suture.Service.
func (w *WebSocketHubService) Serve(ctx context.Context) error {
	return w.hub.RunWithContext(ctx)
}

func (w *WebSocketHubService) String() string {
	return w.name
}

// StatusForwarder is satisfied by *websocket.Hub.
type StatusForwarder interface {
	ForwardStatus(ctx context.Context, src ws.StatusSource) error
}

// StatusForwarderService pushes every sync status change to WebSocket
// clients. A closed subscription returns nil, which suture restarts.
type StatusForwarderService struct {
	hub    StatusForwarder
	source ws.StatusSource
	name   string
}

// NewStatusForwarderService forwards statuses from source through hub.
func NewStatusForwarderService(hub StatusForwarder, source ws.StatusSource) *StatusForwarderService {
	return &StatusForwarderService{hub: hub, source: source, name: "sync-status-forwarder"}
}

// Serve implements suture.Service.
func (s *StatusForwarderService) Serve(ctx context.Context) error {
	return s.hub.ForwardStatus(ctx, s.source)
}

func (s *StatusForwarderService) String() string {
	return s.name
}
