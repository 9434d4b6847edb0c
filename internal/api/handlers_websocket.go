// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	ws "github.com/tomtom215/matesync/internal/websocket"
)

func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin accepts same-host origins and the configured CORS
// origins. Requests without an Origin header are rejected.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		h.logger.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}
	if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
		return true
	}
	if h.cfg != nil {
		for _, allowed := range h.cfg.Server.CORSOrigins {
			if allowed == "*" || allowed == origin {
				return true
			}
		}
	}
	h.logger.Warn().Str("origin", origin).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// WebSocket upgrades to the live status stream. The current status is
// sent right after the connection is registered.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		respondError(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "WebSocket service unavailable", nil)
		return
	}
	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	ws.NewClient(h.wsHub, conn).Start()
	_ = h.wsHub.BroadcastJSON(ws.MessageTypeSyncStatus, h.state.Status())
}
