// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package notify

import (
	"github.com/tomtom215/matesync/internal/config"
	"github.com/tomtom215/matesync/internal/logging"
)

// FromConfig builds the sink set selected by cfg. The log sink is always
// included. The returned EventSink is nil unless NATS is configured and must
// be closed on shutdown. A NATS connection failure is logged and that sink
// is left out.
func FromConfig(cfg *config.NotifyConfig) (*Multi, *EventSink) {
	sinks := []Sink{NewLogSink()}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, NewWebhookSink(cfg.WebhookURL))
	}
	if cfg.DiscordWebhookURL != "" {
		sinks = append(sinks, NewDiscordSink(cfg.DiscordWebhookURL))
	}

	var events *EventSink
	if cfg.NATSURL != "" {
		pub, err := NewNATSPublisher(cfg)
		if err != nil {
			logging.Error().Err(err).Str("url", cfg.NATSURL).Msg("NATS notification sink disabled")
		} else {
			events = NewEventSink(pub, cfg.NATSSubject)
			sinks = append(sinks, events)
		}
	}

	multi := NewMulti(sinks...)
	logging.Info().Strs("sinks", multi.Sinks()).Msg("Notification sinks configured")
	return multi, events
}
