// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/matesync/internal/config"
	"github.com/tomtom215/matesync/internal/logging"
	"github.com/tomtom215/matesync/internal/models"
)

// DefaultSubject is the topic used when notify.nats_subject is empty.
const DefaultSubject = "matesync.notifications"

// EventSink publishes notifications as messages on a watermill topic.
type EventSink struct {
	publisher message.Publisher
	topic     string

	mu     sync.RWMutex
	closed bool
}

// NewEventSink publishes on topic through publisher.
func NewEventSink(publisher message.Publisher, topic string) *EventSink {
	if topic == "" {
		topic = DefaultSubject
	}
	return &EventSink{publisher: publisher, topic: topic}
}

// NewNATSPublisher connects a watermill NATS publisher. JetStream is used
// only when enabled in cfg; the stream must already exist.
func NewNATSPublisher(cfg *config.NotifyConfig) (message.Publisher, error) {
	logger := watermill.NewSlogLogger(logging.NewSlogLogger())

	natsOpts := []natsgo.Option{
		natsgo.Name("matesync"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.NATSURL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      !cfg.NATSJetStream,
			AutoProvision: false,
			TrackMsgId:    true,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return pub, nil
}

// Name implements Sink.
func (s *EventSink) Name() string { return "events" }

// Notify implements Sink.
func (s *EventSink) Notify(_ context.Context, n models.Notification) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("event sink is closed")
	}

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("serialize notification: %w", err)
	}

	id := uuid.NewString()
	msg := message.NewMessage(id, data)
	msg.Metadata.Set(natsgo.MsgIdHdr, id)
	msg.Metadata.Set("vehicle_id", strconv.Itoa(n.VehicleID))
	msg.Metadata.Set("kind", n.Kind)

	if err := s.publisher.Publish(s.topic, msg); err != nil {
		return fmt.Errorf("publish notification %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying publisher.
func (s *EventSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.publisher.Close()
}
