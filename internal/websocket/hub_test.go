// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package websocket

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/matesync/internal/logging"
	"github.com/tomtom215/matesync/internal/metrics"
	"github.com/tomtom215/matesync/internal/models"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

func setupHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub, cancel
}

func createTestClient(hub *Hub, buffer int) *Client {
	return &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message, buffer)}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatal("client channel closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	return Message{}
}

func TestHub_RegisterAndBroadcast(t *testing.T) {
	hub, _ := setupHub(t)
	a, b := createTestClient(hub, 8), createTestClient(hub, 8)
	hub.Register <- a
	hub.Register <- b

	if err := hub.BroadcastJSON("custom", map[string]int{"n": 1}); err != nil {
		t.Fatalf("BroadcastJSON() error = %v", err)
	}
	for _, c := range []*Client{a, b} {
		if msg := receive(t, c); msg.Type != "custom" {
			t.Errorf("message type = %q, want custom", msg.Type)
		}
	}
	if hub.GetClientCount() != 2 {
		t.Errorf("clients = %d, want 2", hub.GetClientCount())
	}
	if got := testutil.ToFloat64(metrics.WebSocketClients); got != 2 {
		t.Errorf("client gauge = %v, want 2", got)
	}

	hub.Unregister <- a
	if _, ok := <-a.send; ok {
		t.Error("unregistered client channel still open")
	}
}

func TestHub_DropsSlowClients(t *testing.T) {
	hub, _ := setupHub(t)
	slow := createTestClient(hub, 1)
	hub.Register <- slow

	_ = hub.BroadcastJSON("one", nil)
	_ = hub.BroadcastJSON("two", nil)

	deadline := time.Now().Add(time.Second)
	for hub.GetClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.GetClientCount() != 0 {
		t.Fatal("slow client not dropped")
	}
}

func TestHub_ReportProgressAndNotify(t *testing.T) {
	hub, _ := setupHub(t)
	c := createTestClient(hub, 8)
	hub.Register <- c

	if err := hub.ReportProgress(context.Background(), "Syncing car 1/2..."); err != nil {
		t.Fatal(err)
	}
	msg := receive(t, c)
	data, ok := msg.Data.(SyncProgressData)
	if msg.Type != MessageTypeSyncProgress || !ok || data.Message != "Syncing car 1/2..." {
		t.Errorf("progress message = %+v", msg)
	}

	n := models.Notification{ID: 2001, VehicleID: 1, Title: "Tire pressure warning"}
	if err := hub.Notify(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	if msg := receive(t, c); msg.Type != MessageTypeNotification {
		t.Errorf("notification type = %q", msg.Type)
	}
	if hub.Name() != "websocket" {
		t.Errorf("Name() = %q", hub.Name())
	}
}

func TestHub_BroadcastFull(t *testing.T) {
	hub := NewHub() // not running, so nothing drains the buffer
	for i := 0; i < cap(hub.broadcast); i++ {
		if err := hub.BroadcastJSON("fill", i); err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
	}
	if err := hub.BroadcastJSON("overflow", nil); !errors.Is(err, ErrBroadcastFull) {
		t.Errorf("BroadcastJSON() error = %v, want ErrBroadcastFull", err)
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- hub.RunWithContext(ctx) }()

	c := createTestClient(hub, 8)
	hub.Register <- c
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunWithContext() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	if _, ok := <-c.send; ok {
		t.Error("client channel still open after shutdown")
	}
	if hub.GetClientCount() != 0 {
		t.Errorf("clients = %d after shutdown", hub.GetClientCount())
	}
}

type fakeSource struct {
	ch        chan models.OverallSyncStatus
	cancelled chan struct{}
}

func (f *fakeSource) Subscribe() (<-chan models.OverallSyncStatus, func()) {
	return f.ch, func() { close(f.cancelled) }
}

func TestHub_ForwardStatus(t *testing.T) {
	hub, _ := setupHub(t)
	c := createTestClient(hub, 8)
	hub.Register <- c

	src := &fakeSource{ch: make(chan models.OverallSyncStatus, 1), cancelled: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.ForwardStatus(ctx, src) }()

	src.ch <- models.OverallSyncStatus{AllComplete: true}
	msg := receive(t, c)
	status, ok := msg.Data.(models.OverallSyncStatus)
	if msg.Type != MessageTypeSyncStatus || !ok || !status.AllComplete {
		t.Errorf("status message = %+v", msg)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("ForwardStatus() = %v", err)
	}
	select {
	case <-src.cancelled:
	default:
		t.Error("subscription not cancelled")
	}
}

func TestMarshalMessage(t *testing.T) {
	b, err := MarshalMessage(Message{Type: MessageTypePong})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"pong","data":null}` {
		t.Errorf("MarshalMessage() = %s", b)
	}
}
