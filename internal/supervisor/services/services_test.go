// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/matesync/internal/logging"
	"github.com/tomtom215/matesync/internal/models"
	ws "github.com/tomtom215/matesync/internal/websocket"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ suture.Service = (*WebSocketHubService)(nil)
	_ suture.Service = (*StatusForwarderService)(nil)
	_ suture.Service = (*SchedulerService)(nil)
	_ suture.Service = (*KVGCService)(nil)
)

// serveAndCancel runs svc, cancels after delay and returns Serve's result.
func serveAndCancel(t *testing.T, svc suture.Service, delay time.Duration) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	time.Sleep(delay)
	cancel()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
		return nil
	}
}

type mockHTTPServer struct {
	listenErr     error
	shutdownCount atomic.Int32
	stopCh        chan struct{}
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{stopCh: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stopCh
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdownCount.Add(1)
	close(m.stopCh)
	return nil
}

func TestHTTPServerService(t *testing.T) {
	t.Run("default timeout", func(t *testing.T) {
		svc := NewHTTPServerService(newMockHTTPServer(), 0)
		if svc.shutdownTimeout != 10*time.Second || svc.String() != "http-server" {
			t.Errorf("svc = %+v", svc)
		}
	})

	t.Run("graceful shutdown", func(t *testing.T) {
		server := newMockHTTPServer()
		err := serveAndCancel(t, NewHTTPServerService(server, time.Second), 20*time.Millisecond)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
		if server.shutdownCount.Load() != 1 {
			t.Errorf("shutdown calls = %d, want 1", server.shutdownCount.Load())
		}
	})

	t.Run("listen failure", func(t *testing.T) {
		bindErr := errors.New("address already in use")
		server := newMockHTTPServer()
		server.listenErr = bindErr
		err := NewHTTPServerService(server, time.Second).Serve(context.Background())
		if !errors.Is(err, bindErr) {
			t.Errorf("Serve() = %v, want %v", err, bindErr)
		}
	})
}

type mockHub struct {
	runs atomic.Int32
}

func (m *mockHub) RunWithContext(ctx context.Context) error {
	m.runs.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestWebSocketHubService(t *testing.T) {
	hub := &mockHub{}
	svc := NewWebSocketHubService(hub)
	if svc.String() != "websocket-hub" {
		t.Errorf("String() = %q", svc.String())
	}
	if err := serveAndCancel(t, svc, 10*time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v", err)
	}
	if hub.runs.Load() != 1 {
		t.Errorf("runs = %d, want 1", hub.runs.Load())
	}
}

type statusSource struct {
	ch chan models.OverallSyncStatus
}

func (s *statusSource) Subscribe() (<-chan models.OverallSyncStatus, func()) {
	return s.ch, func() {}
}

func TestStatusForwarderService(t *testing.T) {
	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.RunWithContext(ctx) }()

	src := &statusSource{ch: make(chan models.OverallSyncStatus)}
	svc := NewStatusForwarderService(hub, src)

	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	close(src.ch)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() on closed subscription = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("forwarder did not return after subscription closed")
	}
}

type mockScheduler struct {
	starts, stops atomic.Int32
	startErr      error
}

func (m *mockScheduler) Start(context.Context) error {
	m.starts.Add(1)
	return m.startErr
}

func (m *mockScheduler) Stop() error {
	m.stops.Add(1)
	return nil
}

func TestSchedulerService(t *testing.T) {
	t.Run("start and stop", func(t *testing.T) {
		s := &mockScheduler{}
		err := serveAndCancel(t, NewSchedulerService(s), 10*time.Millisecond)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v", err)
		}
		if s.starts.Load() != 1 || s.stops.Load() != 1 {
			t.Errorf("starts=%d stops=%d, want 1/1", s.starts.Load(), s.stops.Load())
		}
	})

	t.Run("start failure", func(t *testing.T) {
		s := &mockScheduler{startErr: errors.New("scheduler already running")}
		if err := NewSchedulerService(s).Serve(context.Background()); err == nil {
			t.Error("expected start error")
		}
		if s.stops.Load() != 0 {
			t.Error("Stop called after failed Start")
		}
	})
}

type mockGC struct {
	calls atomic.Int32
	err   error
}

func (m *mockGC) RunGC() error {
	m.calls.Add(1)
	return m.err
}

func TestKVGCService(t *testing.T) {
	if svc := NewKVGCService(&mockGC{}, 0); svc.interval != 30*time.Minute {
		t.Errorf("default interval = %v", svc.interval)
	}

	t.Run("collects on every tick", func(t *testing.T) {
		gc := &mockGC{}
		err := serveAndCancel(t, NewKVGCService(gc, 10*time.Millisecond), 55*time.Millisecond)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v", err)
		}
		if gc.calls.Load() < 2 {
			t.Errorf("RunGC calls = %d, want >= 2", gc.calls.Load())
		}
	})

	t.Run("keeps running after GC errors", func(t *testing.T) {
		gc := &mockGC{err: errors.New("value log locked")}
		err := serveAndCancel(t, NewKVGCService(gc, 10*time.Millisecond), 55*time.Millisecond)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v", err)
		}
		if gc.calls.Load() < 2 {
			t.Errorf("RunGC calls = %d, want >= 2", gc.calls.Load())
		}
	})
}
