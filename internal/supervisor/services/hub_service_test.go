// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

type mockContextHub struct {
	runErr   error
	runCount atomic.Int32
}

func (m *mockContextHub) RunWithContext(ctx context.Context) error {
	m.runCount.Add(1)
	if m.runErr != nil {
		return m.runErr
	}
	<-ctx.Done()
	return ctx.Err()
}

type mockForwarder struct {
	startErr  error
	started   atomic.Int32
	stopped   atomic.Int32
	startedCh chan struct{}
}

func newMockForwarder() *mockForwarder {
	return &mockForwarder{startedCh: make(chan struct{}, 1)}
}

func (m *mockForwarder) Start(context.Context) error {
	m.started.Add(1)
	if m.startErr != nil {
		return m.startErr
	}
	select {
	case m.startedCh <- struct{}{}:
	default:
	}
	return nil
}

func (m *mockForwarder) Stop() { m.stopped.Add(1) }

var (
	_ suture.Service = (*WebSocketHubService)(nil)
	_ suture.Service = (*ForwarderService)(nil)
)

func TestWebSocketHubService_Serve(t *testing.T) {
	t.Run("returns context error on cancellation", func(t *testing.T) {
		hub := &mockContextHub{}
		svc := NewWebSocketHubService(hub)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Serve did not return")
		}
		if svc.String() != "websocket-hub" {
			t.Errorf("String() = %q", svc.String())
		}
	})

	t.Run("propagates hub error", func(t *testing.T) {
		boom := errors.New("hub exploded")
		svc := NewWebSocketHubService(&mockContextHub{runErr: boom})
		if err := svc.Serve(context.Background()); !errors.Is(err, boom) {
			t.Errorf("expected %v, got %v", boom, err)
		}
	})
}

func TestForwarderService_Serve(t *testing.T) {
	t.Run("starts then stops on cancellation", func(t *testing.T) {
		f := newMockForwarder()
		svc := NewForwarderService(f)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()

		select {
		case <-f.startedCh:
		case <-time.After(time.Second):
			t.Fatal("forwarder not started")
		}
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Serve did not return")
		}
		if f.stopped.Load() != 1 {
			t.Errorf("Stop called %d times, want 1", f.stopped.Load())
		}
	})

	t.Run("start failure is returned without Stop", func(t *testing.T) {
		f := newMockForwarder()
		f.startErr = errors.New("subscribe failed")

		err := NewForwarderService(f).Serve(context.Background())
		if !errors.Is(err, f.startErr) {
			t.Errorf("expected %v, got %v", f.startErr, err)
		}
		if f.stopped.Load() != 0 {
			t.Error("Stop called after failed Start")
		}
	})
}
