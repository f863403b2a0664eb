// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// fakeListener blocks in ListenAndServe until Shutdown when blockUntilShutdown is set.
type fakeListener struct {
	listenErr          error
	blockUntilShutdown bool
	shutdownFails      error
	listens            atomic.Int32
	shutdowns          atomic.Int32
	serving            chan struct{}
	released           chan struct{}
	releaseOnce        sync.Once
}

func newFakeListener() *fakeListener {
	return &fakeListener{
		serving:  make(chan struct{}, 1),
		released: make(chan struct{}),
	}
}

func (m *fakeListener) ListenAndServe() error {
	m.listens.Add(1)
	select {
	case m.serving <- struct{}{}:
	default:
	}
	if m.listenErr != nil {
		return m.listenErr
	}
	if m.blockUntilShutdown {
		<-m.released
		return http.ErrServerClosed
	}
	return nil
}

func (m *fakeListener) Shutdown(context.Context) error {
	m.shutdowns.Add(1)
	m.releaseOnce.Do(func() { close(m.released) })
	return m.shutdownFails
}

var _ suture.Service = (*HTTPServerService)(nil)

func TestNewHTTPServerService_DefaultTimeout(t *testing.T) {
	ln := newFakeListener()
	for _, d := range []time.Duration{0, -5 * time.Second} {
		if svc := NewHTTPServerService(ln, d); svc.shutdownTimeout != 10*time.Second {
			t.Errorf("timeout %v: got %v, want 10s", d, svc.shutdownTimeout)
		}
	}
	if got := NewHTTPServerService(ln, time.Second).String(); got != "http-server" {
		t.Errorf("String() = %q", got)
	}
}

func TestHTTPServerService_Serve(t *testing.T) {
	t.Run("drains on cancellation", func(t *testing.T) {
		ln := newFakeListener()
		ln.blockUntilShutdown = true
		svc := NewHTTPServerService(ln, time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()

		select {
		case <-ln.serving:
		case <-time.After(time.Second):
			t.Fatal("server did not start")
		}
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not return after context cancellation")
		}
		if n := ln.shutdowns.Load(); n != 1 {
			t.Errorf("Shutdown called %d times, want 1", n)
		}
	})

	t.Run("bind failure restarts", func(t *testing.T) {
		errBind := errors.New("bind: address already in use")
		ln := newFakeListener()
		ln.listenErr = errBind

		err := NewHTTPServerService(ln, time.Second).Serve(context.Background())
		if !errors.Is(err, errBind) {
			t.Errorf("expected %v, got %v", errBind, err)
		}
	})

	t.Run("drain failure is reported", func(t *testing.T) {
		shutdownFails := errors.New("shutdown timeout")
		ln := newFakeListener()
		ln.blockUntilShutdown = true
		ln.shutdownFails = shutdownFails
		svc := NewHTTPServerService(ln, time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()
		<-ln.serving
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, shutdownFails) {
				t.Errorf("expected shutdown error, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not return")
		}
	})
}

func TestHTTPServerService_WithSupervisor(t *testing.T) {
	ln := newFakeListener()
	ln.blockUntilShutdown = true

	sup := suture.New("test-sup", suture.Spec{
		FailureThreshold: 3,
		FailureBackoff:   10 * time.Millisecond,
		Timeout:          2 * time.Second,
	})
	sup.Add(NewHTTPServerService(ln, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)

	select {
	case <-ln.serving:
	case <-time.After(time.Second):
		t.Fatal("server did not start")
	}
	cancel()
	<-errCh

	if ln.shutdowns.Load() < 1 {
		t.Error("server Shutdown was not called")
	}
}
