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

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

var (
	_ suture.Service = (*LoopService)(nil)
	_ suture.Service = (*TickerService)(nil)
)

func TestLoopService_Serve(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	svc := NewLoopService("periodic-sync", runnerFunc(func(ctx context.Context) error {
		ran.Store(true)
		<-ctx.Done()
		return ctx.Err()
	}))
	if svc.String() != "periodic-sync" {
		t.Errorf("String() = %q", svc.String())
	}

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if !ran.Load() {
		t.Error("runner not called")
	}
}

func TestTickerService_Serve(t *testing.T) {
	t.Run("calls fn every interval and survives failures", func(t *testing.T) {
		var calls atomic.Int32
		svc := NewTickerService("store-gc", 5*time.Millisecond, func(context.Context) error {
			calls.Add(1)
			return errors.New("value log gc: busy")
		})

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()

		deadline := time.Now().Add(time.Second)
		for calls.Load() < 3 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()

		if err := <-errCh; !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if calls.Load() < 3 {
			t.Errorf("fn called %d times, want at least 3", calls.Load())
		}
	})

	t.Run("defaults non-positive interval", func(t *testing.T) {
		svc := NewTickerService("upstream-probe", 0, func(context.Context) error { return nil })
		if svc.interval != time.Minute {
			t.Errorf("interval = %v, want 1m", svc.interval)
		}
		if svc.String() != "upstream-probe" {
			t.Errorf("String() = %q", svc.String())
		}
	})
}
