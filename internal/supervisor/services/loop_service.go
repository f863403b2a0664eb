// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package services

import (
	"context"
	"time"

	"github.com/tomtom215/offlinegate/internal/logging"
)

// Runner is a component with a blocking loop, such as
// *syncer.Synchronizer.
type Runner interface {
	Run(ctx context.Context) error
}

// LoopService runs a Runner under supervision.
type LoopService struct {
	runner Runner
	name   string
}

// NewLoopService wraps r under name.
func NewLoopService(name string, r Runner) *LoopService {
	return &LoopService{runner: r, name: name}
}

// Serve implements suture.Service.
func (s *LoopService) Serve(ctx context.Context) error {
	return s.runner.Run(ctx)
}

func (s *LoopService) String() string {
	return s.name
}

// TickerService calls fn every interval until canceled. A failing call is
// logged and the next tick tries again; the service itself never fails.
//
//	gc := services.NewTickerService("store-gc", cfg.Cache.GCInterval, func(context.Context) error {
//		_, err := stores.RunGC()
//		return err
//	})
type TickerService struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
}

// NewTickerService creates a ticker service. A non-positive interval means
// one minute.
func NewTickerService(name string, interval time.Duration, fn func(ctx context.Context) error) *TickerService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &TickerService{name: name, interval: interval, fn: fn}
}

// Serve implements suture.Service.
func (s *TickerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.fn(ctx); err != nil && ctx.Err() == nil {
				logging.Warn().Err(err).Str("service", s.name).Msg("Scheduled task failed")
			}
		}
	}
}

func (s *TickerService) String() string {
	return s.name
}
