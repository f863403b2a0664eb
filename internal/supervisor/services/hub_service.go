// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package services

import (
	"context"
	"fmt"
)

// ContextHub is satisfied by *websocket.Hub.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// WebSocketHubService runs the hub loop. RunWithContext already has the
// Serve shape; the wrapper only names it.
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

// StartStopper is the Start/Stop lifecycle of *websocket.EventForwarder.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
}

// ForwarderService adapts a Start/Stop component to Serve: start, wait for
// cancellation, stop. Stop blocks until the component's goroutine is gone.
type ForwarderService struct {
	forwarder StartStopper
	name      string
}

// NewForwarderService wraps f.
func NewForwarderService(f StartStopper) *ForwarderService {
	return &ForwarderService{forwarder: f, name: "event-forwarder"}
}

// Serve implements suture.Service. A failed Start is returned so the
// supervisor retries with backoff.
func (s *ForwarderService) Serve(ctx context.Context) error {
	if err := s.forwarder.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}
	<-ctx.Done()
	s.forwarder.Stop()
	return ctx.Err()
}

func (s *ForwarderService) String() string {
	return s.name
}
