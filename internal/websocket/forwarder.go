// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package websocket

import (
	"context"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/offlinegate/internal/events"
	"github.com/tomtom215/offlinegate/internal/logging"
)

// Subscriber is the source of broadcast events, normally an *events.Bus.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan *message.Message, error)
}

// EventForwarder bridges the event bus to websocket broadcasts.
type EventForwarder struct {
	hub    *Hub
	source Subscriber
	mu     sync.Mutex
	cancel context.CancelFunc
	doneCh chan struct{}
}

// NewEventForwarder creates a forwarder from source to hub.
func NewEventForwarder(hub *Hub, source Subscriber) *EventForwarder {
	return &EventForwarder{hub: hub, source: source}
}

// Start subscribes to the bus and forwards in the background. Calling Start
// on a running forwarder is a no-op.
func (f *EventForwarder) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	messages, err := f.source.Subscribe(ctx)
	if err != nil {
		cancel()
		return err
	}
	f.cancel = cancel
	f.doneCh = make(chan struct{})
	go f.processMessages(ctx, messages, f.doneCh)

	logging.Info().Msg("Event bus to websocket forwarder started")
	return nil
}

// Stop stops forwarding and waits for the loop to exit.
func (f *EventForwarder) Stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.doneCh
	f.cancel, f.doneCh = nil, nil
	f.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	logging.Info().Msg("Event bus to websocket forwarder stopped")
}

// Run forwards until ctx is done or the bus closes.
func (f *EventForwarder) Run(ctx context.Context) error {
	messages, err := f.source.Subscribe(ctx)
	if err != nil {
		return err
	}
	done := make(chan struct{})
	f.processMessages(ctx, messages, done)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.New("event bus subscription closed")
}

func (f *EventForwarder) processMessages(ctx context.Context, messages <-chan *message.Message, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case wm, ok := <-messages:
			if !ok {
				return
			}
			f.handleMessage(wm)
		}
	}
}

func (f *EventForwarder) handleMessage(wm *message.Message) {
	defer wm.Ack()

	msg, err := events.Decode(wm)
	if err != nil {
		logging.Warn().Err(err).Str("uuid", wm.UUID).Msg("failed to decode bus event")
		return
	}
	f.hub.Broadcast(msg)
}
