// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/offlinegate/internal/events"
	"github.com/tomtom215/offlinegate/internal/models"
)

func newBus(t *testing.T) *events.Bus {
	t.Helper()
	bus := events.NewBus(events.DefaultConfig(), nil)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestEventForwarder_StartStop(t *testing.T) {
	hub := NewHub()
	runHub(t, hub)
	c := createTestClient(hub, 8)
	registerClient(t, hub, c)

	bus := newBus(t)
	f := NewEventForwarder(hub, bus)
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	ctx := context.Background()
	if err := bus.Publish(ctx, models.Message{Type: models.MsgLocationSavedOffline, Message: models.TextLocationSavedOffline}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	got := receive(t, c)
	if got.Type != models.MsgLocationSavedOffline || got.Message != models.TextLocationSavedOffline {
		t.Errorf("got %+v", got)
	}

	f.Stop()
	f.Stop()
}

func TestEventForwarder_Run(t *testing.T) {
	hub := NewHub()
	runHub(t, hub)
	c := createTestClient(hub, 8)
	registerClient(t, hub, c)

	bus := newBus(t)
	f := NewEventForwarder(hub, bus)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.Run(ctx) }()

	// the subscription is made inside Run; retry until it is in place
	deadline := time.Now().Add(time.Second)
	var got models.Message
	for {
		_ = bus.Publish(context.Background(), models.Message{Type: models.MsgSyncComplete})
		select {
		case got = <-c.send:
		case <-time.After(20 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatal("no event forwarded")
			}
			continue
		}
		break
	}
	if got.Type != models.MsgSyncComplete {
		t.Errorf("got %+v", got)
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

func TestEventForwarder_SkipsUndecodable(t *testing.T) {
	hub := NewHub()
	f := NewEventForwarder(hub, nil)

	f.handleMessage(message.NewMessage("1", []byte("garbage")))
	select {
	case m := <-hub.broadcast:
		t.Errorf("broadcast %+v", m)
	default:
	}
}

type failingSubscriber struct{}

func (failingSubscriber) Subscribe(context.Context) (<-chan *message.Message, error) {
	return nil, events.ErrClosed
}

func TestEventForwarder_SubscribeError(t *testing.T) {
	f := NewEventForwarder(NewHub(), failingSubscriber{})
	if err := f.Start(context.Background()); !errors.Is(err, events.ErrClosed) {
		t.Errorf("Start = %v", err)
	}
	if err := f.Run(context.Background()); !errors.Is(err, events.ErrClosed) {
		t.Errorf("Run = %v", err)
	}
	f.Stop()
}
