// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package websocket

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/tomtom215/offlinegate/internal/models"
)

// runHub starts hub and stops it when the test ends.
func runHub(t *testing.T, hub *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.RunWithContext(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// createTestClient creates a client without a connection.
func createTestClient(hub *Hub, buffer int) *Client {
	return &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan models.Message, buffer)}
}

// registerClient registers a client and waits for registration to complete.
func registerClient(t *testing.T, hub *Hub, client *Client) {
	t.Helper()
	want := hub.ClientCount() + 1
	hub.Register <- client
	waitFor(t, func() bool { return hub.ClientCount() == want }, "client registration")
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func receive(t *testing.T, c *Client) models.Message {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	return models.Message{}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()

	checks := []struct {
		name  string
		check bool
	}{
		{"clients map", hub.clients != nil},
		{"broadcast channel", hub.broadcast != nil},
		{"Register channel", hub.Register != nil},
		{"Unregister channel", hub.Unregister != nil},
		{"empty clients", hub.ClientCount() == 0},
		{"no handler", hub.messageHandler() == nil},
	}
	for _, c := range checks {
		if !c.check {
			t.Errorf("%s: check failed", c.name)
		}
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub()
	runHub(t, hub)

	clients := []*Client{createTestClient(hub, 8), createTestClient(hub, 8), createTestClient(hub, 8)}
	for _, c := range clients {
		registerClient(t, hub, c)
	}

	msg := models.Message{Type: models.MsgSyncComplete, Message: "Sincronización completada. 2 ubicaciones procesadas."}
	if !hub.Broadcast(msg) {
		t.Fatal("Broadcast dropped the message")
	}
	for _, c := range clients {
		if got := receive(t, c); got.Type != models.MsgSyncComplete || got.Message != msg.Message {
			t.Errorf("client %d got %+v", c.id, got)
		}
	}

	if err := hub.Publish(context.Background(), models.Message{Type: models.MsgLocationSavedOffline}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	for _, c := range clients {
		if got := receive(t, c); got.Type != models.MsgLocationSavedOffline {
			t.Errorf("client %d got %+v", c.id, got)
		}
	}
}

func TestHub_BroadcastDropsFullClient(t *testing.T) {
	hub := NewHub()
	runHub(t, hub)

	slow := createTestClient(hub, 0)
	fast := createTestClient(hub, 8)
	registerClient(t, hub, slow)
	registerClient(t, hub, fast)

	hub.Broadcast(models.Message{Type: models.MsgPong})
	receive(t, fast)
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "slow client removal")

	if _, ok := <-slow.send; ok {
		t.Error("slow client send channel still open")
	}
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	hub := NewHub()
	runHub(t, hub)

	c := createTestClient(hub, 1)
	registerClient(t, hub, c)
	hub.Unregister <- c
	hub.Unregister <- c
	waitFor(t, func() bool { return hub.ClientCount() == 0 }, "unregister")
}

func TestHub_UnregisterWithoutRunLoop(t *testing.T) {
	hub := NewHub()
	c := createTestClient(hub, 1)
	hub.clients[c] = true

	hub.unregister(c)
	if hub.ClientCount() != 0 {
		t.Error("client not removed")
	}
}

func TestHub_FocusFirst(t *testing.T) {
	hub := NewHub()
	runHub(t, hub)
	ctx := context.Background()
	focus := models.Message{Type: models.MsgFocus}

	if hub.FocusFirst(ctx, focus) {
		t.Fatal("FocusFirst with no clients reported true")
	}

	first := createTestClient(hub, 4)
	second := createTestClient(hub, 4)
	registerClient(t, hub, second)
	registerClient(t, hub, first)

	if !hub.FocusFirst(ctx, focus) {
		t.Fatal("FocusFirst reported false")
	}
	if got := receive(t, first); got.Type != models.MsgFocus {
		t.Errorf("first got %+v", got)
	}
	select {
	case m := <-second.send:
		t.Errorf("second client also got %+v", m)
	default:
	}

	if ids := hub.ClientIDs(); !slices.Equal(ids, []uint64{first.id, second.id}) {
		t.Errorf("ClientIDs = %v", ids)
	}
}

func TestHub_SendToUnregisteredClient(t *testing.T) {
	hub := NewHub()
	c := createTestClient(hub, 1)
	if hub.send(c, models.Message{Type: models.MsgPong}) {
		t.Error("send to unregistered client succeeded")
	}
}

func TestHub_RunWithContext(t *testing.T) {
	t.Run("shuts down on context cancellation", func(t *testing.T) {
		hub := NewHub()
		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- hub.RunWithContext(ctx) }()

		c := createTestClient(hub, 1)
		registerClient(t, hub, c)
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("RunWithContext did not return after cancellation")
		}
		if _, ok := <-c.send; ok {
			t.Error("client not closed on shutdown")
		}
		if hub.ClientCount() != 0 {
			t.Errorf("clients after shutdown = %d", hub.ClientCount())
		}
	})

	t.Run("shuts down on context deadline", func(t *testing.T) {
		hub := NewHub()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		errCh := make(chan error, 1)
		go func() { errCh <- hub.RunWithContext(ctx) }()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("expected context.DeadlineExceeded, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("RunWithContext did not return after deadline")
		}
	})
}

func TestGetShutdownReason(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	expired, cancel2 := context.WithTimeout(context.Background(), -time.Second)
	defer cancel2()

	tests := []struct {
		name string
		ctx  context.Context
		want ShutdownReason
	}{
		{"canceled", canceled, ShutdownReasonContextCanceled},
		{"deadline", expired, ShutdownReasonContextDeadline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getShutdownReason(tt.ctx); got != tt.want {
				t.Errorf("getShutdownReason() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMarshalMessage(t *testing.T) {
	data, err := MarshalMessage(models.Message{Type: models.MsgClearComplete, ID: "7", Success: models.Bool(true)})
	if err != nil {
		t.Fatalf("MarshalMessage: %v", err)
	}
	want := `{"type":"CLEAR_COMPLETE","id":"7","success":true}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}
