// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package events

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/offlinegate/internal/logging"
	"github.com/tomtom215/offlinegate/internal/models"
)

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case wm, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed")
		}
		wm.Ack()
		return wm
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus(DefaultConfig(), nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	ctx = logging.ContextWithCorrelationID(ctx, "abc12345")
	err = bus.Publish(ctx, models.Message{
		Type:    models.MsgSyncComplete,
		Message: "Sincronización completada. 2 ubicaciones procesadas.",
		Data:    map[string]int{"processed": 2},
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	wm := receive(t, ch)
	if got := wm.Metadata.Get(metadataType); got != models.MsgSyncComplete {
		t.Errorf("type metadata = %q", got)
	}
	if got := wm.Metadata.Get(metadataCorrelationID); got != "abc12345" {
		t.Errorf("correlation metadata = %q", got)
	}

	msg, err := Decode(wm)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Type != models.MsgSyncComplete {
		t.Errorf("type = %q", msg.Type)
	}
	data, ok := msg.Data.(map[string]interface{})
	if !ok || data["processed"] != float64(2) {
		t.Errorf("data = %#v", msg.Data)
	}
}

func TestFanOutToEverySubscriber(t *testing.T) {
	bus := NewBus(DefaultConfig(), nil)
	defer bus.Close()

	ctx := context.Background()
	a, _ := bus.Subscribe(ctx)
	b, _ := bus.Subscribe(ctx)

	if err := bus.Publish(ctx, models.Message{Type: models.MsgControllerActivated}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	for _, ch := range []<-chan *message.Message{a, b} {
		msg, err := Decode(receive(t, ch))
		if err != nil || msg.Type != models.MsgControllerActivated {
			t.Errorf("got %+v, %v", msg, err)
		}
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus(Config{}, nil)
	defer bus.Close()

	if err := bus.Publish(context.Background(), models.Message{Type: models.MsgFocus}); err != nil {
		t.Errorf("Publish without subscribers should succeed, got %v", err)
	}
}

func TestClosedBus(t *testing.T) {
	bus := NewBus(DefaultConfig(), nil)
	ch, err := bus.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected subscription channel to be closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed")
	}

	if err := bus.Publish(context.Background(), models.Message{Type: models.MsgPong}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := bus.Subscribe(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(message.NewMessage("x", []byte("not json")))
	if !errors.Is(err, models.ErrParse) {
		t.Errorf("expected ErrParse, got %v", err)
	}
}

func TestLoggerAdapter(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewLoggerAdapter(logging.NewTestLogger(&buf))
	adapter.With(watermill.LogFields{"topic": TopicBroadcast}).Error("publish failed", errors.New("boom"), nil)

	out := buf.String()
	for _, want := range []string{"publish failed", "boom", TopicBroadcast} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}
