// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/offlinegate/internal/config"
	"github.com/tomtom215/offlinegate/internal/models"
)

type recorder struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (r *recorder) Publish(_ context.Context, msg models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Type
	}
	return out
}

type fakeWindows struct {
	open    bool
	focused []models.Message
}

func (w *fakeWindows) FocusFirst(_ context.Context, msg models.Message) bool {
	if !w.open {
		return false
	}
	w.focused = append(w.focused, msg)
	return true
}

type fakeOpener struct {
	urls []string
	err  error
}

func (o *fakeOpener) Open(_ context.Context, url string) error {
	o.urls = append(o.urls, url)
	return o.err
}

func newBridge(opts ...Option) (*Bridge, *recorder) {
	rec := &recorder{}
	return New(config.Default().Notify, rec, "http://127.0.0.1:8088/", opts...), rec
}

func TestHandlePush_Defaults(t *testing.T) {
	b, rec := newBridge()

	n, err := b.HandlePush(context.Background(), []byte(`{}`))
	if err != nil {
		t.Fatalf("HandlePush: %v", err)
	}
	if n.Title != "Sistema de Seguridad" || n.Body != "Nueva actualización disponible" || n.Tag != "general-notification" {
		t.Errorf("defaults not applied: %+v", n)
	}
	if !n.RequireInteraction || len(n.Actions) != 2 || n.Actions[0].Action != ActionOpen || n.Actions[1].Action != ActionClose {
		t.Errorf("options = %+v", n)
	}
	if n.Icon != "/static/images/logo.png" {
		t.Errorf("icon = %q", n.Icon)
	}
	if got := rec.types(); len(got) != 1 || got[0] != models.MsgNotification {
		t.Errorf("events = %v", got)
	}
}

func TestHandlePush_EmptyAndMalformed(t *testing.T) {
	b, rec := newBridge()

	n, err := b.HandlePush(context.Background(), nil)
	if n != nil || err != nil {
		t.Errorf("empty push = %v, %v", n, err)
	}
	if _, err := b.HandlePush(context.Background(), []byte(`{not json`)); !errors.Is(err, models.ErrParse) {
		t.Errorf("err = %v, want ErrParse", err)
	}
	if len(rec.types()) != 0 {
		t.Errorf("events = %v", rec.types())
	}
}

func TestShow_SameTagReplaces(t *testing.T) {
	b, _ := newBridge()
	ctx := context.Background()

	if _, err := b.Show(ctx, Push{Title: "uno", Tag: "alerta"}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Show(ctx, Push{Title: "dos", Tag: "alerta"}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Show(ctx, Push{Title: "tres", Tag: "otra"}); err != nil {
		t.Fatal(err)
	}
	shown := b.Shown()
	if len(shown) != 2 {
		t.Fatalf("shown = %d, want 2", len(shown))
	}
	for _, n := range shown {
		if n.Tag == "alerta" && n.Title != "dos" {
			t.Errorf("alerta title = %q", n.Title)
		}
	}
}

func TestClick(t *testing.T) {
	tests := []struct {
		name       string
		action     string
		windowOpen bool
		wantFocus  int
		wantOpen   int
	}{
		{name: "close dismisses only", action: ActionClose},
		{name: "open focuses window", action: ActionOpen, windowOpen: true, wantFocus: 1},
		{name: "default click focuses window", action: "", windowOpen: true, wantFocus: 1},
		{name: "open without window opens one", action: ActionOpen, wantOpen: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWindows{open: tt.windowOpen}
			o := &fakeOpener{}
			b, rec := newBridge(WithWindows(w), WithOpener(o))
			ctx := context.Background()

			if _, err := b.Show(ctx, Push{Tag: "t"}); err != nil {
				t.Fatal(err)
			}
			if err := b.Click(ctx, "t", tt.action); err != nil {
				t.Fatalf("Click: %v", err)
			}
			if len(w.focused) != tt.wantFocus {
				t.Errorf("focused = %d, want %d", len(w.focused), tt.wantFocus)
			}
			if len(o.urls) != tt.wantOpen {
				t.Errorf("opened = %v, want %d", o.urls, tt.wantOpen)
			}
			if tt.wantOpen > 0 && o.urls[0] != "http://127.0.0.1:8088/" {
				t.Errorf("opened %q", o.urls[0])
			}
			if len(b.Shown()) != 0 {
				t.Error("notification not dismissed")
			}
			got := rec.types()
			if len(got) != 2 || got[1] != models.MsgNotificationClosed {
				t.Errorf("events = %v", got)
			}
		})
	}
}

func TestClick_UnknownTagStillOpensApp(t *testing.T) {
	tests := []struct {
		name       string
		action     string
		windowOpen bool
		wantFocus  int
		wantOpen   int
	}{
		{name: "open focuses window", action: ActionOpen, windowOpen: true, wantFocus: 1},
		{name: "default opens window", action: "", wantOpen: 1},
		{name: "close only dismisses", action: ActionClose, windowOpen: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWindows{open: tt.windowOpen}
			o := &fakeOpener{}
			b, rec := newBridge(WithWindows(w), WithOpener(o))

			if err := b.Click(context.Background(), "nada", tt.action); err != nil {
				t.Fatalf("Click: %v", err)
			}
			if len(w.focused) != tt.wantFocus {
				t.Errorf("focused = %d, want %d", len(w.focused), tt.wantFocus)
			}
			if len(o.urls) != tt.wantOpen {
				t.Errorf("opened = %v, want %d", o.urls, tt.wantOpen)
			}
			got := rec.types()
			if len(got) != 1 || got[0] != models.MsgNotificationClosed {
				t.Errorf("events = %v", got)
			}
		})
	}
}

func TestClick_NoOpenerConfigured(t *testing.T) {
	b, _ := newBridge(WithWindows(&fakeWindows{}))
	ctx := context.Background()
	if _, err := b.Show(ctx, Push{Tag: "t"}); err != nil {
		t.Fatal(err)
	}
	if err := b.Click(ctx, "t", ActionOpen); !errors.Is(err, models.ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestShown_Expires(t *testing.T) {
	cfg := config.Default().Notify
	cfg.TTL = 20 * time.Millisecond
	o := &fakeOpener{}
	b := New(cfg, nil, "/", WithOpener(o))
	if _, err := b.Show(context.Background(), Push{Tag: "t"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if len(b.Shown()) != 0 {
		t.Error("expired notification still listed")
	}
	if err := b.Click(context.Background(), "t", ActionOpen); err != nil {
		t.Fatalf("click on expired notification: %v", err)
	}
	if len(o.urls) != 1 {
		t.Errorf("opened = %v, want the app opened once", o.urls)
	}
}
