// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package api

import (
	"context"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/offlinegate/internal/models"
	"github.com/tomtom215/offlinegate/internal/notify"
)

func inbound(t *testing.T, typ, id string, data interface{}) *models.InboundMessage {
	t.Helper()
	msg := &models.InboundMessage{Type: typ, ID: id}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			t.Fatal(err)
		}
		msg.Data = raw
	}
	return msg
}

func TestDispatcher_PendingLocations(t *testing.T) {
	f := newFixture(t)
	d := f.server.Dispatcher()
	ctx := context.Background()

	for _, p := range []string{`{"lat":1,"lon":1}`, `{"lat":2,"lon":2}`} {
		if _, err := f.queue.Enqueue(ctx, []byte(p)); err != nil {
			t.Fatal(err)
		}
	}

	reply, ok := d.HandleMessage(ctx, inbound(t, models.MsgGetPendingLocations, "a", nil))
	if !ok || reply.Type != models.MsgPendingLocationsResponse || reply.ID != "a" {
		t.Fatalf("reply = %+v", reply)
	}
	payloads, _ := reply.Data.([]json.RawMessage)
	if len(payloads) != 2 {
		t.Fatalf("payloads = %d", len(payloads))
	}
	var first map[string]interface{}
	if err := json.Unmarshal(payloads[0], &first); err != nil {
		t.Fatal(err)
	}
	if first["lat"] != float64(1) || first["offline"] != true {
		t.Errorf("first = %v", first)
	}

	reply, _ = d.HandleMessage(ctx, inbound(t, models.MsgClearPendingLocations, "b", nil))
	if reply.Type != models.MsgClearComplete || reply.Message != models.TextPendingCleared {
		t.Errorf("clear reply = %+v", reply)
	}
	if n, _ := f.queue.Len(ctx); n != 0 {
		t.Errorf("queue len = %d", n)
	}
}

func TestDispatcher_ManualSync(t *testing.T) {
	f := newFixture(t)
	d := f.server.Dispatcher()
	ctx := context.Background()
	if _, err := f.queue.Enqueue(ctx, []byte(`{"lat":1}`)); err != nil {
		t.Fatal(err)
	}

	reply, ok := d.HandleMessage(ctx, inbound(t, models.MsgManualSync, "s", nil))
	if !ok || reply.Type != models.MsgManualSyncComplete || reply.Message != models.TextManualSyncComplete {
		t.Fatalf("reply = %+v", reply)
	}
	if n, _ := f.queue.Len(ctx); n != 1 {
		t.Errorf("offline sync removed entries: len = %d", n)
	}
}

func TestDispatcher_MapData(t *testing.T) {
	f := newFixture(t)
	d := f.server.Dispatcher()
	ctx := context.Background()
	const u = "https://overpass-api.de/api/interpreter?data=x"

	reply, _ := d.HandleMessage(ctx, inbound(t, models.MsgGetCachedMapData, "1", map[string]string{"url": u}))
	if reply.Type != models.MsgCachedMapDataResponse || reply.Data != nil {
		t.Errorf("miss reply = %+v", reply)
	}

	reply, _ = d.HandleMessage(ctx, inbound(t, models.MsgCacheMapData, "2", map[string]interface{}{
		"url":     u,
		"content": map[string]interface{}{"elements": []int{1, 2}},
	}))
	if reply.Type != models.MsgCacheMapDataResponse || reply.Success == nil || !*reply.Success {
		t.Fatalf("cache reply = %+v", reply)
	}

	reply, _ = d.HandleMessage(ctx, inbound(t, models.MsgGetCachedMapData, "3", map[string]string{"url": u}))
	raw, ok := reply.Data.(json.RawMessage)
	if !ok || string(raw) != `{"elements":[1,2]}` {
		t.Errorf("hit reply data = %v", reply.Data)
	}

	reply, _ = d.HandleMessage(ctx, inbound(t, models.MsgCacheMapData, "4", map[string]string{"url": u}))
	if reply.Success == nil || *reply.Success {
		t.Errorf("caching without content succeeded: %+v", reply)
	}
}

func TestDispatcher_Errors(t *testing.T) {
	f := newFixture(t)
	d := f.server.Dispatcher()
	ctx := context.Background()

	tests := []struct {
		name string
		msg  *models.InboundMessage
	}{
		{"unknown type", inbound(t, "SELF_DESTRUCT", "1", nil)},
		{"missing type", inbound(t, "", "2", nil)},
		{"map data without data", inbound(t, models.MsgGetCachedMapData, "3", nil)},
		{"map data with bad url", inbound(t, models.MsgGetCachedMapData, "4", map[string]string{"url": "not a url"})},
		{"click without tag", inbound(t, models.MsgNotificationClick, "5", map[string]string{"action": "open"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, ok := d.HandleMessage(ctx, tt.msg)
			if !ok || reply.Type != models.MsgError || reply.ID != tt.msg.ID {
				t.Errorf("reply = %+v", reply)
			}
			if reply.Success == nil || *reply.Success {
				t.Errorf("success = %v", reply.Success)
			}
		})
	}
}

func TestDispatcher_NotificationClick(t *testing.T) {
	f := newFixture(t)
	d := f.server.Dispatcher()
	ctx := context.Background()

	if _, err := f.server.deps.Notify.Show(ctx, notifyPush("zona")); err != nil {
		t.Fatal(err)
	}
	if _, ok := d.HandleMessage(ctx, inbound(t, models.MsgNotificationClick, "c", map[string]string{"tag": "zona", "action": "close"})); ok {
		t.Error("close click produced a reply")
	}
	if len(f.server.deps.Notify.Shown()) != 0 {
		t.Error("notification still shown")
	}
}

func TestDispatcher_NotificationClickUnknownTag(t *testing.T) {
	f := newFixture(t)
	d := f.server.Dispatcher()

	reply, ok := d.HandleMessage(context.Background(), inbound(t, models.MsgNotificationClick, "c", map[string]string{"tag": "caducada", "action": "close"}))
	if ok {
		t.Errorf("click on an expired notification replied %+v", reply)
	}
}

func notifyPush(tag string) notify.Push {
	return notify.Push{Title: "Alerta", Tag: tag}
}
