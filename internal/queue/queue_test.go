// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package queue

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/offlinegate/internal/logging"
	"github.com/tomtom215/offlinegate/internal/models"
	"github.com/tomtom215/offlinegate/internal/store"
)

func setupQueue(t *testing.T, maxPending int) *Queue {
	t.Helper()
	m, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	s, err := m.Open("ubicaciones-pendientes")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return New(s, maxPending)
}

func TestEnqueueMergesMarkers(t *testing.T) {
	q := setupQueue(t, 0)
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 890_000_000, time.UTC)
	q.now = func() time.Time { return fixed }

	m, err := q.Enqueue(context.Background(), []byte(`{"lat":40.4168,"lon":-3.7038,"offline":false}`))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if m.Key != KeyPrefix+m.ID {
		t.Errorf("Key = %q, ID = %q", m.Key, m.ID)
	}
	if len(m.ID) != 20 {
		t.Errorf("ID %q is not zero padded to 20 digits", m.ID)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(m.Payload, &fields); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if fields["lat"] != 40.4168 || fields["lon"] != -3.7038 {
		t.Errorf("coordinates not preserved: %v", fields)
	}
	if fields["offline"] != true {
		t.Error("offline marker should override the submitted value")
	}
	if fields["intentoSincronizacion"] != true {
		t.Error("retry marker missing")
	}
	if fields["timestamp"] != "2026-03-04T05:06:07.890Z" {
		t.Errorf("timestamp = %v", fields["timestamp"])
	}
}

func TestEnqueueLogRedactsCoordinates(t *testing.T) {
	var buf bytes.Buffer
	prev := logging.Logger()
	prevLevel := zerolog.GlobalLevel()
	logging.SetLogger(logging.NewTestLogger(&buf))
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	t.Cleanup(func() {
		logging.SetLogger(prev)
		zerolog.SetGlobalLevel(prevLevel)
	})

	q := setupQueue(t, 0)
	if _, err := q.Enqueue(context.Background(), []byte(`{"lat":4.6097,"lon":-74.0817,"usuario":"ana"}`)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Location queued for later sync") {
		t.Fatalf("no enqueue log line: %s", out)
	}
	if strings.Contains(out, "4.6097") || strings.Contains(out, "-74.0817") {
		t.Errorf("coordinates leaked into log: %s", out)
	}
	if !strings.Contains(out, `"usuario":"ana"`) || !strings.Contains(out, `"lat":"[REDACTED]"`) {
		t.Errorf("payload field missing or unredacted: %s", out)
	}
}

func TestEnqueueRejectsNonObjects(t *testing.T) {
	q := setupQueue(t, 0)

	for _, body := range []string{``, `[1,2]`, `"text"`, `null`, `{broken`} {
		_, err := q.Enqueue(context.Background(), []byte(body))
		if !errors.Is(err, models.ErrParse) {
			t.Errorf("Enqueue(%q) error = %v, want ErrParse", body, err)
		}
	}
	if n, _ := q.Len(context.Background()); n != 0 {
		t.Errorf("queue has %d entries after rejected writes", n)
	}
}

func TestListOldestFirst(t *testing.T) {
	q := setupQueue(t, 0)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		m, err := q.Enqueue(ctx, []byte(`{"n":1}`))
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		ids = append(ids, m.ID)
	}

	list, err := q.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 5 {
		t.Fatalf("List returned %d entries, want 5", len(list))
	}
	for i, m := range list {
		if m.ID != ids[i] {
			t.Errorf("list[%d] = %s, want %s", i, m.ID, ids[i])
		}
	}
}

func TestConcurrentEnqueueUniqueKeys(t *testing.T) {
	q := setupQueue(t, 0)
	fixed := time.Now()
	q.now = func() time.Time { return fixed } // same clock reading for everyone

	const writers = 20
	var wg sync.WaitGroup
	keys := make(chan string, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := q.Enqueue(context.Background(), []byte(`{"w":1}`))
			if err != nil {
				t.Errorf("Enqueue failed: %v", err)
				return
			}
			keys <- m.Key
		}()
	}
	wg.Wait()
	close(keys)

	seen := map[string]bool{}
	for k := range keys {
		if seen[k] {
			t.Errorf("duplicate key %s", k)
		}
		seen[k] = true
	}
	if n, _ := q.Len(context.Background()); n != writers {
		t.Errorf("Len = %d, want %d", n, writers)
	}

	list, _ := q.List(context.Background())
	sorted := sort.SliceIsSorted(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	if !sorted {
		t.Error("List is not in id order")
	}
}

func TestMaxPending(t *testing.T) {
	q := setupQueue(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := q.Enqueue(ctx, []byte(`{"i":1}`)); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	_, err := q.Enqueue(ctx, []byte(`{"i":3}`))
	if !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
	if !errors.Is(err, models.ErrPersistence) {
		t.Error("a full queue is a persistence failure")
	}
}

func TestRecordFailureKeepsEntry(t *testing.T) {
	q := setupQueue(t, 0)
	ctx := context.Background()

	m, err := q.Enqueue(ctx, []byte(`{"lat":1}`))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := q.RecordFailure(m.Key, at, errors.New("status 502")); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if err := q.RecordFailure(m.Key, at.Add(time.Minute), errors.New("timeout")); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	got, err := q.Get(m.Key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", got.Attempts)
	}
	if got.LastError != "timeout" {
		t.Errorf("LastError = %q", got.LastError)
	}
	if !got.LastAttemptAt.Equal(at.Add(time.Minute)) {
		t.Errorf("LastAttemptAt = %v", got.LastAttemptAt)
	}
	if string(got.Payload) != string(m.Payload) {
		t.Error("payload changed by RecordFailure")
	}

	if err := q.RecordFailure(KeyPrefix+"missing", at, nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for removed entry, got %v", err)
	}
}

func TestRemoveAndClear(t *testing.T) {
	q := setupQueue(t, 0)
	ctx := context.Background()

	a, _ := q.Enqueue(ctx, []byte(`{"a":1}`))
	_, _ = q.Enqueue(ctx, []byte(`{"b":1}`))
	_, _ = q.Enqueue(ctx, []byte(`{"c":1}`))

	if err := q.Remove(a.Key); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if n, _ := q.Len(ctx); n != 2 {
		t.Errorf("Len = %d after Remove, want 2", n)
	}

	cleared, err := q.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if cleared != 2 {
		t.Errorf("Clear reported %d, want 2", cleared)
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Errorf("Len = %d after Clear", n)
	}
}
