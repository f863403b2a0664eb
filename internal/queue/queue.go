// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

// Package queue is the durable offline mutation queue: location updates that
// could not reach the upstream are kept here, oldest first, until the
// synchronizer replays them.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/offlinegate/internal/logging"
	"github.com/tomtom215/offlinegate/internal/metrics"
	"github.com/tomtom215/offlinegate/internal/models"
	"github.com/tomtom215/offlinegate/internal/store"
)

// KeyPrefix precedes the id in every queue key.
const KeyPrefix = "/ubicacion-pendiente-"

// TimestampLayout matches the millisecond ISO 8601 format browsers produce.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ErrFull is returned when the queue already holds max_pending entries.
var ErrFull = store.ErrFull

// Queue is safe for concurrent use.
type Queue struct {
	store      *store.Store
	maxPending int
	lastID     atomic.Int64
	now        func() time.Time
}

// New wraps the queue store. maxPending <= 0 leaves the queue unbounded.
func New(s *store.Store, maxPending int) *Queue {
	return &Queue{store: s, maxPending: maxPending, now: time.Now}
}

// Name returns the name of the backing store.
func (q *Queue) Name() string {
	return q.store.Name()
}

// nextID returns a nanosecond timestamp strictly greater than any id handed
// out before by this process.
func (q *Queue) nextID(at time.Time) int64 {
	for {
		last := q.lastID.Load()
		id := at.UnixNano()
		if id <= last {
			id = last + 1
		}
		if q.lastID.CompareAndSwap(last, id) {
			return id
		}
	}
}

// Key returns the store key for a mutation id.
func Key(id string) string {
	return KeyPrefix + id
}

// Enqueue records a location update. payload must be a JSON object; it is
// stored merged with the capture timestamp and the offline markers.
func (q *Queue) Enqueue(ctx context.Context, payload []byte) (*models.PendingMutation, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		metrics.QueueEnqueued.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: location payload must be a JSON object", models.ErrParse)
	}

	captured := q.now().UTC()
	fields["timestamp"] = mustRaw(captured.Format(TimestampLayout))
	fields["intentoSincronizacion"] = json.RawMessage(`true`)
	fields["offline"] = json.RawMessage(`true`)

	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: encode location payload: %v", models.ErrParse, err)
	}

	id := fmt.Sprintf("%020d", q.nextID(captured))
	m := &models.PendingMutation{
		ID:         id,
		Key:        Key(id),
		Payload:    merged,
		CapturedAt: captured,
		Offline:    true,
		Retry:      true,
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: encode mutation: %v", models.ErrParse, err)
	}

	if err := q.store.Insert(m.Key, raw, q.maxPending); err != nil {
		if errors.Is(err, store.ErrFull) {
			metrics.QueueEnqueued.WithLabelValues("full").Inc()
			logging.Ctx(ctx).Warn().Int("max_pending", q.maxPending).Msg("Offline queue full, location dropped")
		} else {
			metrics.QueueEnqueued.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	metrics.QueueEnqueued.WithLabelValues("stored").Inc()
	metrics.QueueDepth.Inc()
	logging.Ctx(ctx).Info().Str("id", id).
		Interface("payload", logging.RedactPayload(merged)).
		Msg("Location queued for later sync")
	return m, nil
}

func mustRaw(s string) json.RawMessage {
	b, _ := json.Marshal(s) // strings always encode
	return b
}

// List returns every pending mutation, oldest first. Unreadable entries are
// logged and skipped, never deleted.
func (q *Queue) List(ctx context.Context) ([]*models.PendingMutation, error) {
	var out []*models.PendingMutation
	err := q.store.Each(ctx, func(key string, value []byte) error {
		var m models.PendingMutation
		if err := json.Unmarshal(value, &m); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Skipping unreadable queue entry")
			return nil
		}
		m.Key = key
		out = append(out, &m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.QueueDepth.Set(float64(len(out)))
	return out, nil
}

// Get returns one mutation by key.
func (q *Queue) Get(key string) (*models.PendingMutation, error) {
	raw, err := q.store.Get(key)
	if err != nil {
		return nil, err
	}
	var m models.PendingMutation
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: queue entry %s: %v", models.ErrParse, key, err)
	}
	m.Key = key
	return &m, nil
}

// Remove deletes a mutation after a confirmed replay.
func (q *Queue) Remove(key string) error {
	if err := q.store.Delete(key); err != nil {
		return err
	}
	metrics.QueueDepth.Dec()
	return nil
}

// RecordFailure bumps the attempt counter of a mutation whose replay failed.
// The entry itself stays in the queue.
func (q *Queue) RecordFailure(key string, at time.Time, cause error) error {
	return q.store.Update(key, func(value []byte) ([]byte, error) {
		var m models.PendingMutation
		if err := json.Unmarshal(value, &m); err != nil {
			return nil, fmt.Errorf("%w: queue entry %s: %v", models.ErrParse, key, err)
		}
		m.Attempts++
		m.LastAttemptAt = at.UTC()
		if cause != nil {
			m.LastError = cause.Error()
		}
		return json.Marshal(&m)
	})
}

// Clear removes every pending mutation and returns how many there were.
func (q *Queue) Clear(ctx context.Context) (int, error) {
	n, err := q.store.Len(ctx)
	if err != nil {
		return 0, err
	}
	if err := q.store.Clear(); err != nil {
		return 0, err
	}
	metrics.QueueDepth.Set(0)
	logging.Ctx(ctx).Info().Int("cleared", n).Msg("Offline queue cleared")
	return n, nil
}

// Len returns the number of pending mutations.
func (q *Queue) Len(ctx context.Context) (int, error) {
	n, err := q.store.Len(ctx)
	if err == nil {
		metrics.QueueDepth.Set(float64(n))
	}
	return n, err
}
