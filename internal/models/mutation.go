// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package models

import (
	"math"
	"math/bits"
	"time"

	"github.com/goccy/go-json"
)

// PendingMutation is a location update that could not reach the upstream
// server and waits in the offline queue for replay.
type PendingMutation struct {
	// ID is a zero-padded nanosecond timestamp; lexical order is creation order.
	ID string `json:"id"`

	// Key is the queue store key, "/ubicacion-pendiente-<ID>".
	Key string `json:"key"`

	// Payload is the submitted JSON object merged with the offline markers.
	Payload json.RawMessage `json:"payload"`

	CapturedAt time.Time `json:"captured_at"`
	Offline    bool      `json:"offline"`
	Retry      bool      `json:"retry"`

	// Replay bookkeeping
	Attempts      int       `json:"attempts"`
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// NextAttemptAt returns the earliest time the mutation should be replayed by a
// periodic pass, given the base backoff and its cap.
func (m *PendingMutation) NextAttemptAt(base, ceiling time.Duration) time.Time {
	if m.Attempts == 0 || m.LastAttemptAt.IsZero() {
		return time.Time{}
	}
	return m.LastAttemptAt.Add(Backoff(m.Attempts, base, ceiling))
}

// Backoff is base * 2^(attempts-1) capped at ceiling. A non-positive
// ceiling leaves it uncapped up to the largest Duration.
func Backoff(attempts int, base, ceiling time.Duration) time.Duration {
	if attempts <= 0 || base <= 0 {
		return 0
	}
	shift := attempts - 1
	if ceiling > 0 {
		// base<<shift exceeds ceiling once 2^shift > ceiling/base
		if ceiling < base || shift >= bits.Len64(uint64(ceiling/base)) {
			return ceiling
		}
		return base << uint(shift)
	}
	if shift >= 63-bits.Len64(uint64(base)) {
		return time.Duration(math.MaxInt64)
	}
	return base << uint(shift)
}
