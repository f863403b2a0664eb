// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package models

import "errors"

// Failure taxonomy shared by every component. Callers wrap these with
// fmt.Errorf("...: %w", ErrX) and branch with errors.Is.
var (
	// ErrNetwork is a transport-level failure (DNS, refused, timeout, open breaker).
	// Always retryable and never surfaced to the page as an exception.
	ErrNetwork = errors.New("network failure")

	// ErrPersistence is a durable store read or write failure.
	ErrPersistence = errors.New("persistence failure")

	// ErrParse is a malformed request or response body.
	ErrParse = errors.New("parse failure")

	// ErrUnsupported marks an optional capability that is not available.
	ErrUnsupported = errors.New("unsupported feature")
)
