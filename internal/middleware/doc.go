// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

// Package middleware provides the net/http middleware chain shared by the
// gateway catch-all and the admin endpoints: request ids wired into logging,
// Prometheus instrumentation and access logging.
package middleware
