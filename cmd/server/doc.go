// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

// Package main is the offlinegate server.
//
// Offlinegate sits between field clients and the inventory/location origin.
// It pre-caches the application shell, answers reads from its caches when
// the origin is unreachable, queues location updates for replay and pushes
// status messages to connected UI contexts over a websocket.
//
// # Startup
//
//  1. Configuration (koanf: defaults, config.yaml, environment)
//  2. Logging (zerolog)
//  3. Durable stores (BadgerDB) and the offline queue
//  4. Upstream client with per-host circuit breakers
//  5. Event bus, websocket hub and forwarder
//  6. Strategies, synchronizer and notification bridge
//  7. Lifecycle: install the current generation, activate it
//  8. Supervisor tree (suture) running every long-lived service
//
// # Signals
//
// SIGINT and SIGTERM cancel the tree. The HTTP server drains for
// server.shutdown_timeout, then the stores are closed.
//
// # Example
//
//	export UPSTREAM_URL=https://inventario.example.org
//	export CACHE_PATH=/var/lib/offlinegate
//	./offlinegate
package main
