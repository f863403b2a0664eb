// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

// Package services adapts gateway components to suture.Service.
//
// Each wrapper turns one lifecycle shape into Serve(ctx) error:
//   - HTTPServerService: ListenAndServe/Shutdown
//   - WebSocketHubService: RunWithContext
//   - ForwarderService: Start/Stop
//   - LoopService: Run(ctx) error, used for periodic sync
//   - TickerService: a function called on an interval, used for store GC
//     and the upstream probe
//
// All wrappers implement fmt.Stringer so suture logs them by name.
package services
