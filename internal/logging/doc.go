// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

/*
Package logging provides the zerolog-based structured logging used throughout
Offlinegate.

A single global logger is configured once at startup from the gateway
configuration and is safe for concurrent use afterwards:

	logging.Init(logging.Config{Level: "info", Format: "json"})
	logging.Info().Str("strategy", "cache-first").Msg("Served from cache")

# Context

Every intercepted request carries a request id (X-Request-ID) and every sync
pass carries a correlation id. Ctx(ctx) returns a logger with both attached:

	logging.Ctx(ctx).Warn().Err(err).Msg("Upstream unreachable, queuing location")

# Location privacy

Location payloads and map query strings contain coordinates. RedactURL and
RedactPayload strip them before they reach log output.

# slog

The supervisor tree (suture via sutureslog) logs through log/slog.
NewSlogLogger returns an *slog.Logger backed by the same zerolog instance.
*/
package logging
