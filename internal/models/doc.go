// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

/*
Package models defines the data structures shared across Offlinegate.

It is the single source of truth for the shapes that travel between the
request router, the strategy handlers, the durable stores and the UI contexts.

Key Components:

  - Request: an intercepted page request (method, absolute URL, navigation flag, body)
  - Response: a stored or synthesized response (status, headers, body)
  - PendingMutation: a location update recorded while the upstream was unreachable
  - Message: the cross-context messaging envelope exchanged with UI contexts
  - Error taxonomy: ErrNetwork, ErrPersistence, ErrParse, ErrUnsupported

Response values are immutable once handed to a cache store; callers that need
to modify one should Clone it first.
*/
package models
