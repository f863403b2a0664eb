// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

/*
Package store keeps named cache stores in a single BadgerDB database.

A store is a durable key/value namespace identified by a name such as
"seguridad-app-v9", "map-data-v3" or "ubicaciones-pendientes". Stores are
created on first Open, enumerated with Names, looked up together with Match,
and dropped as a whole with Delete when a new cache generation is activated.

Key layout:

	r\x00<name>              registration {name, created_at}
	e\x00<name>\x00<key>     entry value

Entry keys iterate in lexical order. Names may not contain control characters.

Stores survive restarts unless the manager is opened in memory, which tests
use.
*/
package store
