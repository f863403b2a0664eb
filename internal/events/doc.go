// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

/*
Package events carries broadcasts between gateway components.

Strategies, the synchronizer, the lifecycle manager and the notification
bridge publish models.Message values on a single topic of an in-process
Watermill gochannel. The websocket forwarder is the main subscriber and
fans every message out to the connected UI contexts.

Publishing never blocks on subscribers; a message published while nobody is
subscribed is dropped, which matches a browser broadcast with no open
windows.
*/
package events
