// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

/*
Package websocket connects UI contexts (open application windows) to the
gateway.

Every connected window is a Client registered with the Hub. The hub delivers
broadcasts (SYNC_COMPLETE, UBICACION_GUARDADA_OFFLINE, NOTIFICATION and
friends) to every client in connection order, and routes the requests a client
sends (GET_PENDING_LOCATIONS, MANUAL_SYNC, ...) to a MessageHandler whose reply
goes back to that client only.

Architecture:

	event bus ──> EventForwarder ──> Hub ──> Client1, Client2, ...
	                                  ^
	         MessageHandler <── request/reply ──> Client

Each client has three goroutines:
  - readPump: reads and decodes requests
  - dispatch: answers requests one at a time, in arrival order
  - writePump: writes replies and broadcasts, sends keepalive pings

A client whose send buffer fills up is dropped rather than allowed to block
the hub. Requests beyond the per-client inbox get an immediate ERROR reply.

Usage:

	hub := websocket.NewHub()
	hub.SetHandler(dispatcher)
	go hub.RunWithContext(ctx)

	upgrader := websocket.NewUpgrader(cfg.Security.CORSOrigins)
	r.Get("/_gateway/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWS(hub, upgrader, w, r)
	})

Thread Safety:

All Hub methods are safe for concurrent use. Client state is owned by its
pumps.
*/
package websocket
