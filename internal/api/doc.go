// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

/*
Package api is the HTTP surface of the gateway.

Page traffic hits the catch-all Gateway, which builds a models.Request,
asks the router for a strategy and writes whatever the strategy answers.
The gateway's own endpoints live under the admin prefix (default
"/_gateway"):

	GET    /_gateway/ws                   websocket UI context
	GET    /_gateway/pending              pending location updates
	DELETE /_gateway/pending              clear the queue
	POST   /_gateway/sync                 manual sync pass
	POST   /_gateway/messages             one protocol message over HTTP
	POST   /_gateway/push                 push message intake
	GET    /_gateway/notifications        notifications currently shown
	POST   /_gateway/notifications/click  notification interaction
	GET    /_gateway/routes               routing rules in precedence order
	GET    /_gateway/status               lifecycle, stores, queue, breakers
	ANY    /_gateway/external/{scheme}/{host}/*  page request to another host
	GET    /health, /metrics

Admin endpoints answer with the APIResponse envelope, go through go-chi/cors
and, except the websocket, a go-chi/httprate limiter. Page traffic is never
rate limited.
*/
package api
