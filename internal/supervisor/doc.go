// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

/*
Package supervisor runs the gateway's long-lived services under suture v4.

The tree has three layers so that a failing layer restarts on its own:

	RootSupervisor ("offlinegate")
	├── StorageSupervisor ("storage-layer")
	│   └── StoreGCService ("store-gc")
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocketHubService ("websocket-hub")
	│   ├── ForwarderService ("event-forwarder")
	│   ├── LoopService ("periodic-sync")
	│   └── TickerService ("upstream-probe")
	└── APISupervisor ("api-layer")
	    └── HTTPServerService ("http-server")

Supervisor events are logged through sutureslog on top of the zerolog
slog adapter:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))
	err = tree.Serve(ctx)

The service wrappers live in the services subpackage.
*/
package supervisor
