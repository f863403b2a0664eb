// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tomtom215/offlinegate/internal/api"
	"github.com/tomtom215/offlinegate/internal/config"
	"github.com/tomtom215/offlinegate/internal/events"
	"github.com/tomtom215/offlinegate/internal/lifecycle"
	"github.com/tomtom215/offlinegate/internal/logging"
	"github.com/tomtom215/offlinegate/internal/models"
	"github.com/tomtom215/offlinegate/internal/notify"
	"github.com/tomtom215/offlinegate/internal/queue"
	"github.com/tomtom215/offlinegate/internal/router"
	"github.com/tomtom215/offlinegate/internal/store"
	"github.com/tomtom215/offlinegate/internal/strategy"
	"github.com/tomtom215/offlinegate/internal/supervisor"
	"github.com/tomtom215/offlinegate/internal/supervisor/services"
	"github.com/tomtom215/offlinegate/internal/syncer"
	"github.com/tomtom215/offlinegate/internal/upstream"
	ws "github.com/tomtom215/offlinegate/internal/websocket"
)

//nolint:gocyclo // sequential wiring
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logging.Info().Str("addr", cfg.Addr()).Msg("Starting offlinegate")

	origin, err := cfg.UpstreamURL()
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid upstream URL")
	}

	stores, err := store.Open(store.OptionsFromConfig(cfg.Cache))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open stores")
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing stores")
		}
	}()

	static, err := stores.Open(cfg.Cache.StaticCacheName())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open static cache")
	}
	maps, err := stores.Open(cfg.Cache.MapCacheName())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open map cache")
	}
	qs, err := stores.Open(cfg.Cache.QueueName)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open queue store")
	}
	q := queue.New(qs, cfg.Sync.MaxPending)
	if n, err := q.Len(context.Background()); err == nil && n > 0 {
		logging.Info().Int("pending", n).Msg("Pending locations carried over from last run")
	}

	client := upstream.New(cfg.Upstream, origin)

	bus := events.NewBus(events.DefaultConfig(), nil)
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing event bus")
		}
	}()

	hub := ws.NewHub()
	forwarder := ws.NewEventForwarder(hub, bus)

	set := strategy.NewSet(strategy.Deps{
		Fetcher:     client,
		Stores:      stores,
		Static:      static,
		Maps:        maps,
		Queue:       q,
		Events:      bus,
		OfflinePage: cfg.Router.OfflinePage,
		APIPrefix:   cfg.Router.APIPrefix,
		Manifest:    cfg.Lifecycle.Manifest,
	})

	target := models.OriginURL(origin, cfg.LocationReplayPath(), "")
	sy := syncer.New(cfg.Sync, q, client, target, bus)
	client.OnConnectivityRestored(sy.OnConnectivityRestored)

	bridge := notify.New(cfg.Notify, bus, localURL(cfg),
		notify.WithWindows(hub),
		notify.WithOpener(notify.CommandOpener(cfg.Notify.OpenCommand)),
	)

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// Periodic sync joins the tree only once install has registered it.
	lc := lifecycle.New(lifecycle.Options{
		Lifecycle:          cfg.Lifecycle,
		Cache:              cfg.Cache,
		ThirdPartyPatterns: cfg.Router.ThirdPartyPatterns,
		SyncTag:            cfg.Sync.Tag,
		Stores:             stores,
		Fetcher:            client,
		Origin:             origin,
		Events:             bus,
		Registrar: lifecycle.RegistrarFunc(func(tag string) error {
			tree.AddMessagingService(services.NewLoopService("periodic-sync:"+tag, sy))
			return nil
		}),
	})

	server := api.NewServer(api.Deps{
		Config:     cfg,
		Origin:     origin,
		Router:     router.New(cfg.Router),
		Strategies: set,
		Stores:     stores,
		Maps:       maps,
		Queue:      q,
		Syncer:     sy,
		Notify:     bridge,
		Lifecycle:  lc,
		Breakers:   client,
		Hub:        hub,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	tree.AddStorageService(services.NewTickerService("store-gc", cfg.Cache.GCInterval, func(context.Context) error {
		_, err := stores.RunGC()
		return err
	}))
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddMessagingService(services.NewForwarderService(forwarder))
	tree.AddMessagingService(services.NewTickerService("upstream-probe", cfg.Upstream.ProbeInterval, func(ctx context.Context) error {
		if client.OriginState() == "closed" {
			return nil
		}
		return client.Ping(ctx)
	}))
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	installCtx := logging.ContextWithNewCorrelationID(ctx)
	if err := lc.Start(installCtx); err != nil {
		logging.Fatal().Err(err).Msg("Lifecycle failed; gateway is redundant")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
		serveErr = <-errCh
	case serveErr = <-errCh:
	}
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		logging.Error().Err(serveErr).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}
	logging.Info().Msg("Offlinegate stopped")
}

// localURL is the gateway root as seen from this machine, for opening a
// window when no UI context is connected.
func localURL(cfg *config.Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	u := url.URL{Scheme: "http", Host: net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port)), Path: "/"}
	return u.String()
}
