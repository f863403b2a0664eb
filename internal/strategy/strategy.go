// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

// Package strategy resolves intercepted requests with network and cache
// policies. Each handler is the terminal boundary for its request: it always
// returns a response and never an error.
package strategy

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/offlinegate/internal/events"
	"github.com/tomtom215/offlinegate/internal/logging"
	"github.com/tomtom215/offlinegate/internal/metrics"
	"github.com/tomtom215/offlinegate/internal/models"
	"github.com/tomtom215/offlinegate/internal/queue"
	"github.com/tomtom215/offlinegate/internal/router"
	"github.com/tomtom215/offlinegate/internal/store"
	"github.com/tomtom215/offlinegate/internal/upstream"
)

// Handler resolves one request.
type Handler interface {
	Handle(ctx context.Context, req *models.Request) *models.Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *models.Request) *models.Response

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, req *models.Request) *models.Response {
	return f(ctx, req)
}

// Deps are the collaborators shared by the handlers. Store handles are
// injected so each handler can be tested against its own stores.
type Deps struct {
	Fetcher upstream.Fetcher
	Stores  *store.Manager
	Static  *store.Store
	Maps    *store.Store
	Queue   *queue.Queue
	Events  events.Publisher

	// OfflinePage is served for failed navigations.
	OfflinePage string
	// APIPrefix locates the endpoints with bespoke offline bodies.
	APIPrefix string
	// Manifest lists the static pages refreshed by successful navigations.
	Manifest []string

	Now func() time.Time
}

func (d *Deps) defaults() {
	if d.Events == nil {
		d.Events = events.Discard
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.APIPrefix == "" {
		d.APIPrefix = "/api/"
	}
}

// Set maps every routing strategy to its handler.
type Set struct {
	handlers map[router.Strategy]Handler
}

// NewSet builds the handlers for every strategy.
func NewSet(d Deps) *Set {
	d.defaults()
	return &Set{handlers: map[router.Strategy]Handler{
		router.StrategyLocationQueue: NewLocationWrite(d),
		router.StrategyMapPOI:        NewMapData(d, KindPOI),
		router.StrategyMapGeocode:    NewMapData(d, KindGeocode),
		router.StrategyPassthrough:   NewPassthrough(d),
		router.StrategyNetworkOnly:   NewNetworkOnly(d),
		router.StrategyNavigation:    NewNavigation(d),
		router.StrategyCacheFirst:    NewCacheFirst(d),
		router.StrategyAPIFallback:   NewAPIFallback(d),
		router.StrategyNetworkFirst:  NewNetworkFirst(d),
	}}
}

// Handler returns the handler for s, or nil.
func (s *Set) Handler(strategy router.Strategy) Handler {
	return s.handlers[strategy]
}

// Serve runs the handler chosen by d and records the outcome.
func (s *Set) Serve(ctx context.Context, d router.Decision, req *models.Request) *models.Response {
	start := time.Now()
	ctx = logging.ContextWithStrategy(ctx, string(d.Strategy))

	h, ok := s.handlers[d.Strategy]
	if !ok {
		h = s.handlers[router.StrategyPassthrough]
	}
	resp := h.Handle(ctx, req)
	if resp == nil {
		resp = models.JSONResponse(http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": "no response produced",
		})
	}

	dur := time.Since(start)
	metrics.RecordRequest(string(d.Strategy), resp.Source, resp.Status, dur)
	logging.Ctx(ctx).Debug().
		Str("rule", d.Rule).
		Str("method", req.Method).
		Str("url", logging.RedactURL(req.URL.String())).
		Int("status", resp.Status).
		Str("source", resp.Source).
		Dur("duration", dur).
		Msg("Request resolved")
	return resp
}

// fetch runs the network attempt shared by the network-first handlers. A nil
// error means the upstream answered, whatever the status.
func fetch(ctx context.Context, f upstream.Fetcher, req *models.Request) (*models.Response, error) {
	resp, err := f.Do(ctx, req)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("url", logging.RedactURL(req.URL.String())).Msg("Network attempt failed")
		return nil, err
	}
	return resp, nil
}
