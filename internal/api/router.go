// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/offlinegate/internal/config"
	"github.com/tomtom215/offlinegate/internal/lifecycle"
	"github.com/tomtom215/offlinegate/internal/middleware"
	"github.com/tomtom215/offlinegate/internal/notify"
	"github.com/tomtom215/offlinegate/internal/queue"
	"github.com/tomtom215/offlinegate/internal/router"
	"github.com/tomtom215/offlinegate/internal/store"
	"github.com/tomtom215/offlinegate/internal/strategy"
	"github.com/tomtom215/offlinegate/internal/syncer"
	"github.com/tomtom215/offlinegate/internal/websocket"
)

// Deps are the components the HTTP surface is built from. Lifecycle,
// Breakers and Hub may be nil.
type Deps struct {
	Config     *config.Config
	Origin     *url.URL
	Router     *router.Router
	Strategies *strategy.Set
	Stores     *store.Manager
	Maps       *store.Store
	Queue      *queue.Queue
	Syncer     *syncer.Synchronizer
	Notify     *notify.Bridge
	Lifecycle  *lifecycle.Manager
	Breakers   BreakerStates
	Hub        *websocket.Hub
}

// Server holds the HTTP surface: the gateway catch-all and the admin routes.
type Server struct {
	deps       Deps
	gateway    *Gateway
	handler    *Handler
	dispatcher *Dispatcher
	chi        *ChiMiddleware
}

// NewServer wires the handlers. When a hub is given, the dispatcher is
// installed as its message handler.
func NewServer(d Deps) *Server {
	dispatcher := NewDispatcher(d.Queue, d.Maps, d.Syncer, d.Notify)
	if d.Hub != nil {
		d.Hub.SetHandler(dispatcher)
	}
	return &Server{
		deps:       d,
		gateway:    NewGateway(d.Origin, d.Router, d.Strategies),
		dispatcher: dispatcher,
		chi:        NewChiMiddleware(ChiMiddlewareConfigFrom(d.Config.Security)),
		handler: &Handler{
			stores:     d.Stores,
			queue:      d.Queue,
			router:     d.Router,
			syncer:     d.Syncer,
			notify:     d.Notify,
			lifecycle:  d.Lifecycle,
			breakers:   d.Breakers,
			hub:        d.Hub,
			dispatcher: dispatcher,
			startTime:  time.Now(),
		},
	}
}

// Dispatcher returns the protocol message dispatcher.
func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Applied to ALL routes in order
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.AccessLog)
	r.Use(s.proxyRequests)

	r.Get("/health", s.handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route(s.deps.Config.Server.AdminPrefix, func(r chi.Router) {
		r.Use(s.chi.CORS())
		r.Use(middleware.PrometheusMetrics)
		r.NotFound(func(w http.ResponseWriter, req *http.Request) {
			NewResponseWriter(w, req).NotFound("unknown gateway endpoint " + req.URL.Path)
		})

		if s.deps.Hub != nil {
			upgrader := websocket.NewUpgrader(s.deps.Config.Security.CORSOrigins)
			r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
				websocket.ServeWS(s.deps.Hub, upgrader, w, req)
			})
		}

		r.HandleFunc("/external/{scheme}/{host}/*", s.gateway.ServeExternal)

		r.Group(func(r chi.Router) {
			r.Use(s.chi.RateLimit())

			r.Get("/pending", s.handler.Pending)
			r.Delete("/pending", s.handler.ClearPending)
			r.Post("/sync", s.handler.Sync)
			r.Post("/messages", s.handler.Messages)
			r.Get("/routes", s.handler.Routes)
			r.Get("/status", s.handler.Status)

			if s.deps.Notify != nil {
				r.Post("/push", s.handler.Push)
				r.Get("/notifications", s.handler.Notifications)
				r.Post("/notifications/click", s.handler.NotificationClick)
			}
		})
	})

	// Everything else is page traffic
	r.Handle("/*", s.gateway)
	return r
}

// proxyRequests sends absolute-form requests straight to the gateway so an
// external path never collides with an admin route.
func (s *Server) proxyRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.IsAbs() && r.Method != http.MethodConnect {
			s.gateway.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
