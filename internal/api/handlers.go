// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/offlinegate/internal/lifecycle"
	"github.com/tomtom215/offlinegate/internal/models"
	"github.com/tomtom215/offlinegate/internal/notify"
	"github.com/tomtom215/offlinegate/internal/queue"
	"github.com/tomtom215/offlinegate/internal/router"
	"github.com/tomtom215/offlinegate/internal/store"
	"github.com/tomtom215/offlinegate/internal/syncer"
	"github.com/tomtom215/offlinegate/internal/validation"
	"github.com/tomtom215/offlinegate/internal/websocket"
)

// maxAdminBody bounds bodies of the admin endpoints.
const maxAdminBody = 1 << 20

// BreakerStates reports upstream circuit breaker states by host.
type BreakerStates interface {
	OriginState() string
	States() map[string]string
}

// Handler serves the gateway's own endpoints.
type Handler struct {
	stores     *store.Manager
	queue      *queue.Queue
	router     *router.Router
	syncer     *syncer.Synchronizer
	notify     *notify.Bridge
	lifecycle  *lifecycle.Manager
	breakers   BreakerStates
	hub        *websocket.Hub
	dispatcher *Dispatcher
	startTime  time.Time
}

// StatusReport is the body of GET {prefix}/status.
type StatusReport struct {
	Lifecycle lifecycle.Status  `json:"lifecycle"`
	Stores    map[string]int    `json:"stores"`
	Pending   int               `json:"pending"`
	Breakers  map[string]string `json:"breakers"`
	Clients   int               `json:"ui_contexts"`
	LastSync  *syncer.Result    `json:"last_sync,omitempty"`
	Uptime    float64           `json:"uptime_seconds"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status    string          `json:"status"`
	Upstream  string          `json:"upstream"`
	Lifecycle lifecycle.State `json:"lifecycle"`
	Uptime    float64         `json:"uptime_seconds"`
}

// RouteInfo describes one routing rule.
type RouteInfo struct {
	Index       int             `json:"index"`
	Name        string          `json:"name"`
	Strategy    router.Strategy `json:"strategy"`
	Description string          `json:"description"`
}

// PendingList is the body of GET {prefix}/pending.
type PendingList struct {
	Count   int                       `json:"count"`
	Entries []*models.PendingMutation `json:"entries"`
}

// Pending exports the offline queue, oldest first.
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	entries, err := h.queue.List(r.Context())
	if err != nil {
		rw.PersistenceError(err)
		return
	}
	rw.Success(PendingList{Count: len(entries), Entries: entries})
}

// ClearPending deletes every queued mutation.
func (h *Handler) ClearPending(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	n, err := h.queue.Clear(r.Context())
	if err != nil {
		rw.PersistenceError(err)
		return
	}
	rw.Success(map[string]interface{}{"cleared": n, "message": models.TextPendingCleared})
}

// Sync runs a manual sync pass and returns its result.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	res, err := h.syncer.Sync(r.Context(), syncer.TriggerManual)
	if err != nil {
		rw.PersistenceError(err)
		return
	}
	rw.Success(res)
}

// Push accepts a push message and shows it as a notification. An empty
// body is accepted and ignored.
func (h *Handler) Push(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAdminBody))
	if err != nil {
		rw.BadRequest("could not read body")
		return
	}
	n, err := h.notify.HandlePush(r.Context(), body)
	switch {
	case errors.Is(err, models.ErrParse):
		rw.BadRequest("push payload is not valid JSON")
	case err != nil && n == nil:
		rw.ServiceUnavailable(err.Error())
	default:
		rw.Accepted(n)
	}
}

// Notifications lists the notifications currently shown.
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.notify.Shown())
}

// NotificationClick handles an interaction with a notification.
func (h *Handler) NotificationClick(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var click models.NotificationClick
	if err := json.NewDecoder(io.LimitReader(r.Body, maxAdminBody)).Decode(&click); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if err := validation.ValidateStruct(&click); err != nil {
		rw.ValidationError("invalid notification click", err)
		return
	}

	err := h.notify.Click(r.Context(), click.Tag, click.Action)
	switch {
	case err == nil:
		rw.Success(map[string]string{"tag": click.Tag, "action": click.Action})
	case errors.Is(err, models.ErrUnsupported):
		rw.Unsupported(err.Error())
	default:
		rw.ServiceUnavailable(err.Error())
	}
}

// Messages answers one protocol message over plain HTTP.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var msg models.InboundMessage
	if err := json.NewDecoder(io.LimitReader(r.Body, maxAdminBody)).Decode(&msg); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	reply, ok := h.dispatcher.HandleMessage(r.Context(), &msg)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	rw.Success(reply)
}

// Routes lists the routing rules in precedence order.
func (h *Handler) Routes(w http.ResponseWriter, r *http.Request) {
	rules := h.router.Rules()
	out := make([]RouteInfo, len(rules))
	for i, rule := range rules {
		out[i] = RouteInfo{Index: i, Name: rule.Name, Strategy: rule.Strategy, Description: rule.Description}
	}
	NewResponseWriter(w, r).Success(out)
}

// Status reports the lifecycle, stores, queue and upstream state.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	stats, err := h.stores.Stats(r.Context())
	if err != nil {
		rw.PersistenceError(err)
		return
	}
	pending, err := h.queue.Len(r.Context())
	if err != nil {
		rw.PersistenceError(err)
		return
	}
	report := StatusReport{
		Stores:   stats,
		Pending:  pending,
		Breakers: map[string]string{},
		Uptime:   time.Since(h.startTime).Seconds(),
		LastSync: h.syncer.Last(),
	}
	if h.lifecycle != nil {
		report.Lifecycle = h.lifecycle.Status()
	}
	if h.breakers != nil {
		report.Breakers = h.breakers.States()
	}
	if h.hub != nil {
		report.Clients = h.hub.ClientCount()
	}
	rw.Success(report)
}

// Health is the liveness probe. The gateway is healthy while its stores are
// usable; an unreachable upstream only makes it "offline".
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	status := HealthStatus{Status: "healthy", Upstream: "unknown", Uptime: time.Since(h.startTime).Seconds()}
	if h.lifecycle != nil {
		status.Lifecycle = h.lifecycle.State()
	}
	if h.breakers != nil {
		status.Upstream = h.breakers.OriginState()
		if status.Upstream == "open" {
			status.Status = "offline"
		}
	}
	if _, err := h.stores.Names(); err != nil {
		status.Status = "unhealthy"
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodePersistence, "cache stores unavailable", status)
		return
	}
	rw.Success(status)
}
