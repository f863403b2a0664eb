// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/offlinegate/internal/logging"
	"github.com/tomtom215/offlinegate/internal/metrics"
	"github.com/tomtom215/offlinegate/internal/models"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// MessageHandler answers a message received from a UI context. The reply is
// sent back to that context only; ok=false means no reply.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *models.InboundMessage) (reply models.Message, ok bool)
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(ctx context.Context, msg *models.InboundMessage) (models.Message, bool)

// HandleMessage calls f.
func (f MessageHandlerFunc) HandleMessage(ctx context.Context, msg *models.InboundMessage) (models.Message, bool) {
	return f(ctx, msg)
}

// Hub maintains the set of connected UI contexts and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan models.Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	handler MessageHandler
}

// NewHub creates a hub. handler may be set later with SetHandler.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan models.Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// SetHandler sets the handler for inbound messages. Must be called before
// clients connect.
func (h *Hub) SetHandler(handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

func (h *Hub) messageHandler() MessageHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handler
}

// RunWithContext runs the hub until ctx is done, then closes every client.
//
// DETERMINISM: Uses priority-based selection:
//   - Priority 1: Context cancellation (shutdown)
//   - Priority 2: Client lifecycle events (Register/Unregister)
//   - Priority 3: Broadcast messages
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(n))
	logging.Info().Uint64("client_id", client.id).Int("total_clients", n).Msg("UI context connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(n))
	logging.Info().Uint64("client_id", client.id).Int("total_clients", n).Msg("UI context disconnected")
}

// unregister removes client through the run loop, or directly when the hub
// is not running.
func (h *Hub) unregister(client *Client) {
	select {
	case h.Unregister <- client:
	case <-time.After(time.Second):
		h.removeClient(client)
	}
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.ClientCount()
	h.closeAllClients()

	// ctx.Err() is expected here and deliberately not logged as an error
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// sortedClients must be called with h.mu held.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// broadcastToClients sends message to every client in id order. Clients whose
// send buffer is full are dropped.
func (h *Hub) broadcastToClients(message models.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var toRemove []*Client
	for _, client := range h.sortedClients() {
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		logging.Warn().Uint64("client_id", client.id).Msg("Dropping slow UI context")
	}
	if len(toRemove) > 0 {
		metrics.WebSocketClients.Set(float64(len(h.clients)))
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.sortedClients() {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WebSocketClients.Set(0)
}

// Broadcast queues msg for every connected client. It never blocks; when the
// broadcast buffer is full the message is dropped and false returned.
func (h *Hub) Broadcast(msg models.Message) bool {
	select {
	case h.broadcast <- msg:
		return true
	default:
		logging.Warn().Str("message_type", msg.Type).Msg("broadcast channel full, dropping message")
		return false
	}
}

// Publish broadcasts msg, so the hub can stand in for the event bus.
func (h *Hub) Publish(_ context.Context, msg models.Message) error {
	h.Broadcast(msg)
	return nil
}

// send delivers msg to one client if it is still registered.
func (h *Hub) send(client *Client, msg models.Message) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[client] {
		return false
	}
	select {
	case client.send <- msg:
		return true
	default:
		return false
	}
}

// FocusFirst delivers msg to the longest-connected client and reports
// whether one was connected.
func (h *Hub) FocusFirst(ctx context.Context, msg models.Message) bool {
	h.mu.RLock()
	var first *Client
	for client := range h.clients {
		if first == nil || client.id < first.id {
			first = client
		}
	}
	h.mu.RUnlock()
	if first == nil {
		return false
	}
	if !h.send(first, msg) {
		return false
	}
	logging.Ctx(ctx).Debug().Uint64("client_id", first.id).Str("message_type", msg.Type).Msg("Focused UI context")
	return true
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ClientIDs returns the ids of connected clients in connection order.
func (h *Hub) ClientIDs() []uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := h.sortedClients()
	ids := make([]uint64, len(clients))
	for i, c := range clients {
		ids[i] = c.id
	}
	return ids
}

// MarshalMessage converts a message to JSON.
func MarshalMessage(msg models.Message) ([]byte, error) {
	return json.Marshal(msg)
}
