// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package websocket

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/offlinegate/internal/logging"
	"github.com/tomtom215/offlinegate/internal/metrics"
	"github.com/tomtom215/offlinegate/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512 KB

	// inboxSize bounds the requests a client may have waiting for a reply.
	inboxSize = 16
)

// clientIDCounter orders clients by connection time.
var clientIDCounter atomic.Uint64

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	send chan models.Message

	inbox chan *models.InboundMessage
}

// NewClient creates a new Client with a unique, increasing id.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:    clientIDCounter.Add(1),
		hub:   hub,
		conn:  conn,
		send:  make(chan models.Message, 256),
		inbox: make(chan *models.InboundMessage, inboxSize),
	}
}

// ID returns the client's identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// readPump pumps messages from the websocket connection to the dispatcher.
func (c *Client) readPump(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.dispatch(ctx)
	}()

	defer func() {
		cancel()
		close(c.inbox)
		wg.Wait()
		c.hub.unregister(c)
		_ = c.conn.Close() // best-effort cleanup
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Msg("unexpected websocket close error")
			}
			return
		}

		var msg models.InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			metrics.MessagesHandled.WithLabelValues("invalid", "error").Inc()
			c.hub.send(c, models.Message{Type: models.MsgError, Message: "malformed message", Success: models.Bool(false)})
			continue
		}

		select {
		case c.inbox <- &msg:
		default:
			metrics.MessagesHandled.WithLabelValues(msg.Type, "busy").Inc()
			reply := msg.Reply(models.MsgError)
			reply.Message = "too many requests in flight"
			reply.Success = models.Bool(false)
			c.hub.send(c, reply)
		}
	}
}

// dispatch answers inbound messages one at a time, in arrival order.
func (c *Client) dispatch(ctx context.Context) {
	for msg := range c.inbox {
		if ctx.Err() != nil {
			continue
		}
		reply, ok := c.handle(ctx, msg)
		if ok {
			c.hub.send(c, reply)
		}
	}
}

func (c *Client) handle(ctx context.Context, msg *models.InboundMessage) (models.Message, bool) {
	mctx := logging.ContextWithNewCorrelationID(ctx)
	if h := c.hub.messageHandler(); h != nil {
		return h.HandleMessage(mctx, msg)
	}
	if msg.Type == models.MsgPing {
		metrics.MessagesHandled.WithLabelValues(msg.Type, "ok").Inc()
		return msg.Reply(models.MsgPong), true
	}
	metrics.MessagesHandled.WithLabelValues(msg.Type, "unsupported").Inc()
	return models.Message{}, false
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // best-effort cleanup
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if !ok {
				// the hub closed the channel
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Debug().Err(err).Msg("failed to write close message")
				}
				return
			}

			data, err := MarshalMessage(message)
			if err != nil {
				logging.Error().Err(err).Str("message_type", message.Type).Msg("failed to encode message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logging.Error().Err(err).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client. ctx bounds the handling
// of its inbound messages.
func (c *Client) Start(ctx context.Context) {
	go c.writePump()
	go c.readPump(ctx)
}

// NewUpgrader returns an upgrader accepting same-host origins plus the listed
// ones. "*" accepts any origin.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowed["*"] || allowed[origin] {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		},
	}
}

// ServeWS upgrades the request and registers the new UI context with hub.
func ServeWS(hub *Hub, upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		logging.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := NewClient(hub, conn)
	select {
	case hub.Register <- client:
	case <-time.After(writeWait):
		logging.Warn().Msg("websocket hub not running, closing connection")
		_ = conn.Close()
		return
	}
	// detached from the request, which ends with the upgrade
	client.Start(context.WithoutCancel(r.Context()))
}
