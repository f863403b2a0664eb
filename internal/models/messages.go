// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package models

import (
	"github.com/goccy/go-json"
)

// Requests from UI contexts.
const (
	MsgGetPendingLocations   = "GET_PENDING_LOCATIONS"
	MsgClearPendingLocations = "CLEAR_PENDING_LOCATIONS"
	MsgManualSync            = "MANUAL_SYNC"
	MsgCacheMapData          = "CACHE_MAP_DATA"
	MsgGetCachedMapData      = "GET_CACHED_MAP_DATA"
	MsgNotificationClick     = "NOTIFICATION_CLICK"
	MsgPing                  = "PING"
)

// Replies to UI context requests.
const (
	MsgPendingLocationsResponse = "PENDING_LOCATIONS_RESPONSE"
	MsgClearComplete            = "CLEAR_COMPLETE"
	MsgManualSyncComplete       = "MANUAL_SYNC_COMPLETE"
	MsgCacheMapDataResponse     = "CACHE_MAP_DATA_RESPONSE"
	MsgCachedMapDataResponse    = "CACHED_MAP_DATA_RESPONSE"
	MsgPong                     = "PONG"
	MsgError                    = "ERROR"
)

// Broadcasts to every UI context.
const (
	MsgSyncComplete         = "SYNC_COMPLETE"
	MsgLocationSavedOffline = "UBICACION_GUARDADA_OFFLINE"
	MsgNotification         = "NOTIFICATION"
	MsgNotificationClosed   = "NOTIFICATION_CLOSED"
	MsgControllerActivated  = "CONTROLLER_ACTIVATED"
	MsgFocus                = "FOCUS"
)

// User-facing message texts.
const (
	TextLocationSavedOffline = "Ubicación guardada para sincronización posterior"
	TextLocationOfflineError = "Error procesando ubicación offline"
	TextPendingCleared       = "Ubicaciones pendientes eliminadas"
	TextManualSyncComplete   = "Sincronización manual completada"
)

// Message is the envelope exchanged with UI contexts. ID correlates a reply
// with its request and is echoed back unchanged.
type Message struct {
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Success *bool       `json:"success,omitempty"`
}

// InboundMessage is a message received from a UI context with its data left raw.
type InboundMessage struct {
	Type string          `json:"type" validate:"required"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Reply builds a response message correlated with m.
func (m *InboundMessage) Reply(msgType string) Message {
	return Message{Type: msgType, ID: m.ID}
}

// Bool returns a pointer to b, for Message.Success.
func Bool(b bool) *bool {
	return &b
}

// MapDataRequest is the data of CACHE_MAP_DATA and GET_CACHED_MAP_DATA.
type MapDataRequest struct {
	URL     string          `json:"url" validate:"required,url"`
	Content json.RawMessage `json:"content,omitempty"`
}

// NotificationClick is the data of NOTIFICATION_CLICK.
type NotificationClick struct {
	Tag    string `json:"tag" validate:"required"`
	Action string `json:"action,omitempty"`
}
