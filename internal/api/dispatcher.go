// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/offlinegate/internal/logging"
	"github.com/tomtom215/offlinegate/internal/metrics"
	"github.com/tomtom215/offlinegate/internal/models"
	"github.com/tomtom215/offlinegate/internal/notify"
	"github.com/tomtom215/offlinegate/internal/queue"
	"github.com/tomtom215/offlinegate/internal/store"
	"github.com/tomtom215/offlinegate/internal/strategy"
	"github.com/tomtom215/offlinegate/internal/syncer"
	"github.com/tomtom215/offlinegate/internal/validation"
)

// ErrUnknownMessage is returned for message types the gateway does not handle.
var ErrUnknownMessage = errors.New("unknown message type")

// Dispatcher answers the messaging protocol of the UI contexts. It serves
// both the websocket and POST {prefix}/messages.
type Dispatcher struct {
	queue  *queue.Queue
	maps   *store.Store
	syncer *syncer.Synchronizer
	notify *notify.Bridge
}

// NewDispatcher creates a dispatcher. notify may be nil.
func NewDispatcher(q *queue.Queue, maps *store.Store, s *syncer.Synchronizer, n *notify.Bridge) *Dispatcher {
	return &Dispatcher{queue: q, maps: maps, syncer: s, notify: n}
}

// HandleMessage implements websocket.MessageHandler. Failures are answered
// with an ERROR message carrying the request id.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg *models.InboundMessage) (models.Message, bool) {
	reply, ok, err := d.dispatch(ctx, msg)
	if err != nil {
		metrics.MessagesHandled.WithLabelValues(msg.Type, "error").Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("message_type", msg.Type).Msg("Message failed")
		e := msg.Reply(models.MsgError)
		e.Message = err.Error()
		e.Success = models.Bool(false)
		return e, true
	}
	metrics.MessagesHandled.WithLabelValues(msg.Type, "ok").Inc()
	return reply, ok
}

func (d *Dispatcher) dispatch(ctx context.Context, msg *models.InboundMessage) (models.Message, bool, error) {
	if err := validation.ValidateStruct(msg); err != nil {
		return models.Message{}, false, fmt.Errorf("%w: %v", models.ErrParse, err)
	}

	switch msg.Type {
	case models.MsgGetPendingLocations:
		pending, err := d.queue.List(ctx)
		if err != nil {
			return models.Message{}, false, err
		}
		payloads := make([]json.RawMessage, len(pending))
		for i, m := range pending {
			payloads[i] = m.Payload
		}
		reply := msg.Reply(models.MsgPendingLocationsResponse)
		reply.Data = payloads
		return reply, true, nil

	case models.MsgClearPendingLocations:
		n, err := d.queue.Clear(ctx)
		if err != nil {
			return models.Message{}, false, err
		}
		logging.Ctx(ctx).Info().Int("cleared", n).Msg("Pending locations cleared")
		reply := msg.Reply(models.MsgClearComplete)
		reply.Message = models.TextPendingCleared
		reply.Success = models.Bool(true)
		reply.Data = map[string]int{"cleared": n}
		return reply, true, nil

	case models.MsgManualSync:
		res, err := d.syncer.Sync(ctx, syncer.TriggerManual)
		if err != nil {
			return models.Message{}, false, err
		}
		reply := msg.Reply(models.MsgManualSyncComplete)
		reply.Message = models.TextManualSyncComplete
		reply.Data = res
		return reply, true, nil

	case models.MsgCacheMapData:
		var req models.MapDataRequest
		if err := decodeData(msg, &req); err != nil {
			return models.Message{}, false, err
		}
		reply := msg.Reply(models.MsgCacheMapDataResponse)
		err := strategy.StoreMapDatum(d.maps, req.URL, req.Content)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("url", logging.RedactURL(req.URL)).Msg("Could not cache map data")
		}
		reply.Success = models.Bool(err == nil)
		return reply, true, nil

	case models.MsgGetCachedMapData:
		var req models.MapDataRequest
		if err := decodeData(msg, &req); err != nil {
			return models.Message{}, false, err
		}
		reply := msg.Reply(models.MsgCachedMapDataResponse)
		datum, err := strategy.LoadMapDatum(d.maps, req.URL)
		switch {
		case err == nil:
			reply.Data = datum
		case errors.Is(err, store.ErrNotFound), errors.Is(err, models.ErrParse):
			// answered with no data
		default:
			return models.Message{}, false, err
		}
		return reply, true, nil

	case models.MsgNotificationClick:
		if d.notify == nil {
			return models.Message{}, false, fmt.Errorf("%w: notifications", models.ErrUnsupported)
		}
		var click models.NotificationClick
		if err := decodeData(msg, &click); err != nil {
			return models.Message{}, false, err
		}
		return models.Message{}, false, d.notify.Click(ctx, click.Tag, click.Action)

	case models.MsgPing:
		return msg.Reply(models.MsgPong), true, nil

	default:
		return models.Message{}, false, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

// decodeData decodes and validates the data of msg into v.
func decodeData(msg *models.InboundMessage, v interface{}) error {
	if len(msg.Data) == 0 {
		return fmt.Errorf("%w: %s requires data", models.ErrParse, msg.Type)
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return fmt.Errorf("%w: %s data: %v", models.ErrParse, msg.Type, err)
	}
	if err := validation.ValidateStruct(v); err != nil {
		return fmt.Errorf("%w: %v", models.ErrParse, err)
	}
	return nil
}
