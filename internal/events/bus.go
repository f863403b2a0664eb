// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/offlinegate/internal/logging"
	"github.com/tomtom215/offlinegate/internal/metrics"
	"github.com/tomtom215/offlinegate/internal/models"
)

// TopicBroadcast is the topic every UI broadcast travels on.
const TopicBroadcast = "gateway.broadcast"

const (
	metadataType          = "type"
	metadataCorrelationID = "correlation_id"
)

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("event bus is closed")

// Publisher is what producers of broadcasts depend on.
type Publisher interface {
	Publish(ctx context.Context, msg models.Message) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, msg models.Message) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, msg models.Message) error {
	return f(ctx, msg)
}

type discard struct{}

func (discard) Publish(context.Context, models.Message) error { return nil }

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

// Config tunes the in-process pub/sub.
type Config struct {
	// OutputChannelBuffer is the per-subscriber buffer.
	OutputChannelBuffer int64
}

// DefaultConfig returns the buffer size used by the gateway.
func DefaultConfig() Config {
	return Config{OutputChannelBuffer: 256}
}

// Bus is an in-process broadcast bus backed by a Watermill gochannel.
type Bus struct {
	pubsub *gochannel.GoChannel

	mu     sync.RWMutex
	closed bool
}

// NewBus creates a bus. A nil logger routes Watermill logs to zerolog.
func NewBus(cfg Config, logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = NewLoggerAdapter(logging.WithComponent("events"))
	}
	if cfg.OutputChannelBuffer <= 0 {
		cfg.OutputChannelBuffer = DefaultConfig().OutputChannelBuffer
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            cfg.OutputChannelBuffer,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		}, logger),
	}
}

// Publish encodes msg and sends it to every subscriber.
func (b *Bus) Publish(ctx context.Context, msg models.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", msg.Type, err)
	}

	wm := message.NewMessage(watermill.NewUUID(), payload)
	wm.Metadata.Set(metadataType, msg.Type)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		wm.Metadata.Set(metadataCorrelationID, id)
	}

	if err := b.pubsub.Publish(TopicBroadcast, wm); err != nil {
		return fmt.Errorf("publish %s event: %w", msg.Type, err)
	}
	metrics.EventsPublished.WithLabelValues(msg.Type).Inc()
	logging.Debug().Str("type", msg.Type).Str("event_id", wm.UUID).Msg("Event published")
	return nil
}

// Subscribe returns a channel of broadcast messages that closes when ctx is
// done or the bus is closed. Every received message must be acked.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	return b.pubsub.Subscribe(ctx, TopicBroadcast)
}

// Close stops the bus and closes all subscriber channels.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}

// Decode turns a received Watermill message back into a models.Message.
func Decode(wm *message.Message) (models.Message, error) {
	var msg models.Message
	if err := json.Unmarshal(wm.Payload, &msg); err != nil {
		return models.Message{}, fmt.Errorf("%w: event %s: %v", models.ErrParse, wm.UUID, err)
	}
	if msg.Type == "" {
		msg.Type = wm.Metadata.Get(metadataType)
	}
	return msg, nil
}
