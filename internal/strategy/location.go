// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package strategy

import (
	"context"
	"net/http"

	"github.com/tomtom215/offlinegate/internal/events"
	"github.com/tomtom215/offlinegate/internal/logging"
	"github.com/tomtom215/offlinegate/internal/models"
	"github.com/tomtom215/offlinegate/internal/queue"
	"github.com/tomtom215/offlinegate/internal/upstream"
)

// LocationWrite sends location updates upstream and queues them when the
// upstream cannot take them.
type LocationWrite struct {
	fetcher upstream.Fetcher
	queue   *queue.Queue
	events  events.Publisher
}

// NewLocationWrite builds the location-queue handler.
func NewLocationWrite(d Deps) *LocationWrite {
	d.defaults()
	return &LocationWrite{fetcher: d.Fetcher, queue: d.Queue, events: d.Events}
}

type locationResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Offline   bool   `json:"offline,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Handle implements Handler.
func (h *LocationWrite) Handle(ctx context.Context, req *models.Request) *models.Response {
	resp, err := h.fetcher.Do(ctx, req)
	switch {
	case err == nil && resp.OK():
		return resp
	case err == nil && (resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden):
		// auth answers belong to the page
		return resp
	case err == nil:
		logging.Ctx(ctx).Warn().Int("status", resp.Status).Msg("Location update rejected upstream, queueing")
	default:
		logging.Ctx(ctx).Info().Err(err).Msg("Upstream unreachable, queueing location update")
	}

	m, err := h.queue.Enqueue(ctx, req.Body)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to queue location update")
		return models.JSONResponse(http.StatusInternalServerError, locationResult{
			Success: false,
			Message: models.TextLocationOfflineError,
		})
	}

	saved := models.Message{
		Type:    models.MsgLocationSavedOffline,
		Data:    m.Payload,
		Message: models.TextLocationSavedOffline,
	}
	if err := h.events.Publish(ctx, saved); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to broadcast offline save")
	}

	return models.JSONResponse(http.StatusOK, locationResult{
		Success:   true,
		Message:   models.TextLocationSavedOffline,
		Offline:   true,
		Timestamp: m.CapturedAt.Format(queue.TimestampLayout),
	}).WithSource(models.SourceQueue)
}
