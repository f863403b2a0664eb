// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package strategy

import (
	"context"
	"net/http"
	"path"
	"strings"

	"github.com/tomtom215/offlinegate/internal/logging"
	"github.com/tomtom215/offlinegate/internal/models"
	"github.com/tomtom215/offlinegate/internal/store"
	"github.com/tomtom215/offlinegate/internal/upstream"
)

type servicioOffline struct {
	Nombre    string `json:"nombre"`
	Tipo      string `json:"tipo"`
	Distancia string `json:"distancia"`
	Direccion string `json:"direccion"`
	Telefono  string `json:"telefono"`
	Offline   bool   `json:"offline"`
}

type serviciosOffline struct {
	Servicios []servicioOffline `json:"servicios"`
	Offline   bool              `json:"offline"`
}

type preferenciasOffline struct {
	Tema           string `json:"tema"`
	Notificaciones bool   `json:"notificaciones"`
	TamanoTexto    string `json:"tamaño_texto"`
	Offline        bool   `json:"offline"`
}

type offlineError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Offline bool   `json:"offline"`
}

// APIFallback is network-first for the data API with placeholder bodies
// when the upstream is unreachable.
type APIFallback struct {
	fetcher      upstream.Fetcher
	servicesPath string
	prefsPath    string
}

// NewAPIFallback builds the API handler.
func NewAPIFallback(d Deps) *APIFallback {
	d.defaults()
	return &APIFallback{
		fetcher:      d.Fetcher,
		servicesPath: path.Join(d.APIPrefix, "servicios-cercanos"),
		prefsPath:    path.Join(d.APIPrefix, "preferencias"),
	}
}

// Handle implements Handler.
func (h *APIFallback) Handle(ctx context.Context, req *models.Request) *models.Response {
	resp, err := fetch(ctx, h.fetcher, req)
	if err == nil {
		return resp
	}

	p := req.PagePath()
	switch {
	case strings.HasPrefix(p, h.servicesPath):
		return models.JSONResponse(http.StatusOK, serviciosOffline{
			Servicios: []servicioOffline{{
				Nombre:    "Modo Offline - Servicios no disponibles",
				Tipo:      "offline",
				Distancia: "N/A",
				Direccion: "Conecta a internet para ver servicios en tiempo real",
				Telefono:  "N/A",
				Offline:   true,
			}},
			Offline: true,
		})
	case strings.HasPrefix(p, h.prefsPath):
		return models.JSONResponse(http.StatusOK, preferenciasOffline{
			Tema:           "light",
			Notificaciones: false,
			TamanoTexto:    "medium",
			Offline:        true,
		})
	default:
		return models.JSONResponse(http.StatusServiceUnavailable, offlineError{
			Error:   "Offline mode",
			Message: "Conecta a internet para acceder a esta funcionalidad",
			Offline: true,
		})
	}
}

// NetworkFirst is the default: network, then any cache, then 404.
type NetworkFirst struct {
	fetcher upstream.Fetcher
	stores  *store.Manager
}

// NewNetworkFirst builds the default handler.
func NewNetworkFirst(d Deps) *NetworkFirst {
	return &NetworkFirst{fetcher: d.Fetcher, stores: d.Stores}
}

// Handle implements Handler.
func (h *NetworkFirst) Handle(ctx context.Context, req *models.Request) *models.Response {
	resp, err := fetch(ctx, h.fetcher, req)
	if err == nil {
		return resp
	}
	if cached := matchAny(ctx, h.stores, req.Key()); cached != nil {
		return cached
	}
	return models.TextResponse(http.StatusNotFound, "text/plain; charset=utf-8", "Resource not available offline")
}

// Passthrough forwards requests the gateway does not manage.
type Passthrough struct {
	fetcher upstream.Fetcher
}

// NewPassthrough builds the passthrough handler.
func NewPassthrough(d Deps) *Passthrough {
	return &Passthrough{fetcher: d.Fetcher}
}

// Handle implements Handler.
func (h *Passthrough) Handle(ctx context.Context, req *models.Request) *models.Response {
	resp, err := h.fetcher.Do(ctx, req)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("method", req.Method).Msg("Passthrough request failed")
		return models.JSONResponse(http.StatusBadGateway, map[string]interface{}{
			"success": false,
			"error":   "Bad gateway",
			"message": "Upstream unreachable",
			"offline": true,
		})
	}
	return resp
}
