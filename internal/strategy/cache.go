// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package strategy

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/offlinegate/internal/logging"
	"github.com/tomtom215/offlinegate/internal/models"
	"github.com/tomtom215/offlinegate/internal/store"
	"github.com/tomtom215/offlinegate/internal/upstream"
)

// CacheFirst answers static assets from the static cache and fills the
// cache from the network on a miss.
type CacheFirst struct {
	fetcher upstream.Fetcher
	static  *store.Store
}

// NewCacheFirst builds the cache-first handler.
func NewCacheFirst(d Deps) *CacheFirst {
	return &CacheFirst{fetcher: d.Fetcher, static: d.Static}
}

// Handle implements Handler.
func (h *CacheFirst) Handle(ctx context.Context, req *models.Request) *models.Response {
	key := req.Key()
	cached, err := h.static.GetResponse(key)
	if err == nil {
		return cached
	}
	if !errors.Is(err, store.ErrNotFound) {
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Static cache lookup failed")
	}

	resp, err := fetch(ctx, h.fetcher, req)
	if err != nil {
		return models.EmptyResponse(http.StatusNotFound)
	}
	if resp.OK() {
		if err := h.static.PutResponse(key, resp); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Failed to refill static cache")
		}
	}
	return resp
}

// Navigation is network-first for page loads with the offline page as the
// fallback.
type Navigation struct {
	fetcher     upstream.Fetcher
	static      *store.Store
	stores      *store.Manager
	offlinePage string
	manifest    map[string]struct{}
}

// NewNavigation builds the navigation handler.
func NewNavigation(d Deps) *Navigation {
	d.defaults()
	manifest := make(map[string]struct{}, len(d.Manifest))
	for _, p := range d.Manifest {
		manifest[p] = struct{}{}
	}
	return &Navigation{
		fetcher:     d.Fetcher,
		static:      d.Static,
		stores:      d.Stores,
		offlinePage: d.OfflinePage,
		manifest:    manifest,
	}
}

// Handle implements Handler.
func (h *Navigation) Handle(ctx context.Context, req *models.Request) *models.Response {
	resp, err := fetch(ctx, h.fetcher, req)
	if err == nil {
		if _, ok := h.manifest[req.Key()]; ok && resp.OK() && h.static != nil {
			if perr := h.static.PutResponse(req.Key(), resp); perr != nil {
				logging.Ctx(ctx).Warn().Err(perr).Msg("Failed to refresh cached page")
			}
		}
		return resp
	}

	if h.offlinePage != "" {
		if page := h.lookup(ctx, h.offlinePage); page != nil {
			logging.Ctx(ctx).Info().Str("page", h.offlinePage).Msg("Serving offline page")
			return page
		}
	}
	return models.TextResponse(http.StatusServiceUnavailable, "text/html; charset=utf-8", "Modo offline")
}

func (h *Navigation) lookup(ctx context.Context, key string) *models.Response {
	if h.stores != nil {
		resp, _, err := h.stores.Match(ctx, key)
		if err == nil {
			return resp
		}
		if !errors.Is(err, store.ErrNotFound) {
			logging.Ctx(ctx).Warn().Err(err).Msg("Offline page lookup failed")
		}
		return nil
	}
	if h.static != nil {
		if resp, err := h.static.GetResponse(key); err == nil {
			return resp
		}
	}
	return nil
}

// NetworkOnly fetches third-party assets without caching them; on failure it
// still serves any copy some store happens to hold.
type NetworkOnly struct {
	fetcher upstream.Fetcher
	stores  *store.Manager
}

// NewNetworkOnly builds the network-only handler.
func NewNetworkOnly(d Deps) *NetworkOnly {
	return &NetworkOnly{fetcher: d.Fetcher, stores: d.Stores}
}

// Handle implements Handler.
func (h *NetworkOnly) Handle(ctx context.Context, req *models.Request) *models.Response {
	resp, err := fetch(ctx, h.fetcher, req)
	if err == nil {
		return resp
	}
	if cached := matchAny(ctx, h.stores, req.Key()); cached != nil {
		return cached
	}
	return models.EmptyResponse(http.StatusNotFound)
}

// matchAny searches every store for key.
func matchAny(ctx context.Context, stores *store.Manager, key string) *models.Response {
	if stores == nil {
		return nil
	}
	resp, _, err := stores.Match(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Cache lookup failed")
		}
		return nil
	}
	return resp
}
