// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package strategy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/offlinegate/internal/logging"
	"github.com/tomtom215/offlinegate/internal/models"
	"github.com/tomtom215/offlinegate/internal/store"
	"github.com/tomtom215/offlinegate/internal/upstream"
)

// Kind selects the synthetic fallback of a MapData handler.
type Kind int

const (
	KindPOI Kind = iota
	KindGeocode
)

func (k Kind) String() string {
	if k == KindGeocode {
		return "geocode"
	}
	return "poi"
}

const textNoMapData = "Modo offline - sin datos disponibles"

// MapData is network-first for the external map services, falling back to
// the map cache and then to synthetic data.
type MapData struct {
	kind    Kind
	fetcher upstream.Fetcher
	maps    *store.Store
	now     func() time.Time
}

// NewMapData builds a handler for the given service kind.
func NewMapData(d Deps, kind Kind) *MapData {
	d.defaults()
	return &MapData{kind: kind, fetcher: d.Fetcher, maps: d.Maps, now: d.Now}
}

// Handle implements Handler.
func (h *MapData) Handle(ctx context.Context, req *models.Request) *models.Response {
	key := req.URL.String()

	resp, err := fetch(ctx, h.fetcher, req)
	if err == nil && resp.OK() {
		var datum json.RawMessage
		if derr := resp.DecodeJSON(&datum); derr != nil {
			logging.Ctx(ctx).Warn().Err(derr).Str("service", h.kind.String()).Msg("Map answer is not JSON, not cached")
			return resp
		}
		if perr := StoreMapDatum(h.maps, key, datum); perr != nil {
			logging.Ctx(ctx).Warn().Err(perr).Msg("Failed to cache map data")
		}
		return resp
	}

	if datum, lerr := LoadMapDatum(h.maps, key); lerr == nil {
		logging.Ctx(ctx).Debug().Str("service", h.kind.String()).Msg("Serving cached map data")
		return mapDatumResponse(datum)
	} else if !errors.Is(lerr, store.ErrNotFound) {
		logging.Ctx(ctx).Warn().Err(lerr).Msg("Map cache lookup failed")
	}

	if h.kind == KindGeocode {
		q := req.URL.Query()
		return models.JSONResponse(http.StatusOK, GenerateAddress(q.Get("lat"), q.Get("lon")))
	}

	query, ok := ParsePOIQuery(OverpassQuery(req))
	if !ok {
		return models.JSONResponse(http.StatusOK, emptyPOIResult{
			Elements: []POIElement{},
			Offline:  true,
			Error:    textNoMapData,
		})
	}
	logging.Ctx(ctx).Info().Int("radius", query.Radius).Msg("Generating offline points of interest")
	return models.JSONResponse(http.StatusOK, GeneratePOIs(query, h.now()))
}

func mapDatumResponse(datum json.RawMessage) *models.Response {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return &models.Response{Status: http.StatusOK, Header: h, Body: datum, Source: models.SourceCache}
}

// StoreMapDatum saves decoded map data under its full URL.
func StoreMapDatum(s *store.Store, url string, datum json.RawMessage) error {
	if !json.Valid(datum) {
		return fmt.Errorf("%w: map data for %s is not JSON", models.ErrParse, url)
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return s.PutResponse(url, &models.Response{URL: url, Status: http.StatusOK, Header: h, Body: datum})
}

// LoadMapDatum returns map data previously stored for url.
func LoadMapDatum(s *store.Store, url string) (json.RawMessage, error) {
	resp, err := s.GetResponse(url)
	if err != nil {
		return nil, err
	}
	if !json.Valid(resp.Body) {
		return nil, fmt.Errorf("%w: cached map data for %s", models.ErrParse, url)
	}
	return json.RawMessage(resp.Body), nil
}
