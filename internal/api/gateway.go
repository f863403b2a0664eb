// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/offlinegate/internal/logging"
	"github.com/tomtom215/offlinegate/internal/models"
	"github.com/tomtom215/offlinegate/internal/router"
	"github.com/tomtom215/offlinegate/internal/strategy"
)

// StrategyHeader names the strategy that produced a gateway response.
const StrategyHeader = "X-Offlinegate-Strategy"

// maxRequestBody bounds page request bodies read by the gateway.
const maxRequestBody = 10 << 20

var errBodyTooLarge = errors.New("request body too large")

// Gateway turns page requests into models.Request values and serves them
// through the strategy chosen by the router.
//
// Three request shapes are accepted:
//   - origin-form ("/ubicacion"), served against the upstream origin
//   - absolute-form ("http://overpass-api.de/api/interpreter"), when the page
//     uses the gateway as its HTTP proxy
//   - path-form ("/_gateway/external/https/nominatim.openstreetmap.org/reverse"),
//     for pages that cannot configure a proxy
type Gateway struct {
	origin     *url.URL
	router     *router.Router
	strategies *strategy.Set
}

// NewGateway creates the catch-all page handler.
func NewGateway(origin *url.URL, rt *router.Router, set *strategy.Set) *Gateway {
	return &Gateway{origin: origin, router: rt, strategies: set}
}

// ServeHTTP handles origin-form and absolute-form requests.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var target *url.URL
	if r.URL.IsAbs() {
		target = r.URL
	}
	g.serve(w, r, target)
}

// ServeExternal handles the path-form route
// {prefix}/external/{scheme}/{host}/*.
func (g *Gateway) ServeExternal(w http.ResponseWriter, r *http.Request) {
	scheme := chi.URLParam(r, "scheme")
	host := chi.URLParam(r, "host")
	if (scheme != "http" && scheme != "https") || host == "" {
		NewResponseWriter(w, r).BadRequest("external requests need an http or https scheme and a host")
		return
	}
	target := &url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     "/" + chi.URLParam(r, "*"),
		RawQuery: r.URL.RawQuery,
	}
	g.serve(w, r, target)
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request, target *url.URL) {
	req, err := g.buildRequest(r, target)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Rejected page request")
		http.Error(w, http.StatusText(status), status)
		return
	}

	decision := g.router.Route(req)
	resp := g.strategies.Serve(r.Context(), decision, req)
	g.rewriteLocation(resp)

	w.Header().Set(StrategyHeader, string(decision.Strategy))
	if err := resp.Write(w); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Failed to write gateway response")
	}
}

// buildRequest maps r onto the upstream origin, or onto target when the page
// addressed another host.
func (g *Gateway) buildRequest(r *http.Request, target *url.URL) (*models.Request, error) {
	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		b, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", models.ErrParse, err)
		}
		if len(b) > maxRequestBody {
			return nil, errBodyTooLarge
		}
		body = b
	}

	req := &models.Request{
		Method:   r.Method,
		Header:   r.Header.Clone(),
		Body:     body,
		Navigate: router.IsNavigation(r.Method, r.Header),
	}

	switch {
	case target == nil || strings.EqualFold(target.Host, g.origin.Host):
		path, rawQuery := r.URL.Path, r.URL.RawQuery
		if target != nil {
			// absolute-form already names the upstream path
			path, rawQuery = models.TrimOriginPath(g.origin, target.Path), target.RawQuery
		}
		if path == "" {
			path = "/"
		}
		req.URL = models.OriginURL(g.origin, path, rawQuery)
		req.Path = path
		req.SameOrigin = true
	default:
		u := *target
		u.Fragment = ""
		req.URL = &u
	}

	req.Header.Del("Proxy-Connection")
	req.Header.Del("Proxy-Authorization")
	if fwd := r.Host; fwd != "" && req.SameOrigin {
		req.Header.Set("X-Forwarded-Host", fwd)
	}
	return req, nil
}

// rewriteLocation makes redirects to the origin point back at the gateway.
func (g *Gateway) rewriteLocation(resp *models.Response) {
	if resp.Header == nil {
		return
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return
	}
	u, err := url.Parse(loc)
	if err != nil || !u.IsAbs() || !strings.EqualFold(u.Host, g.origin.Host) {
		return
	}
	page := url.URL{Path: models.TrimOriginPath(g.origin, u.Path), RawQuery: u.RawQuery}
	resp.Header.Set("Location", page.RequestURI())
}
