// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

// Package router decides which strategy resolves an intercepted request.
//
// Routing is a pure function over an ordered rule table; the first rule whose
// predicate matches wins. Specific rules (location writes, the external map
// services) precede the generic API prefix so they are never shadowed by it.
package router

import (
	"net/http"
	"strings"

	"github.com/tomtom215/offlinegate/internal/config"
	"github.com/tomtom215/offlinegate/internal/models"
)

// Strategy names a strategy handler.
type Strategy string

const (
	StrategyLocationQueue Strategy = "location-queue"
	StrategyMapPOI        Strategy = "map-poi"
	StrategyMapGeocode    Strategy = "map-geocode"
	StrategyPassthrough   Strategy = "passthrough"
	StrategyNetworkOnly   Strategy = "network-only"
	StrategyNavigation    Strategy = "navigation"
	StrategyCacheFirst    Strategy = "cache-first"
	StrategyAPIFallback   Strategy = "api-fallback"
	StrategyNetworkFirst  Strategy = "network-first"
)

// Strategies lists every strategy in rule order.
var Strategies = []Strategy{
	StrategyLocationQueue,
	StrategyMapPOI,
	StrategyMapGeocode,
	StrategyPassthrough,
	StrategyNetworkOnly,
	StrategyNavigation,
	StrategyCacheFirst,
	StrategyAPIFallback,
	StrategyNetworkFirst,
}

// Rule is one entry of the routing table.
type Rule struct {
	Name        string   `json:"name"`
	Strategy    Strategy `json:"strategy"`
	Description string   `json:"description"`

	match func(*models.Request) bool
}

// Matches reports whether the rule claims req.
func (r Rule) Matches(req *models.Request) bool {
	return r.match(req)
}

// Decision is the outcome of routing one request.
type Decision struct {
	Strategy Strategy `json:"strategy"`
	Rule     string   `json:"rule"`
	Index    int      `json:"index"`
}

// Router holds the compiled rule table.
type Router struct {
	rules []Rule
}

// New compiles the rule table from configuration.
func New(cfg config.RouterConfig) *Router {
	locationPaths := make(map[string]struct{}, len(cfg.LocationPaths))
	for _, p := range cfg.LocationPaths {
		locationPaths[p] = struct{}{}
	}
	patterns := make([]string, 0, len(cfg.ThirdPartyPatterns))
	for _, p := range cfg.ThirdPartyPatterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			patterns = append(patterns, p)
		}
	}

	rules := []Rule{
		{
			Name:        "location-write",
			Strategy:    StrategyLocationQueue,
			Description: "write to a location-update endpoint: " + strings.Join(cfg.LocationPaths, ", "),
			match: func(req *models.Request) bool {
				if !isWrite(req.Method) || !req.SameOrigin {
					return false
				}
				_, ok := locationPaths[req.PagePath()]
				return ok
			},
		},
		{
			Name:        "poi-service",
			Strategy:    StrategyMapPOI,
			Description: "point-of-interest queries to " + cfg.POIHost + cfg.POIPath,
			match:       externalEndpoint(cfg.POIHost, cfg.POIPath),
		},
		{
			Name:        "geocode-service",
			Strategy:    StrategyMapGeocode,
			Description: "reverse geocoding via " + cfg.GeocodeHost + cfg.GeocodePath,
			match:       externalEndpoint(cfg.GeocodeHost, cfg.GeocodePath),
		},
		{
			Name:        "non-read",
			Strategy:    StrategyPassthrough,
			Description: "any method other than GET",
			match: func(req *models.Request) bool {
				return !req.IsRead()
			},
		},
		{
			Name:        "third-party-asset",
			Strategy:    StrategyNetworkOnly,
			Description: "URL contains one of: " + strings.Join(patterns, ", "),
			match: func(req *models.Request) bool {
				u := strings.ToLower(req.URL.String())
				for _, p := range patterns {
					if strings.Contains(u, p) {
						return true
					}
				}
				return false
			},
		},
		{
			Name:        "navigation",
			Strategy:    StrategyNavigation,
			Description: "top-level page navigation, offline page " + cfg.OfflinePage,
			match: func(req *models.Request) bool {
				return req.Navigate
			},
		},
		{
			Name:        "static-asset",
			Strategy:    StrategyCacheFirst,
			Description: "same-origin path under: " + strings.Join(cfg.StaticPrefixes, ", "),
			match: func(req *models.Request) bool {
				return req.SameOrigin && hasAnyPrefix(req.PagePath(), cfg.StaticPrefixes)
			},
		},
		{
			Name:        "api",
			Strategy:    StrategyAPIFallback,
			Description: "same-origin path under " + cfg.APIPrefix,
			match: func(req *models.Request) bool {
				return req.SameOrigin && cfg.APIPrefix != "" && strings.HasPrefix(req.PagePath(), cfg.APIPrefix)
			},
		},
		{
			Name:        "default",
			Strategy:    StrategyNetworkFirst,
			Description: "everything else",
			match: func(*models.Request) bool {
				return true
			},
		},
	}
	return &Router{rules: rules}
}

// Route selects the strategy for req. It never fails: the last rule matches
// everything.
func (r *Router) Route(req *models.Request) Decision {
	if req.URL == nil {
		return Decision{Strategy: StrategyPassthrough, Rule: "invalid", Index: -1}
	}
	for i, rule := range r.rules {
		if rule.match(req) {
			return Decision{Strategy: rule.Strategy, Rule: rule.Name, Index: i}
		}
	}
	// unreachable with the default rule in place
	return Decision{Strategy: StrategyNetworkFirst, Rule: "default", Index: len(r.rules) - 1}
}

// Rules returns a copy of the rule table in evaluation order.
func (r *Router) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// IsNavigation reports whether a request is a top-level page load.
// Sec-Fetch-Mode is authoritative when present; otherwise a GET whose Accept
// header lists text/html first counts as a navigation.
func IsNavigation(method string, h http.Header) bool {
	if mode := h.Get("Sec-Fetch-Mode"); mode != "" {
		return strings.EqualFold(mode, "navigate")
	}
	if method != http.MethodGet && method != "" {
		return false
	}
	accept := h.Get("Accept")
	if accept == "" {
		return false
	}
	first := strings.TrimSpace(strings.SplitN(accept, ",", 2)[0])
	if i := strings.IndexByte(first, ';'); i >= 0 {
		first = strings.TrimSpace(first[:i])
	}
	return strings.EqualFold(first, "text/html")
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// externalEndpoint matches host (or a subdomain of it) and, when set, an
// exact path.
func externalEndpoint(host, path string) func(*models.Request) bool {
	host = strings.ToLower(host)
	return func(req *models.Request) bool {
		h := strings.ToLower(req.URL.Hostname())
		if h != host && !strings.HasSuffix(h, "."+host) {
			return false
		}
		return path == "" || req.URL.Path == path
	}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
