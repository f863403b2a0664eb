// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package models

import (
	"net/http"
	"net/url"
	"strings"
)

// Request is a page request intercepted by the gateway.
//
// URL is always absolute. Same-origin requests carry the upstream origin so
// they can be fetched directly; SameOrigin records that the page addressed the
// gateway itself rather than an external host.
type Request struct {
	Method     string
	URL        *url.URL
	Header     http.Header
	Body       []byte
	Navigate   bool
	SameOrigin bool

	// Path is the path the page asked for, before the origin's base path
	// was joined on. Empty means URL.Path.
	Path string
}

// OriginURL joins a page path onto the upstream origin, keeping any base path
// the origin carries: "/api/x" against "http://host/app" is
// "http://host/app/api/x".
func OriginURL(origin *url.URL, path, rawQuery string) *url.URL {
	u := *origin
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = strings.TrimRight(origin.Path, "/") + path
	u.RawPath = ""
	u.RawQuery = rawQuery
	u.Fragment = ""
	return &u
}

// TrimOriginPath strips the origin's base path from an upstream path. Paths outside
// the base are returned unchanged.
func TrimOriginPath(origin *url.URL, path string) string {
	base := strings.TrimRight(origin.Path, "/")
	if base == "" {
		return path
	}
	if path == base {
		return "/"
	}
	if rest, ok := strings.CutPrefix(path, base); ok && strings.HasPrefix(rest, "/") {
		return rest
	}
	return path
}

// Key returns the cache key for the request.
// Same-origin resources are keyed by path and query so a change of upstream
// host does not orphan the static cache; external resources use the full URL.
func (r *Request) Key() string {
	if r.URL == nil {
		return ""
	}
	if r.SameOrigin {
		if r.Path == "" {
			return r.URL.RequestURI()
		}
		u := url.URL{Path: r.Path, RawQuery: r.URL.RawQuery}
		return u.RequestURI()
	}
	return r.URL.String()
}

// PagePath returns the path the page asked for. Routing and cache keys use it
// so an origin mounted under a base path behaves like one at the root.
func (r *Request) PagePath() string {
	if r.Path != "" {
		return r.Path
	}
	if r.URL == nil {
		return ""
	}
	return r.URL.Path
}

// IsRead reports whether the request uses a safe read method.
func (r *Request) IsRead() bool {
	return r.Method == http.MethodGet || r.Method == ""
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	c := *r
	if r.URL != nil {
		u := *r.URL
		c.URL = &u
	}
	c.Header = r.Header.Clone()
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}
