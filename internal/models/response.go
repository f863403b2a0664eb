// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package models

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Response sources reported in the X-Offlinegate-Source header.
const (
	SourceNetwork   = "network"
	SourceCache     = "cache"
	SourceSynthetic = "synthetic"
	SourceQueue     = "queue"
)

// SourceHeader tells the page where a response came from.
const SourceHeader = "X-Offlinegate-Source"

// maxBodyBytes bounds how much of an upstream body is buffered.
const maxBodyBytes = 32 << 20

// hopHeaders are connection-scoped and never replayed from a cache.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
}

// Response is a fully buffered HTTP response, either fetched from the network,
// read back from a cache store or synthesized locally.
type Response struct {
	URL      string      `json:"url,omitempty"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header,omitempty"`
	Body     []byte      `json:"body,omitempty"`
	StoredAt time.Time   `json:"stored_at,omitempty"`

	// Source is not persisted; it is set by whoever hands the response out.
	Source string `json:"-"`
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Clone returns a deep copy so a stored response can be handed out safely.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := *r
	c.Header = r.Header.Clone()
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}

// WithSource returns the response tagged with the given source.
func (r *Response) WithSource(source string) *Response {
	r.Source = source
	return r
}

// DecodeJSON unmarshals the body into v.
func (r *Response) DecodeJSON(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: decode response body: %v", ErrParse, err)
	}
	return nil
}

// JSONResponse builds a response with a JSON body.
// A value that cannot be encoded degrades to a 500 with a generic error body.
func JSONResponse(status int, v interface{}) *Response {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"success":false,"message":"response encoding failed"}`)
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return &Response{Status: status, Header: h, Body: body, Source: SourceSynthetic}
}

// TextResponse builds a response with the given content type and body.
func TextResponse(status int, contentType, body string) *Response {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &Response{Status: status, Header: h, Body: []byte(body), Source: SourceSynthetic}
}

// EmptyResponse builds a response with no body.
func EmptyResponse(status int) *Response {
	return &Response{Status: status, Header: http.Header{}, Source: SourceSynthetic}
}

// FromHTTP buffers an *http.Response and closes its body.
func FromHTTP(resp *http.Response, url string) (*Response, error) {
	defer func() {
		_ = resp.Body.Close() // Explicitly ignore error - body fully consumed or abandoned
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}
	h := resp.Header.Clone()
	for _, k := range hopHeaders {
		h.Del(k)
	}
	return &Response{
		URL:    url,
		Status: resp.StatusCode,
		Header: h,
		Body:   body,
		Source: SourceNetwork,
	}, nil
}

// Write sends the response to w.
func (r *Response) Write(w http.ResponseWriter) error {
	dst := w.Header()
	for k, vals := range r.Header {
		for _, v := range vals {
			dst.Add(k, v)
		}
	}
	for _, k := range hopHeaders {
		dst.Del(k)
	}
	if r.Source != "" {
		dst.Set(SourceHeader, r.Source)
	}
	dst.Set("Content-Length", strconv.Itoa(len(r.Body)))
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(r.Body) == 0 {
		return nil
	}
	_, err := w.Write(r.Body)
	return err
}
