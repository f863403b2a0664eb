// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

// Package upstream performs every network fetch the gateway makes, behind one
// circuit breaker per host.
//
// Only transport failures count against a breaker: any HTTP answer, even a
// 5xx, proves the host is reachable. When the origin's breaker closes again
// after having opened, registered connectivity listeners are notified; the
// synchronizer uses this as its "connectivity restored" trigger.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/offlinegate/internal/config"
	"github.com/tomtom215/offlinegate/internal/logging"
	"github.com/tomtom215/offlinegate/internal/metrics"
	"github.com/tomtom215/offlinegate/internal/models"
)

// hopHeaders are never forwarded upstream.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Host",
	"Content-Length",
}

// Fetcher is the view of the client that strategies and the synchronizer need.
type Fetcher interface {
	Do(ctx context.Context, req *models.Request) (*models.Response, error)
}

// Client fetches requests from the origin and third-party hosts.
type Client struct {
	http    *http.Client
	origin  *url.URL
	cfg     config.UpstreamConfig
	timeout time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*models.Response]

	// listenersMu is separate from mu: OnStateChange runs under the
	// breaker's own lock and must never wait on mu.
	listenersMu sync.Mutex
	listeners   []func()
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New returns a client for the given origin.
func New(cfg config.UpstreamConfig, origin *url.URL, opts ...Option) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.MaxIdleConns > 0 {
		transport.MaxIdleConns = cfg.MaxIdleConns
		transport.MaxIdleConnsPerHost = cfg.MaxIdleConns
	}

	c := &Client{
		http: &http.Client{
			Transport: transport,
			// Redirects are the page's business; hand them back untouched.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		origin:   origin,
		cfg:      cfg,
		timeout:  cfg.Timeout,
		breakers: make(map[string]*gobreaker.CircuitBreaker[*models.Response]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Origin returns the upstream base URL.
func (c *Client) Origin() *url.URL {
	return c.origin
}

// OnConnectivityRestored registers fn to run whenever the origin becomes
// reachable again after its breaker opened. fn runs on its own goroutine.
func (c *Client) OnConnectivityRestored(fn func()) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Client) notifyRestored() {
	c.listenersMu.Lock()
	fns := append([]func(){}, c.listeners...)
	c.listenersMu.Unlock()
	for _, fn := range fns {
		go fn()
	}
}

// breaker returns the breaker for host, creating it on first use.
func (c *Client) breaker(host string) *gobreaker.CircuitBreaker[*models.Response] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[host]; ok {
		return cb
	}

	isOrigin := c.origin != nil && strings.EqualFold(host, c.origin.Host)
	name := "upstream:" + host
	metrics.BreakerState.WithLabelValues(name).Set(0)

	threshold := c.cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[*models.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: c.cfg.HalfOpenRequests,
		Interval:    c.cfg.CountInterval,
		Timeout:     c.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			metrics.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.BreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()

			evt := logging.Info()
			if to == gobreaker.StateOpen {
				evt = logging.Warn()
			}
			evt.Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("Upstream breaker state changed")

			if isOrigin && to == gobreaker.StateClosed {
				// Called under the breaker's lock; listeners run detached.
				c.notifyRestored()
			}
		},
	})
	c.breakers[host] = cb
	return cb
}

// OriginState reports the origin breaker state: closed, half-open or open.
func (c *Client) OriginState() string {
	if c.origin == nil {
		return "closed"
	}
	return stateToString(c.breaker(c.origin.Host).State())
}

// States reports every known breaker.
func (c *Client) States() map[string]string {
	c.mu.Lock()
	snapshot := make(map[string]*gobreaker.CircuitBreaker[*models.Response], len(c.breakers))
	for host, cb := range c.breakers {
		snapshot[host] = cb
	}
	c.mu.Unlock()

	out := make(map[string]string, len(snapshot))
	for host, cb := range snapshot {
		out[host] = stateToString(cb.State())
	}
	return out
}

// Do sends req and buffers the answer. Any HTTP status is a successful
// fetch; transport failures and open breakers yield an error wrapping
// models.ErrNetwork.
func (c *Client) Do(ctx context.Context, req *models.Request) (*models.Response, error) {
	if req.URL == nil || req.URL.Host == "" {
		return nil, fmt.Errorf("%w: request has no absolute URL", models.ErrParse)
	}

	cb := c.breaker(req.URL.Host)
	resp, err := cb.Execute(func() (*models.Response, error) {
		return c.roundTrip(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.UpstreamRequests.WithLabelValues("rejected").Inc()
			return nil, fmt.Errorf("%w: %s: %v", models.ErrNetwork, req.URL.Host, err)
		}
		metrics.UpstreamRequests.WithLabelValues("network_error").Inc()
		return nil, err
	}

	if resp.Status >= 500 {
		metrics.UpstreamRequests.WithLabelValues("http_error").Inc()
	} else {
		metrics.UpstreamRequests.WithLabelValues("ok").Inc()
	}
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, req *models.Request) (*models.Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	hreq, err := http.NewRequestWithContext(ctx, method, req.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", models.ErrParse, err)
	}
	if req.Header != nil {
		hreq.Header = req.Header.Clone()
	}
	for _, h := range hopHeaders {
		hreq.Header.Del(h)
	}

	hresp, err := c.http.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", models.ErrNetwork, method, logging.RedactURL(req.URL.String()), classify(err))
	}
	return models.FromHTTP(hresp, req.URL.String())
}

// classify shortens the common transport errors for logs.
func classify(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("timeout: %w", err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("canceled: %w", err)
	}
	return err
}

// Ping issues a HEAD to the origin root through the breaker.
func (c *Client) Ping(ctx context.Context) error {
	if c.origin == nil {
		return fmt.Errorf("%w: no origin configured", models.ErrUnsupported)
	}
	_, err := c.Do(ctx, &models.Request{
		Method:     http.MethodHead,
		URL:        models.OriginURL(c.origin, "/", ""),
		Header:     http.Header{"Cache-Control": []string{"no-cache"}},
		SameOrigin: true,
	})
	return err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
