// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/offlinegate/internal/api"
)

// adminClient calls the gateway's admin endpoints.
type adminClient struct {
	base   string
	prefix string
	http   *http.Client
}

func newAdminClient(base, prefix string, timeout time.Duration, rt http.RoundTripper) *adminClient {
	return &adminClient{
		base:   strings.TrimRight(base, "/"),
		prefix: "/" + strings.Trim(prefix, "/"),
		http:   &http.Client{Timeout: timeout, Transport: rt},
	}
}

// call sends body (if any) as JSON to the admin path and returns the data
// of the response envelope. A 204 yields nil data.
func (c *adminClient) call(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(raw)
	}

	url := c.base + path
	if !strings.HasPrefix(path, "/health") {
		url = c.base + c.prefix + path
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *api.APIError   `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%s %s: unexpected response (HTTP %d)", method, path, resp.StatusCode)
	}
	if !env.Success {
		if env.Error != nil {
			return env.Data, fmt.Errorf("%s: %s (HTTP %d)", env.Error.Code, env.Error.Message, resp.StatusCode)
		}
		return env.Data, fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}
	return env.Data, nil
}
