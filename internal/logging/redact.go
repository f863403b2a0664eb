// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package logging

import (
	"net/url"
	"strings"

	"github.com/goccy/go-json"
)

const redacted = "[REDACTED]"

// sensitiveKeys are query or payload keys that carry a position or a credential.
var sensitiveKeys = map[string]bool{
	"lat":          true,
	"lon":          true,
	"lng":          true,
	"latitud":      true,
	"longitud":     true,
	"latitude":     true,
	"longitude":    true,
	"data":         true, // Overpass QL embeds coordinates
	"token":        true,
	"auth":         true,
	"password":     true,
	"api_key":      true,
	"access_token": true,
}

// IsSensitiveKey reports whether values under key must not be logged.
func IsSensitiveKey(key string) bool {
	return sensitiveKeys[strings.ToLower(key)]
}

// RedactURL returns raw with sensitive query values replaced.
// Unparseable input is reduced to its path-looking prefix.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexByte(raw, '?'); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	if u.RawQuery == "" {
		return u.String()
	}
	q := u.Query()
	for k := range q {
		if IsSensitiveKey(k) {
			q[k] = []string{redacted}
		}
	}
	u.RawQuery = q.Encode()
	u.User = nil
	return u.String()
}

// RedactPayload returns the top-level keys of a JSON object with sensitive
// values masked, suitable for a log field. Non-objects yield nil.
func RedactPayload(payload []byte) map[string]interface{} {
	var m map[string]interface{}
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil
	}
	for k := range m {
		if IsSensitiveKey(k) {
			m[k] = redacted
		}
	}
	return m
}
