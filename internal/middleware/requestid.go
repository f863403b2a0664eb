// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package middleware

import (
	"net/http"

	"github.com/tomtom215/offlinegate/internal/logging"
)

// RequestIDHeader is honored on the way in and always set on the way out.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen bounds ids taken from the page.
const maxRequestIDLen = 128

// RequestID assigns every request an id, echoes it in the response header and
// stores it in the context for logging.Ctx. The id is not forwarded upstream.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = logging.GenerateRequestID()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := logging.ContextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
