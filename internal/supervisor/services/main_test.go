// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package services

import (
	"testing"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"github.com/tomtom215/offlinegate/internal/logging"
)

func TestMain(m *testing.M) {
	logging.SetLogger(zerolog.Nop())
	goleak.VerifyTestMain(m)
}
