// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

/*
Package config loads and validates the Offlinegate configuration.

Values come from three layers, later layers winning:

  - built-in defaults (defaultConfig)
  - an optional YAML file: CONFIG_PATH, ./config.yaml or /etc/offlinegate/config.yaml
  - environment variables, mapped explicitly in envMappings

Frequently used variables:

	UPSTREAM_URL           origin server base URL (http://127.0.0.1:5000)
	GATEWAY_HOST/PORT      listen address (127.0.0.1:8088)
	CACHE_PATH             BadgerDB directory (/data/offlinegate)
	CACHE_STATIC_VERSION   static cache generation (v9)
	CACHE_MAP_VERSION      map cache generation (v3)
	SYNC_INTERVAL          periodic replay interval (5m)
	SYNC_MAX_ATTEMPTS      attempts before an entry is parked (20)
	INSTALL_MANIFEST       comma-separated list of shell resources
	LOG_LEVEL/LOG_FORMAT   logging (info/json)

Struct tags are checked with go-playground/validator through the validation
package; cross-field rules return *ValidationError.
*/
package config
