// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/offlinegate/config.yaml",
	"/etc/offlinegate/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultManifest is the application shell pre-cached at install.
var DefaultManifest = []string{
	"/",
	"/login",
	"/registro",
	"/olvide-contrasena",
	"/verificar-2fa",
	"/verificar-recuperacion",
	"/verificar-social",
	"/offline",
	"/ubicacion",
	"/static/css/bootstrap.min.css",
	"/static/css/bootstrap-icons.css",
	"/static/css/fonts/bootstrap-icons.woff",
	"/static/css/fonts/bootstrap-icons.woff2",
	"/static/js/bootstrap.bundle.min.js",
	"/static/js/jquery.min.js",
	"/static/css/styles.css",
	"/static/js/app.js",
	"/static/images/logo.png",
	"/favicon.ico",
	"/static/css/leaflet.css",
	"/static/js/leaflet.js",
}

// Default returns the built-in configuration without reading files or the
// environment. Tests in other packages start from it.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8088,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AdminPrefix:     "/_gateway",
		},
		Upstream: UpstreamConfig{
			URL:              "http://127.0.0.1:5000",
			Timeout:          15 * time.Second,
			FailureThreshold: 3,
			OpenTimeout:      30 * time.Second,
			HalfOpenRequests: 1,
			CountInterval:    0, // counts never reset while closed
			ProbeInterval:    15 * time.Second,
			MaxIdleConns:     64,
		},
		Cache: CacheConfig{
			Path:             "/data/offlinegate",
			StaticPrefix:     "seguridad-app",
			StaticVersion:    "v9",
			MapPrefix:        "map-data",
			MapVersion:       "v3",
			QueueName:        "ubicaciones-pendientes",
			SyncWrites:       true, // queued locations must survive power loss
			GCInterval:       10 * time.Minute,
			GCDiscardRatio:   0.5,
			MemTableSize:     16 << 20,
			ValueLogFileSize: 64 << 20,
		},
		Router: RouterConfig{
			LocationPaths: []string{
				"/api/actualizar-ubicacion",
				"/api/location/actualizar-ubicacion",
				"/api/actualizer-ubicacion",
			},
			POIHost:            "overpass-api.de",
			POIPath:            "/api/interpreter",
			GeocodeHost:        "nominatim.openstreetmap.org",
			GeocodePath:        "/reverse",
			ThirdPartyPatterns: []string{"leaflet"},
			StaticPrefixes:     []string{"/static/", "/offline"},
			APIPrefix:          "/api/",
			OfflinePage:        "/offline",
		},
		Sync: SyncConfig{
			Tag:           "sync-ubicaciones",
			Interval:      5 * time.Minute,
			ReplayTimeout: 20 * time.Second,
			RetryBackoff:  30 * time.Second,
			MaxBackoff:    30 * time.Minute,
			MaxAttempts:   20,
			MaxPending:    10000,
			RatePerSecond: 5,
			Burst:         5,
		},
		Lifecycle: LifecycleConfig{
			Manifest:           append([]string(nil), DefaultManifest...),
			InstallConcurrency: 4,
			InstallTimeout:     2 * time.Minute,
		},
		Notify: NotifyConfig{
			DefaultTitle: "Sistema de Seguridad",
			DefaultBody:  "Nueva actualización disponible",
			DefaultTag:   "general-notification",
			Icon:         "/static/images/logo.png",
			Badge:        "/static/images/logo.png",
			TTL:          24 * time.Hour,
		},
		Security: SecurityConfig{
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the optional config file and
// environment variables, then validates it.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file path ("" for none).
func LoadFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// UPSTREAM_URL -> upstream.url, SYNC_MAX_ATTEMPTS -> sync.max_attempts
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths accept comma-separated strings from the environment.
var sliceConfigPaths = []string{
	"router.location_paths",
	"router.third_party_patterns",
	"router.static_prefixes",
	"lifecycle.manifest",
	"notify.open_command",
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		sep := ","
		if path == "notify.open_command" {
			sep = " "
		}
		parts := strings.Split(strVal, sep)
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lowercased environment variable names to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"gateway_host":             "server.host",
	"gateway_port":             "server.port",
	"gateway_read_timeout":     "server.read_timeout",
	"gateway_write_timeout":    "server.write_timeout",
	"gateway_shutdown_timeout": "server.shutdown_timeout",
	"gateway_admin_prefix":     "server.admin_prefix",

	"upstream_url":                "upstream.url",
	"upstream_timeout":            "upstream.timeout",
	"upstream_failure_threshold":  "upstream.failure_threshold",
	"upstream_open_timeout":       "upstream.open_timeout",
	"upstream_half_open_requests": "upstream.half_open_requests",
	"upstream_count_interval":     "upstream.count_interval",
	"upstream_probe_interval":     "upstream.probe_interval",
	"upstream_max_idle_conns":     "upstream.max_idle_conns",

	"cache_path":             "cache.path",
	"cache_in_memory":        "cache.in_memory",
	"cache_static_prefix":    "cache.static_prefix",
	"cache_static_version":   "cache.static_version",
	"cache_map_prefix":       "cache.map_prefix",
	"cache_map_version":      "cache.map_version",
	"cache_queue_name":       "cache.queue_name",
	"cache_sync_writes":      "cache.sync_writes",
	"cache_gc_interval":      "cache.gc_interval",
	"cache_gc_discard_ratio": "cache.gc_discard_ratio",

	"router_location_paths":       "router.location_paths",
	"router_poi_host":             "router.poi_host",
	"router_poi_path":             "router.poi_path",
	"router_geocode_host":         "router.geocode_host",
	"router_geocode_path":         "router.geocode_path",
	"router_third_party_patterns": "router.third_party_patterns",
	"router_static_prefixes":      "router.static_prefixes",
	"router_api_prefix":           "router.api_prefix",
	"router_offline_page":         "router.offline_page",

	"sync_tag":             "sync.tag",
	"sync_interval":        "sync.interval",
	"sync_replay_timeout":  "sync.replay_timeout",
	"sync_retry_backoff":   "sync.retry_backoff",
	"sync_max_backoff":     "sync.max_backoff",
	"sync_max_attempts":    "sync.max_attempts",
	"sync_max_pending":     "sync.max_pending",
	"sync_rate_per_second": "sync.rate_per_second",
	"sync_burst":           "sync.burst",

	"install_manifest":    "lifecycle.manifest",
	"install_concurrency": "lifecycle.install_concurrency",
	"install_timeout":     "lifecycle.install_timeout",

	"notify_default_title": "notify.default_title",
	"notify_default_body":  "notify.default_body",
	"notify_default_tag":   "notify.default_tag",
	"notify_icon":          "notify.icon",
	"notify_badge":         "notify.badge",
	"notify_ttl":           "notify.ttl",
	"notify_open_command":  "notify.open_command",

	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_requests",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
