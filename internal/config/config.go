// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds the gateway configuration.
//
// Loading order (Koanf v2):
//  1. Defaults from defaultConfig()
//  2. Optional YAML file (CONFIG_PATH, ./config.yaml, /etc/offlinegate/config.yaml)
//  3. Environment variables (see envMappings)
//
// Config is immutable after Load and safe for concurrent reads.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Cache     CacheConfig     `koanf:"cache"`
	Router    RouterConfig    `koanf:"router"`
	Sync      SyncConfig      `koanf:"sync"`
	Lifecycle LifecycleConfig `koanf:"lifecycle"`
	Notify    NotifyConfig    `koanf:"notify"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig is the listening side of the gateway.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// AdminPrefix mounts the gateway's own endpoints (ws, pending, sync, push).
	AdminPrefix string `koanf:"admin_prefix" validate:"urlpath"`
}

// UpstreamConfig is the origin server and its circuit breaker.
type UpstreamConfig struct {
	URL     string        `koanf:"url" validate:"required,http_url"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// Breaker trips after FailureThreshold consecutive transport failures,
	// stays open for OpenTimeout, then lets HalfOpenRequests probes through.
	FailureThreshold uint32        `koanf:"failure_threshold" validate:"min=1"`
	OpenTimeout      time.Duration `koanf:"open_timeout" validate:"gt=0"`
	HalfOpenRequests uint32        `koanf:"half_open_requests" validate:"min=1"`
	CountInterval    time.Duration `koanf:"count_interval"`

	// ProbeInterval is how often an open origin breaker is probed so that
	// connectivity is noticed even when the page is idle.
	ProbeInterval time.Duration `koanf:"probe_interval" validate:"gt=0"`

	MaxIdleConns int `koanf:"max_idle_conns" validate:"min=0"`
}

// CacheConfig describes the durable store and the cache generations.
type CacheConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`

	StaticPrefix  string `koanf:"static_prefix" validate:"storename"`
	StaticVersion string `koanf:"static_version" validate:"required"`
	MapPrefix     string `koanf:"map_prefix" validate:"storename"`
	MapVersion    string `koanf:"map_version" validate:"required"`
	QueueName     string `koanf:"queue_name" validate:"storename"`

	SyncWrites       bool          `koanf:"sync_writes"`
	GCInterval       time.Duration `koanf:"gc_interval" validate:"gt=0"`
	GCDiscardRatio   float64       `koanf:"gc_discard_ratio" validate:"gt=0,lt=1"`
	MemTableSize     int64         `koanf:"memtable_size" validate:"min=1048576"`
	ValueLogFileSize int64         `koanf:"value_log_file_size" validate:"min=1048576"`
}

// StaticCacheName is the current static cache generation, e.g. "seguridad-app-v9".
func (c CacheConfig) StaticCacheName() string {
	return c.StaticPrefix + "-" + c.StaticVersion
}

// MapCacheName is the current map cache generation, e.g. "map-data-v3".
func (c CacheConfig) MapCacheName() string {
	return c.MapPrefix + "-" + c.MapVersion
}

// RouterConfig holds the patterns used to classify requests.
type RouterConfig struct {
	LocationPaths      []string `koanf:"location_paths" validate:"min=1,dive,urlpath"`
	POIHost            string   `koanf:"poi_host" validate:"required,hostname"`
	POIPath            string   `koanf:"poi_path" validate:"urlpath"`
	GeocodeHost        string   `koanf:"geocode_host" validate:"required,hostname"`
	GeocodePath        string   `koanf:"geocode_path" validate:"urlpath"`
	ThirdPartyPatterns []string `koanf:"third_party_patterns" validate:"dive,required"`
	StaticPrefixes     []string `koanf:"static_prefixes" validate:"min=1,dive,urlpath"`
	APIPrefix          string   `koanf:"api_prefix" validate:"urlpath"`
	OfflinePage        string   `koanf:"offline_page" validate:"urlpath"`
}

// SyncConfig controls replay of queued location updates.
type SyncConfig struct {
	Tag           string        `koanf:"tag" validate:"required"`
	Interval      time.Duration `koanf:"interval" validate:"gt=0"`
	ReplayTimeout time.Duration `koanf:"replay_timeout" validate:"gt=0"`
	RetryBackoff  time.Duration `koanf:"retry_backoff" validate:"gt=0"`
	MaxBackoff    time.Duration `koanf:"max_backoff" validate:"gt=0"`
	MaxAttempts   int           `koanf:"max_attempts" validate:"min=1"`
	MaxPending    int           `koanf:"max_pending" validate:"min=1"`

	// RatePerSecond paces replays; 0 disables pacing.
	RatePerSecond float64 `koanf:"rate_per_second" validate:"gte=0"`
	Burst         int     `koanf:"burst" validate:"min=1"`
}

// LifecycleConfig controls install and activation.
type LifecycleConfig struct {
	Manifest           []string      `koanf:"manifest" validate:"dive,required"`
	InstallConcurrency int           `koanf:"install_concurrency" validate:"min=1,max=64"`
	InstallTimeout     time.Duration `koanf:"install_timeout" validate:"gt=0"`
}

// NotifyConfig holds notification defaults and the window opener.
type NotifyConfig struct {
	DefaultTitle string        `koanf:"default_title" validate:"required"`
	DefaultBody  string        `koanf:"default_body" validate:"required"`
	DefaultTag   string        `koanf:"default_tag" validate:"required"`
	Icon         string        `koanf:"icon"`
	Badge        string        `koanf:"badge"`
	TTL          time.Duration `koanf:"ttl" validate:"gt=0"`

	// OpenCommand is run with the URL appended when no UI context is
	// connected, e.g. "xdg-open". Empty disables opening new windows.
	OpenCommand []string `koanf:"open_command"`
}

// SecurityConfig covers CORS and rate limiting of the admin surface.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_requests" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig is passed to logging.Init.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// UpstreamURL returns the parsed upstream base URL without a trailing slash.
func (c *Config) UpstreamURL() (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(c.Upstream.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	return u, nil
}

// LocationReplayPath is where queued location updates are replayed to.
func (c *Config) LocationReplayPath() string {
	return c.Router.LocationPaths[0]
}
