// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/offlinegate/internal/logging"
	"github.com/tomtom215/offlinegate/internal/validation"
)

// ValidationError is a configuration problem that struct tags cannot express.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks struct tag rules first, then cross-field constraints.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	checks := []func() error{
		c.validateCachePath,
		c.validateCacheNames,
		c.validateBackoff,
		c.validateLogLevel,
		c.validateUpstreamURL,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateCachePath() error {
	if !c.Cache.InMemory && strings.TrimSpace(c.Cache.Path) == "" {
		return &ValidationError{Field: "cache.path", Message: "required unless cache.in_memory is set"}
	}
	return nil
}

// The three store names must differ or activation would keep the wrong data.
func (c *Config) validateCacheNames() error {
	static, maps, queue := c.Cache.StaticCacheName(), c.Cache.MapCacheName(), c.Cache.QueueName
	if static == maps || static == queue || maps == queue {
		return &ValidationError{
			Field:   "cache",
			Message: fmt.Sprintf("static (%s), map (%s) and queue (%s) store names must be distinct", static, maps, queue),
		}
	}
	return nil
}

func (c *Config) validateBackoff() error {
	if c.Sync.MaxBackoff < c.Sync.RetryBackoff {
		return &ValidationError{Field: "sync.max_backoff", Message: "must be >= sync.retry_backoff"}
	}
	return nil
}

func (c *Config) validateLogLevel() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return &ValidationError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", c.Logging.Level)}
	}
	return nil
}

func (c *Config) validateUpstreamURL() error {
	u, err := c.UpstreamURL()
	if err != nil {
		return &ValidationError{Field: "upstream.url", Message: err.Error()}
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return &ValidationError{Field: "upstream.url", Message: "must not contain a query or fragment"}
	}
	return nil
}

// IsValidationError reports whether err came from configuration validation.
func IsValidationError(err error) bool {
	var ve *ValidationError
	var fe validation.Errors
	return errors.As(err, &ve) || errors.As(err, &fe)
}
