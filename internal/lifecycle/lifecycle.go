// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

// Package lifecycle installs and activates a cache generation.
//
// Install pre-caches the static manifest into the generation's static cache
// and registers the recurring sync task; activation deletes every store that
// does not belong to the current generation and claims the UI contexts.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/offlinegate/internal/config"
	"github.com/tomtom215/offlinegate/internal/events"
	"github.com/tomtom215/offlinegate/internal/logging"
	"github.com/tomtom215/offlinegate/internal/metrics"
	"github.com/tomtom215/offlinegate/internal/models"
	"github.com/tomtom215/offlinegate/internal/store"
	"github.com/tomtom215/offlinegate/internal/upstream"
)

// State is the lifecycle state of the current generation.
type State string

const (
	StateNew        State = "new"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActive     State = "active"
	StateRedundant  State = "redundant"
)

func (s State) gauge() float64 {
	switch s {
	case StateInstalling:
		return 0
	case StateInstalled:
		return 1
	case StateActivating:
		return 2
	case StateActive:
		return 3
	case StateRedundant:
		return 4
	default:
		return -1
	}
}

// Registrar registers the recurring background sync task under a tag.
type Registrar interface {
	RegisterPeriodicSync(tag string) error
}

// RegistrarFunc adapts a function to Registrar.
type RegistrarFunc func(tag string) error

// RegisterPeriodicSync calls f.
func (f RegistrarFunc) RegisterPeriodicSync(tag string) error {
	return f(tag)
}

// InstallReport describes the outcome of an install.
type InstallReport struct {
	Generation string        `json:"generation"`
	Requested  int           `json:"requested"`
	Cached     []string      `json:"cached"`
	Failed     []string      `json:"failed"`
	Skipped    []string      `json:"skipped"`
	SyncTask   bool          `json:"sync_task_registered"`
	Duration   time.Duration `json:"duration"`
}

// ActivateReport describes the outcome of an activation.
type ActivateReport struct {
	Generation string   `json:"generation"`
	Kept       []string `json:"kept"`
	Deleted    []string `json:"deleted"`
}

// Status is a snapshot for diagnostics.
type Status struct {
	State      State           `json:"state"`
	Generation string          `json:"generation"`
	Install    *InstallReport  `json:"install,omitempty"`
	Activate   *ActivateReport `json:"activate,omitempty"`
}

// Options wires a Manager.
type Options struct {
	Lifecycle config.LifecycleConfig
	Cache     config.CacheConfig
	// ThirdPartyPatterns are left out of the pre-cache.
	ThirdPartyPatterns []string
	SyncTag            string

	Stores    *store.Manager
	Fetcher   upstream.Fetcher
	Origin    *url.URL
	Events    events.Publisher
	Registrar Registrar
}

// Manager drives one generation through its lifecycle.
type Manager struct {
	opts Options

	mu       sync.RWMutex
	state    State
	install  *InstallReport
	activate *ActivateReport
}

// New returns a manager in StateNew.
func New(opts Options) *Manager {
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	if opts.Lifecycle.InstallConcurrency < 1 {
		opts.Lifecycle.InstallConcurrency = 1
	}
	return &Manager{opts: opts, state: StateNew}
}

// Generation is the name of the static cache of this generation.
func (m *Manager) Generation() string {
	return m.opts.Cache.StaticCacheName()
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Status returns a snapshot of the state and the last reports.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		State:      m.state,
		Generation: m.Generation(),
		Install:    m.install,
		Activate:   m.activate,
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()
	metrics.LifecycleState.Set(s.gauge())
	logging.Info().Str("generation", m.Generation()).Str("from", string(prev)).Str("to", string(s)).Msg("Lifecycle state changed")
}

// Start installs and immediately activates the generation.
func (m *Manager) Start(ctx context.Context) error {
	if _, err := m.Install(ctx); err != nil {
		return err
	}
	_, err := m.Activate(ctx)
	return err
}

// Install pre-caches the manifest. Individual fetch failures are reported,
// not returned; only failing to open the static cache is fatal.
func (m *Manager) Install(ctx context.Context) (*InstallReport, error) {
	m.setState(StateInstalling)
	start := time.Now()
	report := &InstallReport{Generation: m.Generation()}

	static, err := m.opts.Stores.Open(m.Generation())
	if err != nil {
		m.setState(StateRedundant)
		return nil, fmt.Errorf("open static cache %s: %w", m.Generation(), err)
	}

	paths, skipped := m.manifest()
	report.Requested = len(paths)
	report.Skipped = skipped

	ictx, cancel := context.WithTimeout(ctx, m.opts.Lifecycle.InstallTimeout)
	defer cancel()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ictx)
	g.SetLimit(m.opts.Lifecycle.InstallConcurrency)
	for _, p := range paths {
		g.Go(func() error {
			err := m.precache(gctx, static, p)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				metrics.InstallResources.WithLabelValues("failed").Inc()
				logging.Ctx(ctx).Warn().Err(err).Str("path", p).Msg("Failed to pre-cache resource")
				report.Failed = append(report.Failed, p)
				return nil
			}
			metrics.InstallResources.WithLabelValues("cached").Inc()
			report.Cached = append(report.Cached, p)
			return nil
		})
	}
	_ = g.Wait() // workers never fail the group
	sort.Strings(report.Cached)
	sort.Strings(report.Failed)

	if err := m.registerSync(); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Background sync not available")
	} else {
		report.SyncTask = true
	}

	report.Duration = time.Since(start)
	m.mu.Lock()
	m.install = report
	m.mu.Unlock()
	m.setState(StateInstalled)

	logging.Ctx(ctx).Info().
		Str("generation", report.Generation).
		Int("cached", len(report.Cached)).
		Int("failed", len(report.Failed)).
		Int("skipped", len(report.Skipped)).
		Dur("duration", report.Duration).
		Msg("Install complete")
	return report, nil
}

// manifest splits the configured manifest into same-origin paths to fetch
// and entries left out.
func (m *Manager) manifest() (fetch, skipped []string) {
	seen := make(map[string]struct{})
	for _, p := range m.opts.Lifecycle.Manifest {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		if strings.Contains(p, "://") || m.thirdParty(p) {
			skipped = append(skipped, p)
			continue
		}
		fetch = append(fetch, p)
	}
	return fetch, skipped
}

func (m *Manager) thirdParty(p string) bool {
	lp := strings.ToLower(p)
	for _, pat := range m.opts.ThirdPartyPatterns {
		if pat != "" && strings.Contains(lp, strings.ToLower(pat)) {
			return true
		}
	}
	return false
}

func (m *Manager) precache(ctx context.Context, static *store.Store, p string) error {
	ref, err := url.Parse(p)
	if err != nil {
		return fmt.Errorf("%w: manifest entry %q: %v", models.ErrParse, p, err)
	}
	page := "/" + strings.TrimPrefix(ref.Path, "/")

	h := http.Header{}
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	req := &models.Request{
		Method:     http.MethodGet,
		URL:        models.OriginURL(m.opts.Origin, page, ref.RawQuery),
		Header:     h,
		SameOrigin: true,
		Path:       page,
	}

	resp, err := m.opts.Fetcher.Do(ctx, req)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("%s answered %d", p, resp.Status)
	}
	return static.PutResponse(req.Key(), resp)
}

func (m *Manager) registerSync() error {
	if m.opts.Registrar == nil {
		return fmt.Errorf("%w: no periodic sync registrar", models.ErrUnsupported)
	}
	return m.opts.Registrar.RegisterPeriodicSync(m.opts.SyncTag)
}

// Activate deletes stores of other generations and claims the UI contexts.
func (m *Manager) Activate(ctx context.Context) (*ActivateReport, error) {
	m.setState(StateActivating)

	keep := map[string]struct{}{
		m.Generation():              {},
		m.opts.Cache.MapCacheName(): {},
		m.opts.Cache.QueueName:      {},
	}
	names, err := m.opts.Stores.Names()
	if err != nil {
		m.setState(StateRedundant)
		return nil, fmt.Errorf("list cache stores: %w", err)
	}

	report := &ActivateReport{Generation: m.Generation()}
	var errs []error
	for _, name := range names {
		if _, ok := keep[name]; ok {
			report.Kept = append(report.Kept, name)
			continue
		}
		if _, err := m.opts.Stores.Delete(name); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", name, err))
			continue
		}
		metrics.CacheStoresDeleted.Inc()
		logging.Ctx(ctx).Info().Str("store", name).Msg("Deleted obsolete cache store")
		report.Deleted = append(report.Deleted, name)
	}
	if err := errors.Join(errs...); err != nil {
		m.setState(StateRedundant)
		return report, err
	}

	m.mu.Lock()
	m.activate = report
	m.mu.Unlock()
	m.setState(StateActive)

	claim := models.Message{
		Type: models.MsgControllerActivated,
		Data: map[string]string{
			"generation": m.Generation(),
			"map_cache":  m.opts.Cache.MapCacheName(),
		},
	}
	if err := m.opts.Events.Publish(ctx, claim); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to claim UI contexts")
	}
	return report, nil
}
