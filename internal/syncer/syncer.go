// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

// Package syncer replays queued location updates against the upstream.
//
// A pass walks the queue oldest first, POSTs each payload to the location
// endpoint and removes the entry only after a 2xx answer. Failures stay
// queued with their attempt count raised; delivery is at-least-once. Passes
// triggered concurrently share one execution.
package syncer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/tomtom215/offlinegate/internal/config"
	"github.com/tomtom215/offlinegate/internal/events"
	"github.com/tomtom215/offlinegate/internal/logging"
	"github.com/tomtom215/offlinegate/internal/metrics"
	"github.com/tomtom215/offlinegate/internal/models"
	"github.com/tomtom215/offlinegate/internal/queue"
	"github.com/tomtom215/offlinegate/internal/upstream"
)

// Trigger names what started a pass.
type Trigger string

const (
	TriggerPeriodic     Trigger = "periodic"
	TriggerConnectivity Trigger = "connectivity"
	TriggerManual       Trigger = "manual"
)

// Result summarizes one pass.
type Result struct {
	RunID     string        `json:"run_id"`
	Trigger   Trigger       `json:"trigger"`
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Message is the SYNC_COMPLETE text for the pass.
func (r *Result) Message() string {
	return fmt.Sprintf("Sincronización completada. %d ubicaciones procesadas.", r.Processed)
}

// completeEvent is the SYNC_COMPLETE payload.
type completeEvent struct {
	RunID     string  `json:"run_id"`
	Processed int     `json:"processed"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	Skipped   int     `json:"skipped"`
	Trigger   Trigger `json:"trigger"`
}

type replayResult int

const (
	replaySuccess replayResult = iota
	replayFailed
	replaySkipped
	replayCanceled
)

// Synchronizer drains the offline queue.
type Synchronizer struct {
	queue   *queue.Queue
	fetcher upstream.Fetcher
	events  events.Publisher
	target  *url.URL
	cfg     config.SyncConfig
	limiter *rate.Limiter
	group   singleflight.Group
	now     func() time.Time

	mu   sync.RWMutex
	last *Result
}

// New returns a synchronizer replaying to target, the absolute URL of the
// location-update endpoint.
func New(cfg config.SyncConfig, q *queue.Queue, f upstream.Fetcher, target *url.URL, pub events.Publisher) *Synchronizer {
	if pub == nil {
		pub = events.Discard
	}
	s := &Synchronizer{
		queue:   q,
		fetcher: f,
		events:  pub,
		target:  target,
		cfg:     cfg,
		now:     time.Now,
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return s
}

// Last returns the most recent finished pass, or nil.
func (s *Synchronizer) Last() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	r := *s.last
	return &r
}

// Sync runs a pass, or joins the one already in flight. The returned error
// is non-nil only when the queue could not be read.
//
// A periodic pass skips entries still in backoff, so a manual or
// connectivity caller that lands on one runs a follow-up pass with its own
// trigger once it finishes.
func (s *Synchronizer) Sync(ctx context.Context, trigger Trigger) (*Result, error) {
	var (
		res *Result
		err error
	)
	for i := 0; i < maxJoinedPasses; i++ {
		res, err = s.join(ctx, trigger)
		if err != nil || res == nil || trigger == TriggerPeriodic || res.Trigger != TriggerPeriodic {
			return res, err
		}
		if ctx.Err() != nil {
			break
		}
		logging.Ctx(ctx).Debug().Str("trigger", string(trigger)).Str("joined_run_id", res.RunID).
			Msg("Joined a periodic pass, running a full pass")
	}
	return res, err
}

// maxJoinedPasses bounds how often Sync retries after landing on a periodic
// pass.
const maxJoinedPasses = 3

func (s *Synchronizer) join(ctx context.Context, trigger Trigger) (*Result, error) {
	v, err, shared := s.group.Do("sync", func() (interface{}, error) {
		// detached so one caller giving up does not cancel the others
		return s.pass(context.WithoutCancel(ctx), trigger)
	})
	if shared {
		logging.Ctx(ctx).Debug().Str("trigger", string(trigger)).Msg("Joined sync pass already in flight")
	}
	res, _ := v.(*Result)
	return res, err
}

// OnConnectivityRestored starts a connectivity pass in the background.
func (s *Synchronizer) OnConnectivityRestored() {
	ctx := logging.ContextWithNewCorrelationID(context.Background())
	logging.Ctx(ctx).Info().Msg("Connectivity restored, syncing pending locations")
	if _, err := s.Sync(ctx, TriggerConnectivity); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Connectivity sync failed")
	}
}

// Run triggers periodic passes every cfg.Interval until ctx is done.
func (s *Synchronizer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	logging.Info().Dur("interval", s.cfg.Interval).Str("tag", s.cfg.Tag).Msg("Periodic sync registered")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pctx := logging.ContextWithNewCorrelationID(ctx)
			if _, err := s.Sync(pctx, TriggerPeriodic); err != nil {
				logging.Ctx(pctx).Error().Err(err).Msg("Periodic sync failed")
			}
		}
	}
}

func (s *Synchronizer) pass(ctx context.Context, trigger Trigger) (*Result, error) {
	res := &Result{
		RunID:     uuid.New().String(),
		Trigger:   trigger,
		StartedAt: s.now().UTC(),
	}
	start := time.Now()
	log := logging.Ctx(ctx).With().Str("run_id", res.RunID).Str("trigger", string(trigger)).Logger()

	pending, err := s.queue.List(ctx)
	if err != nil {
		res.Duration = time.Since(start)
		res.Error = err.Error()
		metrics.RecordSyncPass(string(trigger), res.Duration, 0, 0, 0, err)
		log.Error().Err(err).Msg("Sync aborted: queue unreadable")
		s.remember(res)
		return res, fmt.Errorf("sync %s: %w", trigger, err)
	}
	res.Processed = len(pending)
	if len(pending) > 0 {
		log.Info().Int("pending", len(pending)).Msg("Syncing pending locations")
	}

loop:
	for _, m := range pending {
		switch s.replay(ctx, trigger, m) {
		case replaySuccess:
			res.Succeeded++
		case replayFailed:
			res.Failed++
		case replaySkipped:
			res.Skipped++
		case replayCanceled:
			break loop
		}
	}

	res.Duration = time.Since(start)
	metrics.RecordSyncPass(string(trigger), res.Duration, res.Succeeded, res.Failed, res.Skipped, nil)
	if n, err := s.queue.Len(ctx); err == nil {
		log = log.With().Int("remaining", n).Logger()
	}
	log.Info().
		Int("processed", res.Processed).
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Dur("duration", res.Duration).
		Msg("Sync pass complete")

	done := models.Message{
		Type:    models.MsgSyncComplete,
		Message: res.Message(),
		Data: completeEvent{
			RunID:     res.RunID,
			Processed: res.Processed,
			Succeeded: res.Succeeded,
			Failed:    res.Failed,
			Skipped:   res.Skipped,
			Trigger:   trigger,
		},
	}
	if err := s.events.Publish(ctx, done); err != nil {
		log.Warn().Err(err).Msg("Failed to broadcast sync completion")
	}
	s.remember(res)
	return res, nil
}

func (s *Synchronizer) remember(res *Result) {
	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
}

// due reports whether a periodic pass should replay m now.
func (s *Synchronizer) due(m *models.PendingMutation) bool {
	if s.cfg.MaxAttempts > 0 && m.Attempts >= s.cfg.MaxAttempts {
		return false
	}
	return !s.now().Before(m.NextAttemptAt(s.cfg.RetryBackoff, s.cfg.MaxBackoff))
}

func (s *Synchronizer) replay(ctx context.Context, trigger Trigger, m *models.PendingMutation) replayResult {
	if ctx.Err() != nil {
		return replayCanceled
	}
	if trigger == TriggerPeriodic && !s.due(m) {
		return replaySkipped
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return replayCanceled
		}
	}

	rctx := ctx
	if s.cfg.ReplayTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, s.cfg.ReplayTimeout)
		defer cancel()
	}

	h := http.Header{}
	h.Set("Content-Type", "application/json")
	target := *s.target
	resp, err := s.fetcher.Do(rctx, &models.Request{
		Method:     http.MethodPost,
		URL:        &target,
		Header:     h,
		Body:       m.Payload,
		SameOrigin: true,
	})
	if err == nil && !resp.OK() {
		err = fmt.Errorf("upstream answered %d", resp.Status)
	}
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("id", m.ID).
			Int("attempts", m.Attempts+1).
			Interface("payload", logging.RedactPayload(m.Payload)).
			Msg("Replay failed, keeping location queued")
		if rerr := s.queue.RecordFailure(m.Key, s.now(), err); rerr != nil {
			logging.Ctx(ctx).Error().Err(rerr).Str("id", m.ID).Msg("Failed to record replay attempt")
		}
		return replayFailed
	}

	if err := s.queue.Remove(m.Key); err != nil {
		// the entry will be replayed again: at-least-once
		logging.Ctx(ctx).Error().Err(err).Str("id", m.ID).Msg("Replayed location could not be removed")
	}
	logging.Ctx(ctx).Debug().Str("id", m.ID).Msg("Location synced")
	return replaySuccess
}
