// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

// Package notify turns push messages into notifications for the UI contexts
// and handles the user's interaction with them.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"time"

	"github.com/goccy/go-json"
	gocache "github.com/patrickmn/go-cache"

	"github.com/tomtom215/offlinegate/internal/config"
	"github.com/tomtom215/offlinegate/internal/events"
	"github.com/tomtom215/offlinegate/internal/logging"
	"github.com/tomtom215/offlinegate/internal/metrics"
	"github.com/tomtom215/offlinegate/internal/models"
)

// Notification actions.
const (
	ActionOpen  = "open"
	ActionClose = "close"
)

// Action is a button offered on a notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Notification is what UI contexts display.
type Notification struct {
	Title              string    `json:"title"`
	Body               string    `json:"body"`
	Tag                string    `json:"tag"`
	Icon               string    `json:"icon,omitempty"`
	Badge              string    `json:"badge,omitempty"`
	RequireInteraction bool      `json:"requireInteraction"`
	Actions            []Action  `json:"actions"`
	ShownAt            time.Time `json:"shown_at"`
}

// Push is the optional payload of a push message.
type Push struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"`
}

// Windows is the set of connected UI contexts.
type Windows interface {
	// FocusFirst delivers msg to the first window context and reports
	// whether there was one.
	FocusFirst(ctx context.Context, msg models.Message) bool
}

// Opener opens a new window at url.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// CommandOpener runs a command with the URL as its last argument.
type CommandOpener []string

// Open runs the command and waits for it to exit.
func (c CommandOpener) Open(ctx context.Context, url string) error {
	if len(c) == 0 {
		return fmt.Errorf("%w: no open command configured", models.ErrUnsupported)
	}
	args := append(append([]string(nil), c[1:]...), url)
	cmd := exec.CommandContext(ctx, c[0], args...) //nolint:gosec // operator-configured command
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %s: %w: %s", c[0], err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

// Bridge holds the shown notifications, keyed by tag.
type Bridge struct {
	cfg     config.NotifyConfig
	shown   *gocache.Cache
	events  events.Publisher
	windows Windows
	opener  Opener
	openURL string
	now     func() time.Time
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithWindows sets the window contexts focused on click.
func WithWindows(w Windows) Option {
	return func(b *Bridge) { b.windows = w }
}

// WithOpener overrides the opener built from the configured command.
func WithOpener(o Opener) Option {
	return func(b *Bridge) { b.opener = o }
}

// New returns a bridge publishing to pub. openURL is the gateway root a new
// window is opened at.
func New(cfg config.NotifyConfig, pub events.Publisher, openURL string, opts ...Option) *Bridge {
	if pub == nil {
		pub = events.Discard
	}
	b := &Bridge{
		cfg:     cfg,
		shown:   gocache.New(cfg.TTL, 0), // no janitor goroutine; Shown sweeps
		events:  pub,
		opener:  CommandOpener(cfg.OpenCommand),
		openURL: openURL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// HandlePush shows the notification described by raw. An empty body is a
// no-op and returns nil, nil.
func (b *Bridge) HandlePush(ctx context.Context, raw []byte) (*Notification, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var p Push
	if err := json.Unmarshal(raw, &p); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Ignoring malformed push payload")
		return nil, fmt.Errorf("%w: push payload: %v", models.ErrParse, err)
	}
	return b.Show(ctx, p)
}

// Show displays p with defaults for missing fields. A notification with the
// same tag replaces the previous one.
func (b *Bridge) Show(ctx context.Context, p Push) (*Notification, error) {
	n := &Notification{
		Title:              p.Title,
		Body:               p.Body,
		Tag:                p.Tag,
		Icon:               b.cfg.Icon,
		Badge:              b.cfg.Badge,
		RequireInteraction: true,
		Actions: []Action{
			{Action: ActionOpen, Title: "Abrir aplicación"},
			{Action: ActionClose, Title: "Cerrar"},
		},
		ShownAt: b.now().UTC(),
	}
	if n.Title == "" {
		n.Title = b.cfg.DefaultTitle
	}
	if n.Body == "" {
		n.Body = b.cfg.DefaultBody
	}
	if n.Tag == "" {
		n.Tag = b.cfg.DefaultTag
	}

	b.shown.SetDefault(n.Tag, n)
	metrics.Notifications.WithLabelValues("shown").Inc()
	logging.Ctx(ctx).Info().Str("tag", n.Tag).Str("title", n.Title).Msg("Showing notification")

	if err := b.events.Publish(ctx, models.Message{Type: models.MsgNotification, Data: n}); err != nil {
		return n, fmt.Errorf("publish notification: %w", err)
	}
	return n, nil
}

// Click handles an interaction with the notification tagged tag. The
// notification is dismissed in every case. A tag the bridge no longer tracks,
// because it expired or was shown before a restart, is still dismissed and
// still focuses or opens the app.
func (b *Bridge) Click(ctx context.Context, tag, action string) error {
	if _, ok := b.shown.Get(tag); ok {
		b.shown.Delete(tag)
	} else {
		metrics.Notifications.WithLabelValues("click_unknown").Inc()
		logging.Ctx(ctx).Debug().Str("tag", tag).Msg("Click on a notification no longer tracked")
	}

	closed := models.Message{Type: models.MsgNotificationClosed, Data: map[string]string{"tag": tag, "action": action}}
	if err := b.events.Publish(ctx, closed); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("tag", tag).Msg("Failed to publish notification close")
	}

	if action == ActionClose {
		metrics.Notifications.WithLabelValues("click_close").Inc()
		return nil
	}
	metrics.Notifications.WithLabelValues("click_open").Inc()

	focus := models.Message{Type: models.MsgFocus, Data: map[string]string{"url": "/", "tag": tag}}
	if b.windows != nil && b.windows.FocusFirst(ctx, focus) {
		return nil
	}

	if err := b.opener.Open(ctx, b.openURL); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("url", b.openURL).Msg("Could not open a new window")
		return err
	}
	metrics.Notifications.WithLabelValues("opened_window").Inc()
	return nil
}

// Shown returns the live notifications ordered by display time.
func (b *Bridge) Shown() []*Notification {
	b.shown.DeleteExpired()
	items := b.shown.Items()
	out := make([]*Notification, 0, len(items))
	for _, it := range items {
		if n, ok := it.Object.(*Notification); ok {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShownAt.Before(out[j].ShownAt) })
	return out
}
