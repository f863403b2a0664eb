// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

// Command gatewayctl inspects and drives a running offlinegate.
//
//	gatewayctl status
//	gatewayctl pending
//	gatewayctl pending clear
//	gatewayctl sync
//	gatewayctl push --title "Alerta" --body "Zona restringida" --tag zona
//	gatewayctl routes
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/offlinegate/internal/models"
	"github.com/tomtom215/offlinegate/internal/notify"
)

type options struct {
	addr    string
	prefix  string
	timeout time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCommand(os.Stdout, nil).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// newRootCommand builds the command tree. rt replaces the HTTP transport
// when non-nil.
func newRootCommand(out io.Writer, rt http.RoundTripper) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "gatewayctl",
		Short:         "Inspect and drive an offlinegate instance",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)

	addr := os.Getenv("OFFLINEGATE_ADDR")
	if addr == "" {
		addr = "http://localhost:8088"
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", addr, "gateway base URL (env OFFLINEGATE_ADDR)")
	root.PersistentFlags().StringVar(&opts.prefix, "prefix", "/_gateway", "admin route prefix")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")

	client := func() *adminClient { return newAdminClient(opts.addr, opts.prefix, opts.timeout, rt) }

	root.AddCommand(
		getCommand("status", "Show lifecycle, breaker and sync status", "/status", client),
		getCommand("health", "Show gateway health", "/health", client),
		getCommand("routes", "List request classes and their strategies", "/routes", client),
		getCommand("notifications", "List notifications currently shown", "/notifications", client),
		newPendingCommand(client),
		newSyncCommand(client),
		newPushCommand(client),
		newClickCommand(client),
		newMessageCommand(client),
	)
	return root
}

// getCommand builds a command that prints the data of a GET endpoint.
func getCommand(use, short, path string, client func() *adminClient) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := client().call(cmd.Context(), "GET", path, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
}

func newPendingCommand(client func() *adminClient) *cobra.Command {
	pending := getCommand("pending", "List queued location updates", "/pending", client)
	pending.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Discard every queued location update",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := client().call(cmd.Context(), "DELETE", "/pending", nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	})
	return pending
}

func newSyncCommand(client func() *adminClient) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued location updates now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := client().call(cmd.Context(), "POST", "/sync", nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
}

func newPushCommand(client func() *adminClient) *cobra.Command {
	var p notify.Push
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Deliver a push notification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := client().call(cmd.Context(), "POST", "/push", p)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().StringVar(&p.Title, "title", "", "notification title")
	cmd.Flags().StringVar(&p.Body, "body", "", "notification body")
	cmd.Flags().StringVar(&p.Tag, "tag", "", "notification tag; a new push with the same tag replaces it")
	return cmd
}

func newClickCommand(client func() *adminClient) *cobra.Command {
	var action string
	cmd := &cobra.Command{
		Use:   "click TAG",
		Short: "Act on a shown notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			click := models.NotificationClick{Tag: args[0], Action: action}
			data, err := client().call(cmd.Context(), "POST", "/notifications/click", click)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().StringVar(&action, "action", notify.ActionOpen, "open or close")
	return cmd
}

func newMessageCommand(client func() *adminClient) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "message TYPE",
		Short: "Send one UI protocol message, e.g. PING or GET_PENDING_LOCATIONS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := models.InboundMessage{Type: args[0], ID: fmt.Sprintf("ctl-%d", time.Now().UnixNano())}
			if data != "" {
				if !json.Valid([]byte(data)) {
					return fmt.Errorf("--data is not valid JSON")
				}
				msg.Data = json.RawMessage(data)
			}
			reply, err := client().call(cmd.Context(), "POST", "/messages", msg)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), reply)
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "message data as JSON")
	return cmd
}

func printJSON(w io.Writer, data json.RawMessage) error {
	if len(data) == 0 {
		_, err := fmt.Fprintln(w, "ok")
		return err
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
