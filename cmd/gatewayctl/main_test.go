// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package main

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/jarcoal/httpmock"
)

const testAddr = "http://gateway.test:8088"

func run(t *testing.T, mock *httpmock.MockTransport, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(&out, mock)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--addr", testAddr}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func envelope(t *testing.T, status int, success bool, data interface{}) httpmock.Responder {
	t.Helper()
	body := map[string]interface{}{"success": success, "data": data}
	if !success {
		body["error"] = map[string]string{"code": "NOT_FOUND", "message": "unknown notification tag"}
	}
	return httpmock.NewJsonResponderOrPanic(status, body)
}

func TestStatusCommand(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("GET", testAddr+"/_gateway/status",
		envelope(t, http.StatusOK, true, map[string]interface{}{"pending": 2}))

	out, err := run(t, mock, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %q", out)
	}
	if got["pending"] != float64(2) {
		t.Errorf("output = %v", got)
	}
}

func TestHealthCommandUsesRootPath(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("GET", testAddr+"/health",
		envelope(t, http.StatusOK, true, map[string]string{"status": "healthy"}))

	if out, err := run(t, mock, "health"); err != nil || !strings.Contains(out, "healthy") {
		t.Fatalf("health: out=%q err=%v", out, err)
	}
}

func TestPendingClearCommand(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("DELETE", testAddr+"/_gateway/pending",
		envelope(t, http.StatusOK, true, map[string]int{"cleared": 3}))

	out, err := run(t, mock, "pending", "clear")
	if err != nil {
		t.Fatalf("pending clear: %v", err)
	}
	if !strings.Contains(out, `"cleared": 3`) {
		t.Errorf("output = %q", out)
	}
}

func TestPushCommandSendsFlags(t *testing.T) {
	mock := httpmock.NewMockTransport()
	var sent map[string]string
	mock.RegisterResponder("POST", testAddr+"/_gateway/push", func(req *http.Request) (*http.Response, error) {
		if err := json.NewDecoder(req.Body).Decode(&sent); err != nil {
			return nil, err
		}
		return httpmock.NewJsonResponse(http.StatusAccepted, map[string]interface{}{"success": true, "data": sent})
	})

	if _, err := run(t, mock, "push", "--title", "Alerta", "--tag", "zona"); err != nil {
		t.Fatalf("push: %v", err)
	}
	if sent["title"] != "Alerta" || sent["tag"] != "zona" {
		t.Errorf("sent = %v", sent)
	}
}

func TestClickCommandReportsAPIError(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("POST", testAddr+"/_gateway/notifications/click",
		envelope(t, http.StatusNotFound, false, nil))

	_, err := run(t, mock, "click", "nada")
	if err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("err = %v", err)
	}
}

func TestMessageCommand(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("POST", testAddr+"/_gateway/messages", func(req *http.Request) (*http.Response, error) {
		var msg map[string]interface{}
		if err := json.NewDecoder(req.Body).Decode(&msg); err != nil {
			return nil, err
		}
		return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"type": "PONG", "id": msg["id"]},
		})
	})

	out, err := run(t, mock, "message", "PING")
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if !strings.Contains(out, `"PONG"`) {
		t.Errorf("output = %q", out)
	}

	if _, err := run(t, mock, "message", "CACHE_MAP_DATA", "--data", "{nope"); err == nil {
		t.Error("invalid --data accepted")
	}
}

func TestNoContentPrintsOK(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("POST", testAddr+"/_gateway/messages", httpmock.NewStringResponder(http.StatusNoContent, ""))

	out, err := run(t, mock, "message", "NOTIFICATION_CLICK", "--data", `{"tag":"zona"}`)
	if err != nil || strings.TrimSpace(out) != "ok" {
		t.Errorf("out=%q err=%v", out, err)
	}
}
