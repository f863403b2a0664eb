// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package strategy

import (
	"context"
	"net/http"
	"testing"

	"github.com/tomtom215/offlinegate/internal/models"
)

func seed(t *testing.T, put func(string, *models.Response) error, key, body string) {
	t.Helper()
	resp := models.TextResponse(http.StatusOK, "text/html", body)
	if err := put(key, resp); err != nil {
		t.Fatalf("seed %s: %v", key, err)
	}
}

func TestCacheFirstHitSkipsNetwork(t *testing.T) {
	f := online(http.StatusOK, "text/css", "fresh")
	fx := newFixture(t, f)
	seed(t, fx.static.PutResponse, "/static/css/styles.css", "cached")

	resp := NewCacheFirst(fx.deps).Handle(context.Background(), request(t, http.MethodGet, testOrigin+"/static/css/styles.css", ""))
	if string(resp.Body) != "cached" || resp.Source != models.SourceCache {
		t.Errorf("got %q from %s", resp.Body, resp.Source)
	}
	if f.callCount() != 0 {
		t.Errorf("network called %d times", f.callCount())
	}
}

func TestCacheFirstMissRefills(t *testing.T) {
	fx := newFixture(t, online(http.StatusOK, "text/css", "body{}"))
	h := NewCacheFirst(fx.deps)

	resp := h.Handle(context.Background(), request(t, http.MethodGet, testOrigin+"/static/css/app.css?v=2", ""))
	if string(resp.Body) != "body{}" || resp.Source != models.SourceNetwork {
		t.Fatalf("got %q from %s", resp.Body, resp.Source)
	}
	stored, err := fx.static.GetResponse("/static/css/app.css?v=2")
	if err != nil {
		t.Fatalf("not refilled: %v", err)
	}
	if string(stored.Body) != "body{}" {
		t.Errorf("stored = %q", stored.Body)
	}
}

func TestCacheFirstDoesNotStoreErrors(t *testing.T) {
	fx := newFixture(t, online(http.StatusNotFound, "text/plain", "missing"))

	resp := NewCacheFirst(fx.deps).Handle(context.Background(), request(t, http.MethodGet, testOrigin+"/static/nope.js", ""))
	if resp.Status != http.StatusNotFound {
		t.Errorf("status = %d", resp.Status)
	}
	if _, err := fx.static.GetResponse("/static/nope.js"); err == nil {
		t.Error("404 must not be cached")
	}
}

func TestCacheFirstMissOffline(t *testing.T) {
	fx := newFixture(t, offline())

	resp := NewCacheFirst(fx.deps).Handle(context.Background(), request(t, http.MethodGet, testOrigin+"/static/js/app.js", ""))
	if resp.Status != http.StatusNotFound || len(resp.Body) != 0 {
		t.Errorf("got %d %q, want empty 404", resp.Status, resp.Body)
	}
}

func TestNavigationOnlineRefreshesManifestPage(t *testing.T) {
	fx := newFixture(t, online(http.StatusOK, "text/html", "<h1>ubicacion</h1>"))
	h := NewNavigation(fx.deps)

	resp := h.Handle(context.Background(), request(t, http.MethodGet, testOrigin+"/ubicacion", ""))
	if resp.Source != models.SourceNetwork {
		t.Fatalf("source = %s", resp.Source)
	}
	if _, err := fx.static.GetResponse("/ubicacion"); err != nil {
		t.Errorf("manifest page not refreshed: %v", err)
	}

	h.Handle(context.Background(), request(t, http.MethodGet, testOrigin+"/productos", ""))
	if _, err := fx.static.GetResponse("/productos"); err == nil {
		t.Error("pages outside the manifest must not be cached")
	}
}

func TestNavigationOfflinePage(t *testing.T) {
	fx := newFixture(t, offline())
	seed(t, fx.static.PutResponse, "/offline", "<h1>Sin conexión</h1>")

	resp := NewNavigation(fx.deps).Handle(context.Background(), request(t, http.MethodGet, testOrigin+"/inventario", ""))
	if resp.Status != http.StatusOK || string(resp.Body) != "<h1>Sin conexión</h1>" {
		t.Errorf("got %d %q", resp.Status, resp.Body)
	}
}

func TestNavigationWithoutOfflinePage(t *testing.T) {
	fx := newFixture(t, offline())

	resp := NewNavigation(fx.deps).Handle(context.Background(), request(t, http.MethodGet, testOrigin+"/inventario", ""))
	if resp.Status != http.StatusServiceUnavailable || string(resp.Body) != "Modo offline" {
		t.Errorf("got %d %q", resp.Status, resp.Body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
}

func TestNetworkOnly(t *testing.T) {
	const asset = "https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"

	t.Run("online is not cached", func(t *testing.T) {
		fx := newFixture(t, online(http.StatusOK, "text/javascript", "L={}"))
		resp := NewNetworkOnly(fx.deps).Handle(context.Background(), request(t, http.MethodGet, asset, ""))
		if string(resp.Body) != "L={}" {
			t.Errorf("body = %q", resp.Body)
		}
		if stats, _ := fx.stores.Stats(context.Background()); stats["seguridad-app-v9"] != 0 {
			t.Errorf("static cache written: %v", stats)
		}
	})

	t.Run("offline reads any store", func(t *testing.T) {
		fx := newFixture(t, offline())
		seed(t, fx.maps.PutResponse, asset, "L=cached")
		resp := NewNetworkOnly(fx.deps).Handle(context.Background(), request(t, http.MethodGet, asset, ""))
		if string(resp.Body) != "L=cached" {
			t.Errorf("body = %q", resp.Body)
		}
	})

	t.Run("offline miss", func(t *testing.T) {
		fx := newFixture(t, offline())
		resp := NewNetworkOnly(fx.deps).Handle(context.Background(), request(t, http.MethodGet, asset, ""))
		if resp.Status != http.StatusNotFound || len(resp.Body) != 0 {
			t.Errorf("got %d %q", resp.Status, resp.Body)
		}
	})
}
