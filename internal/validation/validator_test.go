// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package validation

import (
	"errors"
	"strings"
	"testing"
)

type sample struct {
	URL      string   `json:"url" validate:"required,url"`
	Prefix   string   `koanf:"prefix" validate:"urlpath"`
	Store    string   `json:"store" validate:"omitempty,storename"`
	Workers  int      `koanf:"workers" validate:"min=1,max=16"`
	Mode     string   `koanf:"mode" validate:"oneof=json console"`
	Patterns []string `koanf:"patterns" validate:"min=1"`
}

func validSample() sample {
	return sample{
		URL:      "https://overpass-api.de/api/interpreter",
		Prefix:   "/static/",
		Store:    "map-data-v3",
		Workers:  4,
		Mode:     "json",
		Patterns: []string{"leaflet"},
	}
}

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}

func TestValidateStruct_Valid(t *testing.T) {
	s := validSample()
	if err := ValidateStruct(&s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateStruct_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(s *sample)
		wantField string
		wantMsg   string
	}{
		{"missing url", func(s *sample) { s.URL = "" }, "url", "url is required"},
		{"relative prefix", func(s *sample) { s.Prefix = "static" }, "prefix", "prefix must be a URL path starting with /"},
		{"control char in store", func(s *sample) { s.Store = "bad\x00name" }, "store", "store must be a printable store name"},
		{"too many workers", func(s *sample) { s.Workers = 99 }, "workers", "workers must be at most 16"},
		{"bad mode", func(s *sample) { s.Mode = "xml" }, "mode", "mode must be one of: json console"},
		{"no patterns", func(s *sample) { s.Patterns = nil }, "patterns", "patterns must be at least 1 entries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSample()
			tt.mutate(&s)

			err := ValidateStruct(&s)
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verrs Errors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected Errors, got %T", err)
			}
			if len(verrs) != 1 {
				t.Fatalf("expected 1 error, got %d: %v", len(verrs), verrs)
			}
			if verrs[0].Field != tt.wantField {
				t.Errorf("Field = %q, want %q", verrs[0].Field, tt.wantField)
			}
			if !strings.HasPrefix(verrs[0].Message, tt.wantMsg) {
				t.Errorf("Message = %q, want prefix %q", verrs[0].Message, tt.wantMsg)
			}
		})
	}
}

func TestErrorsJoinMessages(t *testing.T) {
	s := validSample()
	s.URL = ""
	s.Workers = 0

	err := ValidateStruct(&s)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "url is required") || !strings.Contains(msg, "workers must be at least 1") {
		t.Errorf("combined message = %q", msg)
	}
}
