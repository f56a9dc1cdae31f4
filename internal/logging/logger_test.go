// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %q", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("expected default format 'json', got %q", cfg.Format)
	}
	if !cfg.Timestamp {
		t.Error("expected default timestamp to be true")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestInitWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Info().Str("address", "123 main st").Msg("geocoded")

	out := buf.String()
	if !strings.Contains(out, `"message":"geocoded"`) {
		t.Errorf("expected message in output, got %s", out)
	}
	if !strings.Contains(out, `"address":"123 main st"`) {
		t.Errorf("expected address field in output, got %s", out)
	}
}

func TestCtxAddsIDs(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Output: &buf})
	defer Init(DefaultConfig())

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithSessionID(ctx, "sess-1")
	Ctx(ctx).Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-1"`) || !strings.Contains(out, `"session_id":"sess-1"`) {
		t.Errorf("expected ids in output, got %s", out)
	}
	if RequestIDFromContext(context.Background()) != "" {
		t.Error("expected empty request id for bare context")
	}
}

func TestSlogHandlerBridgesToZerolog(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Output: &buf})
	defer Init(DefaultConfig())

	logger := NewSlogLogger().WithGroup("supervisor")
	logger.Warn("service restarted", slog.String("service", "http-server"), slog.Int("attempt", 2))

	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("expected warn level, got %s", out)
	}
	if !strings.Contains(out, `"supervisor.service":"http-server"`) {
		t.Errorf("expected grouped attr, got %s", out)
	}
	if !strings.Contains(out, `"supervisor.attempt":2`) {
		t.Errorf("expected int attr, got %s", out)
	}
}
