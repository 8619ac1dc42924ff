// Switchboard - Control-Room Operator Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSlogHandler_Handle(t *testing.T) {
	tests := []struct {
		name  string
		level slog.Level
		want  string
	}{
		{"debug", slog.LevelDebug, `"level":"debug"`},
		{"info", slog.LevelInfo, `"level":"info"`},
		{"warn", slog.LevelWarn, `"level":"warn"`},
		{"error", slog.LevelError, `"level":"error"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(NewSlogHandlerWithLogger(zerolog.New(&buf).Level(zerolog.TraceLevel)))
			logger.Log(context.Background(), tt.level, "supervisor event", "service", "gateway")

			out := buf.String()
			if !strings.Contains(out, tt.want) {
				t.Errorf("expected %s in %s", tt.want, out)
			}
			if !strings.Contains(out, `"service":"gateway"`) {
				t.Errorf("expected attribute in %s", out)
			}
		})
	}
}

func TestSlogHandler_GroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewSlogHandlerWithLogger(zerolog.New(&buf)))
	logger = logger.With("layer", "messaging").WithGroup("svc").WithGroup("restart")

	logger.Info("backoff", "delay", 2*time.Second, "count", 3)

	out := buf.String()
	for _, want := range []string{`"svc.restart.layer":"messaging"`, `"svc.restart.count":3`, `"svc.restart.delay"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}

func TestSlogToZerologLevel(t *testing.T) {
	cases := map[slog.Level]zerolog.Level{
		slog.LevelDebug - 4: zerolog.TraceLevel,
		slog.LevelDebug:     zerolog.DebugLevel,
		slog.LevelInfo:      zerolog.InfoLevel,
		slog.LevelWarn:      zerolog.WarnLevel,
		slog.LevelError:     zerolog.ErrorLevel,
	}
	for in, want := range cases {
		if got := slogToZerologLevel(in); got != want {
			t.Errorf("slogToZerologLevel(%v) = %v, want %v", in, got, want)
		}
	}
}
