package main

import (
	"log/slog"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		raw     string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"ERROR", slog.LevelError, false},
		{"4", slog.Level(4), false},
		{"bogus", 0, true},
	}
	for _, tc := range cases {
		level, err := parseLogLevel(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseLogLevel(%q): expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseLogLevel(%q): %v", tc.raw, err)
			continue
		}
		if level != tc.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tc.raw, level, tc.want)
		}
	}
}

func TestSelectedLogLevelPrecedence(t *testing.T) {
	if level, source := selectedLogLevel("debug", "warn", "error"); level != "debug" || source != "flag" {
		t.Fatalf("expected flag to win, got %q from %q", level, source)
	}
	if level, source := selectedLogLevel("", "warn", "error"); level != "warn" || source != "env" {
		t.Fatalf("expected env to win, got %q from %q", level, source)
	}
	if level, source := selectedLogLevel("", "", "error"); level != "error" || source != "config" {
		t.Fatalf("expected config to win, got %q from %q", level, source)
	}
	if level, source := selectedLogLevel("", "", ""); level != "" || source != "default" {
		t.Fatalf("expected default, got %q from %q", level, source)
	}
}
