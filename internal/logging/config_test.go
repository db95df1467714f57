package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevelAliases(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":       zerolog.DebugLevel,
		" WARNING ":   zerolog.WarnLevel,
		"diagnostics": zerolog.TraceLevel,
		"off":         zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := parseLevel(raw)
		if !ok || got != want {
			t.Fatalf("parseLevel(%q)=%v,%v want %v", raw, got, ok, want)
		}
	}
	if _, ok := parseLevel("loud"); ok {
		t.Fatalf("expected unknown level to be ignored")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "false")
	t.Setenv(EnvLogJSON, "true")

	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel {
		t.Fatalf("unexpected level: %v", cfg.Level)
	}
	if cfg.Timestamp {
		t.Fatalf("expected timestamp override to disable timestamps")
	}
	if !cfg.JSON {
		t.Fatalf("expected json output")
	}
}

func TestNewJSONLoggerTagsApp(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: zerolog.InfoLevel, JSON: true, Output: &buf}, "hubctl")
	logger.Info().Str("peer", "tcp://127.0.0.1").Msg("connection established")

	out := buf.String()
	if !strings.Contains(out, `"app":"hubctl"`) || !strings.Contains(out, `"peer":"tcp://127.0.0.1"`) {
		t.Fatalf("unexpected log line: %s", out)
	}
}
