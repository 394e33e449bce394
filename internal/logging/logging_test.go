package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestInit_ComponentTag(t *testing.T) {
	var buf bytes.Buffer
	Init(slog.LevelDebug, "text", &buf)

	New("evaluate").Info("scoring started")

	got := buf.String()
	for _, want := range []string{"component=evaluate", "scoring started"} {
		if !strings.Contains(got, want) {
			t.Errorf("log line missing %q:\n%s", want, got)
		}
	}
}

func TestInit_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init(slog.LevelInfo, "json", &buf)

	New("converge").Info("step done", "iteration", 3)

	got := buf.String()
	for _, want := range []string{`"level":"INFO"`, `"component":"converge"`, `"iteration":3`} {
		if !strings.Contains(got, want) {
			t.Errorf("JSON line missing %q:\n%s", want, got)
		}
	}
}

func TestInit_LevelGating(t *testing.T) {
	var buf bytes.Buffer
	Init(slog.LevelWarn, "text", &buf)

	log := New("render")
	log.Info("capture settled")
	log.Warn("capture retried")

	got := buf.String()
	if strings.Contains(got, "capture settled") {
		t.Error("info line leaked through warn-level handler")
	}
	if !strings.Contains(got, "capture retried") {
		t.Errorf("warn line dropped:\n%s", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"nonsense", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
