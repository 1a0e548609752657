package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLogger_PrettyPlain(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := newLogger(&buf, LogConfig{Level: "info", Format: "pretty"}, false)
	log.With("component", "test").WithGroup("req").Info("http.request",
		"method", "POST",
		"status", 201,
		"duration_ms", 12,
		"note", "has space",
	)
	log.Debug("hidden")

	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected no ANSI codes without color: %q", out)
	}
	for _, want := range []string{
		"lvl=[INFO]",
		"msg=http.request",
		"component=test",
		"req.method=POST",
		"req.status=201",
		"req.duration=12ms",
		`req.note="has space"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record leaked at info level: %q", out)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := newLogger(&buf, LogConfig{Level: "debug", Format: "json"}, false)
	log.Debug("hello", "k", "v")

	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Fatalf("expected JSON output, got %q", buf.String())
	}
}
