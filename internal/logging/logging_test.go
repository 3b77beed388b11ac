package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v want %v", in, got, want)
		}
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Fatal("expected default logger")
	}

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Fatal("expected stored logger")
	}
}

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("expected req-1 got %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty request id got %q", got)
	}
}

func TestSpanLogsParentAndOutcome(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, "debug"))

	ctx, outer := StartSpan(ctx, "sync.pass")
	_, inner := StartSpan(ctx, "sync.page")
	inner.End(errors.New("boom"))
	outer.End(nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines got %d: %s", len(lines), buf.String())
	}

	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode first line: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("decode second line: %v", err)
	}

	if first["msg"] != "span failed" || first["error"] != "boom" {
		t.Fatalf("unexpected inner span log: %v", first)
	}
	if first["parent_span_id"] != second["span_id"] {
		t.Fatalf("expected inner span parented to outer: %v / %v", first, second)
	}
	if second["msg"] != "span completed" {
		t.Fatalf("unexpected outer span log: %v", second)
	}
}
