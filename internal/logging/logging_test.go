package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo)

	logger.WithGroup("zkb").Info("resolved", "key", "pa/5.10", "error", errors.New("boom here"))

	out := buf.String()
	if !strings.HasPrefix(out, "INFO ") {
		t.Fatalf("output %q missing level prefix", out)
	}
	if !strings.Contains(out, "| resolved") {
		t.Fatalf("output %q missing message", out)
	}
	if !strings.Contains(out, "zkb.key=pa/5.10") {
		t.Fatalf("output %q missing grouped key", out)
	}
	if !strings.Contains(out, `zkb.error="boom here"`) {
		t.Fatalf("output %q missing quoted error", out)
	}
}

func TestHandlerLevel(t *testing.T) {
	var buf bytes.Buffer
	var level slog.LevelVar
	level.Set(slog.LevelWarn)

	logger := New(&buf, &level)
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info record written at warn level: %q", buf.String())
	}

	level.Set(slog.LevelDebug)
	logger.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("debug record not written after level change: %q", buf.String())
	}
}
