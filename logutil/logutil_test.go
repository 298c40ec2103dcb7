package logutil

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestTrace(t *testing.T) {
	var b bytes.Buffer
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	slog.SetDefault(NewLogger(&b, LevelTrace))
	Trace("padding heads", "tp_size", 3)

	out := b.String()
	if !strings.Contains(out, "level=TRACE") {
		t.Errorf("expected TRACE level in %q", out)
	}

	if !strings.Contains(out, "source=logutil_test.go:") {
		t.Errorf("expected base name source in %q", out)
	}

	if !strings.Contains(out, "tp_size=3") {
		t.Errorf("expected attributes in %q", out)
	}
}

func TestTraceDisabled(t *testing.T) {
	var b bytes.Buffer
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	slog.SetDefault(NewLogger(&b, slog.LevelDebug))
	Trace("hidden")

	if b.Len() != 0 {
		t.Errorf("expected no output, got %q", b.String())
	}
}
