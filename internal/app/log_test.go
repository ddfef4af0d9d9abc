package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestMartHandlerFormat(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(&martHandler{w: &buf, op: "Serve"})

	logger.Info("artifact ingested", "artifact", "a1", "state", "published")

	line := strings.TrimSuffix(buf.String(), "\n")
	parts := strings.Split(line, "\t")
	if len(parts) != 6 {
		t.Fatalf("fields = %d (%q), want 6", len(parts), line)
	}
	if _, err := time.Parse("2006-01-02T15:04:05Z", parts[0]); err != nil {
		t.Errorf("timestamp %q: %v", parts[0], err)
	}
	if parts[1] != "INFO" || parts[2] != "Serve" || parts[3] != "artifact ingested" {
		t.Errorf("header fields = %v", parts[1:4])
	}
	if parts[4] != "artifact=a1" || parts[5] != "state=published" {
		t.Errorf("attr fields = %v", parts[4:])
	}
}

func TestMartHandlerWithAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	base := &martHandler{w: &buf, op: "Serve"}
	logger := slog.New(base.WithAttrs([]slog.Attr{slog.String("request", "r1")}))

	logger.Warn("rate limiter unavailable", "error", "dial refused")

	line := buf.String()
	if !strings.Contains(line, "\trequest=r1\t") {
		t.Errorf("pre-set attr missing: %q", line)
	}
	if !strings.Contains(line, "\terror=dial refused\n") {
		t.Errorf("record attr missing: %q", line)
	}
	if !strings.Contains(line, "\tWARN\t") {
		t.Errorf("level missing: %q", line)
	}

	// The original handler must stay free of the derived attrs.
	buf.Reset()
	slog.New(base).Info("plain")
	if strings.Contains(buf.String(), "request=r1") {
		t.Errorf("WithAttrs mutated the parent handler: %q", buf.String())
	}
}

func TestMartHandlerEnabled(t *testing.T) {
	t.Parallel()
	h := &martHandler{w: &bytes.Buffer{}, op: "Test"}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if !h.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = false", level)
		}
	}
}
