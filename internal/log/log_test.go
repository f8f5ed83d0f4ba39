package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriterText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo})

	logger.Info("indexing started", "document_id", "doc-1")

	out := buf.String()
	if !strings.Contains(out, "indexing started") {
		t.Errorf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "document_id=doc-1") {
		t.Errorf("expected attribute in output, got %q", out)
	}
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{JSON: true})

	logger.Info("migrated", "count", 42)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry["msg"] != "migrated" {
		t.Errorf("msg = %v, want migrated", entry["msg"])
	}
	if entry["count"] != float64(42) {
		t.Errorf("count = %v, want 42", entry["count"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelWarn})

	logger.Debug("should not appear")
	logger.Info("should not appear either")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("low-level entries leaked through filter: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("warn entry missing: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := NewNop()
	// Must not panic and must accept any attributes.
	logger.Error("discarded", "key", "value")
}
