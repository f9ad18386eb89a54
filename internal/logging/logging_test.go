package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"TrustRegistry/internal/config"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for value, want := range cases {
		if got := ParseLevel(value); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", value, got, want)
		}
	}
}

func TestNewWithWriterJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	logger.Debug("hidden")
	logger.Info("list operator reconciled", "territory", "AT")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %q", buf.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("record is not json: %v", err)
	}
	if record["msg"] != "list operator reconciled" || record["territory"] != "AT" || record["service"] != "trustregistry" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestNewWithWriterTextForUnknownFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewWithWriter(config.LoggingConfig{Level: "nonsense", Format: "xml"}, &buf).Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("unknown level must not enable debug, got %q", buf.String())
	}

	NewWithWriter(config.LoggingConfig{Format: "xml"}, &buf).Info("ready")
	if !strings.Contains(buf.String(), "msg=ready") {
		t.Fatalf("expected a text record, got %q", buf.String())
	}
}
