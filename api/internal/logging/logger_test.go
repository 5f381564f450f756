package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWithWriterAddsService(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "ecovision-api", "info")
	log.Debug("hidden")
	log.Info("hello", "page", "tips")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if rec["service"] != "ecovision-api" || rec["msg"] != "hello" || rec["page"] != "tips" {
		t.Fatalf("unexpected record %v", rec)
	}
}
