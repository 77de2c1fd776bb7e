package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewHandler(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		level   string
		wantErr string
	}{
		{"json at info", JSON, "info", ""},
		{"text at debug", Text, "debug", ""},
		{"tint at warn", Tint, "warn", ""},
		{"auto at error", Auto, "error", ""},
		{"bad level", JSON, "verbose", "could not parse log level"},
		{"bad type", "xml", "info", "unknown logging type: xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h, err := NewHandler(&buf, tt.typ, tt.level)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("NewHandler(%q, %q) error = %v, want %q", tt.typ, tt.level, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			slog.New(h).Error("stage failed", "worker", "assembler")
			if !strings.Contains(buf.String(), "assembler") {
				t.Errorf("handler output missing attribute: %q", buf.String())
			}
		})
	}
}

func TestNewHandler_SourceOnlyAtDebug(t *testing.T) {
	for level, want := range map[string]bool{"debug": true, "info": false} {
		var buf bytes.Buffer
		h, err := NewHandler(&buf, JSON, level)
		if err != nil {
			t.Fatal(err)
		}
		slog.New(h).Warn("check")
		if got := strings.Contains(buf.String(), `"source"`); got != want {
			t.Errorf("level %s: source present = %v, want %v", level, got, want)
		}
	}
}

func TestNewHandler_AutoFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	h, err := NewHandler(&buf, Auto, "info")
	if err != nil {
		t.Fatal(err)
	}
	slog.New(h).Info("dispatch settled", "worker", "builder")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected a JSON line for a non-terminal writer, got %q", buf.String())
	}
	if line["worker"] != "builder" || line["msg"] != "dispatch settled" {
		t.Errorf("line = %v", line)
	}
}

func TestNewHandler_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	h, err := NewHandler(&buf, Text, "warn")
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(h)
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("output = %q", out)
	}
}
