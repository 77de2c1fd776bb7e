package processing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/api"
)

func writeContextFile(t *testing.T, content string) string {
	t.Helper()
	f := filepath.Join(t.TempDir(), "context.yaml")
	if err := os.WriteFile(f, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestLoadPromptContext(t *testing.T) {
	vars, err := LoadPromptContext(writeContextFile(t, "brand: Acme\nmaxScreens: 4\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vars["brand"] != "Acme" {
		t.Errorf("expected brand=Acme, got %v", vars["brand"])
	}
	if vars["maxScreens"] != 4 {
		t.Errorf("expected maxScreens=4, got %v", vars["maxScreens"])
	}
}

func TestLoadPromptContext_Empty(t *testing.T) {
	vars, err := LoadPromptContext(writeContextFile(t, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vars == nil || len(vars) != 0 {
		t.Errorf("expected empty non-nil map, got %v", vars)
	}
}

func TestLoadPromptContext_Errors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing file", func(*testing.T) string { return "/nonexistent/context.yaml" }},
		{"invalid yaml", func(t *testing.T) string { return writeContextFile(t, "{{invalid") }},
		{"not a mapping", func(t *testing.T) string { return writeContextFile(t, "- a\n- b\n") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadPromptContext(tt.path(t)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestApplyPromptContext(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
		vars   map[string]any
		want   map[string]any
	}{
		{
			name:   "file overrides config",
			config: map[string]any{"brand": "Config", "tone": "formal"},
			vars:   map[string]any{"brand": "File"},
			want:   map[string]any{"brand": "File", "tone": "formal"},
		},
		{
			name: "nil config context",
			vars: map[string]any{"brand": "File"},
			want: map[string]any{"brand": "File"},
		},
		{
			name:   "nil vars",
			config: map[string]any{"tone": "formal"},
			want:   map[string]any{"tone": "formal"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &api.Config{Builder: api.BuilderConfig{Context: tt.config}}
			ApplyPromptContext(cfg, tt.vars)
			if len(cfg.Builder.Context) != len(tt.want) {
				t.Fatalf("got %v, want %v", cfg.Builder.Context, tt.want)
			}
			for k, v := range tt.want {
				if cfg.Builder.Context[k] != v {
					t.Errorf("%s = %v, want %v", k, cfg.Builder.Context[k], v)
				}
			}
		})
	}
}
