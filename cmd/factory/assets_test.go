package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandGlobs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.png", "nested/c.png", "notes.txt"} {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	got, err := expandGlobs([]string{
		filepath.Join(dir, "**", "*.png"),
		filepath.Join(dir, "missing.png"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "nested", "c.png"),
		filepath.Join(dir, "missing.png"),
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestHasMeta(t *testing.T) {
	tests := []struct {
		pattern string
		want    bool
	}{
		{"shots/home.png", false},
		{"shots/*.png", true},
		{"shots/**/x.png", true},
		{"shot?.png", true},
		{"shots/{a,b}.png", true},
		{"shots/[ab].png", true},
	}
	for _, tt := range tests {
		if got := hasMeta(tt.pattern); got != tt.want {
			t.Errorf("hasMeta(%q) = %v, want %v", tt.pattern, got, tt.want)
		}
	}
}
