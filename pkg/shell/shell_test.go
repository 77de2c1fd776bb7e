package shell

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func skipWithoutBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not in PATH")
	}
}

func TestExec_Run(t *testing.T) {
	skipWithoutBash(t)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("here"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		command    string
		wantExit   int
		wantStdout string
		wantStderr string
	}{
		{"success in cwd", "cat marker.txt", 0, "here", ""},
		{"non-zero exit", "echo oops >&2; exit 3", 3, "", "oops"},
		{"stdout and stderr", "echo out; echo err >&2", 0, "out", "err"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewExec().Run(context.Background(), tt.command, dir)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.ExitCode != tt.wantExit {
				t.Errorf("ExitCode = %d, want %d", res.ExitCode, tt.wantExit)
			}
			if !strings.Contains(res.Stdout, tt.wantStdout) {
				t.Errorf("Stdout = %q, want %q", res.Stdout, tt.wantStdout)
			}
			if !strings.Contains(res.Stderr, tt.wantStderr) {
				t.Errorf("Stderr = %q, want %q", res.Stderr, tt.wantStderr)
			}
		})
	}
}

func TestExec_RunMissingDirectory(t *testing.T) {
	skipWithoutBash(t)
	_, err := NewExec().Run(context.Background(), "true", filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error for missing working directory")
	}
}

func TestTail(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"abcdef", 3, "def"},
		{"abc", 10, "abc"},
		{"abc", 0, "abc"},
		{"", 5, ""},
		{"héllo", 4, "llo"},
		{"héllo", 5, "éllo"},
		{"日本", 4, "本"},
		{"日本", 3, "本"},
		{"error: ✗", 2, ""},
	}
	for _, tt := range tests {
		got := Tail(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("Tail(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("Tail(%q, %d) split a rune: %q", tt.in, tt.n, got)
		}
	}
}
