// Package shell runs commands through the system shell.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"unicode/utf8"
)

// Result is the outcome of a command that started.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes command in cwd. A non-zero exit is reported through
// Result.ExitCode; the error is reserved for commands that could not run.
type Runner interface {
	Run(ctx context.Context, command, cwd string) (Result, error)
}

// Exec runs commands with `bash -c`.
type Exec struct {
	Shell string
	Env   []string
}

// NewExec returns a bash-backed runner.
func NewExec() *Exec {
	return &Exec{Shell: "bash"}
}

func (e *Exec) Run(ctx context.Context, command, cwd string) (Result, error) {
	sh := e.Shell
	if sh == "" {
		sh = "bash"
	}

	cmd := exec.CommandContext(ctx, sh, "-c", command)
	cmd.Dir = cwd
	if len(e.Env) > 0 {
		cmd.Env = append(cmd.Environ(), e.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("running shell command", "command", command, "cwd", cwd)

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr) && ctx.Err() == nil:
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		return res, fmt.Errorf("running %q: %w", command, err)
	}
}

// Tail returns at most n trailing bytes of s, starting on a rune boundary.
func Tail(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}
