package stages

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/evidence"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/inference"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/runstate"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/shell"
)

// fakeClient answers every request through reply.
type fakeClient struct {
	mu       sync.Mutex
	requests []inference.Request
	reply    func(req inference.Request) (inference.Response, error)
}

func (f *fakeClient) Complete(_ context.Context, req inference.Request) (inference.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.reply(req)
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// fakeRunner records commands and answers through run.
type fakeRunner struct {
	mu       sync.Mutex
	commands []string
	run      func(command string) (shell.Result, error)
}

func (f *fakeRunner) Run(_ context.Context, command, _ string) (shell.Result, error) {
	f.mu.Lock()
	f.commands = append(f.commands, command)
	f.mu.Unlock()
	if f.run == nil {
		return shell.Result{}, nil
	}
	return f.run(command)
}

// memFS is an in-memory fsys.FS.
type memFS struct {
	mu       sync.Mutex
	files    map[string][]byte
	dirs     map[string]bool
	writeErr error
	// failOn fails writes to these cleaned paths only.
	failOn map[string]error
}

func newMemFS() *memFS {
	return &memFS{files: map[string][]byte{}, dirs: map[string]bool{}}
}

func (m *memFS) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[filepath.Clean(path)]
	return ok || m.dirs[filepath.Clean(path)]
}

func (m *memFS) WriteFile(path string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	if err := m.failOn[filepath.Clean(path)]; err != nil {
		return err
	}
	m.files[filepath.Clean(path)] = append([]byte(nil), content...)
	return nil
}

func (m *memFS) MkdirAll(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[filepath.Clean(path)] = true
	return nil
}

func (m *memFS) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, filepath.Clean(path))
	return nil
}

func (m *memFS) paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func newState(t *testing.T, stack string, units ...runstate.WorkUnit) *runstate.RunState {
	t.Helper()
	s := runstate.New()
	s.SetPlan(runstate.Plan{
		Name:  "demo",
		Stack: runstate.Stack{Name: stack},
		Features: []runstate.Feature{
			{ID: "f-auth", Title: "Login"},
			{ID: "f-feed", Title: "Feed", Description: "scrolling list"},
		},
	})
	if err := s.SetWorkUnits(units); err != nil {
		t.Fatal(err)
	}
	return s
}

func unit(id string, status runstate.UnitStatus, files ...string) runstate.WorkUnit {
	return runstate.WorkUnit{ID: id, Description: "build " + id, Status: status, OutputFiles: files}
}

func unitStatus(t *testing.T, s *runstate.RunState, id string) runstate.WorkUnit {
	t.Helper()
	units, _ := s.WorkUnits()
	for _, u := range units {
		if u.ID == id {
			return u
		}
	}
	t.Fatalf("unit %s not found", id)
	return runstate.WorkUnit{}
}

type failingSink struct{}

func (failingSink) Write(context.Context, evidence.Entry) error     { return errors.New("sink down") }
func (failingSink) Load(context.Context) ([]evidence.Entry, error) { return nil, nil }
func (failingSink) Close() error                                   { return nil }

func skipWithoutMagick(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("magick"); err != nil {
		t.Skip("magick not in PATH")
	}
}

func skipWithoutBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not in PATH")
	}
}
