package stages

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/api"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/evidence"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/inference"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/runstate"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/workers"
)

const projectDir = "/work/app"

func newTestBuilder(t *testing.T, client inference.Client, fs *memFS) *Builder {
	t.Helper()
	b, err := NewBuilder(client, fs, projectDir, api.BuilderConfig{
		SystemPrompt: "sys",
		MaxTokens:    1000,
		Temperature:  0.2,
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// replyByUnit answers with the response registered for the unit id found in the prompt.
func replyByUnit(responses map[string]string) func(inference.Request) (inference.Response, error) {
	return func(req inference.Request) (inference.Response, error) {
		for id, text := range responses {
			if strings.Contains(req.Prompt, "Work unit: "+id+"\n") {
				return inference.Response{Text: text, Model: "fake"}, nil
			}
		}
		return inference.Response{}, errors.New("no scripted response")
	}
}

func TestBuilder_NoPendingUnits(t *testing.T) {
	client := &fakeClient{reply: replyByUnit(nil)}
	state := newState(t, "vite-react", unit("u1", runstate.UnitDone, "a.ts"), unit("u2", runstate.UnitFailed))
	chain := evidence.NewChain()

	res := newTestBuilder(t, client, newMemFS()).Execute(context.Background(), workers.Task{}, state, chain)

	if res.Status != workers.StatusDone {
		t.Fatalf("Status = %s, reason %q", res.Status, res.Reason)
	}
	if res.Artifacts == nil || len(res.Artifacts) != 0 {
		t.Errorf("Artifacts = %v, want empty list", res.Artifacts)
	}
	if n := chain.CountType(evidence.TypeLLMCall); n != 0 {
		t.Errorf("llm_call entries = %d, want 0", n)
	}
	if client.calls() != 0 {
		t.Errorf("inference calls = %d, want 0", client.calls())
	}
}

func TestBuilder_BuildsPendingUnits(t *testing.T) {
	client := &fakeClient{reply: replyByUnit(map[string]string{
		"u1": "Sure, here you go:\n```json\n{\"files\": [{\"path\": \"src/a.ts\", \"content\": \"export const a = 1\"}]}\n```",
		"u2": `{"files": [{"path": "src/b.ts", "content": "b"}, {"path": "./src/c.ts", "content": ""}]}`,
	})}
	fs := newMemFS()
	state := newState(t, "vite-react",
		unit("u1", runstate.UnitPending),
		unit("u0", runstate.UnitDone, "src/zero.ts"),
		unit("u2", runstate.UnitPending),
	)
	chain := evidence.NewChain()

	res := newTestBuilder(t, client, fs).Execute(context.Background(), workers.Task{}, state, chain)

	if res.Status != workers.StatusDone {
		t.Fatalf("Status = %s, reason %q", res.Status, res.Reason)
	}
	wantFiles := []string{
		filepath.Join(projectDir, "src/a.ts"),
		filepath.Join(projectDir, "src/b.ts"),
		filepath.Join(projectDir, "src/c.ts"),
	}
	if got := fs.paths(); strings.Join(got, ",") != strings.Join(wantFiles, ",") {
		t.Errorf("written files = %v, want %v", got, wantFiles)
	}
	if len(res.Artifacts) != 3 || res.Artifacts[0].Name != "src/a.ts" {
		t.Errorf("Artifacts = %+v", res.Artifacts)
	}

	u2 := unitStatus(t, state, "u2")
	if u2.Status != runstate.UnitDone || strings.Join(u2.OutputFiles, ",") != "src/b.ts,src/c.ts" {
		t.Errorf("u2 = %+v", u2)
	}
	if n := chain.CountType(evidence.TypeLLMCall); n != 2 {
		t.Errorf("llm_call entries = %d, want 2", n)
	}
	if client.calls() != 2 {
		t.Errorf("inference calls = %d, want 2 (done unit must be skipped)", client.calls())
	}
}

func TestBuilder_MalformedResponseFailsOnlyThatUnit(t *testing.T) {
	client := &fakeClient{reply: replyByUnit(map[string]string{
		"good": `{"files": [{"path": "ok.ts", "content": "ok"}]}`,
		"bad":  `{"files": [{"path": "half.ts", "content": "x"}, {"path": "", "content": "y"}]}`,
	})}
	fs := newMemFS()
	state := newState(t, "next", unit("bad", runstate.UnitPending), unit("good", runstate.UnitPending))
	chain := evidence.NewChain()

	res := newTestBuilder(t, client, fs).Execute(context.Background(), workers.Task{}, state, chain)

	if res.Status != workers.StatusFailed {
		t.Fatalf("Status = %s, want failed", res.Status)
	}
	if !strings.Contains(res.Reason, "unit bad") || strings.Contains(res.Reason, "good") {
		t.Errorf("Reason = %q, want only the bad unit named", res.Reason)
	}
	if fs.Exists(filepath.Join(projectDir, "half.ts")) {
		t.Error("no file from a malformed response may be written")
	}
	if !fs.Exists(filepath.Join(projectDir, "ok.ts")) {
		t.Error("the well-formed unit should still be applied")
	}
	bad := unitStatus(t, state, "bad")
	if bad.Status != runstate.UnitFailed || len(bad.OutputFiles) != 0 {
		t.Errorf("bad unit = %+v", bad)
	}
	if unitStatus(t, state, "good").Status != runstate.UnitDone {
		t.Error("good unit should be done")
	}
	if n := chain.CountType(evidence.TypeLLMCall); n != 2 {
		t.Errorf("llm_call entries = %d, want 2 (malformed call must still be recorded)", n)
	}
}

func TestBuilder_WriteFailureRemovesCreatedFiles(t *testing.T) {
	client := &fakeClient{reply: replyByUnit(map[string]string{
		"u1": `{"files": [{"path": "src/keep.ts", "content": "k"}, {"path": "src/new.ts", "content": "n"}, {"path": "src/locked.ts", "content": "l"}]}`,
	})}
	fs := newMemFS()
	keep := filepath.Join(projectDir, "src/keep.ts")
	if err := fs.WriteFile(keep, []byte("old")); err != nil {
		t.Fatal(err)
	}
	fs.failOn = map[string]error{filepath.Join(projectDir, "src/locked.ts"): errors.New("permission denied")}
	state := newState(t, "vite-react", unit("u1", runstate.UnitPending))

	res := newTestBuilder(t, client, fs).Execute(context.Background(), workers.Task{}, state, evidence.NewChain())

	if res.Status != workers.StatusFailed || !strings.Contains(res.Reason, "permission denied") {
		t.Fatalf("result = %+v", res)
	}
	if got := fs.paths(); len(got) != 1 || got[0] != keep {
		t.Errorf("files after failed unit = %v, want only %s", got, keep)
	}
	u1 := unitStatus(t, state, "u1")
	if u1.Status != runstate.UnitFailed || len(u1.OutputFiles) != 0 {
		t.Errorf("u1 = %+v", u1)
	}
}

func TestBuilder_TransportErrorLeavesUnitPending(t *testing.T) {
	client := &fakeClient{reply: func(inference.Request) (inference.Response, error) {
		return inference.Response{}, errors.New("connection reset")
	}}
	state := newState(t, "vite", unit("u1", runstate.UnitPending))
	chain := evidence.NewChain()

	res := newTestBuilder(t, client, newMemFS()).Execute(context.Background(), workers.Task{}, state, chain)

	if res.Status != workers.StatusFailed || !strings.Contains(res.Reason, "u1") {
		t.Fatalf("result = %+v", res)
	}
	if unitStatus(t, state, "u1").Status != runstate.UnitPending {
		t.Error("transport failure should leave the unit pending")
	}
	entries := chain.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	call, ok := entries[0].Data.(evidence.LLMCall)
	if !ok || call.Error != "connection reset" || call.Role != api.StageBuilder {
		t.Errorf("llm_call entry = %+v", entries[0].Data)
	}
}

func TestBuilder_EvidenceFailureFailsUnit(t *testing.T) {
	client := &fakeClient{reply: replyByUnit(map[string]string{"u1": `{"files": []}`})}
	state := newState(t, "vite", unit("u1", runstate.UnitPending))
	chain := evidence.NewChain(evidence.WithSink(failingSink{}))

	res := newTestBuilder(t, client, newMemFS()).Execute(context.Background(), workers.Task{}, state, chain)

	if res.Status != workers.StatusFailed {
		t.Fatalf("Status = %s, want failed", res.Status)
	}
	if unitStatus(t, state, "u1").Status != runstate.UnitPending {
		t.Error("unit should stay pending when its call could not be recorded")
	}
}

func TestBuilder_PromptIsDeterministic(t *testing.T) {
	b := newTestBuilder(t, &fakeClient{}, newMemFS())
	plan := runstate.Plan{
		Stack:    runstate.Stack{Name: "tauri"},
		Features: []runstate.Feature{{ID: "f1", Title: "Sync", Description: "offline sync"}},
	}
	u := runstate.WorkUnit{ID: "u7", Description: "storage layer", FeatureIDs: []string{"f1"}}

	first, err := b.Prompt(plan, u)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := b.Prompt(plan, u)
	if first != second {
		t.Error("prompt should be identical for identical input")
	}
	for _, want := range []string{"Project stack: tauri", "Work unit: u7", "storage layer", "Features: f1", "f1: Sync (offline sync)"} {
		if !strings.Contains(first, want) {
			t.Errorf("prompt missing %q:\n%s", want, first)
		}
	}
}

func TestBuilder_PromptTemplateContext(t *testing.T) {
	b, err := NewBuilder(&fakeClient{}, newMemFS(), projectDir, api.BuilderConfig{
		PromptTemplate: `{{ .Unit.ID }} for {{ .Context.brand | upper }}{{ if .Context.tone }} in a {{ .Context.tone }} tone{{ end }}`,
		Context:        map[string]any{"brand": "acme", "tone": "friendly"},
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := b.Prompt(runstate.Plan{Stack: runstate.Stack{Name: "vite"}}, runstate.WorkUnit{ID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if want := "u1 for ACME in a friendly tone"; got != want {
		t.Errorf("prompt = %q, want %q", got, want)
	}
}

func TestBuilder_PromptTemplateErrors(t *testing.T) {
	if _, err := NewBuilder(&fakeClient{}, newMemFS(), projectDir, api.BuilderConfig{PromptTemplate: "{{ .Unit.ID "}); err == nil {
		t.Error("expected parse error for unterminated action")
	}

	b, err := NewBuilder(&fakeClient{}, newMemFS(), projectDir, api.BuilderConfig{PromptTemplate: "{{ .Context.missing }}"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Prompt(runstate.Plan{}, runstate.WorkUnit{ID: "u1"}); err == nil {
		t.Error("expected error for a missing context key")
	}
}

func TestParseFiles(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    []string
		wantErr bool
	}{
		{name: "bare object", text: `{"files": [{"path": "a.ts", "content": "x"}]}`, want: []string{"a.ts"}},
		{name: "surrounding prose", text: "text {\"files\": [{\"path\": \"a/b.ts\", \"content\": \"{}\"}]} end", want: []string{"a/b.ts"}},
		{name: "empty files", text: `{"files": []}`, want: []string{}},
		{name: "no braces", text: "I cannot do that", wantErr: true},
		{name: "two objects span greedily", text: `{"files": []} and {"x": 1}`, wantErr: true},
		{name: "missing files", text: `{"paths": []}`, wantErr: true},
		{name: "files not an array", text: `{"files": {"path": "a"}}`, wantErr: true},
		{name: "files null", text: `{"files": null}`, wantErr: true},
		{name: "empty path", text: `{"files": [{"path": "", "content": "x"}]}`, wantErr: true},
		{name: "missing content", text: `{"files": [{"path": "a.ts"}]}`, wantErr: true},
		{name: "non-string content", text: `{"files": [{"path": "a.ts", "content": 5}]}`, wantErr: true},
		{name: "escapes project", text: `{"files": [{"path": "../etc/passwd", "content": "x"}]}`, wantErr: true},
		{name: "absolute path", text: `{"files": [{"path": "/etc/passwd", "content": "x"}]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := ParseFiles(tt.text)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFiles() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(files) != len(tt.want) {
				t.Fatalf("got %d files, want %d", len(files), len(tt.want))
			}
			for i, f := range files {
				if f.Path != tt.want[i] {
					t.Errorf("files[%d].Path = %q, want %q", i, f.Path, tt.want[i])
				}
			}
		})
	}
}
