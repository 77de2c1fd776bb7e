package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/api"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/evidence"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/fsys"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/inference"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/metrics"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/runstate"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/workers"
)

var errNoJSONObject = errors.New("no JSON object in model response")

// GeneratedFile is one file the model asked to write.
type GeneratedFile struct {
	Path    string
	Content string
}

// Builder generates source files for pending work units through the inference client.
type Builder struct {
	client     inference.Client
	fs         fsys.FS
	projectDir string
	cfg        api.BuilderConfig
	prompt     *template.Template
}

// NewBuilder creates the code generation stage.
func NewBuilder(client inference.Client, fs fsys.FS, projectDir string, cfg api.BuilderConfig) (*Builder, error) {
	if client == nil {
		return nil, errors.New("builder requires an inference client")
	}
	text := cfg.PromptTemplate
	if text == "" {
		text = api.DefaultPromptTemplate
	}
	tmpl, err := parseTemplate("prompt", text)
	if err != nil {
		return nil, err
	}
	return &Builder{client: client, fs: fs, projectDir: projectDir, cfg: cfg, prompt: tmpl}, nil
}

func (b *Builder) ID() string      { return api.StageBuilder }
func (b *Builder) Accepts() string { return api.TaskBuildUnits }
func (b *Builder) Requires() []runstate.Slice {
	return []runstate.Slice{runstate.SlicePlan, runstate.SliceWorkUnits}
}
func (b *Builder) Produces() []runstate.Slice { return []runstate.Slice{runstate.SliceWorkUnits} }
func (b *Builder) Timeout() time.Duration     { return b.cfg.Timeout }

type promptData struct {
	Stack    runstate.Stack
	Unit     runstate.WorkUnit
	Features []runstate.Feature
	Context  map[string]any
}

// Prompt renders the deterministic prompt for one unit.
func (b *Builder) Prompt(plan runstate.Plan, unit runstate.WorkUnit) (string, error) {
	var features []runstate.Feature
	for _, id := range unit.FeatureIDs {
		for _, f := range plan.Features {
			if f.ID == id {
				features = append(features, f)
				break
			}
		}
	}
	return render(b.prompt, promptData{Stack: plan.Stack, Unit: unit, Features: features, Context: b.cfg.Context})
}

func (b *Builder) Execute(ctx context.Context, _ workers.Task, state *runstate.RunState, chain *evidence.Chain) workers.Result {
	plan, _ := state.Plan()
	units, _ := state.WorkUnits()

	var pending []runstate.WorkUnit
	for _, u := range units {
		if u.Status == runstate.UnitPending {
			pending = append(pending, u)
		}
	}

	slog.Info("builder processing work units", "pending", len(pending), "total", len(units))
	if len(pending) == 0 {
		return workers.Done()
	}

	artifacts := []workers.Artifact{}
	var problems []string
	for _, unit := range pending {
		files, err := b.buildUnit(ctx, plan, unit, state, chain)
		if err != nil {
			slog.Warn("work unit failed", "unit", unit.ID, "error", err)
			problems = append(problems, fmt.Sprintf("unit %s: %v", unit.ID, err))
			continue
		}
		for _, f := range files {
			artifacts = append(artifacts, workers.Artifact{Name: f, Path: filepath.Join(b.projectDir, f)})
		}
	}

	if len(problems) > 0 {
		return workers.Failed("%s", strings.Join(problems, "; "))
	}
	return workers.Done(artifacts...)
}

// buildUnit runs one inference call for unit and applies its files. Transport
// errors leave the unit pending; malformed output marks it failed.
func (b *Builder) buildUnit(ctx context.Context, plan runstate.Plan, unit runstate.WorkUnit, state *runstate.RunState, chain *evidence.Chain) ([]string, error) {
	prompt, err := b.Prompt(plan, unit)
	if err != nil {
		return nil, b.setStatus(state, unit.ID, runstate.UnitFailed, nil, err)
	}

	req := inference.Request{
		Role:         b.ID(),
		Prompt:       prompt,
		SystemPrompt: b.cfg.SystemPrompt,
		MaxTokens:    b.cfg.MaxTokens,
		Temperature:  b.cfg.Temperature,
	}
	start := time.Now()
	resp, callErr := b.client.Complete(ctx, req)
	record := inference.AuditRecord(req, resp, callErr, time.Since(start))
	if _, err := chain.Append(ctx, b.ID(), api.StageBuilder, record); err != nil {
		return nil, fmt.Errorf("recording inference call: %w", err)
	}
	if callErr != nil {
		return nil, fmt.Errorf("inference: %w", callErr)
	}

	files, err := ParseFiles(resp.Text)
	if err != nil {
		return nil, b.setStatus(state, unit.ID, runstate.UnitFailed, nil, err)
	}

	paths := make([]string, 0, len(files))
	var created []string
	for _, f := range files {
		full := filepath.Join(b.projectDir, f.Path)
		existed := b.fs.Exists(full)
		if err := b.fs.WriteFile(full, []byte(f.Content)); err != nil {
			b.removeAll(unit.ID, created)
			return nil, b.setStatus(state, unit.ID, runstate.UnitFailed, nil, err)
		}
		if !existed {
			created = append(created, full)
		}
		paths = append(paths, f.Path)
	}

	if err := b.setStatus(state, unit.ID, runstate.UnitDone, paths, nil); err != nil {
		return nil, err
	}
	slog.Info("work unit built", "unit", unit.ID, "files", len(paths))
	return paths, nil
}

// removeAll deletes files a failed unit created so the project tree holds no
// partial output.
func (b *Builder) removeAll(unitID string, created []string) {
	for _, path := range created {
		if err := b.fs.Remove(path); err != nil {
			slog.Warn("removing partial output", "unit", unitID, "path", path, "error", err)
		}
	}
}

// setStatus records the unit outcome and returns cause, or the update error.
func (b *Builder) setStatus(state *runstate.RunState, id string, status runstate.UnitStatus, files []string, cause error) error {
	if err := state.UpdateWorkUnit(id, runstate.UnitPatch{Status: &status, OutputFiles: files}); err != nil {
		return fmt.Errorf("updating work unit: %w", err)
	}
	metrics.WorkUnitsTotal.WithLabelValues(string(status)).Inc()
	return cause
}

// ParseFiles extracts the {"files": [...]} object from a model response. The
// span runs from the first '{' to the last '}'. Any invalid entry rejects the
// whole response.
func ParseFiles(text string) ([]GeneratedFile, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, errNoJSONObject
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &doc); err != nil {
		return nil, fmt.Errorf("decoding model response: %w", err)
	}
	raw, ok := doc["files"]
	if !ok {
		return nil, errors.New(`model response has no "files" field`)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil || entries == nil {
		return nil, errors.New(`"files" is not an array`)
	}

	files := make([]GeneratedFile, 0, len(entries))
	for i, e := range entries {
		var f struct {
			Path    *string `json:"path"`
			Content *string `json:"content"`
		}
		if err := json.Unmarshal(e, &f); err != nil {
			return nil, fmt.Errorf("files[%d]: %w", i, err)
		}
		if f.Path == nil || strings.TrimSpace(*f.Path) == "" {
			return nil, fmt.Errorf("files[%d]: missing path", i)
		}
		if f.Content == nil {
			return nil, fmt.Errorf("files[%d] %s: missing content", i, *f.Path)
		}
		clean := filepath.Clean(filepath.FromSlash(*f.Path))
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("files[%d]: path %q escapes the project", i, *f.Path)
		}
		files = append(files, GeneratedFile{Path: filepath.ToSlash(clean), Content: *f.Content})
	}
	return files, nil
}
