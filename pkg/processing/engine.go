package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/api"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/evidence"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/metrics"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/runstate"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/workers"
)

const (
	masterID    = "master"
	masterStage = "run"
)

type pipelineStage struct {
	id   string
	kind string
}

// Stages are dispatched in this order; the first failure stops the run.
var pipeline = []pipelineStage{
	{api.StageBuilder, api.TaskBuildUnits},
	{api.StageAssembler, api.TaskAssemble},
	{api.StageSecurity, api.TaskSecurityAudit},
}

// Engine is a sequential coordinator over a registry.
type Engine struct {
	Registry *workers.Registry
	Config   *api.Config

	now   func() time.Time
	newID func() string
}

// NewEngine creates an engine dispatching through reg.
func NewEngine(reg *workers.Registry, cfg *api.Config) *Engine {
	return &Engine{Registry: reg, Config: cfg, now: time.Now, newID: uuid.NewString}
}

// RunPipeline runs builder, assembler and security for plan in a fresh run
// directory. A stage reporting failure ends the run with StatusFailed and a nil
// error; registry errors end it with StatusError and are returned.
func (e *Engine) RunPipeline(ctx context.Context, plan *api.PlanFile) (*Manifest, error) {
	runID := e.newID()
	runDir := filepath.Join(e.Config.RunsDir, runID)
	if err := os.MkdirAll(runDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}

	sink, err := evidence.NewSink(e.Config.Evidence, runDir, runID)
	if err != nil {
		return nil, fmt.Errorf("opening evidence sink: %w", err)
	}
	var opts []evidence.Option
	if sink != nil {
		defer func() {
			if cerr := sink.Close(); cerr != nil {
				slog.Warn("closing evidence sink", "run", runID, "error", cerr)
			}
		}()
		opts = append(opts, evidence.WithSink(sink))
	}
	chain := evidence.NewChain(opts...)

	state := runstate.New()
	state.SetPlan(plan.Plan)
	if err := state.SetWorkUnits(plan.WorkUnits); err != nil {
		return nil, fmt.Errorf("seeding work units: %w", err)
	}

	started := e.now()
	m := &Manifest{RunID: runID, Status: StatusRunning, StartedAt: started.UTC(), PlanFile: plan.FilePath, Stages: []StageOutcome{}}

	slog.Info("run started", "run", runID, "dir", runDir, "units", len(plan.WorkUnits))
	if _, err := chain.Note(ctx, masterID, masterStage, "run started", map[string]any{
		"runId": runID,
		"plan":  plan.FilePath,
		"units": len(plan.WorkUnits),
	}); err != nil {
		return nil, fmt.Errorf("recording run start: %w", err)
	}
	if err := e.writeRunState(runDir, m, state); err != nil {
		return nil, err
	}

	runErr := e.dispatchAll(ctx, m, runDir, state, chain)

	if m.Status == StatusRunning {
		m.Status = StatusPassed
	}
	m.DurationMs = e.now().Sub(started).Milliseconds()
	if _, err := chain.Note(ctx, masterID, masterStage, "run finished", map[string]any{
		"status":     m.Status,
		"durationMs": m.DurationMs,
	}); err != nil {
		slog.Warn("recording run end", "run", runID, "error", err)
	}
	if err := chain.Verify(); err != nil {
		return m, fmt.Errorf("evidence chain: %w", err)
	}
	if entries := chain.Entries(); len(entries) > 0 {
		m.EvidenceHead = entries[len(entries)-1].Hash
		m.EvidenceLen = len(entries)
	}

	if err := e.writeRunState(runDir, m, state); err != nil {
		return m, err
	}
	for _, g := range Gates(state) {
		result := "pass"
		if !g.Passed {
			result = "fail"
		}
		metrics.GateResultsTotal.WithLabelValues(g.Name, result).Inc()
	}
	if err := writeJSON(filepath.Join(runDir, ManifestFilename), m); err != nil {
		return m, err
	}

	slog.Info("run finished", "run", runID, "status", m.Status, "durationMs", m.DurationMs)
	return m, runErr
}

func (e *Engine) dispatchAll(ctx context.Context, m *Manifest, runDir string, state *runstate.RunState, chain *evidence.Chain) error {
	for _, st := range pipeline {
		m.CurrentStage = st.id

		if st.id == api.StageBuilder && !e.Registry.Has(st.id) && !hasPending(state) {
			slog.Info("skipping builder, no pending work units", "run", m.RunID)
			continue
		}

		start := e.now()
		res, err := e.Registry.Dispatch(ctx, st.id, workers.Task{Kind: st.kind}, state, chain)
		outcome := StageOutcome{Stage: st.id, DurationMs: e.now().Sub(start).Milliseconds()}

		switch {
		case err != nil:
			outcome.Status = StatusError
			outcome.Error = err.Error()
			m.Status = StatusError
		case res.Status == workers.StatusFailed:
			outcome.Status = StatusFailed
			outcome.Reason = res.Reason
			m.Status = StatusFailed
		default:
			outcome.Status = string(res.Status)
		}
		m.Stages = append(m.Stages, outcome)

		if werr := e.writeRunState(runDir, m, state); werr != nil {
			m.Status = StatusError
			return errors.Join(err, werr)
		}
		if err != nil {
			return fmt.Errorf("stage %s: %w", st.id, err)
		}
		if m.Status == StatusFailed {
			slog.Warn("stage failed", "run", m.RunID, "stage", st.id, "reason", res.Reason)
			return nil
		}
	}
	return nil
}

func (e *Engine) writeRunState(runDir string, m *Manifest, state *runstate.RunState) error {
	doc := RunStateFile{
		RunID:        m.RunID,
		Status:       m.Status,
		CurrentStage: m.CurrentStage,
		UpdatedAt:    e.now().UTC(),
		GateResults:  Gates(state),
		State:        state.Snapshot(),
	}
	return writeJSON(filepath.Join(runDir, RunStateFilename), doc)
}

func hasPending(state *runstate.RunState) bool {
	units, _ := state.WorkUnits()
	for _, u := range units {
		if u.Status == runstate.UnitPending {
			return true
		}
	}
	return false
}
