package processing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/runstate"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/scan"
)

const (
	RunStateFilename = "run-state.json"
	ManifestFilename = "manifest.json"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusError   = "error"
)

// StageOutcome records one dispatch of the run.
type StageOutcome struct {
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// GateResult is a pass/fail measurement derived from the run state.
type GateResult struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Measured  int    `json:"measured"`
	Threshold int    `json:"threshold"`
}

// Manifest summarises a finished run.
type Manifest struct {
	RunID        string         `json:"runId"`
	Status       string         `json:"status"`
	StartedAt    time.Time      `json:"startedAt"`
	DurationMs   int64          `json:"durationMs"`
	CurrentStage string         `json:"currentStage,omitempty"`
	PlanFile     string         `json:"planFile,omitempty"`
	Stages       []StageOutcome `json:"stages"`
	EvidenceHead string         `json:"evidenceHead,omitempty"`
	EvidenceLen  int            `json:"evidenceLength"`
}

// RunStateFile is the document rewritten after every stage.
type RunStateFile struct {
	RunID        string            `json:"runId"`
	Status       string            `json:"status"`
	CurrentStage string            `json:"currentStage,omitempty"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	GateResults  []GateResult      `json:"gateResults"`
	State        runstate.Snapshot `json:"state"`
}

// Gates derives the gate results visible in the current state.
func Gates(state *runstate.RunState) []GateResult {
	gates := []GateResult{}
	if units, ok := state.WorkUnits(); ok {
		done := 0
		for _, u := range units {
			if u.Status == runstate.UnitDone {
				done++
			}
		}
		gates = append(gates, GateResult{Name: "work-units-done", Passed: done == len(units), Measured: done, Threshold: len(units)})
	}
	if b, ok := state.BuildOutput(); ok {
		gates = append(gates, GateResult{Name: "build-exit-code", Passed: b.ExitCode == 0, Measured: b.ExitCode, Threshold: 0})
	}
	if r, ok := state.SecurityReport(); ok {
		blocking := 0
		for _, v := range r.Vulnerabilities {
			if scan.IsBlocking(v.Severity) {
				blocking++
			}
		}
		gates = append(gates,
			GateResult{Name: "critical-high-vulnerabilities", Passed: blocking == 0, Measured: blocking, Threshold: 0},
			GateResult{Name: "secrets-found", Passed: r.SecretsFound == 0, Measured: r.SecretsFound, Threshold: 0},
		)
	}
	return gates
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
