// Package runstate holds the typed working data of one pipeline run.
//
// Each slice is optional and, once set, stays set for the life of the run.
// Getters return copies so callers cannot mutate state behind the setters.
package runstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	ErrUnknownUnit       = errors.New("unknown work unit")
	ErrInvalidTransition = errors.New("invalid work unit status transition")
	ErrDuplicateUnit     = errors.New("duplicate work unit id")
)

// RunState is the sole mutation surface for pipeline data.
type RunState struct {
	mu sync.RWMutex

	plan           *Plan
	workUnits      []WorkUnit
	hasWorkUnits   bool
	buildOutput    *BuildOutput
	securityReport *SecurityReport
}

// New returns an empty RunState.
func New() *RunState {
	return &RunState{}
}

// Has reports whether the named slice has been set.
func (s *RunState) Has(slice Slice) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch slice {
	case SlicePlan:
		return s.plan != nil
	case SliceWorkUnits:
		return s.hasWorkUnits
	case SliceBuildOutput:
		return s.buildOutput != nil
	case SliceSecurityReport:
		return s.securityReport != nil
	default:
		return false
	}
}

func (s *RunState) Plan() (Plan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.plan == nil {
		return Plan{}, false
	}
	return clonePlan(*s.plan), true
}

func (s *RunState) SetPlan(p Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := clonePlan(p)
	s.plan = &cp
}

// WorkUnits returns the units in their original order.
func (s *RunState) WorkUnits() ([]WorkUnit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasWorkUnits {
		return nil, false
	}
	out := make([]WorkUnit, len(s.workUnits))
	for i, u := range s.workUnits {
		out[i] = cloneUnit(u)
	}
	return out, true
}

// SetWorkUnits seeds the work unit slice. Units without a status start pending.
func (s *RunState) SetWorkUnits(units []WorkUnit) error {
	seen := make(map[string]bool, len(units))
	cp := make([]WorkUnit, len(units))
	for i, u := range units {
		if seen[u.ID] {
			return fmt.Errorf("%w: %q", ErrDuplicateUnit, u.ID)
		}
		seen[u.ID] = true
		u = cloneUnit(u)
		if u.Status == "" {
			u.Status = UnitPending
		}
		cp[i] = u
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.workUnits = cp
	s.hasWorkUnits = true
	return nil
}

// UpdateWorkUnit applies patch to the unit with the given id.
// Status may only move from pending to done or failed.
func (s *RunState) UpdateWorkUnit(id string, patch UnitPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.workUnits, func(u WorkUnit) bool { return u.ID == id })
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownUnit, id)
	}

	u := s.workUnits[idx]
	if patch.Status != nil && *patch.Status != u.Status {
		next := *patch.Status
		if u.Status != UnitPending || (next != UnitDone && next != UnitFailed) {
			return fmt.Errorf("%w: unit %q %s -> %s", ErrInvalidTransition, id, u.Status, next)
		}
		u.Status = next
	}
	if patch.OutputFiles != nil {
		u.OutputFiles = slices.Clone(patch.OutputFiles)
	}
	s.workUnits[idx] = u
	return nil
}

func (s *RunState) BuildOutput() (BuildOutput, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.buildOutput == nil {
		return BuildOutput{}, false
	}
	out := *s.buildOutput
	out.OutputFiles = slices.Clone(out.OutputFiles)
	return out, true
}

func (s *RunState) SetBuildOutput(b BuildOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.OutputFiles = slices.Clone(b.OutputFiles)
	s.buildOutput = &b
}

func (s *RunState) SecurityReport() (SecurityReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.securityReport == nil {
		return SecurityReport{}, false
	}
	out := *s.securityReport
	out.Vulnerabilities = slices.Clone(out.Vulnerabilities)
	return out, true
}

func (s *RunState) SetSecurityReport(r SecurityReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Vulnerabilities = slices.Clone(r.Vulnerabilities)
	s.securityReport = &r
}

// Snapshot is the serialisable view of a RunState.
type Snapshot struct {
	Plan           *Plan           `json:"plan,omitempty"`
	WorkUnits      []WorkUnit      `json:"workUnits,omitempty"`
	BuildOutput    *BuildOutput    `json:"buildOutput,omitempty"`
	SecurityReport *SecurityReport `json:"securityReport,omitempty"`
}

// Snapshot copies every present slice.
func (s *RunState) Snapshot() Snapshot {
	var snap Snapshot
	if p, ok := s.Plan(); ok {
		snap.Plan = &p
	}
	if units, ok := s.WorkUnits(); ok {
		snap.WorkUnits = units
	}
	if b, ok := s.BuildOutput(); ok {
		snap.BuildOutput = &b
	}
	if r, ok := s.SecurityReport(); ok {
		snap.SecurityReport = &r
	}
	return snap
}

// MarshalJSON encodes the current snapshot.
func (s *RunState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

func clonePlan(p Plan) Plan {
	p.Stack.Platforms = slices.Clone(p.Stack.Platforms)
	p.Features = slices.Clone(p.Features)
	return p
}

func cloneUnit(u WorkUnit) WorkUnit {
	u.FeatureIDs = slices.Clone(u.FeatureIDs)
	u.OutputFiles = slices.Clone(u.OutputFiles)
	return u
}
