package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/evidence"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/runstate"
)

// Status is the outcome a worker reports for its own work.
type Status string

const (
	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

// Task is the unit of work handed to a worker.
type Task struct {
	Kind  string
	Input any
}

// Artifact names a file or directory a worker produced.
type Artifact struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Result is returned untouched by the registry; only the coordinator interprets it.
type Result struct {
	Status    Status     `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// Done builds a successful result.
func Done(artifacts ...Artifact) Result {
	if artifacts == nil {
		artifacts = []Artifact{}
	}
	return Result{Status: StatusDone, Artifacts: artifacts}
}

// Failed builds a failed result with a formatted reason.
func Failed(format string, args ...any) Result {
	return Result{Status: StatusFailed, Reason: fmt.Sprintf(format, args...)}
}

// Contract is the interface every pipeline stage implements.
//
// Requires lists slices that must be present before Execute is called.
// Produces is informational and is not checked.
type Contract interface {
	ID() string
	Accepts() string
	Requires() []runstate.Slice
	Produces() []runstate.Slice
	Timeout() time.Duration
	Execute(ctx context.Context, task Task, state *runstate.RunState, chain *evidence.Chain) Result
}
