package workers

import (
	"errors"
	"fmt"
	"time"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/runstate"
)

var (
	ErrDuplicateWorker     = errors.New("duplicate worker")
	ErrWorkerNotFound      = errors.New("worker not found")
	ErrMissingPrecondition = errors.New("missing precondition")
	ErrTimeout             = errors.New("worker timed out")
	ErrWorkerPanic         = errors.New("worker panicked")
)

// DispatchError carries the registry-level failure and its context.
type DispatchError struct {
	Kind     error
	WorkerID string
	Slice    runstate.Slice
	Timeout  time.Duration
	Detail   string
}

func (e *DispatchError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case errors.Is(e.Kind, ErrMissingPrecondition):
		return fmt.Sprintf("%s: worker %q requires %q", e.Kind, e.WorkerID, e.Slice)
	case errors.Is(e.Kind, ErrTimeout):
		return fmt.Sprintf("%s: worker %q exceeded %s", e.Kind, e.WorkerID, e.Timeout)
	case e.Detail != "":
		return fmt.Sprintf("%s: %q: %s", e.Kind, e.WorkerID, e.Detail)
	default:
		return fmt.Sprintf("%s: %q", e.Kind, e.WorkerID)
	}
}

func (e *DispatchError) Unwrap() error { return e.Kind }
