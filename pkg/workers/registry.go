// Package workers defines the stage contract and the registry that dispatches to it.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/evidence"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/metrics"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/runstate"
)

const tracerName = "github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/workers"

// timer is the part of *time.Timer the dispatch race needs.
type timer interface {
	C() <-chan time.Time
	Stop() bool
}

type stdTimer struct{ t *time.Timer }

func (s stdTimer) C() <-chan time.Time { return s.t.C }
func (s stdTimer) Stop() bool          { return s.t.Stop() }

func newStdTimer(d time.Duration) timer { return stdTimer{t: time.NewTimer(d)} }

// Registry holds contracts by id. It keeps no run data and is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	contracts map[string]Contract

	newTimer func(time.Duration) timer
	tracer   trace.Tracer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		contracts: make(map[string]Contract),
		newTimer:  newStdTimer,
		tracer:    otel.Tracer(tracerName),
	}
}

// Register adds c. An id that is already registered is rejected and the existing entry kept.
func (r *Registry) Register(c Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := c.ID()
	if _, exists := r.contracts[id]; exists {
		return &DispatchError{Kind: ErrDuplicateWorker, WorkerID: id}
	}
	r.contracts[id] = c
	slog.Debug("worker registered", "worker", id, "accepts", c.Accepts(), "timeout", c.Timeout())
	return nil
}

func (r *Registry) Get(id string) (Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[id]
	if !ok {
		return nil, &DispatchError{Kind: ErrWorkerNotFound, WorkerID: id}
	}
	return c, nil
}

func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.contracts[id]
	return ok
}

// List returns the registered ids in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.contracts))
	for id := range r.contracts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

type outcome struct {
	result   Result
	panicked any
}

// Dispatch checks the worker's preconditions and runs it against its timeout.
//
// A timed-out execution keeps running; its result is dropped. Cancelling ctx
// abandons the wait the same way and returns ctx.Err().
func (r *Registry) Dispatch(ctx context.Context, id string, task Task, state *runstate.RunState, chain *evidence.Chain) (Result, error) {
	start := time.Now()

	c, err := r.Get(id)
	if err != nil {
		metrics.DispatchTotal.WithLabelValues(id, metrics.OutcomeNotFound).Inc()
		return Result{}, err
	}

	for _, slice := range c.Requires() {
		if !state.Has(slice) {
			metrics.DispatchTotal.WithLabelValues(id, metrics.OutcomeMissingPrecondition).Inc()
			slog.Warn("dispatch precondition missing", "worker", id, "slice", slice)
			return Result{}, &DispatchError{Kind: ErrMissingPrecondition, WorkerID: id, Slice: slice}
		}
	}

	ctx, span := r.tracer.Start(ctx, "dispatch "+id, trace.WithAttributes(
		attribute.String("worker.id", id),
		attribute.String("task.kind", task.Kind),
		attribute.String("worker.timeout", c.Timeout().String()),
	))
	defer span.End()

	slog.Info("dispatching worker", "worker", id, "task", task.Kind, "timeout", c.Timeout())

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{panicked: p}
			}
		}()
		done <- outcome{result: c.Execute(ctx, task, state, chain)}
	}()

	var expired <-chan time.Time
	if c.Timeout() > 0 {
		t := r.newTimer(c.Timeout())
		defer t.Stop()
		expired = t.C()
	}

	defer func() {
		metrics.DispatchDurationSeconds.WithLabelValues(id).Observe(time.Since(start).Seconds())
	}()

	select {
	case o := <-done:
		if o.panicked != nil {
			metrics.DispatchTotal.WithLabelValues(id, metrics.OutcomePanic).Inc()
			span.SetStatus(codes.Error, "panic")
			return Result{}, &DispatchError{Kind: ErrWorkerPanic, WorkerID: id, Detail: fmt.Sprint(o.panicked)}
		}
		metrics.DispatchTotal.WithLabelValues(id, string(o.result.Status)).Inc()
		span.SetAttributes(attribute.String("result.status", string(o.result.Status)))
		slog.Info("worker settled", "worker", id, "status", o.result.Status, "duration", time.Since(start))
		return o.result, nil

	case <-expired:
		metrics.DispatchTotal.WithLabelValues(id, metrics.OutcomeTimeout).Inc()
		span.SetStatus(codes.Error, "timeout")
		slog.Error("worker timed out", "worker", id, "timeout", c.Timeout())
		return Result{}, &DispatchError{Kind: ErrTimeout, WorkerID: id, Timeout: c.Timeout()}

	case <-ctx.Done():
		span.SetStatus(codes.Error, "cancelled")
		return Result{}, fmt.Errorf("dispatching %q: %w", id, ctx.Err())
	}
}
