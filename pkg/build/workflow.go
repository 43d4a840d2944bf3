package build

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Observer receives workflow progress notifications. Calls are made from the
// goroutine running Execute, in order.
type Observer interface {
	StepStarted(workflow string, index int, stepID string)
	StepFinished(workflow string, index int, stepID string, duration time.Duration, artifacts []Artifact, err error)
	WorkflowFinished(workflow string, status WorkflowStatus, duration time.Duration)
}

// Workflow executes an ordered list of steps sequentially and aggregates
// their artifacts. A Workflow executes at most once.
type Workflow struct {
	id        string
	name      string
	steps     []Step
	wfCtx     *WorkflowContext
	logger    *zap.Logger
	observers []Observer
	state     *WorkflowState

	mu        sync.Mutex
	status    WorkflowStatus
	completed int // number of leading steps that succeeded
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithLogger sets the workflow logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(w *Workflow) {
		if o != nil {
			w.observers = append(w.observers, o)
		}
	}
}

// WithID overrides the generated workflow id.
func WithID(id string) Option {
	return func(w *Workflow) {
		if id != "" {
			w.id = id
		}
	}
}

// WithName sets a human-readable workflow name.
func WithName(name string) Option {
	return func(w *Workflow) {
		w.name = name
	}
}

// NewWorkflow creates a workflow over steps. Step ids must be non-empty and
// unique. The step slice is copied; later changes by the caller are not seen.
func NewWorkflow(steps []Step, wfCtx *WorkflowContext, opts ...Option) (*Workflow, error) {
	if wfCtx == nil {
		return nil, configErrorf("", "workflow context is required")
	}

	seen := make(map[string]int, len(steps))
	ids := make([]string, len(steps))
	for i, step := range steps {
		if step == nil {
			return nil, configErrorf(fmt.Sprintf("steps[%d]", i), "step is nil")
		}
		id := step.ID()
		if id == "" {
			return nil, configErrorf(fmt.Sprintf("steps[%d].id", i), "step id is empty")
		}
		if prev, dup := seen[id]; dup {
			return nil, configErrorf(fmt.Sprintf("steps[%d].id", i), "duplicate step id %q (also steps[%d])", id, prev)
		}
		seen[id] = i
		ids[i] = id
	}

	w := &Workflow{
		id:     uuid.New().String(),
		steps:  append([]Step(nil), steps...),
		wfCtx:  wfCtx,
		logger: zap.NewNop(),
		status: WorkflowInitialized,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.state = NewWorkflowState(w.id, w.name, ids)

	return w, nil
}

// ID returns the workflow id.
func (w *Workflow) ID() string { return w.id }

// Name returns the workflow name.
func (w *Workflow) Name() string { return w.name }

// Context returns the workflow context.
func (w *Workflow) Context() *WorkflowContext { return w.wfCtx }

// Steps returns a copy of the step list.
func (w *Workflow) Steps() []Step {
	return append([]Step(nil), w.steps...)
}

// Status returns the workflow's lifecycle state.
func (w *Workflow) Status() WorkflowStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// State returns a snapshot of per-step progress.
func (w *Workflow) State() StateReport {
	return w.state.Report()
}

// Execute runs every step in list order. Each step receives env merged with
// its own environment; a nil env means only the step's own environment is
// passed. The first failing step aborts the workflow and the error is a
// *WorkflowAbortedError. Cancellation of ctx is honoured between steps only.
//
// The base working directory is created before the first step and removed
// before Execute returns, on every path.
func (w *Workflow) Execute(ctx context.Context, env Env) (err error) {
	w.mu.Lock()
	if w.status != WorkflowInitialized {
		w.mu.Unlock()
		return ErrWorkflowAlreadyExecuted
	}
	w.status = WorkflowRunning
	w.mu.Unlock()

	start := time.Now()
	w.state.markRunning(start)

	w.logger.Info("Workflow started",
		zap.String("workflow_id", w.id),
		zap.String("workflow", w.name),
		zap.Int("steps", len(w.steps)),
	)

	defer func() {
		if tdErr := w.wfCtx.Teardown(); tdErr != nil {
			w.logger.Warn("Failed to remove base working directory", zap.Error(tdErr))
		}
		w.finish(start, err)
	}()

	if _, err := w.wfCtx.EnsureBaseDirectory(); err != nil {
		return &WorkflowAbortedError{StepIndex: -1, Cause: err}
	}

	// Steps are not interrupted by cancellation; it is checked between steps.
	stepCtx := context.WithoutCancel(ctx)

	for i, step := range w.steps {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &WorkflowAbortedError{
				StepIndex: -1,
				Cause:     fmt.Errorf("cancelled before step %d (%s): %w", i, step.ID(), ctxErr),
			}
		}

		if err := w.executeStep(stepCtx, i, step, env); err != nil {
			return &WorkflowAbortedError{StepIndex: i, StepID: step.ID(), Cause: err}
		}

		w.mu.Lock()
		w.completed = i + 1
		w.mu.Unlock()
	}

	return nil
}

func (w *Workflow) executeStep(ctx context.Context, index int, step Step, env Env) error {
	stepEnv := MergeEnv(env, step.Env())
	dir := w.wfCtx.ResolveStepDirectory(step)

	w.wfCtx.setActiveDirectory(dir)
	defer w.wfCtx.setActiveDirectory("")

	w.state.markStepRunning(index)
	for _, o := range w.observers {
		o.StepStarted(w.name, index, step.ID())
	}
	w.logger.Info("Step started",
		zap.String("workflow_id", w.id),
		zap.Int("index", index),
		zap.String("step", step.ID()),
		zap.String("dir", dir),
	)

	stepStart := time.Now()
	err := step.Execute(ctx, stepEnv)
	duration := time.Since(stepStart)

	if err != nil {
		var stepErr *StepExecutionError
		if !errors.As(err, &stepErr) {
			stepErr = &StepExecutionError{StepID: step.ID(), Cause: err}
		}
		err = stepErr
	}

	artifacts := step.Artifacts()
	w.state.markStepFinished(index, duration, len(artifacts), err)
	for _, o := range w.observers {
		o.StepFinished(w.name, index, step.ID(), duration, artifacts, err)
	}

	if err != nil {
		w.logger.Error("Step failed",
			zap.String("workflow_id", w.id),
			zap.Int("index", index),
			zap.String("step", step.ID()),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return err
	}

	w.logger.Info("Step completed",
		zap.String("workflow_id", w.id),
		zap.Int("index", index),
		zap.String("step", step.ID()),
		zap.Duration("duration", duration),
		zap.Int("artifacts", len(artifacts)),
	)
	return nil
}

func (w *Workflow) finish(start time.Time, err error) {
	status := WorkflowCompleted
	if err != nil {
		status = WorkflowFailed
	}

	w.mu.Lock()
	w.status = status
	w.mu.Unlock()

	now := time.Now()
	w.state.markFinished(status, now, err)
	for _, o := range w.observers {
		o.WorkflowFinished(w.name, status, now.Sub(start))
	}

	if err != nil {
		w.logger.Error("Workflow failed",
			zap.String("workflow_id", w.id),
			zap.Duration("duration", now.Sub(start)),
			zap.Error(err),
		)
		return
	}
	w.logger.Info("Workflow completed",
		zap.String("workflow_id", w.id),
		zap.Duration("duration", now.Sub(start)),
	)
}

// CollectArtifacts groups artifact paths by type in (step order, upload
// order). After a failed execution only steps that completed before the
// failing step contribute. Calling it before Execute returns
// ErrWorkflowNotExecuted.
func (w *Workflow) CollectArtifacts() (map[string][]string, error) {
	steps, err := w.finishedSteps()
	if err != nil {
		return nil, err
	}
	return CollectArtifacts(steps), nil
}

// ArtifactRecords is CollectArtifacts with position tags.
func (w *Workflow) ArtifactRecords() ([]ArtifactRecord, error) {
	steps, err := w.finishedSteps()
	if err != nil {
		return nil, err
	}
	return CollectArtifactRecords(steps), nil
}

func (w *Workflow) finishedSteps() ([]Step, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == WorkflowInitialized {
		return nil, ErrWorkflowNotExecuted
	}
	return w.steps[:w.completed], nil
}
