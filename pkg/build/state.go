package build

import (
	"sync"
	"time"
)

// WorkflowStatus is the lifecycle state of a Workflow.
type WorkflowStatus string

const (
	WorkflowInitialized WorkflowStatus = "initialized"
	WorkflowRunning     WorkflowStatus = "running"
	WorkflowCompleted   WorkflowStatus = "completed"
	WorkflowFailed      WorkflowStatus = "failed"
)

// WorkflowState tracks the execution state of a workflow.
// It is safe for concurrent use.
type WorkflowState struct {
	mu         sync.RWMutex
	workflowID string
	name       string
	status     WorkflowStatus
	errMsg     string
	startedAt  time.Time
	finishedAt time.Time
	steps      []*StepState
}

// StepState tracks the state of a step
type StepState struct {
	StepID         string     `json:"id"`
	Index          int        `json:"index"`
	Status         StepStatus `json:"status"` // pending, running, succeeded, failed
	Error          string     `json:"error,omitempty"`
	DurationMillis int64      `json:"duration_ms"`
	Artifacts      int        `json:"artifacts"`
}

// StateReport is a point-in-time copy of a WorkflowState.
type StateReport struct {
	WorkflowID string         `json:"id"`
	Name       string         `json:"name"`
	Status     WorkflowStatus `json:"status"`
	Error      string         `json:"error,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Steps      []StepState    `json:"steps"`
}

// NewWorkflowState creates a state tracker with every step pending.
func NewWorkflowState(workflowID, name string, stepIDs []string) *WorkflowState {
	steps := make([]*StepState, len(stepIDs))
	for i, id := range stepIDs {
		steps[i] = &StepState{StepID: id, Index: i, Status: StepPending}
	}
	return &WorkflowState{
		workflowID: workflowID,
		name:       name,
		status:     WorkflowInitialized,
		steps:      steps,
	}
}

// Status returns the workflow status.
func (ws *WorkflowState) Status() WorkflowStatus {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.status
}

func (ws *WorkflowState) markRunning(at time.Time) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.status = WorkflowRunning
	ws.startedAt = at
}

func (ws *WorkflowState) markStepRunning(index int) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if index >= 0 && index < len(ws.steps) {
		ws.steps[index].Status = StepRunning
	}
}

func (ws *WorkflowState) markStepFinished(index int, duration time.Duration, artifacts int, err error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if index < 0 || index >= len(ws.steps) {
		return
	}

	st := ws.steps[index]
	st.DurationMillis = duration.Milliseconds()
	st.Artifacts = artifacts
	if err != nil {
		st.Status = StepFailed
		st.Error = err.Error()
		return
	}
	st.Status = StepSucceeded
}

func (ws *WorkflowState) markFinished(status WorkflowStatus, at time.Time, err error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.status = status
	ws.finishedAt = at
	if err != nil {
		ws.errMsg = err.Error()
	}
}

// Report returns a copy of the current state.
func (ws *WorkflowState) Report() StateReport {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	report := StateReport{
		WorkflowID: ws.workflowID,
		Name:       ws.name,
		Status:     ws.status,
		Error:      ws.errMsg,
		Steps:      make([]StepState, len(ws.steps)),
	}
	if !ws.startedAt.IsZero() {
		t := ws.startedAt
		report.StartedAt = &t
	}
	if !ws.finishedAt.IsZero() {
		t := ws.finishedAt
		report.FinishedAt = &t
	}
	for i, st := range ws.steps {
		report.Steps[i] = *st
	}
	return report
}
