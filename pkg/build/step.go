package build

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Step is the unit of execution of a workflow.
type Step interface {
	// ID is unique within a workflow.
	ID() string
	// WorkingDir is the declared working directory; "" means the workflow's
	// base directory.
	WorkingDir() string
	// Env is the step-local environment, merged over the workflow env.
	Env() Env
	// Execute runs the step with the complete, effective environment.
	Execute(ctx context.Context, env Env) error
	// Artifacts returns the artifacts recorded so far, in upload order.
	Artifacts() []Artifact
}

// StepStatus is the lifecycle state of a CommandStep.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
)

// CommandStep runs command text through a CommandRunner and handles upload
// directives in-process.
//
// Upload directives split the command text: each script between directives
// is a separate runner invocation (a separate shell with ShellRunner).
// Shell variables and cd from before a directive are not visible after it,
// and a directive cannot appear inside a multi-line shell construct such as
// an if block or a heredoc. Use files or the step env to carry state.
type CommandStep struct {
	id         string
	name       string
	command    string
	workingDir string
	env        Env
	timeout    time.Duration

	wfCtx  *WorkflowContext
	runner CommandRunner
	logger *zap.Logger

	mu        sync.RWMutex
	status    StepStatus
	artifacts []Artifact
}

// CommandStepConfig holds the attributes of a CommandStep.
type CommandStepConfig struct {
	ID         string
	Name       string
	Command    string
	WorkingDir string
	Env        Env
	Timeout    time.Duration // 0 means no limit
}

// NewCommandStep creates a step bound to the workflow context and runner
// it will execute with.
func NewCommandStep(cfg CommandStepConfig, wfCtx *WorkflowContext, runner CommandRunner, logger *zap.Logger) *CommandStep {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandStep{
		id:         cfg.ID,
		name:       cfg.Name,
		command:    cfg.Command,
		workingDir: cfg.WorkingDir,
		env:        cfg.Env.Clone(),
		timeout:    cfg.Timeout,
		wfCtx:      wfCtx,
		runner:     runner,
		logger:     logger,
		status:     StepPending,
	}
}

func (s *CommandStep) ID() string         { return s.id }
func (s *CommandStep) Name() string       { return s.name }
func (s *CommandStep) Command() string    { return s.command }
func (s *CommandStep) WorkingDir() string { return s.workingDir }
func (s *CommandStep) Env() Env           { return s.env }

// Status returns the current lifecycle state.
func (s *CommandStep) Status() StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Artifacts returns a copy of the recorded artifacts in upload order.
func (s *CommandStep) Artifacts() []Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Artifact, len(s.artifacts))
	copy(out, s.artifacts)
	return out
}

// Execute runs every segment of the command text in order. Any failure is
// returned as *StepExecutionError.
func (s *CommandStep) Execute(ctx context.Context, env Env) error {
	s.mu.Lock()
	if s.status != StepPending {
		s.mu.Unlock()
		return &StepExecutionError{StepID: s.id, Cause: ErrStepAlreadyExecuted}
	}
	s.status = StepRunning
	s.mu.Unlock()

	err := s.run(ctx, env)

	s.mu.Lock()
	if err != nil {
		s.status = StepFailed
	} else {
		s.status = StepSucceeded
	}
	s.mu.Unlock()

	if err != nil {
		return &StepExecutionError{StepID: s.id, Cause: err}
	}
	return nil
}

func (s *CommandStep) run(ctx context.Context, env Env) error {
	dir := s.wfCtx.ResolveStepDirectory(s)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	for i, seg := range splitCommand(s.command) {
		if seg.isUpload() {
			path, err := resolveArtifactPath(seg.path, dir, env)
			if err != nil {
				return err
			}
			s.recordArtifact(Artifact{Type: seg.artifactType, Path: path})

			s.logger.Info("Artifact recorded",
				zap.String("step", s.id),
				zap.String("type", seg.artifactType),
				zap.String("path", path),
			)
			continue
		}

		if s.runner == nil {
			return fmt.Errorf("no command runner configured")
		}
		if err := s.runner.Run(ctx, RunRequest{
			StepID: s.id,
			Script: seg.script,
			Dir:    dir,
			Env:    env,
		}); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
	}

	return nil
}

func (s *CommandStep) recordArtifact(a Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = append(s.artifacts, a)
}
