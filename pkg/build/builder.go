package build

import (
	"fmt"

	"go.uber.org/zap"
)

// Builder turns step definitions into an executable Workflow. Function
// steps are expanded through the registry before any Step is constructed,
// so configuration errors surface before anything runs.
type Builder struct {
	registry *FunctionRegistry
	runner   CommandRunner
	timeouts *TimeoutResolver
	logger   *zap.Logger
}

// NewBuilder creates a builder. registry may be nil when no step uses a
// function.
func NewBuilder(registry *FunctionRegistry, runner CommandRunner, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		registry: registry,
		runner:   runner,
		timeouts: NewTimeoutResolver(0),
		logger:   logger,
	}
}

// SetDefaultStepTimeout sets the timeout applied to steps without
// timeout-minutes. 0 disables it.
func (b *Builder) SetDefaultStepTimeout(minutes int) {
	b.timeouts = NewTimeoutResolver(minutes)
}

// Expand validates steps and expands every `uses:` step. The result
// contains only run steps, each with a unique id. Steps without an id are
// named "step-<n>" after their 1-based position.
func (b *Builder) Expand(steps []*StepDefinition) ([]*StepDefinition, error) {
	var out []*StepDefinition

	for i, step := range steps {
		field := fmt.Sprintf("steps[%d]", i)
		if step == nil {
			return nil, configErrorf(field, "step is empty")
		}
		if err := checkRunOrUses(step, field); err != nil {
			return nil, err
		}
		if err := b.timeouts.ValidateTimeout(step.TimeoutMinutes, field+".timeout-minutes"); err != nil {
			return nil, err
		}

		def := step.Clone()
		if def.ID == "" {
			def.ID = fmt.Sprintf("step-%d", i+1)
		}

		if def.Uses == "" {
			out = append(out, def)
			continue
		}

		if b.registry == nil {
			return nil, &UnknownFunctionError{FunctionID: def.Uses}
		}
		expanded, err := b.registry.ExpandStep(def, field)
		if err != nil {
			return nil, err
		}
		b.logger.Debug("Function expanded",
			zap.String("step", def.ID),
			zap.String("function", def.Uses),
			zap.Int("steps", len(expanded)),
		)
		out = append(out, expanded...)
	}

	seen := make(map[string]bool, len(out))
	for i, def := range out {
		if seen[def.ID] {
			return nil, configErrorf(fmt.Sprintf("steps[%d].id", i), "duplicate step id %q", def.ID)
		}
		seen[def.ID] = true

		if err := b.timeouts.ValidateTimeout(def.TimeoutMinutes, def.ID+".timeout-minutes"); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// Build expands steps and constructs a Workflow bound to wfCtx.
func (b *Builder) Build(steps []*StepDefinition, wfCtx *WorkflowContext, opts ...Option) (*Workflow, error) {
	defs, err := b.Expand(steps)
	if err != nil {
		return nil, err
	}

	built := make([]Step, 0, len(defs))
	for _, def := range defs {
		built = append(built, NewCommandStep(CommandStepConfig{
			ID:         def.ID,
			Name:       def.Name,
			Command:    def.Run,
			WorkingDir: def.WorkingDirectory,
			Env:        Env(def.Env),
			Timeout:    b.timeouts.ResolveStepTimeout(def),
		}, wfCtx, b.runner, b.logger))
	}

	return NewWorkflow(built, wfCtx, append([]Option{WithLogger(b.logger)}, opts...)...)
}
