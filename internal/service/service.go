// Package service runs build definitions end to end: validation, function
// expansion, execution and artifact collection. The CLI and the HTTP API
// share it.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cross19xx/eas-build/pkg/build"
	"github.com/cross19xx/eas-build/pkg/build/builtin"
	"github.com/cross19xx/eas-build/pkg/config"
	"github.com/cross19xx/eas-build/pkg/dsl"
	"github.com/cross19xx/eas-build/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ArtifactsDirEnv is set in the build environment when an artifacts
// directory is configured. The directory outlives the build workspace.
const ArtifactsDirEnv = "EAS_BUILD_ARTIFACTS_DIR"

// Options configures a Service.
type Options struct {
	// Config supplies workspace, shell and build defaults. Required.
	Config *config.Config
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
	// Registry holds the functions available to every build. Nil means the
	// builtin functions.
	Registry *build.FunctionRegistry
	// Runner executes step scripts. Nil means a ShellRunner built from
	// Config.Shell.
	Runner build.CommandRunner
	// StepOutput receives stdout and stderr of step commands when Runner is
	// nil. Nil discards it.
	StepOutput io.Writer
	// TrustDefinitionPaths allows a definition's working-directory to
	// choose the base working directory. The base directory is removed
	// after the build, so untrusted callers must not set it.
	TrustDefinitionPaths bool
}

// Service validates and runs build definitions.
type Service struct {
	cfg       *config.Config
	logger    *zap.Logger
	validator *dsl.Validator
	runner    build.CommandRunner
	trustDefs bool
}

// New creates a Service.
func New(opts Options) (*Service, error) {
	if opts.Config == nil {
		return nil, errors.New("service: config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := opts.Registry
	if registry == nil {
		var err error
		if registry, err = builtin.NewRegistry(); err != nil {
			return nil, fmt.Errorf("register builtin functions: %w", err)
		}
	}

	validator, err := dsl.NewValidator(logger, registry)
	if err != nil {
		return nil, fmt.Errorf("create validator: %w", err)
	}

	runner := opts.Runner
	if runner == nil {
		shell := opts.Config.Shell
		shellRunner := build.NewShellRunner(shell.Path, shell.Args, shell.InheritEnv, logger)
		if opts.StepOutput != nil {
			shellRunner.Stdout = opts.StepOutput
			shellRunner.Stderr = opts.StepOutput
		}
		runner = shellRunner
	}

	return &Service{
		cfg:       opts.Config,
		logger:    logger,
		validator: validator,
		runner:    runner,
		trustDefs: opts.TrustDefinitionPaths,
	}, nil
}

// Validate parses and validates a definition. Problems are returned as
// *dsl.ValidationError.
func (s *Service) Validate(content []byte) (*dsl.Definition, error) {
	return s.validator.ValidateYAML(content)
}

// Schema returns the JSON schema of build definitions.
func (s *Service) Schema() ([]byte, error) {
	return s.validator.GetSchemaJSON()
}

// FunctionInfo describes a registered function.
type FunctionInfo struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description,omitempty"`
	Params      map[string]build.ParamSpec `json:"params,omitempty"`
	Steps       int                        `json:"steps"`
}

// Functions lists the functions available to every build, sorted by name.
func (s *Service) Functions() []FunctionInfo {
	registry := s.validator.Registry()
	names := registry.List()

	infos := make([]FunctionInfo, 0, len(names))
	for _, name := range names {
		fn, err := registry.Get(name)
		if err != nil {
			continue
		}
		infos = append(infos, FunctionInfo{
			Name:        name,
			Description: fn.Description,
			Params:      fn.Params,
			Steps:       len(fn.Steps),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// RunRequest is one build invocation.
type RunRequest struct {
	// Content is the YAML build definition.
	Content []byte
	// Env overrides the definition's env.
	Env build.Env
	// WorkingDirectory overrides the base working directory. It is removed
	// after the build.
	WorkingDirectory string
	// ArtifactsDir overrides build.artifacts_dir from the config.
	ArtifactsDir string
	// ID is the build id; a UUID is generated when empty.
	ID string
}

// Result is the outcome of an executed build.
type Result struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Status    build.WorkflowStatus   `json:"status"`
	Error     string                 `json:"error,omitempty"`
	Duration  time.Duration          `json:"duration_ns"`
	Artifacts map[string][]string    `json:"artifacts"`
	Records   []build.ArtifactRecord `json:"records,omitempty"`
	Steps     []build.StepState      `json:"steps"`
}

// Run validates, builds and executes a definition.
//
// A definition that fails validation or expansion returns a nil Result and
// the error. Once execution starts a Result is always returned; a failed
// build also returns the *build.WorkflowAbortedError.
func (s *Service) Run(ctx context.Context, req RunRequest) (*Result, error) {
	def, err := s.Validate(req.Content)
	if err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	logger := s.logger.With(zap.String("build_id", id), zap.String("build", def.Name))

	registry := s.validator.Registry().Clone()
	if err := def.RegisterFunctions(registry); err != nil {
		return nil, err
	}

	env, err := s.buildEnv(def, req)
	if err != nil {
		return nil, err
	}

	builder := build.NewBuilder(registry, s.runner, logger)
	builder.SetDefaultStepTimeout(s.cfg.Build.StepTimeoutMinutes)

	wfCtx := build.NewWorkflowContext(s.baseDir(def, req), s.cfg.Workspace.Root, logger)
	wf, err := builder.Build(def.Steps, wfCtx,
		build.WithID(id),
		build.WithName(def.Name),
		build.WithObserver(metrics.NewBuildObserver()),
	)
	if err != nil {
		return nil, err
	}

	metrics.BuildsInProgress.Inc()
	defer metrics.BuildsInProgress.Dec()

	start := time.Now()
	execErr := wf.Execute(ctx, env)

	result := &Result{
		ID:       id,
		Name:     def.Name,
		Status:   wf.Status(),
		Duration: time.Since(start),
		Steps:    wf.State().Steps,
	}
	if execErr != nil {
		result.Error = execErr.Error()
	}

	artifacts, err := wf.CollectArtifacts()
	if err != nil {
		return result, err
	}
	result.Artifacts = artifacts
	if result.Records, err = wf.ArtifactRecords(); err != nil {
		return result, err
	}

	return result, execErr
}

func (s *Service) baseDir(def *dsl.Definition, req RunRequest) string {
	if req.WorkingDirectory != "" {
		return req.WorkingDirectory
	}
	if s.trustDefs && def.WorkingDirectory != "" {
		return def.WorkingDirectory
	}
	return s.cfg.Workspace.BaseDir
}

// buildEnv merges definition env, request env and the artifacts directory,
// in increasing precedence.
func (s *Service) buildEnv(def *dsl.Definition, req RunRequest) (build.Env, error) {
	env := build.MergeEnv(build.Env(def.Env), req.Env)

	dir := req.ArtifactsDir
	if dir == "" {
		dir = s.cfg.Build.ArtifactsDir
	}
	if dir == "" {
		return env, nil
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve artifacts directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts directory: %w", err)
	}
	return build.MergeEnv(env, build.Env{ArtifactsDirEnv: abs}), nil
}
