package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// RunRequest carries one script segment of a step to the command runner.
type RunRequest struct {
	StepID string
	Script string
	Dir    string
	Env    Env
}

// CommandRunner spawns and supervises the external process for a script
// segment. Run must not return before the process has exited.
type CommandRunner interface {
	Run(ctx context.Context, req RunRequest) error
}

// ExitError reports a command that exited with a nonzero status.
type ExitError struct {
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.ExitCode)
}

// ShellRunner runs scripts through a shell (sh -c by default).
type ShellRunner struct {
	Shell      string
	Args       []string
	InheritEnv bool // prepend the parent process environment
	Stdout     io.Writer
	Stderr     io.Writer

	logger *zap.Logger
}

// NewShellRunner creates a runner using the given shell. An empty shell
// means "sh" with "-c".
func NewShellRunner(shell string, args []string, inheritEnv bool, logger *zap.Logger) *ShellRunner {
	if shell == "" {
		shell = "sh"
		args = []string{"-c"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShellRunner{
		Shell:      shell,
		Args:       args,
		InheritEnv: inheritEnv,
		Stdout:     io.Discard,
		Stderr:     io.Discard,
		logger:     logger,
	}
}

// Run executes req.Script in req.Dir with req.Env as the process environment.
func (r *ShellRunner) Run(ctx context.Context, req RunRequest) error {
	args := append(append([]string{}, r.Args...), req.Script)
	cmd := exec.CommandContext(ctx, r.Shell, args...)
	cmd.Dir = req.Dir
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	environ := []string{}
	if r.InheritEnv {
		environ = os.Environ()
	}
	// exec keeps the last value for duplicate keys, so step env wins.
	cmd.Env = append(environ, req.Env.Environ()...)

	start := time.Now()
	err := cmd.Run()

	r.logger.Debug("Command finished",
		zap.String("step", req.StepID),
		zap.String("dir", req.Dir),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err),
	)

	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("command interrupted: %w", ctxErr)
		}
		return &ExitError{ExitCode: exitErr.ExitCode()}
	}

	return fmt.Errorf("spawn %s: %w", r.Shell, err)
}
