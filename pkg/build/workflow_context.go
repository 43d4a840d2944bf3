package build

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// WorkflowContext owns the base working directory of one workflow. The
// directory is created on first use. Teardown removes only what
// EnsureBaseDirectory created; a directory that already existed is left in
// place.
//
// A WorkflowContext is shared by all steps of one workflow and must not be
// reused across workflows.
type WorkflowContext struct {
	mu        sync.Mutex
	baseDir   string // configured path, may be empty
	tempRoot  string // parent for a generated base dir when baseDir is empty
	resolved  string
	created   bool
	owned     string // topmost directory created by EnsureBaseDirectory
	activeDir string

	teardownOnce sync.Once
	teardownErr  error

	logger *zap.Logger
}

// NewWorkflowContext creates a context for baseDir. When baseDir is empty a
// temporary directory is created under tempRoot (os.TempDir() if empty).
func NewWorkflowContext(baseDir, tempRoot string, logger *zap.Logger) *WorkflowContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowContext{
		baseDir:  baseDir,
		tempRoot: tempRoot,
		logger:   logger,
	}
}

// EnsureBaseDirectory creates the base working directory if it does not
// exist yet and returns its absolute path. It is idempotent.
func (c *WorkflowContext) EnsureBaseDirectory() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.created {
		return c.resolved, nil
	}

	var dir string
	if c.baseDir == "" {
		if c.tempRoot != "" {
			if err := os.MkdirAll(c.tempRoot, 0o755); err != nil {
				return "", fmt.Errorf("create workspace root: %w", err)
			}
		}
		tmp, err := os.MkdirTemp(c.tempRoot, "eas-build-")
		if err != nil {
			return "", fmt.Errorf("create base working directory: %w", err)
		}
		dir = tmp
		c.owned = tmp
	} else {
		abs, err := filepath.Abs(c.baseDir)
		if err != nil {
			return "", fmt.Errorf("resolve base working directory: %w", err)
		}
		missing, err := topmostMissing(abs)
		if err != nil {
			return "", fmt.Errorf("inspect base working directory: %w", err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return "", fmt.Errorf("create base working directory: %w", err)
		}
		dir = abs
		c.owned = missing
	}

	c.resolved = dir
	c.created = true

	c.logger.Debug("Base working directory ready",
		zap.String("dir", dir),
		zap.Bool("preexisting", c.owned == ""),
	)
	return dir, nil
}

// BaseDirectory returns the resolved base directory, or "" before
// EnsureBaseDirectory has succeeded.
func (c *WorkflowContext) BaseDirectory() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolved
}

// ResolveStepDirectory returns the step's declared working directory, or the
// base working directory when the step declares none. Relative declarations
// are resolved against the base directory.
func (c *WorkflowContext) ResolveStepDirectory(step interface{ WorkingDir() string }) string {
	base := c.BaseDirectory()

	dir := step.WorkingDir()
	switch {
	case dir == "":
		return base
	case filepath.IsAbs(dir):
		return filepath.Clean(dir)
	default:
		return filepath.Join(base, dir)
	}
}

// ActiveDirectory returns the working directory of the step currently
// executing, or "" between steps.
func (c *WorkflowContext) ActiveDirectory() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeDir
}

func (c *WorkflowContext) setActiveDirectory(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeDir = dir
}

// Teardown removes the directories EnsureBaseDirectory created. A base
// directory that existed beforehand is kept with its contents. Only the first
// call does any work; later calls return the first result.
func (c *WorkflowContext) Teardown() error {
	c.teardownOnce.Do(func() {
		c.mu.Lock()
		dir := c.owned
		c.activeDir = ""
		c.mu.Unlock()

		if dir == "" {
			return
		}

		if err := os.RemoveAll(dir); err != nil {
			c.teardownErr = fmt.Errorf("remove base working directory: %w", err)
			return
		}
		c.logger.Debug("Base working directory removed", zap.String("dir", dir))
	})
	return c.teardownErr
}

// topmostMissing returns the outermost ancestor of dir (dir included) that
// does not exist yet, or "" when dir already exists.
func topmostMissing(dir string) (string, error) {
	missing := ""
	for cur := dir; ; {
		_, err := os.Stat(cur)
		if err == nil {
			return missing, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		missing = cur

		parent := filepath.Dir(cur)
		if parent == cur {
			return missing, nil
		}
		cur = parent
	}
}
