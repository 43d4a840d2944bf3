package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeStep 测试用 Step
type fakeStep struct {
	id        string
	dir       string
	env       Env
	artifacts []Artifact
	err       error

	// shared across steps of one test
	calls *[]string

	gotEnv   Env
	executed int
	onRun    func()
}

func (s *fakeStep) ID() string            { return s.id }
func (s *fakeStep) WorkingDir() string    { return s.dir }
func (s *fakeStep) Env() Env              { return s.env }
func (s *fakeStep) Artifacts() []Artifact { return s.artifacts }

func (s *fakeStep) Execute(ctx context.Context, env Env) error {
	s.executed++
	s.gotEnv = env
	if s.calls != nil {
		*s.calls = append(*s.calls, s.id)
	}
	if s.onRun != nil {
		s.onRun()
	}
	return s.err
}

// recordingObserver 记录 Observer 回调
type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished []string
	status   WorkflowStatus
}

func (o *recordingObserver) StepStarted(_ string, _ int, stepID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, stepID)
}

func (o *recordingObserver) StepFinished(_ string, _ int, stepID string, _ time.Duration, _ []Artifact, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		stepID += ":failed"
	}
	o.finished = append(o.finished, stepID)
}

func (o *recordingObserver) WorkflowFinished(_ string, status WorkflowStatus, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = status
}

func newTestContext(t *testing.T) *WorkflowContext {
	t.Helper()
	return NewWorkflowContext(filepath.Join(t.TempDir(), "work"), "", zaptest.NewLogger(t))
}

func newTestWorkflow(t *testing.T, steps ...Step) *Workflow {
	t.Helper()
	wf, err := NewWorkflow(steps, newTestContext(t), WithLogger(zaptest.NewLogger(t)), WithName("test"))
	require.NoError(t, err)
	return wf
}

func TestWorkflow_ExecutesAllStepsInOrder(t *testing.T) {
	var calls []string
	a := &fakeStep{id: "a", calls: &calls}
	b := &fakeStep{id: "b", calls: &calls}
	c := &fakeStep{id: "c", calls: &calls}

	wf := newTestWorkflow(t, a, b, c)
	require.NoError(t, wf.Execute(context.Background(), nil))

	assert.Equal(t, []string{"a", "b", "c"}, calls)
	for _, s := range []*fakeStep{a, b, c} {
		assert.Equal(t, 1, s.executed, s.id)
	}
	assert.Equal(t, WorkflowCompleted, wf.Status())
}

func TestWorkflow_EnvPassThrough(t *testing.T) {
	a := &fakeStep{id: "a", env: Env{"STEP": "a", "SHARED": "step"}}
	b := &fakeStep{id: "b"}

	wf := newTestWorkflow(t, a, b)
	require.NoError(t, wf.Execute(context.Background(), Env{"PLATFORM": "ios", "SHARED": "workflow"}))

	assert.Equal(t, Env{"PLATFORM": "ios", "STEP": "a", "SHARED": "step"}, a.gotEnv)
	assert.Equal(t, Env{"PLATFORM": "ios", "SHARED": "workflow"}, b.gotEnv)
}

func TestWorkflow_NilEnvMeansStepEnvOnly(t *testing.T) {
	a := &fakeStep{id: "a", env: Env{"ONLY": "step"}}
	b := &fakeStep{id: "b"}

	wf := newTestWorkflow(t, a, b)
	require.NoError(t, wf.Execute(context.Background(), nil))

	assert.Equal(t, Env{"ONLY": "step"}, a.gotEnv)
	assert.NotNil(t, b.gotEnv)
	assert.Empty(t, b.gotEnv)
}

func TestWorkflow_EnvNotSharedBetweenSteps(t *testing.T) {
	a := &fakeStep{id: "a"}
	b := &fakeStep{id: "b"}
	a.onRun = func() { a.gotEnv["LEAK"] = "yes" }

	wf := newTestWorkflow(t, a, b)
	require.NoError(t, wf.Execute(context.Background(), Env{"K": "V"}))

	_, leaked := b.gotEnv["LEAK"]
	assert.False(t, leaked)
}

func TestWorkflow_Empty(t *testing.T) {
	wf := newTestWorkflow(t)
	require.NoError(t, wf.Execute(context.Background(), Env{"K": "V"}))

	artifacts, err := wf.CollectArtifacts()
	require.NoError(t, err)
	assert.Empty(t, artifacts)
	assert.Equal(t, WorkflowCompleted, wf.Status())
}

func TestWorkflow_ArtifactGrouping(t *testing.T) {
	s1 := &fakeStep{id: "build", artifacts: []Artifact{
		{Type: ArtifactTypeApplicationArchive, Path: "/out/app.ipa"},
	}}
	s2 := &fakeStep{id: "screens", artifacts: []Artifact{
		{Type: ArtifactTypeBuildArtifact, Path: "/out/screenshot1.png"},
		{Type: ArtifactTypeBuildArtifact, Path: "/out/screenshot2.png"},
	}}

	wf := newTestWorkflow(t, s1, s2)
	require.NoError(t, wf.Execute(context.Background(), nil))

	artifacts, err := wf.CollectArtifacts()
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		ArtifactTypeApplicationArchive: {"/out/app.ipa"},
		ArtifactTypeBuildArtifact:      {"/out/screenshot1.png", "/out/screenshot2.png"},
	}, artifacts)

	// idempotent
	again, err := wf.CollectArtifacts()
	require.NoError(t, err)
	assert.Equal(t, artifacts, again)
}

func TestWorkflow_ArtifactOrderAcrossSteps(t *testing.T) {
	s1 := &fakeStep{id: "s1", artifacts: []Artifact{{Type: "log", Path: "/1a"}, {Type: "log", Path: "/1b"}}}
	s2 := &fakeStep{id: "s2", artifacts: []Artifact{{Type: "log", Path: "/2a"}, {Type: "log", Path: "/1a"}}}

	wf := newTestWorkflow(t, s1, s2)
	require.NoError(t, wf.Execute(context.Background(), nil))

	artifacts, err := wf.CollectArtifacts()
	require.NoError(t, err)
	assert.Equal(t, []string{"/1a", "/1b", "/2a", "/1a"}, artifacts["log"])

	records, err := wf.ArtifactRecords()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, 1, records[3].StepIndex)
	assert.Equal(t, "s2", records[3].StepID)
	assert.Equal(t, 1, records[3].UploadIndex)
}

func TestWorkflow_FailFast(t *testing.T) {
	cause := errors.New("exit 1")
	a := &fakeStep{id: "a", artifacts: []Artifact{{Type: "log", Path: "/a.log"}}}
	b := &fakeStep{id: "b", err: cause, artifacts: []Artifact{{Type: "log", Path: "/b.log"}}}
	c := &fakeStep{id: "c"}

	wf := newTestWorkflow(t, a, b, c)
	err := wf.Execute(context.Background(), nil)
	require.Error(t, err)

	var aborted *WorkflowAbortedError
	require.ErrorAs(t, err, &aborted)
	assert.Equal(t, 1, aborted.StepIndex)
	assert.Equal(t, "b", aborted.StepID)

	var stepErr *StepExecutionError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "b", stepErr.StepID)
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, 0, c.executed)
	assert.Equal(t, WorkflowFailed, wf.Status())

	// only steps that completed before the failure contribute
	artifacts, err := wf.CollectArtifacts()
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"log": {"/a.log"}}, artifacts)
}

func TestWorkflow_ExecuteTwice(t *testing.T) {
	a := &fakeStep{id: "a"}
	wf := newTestWorkflow(t, a)

	require.NoError(t, wf.Execute(context.Background(), nil))
	assert.ErrorIs(t, wf.Execute(context.Background(), nil), ErrWorkflowAlreadyExecuted)
	assert.Equal(t, 1, a.executed)
}

func TestWorkflow_CollectBeforeExecute(t *testing.T) {
	wf := newTestWorkflow(t, &fakeStep{id: "a"})

	_, err := wf.CollectArtifacts()
	assert.ErrorIs(t, err, ErrWorkflowNotExecuted)
}

func TestWorkflow_CancelledBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &fakeStep{id: "a"}
	b := &fakeStep{id: "b"}
	a.onRun = cancel

	wf := newTestWorkflow(t, a, b)
	err := wf.Execute(ctx, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	var aborted *WorkflowAbortedError
	require.ErrorAs(t, err, &aborted)
	assert.Equal(t, -1, aborted.StepIndex)

	assert.Equal(t, 1, a.executed)
	assert.Equal(t, 0, b.executed)

	artifacts, err := wf.CollectArtifacts()
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}

func TestWorkflow_TeardownOnEveryPath(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "success"},
		{name: "failure", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wfCtx := newTestContext(t)

			var seenDir string
			step := &fakeStep{id: "a", err: tt.err}
			step.onRun = func() {
				seenDir = wfCtx.ActiveDirectory()
				require.NoError(t, os.WriteFile(filepath.Join(seenDir, "out.txt"), []byte("x"), 0o644))
			}

			wf, err := NewWorkflow([]Step{step}, wfCtx)
			require.NoError(t, err)
			_ = wf.Execute(context.Background(), nil)

			require.NotEmpty(t, seenDir)
			_, statErr := os.Stat(seenDir)
			assert.True(t, os.IsNotExist(statErr))
			assert.Empty(t, wfCtx.ActiveDirectory())
		})
	}
}

func TestWorkflow_TeardownKeepsPreexistingDirectory(t *testing.T) {
	project := t.TempDir()
	src := filepath.Join(project, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("keep"), 0o644))

	wfCtx := NewWorkflowContext(project, "", zaptest.NewLogger(t))
	wf, err := NewWorkflow(nil, wfCtx)
	require.NoError(t, err)
	require.NoError(t, wf.Execute(context.Background(), nil))

	assert.FileExists(t, src)
	require.NoError(t, wfCtx.Teardown())
	assert.FileExists(t, src)
}

func TestWorkflowContext_TeardownRemovesCreatedParents(t *testing.T) {
	root := t.TempDir()
	wfCtx := NewWorkflowContext(filepath.Join(root, "a", "b", "work"), "", zaptest.NewLogger(t))

	dir, err := wfCtx.EnsureBaseDirectory()
	require.NoError(t, err)
	assert.DirExists(t, dir)

	require.NoError(t, wfCtx.Teardown())
	assert.NoDirExists(t, filepath.Join(root, "a"))
	assert.DirExists(t, root)
}

func TestWorkflow_StepsRunInResolvedDirectory(t *testing.T) {
	wfCtx := newTestContext(t)

	var dirs []string
	a := &fakeStep{id: "a"}
	b := &fakeStep{id: "b", dir: "ios"}
	a.onRun = func() { dirs = append(dirs, wfCtx.ActiveDirectory()) }
	b.onRun = func() { dirs = append(dirs, wfCtx.ActiveDirectory()) }

	wf, err := NewWorkflow([]Step{a, b}, wfCtx)
	require.NoError(t, err)
	require.NoError(t, wf.Execute(context.Background(), nil))

	require.Len(t, dirs, 2)
	assert.Equal(t, dirs[0], wfCtx.BaseDirectory())
	assert.Equal(t, filepath.Join(dirs[0], "ios"), dirs[1])
}

func TestWorkflow_ObserverAndState(t *testing.T) {
	obs := &recordingObserver{}
	a := &fakeStep{id: "a", artifacts: []Artifact{{Type: "log", Path: "/a"}}}
	b := &fakeStep{id: "b", err: errors.New("boom")}
	c := &fakeStep{id: "c"}

	wf, err := NewWorkflow([]Step{a, b, c}, newTestContext(t), WithObserver(obs), WithID("build-1"), WithName("ios"))
	require.NoError(t, err)
	require.Error(t, wf.Execute(context.Background(), nil))

	assert.Equal(t, []string{"a", "b"}, obs.started)
	assert.Equal(t, []string{"a", "b:failed"}, obs.finished)
	assert.Equal(t, WorkflowFailed, obs.status)

	report := wf.State()
	assert.Equal(t, "build-1", report.WorkflowID)
	assert.Equal(t, "ios", report.Name)
	assert.Equal(t, WorkflowFailed, report.Status)
	assert.NotEmpty(t, report.Error)
	require.NotNil(t, report.StartedAt)
	require.NotNil(t, report.FinishedAt)
	require.Len(t, report.Steps, 3)
	assert.Equal(t, StepSucceeded, report.Steps[0].Status)
	assert.Equal(t, 1, report.Steps[0].Artifacts)
	assert.Equal(t, StepFailed, report.Steps[1].Status)
	assert.Contains(t, report.Steps[1].Error, "boom")
	assert.Equal(t, StepPending, report.Steps[2].Status)
}

func TestNewWorkflow_Validation(t *testing.T) {
	wfCtx := newTestContext(t)

	_, err := NewWorkflow([]Step{&fakeStep{id: "a"}}, nil)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = NewWorkflow([]Step{&fakeStep{id: ""}}, wfCtx)
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "steps[0].id", cfgErr.Field)

	_, err = NewWorkflow([]Step{&fakeStep{id: "a"}, &fakeStep{id: "a"}}, wfCtx)
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "duplicate")
}

func TestNewWorkflow_CopiesStepList(t *testing.T) {
	var calls []string
	steps := []Step{&fakeStep{id: "a", calls: &calls}, &fakeStep{id: "b", calls: &calls}}

	wf, err := NewWorkflow(steps, newTestContext(t))
	require.NoError(t, err)
	steps[0] = &fakeStep{id: "x", calls: &calls}

	require.NoError(t, wf.Execute(context.Background(), nil))
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestMergeEnv(t *testing.T) {
	wfEnv := Env{"A": "1", "B": "2"}
	stepEnv := Env{"B": "3", "C": "4"}

	merged := MergeEnv(wfEnv, stepEnv)
	assert.Equal(t, Env{"A": "1", "B": "3", "C": "4"}, merged)

	merged["A"] = "changed"
	assert.Equal(t, "1", wfEnv["A"])

	assert.Equal(t, Env{}, MergeEnv(nil, nil))
	assert.Equal(t, []string{"A=1", "B=2"}, wfEnv.Environ())
}
