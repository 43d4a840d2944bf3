package build

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBuilder_Expand(t *testing.T) {
	registry := newTestRegistry(t, archiveFunction())
	builder := NewBuilder(registry, &mockRunner{}, zaptest.NewLogger(t))

	defs, err := builder.Expand([]*StepDefinition{
		{Run: "npm ci"},
		{ID: "ios", Uses: "archive", With: map[string]interface{}{"scheme": "App"}},
		{ID: "done", Run: "echo done"},
	})
	require.NoError(t, err)

	ids := make([]string, len(defs))
	for i, d := range defs {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"step-1", "ios.build", "ios.2", "done"}, ids)
}

func TestBuilder_ExpandValidation(t *testing.T) {
	registry := newTestRegistry(t, archiveFunction())
	builder := NewBuilder(registry, &mockRunner{}, nil)

	tests := []struct {
		name  string
		steps []*StepDefinition
		field string
	}{
		{"run and uses", []*StepDefinition{{Run: "x", Uses: "archive"}}, "steps[0]"},
		{"neither", []*StepDefinition{{ID: "a"}}, "steps[0]"},
		{"with without uses", []*StepDefinition{{Run: "x", With: map[string]interface{}{"a": 1}}}, "steps[0].with"},
		{"negative timeout", []*StepDefinition{{Run: "x", TimeoutMinutes: -1}}, "steps[0].timeout-minutes"},
		{"timeout too large", []*StepDefinition{{Run: "x", TimeoutMinutes: 1441}}, "steps[0].timeout-minutes"},
		{"duplicate id", []*StepDefinition{{ID: "a", Run: "x"}, {ID: "a", Run: "y"}}, "steps[1].id"},
		{"generated id collision", []*StepDefinition{{Run: "x"}, {ID: "step-1", Run: "y"}}, "steps[1].id"},
		{"missing param", []*StepDefinition{{Uses: "archive"}}, "steps[0].with.scheme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := builder.Expand(tt.steps)
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	_, err := builder.Expand([]*StepDefinition{{Uses: "missing"}})
	var unknown *UnknownFunctionError
	assert.ErrorAs(t, err, &unknown)

	_, err = NewBuilder(nil, nil, nil).Expand([]*StepDefinition{{Uses: "archive"}})
	assert.ErrorAs(t, err, &unknown)
}

func TestBuilder_Build(t *testing.T) {
	registry := newTestRegistry(t, &FunctionDefinition{
		Name:   "greet",
		Params: map[string]ParamSpec{"who": {Default: "world"}},
		Steps:  []*StepDefinition{{Run: "echo hello ${{ params.who }}"}},
	})
	runner := &mockRunner{}
	builder := NewBuilder(registry, runner, zaptest.NewLogger(t))
	builder.SetDefaultStepTimeout(10)

	wfCtx := NewWorkflowContext(t.TempDir(), "", zaptest.NewLogger(t))
	wf, err := builder.Build([]*StepDefinition{
		{ID: "first", Run: "echo $A", Env: map[string]string{"A": "step"}, TimeoutMinutes: 2},
		{ID: "hi", Uses: "greet"},
	}, wfCtx, WithName("demo"))
	require.NoError(t, err)
	assert.Equal(t, "demo", wf.Name())

	steps := wf.Steps()
	require.Len(t, steps, 2)
	first := steps[0].(*CommandStep)
	assert.Equal(t, "echo $A", first.Command())
	assert.Equal(t, 2*time.Minute, first.timeout)
	second := steps[1].(*CommandStep)
	assert.Equal(t, "hi.1", second.ID())
	assert.Equal(t, 10*time.Minute, second.timeout)

	require.NoError(t, wf.Execute(context.Background(), Env{"A": "workflow", "B": "b"}))
	require.Len(t, runner.requests, 2)
	assert.Equal(t, Env{"A": "step", "B": "b"}, runner.requests[0].Env)
	assert.Equal(t, "echo hello world", runner.requests[1].Script)
}
