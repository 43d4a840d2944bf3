package dsl_test

import (
	"os"
	"testing"

	"github.com/cross19xx/eas-build/pkg/build/builtin"
	"github.com/cross19xx/eas-build/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSemanticValidator(t *testing.T) *dsl.SemanticValidator {
	registry, err := builtin.NewRegistry()
	require.NoError(t, err)
	return dsl.NewSemanticValidator(registry)
}

func semanticErrors(t *testing.T, content string) []dsl.FieldError {
	t.Helper()

	def, err := setupParser(t).Parse([]byte(content))
	require.NoError(t, err)

	err = setupSemanticValidator(t).Validate(def, []byte(content))
	if err == nil {
		return nil
	}
	var valErr *dsl.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "semantic_validation_error", valErr.Type)
	return valErr.Errors
}

func TestSemanticValidator_Valid(t *testing.T) {
	for _, file := range []string{
		"../../testdata/valid/simple.yaml",
		"../../testdata/valid/functions.yaml",
	} {
		t.Run(file, func(t *testing.T) {
			content, err := os.ReadFile(file)
			require.NoError(t, err)
			assert.Empty(t, semanticErrors(t, string(content)))
		})
	}
}

func TestSemanticValidator_Errors(t *testing.T) {
	content, err := os.ReadFile("../../testdata/invalid/semantic-error.yaml")
	require.NoError(t, err)

	errs := semanticErrors(t, string(content))
	byField := make(map[string]dsl.FieldError)
	for _, e := range errs {
		byField[e.Field] = e
	}

	missing, ok := byField["steps[0].with.repository"]
	require.True(t, ok, "%+v", errs)
	assert.Equal(t, "missing required parameter", missing.Error)
	assert.Equal(t, 3, missing.Line)

	dup, ok := byField["steps[1].id"]
	require.True(t, ok, "%+v", errs)
	assert.Contains(t, dup.Error, "duplicate step id 'fetch'")

	unknown, ok := byField["steps[2].uses"]
	require.True(t, ok, "%+v", errs)
	assert.Contains(t, unknown.Error, "deploy-to-store")
	assert.Contains(t, unknown.Suggestion, "checkout")

	_, ok = byField["steps[3].with"]
	assert.True(t, ok, "%+v", errs)
}

func TestSemanticValidator_UnsupportedParameter(t *testing.T) {
	errs := semanticErrors(t, `
name: x
steps:
  - uses: upload-artifact
    with:
      path: a.txt
      colour: red
`)
	require.Len(t, errs, 1)
	assert.Equal(t, "steps[0].with.colour", errs[0].Field)
	assert.Contains(t, errs[0].Suggestion, "path")
}

func TestSemanticValidator_GeneratedIDCollision(t *testing.T) {
	errs := semanticErrors(t, `
name: x
steps:
  - run: echo one
  - id: step-1
    run: echo two
`)
	require.Len(t, errs, 1)
	assert.Equal(t, "steps[1].id", errs[0].Field)
}

func TestSemanticValidator_FunctionErrors(t *testing.T) {
	t.Run("shadows builtin", func(t *testing.T) {
		errs := semanticErrors(t, `
name: x
functions:
  checkout:
    steps:
      - run: echo mine
steps:
  - run: echo hi
`)
		require.NotEmpty(t, errs)
		assert.Equal(t, "functions.checkout", errs[0].Field)
		assert.Contains(t, errs[0].Error, "already registered")
		assert.Equal(t, 4, errs[0].Line)
	})

	t.Run("bad substitution", func(t *testing.T) {
		errs := semanticErrors(t, `
name: x
functions:
  greet:
    params:
      who:
        default: world
    steps:
      - run: echo ${{ params.who
steps:
  - uses: greet
`)
		require.Len(t, errs, 1)
		assert.Equal(t, "functions.greet.steps[0].run", errs[0].Field)
		assert.Equal(t, 9, errs[0].Line)
	})

	t.Run("empty artifact type", func(t *testing.T) {
		errs := semanticErrors(t, `
name: x
steps:
  - uses: upload-artifact
    with:
      type: ""
      path: app.aab
`)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Field, "with.type")
		assert.Contains(t, errs[0].Error, "does not match")
	})

	t.Run("cycle", func(t *testing.T) {
		errs := semanticErrors(t, `
name: x
functions:
  a:
    steps:
      - uses: b
  b:
    steps:
      - uses: a
steps:
  - uses: a
`)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Error, "cycle")
	})
}
