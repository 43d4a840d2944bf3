package dsl_test

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/cross19xx/eas-build/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupValidator(t *testing.T) *dsl.Validator {
	validator, err := dsl.NewValidator(zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	return validator
}

func TestValidator_ValidYAML(t *testing.T) {
	validator := setupValidator(t)

	content, err := os.ReadFile("../../testdata/valid/functions.yaml")
	require.NoError(t, err)

	def, err := validator.ValidateYAML(content)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "Build iOS", def.Name)

	// the base registry is not changed by file-local functions
	assert.False(t, validator.Registry().Has("archive"))
}

func TestValidator_InvalidFiles(t *testing.T) {
	tests := []struct {
		file     string
		wantType string
	}{
		{"../../testdata/invalid/syntax-error.yaml", "yaml_syntax_error"},
		{"../../testdata/invalid/schema-error.yaml", "validation_error"},
		{"../../testdata/invalid/semantic-error.yaml", "validation_error"},
	}

	validator := setupValidator(t)
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			content, err := os.ReadFile(tt.file)
			require.NoError(t, err)

			def, err := validator.ValidateYAML(content)
			assert.Nil(t, def)

			var valErr *dsl.ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Equal(t, tt.wantType, valErr.Type)
			assert.NotEmpty(t, valErr.Errors)
		})
	}
}

func TestValidator_ErrorLimit(t *testing.T) {
	var b strings.Builder
	b.WriteString("name: Test\nsteps:\n")
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "  - uses: missing-%d\n", i)
	}

	_, err := setupValidator(t).ValidateYAML([]byte(b.String()))

	var valErr *dsl.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Len(t, valErr.Errors, 20)
}

func TestValidator_SizeLimit(t *testing.T) {
	content := make([]byte, dsl.MaxDefinitionSize+1)

	_, err := setupValidator(t).ValidateYAML(content)

	var valErr *dsl.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Detail, "size")
}

func TestValidationError_ToHTTPError(t *testing.T) {
	valErr := &dsl.ValidationError{
		Type:   "validation_error",
		Detail: "Found 1 validation errors",
		Errors: []dsl.FieldError{{Field: "steps[0].uses", Error: "function 'x' not found"}},
	}

	problem := valErr.ToHTTPError()
	assert.Equal(t, 400, problem["status"])
	assert.Equal(t, "Build Definition Validation Failed", problem["title"])

	data, err := valErr.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, data, "steps[0].uses")
}

func TestValidationError_Message(t *testing.T) {
	single := &dsl.ValidationError{
		Type:   dsl.ErrTypeSemantic,
		Errors: []dsl.FieldError{{Line: 4, Field: "steps[1].uses", Error: "unknown function"}},
	}
	assert.Equal(t, "semantic_validation_error: line 4: steps[1].uses: unknown function", single.Error())

	many := &dsl.ValidationError{
		Type:   dsl.ErrTypeValidation,
		Detail: "Found 2 validation errors",
		Errors: []dsl.FieldError{{Field: "a"}, {Field: "b"}},
	}
	assert.Equal(t, "validation_error: Found 2 validation errors (2 errors)", many.Error())
}

func TestValidator_ErrorsSortedByLine(t *testing.T) {
	v := setupValidator(t)

	content, err := os.ReadFile("../../testdata/invalid/semantic-error.yaml")
	require.NoError(t, err)

	_, err = v.ValidateYAML(content)
	var valErr *dsl.ValidationError
	require.ErrorAs(t, err, &valErr)

	last := 0
	for _, fe := range valErr.Errors {
		if fe.Line == 0 {
			continue
		}
		assert.GreaterOrEqual(t, fe.Line, last)
		last = fe.Line
	}
}

func TestValidator_ConcurrentSnippets(t *testing.T) {
	v := setupValidator(t)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			name := fmt.Sprintf("missing-fn-%d", g)
			content := []byte(fmt.Sprintf("name: Build %d\nsteps:\n  - uses: %s\n", g, name))

			for i := 0; i < 50; i++ {
				_, err := v.ValidateYAML(content)
				var valErr *dsl.ValidationError
				if !assert.ErrorAs(t, err, &valErr) || !assert.NotEmpty(t, valErr.Errors) {
					return
				}
				for _, fe := range valErr.Errors {
					if fe.Snippet != "" {
						assert.Contains(t, fe.Snippet, name)
					}
				}
			}
		}(g)
	}
	wg.Wait()
}
