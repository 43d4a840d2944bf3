package dsl

import (
	"errors"
	"fmt"

	"github.com/cross19xx/eas-build/pkg/build"
)

// SemanticValidator 语义验证器
type SemanticValidator struct {
	registry *build.FunctionRegistry
	timeouts *build.TimeoutResolver
}

// NewSemanticValidator 创建语义验证器. The validator keeps no per-call
// state and is safe for concurrent use. registry holds the functions every
// definition may use in addition to its own.
func NewSemanticValidator(registry *build.FunctionRegistry) *SemanticValidator {
	if registry == nil {
		registry = build.NewFunctionRegistry()
	}
	return &SemanticValidator{
		registry: registry,
		timeouts: build.NewTimeoutResolver(0),
	}
}

// Validate 验证构建定义语义
func (v *SemanticValidator) Validate(def *Definition, content []byte) error {
	registry := v.registry.Clone()
	var errs []FieldError

	// 1. 注册文件内声明的函数
	for _, name := range def.FunctionNames() {
		fn := def.Functions[name]
		if fn == nil {
			continue
		}
		if err := registry.Register(fn); err != nil {
			errs = append(errs, v.fieldError(def, content, fn.LineNum, err))
		}
	}

	// 2. 验证步骤
	seen := make(map[string]int)
	for i, step := range def.Steps {
		if step == nil {
			continue
		}
		field := fmt.Sprintf("steps[%d]", i)

		id := step.ID
		if id == "" {
			id = fmt.Sprintf("step-%d", i+1)
		}
		if prev, dup := seen[id]; dup {
			errs = append(errs, FieldError{
				Line:       step.LineNum,
				Field:      field + ".id",
				Error:      fmt.Sprintf("duplicate step id '%s'", id),
				Value:      id,
				Snippet:    extractCodeSnippet(content, step.LineNum, 2),
				Suggestion: fmt.Sprintf("Step ids must be unique; 'steps[%d]' already uses '%s'", prev, id),
			})
		}
		seen[id] = i

		errs = append(errs, v.validateStep(registry, content, field, step)...)
	}

	// 3. 试展开, 捕获替换表达式、循环引用等错误
	// run/uses 互斥由 schema 报告
	if len(errs) == 0 && runOrUsesOnly(def.Steps) {
		if _, err := build.NewBuilder(registry, nil, nil).Expand(def.Steps); err != nil {
			errs = append(errs, v.fieldError(def, content, 0, err))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{
			Type:   ErrTypeSemantic,
			Detail: fmt.Sprintf("Found %d semantic errors", len(errs)),
			Errors: errs,
		}
	}

	return nil
}

// validateStep 验证步骤
func (v *SemanticValidator) validateStep(registry *build.FunctionRegistry, content []byte, field string, step *build.StepDefinition) []FieldError {
	var errs []FieldError

	if err := v.timeouts.ValidateTimeout(step.TimeoutMinutes, field+".timeout-minutes"); err != nil {
		errs = append(errs, FieldError{
			Line:    step.LineNum,
			Field:   field + ".timeout-minutes",
			Error:   err.Error(),
			Value:   step.TimeoutMinutes,
			Snippet: extractCodeSnippet(content, step.LineNum, 2),
		})
	}

	if step.Uses == "" {
		if len(step.With) > 0 {
			errs = append(errs, FieldError{
				Line:       step.LineNum,
				Field:      field + ".with",
				Error:      "'with' is only valid together with 'uses'",
				Snippet:    extractCodeSnippet(content, step.LineNum, 2),
				Suggestion: "Remove 'with' or call a function with 'uses'",
			})
		}
		return errs
	}

	// 检查函数是否存在
	fn, err := registry.Get(step.Uses)
	if err != nil {
		return append(errs, FieldError{
			Line:       step.LineNum,
			Field:      field + ".uses",
			Error:      fmt.Sprintf("function '%s' not found", step.Uses),
			Value:      step.Uses,
			Snippet:    extractCodeSnippet(content, step.LineNum, 2),
			Suggestion: fmt.Sprintf("Available functions: %v", registry.List()),
		})
	}

	// 检查必填参数
	for _, name := range paramNames(fn.Params) {
		spec := fn.Params[name]
		if !spec.Required || spec.Default != nil {
			continue
		}
		if value, exists := step.With[name]; !exists || value == nil {
			errs = append(errs, FieldError{
				Line:       step.LineNum,
				Field:      fmt.Sprintf("%s.with.%s", field, name),
				Error:      "missing required parameter",
				Snippet:    extractCodeSnippet(content, step.LineNum, 2),
				Suggestion: fmt.Sprintf("Add '%s' parameter. %s", name, spec.Description),
			})
		}
	}

	// 检查未知参数
	for _, name := range sortedKeys(step.With) {
		if _, exists := fn.Params[name]; !exists {
			errs = append(errs, FieldError{
				Line:       step.LineNum,
				Field:      fmt.Sprintf("%s.with.%s", field, name),
				Error:      "unsupported parameter",
				Snippet:    extractCodeSnippet(content, step.LineNum, 2),
				Suggestion: fmt.Sprintf("Supported parameters: %v", paramNames(fn.Params)),
			})
		}
	}

	return errs
}

// fieldError converts an engine error into a FieldError, locating the line
// from the error's field path when possible.
func (v *SemanticValidator) fieldError(def *Definition, content []byte, line int, err error) FieldError {
	fe := FieldError{Error: err.Error()}

	var cfgErr *build.ConfigurationError
	var unknown *build.UnknownFunctionError
	switch {
	case errors.As(err, &cfgErr):
		fe.Field = cfgErr.Field
	case errors.As(err, &unknown):
		fe.Field = "uses"
		fe.Value = unknown.FunctionID
		fe.Suggestion = fmt.Sprintf("Available functions: %v", unknown.Available)
	}

	if line == 0 && fe.Field != "" {
		line, _ = lookupLine(def.LineMap, fe.Field)
	}
	if line > 0 {
		fe.Line = line
		fe.Snippet = extractCodeSnippet(content, line, 2)
	}

	return fe
}

func runOrUsesOnly(steps []*build.StepDefinition) bool {
	for _, step := range steps {
		if step == nil || (step.Run == "") == (step.Uses == "") {
			return false
		}
	}
	return true
}
