package build

import (
	"context"
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// DefaultExpressionTimeout bounds a single ${{ }} evaluation.
const DefaultExpressionTimeout = 1 * time.Second

// ExpandContext is the environment visible to ${{ }} expressions in
// function templates.
type ExpandContext struct {
	Params map[string]interface{} `expr:"params"`
	Env    map[string]string      `expr:"env"`

	// Built-in functions
	Upper    func(string) string                 `expr:"upper"`
	Lower    func(string) string                 `expr:"lower"`
	Trim     func(string) string                 `expr:"trim"`
	Replace  func(string, string, string) string `expr:"replace"`
	Join     func([]interface{}, string) string  `expr:"join"`
	Format   func(string, ...interface{}) string `expr:"format"`
	Basename func(string) string                 `expr:"basename"`
	Coalesce func(...interface{}) interface{}    `expr:"coalesce"`
}

// NewExpandContext builds an ExpandContext with built-in functions set.
func NewExpandContext(params map[string]interface{}, env map[string]string) *ExpandContext {
	if params == nil {
		params = make(map[string]interface{})
	}
	if env == nil {
		env = make(map[string]string)
	}
	return &ExpandContext{
		Params:   params,
		Env:      env,
		Upper:    builtinUpper,
		Lower:    builtinLower,
		Trim:     builtinTrim,
		Replace:  builtinReplace,
		Join:     builtinJoin,
		Format:   builtinFormat,
		Basename: builtinBasename,
		Coalesce: builtinCoalesce,
	}
}

// ExpressionError represents an error during expression evaluation
type ExpressionError struct {
	Expression string `json:"expression"`
	Message    string `json:"error"`
	Type       string `json:"type"` // compile_error, evaluation_error, timeout_error, nil_result
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("expression error: %s in '%s'", e.Message, e.Expression)
}

// Engine is the expression evaluation engine
type Engine struct {
	timeout time.Duration
}

// NewEngine creates a new expression engine with the given timeout
func NewEngine(timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultExpressionTimeout
	}
	return &Engine{timeout: timeout}
}

// Compile compiles an expression against the ExpandContext schema.
func (e *Engine) Compile(expression string) (*vm.Program, error) {
	program, err := expr.Compile(expression, expr.Env(ExpandContext{}))
	if err != nil {
		return nil, &ExpressionError{Expression: expression, Message: err.Error(), Type: "compile_error"}
	}
	return program, nil
}

// Evaluate compiles and runs an expression with the given context.
func (e *Engine) Evaluate(expression string, ctx *ExpandContext) (interface{}, error) {
	program, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	return e.RunWithTimeout(expression, program, ctx)
}

// RunWithTimeout runs a compiled program with timeout protection
func (e *Engine) RunWithTimeout(expression string, program *vm.Program, ctx *ExpandContext) (interface{}, error) {
	evalCtx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	type result struct {
		value interface{}
		err   error
	}
	done := make(chan result, 1)

	go func() {
		value, err := expr.Run(program, ctx)
		done <- result{value: value, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, &ExpressionError{Expression: expression, Message: res.err.Error(), Type: "evaluation_error"}
		}
		return res.value, nil
	case <-evalCtx.Done():
		return nil, &ExpressionError{
			Expression: expression,
			Message:    fmt.Sprintf("expression evaluation timeout (>%v)", e.timeout),
			Type:       "timeout_error",
		}
	}
}
