package build

import (
	"fmt"
	"regexp"
	"strings"
)

// Expression pattern: ${{ ... }}
var exprPattern = regexp.MustCompile(`\$\{\{(.+?)\}\}`)

// ExpressionReplacer replaces ${{ }} expressions in strings.
type ExpressionReplacer struct {
	engine *Engine
}

// NewExpressionReplacer creates a new expression replacer
func NewExpressionReplacer(engine *Engine) *ExpressionReplacer {
	return &ExpressionReplacer{engine: engine}
}

// Replace replaces all expressions in a string. An expression that fails to
// compile, fails to evaluate or yields nil is an error, as is an opening
// "${{" without a matching "}}".
func (r *ExpressionReplacer) Replace(input string, ctx *ExpandContext) (string, error) {
	var firstErr error

	result := exprPattern.ReplaceAllStringFunc(input, func(match string) string {
		if firstErr != nil {
			return match
		}

		expression := strings.TrimSpace(match[3 : len(match)-2])
		if expression == "" {
			firstErr = &ExpressionError{Expression: match, Message: "empty expression", Type: "compile_error"}
			return match
		}

		value, err := r.engine.Evaluate(expression, ctx)
		if err != nil {
			firstErr = err
			return match
		}
		if value == nil {
			firstErr = &ExpressionError{Expression: expression, Message: "expression resolved to nil", Type: "nil_result"}
			return match
		}

		return fmt.Sprintf("%v", value)
	})

	if firstErr != nil {
		return "", firstErr
	}

	// Anything left over was never closed.
	if strings.Contains(exprPattern.ReplaceAllString(input, ""), "${{") {
		return "", &ExpressionError{Expression: input, Message: "unterminated expression", Type: "compile_error"}
	}

	return result, nil
}

// ReplaceInMap recursively replaces expressions in a map
func (r *ExpressionReplacer) ReplaceInMap(m map[string]interface{}, ctx *ExpandContext) (map[string]interface{}, error) {
	if m == nil {
		return nil, nil
	}

	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		replaced, err := r.replaceValue(v, ctx)
		if err != nil {
			return nil, fmt.Errorf("replace in key '%s': %w", k, err)
		}
		result[k] = replaced
	}
	return result, nil
}

// ReplaceInArray recursively replaces expressions in an array
func (r *ExpressionReplacer) ReplaceInArray(arr []interface{}, ctx *ExpandContext) ([]interface{}, error) {
	result := make([]interface{}, len(arr))
	for i, v := range arr {
		replaced, err := r.replaceValue(v, ctx)
		if err != nil {
			return nil, fmt.Errorf("replace in index %d: %w", i, err)
		}
		result[i] = replaced
	}
	return result, nil
}

// ReplaceInStringMap replaces expressions in every value of m.
func (r *ExpressionReplacer) ReplaceInStringMap(m map[string]string, ctx *ExpandContext) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}

	result := make(map[string]string, len(m))
	for k, v := range m {
		replaced, err := r.Replace(v, ctx)
		if err != nil {
			return nil, fmt.Errorf("replace in key '%s': %w", k, err)
		}
		result[k] = replaced
	}
	return result, nil
}

func (r *ExpressionReplacer) replaceValue(v interface{}, ctx *ExpandContext) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return r.Replace(val, ctx)
	case map[string]interface{}:
		return r.ReplaceInMap(val, ctx)
	case []interface{}:
		return r.ReplaceInArray(val, ctx)
	default:
		return v, nil
	}
}
