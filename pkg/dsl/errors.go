package dsl

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
)

// Validation error types
const (
	ErrTypeYAMLSyntax = "yaml_syntax_error"
	ErrTypeSchema     = "schema_validation_error"
	ErrTypeSemantic   = "semantic_validation_error"
	ErrTypeValidation = "validation_error"
)

// ValidationError reports every problem found in one build definition.
type ValidationError struct {
	Type   string       `json:"type"`   // ErrType* 常量之一
	Detail string       `json:"detail"` // 错误描述
	Errors []FieldError `json:"errors"` // 具体字段错误列表
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		fe := e.Errors[0]
		if fe.Line > 0 {
			return fmt.Sprintf("%s: line %d: %s: %s", e.Type, fe.Line, fe.Field, fe.Error)
		}
		return fmt.Sprintf("%s: %s: %s", e.Type, fe.Field, fe.Error)
	}
	return fmt.Sprintf("%s: %s (%d errors)", e.Type, e.Detail, len(e.Errors))
}

// FieldError locates one problem in the definition.
type FieldError struct {
	Line       int         `json:"line,omitempty"`   // 从 1 开始
	Column     int         `json:"column,omitempty"` // 从 1 开始
	Field      string      `json:"field"`            // 如 "steps[2].with.scheme"
	Error      string      `json:"error"`
	Value      interface{} `json:"value,omitempty"`
	Snippet    string      `json:"snippet,omitempty"` // 含上下文的代码片段
	Suggestion string      `json:"suggestion,omitempty"`
}

// sortFieldErrors orders errors by line; errors without a line go last.
func sortFieldErrors(errs []FieldError) {
	sort.SliceStable(errs, func(i, j int) bool {
		li, lj := errs[i].Line, errs[j].Line
		if li == 0 || lj == 0 {
			return li != 0 && lj == 0
		}
		return li < lj
	})
}

// ToHTTPError renders the error as an RFC 7807 problem document.
func (e *ValidationError) ToHTTPError() map[string]interface{} {
	return map[string]interface{}{
		"type":       "about:blank",
		"title":      "Build Definition Validation Failed",
		"status":     http.StatusBadRequest,
		"detail":     e.Detail,
		"error_type": e.Type,
		"errors":     e.Errors,
	}
}

// ToJSON 转换为 JSON 字符串
func (e *ValidationError) ToJSON() (string, error) {
	data, err := json.MarshalIndent(e.ToHTTPError(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
