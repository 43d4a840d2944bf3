package build

import (
	"fmt"
	"path/filepath"
	"strings"
)

func builtinUpper(s string) string { return strings.ToUpper(s) }
func builtinLower(s string) string { return strings.ToLower(s) }
func builtinTrim(s string) string  { return strings.TrimSpace(s) }

func builtinReplace(s, old, replacement string) string {
	return strings.ReplaceAll(s, old, replacement)
}

func builtinBasename(path string) string {
	return filepath.Base(path)
}

// builtinJoin joins list items with sep
func builtinJoin(items []interface{}, sep string) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = fmt.Sprintf("%v", item)
	}
	return strings.Join(parts, sep)
}

// builtinFormat formats a template string with arguments: format('{0}-{1}', a, b)
func builtinFormat(template string, args ...interface{}) string {
	result := template
	for i, arg := range args {
		placeholder := fmt.Sprintf("{%d}", i)
		result = strings.ReplaceAll(result, placeholder, fmt.Sprintf("%v", arg))
	}
	return result
}

// builtinCoalesce returns the first argument that is neither nil nor "".
func builtinCoalesce(values ...interface{}) interface{} {
	for _, v := range values {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		return v
	}
	return ""
}
