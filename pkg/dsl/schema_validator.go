package dsl

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema/build-schema.json
var schemaJSON []byte

// gojsonschema reports array indices as ".N"; LineMap uses "[N]".
var schemaIndexPattern = regexp.MustCompile(`\.(\d+)(\.|$)`)

// SchemaValidator JSON Schema 验证器
type SchemaValidator struct {
	schema *gojsonschema.Schema
}

// NewSchemaValidator 创建 Schema 验证器
func NewSchemaValidator() (*SchemaValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	return &SchemaValidator{schema: schema}, nil
}

// ValidateYAML 验证构建定义结构
// 注意：这里接受原始 YAML 内容而不是解析后的结构体，以避免 Go tag 转换问题
func (v *SchemaValidator) ValidateYAML(content []byte, def *Definition) error {
	var data map[string]interface{}
	if err := yaml.Unmarshal(content, &data); err != nil {
		return fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	result, err := v.schema.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		return v.convertSchemaErrors(result.Errors(), def, content)
	}

	return nil
}

// GetSchemaJSON returns the embedded JSON schema
func (v *SchemaValidator) GetSchemaJSON() ([]byte, error) {
	out := make([]byte, len(schemaJSON))
	copy(out, schemaJSON)
	return out, nil
}

// convertSchemaErrors 转换 schema 错误为 ValidationError
func (v *SchemaValidator) convertSchemaErrors(errs []gojsonschema.ResultError, def *Definition, content []byte) error {
	fieldErrors := make([]FieldError, 0, len(errs))

	for _, err := range errs {
		field := schemaFieldPath(err.Field())
		if err.Type() == "additional_property_not_allowed" {
			if prop, ok := err.Details()["property"].(string); ok {
				field = joinFieldPath(field, prop)
			}
		}

		fieldErr := FieldError{
			Field:      field,
			Error:      err.Description(),
			Value:      err.Value(),
			Suggestion: v.generateSuggestion(err),
		}

		if def != nil && def.LineMap != nil {
			if line, ok := lookupLine(def.LineMap, field); ok {
				fieldErr.Line = line
				fieldErr.Snippet = extractCodeSnippet(content, line, 2)
			}
		}

		fieldErrors = append(fieldErrors, fieldErr)
	}

	return &ValidationError{
		Type:   ErrTypeSchema,
		Detail: fmt.Sprintf("Found %d schema validation errors", len(fieldErrors)),
		Errors: fieldErrors,
	}
}

// generateSuggestion 根据错误类型生成修复建议
func (v *SchemaValidator) generateSuggestion(err gojsonschema.ResultError) string {
	switch err.Type() {
	case "required":
		if prop, ok := err.Details()["property"].(string); ok {
			return fmt.Sprintf("Add the required field. Example: %s: <value>", prop)
		}
		return "Add the required field."
	case "invalid_type":
		return "Check the field type matches the expected type in the schema."
	case "string_gte":
		return "String length must be greater than or equal to the minimum length."
	case "string_lte":
		return "String length must be less than or equal to the maximum length."
	case "pattern":
		return "Value must match the required pattern format."
	case "number_gte":
		return "Number must be greater than or equal to the minimum value."
	case "number_lte":
		return "Number must be less than or equal to the maximum value."
	case "array_min_items":
		return "Array must contain at least the minimum number of items."
	case "number_one_of":
		return "A step sets exactly one of 'run' and 'uses'."
	case "additional_property_not_allowed":
		return "Field is not allowed. Check for typos or refer to the schema documentation."
	case "enum":
		return "Use one of the allowed values."
	}

	if strings.Contains(strings.ToLower(err.Description()), "does not match pattern") {
		return "Value format is invalid. Check the expected format in the documentation."
	}
	return "Check the field value matches the schema requirements."
}

// schemaFieldPath converts "steps.0.run" into "steps[0].run" and "(root)" into "".
func schemaFieldPath(field string) string {
	if field == "(root)" {
		return ""
	}
	for schemaIndexPattern.MatchString(field) {
		field = schemaIndexPattern.ReplaceAllString(field, "[$1]$2")
	}
	return field
}

// lookupLine finds the line of field, falling back to its closest parent.
func lookupLine(lineMap map[string]int, field string) (int, bool) {
	for field != "" {
		if line, ok := lineMap[field]; ok {
			return line, true
		}
		idx := strings.LastIndexAny(field, ".[")
		if idx <= 0 {
			break
		}
		field = field[:idx]
	}
	return 0, false
}

func joinFieldPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}
