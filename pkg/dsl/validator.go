package dsl

import (
	"errors"
	"fmt"

	"github.com/cross19xx/eas-build/pkg/build"
	"github.com/cross19xx/eas-build/pkg/build/builtin"
	"go.uber.org/zap"
)

// MaxDefinitionSize 构建定义文件大小上限 (防护 YAML Bomb)
const MaxDefinitionSize = 10 * 1024 * 1024 // 10MB

const maxReportedErrors = 20

// Validator 验证器门面
type Validator struct {
	parser            *Parser
	schemaValidator   *SchemaValidator
	semanticValidator *SemanticValidator
	registry          *build.FunctionRegistry
	logger            *zap.Logger
}

// NewValidator 创建验证器. A nil registry means the builtin functions.
func NewValidator(logger *zap.Logger, registry *build.FunctionRegistry) (*Validator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		var err error
		registry, err = builtin.NewRegistry()
		if err != nil {
			return nil, fmt.Errorf("failed to register builtin functions: %w", err)
		}
	}

	schemaValidator, err := NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create schema validator: %w", err)
	}

	return &Validator{
		parser:            NewParser(logger),
		schemaValidator:   schemaValidator,
		semanticValidator: NewSemanticValidator(registry),
		registry:          registry,
		logger:            logger,
	}, nil
}

// Registry returns the base function registry.
func (v *Validator) Registry() *build.FunctionRegistry {
	return v.registry
}

// ValidateYAML 完整验证流程
func (v *Validator) ValidateYAML(content []byte) (*Definition, error) {
	if len(content) > MaxDefinitionSize {
		return nil, &ValidationError{
			Type:   ErrTypeValidation,
			Detail: "YAML file size exceeds limit",
			Errors: []FieldError{{
				Error:      fmt.Sprintf("file size %d bytes exceeds limit %d bytes (10MB)", len(content), MaxDefinitionSize),
				Suggestion: "Reduce YAML file size or move steps into functions",
			}},
		}
	}

	// 1. YAML 语法解析
	def, err := v.parser.Parse(content)
	if err != nil {
		return nil, err // 语法错误时直接返回
	}

	var allErrors []FieldError

	// 2. JSON Schema 结构验证
	if err := v.schemaValidator.ValidateYAML(content, def); err != nil {
		var validationErr *ValidationError
		if !errors.As(err, &validationErr) {
			return nil, err
		}
		allErrors = append(allErrors, validationErr.Errors...)
	}

	// 3. 语义验证
	if err := v.semanticValidator.Validate(def, content); err != nil {
		var validationErr *ValidationError
		if !errors.As(err, &validationErr) {
			return nil, err
		}
		allErrors = append(allErrors, validationErr.Errors...)
	}

	// 4. 返回收集的错误
	if len(allErrors) > 0 {
		sortFieldErrors(allErrors)
		if len(allErrors) > maxReportedErrors {
			allErrors = allErrors[:maxReportedErrors]
		}
		return nil, &ValidationError{
			Type:   ErrTypeValidation,
			Detail: fmt.Sprintf("Found %d validation errors", len(allErrors)),
			Errors: allErrors,
		}
	}

	v.logger.Info("Build definition validated successfully",
		zap.String("build", def.Name),
		zap.Int("steps", len(def.Steps)),
		zap.Int("functions", len(def.Functions)),
	)

	return def, nil
}

// GetSchemaJSON returns the embedded JSON schema
func (v *Validator) GetSchemaJSON() ([]byte, error) {
	return v.schemaValidator.GetSchemaJSON()
}
