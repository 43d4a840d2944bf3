package dsl

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/cross19xx/eas-build/pkg/build"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var yamlLinePattern = regexp.MustCompile(`line\s+(\d+)`)

// Parser YAML 解析器
type Parser struct {
	logger *zap.Logger
}

// NewParser 创建解析器
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// Parse 解析 YAML 内容为 Definition 结构
func (p *Parser) Parse(content []byte) (*Definition, error) {
	var def Definition

	// 使用 yaml.Node 解析以保留行号信息
	var node yaml.Node
	if err := yaml.Unmarshal(content, &node); err != nil {
		return nil, p.wrapYAMLError(err, content)
	}
	if node.Kind == 0 {
		return nil, &ValidationError{
			Type:   ErrTypeYAMLSyntax,
			Detail: "YAML document is empty",
			Errors: []FieldError{{Error: "empty document", Suggestion: "Add 'name' and 'steps' fields"}},
		}
	}

	// 解析为结构体
	if err := node.Decode(&def); err != nil {
		return nil, p.wrapYAMLError(err, content)
	}

	p.extractLineNumbers(&def, &node)

	// 填充内部字段
	for name, fn := range def.Functions {
		if fn == nil {
			continue
		}
		fn.Name = name
	}

	p.logger.Debug("YAML parsed successfully",
		zap.String("build", def.Name),
		zap.Int("steps", len(def.Steps)),
		zap.Int("functions", len(def.Functions)),
	)

	return &def, nil
}

// wrapYAMLError 包装 YAML 错误为友好格式
func (p *Parser) wrapYAMLError(err error, content []byte) error {
	// 典型错误: "yaml: line 5: mapping values are not allowed in this context"
	errMsg := err.Error()

	var lineNum int
	if matches := yamlLinePattern.FindStringSubmatch(errMsg); len(matches) > 1 {
		_, _ = fmt.Sscanf(matches[1], "%d", &lineNum)
	}

	snippet := ""
	suggestion := ""
	if lineNum > 0 {
		snippet = extractCodeSnippet(content, lineNum, 2)
		suggestion = p.generateSuggestion(errMsg)
	}

	return &ValidationError{
		Type:   ErrTypeYAMLSyntax,
		Detail: "YAML syntax error",
		Errors: []FieldError{{
			Line:       lineNum,
			Error:      errMsg,
			Snippet:    snippet,
			Suggestion: suggestion,
		}},
	}
}

// generateSuggestion 根据错误消息生成修复建议
func (p *Parser) generateSuggestion(errMsg string) string {
	errMsg = strings.ToLower(errMsg)

	switch {
	case strings.Contains(errMsg, "mapping values are not allowed"):
		return "Add ':' after key name. Example: 'name: Build iOS'"
	case strings.Contains(errMsg, "did not find expected key"):
		return "Check YAML indentation. Use spaces (not tabs) for indentation."
	case strings.Contains(errMsg, "could not find expected"):
		return "Check for missing closing quotes or brackets."
	case strings.Contains(errMsg, "found character that cannot start"):
		return "Check for invalid characters or missing quotes around special characters."
	case strings.Contains(errMsg, "cannot unmarshal"):
		return "Check the field type. 'steps' is a list, 'env' and 'with' are mappings."
	}

	return "Check YAML syntax. Refer to https://yaml.org/spec/1.2/spec.html"
}

// extractLineNumbers 提取字段行号映射
func (p *Parser) extractLineNumbers(def *Definition, node *yaml.Node) {
	def.LineMap = make(map[string]int)

	if node.Kind != yaml.DocumentNode || len(node.Content) == 0 {
		return
	}
	rootNode := node.Content[0]
	if rootNode.Kind != yaml.MappingNode {
		return
	}

	for i := 0; i+1 < len(rootNode.Content); i += 2 {
		keyNode := rootNode.Content[i]
		valueNode := rootNode.Content[i+1]

		key := keyNode.Value
		def.LineMap[key] = keyNode.Line

		switch {
		case key == "steps" && valueNode.Kind == yaml.SequenceNode:
			p.extractStepLineNumbers(def, "steps", def.Steps, valueNode)
		case key == "functions" && valueNode.Kind == yaml.MappingNode:
			p.extractFunctionLineNumbers(def, valueNode)
		}
	}
}

// extractFunctionLineNumbers 提取 Function 行号
func (p *Parser) extractFunctionLineNumbers(def *Definition, fnsNode *yaml.Node) {
	for i := 0; i+1 < len(fnsNode.Content); i += 2 {
		keyNode := fnsNode.Content[i]
		valueNode := fnsNode.Content[i+1]

		name := keyNode.Value
		prefix := "functions." + name
		def.LineMap[prefix] = keyNode.Line

		fn, exists := def.Functions[name]
		if !exists || fn == nil {
			continue
		}
		fn.LineNum = keyNode.Line

		if valueNode.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(valueNode.Content); j += 2 {
			fieldKeyNode := valueNode.Content[j]
			def.LineMap[prefix+"."+fieldKeyNode.Value] = fieldKeyNode.Line

			if fieldKeyNode.Value == "steps" && valueNode.Content[j+1].Kind == yaml.SequenceNode {
				p.extractStepLineNumbers(def, prefix+".steps", fn.Steps, valueNode.Content[j+1])
			}
		}
	}
}

// extractStepLineNumbers 提取 Step 行号
func (p *Parser) extractStepLineNumbers(def *Definition, prefix string, steps []*build.StepDefinition, stepsNode *yaml.Node) {
	for i, stepNode := range stepsNode.Content {
		field := fmt.Sprintf("%s[%d]", prefix, i)
		def.LineMap[field] = stepNode.Line

		if i < len(steps) && steps[i] != nil {
			steps[i].LineNum = stepNode.Line
		}

		// 提取 step 的字段行号
		if stepNode.Kind == yaml.MappingNode {
			for j := 0; j+1 < len(stepNode.Content); j += 2 {
				fieldKeyNode := stepNode.Content[j]
				def.LineMap[field+"."+fieldKeyNode.Value] = fieldKeyNode.Line
			}
		}
	}
}

// extractCodeSnippet 提取代码片段 (包含上下文)
func extractCodeSnippet(content []byte, lineNum int, contextLines int) string {
	lines := bytes.Split(content, []byte("\n"))
	if lineNum <= 0 || lineNum > len(lines) {
		return ""
	}

	// 计算起始和结束行
	start := lineNum - contextLines - 1
	end := lineNum + contextLines
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}

	var buf strings.Builder
	for i := start; i < end; i++ {
		// 标记错误行
		marker := "  "
		if i == lineNum-1 {
			marker = "→ "
		}
		_, _ = buf.WriteString(fmt.Sprintf("%s%3d | %s\n", marker, i+1, lines[i]))
	}

	return buf.String()
}
