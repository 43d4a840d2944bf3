package dsl

import (
	"sort"

	"github.com/cross19xx/eas-build/pkg/build"
)

// Definition 构建定义 (build YAML 文件)
type Definition struct {
	Name             string                               `yaml:"name" json:"name"`
	Env              map[string]string                    `yaml:"env,omitempty" json:"env,omitempty"`
	WorkingDirectory string                               `yaml:"working-directory,omitempty" json:"working_directory,omitempty"`
	Functions        map[string]*build.FunctionDefinition `yaml:"functions,omitempty" json:"functions,omitempty"`
	Steps            []*build.StepDefinition              `yaml:"steps" json:"steps"`

	// 元数据 (内部使用)
	SourceFile string         `yaml:"-" json:"-"`
	LineMap    map[string]int `yaml:"-" json:"-"` // 字段 → 行号映射
}

// FunctionNames returns the ids of the functions declared in the file, sorted.
func (d *Definition) FunctionNames() []string {
	names := make([]string, 0, len(d.Functions))
	for name := range d.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterFunctions adds the declared functions to registry in name order.
func (d *Definition) RegisterFunctions(registry *build.FunctionRegistry) error {
	for _, name := range d.FunctionNames() {
		if err := registry.Register(d.Functions[name]); err != nil {
			return err
		}
	}
	return nil
}

func paramNames(specs map[string]build.ParamSpec) []string {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
