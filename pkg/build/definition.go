package build

// StepDefinition describes a step before expansion. Exactly one of Run and
// Uses is set; after expansion only Run steps remain.
type StepDefinition struct {
	ID               string                 `yaml:"id,omitempty" json:"id,omitempty"`
	Name             string                 `yaml:"name,omitempty" json:"name,omitempty"`
	Run              string                 `yaml:"run,omitempty" json:"run,omitempty"`
	Uses             string                 `yaml:"uses,omitempty" json:"uses,omitempty"` // function id
	With             map[string]interface{} `yaml:"with,omitempty" json:"with,omitempty"`
	WorkingDirectory string                 `yaml:"working-directory,omitempty" json:"working_directory,omitempty"`
	Env              map[string]string      `yaml:"env,omitempty" json:"env,omitempty"`
	TimeoutMinutes   int                    `yaml:"timeout-minutes,omitempty" json:"timeout_minutes,omitempty"`

	// 内部字段
	LineNum int `yaml:"-" json:"-"`
}

// FunctionDefinition is a named, parameterized step template.
type FunctionDefinition struct {
	Name        string               `yaml:"-" json:"name"` // function id
	Description string               `yaml:"description,omitempty" json:"description,omitempty"`
	Params      map[string]ParamSpec `yaml:"params,omitempty" json:"params,omitempty"`
	Steps       []*StepDefinition    `yaml:"steps" json:"steps"`

	LineNum int `yaml:"-" json:"-"`
}

// ParamSpec 参数规范
type ParamSpec struct {
	Type        string      `yaml:"type,omitempty" json:"type,omitempty"` // string, number, boolean, list
	Required    bool        `yaml:"required,omitempty" json:"required,omitempty"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Default     interface{} `yaml:"default,omitempty" json:"default,omitempty"`
	// Pattern is a regular expression a string value must match.
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
}

// Clone returns a deep-enough copy of the definition: maps and the struct
// are copied, nested With values are shared.
func (d *StepDefinition) Clone() *StepDefinition {
	c := *d
	if d.With != nil {
		c.With = make(map[string]interface{}, len(d.With))
		for k, v := range d.With {
			c.With[k] = v
		}
	}
	if d.Env != nil {
		c.Env = make(map[string]string, len(d.Env))
		for k, v := range d.Env {
			c.Env[k] = v
		}
	}
	return &c
}
