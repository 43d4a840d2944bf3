package build

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
)

// DefaultMaxExpansionDepth limits nested `uses:` inside function templates.
const DefaultMaxExpansionDepth = 8

// FunctionRegistry holds build functions and expands them into concrete
// step definitions.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]*FunctionDefinition
	replacer  *ExpressionReplacer
	maxDepth  int
}

// NewFunctionRegistry creates an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[string]*FunctionDefinition),
		replacer:  NewExpressionReplacer(NewEngine(DefaultExpressionTimeout)),
		maxDepth:  DefaultMaxExpansionDepth,
	}
}

// Register adds a function. The id must be unique and every template step
// must set exactly one of run and uses.
func (r *FunctionRegistry) Register(fn *FunctionDefinition) error {
	if fn == nil || fn.Name == "" {
		return configErrorf("functions", "function id is empty")
	}
	field := "functions." + fn.Name
	if len(fn.Steps) == 0 {
		return configErrorf(field+".steps", "function has no steps")
	}
	for i, step := range fn.Steps {
		stepField := fmt.Sprintf("%s.steps[%d]", field, i)
		if step == nil {
			return configErrorf(stepField, "step is empty")
		}
		if err := checkRunOrUses(step, stepField); err != nil {
			return err
		}
	}
	for _, name := range paramNames(fn.Params) {
		if pattern := fn.Params[name].Pattern; pattern != "" {
			if _, err := regexp.Compile(pattern); err != nil {
				return &ConfigurationError{Field: field + ".params." + name + ".pattern", Message: "invalid pattern", Cause: err}
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.functions[fn.Name]; exists {
		return configErrorf(field, "function %s already registered", fn.Name)
	}
	r.functions[fn.Name] = fn
	return nil
}

// Clone returns a registry holding the same functions. Registering into the
// clone does not affect r.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := NewFunctionRegistry()
	c.maxDepth = r.maxDepth
	for name, fn := range r.functions {
		c.functions[name] = fn
	}
	return c
}

// Get returns the function registered under id.
func (r *FunctionRegistry) Get(id string) (*FunctionDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, exists := r.functions[id]
	if !exists {
		return nil, &UnknownFunctionError{FunctionID: id, Available: r.listLocked()}
	}
	return fn, nil
}

// Has reports whether id is registered.
func (r *FunctionRegistry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.functions[id]
	return ok
}

// List returns the registered function ids, sorted.
func (r *FunctionRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *FunctionRegistry) listLocked() []string {
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Expand substitutes params into the templates of functionID and returns
// concrete step definitions. Generated ids are "<functionID>.<id or n>".
func (r *FunctionRegistry) Expand(functionID string, params map[string]interface{}) ([]*StepDefinition, error) {
	return r.expand(functionID, params, expandScope{prefix: functionID}, 0, nil)
}

// ExpandStep expands a `uses:` step. The caller's id prefixes generated ids,
// its env lies under each template env and its working directory is the
// default (or parent, for relative paths) of each template directory. A
// `run:` step is returned as a single copy.
func (r *FunctionRegistry) ExpandStep(step *StepDefinition, field string) ([]*StepDefinition, error) {
	if step.Uses == "" {
		return []*StepDefinition{step.Clone()}, nil
	}
	return r.expand(step.Uses, step.With, expandScope{
		prefix:  step.ID,
		env:     step.Env,
		dir:     step.WorkingDirectory,
		timeout: step.TimeoutMinutes,
		field:   field,
	}, 0, nil)
}

type expandScope struct {
	prefix  string
	env     map[string]string
	dir     string
	timeout int
	field   string // definition path of the calling step, for errors
}

func (r *FunctionRegistry) expand(id string, params map[string]interface{}, scope expandScope, depth int, stack []string) ([]*StepDefinition, error) {
	if depth >= r.maxDepth {
		return nil, configErrorf(scope.field, "function nesting exceeds depth %d", r.maxDepth)
	}
	for _, seen := range stack {
		if seen == id {
			return nil, configErrorf(scope.field, "function %q uses itself (cycle %v)", id, append(append([]string{}, stack...), id))
		}
	}

	fn, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	resolved, err := resolveParams(fn, params, scope.field)
	if err != nil {
		return nil, err
	}

	ctx := NewExpandContext(resolved, scope.env)
	nextStack := append(append([]string{}, stack...), id)

	var out []*StepDefinition
	for i, tmpl := range fn.Steps {
		field := fmt.Sprintf("functions.%s.steps[%d]", id, i)

		rendered, err := r.renderStep(tmpl, ctx, field)
		if err != nil {
			return nil, err
		}

		local := rendered.ID
		if local == "" {
			local = strconv.Itoa(i + 1)
		}
		rendered.ID = joinID(scope.prefix, local)
		rendered.Env = mergeStringMaps(scope.env, rendered.Env)
		rendered.WorkingDirectory = joinDir(scope.dir, rendered.WorkingDirectory)
		if rendered.TimeoutMinutes == 0 {
			rendered.TimeoutMinutes = scope.timeout
		}
		rendered.LineNum = tmpl.LineNum

		if rendered.Uses != "" {
			nested, err := r.expand(rendered.Uses, rendered.With, expandScope{
				prefix:  rendered.ID,
				env:     rendered.Env,
				dir:     rendered.WorkingDirectory,
				timeout: rendered.TimeoutMinutes,
				field:   field,
			}, depth+1, nextStack)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
			continue
		}

		rendered.With = nil
		out = append(out, rendered)
	}

	return out, nil
}

// renderStep substitutes ${{ }} expressions in a template step.
func (r *FunctionRegistry) renderStep(tmpl *StepDefinition, ctx *ExpandContext, field string) (*StepDefinition, error) {
	out := tmpl.Clone()

	fields := []struct {
		name string
		ptr  *string
	}{
		{"id", &out.ID},
		{"name", &out.Name},
		{"run", &out.Run},
		{"uses", &out.Uses},
		{"working-directory", &out.WorkingDirectory},
	}
	for _, f := range fields {
		replaced, err := r.replacer.Replace(*f.ptr, ctx)
		if err != nil {
			return nil, &ConfigurationError{Field: field + "." + f.name, Message: "invalid substitution", Cause: err}
		}
		*f.ptr = replaced
	}

	env, err := r.replacer.ReplaceInStringMap(tmpl.Env, ctx)
	if err != nil {
		return nil, &ConfigurationError{Field: field + ".env", Message: "invalid substitution", Cause: err}
	}
	out.Env = env

	with, err := r.replacer.ReplaceInMap(tmpl.With, ctx)
	if err != nil {
		return nil, &ConfigurationError{Field: field + ".with", Message: "invalid substitution", Cause: err}
	}
	out.With = with

	return out, nil
}

// resolveParams applies defaults and checks required, unknown and typed
// parameters.
func resolveParams(fn *FunctionDefinition, given map[string]interface{}, field string) (map[string]interface{}, error) {
	givenNames := make([]string, 0, len(given))
	for name := range given {
		givenNames = append(givenNames, name)
	}
	sort.Strings(givenNames)
	for _, name := range givenNames {
		if _, ok := fn.Params[name]; !ok {
			return nil, configErrorf(joinField(field, "with."+name),
				"unsupported parameter for function %q (supported: %v)", fn.Name, paramNames(fn.Params))
		}
	}

	resolved := make(map[string]interface{}, len(fn.Params))
	for _, name := range paramNames(fn.Params) {
		spec := fn.Params[name]

		value, ok := given[name]
		if !ok || value == nil {
			switch {
			case spec.Default != nil:
				value = spec.Default
			case spec.Required:
				return nil, configErrorf(joinField(field, "with."+name),
					"missing required parameter for function %q", fn.Name)
			default:
				value = ""
			}
		}

		if err := checkParamType(spec.Type, value); err != nil {
			return nil, &ConfigurationError{Field: joinField(field, "with."+name), Message: "invalid parameter", Cause: err}
		}
		if err := checkParamPattern(spec.Pattern, value); err != nil {
			return nil, &ConfigurationError{Field: joinField(field, "with."+name), Message: "invalid parameter", Cause: err}
		}
		resolved[name] = value
	}

	return resolved, nil
}

func checkParamType(typ string, value interface{}) error {
	switch typ {
	case "", "any":
		return nil
	case "string":
		if _, ok := value.(string); ok {
			return nil
		}
	case "number":
		switch value.(type) {
		case int, int64, uint64, float64:
			return nil
		}
	case "boolean":
		if _, ok := value.(bool); ok {
			return nil
		}
	case "list":
		if _, ok := value.([]interface{}); ok {
			return nil
		}
	default:
		return fmt.Errorf("unknown parameter type %q", typ)
	}
	return fmt.Errorf("expected %s, got %T", typ, value)
}

func checkParamPattern(pattern string, value interface{}) error {
	str, ok := value.(string)
	if pattern == "" || !ok {
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	if !re.MatchString(str) {
		return fmt.Errorf("value %q does not match %s", str, pattern)
	}
	return nil
}

func checkRunOrUses(step *StepDefinition, field string) error {
	switch {
	case step.Run != "" && step.Uses != "":
		return configErrorf(field, "step sets both run and uses")
	case step.Run == "" && step.Uses == "":
		return configErrorf(field, "step sets neither run nor uses")
	case step.Uses == "" && len(step.With) > 0:
		return configErrorf(field+".with", "with is only valid together with uses")
	}
	return nil
}

func paramNames(specs map[string]ParamSpec) []string {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func mergeStringMaps(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func joinDir(parent, dir string) string {
	switch {
	case dir == "":
		return parent
	case parent == "" || filepath.IsAbs(dir):
		return dir
	default:
		return filepath.Join(parent, dir)
	}
}

func joinID(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + "." + local
}

func joinField(prefix, suffix string) string {
	if prefix == "" {
		return suffix
	}
	return prefix + "." + suffix
}
