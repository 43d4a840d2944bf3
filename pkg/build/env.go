package build

import "sort"

// Env maps environment variable names to values. Keys are case-sensitive.
//
// An Env handed to Step.Execute is complete: the engine never writes to it
// after the call.
type Env map[string]string

// MergeEnv merges workflow-level and step-level environments (step > workflow).
// The result is always a new map; either input may be nil.
func MergeEnv(workflowEnv, stepEnv Env) Env {
	env := make(Env, len(workflowEnv)+len(stepEnv))

	// 1. Workflow level
	for k, v := range workflowEnv {
		env[k] = v
	}

	// 2. Step level (overrides workflow)
	for k, v := range stepEnv {
		env[k] = v
	}

	return env
}

// Clone returns a copy of the environment, or nil for a nil Env.
func (e Env) Clone() Env {
	if e == nil {
		return nil
	}
	out := make(Env, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Lookup returns the value of key and whether it is set.
func (e Env) Lookup(key string) (string, bool) {
	v, ok := e[key]
	return v, ok
}

// Environ renders the environment as sorted KEY=VALUE pairs, the form
// expected by os/exec.
func (e Env) Environ() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+e[k])
	}
	return out
}
