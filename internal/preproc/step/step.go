// Package step implements the preprocessing step plan: a small, in-process
// registry of named transformation steps (type conversion, regex
// extraction, throttling, delta, JSONPath, ...) executed in sequence by a
// preprocessor worker (spec.md §4.2).
//
// Steps are registered at init() time by concrete implementations in this
// package; there is no runtime/dynamic loading — "plugin extensibility" is
// an explicit Non-goal (spec.md §1).
package step

import (
	"fmt"
)

// Value is the typed payload flowing between steps. Steps are free to
// change its dynamic type (e.g. string -> float64) as part of their
// contract; the final step's output becomes the task's result value.
type Value = any

// Context carries per-item state threaded through a plan: the item's id and
// its throttling cache, which delta/throttle steps use to compare against a
// previous sample.
type Context struct {
	Cache  Cacher
	ItemID uint64
}

// Cacher is the minimal interface a step needs from a task's cache pointer
// (model.Cache already satisfies it).
type Cacher interface {
	Get(key string) (any, bool)
	Set(key string, v any)
}

// Step is one opaque transformation in a preprocessing plan.
type Step interface {
	// Name identifies the step for registration, for lookup by
	// StepSpec.Name, and for references from other steps' DependsOn.
	Name() string
	// DependsOn lists step names that must run earlier in the same plan
	// whenever both are present (e.g. "delta" depends on "type-conversion").
	// It does not force a step to be present.
	DependsOn() []string
	// Apply runs the transformation, returning the new value or an error.
	// A CONFIG_ERROR-class failure (bad regex, bad JSONPath) should be
	// returned as a plain error; the caller attaches it to the task result.
	Apply(ctx *Context, in Value, params map[string]string) (Value, error)
}

var registry = map[string]Step{}

// Register adds a step implementation to the registry. Called from the
// init() of each concrete step file. Panics on duplicate registration,
// mirroring a programming-error class failure at startup (there is no
// runtime registration path to recover from).
func Register(s Step) {
	if _, exists := registry[s.Name()]; exists {
		panic(fmt.Sprintf("step: duplicate registration for %q", s.Name()))
	}
	registry[s.Name()] = s
}

// Lookup returns the registered step by name.
func Lookup(name string) (Step, bool) {
	s, ok := registry[name]
	return s, ok
}

// Order topologically sorts `names` so that each step's DependsOn()
// predecessors (when also present in names) come first. Ties are broken by
// input order to keep the result deterministic. This is adapted from the
// dependency-ordered plugin registration used elsewhere in this codebase's
// lineage (internal/plugin's load-order resolver), applied here to
// per-item preprocessing plans instead of process-wide plugin load order.
func Order(names []string) ([]string, error) {
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}

	inDegree := make(map[string]int, len(names))
	graph := make(map[string][]string)
	for _, n := range names {
		s, ok := registry[n]
		if !ok {
			return nil, fmt.Errorf("step: unknown step %q", n)
		}
		deps := 0
		for _, d := range s.DependsOn() {
			if present[d] {
				graph[d] = append(graph[d], n)
				deps++
			}
		}
		inDegree[n] = deps
	}

	queue := make([]string, 0, len(names))
	for _, n := range names {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	result := make([]string, 0, len(names))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		result = append(result, cur)
		for _, dep := range graph[cur] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(result) != len(names) {
		return nil, fmt.Errorf("step: circular dependency among %v", names)
	}
	return result, nil
}
