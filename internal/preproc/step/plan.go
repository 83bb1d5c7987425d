package step

import (
	"errors"
	"fmt"

	"firestige.xyz/pollcore/internal/model"
)

// Run executes plan in dependency order against in, returning the final
// value and, for diagnostics, one StepResult per executed step. A step
// returning ErrThrottled halts the plan and is reported as a suppression,
// not an error, matching "throttling" being a normal outcome rather than a
// CONFIG_ERROR.
func Run(ctx *Context, plan []model.StepSpec, in Value) (Value, []model.StepResult, error) {
	names := make([]string, len(plan))
	byName := make(map[string]model.StepSpec, len(plan))
	for i, spec := range plan {
		names[i] = spec.Name
		byName[spec.Name] = spec
	}

	ordered, err := Order(names)
	if err != nil {
		return nil, nil, fmt.Errorf("preprocessing plan: %w", err)
	}

	cur := in
	diag := make([]model.StepResult, 0, len(ordered))
	for _, name := range ordered {
		s, ok := Lookup(name)
		if !ok {
			return nil, diag, fmt.Errorf("preprocessing plan: unknown step %q", name)
		}
		out, err := s.Apply(ctx, cur, byName[name].Params)
		if err != nil {
			if errors.Is(err, ErrThrottled) {
				diag = append(diag, model.StepResult{Step: name, Value: cur, Error: ""})
				return cur, diag, err
			}
			diag = append(diag, model.StepResult{Step: name, Error: err.Error()})
			return nil, diag, fmt.Errorf("step %q: %w", name, err)
		}
		diag = append(diag, model.StepResult{Step: name, Value: out})
		cur = out
	}
	return cur, diag, nil
}
