package step

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

func init() {
	Register(typeConversion{})
	Register(regexExtract{})
	Register(throttle{})
	Register(simpleChange{})
	Register(jsonPath{})
	Register(script{})
}

// typeConversion coerces a raw string/number into the item's declared value
// type (spec.md §2 "type conversion").
type typeConversion struct{}

func (typeConversion) Name() string        { return "type-conversion" }
func (typeConversion) DependsOn() []string { return nil }

func (typeConversion) Apply(_ *Context, in Value, params map[string]string) (Value, error) {
	target := params["target"]
	s := fmt.Sprintf("%v", in)
	switch target {
	case "float":
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("type-conversion: %w", err)
		}
		return f, nil
	case "uint64":
		u, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("type-conversion: %w", err)
		}
		return u, nil
	case "", "string", "text", "log":
		return s, nil
	default:
		return nil, fmt.Errorf("type-conversion: unknown target %q", target)
	}
}

// regexExtract extracts the first capture group of a regular expression,
// or the whole match when the pattern has no groups.
type regexExtract struct{}

func (regexExtract) Name() string        { return "regex-extraction" }
func (regexExtract) DependsOn() []string { return nil }

func (regexExtract) Apply(_ *Context, in Value, params map[string]string) (Value, error) {
	pattern := params["pattern"]
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("regex-extraction: bad pattern: %w", err)
	}
	s := fmt.Sprintf("%v", in)
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("regex-extraction: pattern %q did not match", pattern)
	}
	if len(m) > 1 {
		return m[1], nil
	}
	return m[0], nil
}

// throttle detects a value that is unchanged from the last observed sample
// for this item (the "nodata"/"discard unchanged" family of steps), using
// the task's cache pointer (spec.md §3), and stops the rest of the plan
// when it is; see ErrThrottled for what happens to the value.
type throttle struct{}

func (throttle) Name() string        { return "throttle" }
func (throttle) DependsOn() []string { return []string{"type-conversion"} }

// ErrThrottled reports an unchanged value, not a failure; callers check for
// it specifically. Run stops the plan at the throttle step and returns the
// unchanged value together with this error, and the worker stores that
// value as a normal result. Nothing in the task's Result marks it as
// throttled, so the value is not dropped.
var ErrThrottled = fmt.Errorf("throttle: value unchanged, suppressed")

func (throttle) Apply(ctx *Context, in Value, _ map[string]string) (Value, error) {
	key := "throttle:last"
	if ctx.Cache != nil {
		if prev, ok := ctx.Cache.Get(key); ok {
			if fmt.Sprintf("%v", prev) == fmt.Sprintf("%v", in) {
				return in, ErrThrottled
			}
		}
		ctx.Cache.Set(key, in)
	}
	return in, nil
}

// simpleChange computes the delta against the previously stored sample
// (spec.md §2 "delta").
type simpleChange struct{}

func (simpleChange) Name() string        { return "delta" }
func (simpleChange) DependsOn() []string { return []string{"type-conversion"} }

func (simpleChange) Apply(ctx *Context, in Value, params map[string]string) (Value, error) {
	f, ok := in.(float64)
	if !ok {
		if u, ok2 := in.(uint64); ok2 {
			f = float64(u)
		} else {
			return nil, fmt.Errorf("delta: input is not numeric: %v", in)
		}
	}

	key := "delta:last"
	mode := params["mode"] // "change" | "speed"
	if ctx.Cache == nil {
		return f, nil
	}
	prevRaw, ok := ctx.Cache.Get(key)
	now := time.Now()
	ctx.Cache.Set(key, sample{v: f, t: now})
	if !ok {
		return nil, fmt.Errorf("delta: no previous sample yet")
	}
	prev := prevRaw.(sample)
	diff := f - prev.v
	if mode == "speed" {
		secs := now.Sub(prev.t).Seconds()
		if secs <= 0 {
			return nil, fmt.Errorf("delta: non-positive interval")
		}
		return diff / secs, nil
	}
	return diff, nil
}

type sample struct {
	v float64
	t time.Time
}

// jsonPath evaluates a tiny dotted-path subset of JSONPath against a JSON
// document (e.g. "$.data.items.0.value"). It is not a full JSONPath/XPath
// evaluator: it only supports the common dotted-field/array-index case.
type jsonPath struct{}

func (jsonPath) Name() string        { return "jsonpath" }
func (jsonPath) DependsOn() []string { return nil }

func (jsonPath) Apply(_ *Context, in Value, params map[string]string) (Value, error) {
	path := strings.TrimPrefix(params["path"], "$.")
	var doc any
	s := fmt.Sprintf("%v", in)
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return nil, fmt.Errorf("jsonpath: invalid JSON: %w", err)
	}
	cur := doc
	if path != "" {
		for _, part := range strings.Split(path, ".") {
			switch v := cur.(type) {
			case map[string]any:
				next, ok := v[part]
				if !ok {
					return nil, fmt.Errorf("jsonpath: field %q not found", part)
				}
				cur = next
			case []any:
				idx, err := strconv.Atoi(part)
				if err != nil || idx < 0 || idx >= len(v) {
					return nil, fmt.Errorf("jsonpath: invalid index %q", part)
				}
				cur = v[idx]
			default:
				return nil, fmt.Errorf("jsonpath: cannot descend into %T at %q", cur, part)
			}
		}
	}
	return cur, nil
}

// script is a typed pass-through documenting the scripting extension
// point. Embedding a scripting VM is out of scope (spec.md §1 "plugin
// extensibility" Non-goal); this step exists so plans that reference a
// "script" step don't fail to resolve, but it never transforms the value.
type script struct{}

func (script) Name() string        { return "script" }
func (script) DependsOn() []string { return nil }

func (script) Apply(_ *Context, in Value, _ map[string]string) (Value, error) {
	return in, nil
}
