package executor

import (
	"fmt"
	"strings"

	"github.com/realtalishaw/super-enigma/engine/expr"
)

// renderTemplate walks an action node's input_template and evaluates every
// `{{ expr }}` string leaf against act using the bounded expression
// sublanguage of spec.md §4.1. Non-string leaves and strings without the
// delimiter pass through unchanged; this mirrors the template stage's own
// `{{name}}` placeholder syntax (spec.md §4.1 "Template" stage) rather than
// introducing a second, general-purpose templating language, per the design
// note against hosting a scripting runtime (spec.md §9).
func renderTemplate(env *expr.Env, tmpl map[string]any, act expr.Activation) (map[string]any, error) {
	out := make(map[string]any, len(tmpl))
	for k, v := range tmpl {
		rv, err := renderValue(env, v, act)
		if err != nil {
			return nil, fmt.Errorf("render %q: %w", k, err)
		}
		out[k] = rv
	}
	return out, nil
}

func renderValue(env *expr.Env, v any, act expr.Activation) (any, error) {
	switch t := v.(type) {
	case string:
		return renderString(env, t, act)
	case map[string]any:
		return renderTemplate(env, t, act)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			rv, err := renderValue(env, e, act)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

// renderString evaluates s if it is exactly one `{{ expr }}` placeholder,
// returning the expression's native (possibly non-string) value; a string
// that merely contains a placeholder amid other text is left untouched,
// since the sublanguage is not a string-interpolation engine.
func renderString(env *expr.Env, s string, act expr.Activation) (any, error) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{{") || !strings.HasSuffix(trimmed, "}}") {
		return s, nil
	}
	inner := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
	prog, err := env.Compile(inner)
	if err != nil {
		return nil, err
	}
	val, err := prog.EvalAny(act)
	if err != nil {
		return nil, err
	}
	return val, nil
}
