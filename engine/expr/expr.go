// Package expr implements the safe, total, side-effect-free expression
// sublanguage of spec.md §4.1: literals and identifiers over
// `inputs|vars|globals|node[<id>].outputs`, comparison operators, boolean
// connectives, `len`, `is_null`, string equality, and numeric arithmetic.
// Expressions never mutate state and are bounded in cost so a single
// evaluation cannot stall a run's dispatch loop (spec.md §4.1: "CPU budget
// ≤ 10 ms per call").
package expr

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// defaultCostLimit bounds the estimated evaluation cost of a single
// expression. cel-go's cost accounting is a proxy for wall-clock CPU time;
// this value was picked so that the comparison/arithmetic/string
// expressions spec.md describes evaluate well under the 10ms budget while
// still rejecting pathological nested comprehensions.
const defaultCostLimit = 10_000

// Env wraps a cel.Env configured with the four variable roots the
// sublanguage exposes, plus the `len`/`is_null` functions named in
// spec.md §4.1 (cel-go's native `size()`/equality-to-null already cover
// the same ground; these overloads expose them under the spec's names).
type Env struct {
	cenv *cel.Env
}

// NewEnv constructs the shared evaluation environment. It is safe for
// concurrent use: compiling and running programs against it does not
// mutate the Env.
func NewEnv() (*Env, error) {
	cenv, err := cel.NewEnv(
		cel.Variable("inputs", cel.DynType),
		cel.Variable("vars", cel.DynType),
		cel.Variable("globals", cel.DynType),
		cel.Variable("node", cel.DynType),
		cel.Function("len",
			cel.Overload("len_dyn", []*cel.Type{cel.DynType}, cel.IntType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					return cellen(v)
				}),
			),
		),
		cel.Function("is_null",
			cel.Overload("is_null_dyn", []*cel.Type{cel.DynType}, cel.BoolType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					return types.Bool(v == nil || v == types.NullValue)
				}),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("expr: build env: %w", err)
	}
	return &Env{cenv: cenv}, nil
}

func cellen(v ref.Val) ref.Val {
	switch sized := v.(type) {
	case types.String:
		return types.Int(len([]rune(string(sized))))
	case traits.Sizer:
		return sized.Size()
	default:
		return types.NewErr("len: unsupported type %s", v.Type())
	}
}

// Program is a parsed, type-checked, ready-to-evaluate expression.
type Program struct {
	src  string
	prg  cel.Program
}

// Source returns the original expression text, useful for error messages.
func (p *Program) Source() string { return p.src }

// Compile parses and type-checks exprStr, failing with the same class of
// error the Validator surfaces as E008 UnresolvedRef / parse failure.
// Compilation never executes the expression.
func (e *Env) Compile(exprStr string) (*Program, error) {
	ast, issues := e.cenv.Compile(exprStr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("expr: parse %q: %w", exprStr, issues.Err())
	}
	prg, err := e.cenv.Program(ast,
		cel.EvalOptions(cel.OptTrackCost),
		cel.CostLimit(defaultCostLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("expr: build program %q: %w", exprStr, err)
	}
	return &Program{src: exprStr, prg: prg}, nil
}

// Activation is the variable binding an expression evaluates against,
// mirroring spec.md §3's run context: `{inputs, vars, globals,
// node[id].outputs}`.
type Activation struct {
	Inputs  map[string]any
	Vars    map[string]any
	Globals map[string]any
	// Node maps node id to that node's outputs, e.g. node["n1"].outputs.id.
	Node map[string]any
}

func (a Activation) asVars() map[string]any {
	node := make(map[string]any, len(a.Node))
	for id, outputs := range a.Node {
		node[id] = map[string]any{"outputs": outputs}
	}
	return map[string]any{
		"inputs":  orEmpty(a.Inputs),
		"vars":    orEmpty(a.Vars),
		"globals": orEmpty(a.Globals),
		"node":    node,
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// Eval runs the program against act and returns the raw CEL result value.
// A cost-limit overrun surfaces as an error (ExpressionEvalFailure per
// spec.md §7); it is the caller's job to treat that as the enclosing
// node's terminal error rather than propagate it across the run.
func (p *Program) Eval(act Activation) (ref.Val, error) {
	out, _, err := p.prg.Eval(act.asVars())
	if err != nil {
		return nil, fmt.Errorf("expr: eval %q: %w", p.src, err)
	}
	return out, nil
}

// EvalBool runs the program and requires a boolean result, as used by
// gateway_if branches, loop_while conditions, and edge `condition` guards.
func (p *Program) EvalBool(act Activation) (bool, error) {
	out, err := p.Eval(act)
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expr: %q did not evaluate to a bool (got %T)", p.src, out.Value())
	}
	return b, nil
}

// EvalAny runs the program and returns a plain Go value, as used by
// gateway_switch selectors and loop_foreach's source_array_expr.
func (p *Program) EvalAny(act Activation) (any, error) {
	out, err := p.Eval(act)
	if err != nil {
		return nil, err
	}
	return out.Value(), nil
}
