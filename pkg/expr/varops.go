// Package expr parses and evaluates the small expression languages embedded
// in rule definitions: varops pipelines, requirement predicates and
// conclusion decisions. Each language is parsed once into an AST and then
// interpreted.
package expr

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethpandaops/ycheck/pkg/facts"
)

var (
	// ErrUnknownVariable is returned when an operand names an undefined $var.
	ErrUnknownVariable = errors.New("unknown variable")
	// ErrUnknownOperator is returned for an unsupported varops operator.
	ErrUnknownOperator = errors.New("unknown operator")
	// ErrSyntax is returned for malformed expressions.
	ErrSyntax = errors.New("syntax error")
)

// Operand is a literal, a $variable or an @property.
type Operand struct {
	Literal  any
	Var      string
	Property string
}

// ParseOperand interprets a raw value. Strings starting with "$" name a
// variable and strings starting with "@" name a host property.
func ParseOperand(raw any) Operand {
	s, ok := raw.(string)
	if !ok || len(s) < 2 {
		return Operand{Literal: raw}
	}

	switch s[0] {
	case '$':
		return Operand{Var: s[1:]}
	case '@':
		return Operand{Property: s[1:]}
	default:
		return Operand{Literal: raw}
	}
}

// String renders the operand as written.
func (o Operand) String() string {
	switch {
	case o.Var != "":
		return "$" + o.Var
	case o.Property != "":
		return "@" + o.Property
	default:
		return fmt.Sprint(o.Literal)
	}
}

// Env is the evaluation environment of varops pipelines.
type Env struct {
	// Vars are resolved scenario variables.
	Vars map[string]any
	// Facts backs @property operands. May be nil.
	Facts facts.Facts
}

// Value resolves the operand in env. Missing properties resolve to nil.
func (o Operand) Value(env Env) (any, error) {
	switch {
	case o.Var != "":
		v, ok := env.Vars[o.Var]
		if !ok {
			return nil, fmt.Errorf("%w: $%s", ErrUnknownVariable, o.Var)
		}

		return v, nil
	case o.Property != "":
		if env.Facts == nil {
			return nil, nil
		}

		v, _ := env.Facts.Property(o.Property)

		return v, nil
	default:
		return o.Literal, nil
	}
}

// ResolveVars resolves raw scenario vars: "@property" values are read from
// f, everything else is taken literally.
func ResolveVars(raw map[string]any, f facts.Facts) map[string]any {
	out := make(map[string]any, len(raw))

	for k, v := range raw {
		op := ParseOperand(v)
		if op.Property != "" {
			val, _ := op.Value(Env{Facts: f})
			out[k] = val

			continue
		}

		out[k] = v
	}

	return out
}

// Operator names a varops step.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpLt       Operator = "lt"
	OpLe       Operator = "le"
	OpGt       Operator = "gt"
	OpGe       Operator = "ge"
	OpContains Operator = "contains"
	OpAdd      Operator = "add"
	OpSub      Operator = "sub"
	OpMul      Operator = "mul"
	OpDiv      Operator = "div"
	OpTruth    Operator = "truth"
	OpNot      Operator = "not"
	OpLen      Operator = "len"
)

// arity is the number of arguments each operator takes.
var arity = map[Operator]int{
	OpEq: 1, OpNe: 1, OpLt: 1, OpLe: 1, OpGt: 1, OpGe: 1, OpContains: 1,
	OpAdd: 1, OpSub: 1, OpMul: 1, OpDiv: 1,
	OpTruth: 0, OpNot: 0, OpLen: 0,
}

// Step applies Op to the running value with optional Arg.
type Step struct {
	Op  Operator
	Arg *Operand
}

// VarOps is a parsed pipeline: the Input operand is threaded through Steps
// left to right and the truthiness of the final value is the result.
type VarOps struct {
	Input Operand
	Steps []Step
}

// ParseVarOps parses [[operand], [op, arg?], ...].
func ParseVarOps(raw any) (*VarOps, error) {
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("%w: varops must be a non-empty list, got %v", ErrSyntax, raw)
	}

	first, ok := list[0].([]any)
	if !ok || len(first) != 1 {
		return nil, fmt.Errorf("%w: first varops entry must be [operand], got %v", ErrSyntax, list[0])
	}

	steps, err := ParseSteps(list[1:])
	if err != nil {
		return nil, err
	}

	return &VarOps{Input: ParseOperand(first[0]), Steps: steps}, nil
}

// ParseSteps parses a list of [op, arg?] entries.
func ParseSteps(raw []any) ([]Step, error) {
	steps := make([]Step, 0, len(raw))

	for _, entry := range raw {
		parts, ok := entry.([]any)
		if !ok || len(parts) == 0 {
			return nil, fmt.Errorf("%w: varops step must be [op, arg?], got %v", ErrSyntax, entry)
		}

		name, ok := parts[0].(string)
		if !ok {
			return nil, fmt.Errorf("%w: operator must be a string, got %v", ErrSyntax, parts[0])
		}

		op := Operator(strings.TrimSuffix(name, "_"))

		n, known := arity[op]
		if !known {
			return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, name)
		}

		if len(parts)-1 != n {
			return nil, fmt.Errorf("%w: operator %s takes %d argument(s), got %d", ErrSyntax, op, n, len(parts)-1)
		}

		step := Step{Op: op}
		if n == 1 {
			arg := ParseOperand(parts[1])
			step.Arg = &arg
		}

		steps = append(steps, step)
	}

	return steps, nil
}

// Eval runs the pipeline and returns the truthiness of the final value.
func (v *VarOps) Eval(env Env) (bool, error) {
	val, err := v.Input.Value(env)
	if err != nil {
		return false, err
	}

	out, err := RunSteps(val, v.Steps, env)
	if err != nil {
		return false, err
	}

	return Truthy(out), nil
}

// EvalVarOps parses and evaluates raw varops against vars.
func EvalVarOps(raw any, vars map[string]any) (bool, error) {
	v, err := ParseVarOps(raw)
	if err != nil {
		return false, err
	}

	return v.Eval(Env{Vars: vars})
}

// RunSteps threads val through steps.
func RunSteps(val any, steps []Step, env Env) (any, error) {
	for _, s := range steps {
		var arg any

		if s.Arg != nil {
			a, err := s.Arg.Value(env)
			if err != nil {
				return nil, err
			}

			arg = a
		}

		next, err := apply(s.Op, val, arg)
		if err != nil {
			return nil, fmt.Errorf("applying %s to %v: %w", s.Op, val, err)
		}

		val = next
	}

	return val, nil
}

func apply(op Operator, x, arg any) (any, error) {
	switch op {
	case OpEq:
		return equal(x, arg), nil
	case OpNe:
		return !equal(x, arg), nil
	case OpLt, OpLe, OpGt, OpGe:
		c, err := compare(x, arg)
		if err != nil {
			return nil, err
		}

		switch op {
		case OpLt:
			return c < 0, nil
		case OpLe:
			return c <= 0, nil
		case OpGt:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	case OpContains:
		return contains(x, arg), nil
	case OpAdd, OpSub, OpMul, OpDiv:
		return arith(op, x, arg)
	case OpTruth:
		return Truthy(x), nil
	case OpNot:
		return !Truthy(x), nil
	case OpLen:
		return length(x)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
	}
}

// Truthy reports the boolean interpretation of v: nil, false, zero numbers
// and empty strings or collections are false.
func Truthy(v any) bool {
	if v == nil {
		return false
	}

	if b, ok := v.(bool); ok {
		return b
	}

	if n, ok := toNumber(v, false); ok {
		return n != 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	default:
		return true
	}
}

// toNumber converts numeric values to float64. Numeric strings convert only
// when parseStrings is set.
func toNumber(v any, parseStrings bool) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		if !parseStrings {
			return 0, false
		}

		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)

		return f, err == nil
	default:
		return 0, false
	}
}

func equal(x, y any) bool {
	if a, ok := toNumber(x, false); ok {
		if b, ok := toNumber(y, true); ok {
			return a == b
		}
	}

	if b, ok := toNumber(y, false); ok {
		if a, ok := toNumber(x, true); ok {
			return a == b
		}
	}

	if x == nil || y == nil {
		return x == nil && y == nil
	}

	if reflect.TypeOf(x).Comparable() && reflect.TypeOf(y).Comparable() && x == y {
		return true
	}

	return reflect.DeepEqual(x, y)
}

func compare(x, y any) (int, error) {
	a, aok := toNumber(x, true)
	b, bok := toNumber(y, true)

	if aok && bok {
		switch {
		case a < b:
			return -1, nil
		case a > b:
			return 1, nil
		default:
			return 0, nil
		}
	}

	if x == nil || y == nil {
		return 0, fmt.Errorf("cannot order %v and %v", x, y)
	}

	return strings.Compare(fmt.Sprint(x), fmt.Sprint(y)), nil
}

func contains(x, y any) bool {
	switch t := x.(type) {
	case nil:
		return false
	case string:
		return strings.Contains(t, fmt.Sprint(y))
	case []any:
		for _, e := range t {
			if equal(e, y) {
				return true
			}
		}

		return false
	case map[string]any:
		_, ok := t[fmt.Sprint(y)]

		return ok
	default:
		return strings.Contains(fmt.Sprint(x), fmt.Sprint(y))
	}
}

func arith(op Operator, x, y any) (any, error) {
	if op == OpAdd {
		if xs, ok := x.(string); ok {
			return xs + fmt.Sprint(y), nil
		}
	}

	a, aok := toNumber(x, true)
	b, bok := toNumber(y, true)

	if !aok || !bok {
		return nil, fmt.Errorf("non-numeric operands %v and %v", x, y)
	}

	var out float64

	switch op {
	case OpAdd:
		out = a + b
	case OpSub:
		out = a - b
	case OpMul:
		out = a * b
	default:
		if b == 0 {
			return nil, errors.New("division by zero")
		}

		out = a / b
	}

	return out, nil
}

func length(x any) (any, error) {
	if x == nil {
		return 0, nil
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len(), nil
	default:
		return nil, fmt.Errorf("len of %T", x)
	}
}
