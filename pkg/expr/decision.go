package expr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownCheck is returned when a decision names a check that does not
// exist.
var ErrUnknownCheck = errors.New("unknown check")

// Decision combinators.
const (
	CombAnd = "and"
	CombOr  = "or"
	CombNot = "not"
)

// CheckResults supplies named check outcomes to a decision.
type CheckResults interface {
	// Result returns the outcome of the named check, or an error wrapping
	// ErrUnknownCheck.
	Result(name string) (bool, error)
}

// StaticResults is a fixed set of check outcomes.
type StaticResults map[string]bool

// Result implements CheckResults.
func (s StaticResults) Result(name string) (bool, error) {
	v, ok := s[name]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownCheck, name)
	}

	return v, nil
}

// Decision is a parsed decision expression.
type Decision interface {
	// Eval evaluates every operand (no short-circuit) so unknown checks
	// always surface.
	Eval(results CheckResults) (bool, error)
	// Checks returns the names of all referenced checks.
	Checks() []string
	String() string
}

type checkRef string

func (c checkRef) Eval(results CheckResults) (bool, error) { return results.Result(string(c)) }
func (c checkRef) Checks() []string { return []string{string(c)} }
func (c checkRef) String() string { return string(c) }

type decisionList []Decision

func (l decisionList) evalAll(results CheckResults) ([]bool, error) {
	out := make([]bool, 0, len(l))

	for _, d := range l {
		v, err := d.Eval(results)
		if err != nil {
			return nil, err
		}

		out = append(out, v)
	}

	return out, nil
}

func (l decisionList) Checks() []string {
	var out []string
	for _, d := range l {
		out = append(out, d.Checks()...)
	}

	return out
}

func (l decisionList) join() string {
	parts := make([]string, len(l))
	for i, d := range l {
		parts[i] = d.String()
	}

	return strings.Join(parts, ", ")
}

// allOf is true when every operand is true.
type allOf struct{ decisionList }

func (a allOf) Eval(results CheckResults) (bool, error) {
	vals, err := a.evalAll(results)
	if err != nil {
		return false, err
	}

	for _, v := range vals {
		if !v {
			return false, nil
		}
	}

	return true, nil
}

func (a allOf) String() string { return "and(" + a.join() + ")" }

// anyOf is true when at least one operand is true.
type anyOf struct{ decisionList }

func (a anyOf) Eval(results CheckResults) (bool, error) {
	vals, err := a.evalAll(results)
	if err != nil {
		return false, err
	}

	for _, v := range vals {
		if v {
			return true, nil
		}
	}

	return false, nil
}

func (a anyOf) String() string { return "or(" + a.join() + ")" }

// notAll is true when not every operand is true.
type notAll struct{ decisionList }

func (n notAll) Eval(results CheckResults) (bool, error) {
	v, err := allOf(n).Eval(results)
	if err != nil {
		return false, err
	}

	return !v, nil
}

func (n notAll) String() string { return "not(" + n.join() + ")" }

// ParseDecision parses a check name, a list (implicit and) or a mapping of
// and/or/not combinators (all present keys must hold).
func ParseDecision(raw any) (Decision, error) {
	switch t := raw.(type) {
	case string:
		if t == "" {
			return nil, fmt.Errorf("%w: empty check name in decision", ErrSyntax)
		}

		return checkRef(t), nil
	case []any:
		subs, err := parseDecisionList(t)
		if err != nil {
			return nil, err
		}

		return allOf{subs}, nil
	case map[string]any:
		if len(t) == 0 {
			return nil, fmt.Errorf("%w: empty decision mapping", ErrSyntax)
		}

		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		parts := make(decisionList, 0, len(keys))

		for _, k := range keys {
			var operands []any

			switch v := t[k].(type) {
			case []any:
				operands = v
			default:
				operands = []any{v}
			}

			subs, err := parseDecisionList(operands)
			if err != nil {
				return nil, err
			}

			switch k {
			case CombAnd:
				parts = append(parts, allOf{subs})
			case CombOr:
				parts = append(parts, anyOf{subs})
			case CombNot:
				parts = append(parts, notAll{subs})
			default:
				return nil, fmt.Errorf("%w: unknown decision combinator %q", ErrSyntax, k)
			}
		}

		if len(parts) == 1 {
			return parts[0], nil
		}

		return allOf{parts}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported decision %v", ErrSyntax, raw)
	}
}

func parseDecisionList(raw []any) (decisionList, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty decision list", ErrSyntax)
	}

	out := make(decisionList, 0, len(raw))

	for _, e := range raw {
		d, err := ParseDecision(e)
		if err != nil {
			return nil, err
		}

		out = append(out, d)
	}

	return out, nil
}

// EvalDecision parses raw and evaluates it against results. It holds no
// state between calls.
func EvalDecision(raw any, results CheckResults) (bool, error) {
	d, err := ParseDecision(raw)
	if err != nil {
		return false, err
	}

	return d.Eval(results)
}

// Validate returns an error wrapping ErrUnknownCheck if d references a name
// not in known.
func Validate(d Decision, known map[string]struct{}) error {
	for _, name := range d.Checks() {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownCheck, name)
		}
	}

	return nil
}
