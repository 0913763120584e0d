// Package scenarios runs scenario definitions: named checks combined by
// conclusions that raise issues or known bugs.
package scenarios

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cast"

	"github.com/ethpandaops/ycheck/pkg/defs"
	"github.com/ethpandaops/ycheck/pkg/expr"
	"github.com/ethpandaops/ycheck/pkg/search"
)

// ErrInvalidScenario is returned for malformed scenario definitions.
var ErrInvalidScenario = errors.New("invalid scenario")

// Check kinds.
const (
	CheckRequires = "requires"
	CheckVarOps   = "varops"
	CheckSearch   = "search"
)

// DefaultPriority is the priority of conclusions that declare none.
const DefaultPriority = 1

// defaultMinResults is the number of matches a search check needs.
const defaultMinResults = 1

// Check is one named check of a scenario. Exactly one of Requires, VarOps
// and Search is set.
type Check struct {
	Name     string
	Requires expr.Requirement
	VarOps   *expr.VarOps
	Search   *search.Def
	// MinResults is the number of matches a search check needs to hold.
	MinResults int
}

// Kind returns the kind of the check.
func (c *Check) Kind() string {
	switch {
	case c.Requires != nil:
		return CheckRequires
	case c.VarOps != nil:
		return CheckVarOps
	default:
		return CheckSearch
	}
}

// Raises is the finding a conclusion emits.
type Raises struct {
	Type    string
	Message string
	// Format supplies the values of {name} placeholders in Message.
	Format map[string]expr.Operand
	BugID  string
	// Context is attached to the stored finding, operands resolved.
	Context map[string]expr.Operand
}

// Conclusion raises its payload when Decision holds.
type Conclusion struct {
	Name     string
	Decision expr.Decision
	Priority int
	Raises   Raises
}

// Scenario is a bundle of checks and the conclusions drawn from them.
type Scenario struct {
	// Name is the scenario name.
	Name string
	// Path is the full dotted path, starting with the domain.
	Path string
	// Source is the rule file the scenario was read from.
	Source string
	// Requires gates the whole scenario. May be nil.
	Requires expr.Requirement
	// Vars holds the raw scenario variables, inherited from enclosing
	// groups.
	Vars        map[string]any
	Checks      map[string]*Check
	Conclusions []*Conclusion
}

// CheckNames returns the sorted check names.
func (s *Scenario) CheckNames() []string {
	out := make([]string, 0, len(s.Checks))
	for name := range s.Checks {
		out = append(out, name)
	}

	sort.Strings(out)

	return out
}

// LoadScenarios builds the scenarios declared below root. A scenario is a
// leaf with checks or conclusions. When filter is set only the scenario
// whose full or domain-relative path equals filter is returned.
func LoadScenarios(root *defs.Node, filter string) ([]*Scenario, error) {
	var out []*Scenario

	for _, leaf := range root.Leaves() {
		_, hasChecks := leaf.Get(defs.KeyChecks)
		_, hasConclusions := leaf.Get(defs.KeyConclusions)

		if !hasChecks && !hasConclusions {
			continue
		}

		if filter != "" && leaf.Path() != filter && leaf.RelPath() != filter {
			continue
		}

		s, err := newScenario(leaf)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", leaf.Path(), err)
		}

		out = append(out, s)
	}

	return out, nil
}

func newScenario(n *defs.Node) (*Scenario, error) {
	s := &Scenario{
		Name:   n.Name,
		Path:   n.Path(),
		Source: n.SourceFile(),
		Vars:   n.Vars(),
		Checks: make(map[string]*Check, 4),
	}

	if raw, ok := n.Get(defs.KeyRequires); ok {
		req, err := expr.ParseRequires(raw)
		if err != nil {
			return nil, fmt.Errorf("requires: %w", err)
		}

		s.Requires = req
	}

	rawChecks, err := mapping(n, defs.KeyChecks)
	if err != nil {
		return nil, err
	}

	for name, raw := range rawChecks {
		c, err := parseCheck(n, s.Path, name, raw)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", name, err)
		}

		s.Checks[name] = c
	}

	rawConclusions, err := mapping(n, defs.KeyConclusions)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(s.Checks))
	for name := range s.Checks {
		known[name] = struct{}{}
	}

	names := make([]string, 0, len(rawConclusions))
	for name := range rawConclusions {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		c, err := parseConclusion(name, rawConclusions[name])
		if err != nil {
			return nil, fmt.Errorf("conclusion %s: %w", name, err)
		}

		if err := expr.Validate(c.Decision, known); err != nil {
			return nil, fmt.Errorf("conclusion %s: %w", name, err)
		}

		s.Conclusions = append(s.Conclusions, c)
	}

	return s, nil
}

func mapping(n *defs.Node, key string) (map[string]any, error) {
	raw, ok := n.Get(key)
	if !ok || raw == nil {
		return nil, nil
	}

	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a mapping", ErrInvalidScenario, key)
	}

	return m, nil
}

func parseCheck(n *defs.Node, scenarioPath, name string, raw any) (*Check, error) {
	m, ok := raw.(map[string]any)
	if !ok || len(m) != 1 {
		return nil, fmt.Errorf("%w: check must have exactly one of requires, varops or search", ErrInvalidScenario)
	}

	c := &Check{Name: name}

	for kind, body := range m {
		switch kind {
		case CheckRequires:
			req, err := expr.ParseRequires(body)
			if err != nil {
				return nil, err
			}

			c.Requires = req
		case CheckVarOps:
			ops, err := expr.ParseVarOps(body)
			if err != nil {
				return nil, err
			}

			c.VarOps = ops
		case CheckSearch:
			def, minResults, err := parseSearchCheck(n, scenarioPath+"."+name, body)
			if err != nil {
				return nil, err
			}

			c.Search = def
			c.MinResults = minResults
		default:
			return nil, fmt.Errorf("%w: unknown check kind %q", ErrInvalidScenario, kind)
		}
	}

	return c, nil
}

// parseSearchCheck parses {expr, hint?, input?, min-results?}. The input
// falls back to the nearest input of the scenario or its groups.
func parseSearchCheck(n *defs.Node, tag string, raw any) (*search.Def, int, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, 0, fmt.Errorf("%w: search check must be a mapping", ErrInvalidScenario)
	}

	rawInput, ok := m[defs.KeyInput]
	if !ok {
		rawInput, ok = n.Lookup(defs.KeyInput)
	}

	if !ok {
		return nil, 0, fmt.Errorf("%w: search check has no input", ErrInvalidScenario)
	}

	in, err := search.ParseInput(rawInput)
	if err != nil {
		return nil, 0, err
	}

	def, err := search.NewDef(tag, in, search.Patterns{
		Hint: cast.ToString(m[defs.KeyHint]),
		Expr: cast.ToString(m[defs.KeyExpr]),
	})
	if err != nil {
		return nil, 0, err
	}

	minResults := defaultMinResults

	if v, ok := m["min-results"]; ok {
		minResults, err = cast.ToIntE(v)
		if err != nil {
			return nil, 0, fmt.Errorf("min-results: %w", err)
		}
	}

	return def, minResults, nil
}

func parseConclusion(name string, raw any) (*Conclusion, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: conclusion must be a mapping", ErrInvalidScenario)
	}

	rawDecision, ok := m[defs.KeyDecision]
	if !ok {
		return nil, fmt.Errorf("%w: conclusion has no decision", ErrInvalidScenario)
	}

	d, err := expr.ParseDecision(rawDecision)
	if err != nil {
		return nil, err
	}

	c := &Conclusion{Name: name, Decision: d, Priority: DefaultPriority}

	if v, ok := m[defs.KeyPriority]; ok {
		c.Priority, err = cast.ToIntE(v)
		if err != nil {
			return nil, fmt.Errorf("priority: %w", err)
		}
	}

	raises, ok := m[defs.KeyRaises].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: conclusion has no raises mapping", ErrInvalidScenario)
	}

	c.Raises.Type = cast.ToString(raises["type"])
	if c.Raises.Type == "" {
		return nil, fmt.Errorf("%w: raises has no type", ErrInvalidScenario)
	}

	c.Raises.Message = cast.ToString(raises["message"])
	c.Raises.BugID = cast.ToString(raises["bug-id"])

	if fd, ok := raises["format-dict"]; ok {
		fm, ok := fd.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: format-dict must be a mapping", ErrInvalidScenario)
		}

		c.Raises.Format = make(map[string]expr.Operand, len(fm))
		for k, v := range fm {
			c.Raises.Format[k] = expr.ParseOperand(v)
		}
	}

	if rc, ok := raises["context"]; ok {
		cm, ok := rc.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: raises context must be a mapping", ErrInvalidScenario)
		}

		c.Raises.Context = make(map[string]expr.Operand, len(cm))
		for k, v := range cm {
			c.Raises.Context[k] = expr.ParseOperand(v)
		}
	}

	return c, nil
}
