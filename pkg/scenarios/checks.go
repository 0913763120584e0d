package scenarios

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/ycheck/pkg/expr"
	"github.com/ethpandaops/ycheck/pkg/search"
)

// checkResults evaluates the checks of one scenario on first use and keeps
// the outcome for the rest of the scenario.
type checkResults struct {
	scenario *Scenario
	env      expr.Env
	vars     map[string]any
	matches  map[string]int
	memo     map[string]bool
}

var _ expr.CheckResults = (*checkResults)(nil)

// newCheckResults resolves the scenario vars and submits all search checks
// of the scenario as one search.
func (r *Runner) newCheckResults(ctx context.Context, s *Scenario) (*checkResults, error) {
	vars := expr.ResolveVars(s.Vars, r.cfg.Facts)

	cr := &checkResults{
		scenario: s,
		env:      expr.Env{Vars: vars, Facts: r.cfg.Facts},
		vars:     vars,
		matches:  make(map[string]int, 2),
		memo:     make(map[string]bool, len(s.Checks)),
	}

	var defs []*search.Def

	for _, name := range s.CheckNames() {
		if c := s.Checks[name]; c.Search != nil {
			defs = append(defs, c.Search)
		}
	}

	if len(defs) == 0 {
		return cr, nil
	}

	if r.cfg.Searcher == nil {
		return nil, errors.New("scenario has search checks but no searcher is configured")
	}

	rs, err := r.cfg.Searcher.Search(ctx, defs)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}

	for _, d := range defs {
		cr.matches[d.Tag] = len(rs.Find(d.Tag))
	}

	return cr, nil
}

// Result implements expr.CheckResults.
func (cr *checkResults) Result(name string) (bool, error) {
	if v, ok := cr.memo[name]; ok {
		return v, nil
	}

	c, ok := cr.scenario.Checks[name]
	if !ok {
		return false, fmt.Errorf("%w: %q", expr.ErrUnknownCheck, name)
	}

	var (
		v   bool
		err error
	)

	switch {
	case c.Requires != nil:
		if cr.env.Facts == nil {
			return false, fmt.Errorf("check %s: no facts available", name)
		}

		v, err = c.Requires.Eval(cr.env.Facts)
	case c.VarOps != nil:
		v, err = c.VarOps.Eval(cr.env)
	default:
		v = cr.matches[c.Search.Tag] >= c.MinResults
	}

	if err != nil {
		return false, fmt.Errorf("check %s: %w", name, err)
	}

	cr.memo[name] = v

	return v, nil
}
