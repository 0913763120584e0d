package scenarios

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/ycheck/pkg/expr"
	"github.com/ethpandaops/ycheck/pkg/facts"
	"github.com/ethpandaops/ycheck/pkg/issues"
	"github.com/ethpandaops/ycheck/pkg/observability"
	"github.com/ethpandaops/ycheck/pkg/search"
)

// Searcher runs search definitions.
type Searcher interface {
	Search(ctx context.Context, defs []*search.Def) (*search.ResultSet, error)
}

// Config configures a Runner.
type Config struct {
	Domain   string
	Facts    facts.Facts
	Searcher Searcher
	Store    *issues.Store
	// Trackers decides which raised types are bugs. Defaults to
	// issues.DefaultTrackers.
	Trackers issues.Trackers
}

// Summary counts what one pass did.
type Summary struct {
	Scenarios int `yaml:"scenarios" json:"scenarios"`
	Skipped   int `yaml:"skipped" json:"skipped"`
	Issues    int `yaml:"issues" json:"issues"`
	Bugs      int `yaml:"bugs" json:"bugs"`
}

// Runner evaluates scenarios and forwards raised findings to the store.
type Runner struct {
	log logrus.FieldLogger
	cfg Config
}

// NewRunner creates a Runner.
func NewRunner(log logrus.FieldLogger, cfg Config) *Runner {
	if cfg.Trackers == nil {
		cfg.Trackers = issues.DefaultTrackers()
	}

	return &Runner{
		log: log.WithFields(logrus.Fields{
			"component": "scenarios",
			"domain":    cfg.Domain,
		}),
		cfg: cfg,
	}
}

// Run evaluates every scenario in order. The first error aborts the pass.
func (r *Runner) Run(ctx context.Context, scenarios []*Scenario) (Summary, error) {
	var sum Summary

	for _, s := range scenarios {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		ran, err := r.RunScenario(ctx, s, &sum)
		if err != nil {
			return sum, fmt.Errorf("scenario %s: %w", s.Path, err)
		}

		if !ran {
			sum.Skipped++

			continue
		}

		sum.Scenarios++
	}

	r.log.WithFields(logrus.Fields{
		"scenarios": sum.Scenarios,
		"skipped":   sum.Skipped,
		"issues":    sum.Issues,
		"bugs":      sum.Bugs,
	}).Info("Scenarios evaluated")

	return sum, nil
}

// RunScenario evaluates one scenario: all checks it needs, then all
// conclusions. It reports false when the scenario requirements are not met.
func (r *Runner) RunScenario(ctx context.Context, s *Scenario, sum *Summary) (bool, error) {
	log := r.log.WithField("scenario", s.Path)

	if s.Requires != nil {
		if r.cfg.Facts == nil {
			return false, errors.New("scenario declares requires but no facts are available")
		}

		ok, err := s.Requires.Eval(r.cfg.Facts)
		if err != nil {
			return false, fmt.Errorf("requires: %w", err)
		}

		if !ok {
			log.Debug("Scenario requirements not met, skipping")

			return false, nil
		}
	}

	observability.ScenariosRunTotal.WithLabelValues(r.cfg.Domain).Inc()

	results, err := r.newCheckResults(ctx, s)
	if err != nil {
		return true, err
	}

	var (
		fired []*Conclusion
		top   int
	)

	for _, c := range s.Conclusions {
		ok, err := c.Decision.Eval(results)
		if err != nil {
			return true, fmt.Errorf("conclusion %s: %w", c.Name, err)
		}

		log.WithFields(logrus.Fields{
			"conclusion": c.Name,
			"decision":   c.Decision.String(),
			"result":     ok,
		}).Debug("Conclusion evaluated")

		if !ok {
			continue
		}

		if len(fired) == 0 || c.Priority > top {
			top = c.Priority
		}

		fired = append(fired, c)
	}

	for _, c := range fired {
		if c.Priority < top {
			continue
		}

		if err := r.raise(s, c, results.vars, sum); err != nil {
			return true, fmt.Errorf("conclusion %s: %w", c.Name, err)
		}
	}

	return true, nil
}

func (r *Runner) raise(s *Scenario, c *Conclusion, vars map[string]any, sum *Summary) error {
	env := expr.Env{Vars: vars, Facts: r.cfg.Facts}

	msg, err := formatMessage(c.Raises, env)
	if err != nil {
		return err
	}

	fctx, err := resolveContext(c.Raises, env)
	if err != nil {
		return err
	}

	origin := issues.Origin(r.cfg.Domain, s.Source)

	if r.cfg.Store == nil {
		return errors.New("no issue store configured")
	}

	if r.cfg.Trackers.IsBug(c.Raises.Type) {
		if c.Raises.BugID == "" {
			return fmt.Errorf("%w: %s raised without bug-id", ErrInvalidScenario, c.Raises.Type)
		}

		bug := issues.Bug{
			ID:      r.cfg.Trackers.BugID(c.Raises.Type, c.Raises.BugID),
			Desc:    msg,
			Origin:  origin,
			Context: fctx,
		}

		if err := r.cfg.Store.AddBug(bug); err != nil {
			return err
		}

		sum.Bugs++

		observability.ConclusionsRaisedTotal.WithLabelValues(r.cfg.Domain, "bug").Inc()

		return nil
	}

	issue := issues.Issue{Type: c.Raises.Type, Desc: msg, Origin: origin, Context: fctx}
	if err := r.cfg.Store.AddIssue(issue); err != nil {
		return err
	}

	sum.Issues++

	observability.ConclusionsRaisedTotal.WithLabelValues(r.cfg.Domain, "issue").Inc()

	return nil
}

// resolveContext evaluates the context operands of raises. It returns nil
// when the conclusion carries no context.
func resolveContext(raises Raises, env expr.Env) (map[string]any, error) {
	if len(raises.Context) == 0 {
		return nil, nil
	}

	out := make(map[string]any, len(raises.Context))

	for k, op := range raises.Context {
		v, err := op.Value(env)
		if err != nil {
			return nil, fmt.Errorf("context %s: %w", k, err)
		}

		out[k] = v
	}

	return out, nil
}

// formatMessage replaces each {name} in the message with the value of the
// format-dict entry called name.
func formatMessage(raises Raises, env expr.Env) (string, error) {
	if len(raises.Format) == 0 {
		return raises.Message, nil
	}

	keys := make([]string, 0, len(raises.Format))
	for k := range raises.Format {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))

	for _, k := range keys {
		v, err := raises.Format[k].Value(env)
		if err != nil {
			return "", fmt.Errorf("format-dict %s: %w", k, err)
		}

		pairs = append(pairs, "{"+k+"}", fmt.Sprint(v))
	}

	return strings.NewReplacer(pairs...).Replace(raises.Message), nil
}
