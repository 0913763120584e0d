// Package analysis runs one full pass per domain: events, then scenarios,
// against a single snapshot.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/ycheck/pkg/defs"
	"github.com/ethpandaops/ycheck/pkg/events"
	"github.com/ethpandaops/ycheck/pkg/facts"
	"github.com/ethpandaops/ycheck/pkg/issues"
	"github.com/ethpandaops/ycheck/pkg/observability"
	"github.com/ethpandaops/ycheck/pkg/options"
	"github.com/ethpandaops/ycheck/pkg/plugin"
	"github.com/ethpandaops/ycheck/pkg/scenarios"
	"github.com/ethpandaops/ycheck/pkg/search"
)

// ErrNoDefinitions is returned when neither plugin_yaml_defs nor the plugin
// supplies rule definitions.
var ErrNoDefinitions = errors.New("no rule definitions available")

// Definition roots below plugin_yaml_defs.
const (
	EventsDir    = "events"
	ScenariosDir = "scenarios"
)

// Config configures an Analyzer.
type Config struct {
	// Options is the process-wide option registry. plugin_name and
	// plugin_tmp_dir are set for each domain while it runs.
	Options *options.Registry
	// Trackers decides which raised types are bugs.
	Trackers issues.Trackers
	// WorkRoot, when set, is the parent of the per-domain working
	// directories, which are created as needed. Otherwise plugin_tmp_dir is
	// used as is and must already exist.
	WorkRoot string
}

// Report is the outcome of one domain pass.
type Report struct {
	Domain   string            `yaml:"domain" json:"domain"`
	RunID    string            `yaml:"run_id" json:"run_id"`
	Duration string            `yaml:"duration" json:"duration"`
	Elapsed  time.Duration     `yaml:"-" json:"-"`
	Events   map[string]any    `yaml:"events,omitempty" json:"events,omitempty"`
	Summary  scenarios.Summary `yaml:"summary" json:"summary"`
	Issues   []issues.Issue    `yaml:"potential-issues,omitempty" json:"potential-issues,omitempty"`
	Bugs     []issues.Bug      `yaml:"bugs-detected,omitempty" json:"bugs-detected,omitempty"`
	// Runbooks names remediation guides covering the issues. Filled by
	// the caller.
	Runbooks []string `yaml:"runbooks,omitempty" json:"runbooks,omitempty"`
}

// Analyzer runs domain passes. Passes share the option registry and must
// not run concurrently.
type Analyzer struct {
	log     logrus.FieldLogger
	cfg     Config
	mu      sync.Mutex
	loaders map[string]*defs.Loader
}

// New creates an Analyzer.
func New(log logrus.FieldLogger, cfg Config) *Analyzer {
	if cfg.Options == nil {
		cfg.Options = options.NewCoreRegistry()
	}

	if cfg.Trackers == nil {
		cfg.Trackers = issues.DefaultTrackers()
	}

	return &Analyzer{
		log:     log.WithField("component", "analysis"),
		cfg:     cfg,
		loaders: make(map[string]*defs.Loader, 4),
	}
}

// settings is the option snapshot one pass reads.
type settings struct {
	defsRoot       string
	tmpDir         string
	dataRoot       string
	eventFilter    string
	scenarioFilter string
	maxParallel    int
	commandTimeout time.Duration
	cacheSize      int
}

func (a *Analyzer) settings() (settings, error) {
	o := a.cfg.Options

	var (
		s    settings
		errs []error
		err  error
	)

	str := func(name string, dst *string) {
		if *dst, err = o.String(name); err != nil {
			errs = append(errs, err)
		}
	}

	str(options.PluginYAMLDefs, &s.defsRoot)
	str(options.PluginTmpDir, &s.tmpDir)
	str(options.DataRoot, &s.dataRoot)
	str(options.EventFilter, &s.eventFilter)
	str(options.ScenarioFilter, &s.scenarioFilter)

	if s.maxParallel, err = o.Int(options.MaxParallelTasks); err != nil {
		errs = append(errs, err)
	}

	if s.cacheSize, err = o.Int(options.CommandCacheSize); err != nil {
		errs = append(errs, err)
	}

	if s.commandTimeout, err = o.Duration(options.CommandTimeout); err != nil {
		errs = append(errs, err)
	}

	return s, errors.Join(errs...)
}

// RunAll runs a pass for every plugin in order and stops at the first
// error.
func (a *Analyzer) RunAll(ctx context.Context, plugins []plugin.Plugin) ([]*Report, error) {
	reports := make([]*Report, 0, len(plugins))

	for _, p := range plugins {
		r, err := a.Run(ctx, p)
		if err != nil {
			return reports, fmt.Errorf("domain %s: %w", p.Name(), err)
		}

		reports = append(reports, r)
	}

	return reports, nil
}

// Run runs the events pass and then the scenarios pass of one domain.
func (a *Analyzer) Run(ctx context.Context, p plugin.Plugin) (*Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	started := time.Now()
	domain := p.Name()

	ctx = observability.WithRunID(ctx, observability.GenerateRunID())
	log := observability.RunScopedLogger(a.log, ctx).WithField("domain", domain)
	ctx = observability.WithLogger(ctx, log)

	if err := a.cfg.Options.Set(options.PluginName, domain); err != nil {
		return nil, err
	}

	if a.cfg.WorkRoot != "" {
		dir := filepath.Join(a.cfg.WorkRoot, domain)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating working directory: %w", err)
		}

		if err := a.cfg.Options.Set(options.PluginTmpDir, dir); err != nil {
			return nil, err
		}
	}

	s, err := a.settings()
	if err != nil {
		return nil, fmt.Errorf("reading options: %w", err)
	}

	eventLoader, scenarioLoader, err := a.loadersFor(p, s.defsRoot)
	if err != nil {
		return nil, err
	}

	props, err := p.Properties(s.dataRoot)
	if err != nil {
		return nil, fmt.Errorf("collecting properties: %w", err)
	}

	hostFacts, err := facts.NewSnapshot(log, facts.SnapshotConfig{
		DataRoot:   s.dataRoot,
		Packages:   p.Packages(),
		Services:   p.Services(),
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("collecting facts: %w", err)
	}

	searcher, err := search.New(log, search.Config{
		DataRoot:         s.dataRoot,
		MaxParallel:      s.maxParallel,
		CommandTimeout:   s.commandTimeout,
		CommandCacheSize: s.cacheSize,
	})
	if err != nil {
		return nil, err
	}

	report := &Report{Domain: domain, RunID: observability.GetRunID(ctx)}

	report.Events, err = a.runEvents(ctx, log, p, eventLoader, hostFacts, searcher, s.eventFilter)
	if err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}

	store := issues.NewStore(log, s.tmpDir)

	report.Summary, err = a.runScenarios(ctx, log, scenarioLoader, domain, hostFacts, searcher, store, s.scenarioFilter)
	if err != nil {
		return nil, fmt.Errorf("scenarios: %w", err)
	}

	if report.Issues, err = store.Issues(); err != nil {
		return nil, err
	}

	if report.Bugs, err = store.Bugs(); err != nil {
		return nil, err
	}

	report.Elapsed = time.Since(started)
	report.Duration = units.HumanDuration(report.Elapsed)

	observability.AnalysisDuration.WithLabelValues(domain).Observe(report.Elapsed.Seconds())

	log.WithFields(logrus.Fields{
		"events":   len(report.Events),
		"issues":   len(report.Issues),
		"bugs":     len(report.Bugs),
		"duration": report.Duration,
	}).Info("Domain analysis complete")

	return report, nil
}

func (a *Analyzer) runEvents(
	ctx context.Context,
	log logrus.FieldLogger,
	p plugin.Plugin,
	loader *defs.Loader,
	f facts.Facts,
	searcher *search.Searcher,
	filter string,
) (map[string]any, error) {
	tree, err := loader.Load(p.Name())
	if err != nil {
		return nil, err
	}

	if tree == nil {
		log.Debug("No event definitions")

		return nil, nil
	}

	eventDefs, err := events.LoadDefinitions(tree.Root, filter)
	if err != nil {
		return nil, err
	}

	h := events.NewHandler(log, events.Config{Domain: p.Name(), Searcher: searcher, Facts: f})
	h.RegisterAll(p.EventCallbacks(a.cfg.Options))

	return h.Run(ctx, eventDefs)
}

func (a *Analyzer) runScenarios(
	ctx context.Context,
	log logrus.FieldLogger,
	loader *defs.Loader,
	domain string,
	f facts.Facts,
	searcher *search.Searcher,
	store *issues.Store,
	filter string,
) (scenarios.Summary, error) {
	tree, err := loader.Load(domain)
	if err != nil {
		return scenarios.Summary{}, err
	}

	if tree == nil {
		log.Debug("No scenario definitions")

		return scenarios.Summary{}, nil
	}

	list, err := scenarios.LoadScenarios(tree.Root, filter)
	if err != nil {
		return scenarios.Summary{}, err
	}

	r := scenarios.NewRunner(log, scenarios.Config{
		Domain:   domain,
		Facts:    f,
		Searcher: searcher,
		Store:    store,
		Trackers: a.cfg.Trackers,
	})

	return r.Run(ctx, list)
}

// loadersFor returns the events and scenarios loaders for a definitions
// root. An empty root uses the definitions bundled with the plugin. Loaders
// are kept for the lifetime of the analyzer.
func (a *Analyzer) loadersFor(p plugin.Plugin, root string) (*defs.Loader, *defs.Loader, error) {
	key := root

	var fsys fs.FS

	switch {
	case root != "":
		fsys = os.DirFS(root)
	case p.Definitions() != nil:
		key = "plugin:" + p.Name()
		fsys = p.Definitions()
	default:
		return nil, nil, fmt.Errorf("%w for %s", ErrNoDefinitions, p.Name())
	}

	loader := func(dir string) (*defs.Loader, error) {
		k := path.Join(key, dir)
		if l, ok := a.loaders[k]; ok {
			return l, nil
		}

		sub, err := fs.Sub(fsys, dir)
		if err != nil {
			return nil, fmt.Errorf("opening %s definitions: %w", dir, err)
		}

		l := defs.NewLoader(a.log, sub)
		a.loaders[k] = l

		return l, nil
	}

	ev, err := loader(EventsDir)
	if err != nil {
		return nil, nil, err
	}

	sc, err := loader(ScenariosDir)
	if err != nil {
		return nil, nil, err
	}

	return ev, sc, nil
}
