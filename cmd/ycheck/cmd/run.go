package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/ycheck/pkg/analysis"
	"github.com/ethpandaops/ycheck/pkg/observability"
	"github.com/ethpandaops/ycheck/pkg/options"
	"github.com/ethpandaops/ycheck/runbooks"
)

var (
	runDataRoot       string
	runDefsRoot       string
	runWorkRoot       string
	runPlugins        []string
	runTextfile       string
	runEventFilter    string
	runScenarioFilter string
	runMaxParallel    int
	runGranularity    string
	runJSON           bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Analyse a snapshot with every enabled domain plugin",
	Long: `Run the events pass and then the scenarios pass of each domain plugin
against a snapshot and print the events output, potential issues and known
bugs of every domain.

Examples:
  ycheck run --data-root /tmp/sosreport-host1
  ycheck run --data-root /tmp/sosreport-host1 --plugin openvswitch --json
  ycheck run --data-root / --defs ./defs --scenario-filter openvswitch.logs`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runDataRoot, "data-root", "", "snapshot root that input paths are relative to")
	runCmd.Flags().StringVar(&runDefsRoot, "defs", "", "rule definitions root holding events/ and scenarios/ (default: bundled)")
	runCmd.Flags().StringVar(&runWorkRoot, "tmp", "", "parent directory of per-domain working directories")
	runCmd.Flags().StringSliceVar(&runPlugins, "plugin", nil, "domain plugins to run (default: all)")
	runCmd.Flags().StringVar(&runTextfile, "metrics-textfile", "", "write run metrics to this node_exporter textfile")
	runCmd.Flags().StringVar(&runEventFilter, "event-filter", "", "only run the event at this dotted path")
	runCmd.Flags().StringVar(&runScenarioFilter, "scenario-filter", "", "only run the scenario at this dotted path")
	runCmd.Flags().IntVar(&runMaxParallel, "max-parallel", 0, "maximum concurrent search tasks")
	runCmd.Flags().StringVar(&runGranularity, "tally-granularity", "", "event tally buckets (date, time)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print machine readable JSON")
}

// buildOptions layers defaults, the config file options section and the
// flags that were set, in that order.
func buildOptions(cmd *cobra.Command) (*options.Registry, error) {
	reg := options.NewCoreRegistry()

	if err := cfg.ApplyOptions(reg); err != nil {
		return nil, err
	}

	overrides := make(map[string]any, 8)

	flags := []struct {
		flag   string
		option string
		value  any
	}{
		{"data-root", options.DataRoot, runDataRoot},
		{"defs", options.PluginYAMLDefs, runDefsRoot},
		{"event-filter", options.EventFilter, runEventFilter},
		{"scenario-filter", options.ScenarioFilter, runScenarioFilter},
		{"max-parallel", options.MaxParallelTasks, runMaxParallel},
		{"tally-granularity", options.EventTallyGranularity, runGranularity},
		{"json", options.MachineReadable, runJSON},
	}

	for _, f := range flags {
		if cmd.Flags().Changed(f.flag) {
			overrides[f.option] = f.value
		}
	}

	if err := reg.SetMany(overrides); err != nil {
		return nil, err
	}

	return reg, nil
}

func runRun(cmd *cobra.Command, _ []string) error {
	started := time.Now()

	opts, err := buildOptions(cmd)
	if err != nil {
		return err
	}

	granularity, err := opts.String(options.EventTallyGranularity)
	if err != nil {
		return err
	}

	if granularity != options.GranularityDate && granularity != options.GranularityTime {
		return fmt.Errorf("event_tally_granularity must be %q or %q", options.GranularityDate, options.GranularityTime)
	}

	reg, err := buildPluginRegistry(cfg)
	if err != nil {
		return err
	}

	plugins, err := reg.Select(runPlugins)
	if err != nil {
		return err
	}

	workRoot := cfg.WorkRoot
	if runWorkRoot != "" {
		workRoot = runWorkRoot
	}

	a := analysis.New(log, analysis.Config{
		Options:  opts,
		Trackers: cfg.Trackers(),
		WorkRoot: workRoot,
	})

	reports, err := a.RunAll(cmd.Context(), plugins)
	if err != nil {
		return err
	}

	rbs, err := runbooks.NewRegistry(log)
	if err != nil {
		return err
	}

	for _, r := range reports {
		r.Runbooks = rbs.ForIssues(r.Issues)
	}

	machine, err := opts.Bool(options.MachineReadable)
	if err != nil {
		return err
	}

	if machine {
		err = outputJSON(cmd.OutOrStdout(), reports)
	} else {
		err = outputYAML(cmd.OutOrStdout(), reports)
	}

	if err != nil {
		return err
	}

	textfile := cfg.Metrics.Textfile
	if runTextfile != "" {
		textfile = runTextfile
	}

	if textfile != "" {
		if err := observability.WriteTextfile(textfile); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}

	if isTerminal() {
		issues, bugs := 0, 0
		for _, r := range reports {
			issues += len(r.Issues)
			bugs += len(r.Bugs)
		}

		fmt.Fprintf(os.Stderr, "%d domains, %d potential issues, %d known bugs in %s\n",
			len(reports), issues, bugs, units.HumanDuration(time.Since(started)))
	}

	return nil
}
