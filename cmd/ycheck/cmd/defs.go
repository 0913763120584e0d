package cmd

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/ycheck/pkg/analysis"
	"github.com/ethpandaops/ycheck/pkg/defs"
)

var defsRoot string

var defsCmd = &cobra.Command{
	Use:   "defs {events|scenarios} <domain>",
	Short: "Print the resolved rule definitions of a domain",
	Long: `Load the events or scenarios definitions of a domain, merge directory
globals, resolve ${...} references and print the resulting tree.

Examples:
  ycheck defs scenarios openvswitch
  ycheck defs events openvswitch --defs ./defs`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{analysis.EventsDir, analysis.ScenariosDir},
	RunE:      runDefs,
}

func init() {
	rootCmd.AddCommand(defsCmd)

	defsCmd.Flags().StringVar(&defsRoot, "defs", "", "rule definitions root (default: bundled with the plugin)")
}

func runDefs(cmd *cobra.Command, args []string) error {
	kind, domain := args[0], args[1]

	if kind != analysis.EventsDir && kind != analysis.ScenariosDir {
		return fmt.Errorf("unknown definition kind %q", kind)
	}

	var fsys fs.FS

	if defsRoot != "" {
		fsys = os.DirFS(defsRoot)
	} else {
		reg, err := buildPluginRegistry(cfg)
		if err != nil {
			return err
		}

		p, err := reg.Get(domain)
		if err != nil {
			return err
		}

		if fsys = p.Definitions(); fsys == nil {
			return fmt.Errorf("%w for %s", analysis.ErrNoDefinitions, domain)
		}
	}

	sub, err := fs.Sub(fsys, kind)
	if err != nil {
		return err
	}

	tree, err := defs.NewLoader(log, sub).Load(domain)
	if err != nil {
		return err
	}

	if tree == nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "no %s definitions for %s\n", kind, domain)

		return nil
	}

	return outputYAML(cmd.OutOrStdout(), map[string]any{
		"files": tree.Files,
		domain:  tree.Root.Raw(),
	})
}
