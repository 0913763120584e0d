package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/ycheck/pkg/types"
	"github.com/ethpandaops/ycheck/runbooks"
)

var (
	runbooksType   string
	runbooksOrigin string
	runbooksJSON   bool
)

var runbooksCmd = &cobra.Command{
	Use:   "runbooks [name]",
	Short: "List or show remediation runbooks",
	Long: `List the bundled remediation runbooks, optionally only those covering a
finding, or print one runbook by name.

Examples:
  ycheck runbooks
  ycheck runbooks --origin openvswitch.logs
  ycheck runbooks "ovs stale ports"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRunbooks,
}

func init() {
	rootCmd.AddCommand(runbooksCmd)

	runbooksCmd.Flags().StringVar(&runbooksType, "type", "", "only runbooks covering this issue type")
	runbooksCmd.Flags().StringVar(&runbooksOrigin, "origin", "", "only runbooks covering this finding origin")
	runbooksCmd.Flags().BoolVar(&runbooksJSON, "json", false, "print machine readable JSON")
}

func runRunbooks(cmd *cobra.Command, args []string) error {
	reg, err := runbooks.NewRegistry(log)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if len(args) == 1 {
		rb := reg.Get(args[0])
		if rb == nil {
			return fmt.Errorf("runbook %q not found", args[0])
		}

		if runbooksJSON {
			return outputJSON(out, rb)
		}

		fmt.Fprintf(out, "# %s\n\n%s\n\n%s\n", rb.Name, rb.Description, rb.Content)

		return nil
	}

	list := reg.All()
	if runbooksType != "" || runbooksOrigin != "" {
		list = reg.Match(runbooksType, runbooksOrigin)
	}

	if runbooksJSON {
		if list == nil {
			list = []types.Runbook{}
		}

		return outputJSON(out, list)
	}

	for _, rb := range list {
		fmt.Fprintf(out, "%-36s %s\n", rb.Name, rb.Description)
	}

	return nil
}
