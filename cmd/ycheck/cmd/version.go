package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/ycheck/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "ycheck", version.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
