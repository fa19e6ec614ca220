package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/usnistgov/fastpm"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "This is fastpm version %s\n", fastpm.Build.Version)
		fmt.Fprintf(out, "Git commit hash: %s\n", fastpm.Build.Githash)
		fmt.Fprintf(out, "Build time: %s\n", fastpm.Build.Date)
		fmt.Fprintf(out, "Built on go version %s\n", runtime.Version())
		fmt.Fprintf(out, "Running on %d CPUs.\n", runtime.NumCPU())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
