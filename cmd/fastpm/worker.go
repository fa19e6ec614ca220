package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/usnistgov/fastpm"
)

// workerCmd is what a Monitor with process isolation re-executes. Samples
// leave on stdout, shutdown requests arrive on stdin, and logs go to stderr.
var workerCmd = &cobra.Command{
	Use:                "worker",
	Short:              "Run one producer, speaking the sample protocol on stdin/stdout",
	Hidden:             true,
	DisableFlagParsing: true,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(fastpm.WorkerMain(args, os.Stdin, os.Stdout, os.Stderr))
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
