package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/usnistgov/fastpm"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the registered device names",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range fastpm.DeviceNames() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
