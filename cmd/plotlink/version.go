package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/plotlink"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of plotlink",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "plotlink version %s\n", strings.TrimSpace(plotlink.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
