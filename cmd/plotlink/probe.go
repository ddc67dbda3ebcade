package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/plotlink/pkg/adapters/process"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe <pid>",
	Short: "Check whether a local process would count as a responding client",
	Long: `Applies the liveness check used for pid-bound clients: the process must exist
and be neither a zombie nor stopped. Exits non-zero when it is not responding.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid pid %q", args[0])
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")

		_, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		responder, err := process.NewResponder(pid, process.WithLogger(logger))
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		name := responder.Name(ctx)
		if name == "" {
			name = "unknown"
		}
		if !responder.IsResponding(ctx) {
			return fmt.Errorf("pid %d (%s) is not responding", pid, name)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pid %d (%s) is responding\n", pid, name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().Duration("timeout", 2*time.Second, "Probe timeout")
}
