package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/plotlink/internal/config"
	"github.com/aretw0/plotlink/internal/logging"
	"github.com/spf13/cobra"
)

// defaultConfigFile is read when --config is not given and the file exists.
const defaultConfigFile = "plotlink.yaml"

var rootCmd = &cobra.Command{
	Use:   "plotlink",
	Short: "plotlink hosts plot endpoints for remote drawing clients",
	Long: `plotlink mediates between remote drawing clients and local rendering surfaces.
Each plot gates the client's events, redraws on request and tracks whether the
bound client is still alive.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to plotlink.yaml (default ./plotlink.yaml when present)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (overrides config)")
}

// loadConfig resolves the configuration and logger for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}
	return cfg, logging.New(level), nil
}
