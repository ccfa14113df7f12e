// Telemetryd is a station-mode telemetry reporter.
//
// It brings up a WiFi link, samples the CPU temperature and uptime sensors
// on a fixed interval and pushes each reading as JSON to an HTTP collector.
// A local status API exposes connectivity and delivery statistics.
//
// Usage:
//
//	telemetryd [command] [flags]
//
// See 'telemetryd --help' for available commands.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/telemetryd/internal/agent"
	"github.com/muurk/telemetryd/internal/config"
	"github.com/muurk/telemetryd/internal/logging"
	"github.com/muurk/telemetryd/internal/version"
)

// Exit codes
const (
	exitError   = 1
	exitStartup = 2 // the agent could not bring the link up
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, agent.ErrStartup) {
			os.Exit(exitStartup)
		}
		os.Exit(exitError)
	}
}

// Global flags
var (
	cfgPath  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "telemetryd",
	Short: "Station-mode telemetry reporter",
	Long: `Telemetryd joins a WiFi network, samples CPU temperature and uptime on a
fixed interval and pushes each reading as JSON to an HTTP collector.

Start the reporter with 'telemetryd run'. While it runs, 'telemetryd status'
and 'telemetryd watch' show its connectivity and delivery statistics.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Silent unless asked; "run" raises the level from the config file
		return logging.Initialize(logLevel)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config file (default: OS config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides "+logging.LogLevelEnvVar)

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "telemetryd %s (commit: %s)\n", version.Version, version.Commit)
	},
}

// loadConfig reads the file named by --config or the default location
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
