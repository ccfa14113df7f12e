package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/telemetryd/internal/config"
	"github.com/muurk/telemetryd/internal/discovery"
	"github.com/muurk/telemetryd/internal/wizard/tui"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults and environment overrides are
applied. The WiFi password is never printed.`,
	RunE: runConfigShow,
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive configuration wizard",
	Long: `Launch an interactive wizard that discovers collectors on the network,
asks for the WiFi settings and writes the configuration file.`,
	RunE: runSetup,
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(setupCmd)
}

// targetPath returns the --config path or the default location
func targetPath() (string, error) {
	if cfgPath != "" {
		return cfgPath, nil
	}
	return config.GetConfigPath()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := targetPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}

	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.WiFi.Password = ""

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runSetup(cmd *cobra.Command, args []string) error {
	path, err := targetPath()
	if err != nil {
		return err
	}

	// Start from the existing file when there is a valid one
	base, err := config.Load(path)
	if err != nil {
		base = config.Default()
	}

	scanner := discovery.NewScanner()
	cfg, err := tui.Run(base, path, scanner.Scan, scanner.Timeout)
	if errors.Is(err, tui.ErrCancelled) {
		fmt.Fprintln(cmd.OutOrStdout(), "Setup cancelled, nothing written.")
		return nil
	}
	if err != nil {
		return err
	}

	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved configuration to %s\n", path)
	fmt.Fprintf(cmd.OutOrStdout(), "Set %s, then start the reporter with 'telemetryd run'.\n", config.PasswordEnvVar)
	return nil
}
