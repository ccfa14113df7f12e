package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/muurk/telemetryd/internal/config"
	"github.com/muurk/telemetryd/internal/discovery"
	"github.com/muurk/telemetryd/internal/statusapi"
	"github.com/muurk/telemetryd/internal/ui"
)

// Status and watch flags
var (
	agentAddr     string
	agentDiscover bool
	statusJSON    bool
	statusTimeout time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running reporter",
	Long: `Fetch a snapshot from a running reporter's status API and display it.

The address defaults to status.listen from the configuration file. Use
--discover to find a reporter that advertises itself over mDNS.`,
	Example: `  # Local reporter
  telemetryd status

  # Remote reporter, JSON output for scripting
  telemetryd status --agent 192.168.1.40:8090 --json`,
	RunE: runStatus,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a running reporter live",
	Long: `Open the live status view of a running reporter.

Connectivity transitions and delivery outcomes are streamed over the
status API's WebSocket endpoint and shown as they happen.`,
	RunE: runWatch,
}

func init() {
	for _, c := range []*cobra.Command{statusCmd, watchCmd} {
		c.Flags().StringVar(&agentAddr, "agent", "", "Status API address (host:port)")
		c.Flags().BoolVar(&agentDiscover, "discover", false, "Find the reporter over mDNS")
		c.Flags().DurationVar(&statusTimeout, "timeout", 5*time.Second, "Request or discovery timeout")
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw JSON snapshot")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
}

// resolveAgent picks the status API address: flag, mDNS, config file, default
func resolveAgent(ctx context.Context) (string, error) {
	if agentAddr != "" {
		return agentAddr, nil
	}
	if agentDiscover {
		scanner := discovery.NewScanner()
		scanner.Service = discovery.AgentService
		scanner.Timeout = statusTimeout
		found, err := scanner.First(ctx)
		if err != nil {
			return "", fmt.Errorf("no reporter found: %w", err)
		}
		return net.JoinHostPort(found.IP, strconv.Itoa(found.Port)), nil
	}
	if cfg, err := config.Load(cfgPath); err == nil && cfg.Status.Listen != "" {
		return cfg.Status.Listen, nil
	}
	return config.DefaultStatusListen, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
	defer cancel()

	addr, err := resolveAgent(ctx)
	if err != nil {
		return err
	}

	snap, err := statusapi.FetchStatus(ctx, addr)
	if err != nil {
		return err
	}

	if statusJSON {
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	p.Header(ui.NewHeader("Reporter status", "telemetryd status", ui.Param{Key: "Agent", Value: addr}))
	p.Println(ui.RenderStatus(snap, p.Width()))
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	rctx, rcancel := context.WithTimeout(ctx, statusTimeout)
	addr, err := resolveAgent(rctx)
	rcancel()
	if err != nil {
		return err
	}

	events := make(chan statusapi.Event, 16)
	done := make(chan error, 1)
	go func() {
		done <- statusapi.Subscribe(ctx, addr, func(ev statusapi.Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
		close(events)
	}()

	_, err = tea.NewProgram(ui.NewWatchModel(addr, events, done), tea.WithAltScreen()).Run()
	return err
}
