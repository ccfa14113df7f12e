package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/telemetryd/internal/discovery"
)

// Discover flags
var (
	discoverTimeout time.Duration
	discoverAgents  bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find telemetry collectors on the network",
	Long: `Browse mDNS for telemetry collectors (` + discovery.CollectorService + `).

With --agents, browse for running reporters (` + discovery.AgentService + `)
instead.`,
	Example: `  # Scan for 5 seconds (default)
  telemetryd discover

  # Longer scan for busy networks
  telemetryd discover --timeout 15s

  # Find reporters that expose a status API
  telemetryd discover --agents`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", discovery.DefaultScanTimeout, "Scan timeout")
	discoverCmd.Flags().BoolVar(&discoverAgents, "agents", false, "Browse for reporters instead of collectors")

	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	scanner := discovery.NewScanner()
	scanner.Timeout = discoverTimeout
	what := "collectors"
	if discoverAgents {
		scanner.Service = discovery.AgentService
		what = "reporters"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanning for %s (timeout: %s)...\n\n", what, discoverTimeout)

	found, err := scanner.Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(found) == 0 {
		fmt.Fprintf(out, "No %s found.\n", what)
		fmt.Fprintln(out, "\nTroubleshooting:")
		fmt.Fprintln(out, "  - Ensure the service is running and advertising over mDNS")
		fmt.Fprintln(out, "  - mDNS does not cross routers; scan from the same subnet")
		fmt.Fprintln(out, "  - Try increasing --timeout for slower networks")
		return nil
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Instance < found[j].Instance })

	fmt.Fprintf(out, "Found %d %s:\n\n", len(found), what)
	for i, c := range found {
		fmt.Fprintf(out, "%d. %s\n", i+1, c.Instance)
		fmt.Fprintf(out, "   Host:     %s\n", c.Hostname)
		if discoverAgents {
			fmt.Fprintf(out, "   Status:   %s:%d\n", c.IP, c.Port)
		} else {
			fmt.Fprintf(out, "   Endpoint: %s\n", c.Endpoint())
		}
		if len(c.Metadata) > 0 {
			fmt.Fprintf(out, "   Metadata: %v\n", c.Metadata)
		}
		fmt.Fprintln(out)
	}

	if discoverAgents {
		fmt.Fprintln(out, "Use 'telemetryd status --agent <host:port>' to view a reporter")
	} else {
		fmt.Fprintln(out, "Use 'telemetryd setup' to configure one of these collectors")
	}
	return nil
}
