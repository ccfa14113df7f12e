package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/telemetryd/internal/delivery"
	"github.com/muurk/telemetryd/internal/sensor"
	"github.com/muurk/telemetryd/internal/transport"
	"github.com/muurk/telemetryd/internal/ui"
)

// Send and probe flags
var (
	sendEndpoint string
	sendFile     string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Deliver one reading now",
	Long: `Sample the sensors once and post the reading to the endpoint.

This uses the host's network directly and does not bring up the WiFi
driver. The reading comes from a sampler started by this command, so it is
the synthetic value at t=0: uptime "0h 0m 0s" and the starting point of the
temperature curve. Use 'telemetryd status' to see a running reporter.

With --file, a pre-formatted JSON document is posted instead of a reading;
it must be valid JSON.`,
	Example: `  # Send a fresh reading to the configured endpoint
  telemetryd send

  # Send a document from a file to another collector
  telemetryd send --file reading.json --endpoint http://localhost:9000/ingest

  # Read the document from stdin
  echo '{"cpu_temp":30}' | telemetryd send --file -`,
	RunE: runSend,
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test connectivity to the endpoint",
	Long: `Post the fixed document {"test":"connectivity"} to the endpoint and
report the HTTP result.`,
	RunE: runProbe,
}

func init() {
	for _, c := range []*cobra.Command{sendCmd, probeCmd} {
		c.Flags().StringVar(&sendEndpoint, "endpoint", "", "Endpoint override")
	}
	sendCmd.Flags().StringVar(&sendFile, "file", "", "JSON document to post instead of a reading (- for stdin)")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(probeCmd)
}

// openCycle loads the configuration and returns an initialized delivery cycle
func openCycle() (*delivery.Cycle, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	dc := deliveryConfig(cfg.API)
	if sendEndpoint != "" {
		dc.Endpoint = sendEndpoint
	}
	cycle := delivery.New(dc)
	if err := cycle.Init(); err != nil {
		return nil, err
	}
	return cycle, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	cycle, err := openCycle()
	if err != nil {
		return err
	}
	defer cycle.Close()

	p := ui.NewPrinter(cmd.OutOrStdout())
	p.Header(ui.NewHeader("Send telemetry", "telemetryd send", ui.Param{Key: "Endpoint", Value: cycle.Endpoint()}))

	ctx := cmd.Context()
	var out delivery.Outcome
	if sendFile != "" {
		raw, rerr := readDocument(cmd.InOrStdin(), sendFile)
		if rerr != nil {
			return rerr
		}
		out, err = cycle.SendJSON(ctx, cycle.Endpoint(), raw)
	} else {
		// Fresh sampler: the reading is taken at t=0.
		reading, serr := sensor.NewSampler(time.Now()).Sample()
		if serr != nil {
			p.Result(ui.NewWarningResult("Partial reading", ui.Param{Key: "Error", Value: serr.Error()}))
		}
		out, err = cycle.RunDefault(ctx, reading)
	}

	return report(p, "Telemetry delivered", "Delivery failed", out, err)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cycle, err := openCycle()
	if err != nil {
		return err
	}
	defer cycle.Close()

	p := ui.NewPrinter(cmd.OutOrStdout())
	p.Header(ui.NewHeader("Connectivity probe", "telemetryd probe", ui.Param{Key: "Endpoint", Value: cycle.Endpoint()}))

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*transport.DefaultTimeout)
	defer cancel()
	out, err := cycle.Probe(ctx)
	return report(p, "Endpoint reachable", "Endpoint unreachable", out, err)
}

// report prints the outcome of one exchange and passes err through
func report(p *ui.Printer, okTitle, failTitle string, out delivery.Outcome, err error) error {
	if err != nil {
		p.Result(ui.NewFailureResult(failTitle, err, troubleshoot(err)...))
		return err
	}

	r := ui.NewSuccessResult(okTitle,
		ui.Param{Key: "HTTP status", Value: fmt.Sprintf("%d", out.StatusCode)},
		ui.Param{Key: "Response", Value: ui.FormatBytes(out.ContentLength)},
		ui.Param{Key: "Elapsed", Value: out.Elapsed.Round(time.Millisecond).String()},
	)
	if out.Truncated {
		r.AddDetail("Body", "truncated")
	}
	p.Result(r)
	return nil
}

// troubleshoot suggests fixes for a failed exchange
func troubleshoot(err error) []string {
	switch {
	case delivery.IsPayloadError(err):
		return []string{"Check that the document is valid JSON"}
	case transport.IsTimeout(err):
		return []string{
			"The collector accepted the connection but did not answer in time",
			"Raise api.request_timeout if the collector is slow",
		}
	case transport.IsNonSuccessStatus(err):
		return []string{"Check the endpoint path and the collector logs"}
	case transport.IsNetworkError(err):
		return []string{
			"Is the collector running and reachable from this host?",
			"Try 'telemetryd discover' to find collectors on the network",
		}
	case transport.IsInvalidArgument(err):
		return []string{"Check api.endpoint; it must be an http or https URL"}
	}
	return nil
}

func readDocument(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
