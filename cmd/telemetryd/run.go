package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/telemetryd/internal/agent"
	"github.com/muurk/telemetryd/internal/config"
	"github.com/muurk/telemetryd/internal/delivery"
	"github.com/muurk/telemetryd/internal/discovery"
	"github.com/muurk/telemetryd/internal/logging"
	"github.com/muurk/telemetryd/internal/sensor"
	"github.com/muurk/telemetryd/internal/statusapi"
	"github.com/muurk/telemetryd/internal/wifi"
	"github.com/muurk/telemetryd/internal/wifi/hostif"
	"github.com/muurk/telemetryd/internal/wifi/simradio"
)

// shutdownTimeout bounds the status API shutdown
const shutdownTimeout = 5 * time.Second

// Run command flags
var (
	runDriver   string
	runEndpoint string
	runOnce     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the telemetry reporter",
	Long: `Start the telemetry reporter in the foreground.

The reporter initializes the WiFi driver, connects (retrying up to
wifi.max_retry times) and then delivers one reading per transmission
interval until interrupted. Cycles are skipped while the link is down.

If the link cannot be established at startup the command exits with
status 2.`,
	Example: `  # Run with the default configuration
  telemetryd run

  # Follow a real interface and post to a specific collector
  telemetryd run --driver hostif --endpoint http://collector.local:8080/api/telemetry

  # Deliver a single reading and exit
  telemetryd run --once --log-level debug`,
	RunE: runAgent,
}

func init() {
	runCmd.Flags().StringVar(&runDriver, "driver", "", "WiFi driver override (sim, hostif)")
	runCmd.Flags().StringVar(&runEndpoint, "endpoint", "", "Telemetry endpoint override")
	runCmd.Flags().BoolVar(&runOnce, "once", false, "Deliver one reading and exit")

	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runDriver != "" {
		cfg.WiFi.Driver = runDriver
	}
	if runEndpoint != "" {
		cfg.API.Endpoint = runEndpoint
		cfg.API.Discover = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if logLevel == "" && os.Getenv(logging.LogLevelEnvVar) == "" {
		if err := logging.Initialize(cfg.LogLevel); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver, err := buildDriver(cfg.WiFi)
	if err != nil {
		return err
	}

	cycle := delivery.New(deliveryConfig(cfg.API))
	if cfg.API.Discover {
		endpoint, err := discovery.FindCollector(ctx, discovery.DefaultScanTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: collector discovery: %w", agent.ErrStartup, err)
		}
		logging.Info("Discovered collector", zap.String("endpoint", endpoint))
		cycle.SetEndpoint(endpoint)
	}

	mgr := wifi.NewManager(wifi.Config{
		SSID:     cfg.WiFi.SSID,
		Password: cfg.WiFi.Password,
		MaxRetry: cfg.WiFi.MaxRetry,
	}, driver)
	a := agent.New(agentConfig(cfg), mgr, cycle, sensor.NewSampler(time.Now()))

	if cfg.Status.Listen != "" {
		srv := statusapi.New(statusapi.Config{
			Listen:    cfg.Status.Listen,
			Advertise: cfg.Status.Advertise,
		}, a)
		mgr.Watch(srv.PublishTransition)
		cycle.Observe(srv.PublishDelivery)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				logging.Warn("Status API shutdown failed", zap.Error(err))
			}
		}()
	}

	if runOnce {
		return runSingle(ctx, a)
	}
	return a.Run(ctx)
}

// runSingle starts the agent, runs one cycle and shuts down. An interrupt
// during startup is a clean exit.
func runSingle(ctx context.Context, a *agent.Agent) error {
	if err := a.Start(ctx); err != nil {
		_ = a.Shutdown()
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	out, err := a.RunOnce(ctx)
	if serr := a.Shutdown(); serr != nil {
		logging.Warn("Shutdown failed", zap.Error(serr))
	}
	if err != nil {
		return err
	}
	logging.Info("Reading delivered", zap.Int("status", out.StatusCode))
	return nil
}

// buildDriver selects the radio for the configured driver name
func buildDriver(cfg config.WiFi) (wifi.Driver, error) {
	switch cfg.Driver {
	case "sim":
		return simradio.New(simradio.Config{}), nil
	case "hostif":
		return hostif.New(hostif.Config{Interface: cfg.Interface}), nil
	default:
		return nil, fmt.Errorf("%w: unknown wifi.driver %q", config.ErrInvalid, cfg.Driver)
	}
}

func deliveryConfig(api config.API) delivery.Config {
	return delivery.Config{
		Endpoint:       api.Endpoint,
		Timeout:        api.RequestTimeout,
		ResponseBuffer: api.ResponseBuffer,
		UserAgent:      api.UserAgent,
	}
}

func agentConfig(cfg *config.Config) agent.Config {
	return agent.Config{
		Interval:           cfg.Transmission.Interval,
		ConnectTimeout:     cfg.WiFi.ConnectTimeout,
		ReportEvery:        cfg.Transmission.ReportEvery,
		ReconnectOnFailure: cfg.Transmission.ReconnectOnFailure,
	}
}
