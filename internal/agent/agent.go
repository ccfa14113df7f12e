// Package agent drives the telemetry lifecycle: bring the link up, then on
// every interval sample the sensors and push the reading, skipping cycles
// while the link is down.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/telemetryd/internal/delivery"
	"github.com/muurk/telemetryd/internal/logging"
	"github.com/muurk/telemetryd/internal/sensor"
	"github.com/muurk/telemetryd/internal/version"
	"github.com/muurk/telemetryd/internal/wifi"
)

var (
	// ErrStartup wraps every failure of the startup phase.
	ErrStartup = errors.New("agent: startup failed")
	// ErrSkipped is returned by RunOnce when the link is down.
	ErrSkipped = errors.New("agent: WiFi not connected, cycle skipped")
)

// Connectivity is the part of wifi.Manager the agent uses.
type Connectivity interface {
	Init() error
	Connect(ctx context.Context, timeout time.Duration) error
	IsConnected() bool
	Status() wifi.Status
	Stats() wifi.Stats
	RSSI() (int, error)
	Close() error
}

// Sampler produces one reading per cycle.
type Sampler interface {
	Sample() (sensor.Reading, error)
}

// Config holds the schedule.
type Config struct {
	Interval           time.Duration
	ConnectTimeout     time.Duration
	ReportEvery        int
	ReconnectOnFailure bool
}

// Counters track the loop itself.
type Counters struct {
	Cycles    uint64    `json:"cycles"`
	Skipped   uint64    `json:"skipped"`
	Delivered uint64    `json:"delivered"`
	Failed    uint64    `json:"failed"`
	StartedAt time.Time `json:"started_at"`
}

// Snapshot is a point-in-time view of everything the agent knows.
type Snapshot struct {
	Version      string            `json:"version"`
	Endpoint     string            `json:"endpoint"`
	Status       wifi.Status       `json:"status"`
	Connectivity wifi.Stats        `json:"connectivity"`
	Delivery     delivery.Stats    `json:"delivery"`
	LastOutcome  *delivery.Outcome `json:"last_outcome,omitempty"`
	Loop         Counters          `json:"loop"`
	Uptime       time.Duration     `json:"uptime_ns"`
	At           time.Time         `json:"at"`
}

// Agent is the orchestrator.
type Agent struct {
	cfg     Config
	conn    Connectivity
	cycle   *delivery.Cycle
	sampler Sampler
	now     func() time.Time

	mu       sync.Mutex
	counters Counters
	shutdown bool
}

// New creates an agent. Nothing runs until Start or Run.
func New(cfg Config, conn Connectivity, cycle *delivery.Cycle, sampler Sampler) *Agent {
	if cfg.ReportEvery <= 0 {
		cfg.ReportEvery = 1
	}
	return &Agent{
		cfg:     cfg,
		conn:    conn,
		cycle:   cycle,
		sampler: sampler,
		now:     time.Now,
	}
}

// Start initializes connectivity and delivery, then blocks until the link
// is up. Any failure is wrapped in ErrStartup, except cancellation of ctx,
// which is returned as ctx.Err().
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	a.counters = Counters{StartedAt: a.now()}
	a.shutdown = false
	a.mu.Unlock()

	logging.Info("Starting telemetry agent",
		zap.String("version", version.Full()),
		zap.String("endpoint", a.cycle.Endpoint()),
		zap.Duration("interval", a.cfg.Interval),
	)

	if err := a.conn.Init(); err != nil {
		return fmt.Errorf("%w: wifi init: %w", ErrStartup, err)
	}
	if err := a.cycle.Init(); err != nil {
		return fmt.Errorf("%w: delivery init: %w", ErrStartup, err)
	}

	logging.Info("Connecting to WiFi", zap.Duration("timeout", a.cfg.ConnectTimeout))
	if err := a.conn.Connect(ctx, a.cfg.ConnectTimeout); err != nil {
		if ctx.Err() != nil {
			logging.Info("Startup interrupted", zap.Error(err))
			return ctx.Err()
		}
		return fmt.Errorf("%w: wifi connect: %w", ErrStartup, err)
	}
	logging.Info("WiFi connected, entering transmission loop")
	return nil
}

// Run starts the agent and loops until ctx is done, then shuts down. It
// returns nil after a clean shutdown, including one requested during
// startup, and an ErrStartup error if the link could not be brought up.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		if serr := a.Shutdown(); serr != nil {
			logging.Warn("Shutdown after failed start", zap.Error(serr))
		}
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil
		}
		return err
	}

	timer := time.NewTimer(a.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info("Stopping telemetry agent")
			return a.Shutdown()
		case <-timer.C:
			// Errors are logged inside; the next cycle starts from fresh state.
			_, _ = a.RunOnce(ctx)
			timer.Reset(a.cfg.Interval)
		}
	}
}

// RunOnce performs a single cycle: gate on connectivity, sample, deliver
// and maybe report.
func (a *Agent) RunOnce(ctx context.Context) (delivery.Outcome, error) {
	a.mu.Lock()
	a.counters.Cycles++
	cycle := a.counters.Cycles
	a.mu.Unlock()

	defer a.maybeReport(cycle)

	if !a.conn.IsConnected() {
		a.mu.Lock()
		a.counters.Skipped++
		a.mu.Unlock()
		logging.Warn("WiFi not connected, skipping transmission",
			zap.Uint64("cycle", cycle),
			zap.Stringer("status", a.conn.Status()),
		)
		a.maybeReconnect(ctx)
		return delivery.Outcome{}, ErrSkipped
	}

	reading, err := a.sampler.Sample()
	if err != nil {
		logging.Warn("Sensor read incomplete, sending partial reading", zap.Error(err))
	}

	out, err := a.cycle.RunDefault(ctx, reading)

	a.mu.Lock()
	if err != nil {
		a.counters.Failed++
	} else {
		a.counters.Delivered++
	}
	a.mu.Unlock()

	return out, err
}

// maybeReconnect re-issues Connect when the manager has given up.
func (a *Agent) maybeReconnect(ctx context.Context) {
	if !a.cfg.ReconnectOnFailure || a.conn.Status() != wifi.Failed {
		return
	}
	logging.Info("Retrying WiFi connection")
	if err := a.conn.Connect(ctx, a.cfg.ConnectTimeout); err != nil {
		logging.Warn("WiFi reconnect failed", zap.Error(err))
	}
}

func (a *Agent) maybeReport(cycle uint64) {
	if cycle%uint64(a.cfg.ReportEvery) != 0 {
		return
	}
	st := a.cycle.Stats()
	rssi, err := a.conn.RSSI()
	if err != nil {
		rssi = 0
	}
	logging.LogStatusReport(cycle, a.conn.Status().String(), st.TotalAttempts, st.Successes, st.Failures(), rssi)
}

// Snapshot returns the connectivity status and stats, delivery stats, the
// last outcome and loop counters.
func (a *Agent) Snapshot() Snapshot {
	a.mu.Lock()
	counters := a.counters
	a.mu.Unlock()

	now := a.now()
	s := Snapshot{
		Version:      version.Version,
		Endpoint:     a.cycle.Endpoint(),
		Status:       a.conn.Status(),
		Connectivity: a.conn.Stats(),
		Delivery:     a.cycle.Stats(),
		Loop:         counters,
		At:           now,
	}
	if !counters.StartedAt.IsZero() {
		s.Uptime = now.Sub(counters.StartedAt)
	}
	if out, err := a.cycle.LastOutcome(); err == nil {
		s.LastOutcome = &out
	}
	return s
}

// Shutdown disconnects and stops the radio before releasing the transport.
// It is safe to call more than once.
func (a *Agent) Shutdown() error {
	a.mu.Lock()
	if a.shutdown {
		a.mu.Unlock()
		return nil
	}
	a.shutdown = true
	a.mu.Unlock()

	return errors.Join(a.conn.Close(), a.cycle.Close())
}
