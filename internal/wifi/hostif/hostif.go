// Package hostif implements a WiFi driver that follows a network interface
// on the host. Association is considered successful once the interface is
// up and carries an IPv4 address; losing the address is a link drop.
// Signal strength comes from /proc/net/wireless where available.
package hostif

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/telemetryd/internal/logging"
	"github.com/muurk/telemetryd/internal/wifi"
)

const (
	// DefaultPollInterval is how often the interface is inspected
	DefaultPollInterval = time.Second

	// DefaultAssociateTimeout bounds one association request
	DefaultAssociateTimeout = 5 * time.Second

	// DefaultWirelessPath is the Linux wireless statistics file
	DefaultWirelessPath = "/proc/net/wireless"
)

// ErrNoSignal is returned by RSSI when the interface has no wireless statistics.
var ErrNoSignal = errors.New("hostif: no signal information")

// Link is the observed state of the interface.
type Link struct {
	Up bool
	IP wifi.IPInfo
}

// Probe inspects an interface by name.
type Probe func(name string) (Link, error)

// Config holds the driver settings.
type Config struct {
	Interface        string
	PollInterval     time.Duration
	AssociateTimeout time.Duration
	WirelessPath     string
	Probe            Probe // defaults to ProbeInterface
}

type linkState int

const (
	stateIdle linkState = iota
	stateAssociating
	stateLinked
)

// Driver follows a host interface.
type Driver struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	events   chan<- wifi.Event
	state    linkState
	since    time.Time
	running  bool
	stop     chan struct{}
	loopDone chan struct{}
}

// New creates a driver for cfg.Interface.
func New(cfg Config) *Driver {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.AssociateTimeout <= 0 {
		cfg.AssociateTimeout = DefaultAssociateTimeout
	}
	if cfg.WirelessPath == "" {
		cfg.WirelessPath = DefaultWirelessPath
	}
	if cfg.Probe == nil {
		cfg.Probe = ProbeInterface
	}
	return &Driver{cfg: cfg, now: time.Now}
}

// Start implements wifi.Driver
func (d *Driver) Start(events chan<- wifi.Event) error {
	if _, err := d.cfg.Probe(d.cfg.Interface); err != nil {
		return fmt.Errorf("interface %q: %w", d.cfg.Interface, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}
	d.events = events
	d.running = true
	d.state = stateIdle
	d.stop = make(chan struct{})
	d.loopDone = make(chan struct{})
	go d.poll(d.stop, d.loopDone)

	logging.Debug("hostif driver started", zap.String("interface", d.cfg.Interface))
	d.emitLocked(wifi.Event{Kind: wifi.EventStarted})
	return nil
}

// Associate implements wifi.Driver. The SSID is recorded for logging only;
// joining the network is left to the host's own supplicant.
func (d *Driver) Associate(ssid, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return errors.New("hostif: not started")
	}
	logging.Debug("Waiting for interface address",
		zap.String("interface", d.cfg.Interface),
		zap.String("ssid", ssid),
	)
	d.state = stateAssociating
	d.since = d.now()
	return nil
}

// Disconnect implements wifi.Driver
func (d *Driver) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != stateIdle {
		d.state = stateIdle
		d.emitLocked(wifi.Event{Kind: wifi.EventDisconnected, Reason: "assoc leave"})
	}
	return nil
}

// Stop implements wifi.Driver
func (d *Driver) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.state = stateIdle
	close(d.stop)
	done := d.loopDone
	d.mu.Unlock()

	<-done
	return nil
}

// RSSI implements wifi.Driver
func (d *Driver) RSSI() (int, error) {
	f, err := os.Open(d.cfg.WirelessPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoSignal, err)
	}
	defer func() { _ = f.Close() }()
	return ParseWireless(f, d.cfg.Interface)
}

func (d *Driver) poll(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.check()
		case <-stop:
			return
		}
	}
}

// check compares the interface with the expected state and emits the
// resulting link event, if any.
func (d *Driver) check() {
	link, err := d.cfg.Probe(d.cfg.Interface)
	hasAddr := err == nil && link.Up && link.IP.IP != nil

	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case stateAssociating:
		switch {
		case hasAddr:
			d.state = stateLinked
			d.emitLocked(wifi.Event{Kind: wifi.EventGotIP, IP: link.IP})
		case d.now().Sub(d.since) >= d.cfg.AssociateTimeout:
			d.state = stateIdle
			reason := "no address assigned"
			if err != nil {
				reason = err.Error()
			}
			d.emitLocked(wifi.Event{Kind: wifi.EventDisconnected, Reason: reason})
		}
	case stateLinked:
		if !hasAddr {
			d.state = stateIdle
			reason := "address lost"
			if err != nil {
				reason = err.Error()
			} else if !link.Up {
				reason = "interface down"
			}
			d.emitLocked(wifi.Event{Kind: wifi.EventDisconnected, Reason: reason})
		}
	}
}

func (d *Driver) emitLocked(ev wifi.Event) {
	if !d.running {
		return
	}
	select {
	case d.events <- ev:
	default:
		logging.Warn("hostif event dropped, manager not keeping up", zap.Stringer("event", ev.Kind))
	}
}

// ProbeInterface reads the flags and first IPv4 address of an interface.
func ProbeInterface(name string) (Link, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return Link{}, err
	}
	link := Link{Up: iface.Flags&net.FlagUp != 0}

	addrs, err := iface.Addrs()
	if err != nil {
		return link, err
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			link.IP = wifi.IPInfo{IP: v4, Netmask: ipNet.Mask}
			break
		}
	}
	return link, nil
}

// ParseWireless extracts the signal level in dBm for iface from the
// contents of /proc/net/wireless.
func ParseWireless(r io.Reader, iface string) (int, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || strings.TrimSuffix(fields[0], ":") != iface {
			continue
		}
		level, err := strconv.ParseFloat(strings.TrimSuffix(fields[3], "."), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: bad level %q", ErrNoSignal, fields[3])
		}
		return int(level), nil
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("%w: %s not listed", ErrNoSignal, iface)
}
