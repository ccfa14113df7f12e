// Package simradio provides a scripted WiFi driver. It backs the "sim"
// driver setting and the tests of packages that need a radio.
package simradio

import (
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/telemetryd/internal/logging"
	"github.com/muurk/telemetryd/internal/wifi"
)

// ErrNotAssociated is returned by RSSI without a link.
var ErrNotAssociated = errors.New("simradio: not associated")

// DefaultRSSI is the signal strength reported when Config.RSSI is zero
const DefaultRSSI = -55

// Step is the scripted outcome of one association request.
type Step struct {
	Fail   bool   // emit a disconnect instead of an address
	Reason string // disconnect reason when Fail is set
}

// Config controls the simulated radio.
type Config struct {
	IP       wifi.IPInfo   // address handed out; defaults to 192.168.4.2/24
	RSSI     int           // dBm
	Delay    time.Duration // latency of every emitted event
	Script   []Step        // consumed one step per association; afterwards every association succeeds
	StartErr error         // returned by Start
}

// Radio is the simulated driver.
type Radio struct {
	cfg Config

	mu           sync.Mutex
	events       chan<- wifi.Event
	script       []Step
	associated   bool
	running      bool
	associations int
	ssid         string

	queue chan wifi.Event
	stop  chan struct{}
	wg    sync.WaitGroup
}

// New creates a radio from cfg.
func New(cfg Config) *Radio {
	if cfg.IP.IP == nil {
		cfg.IP = wifi.IPInfo{
			IP:      net.IPv4(192, 168, 4, 2),
			Netmask: net.CIDRMask(24, 32),
			Gateway: net.IPv4(192, 168, 4, 1),
		}
	}
	if cfg.RSSI == 0 {
		cfg.RSSI = DefaultRSSI
	}
	return &Radio{
		cfg:    cfg,
		script: append([]Step(nil), cfg.Script...),
	}
}

// Start implements wifi.Driver
func (r *Radio) Start(events chan<- wifi.Event) error {
	if r.cfg.StartErr != nil {
		return r.cfg.StartErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	r.events = events
	r.running = true
	r.queue = make(chan wifi.Event, 64)
	r.stop = make(chan struct{})

	r.wg.Add(1)
	go r.pump(r.queue, r.stop)

	r.emitLocked(wifi.Event{Kind: wifi.EventStarted})
	return nil
}

// Associate implements wifi.Driver
func (r *Radio) Associate(ssid, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return errors.New("simradio: not started")
	}

	r.ssid = ssid
	step := Step{}
	if len(r.script) > 0 {
		step, r.script = r.script[0], r.script[1:]
	}

	if step.Fail {
		reason := step.Reason
		if reason == "" {
			reason = "no AP found"
		}
		r.associated = false
		r.emitLocked(wifi.Event{Kind: wifi.EventDisconnected, Reason: reason})
		return nil
	}

	r.associated = true
	r.associations++
	r.emitLocked(wifi.Event{Kind: wifi.EventGotIP, IP: r.cfg.IP})
	return nil
}

// Disconnect implements wifi.Driver
func (r *Radio) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.associated {
		r.associated = false
		r.emitLocked(wifi.Event{Kind: wifi.EventDisconnected, Reason: "assoc leave"})
	}
	return nil
}

// Stop implements wifi.Driver
func (r *Radio) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.associated = false
	close(r.stop)
	r.mu.Unlock()

	r.wg.Wait()
	return nil
}

// RSSI implements wifi.Driver
func (r *Radio) RSSI() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.associated {
		return 0, ErrNotAssociated
	}
	return r.cfg.RSSI, nil
}

// Drop simulates the access point going away.
func (r *Radio) Drop(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.associated {
		return
	}
	r.associated = false
	r.emitLocked(wifi.Event{Kind: wifi.EventDisconnected, Reason: reason})
}

// Fail simulates an unrecoverable radio fault.
func (r *Radio) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.associated = false
	r.emitLocked(wifi.Event{Kind: wifi.EventFatal, Err: err})
}

// Queue appends steps to the association script.
func (r *Radio) Queue(steps ...Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.script = append(r.script, steps...)
}

// SetRSSI changes the reported signal strength.
func (r *Radio) SetRSSI(dbm int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.RSSI = dbm
}

// Associations returns the number of successful associations.
func (r *Radio) Associations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.associations
}

// SSID returns the network last requested by Associate.
func (r *Radio) SSID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ssid
}

func (r *Radio) emitLocked(ev wifi.Event) {
	if !r.running {
		return
	}
	select {
	case r.queue <- ev:
	default:
		logging.Warn("simradio event queue full, dropping event", zap.Stringer("event", ev.Kind))
	}
}

// pump forwards queued events in order, applying the configured latency.
func (r *Radio) pump(queue <-chan wifi.Event, stop <-chan struct{}) {
	defer r.wg.Done()
	for {
		select {
		case ev := <-queue:
			if r.cfg.Delay > 0 {
				select {
				case <-time.After(r.cfg.Delay):
				case <-stop:
					return
				}
			}
			select {
			case r.events <- ev:
			case <-stop:
				return
			}
		case <-stop:
			return
		}
	}
}
