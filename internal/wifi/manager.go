package wifi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/telemetryd/internal/logging"
)

// eventBuffer is the capacity of the driver event channel
const eventBuffer = 16

// Config holds the station settings.
type Config struct {
	SSID     string
	Password string
	MaxRetry int
}

// Manager is the connectivity state machine. Create one with NewManager and
// call Init before Connect.
type Manager struct {
	cfg    Config
	driver Driver
	now    func() time.Time

	mu          sync.RWMutex
	initialized bool
	started     bool // driver Start has succeeded
	status      Status
	stats       Stats
	watchers    []func(Transition)

	events   chan Event
	signals  chan error // outcome of the current attempt; nil means connected
	done     chan struct{}
	loopDone chan struct{}
}

// NewManager creates a manager for driver. Nothing runs until Init.
func NewManager(cfg Config, driver Driver) *Manager {
	return &Manager{
		cfg:    cfg,
		driver: driver,
		now:    time.Now,
	}
}

// Init validates the configuration, resets state and statistics, and starts
// the event loop. Calling Init on a running manager is a no-op unless the
// manager is in the Error state, in which case the driver is stopped and
// the state machine starts over.
func (m *Manager) Init() error {
	if m.driver == nil {
		return fmt.Errorf("%w: no driver", ErrInvalidConfig)
	}
	if m.cfg.SSID == "" {
		return fmt.Errorf("%w: empty SSID", ErrInvalidConfig)
	}
	if m.cfg.MaxRetry < 0 {
		return fmt.Errorf("%w: negative max retry", ErrInvalidConfig)
	}

	m.mu.Lock()
	if m.initialized && m.status != Error {
		m.mu.Unlock()
		return nil
	}

	restart := m.initialized
	stopDriver := m.started
	m.status = Disconnected
	m.stats = Stats{MaxRetry: m.cfg.MaxRetry}
	m.started = false

	if !restart {
		m.events = make(chan Event, eventBuffer)
		m.signals = make(chan error, 1)
		m.done = make(chan struct{})
		m.loopDone = make(chan struct{})
		m.initialized = true
		go m.loop()
	}
	m.mu.Unlock()

	if stopDriver {
		if err := m.driver.Stop(); err != nil {
			logging.Warn("Driver stop failed during re-init", zap.Error(err))
		}
	}

	logging.Info("WiFi manager initialized",
		zap.String("ssid", m.cfg.SSID),
		zap.Int("max_retry", m.cfg.MaxRetry),
		zap.Bool("reinit", restart),
	)
	return nil
}

// Connect starts association and blocks until the link is up, the retry
// budget is spent, timeout elapses or ctx is done. A timeout leaves the
// status at Failed. Connect on a connected manager returns nil at once.
func (m *Manager) Connect(ctx context.Context, timeout time.Duration) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return ErrNotInitialized
	}

	var tr *Transition
	start, associate := false, false
	switch m.status {
	case Connected:
		m.mu.Unlock()
		return nil
	case Error:
		m.mu.Unlock()
		return ErrFatal
	case Connecting:
		// A reconnect loop is already running; wait for its outcome.
	default:
		t := m.setStatusLocked(Connecting, "connect requested")
		tr = &t
		start = !m.started
		associate = m.started
		m.started = true
	}

	// Signals left from earlier attempts are stale.
	select {
	case <-m.signals:
	default:
	}
	m.mu.Unlock()
	m.notify(tr)

	var err error
	switch {
	case start:
		err = m.driver.Start(m.events)
	case associate:
		err = m.driver.Associate(m.cfg.SSID, m.cfg.Password)
	}
	if err != nil {
		m.mu.Lock()
		if start {
			m.started = false
		}
		t := m.setStatusLocked(Error, err.Error())
		m.mu.Unlock()
		m.notify(&t)
		return fmt.Errorf("%w: %v", ErrFatal, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sig := <-m.signals:
		return sig
	case <-timer.C:
		return m.failAttempt("connect timeout", ErrTimeout)
	case <-ctx.Done():
		return m.failAttempt("connect cancelled", ctx.Err())
	}
}

// failAttempt moves a still-connecting manager to Failed and returns cause.
// If the attempt settled first, its outcome is returned instead.
func (m *Manager) failAttempt(reason string, cause error) error {
	m.mu.Lock()
	if m.status != Connecting {
		var settled error
		select {
		case settled = <-m.signals:
		default:
			switch m.status {
			case Connected:
				settled = nil
			case Disconnected:
				settled = ErrNotConnected
			case Error:
				settled = ErrFatal
			default:
				settled = cause
			}
		}
		m.mu.Unlock()
		return settled
	}
	t := m.setStatusLocked(Failed, reason)
	m.mu.Unlock()
	m.notify(&t)
	return cause
}

// Disconnect tears the link down. It returns ErrNotConnected when there is
// nothing to tear down.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return ErrNotInitialized
	}
	if m.status == Disconnected || m.status == Error {
		m.mu.Unlock()
		return ErrNotConnected
	}

	t := m.setStatusLocked(Disconnected, "disconnect requested")
	m.stats.IP = IPInfo{}
	m.signalLocked(ErrNotConnected)
	m.mu.Unlock()
	m.notify(&t)

	if err := m.driver.Disconnect(); err != nil {
		logging.Warn("Driver disconnect failed", zap.Error(err))
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

// IsConnected reports whether the status is exactly Connected.
func (m *Manager) IsConnected() bool {
	return m.Status() == Connected
}

// Status returns the current state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// RetryCount returns the retry counter of the current attempt.
func (m *Manager) RetryCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats.RetryCount
}

// RSSI returns the signal strength of the current link.
func (m *Manager) RSSI() (int, error) {
	if !m.IsConnected() {
		return 0, ErrNotConnected
	}
	rssi, err := m.driver.RSSI()
	if err != nil {
		return 0, fmt.Errorf("read rssi: %w", err)
	}
	m.mu.Lock()
	m.stats.RSSI = rssi
	m.mu.Unlock()
	return rssi, nil
}

// IPInfo returns the address of the current link.
func (m *Manager) IPInfo() (IPInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != Connected {
		return IPInfo{}, ErrNotConnected
	}
	return m.stats.IP, nil
}

// Stats returns a snapshot of the connectivity counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.stats
	s.Status = m.status
	return s
}

// Watch registers fn to be called after every status transition. Callbacks
// run on the goroutine that caused the transition and must not block.
func (m *Manager) Watch(fn func(Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, fn)
}

// Close disconnects, stops the driver and ends the event loop. The manager
// must be re-created after Close.
func (m *Manager) Close() error {
	m.mu.RLock()
	initialized, status := m.initialized, m.status
	m.mu.RUnlock()
	if !initialized {
		return nil
	}

	if status == Connected || status == Connecting {
		if err := m.Disconnect(); err != nil {
			logging.Warn("Disconnect during close failed", zap.Error(err))
		}
	}

	m.mu.Lock()
	stopDriver := m.started
	m.started = false
	m.initialized = false
	m.mu.Unlock()

	var err error
	if stopDriver {
		err = m.driver.Stop()
	}

	close(m.done)
	<-m.loopDone

	logging.Info("WiFi manager closed")
	return err
}

func (m *Manager) loop() {
	defer close(m.loopDone)
	for {
		select {
		case ev := <-m.events:
			m.handle(ev)
		case <-m.done:
			return
		}
	}
}

// handle applies one link event. Driver calls are made after the lock is
// released so that drivers may emit further events synchronously.
func (m *Manager) handle(ev Event) {
	logging.Debug("Link event", zap.Stringer("event", ev.Kind), zap.String("reason", ev.Reason))

	var transitions []Transition
	associate, readRSSI := false, false

	m.mu.Lock()
	switch ev.Kind {
	case EventStarted:
		associate = m.status == Connecting

	case EventDisconnected:
		switch m.status {
		case Connected:
			m.stats.Drops++
			m.stats.IP = IPInfo{}
			transitions = append(transitions, m.setStatusLocked(Connecting, "link lost: "+ev.Reason))
			associate = m.retryLocked(ev.Reason, &transitions)
		case Connecting:
			associate = m.retryLocked(ev.Reason, &transitions)
		default:
			// Teardown echoes and late events after failure are ignored.
		}

	case EventGotIP:
		if m.status == Connecting {
			m.stats.RetryCount = 0
			m.stats.IP = ev.IP
			m.stats.Associations++
			transitions = append(transitions, m.setStatusLocked(Connected, "got ip "+ev.IP.String()))
			m.signalLocked(nil)
			readRSSI = true
		}

	case EventFatal:
		reason := ev.Reason
		if ev.Err != nil {
			reason = ev.Err.Error()
		}
		if m.status != Error {
			transitions = append(transitions, m.setStatusLocked(Error, reason))
			m.signalLocked(ErrFatal)
		}
	}
	m.mu.Unlock()

	for i := range transitions {
		m.notify(&transitions[i])
	}

	if associate {
		if err := m.driver.Associate(m.cfg.SSID, m.cfg.Password); err != nil {
			logging.Warn("Associate request failed", zap.Error(err))
			m.queue(Event{Kind: EventDisconnected, Reason: err.Error()})
		}
	}

	if readRSSI {
		if rssi, err := m.driver.RSSI(); err == nil {
			m.mu.Lock()
			m.stats.RSSI = rssi
			m.mu.Unlock()
		}
	}
}

// retryLocked handles a disconnect while Connecting. It reports whether a
// new association should be issued.
func (m *Manager) retryLocked(reason string, transitions *[]Transition) bool {
	if m.stats.RetryCount < m.cfg.MaxRetry {
		m.stats.RetryCount++
		logging.Info("Retrying association",
			zap.Int("retry", m.stats.RetryCount),
			zap.Int("max_retry", m.cfg.MaxRetry),
			zap.String("reason", reason),
		)
		return true
	}
	*transitions = append(*transitions, m.setStatusLocked(Failed, "retries exhausted"))
	m.signalLocked(ErrRetryExhausted)
	return false
}

// queue posts an event back to the loop without blocking it.
func (m *Manager) queue(ev Event) {
	go func() {
		select {
		case m.events <- ev:
		case <-m.done:
		}
	}()
}

// setStatusLocked changes the status and returns the transition for notify.
func (m *Manager) setStatusLocked(to Status, reason string) Transition {
	t := Transition{
		From:   m.status,
		To:     to,
		Retry:  m.stats.RetryCount,
		Reason: reason,
		At:     m.now(),
	}
	m.status = to
	return t
}

// signalLocked replaces any pending signal with sig.
func (m *Manager) signalLocked(sig error) {
	select {
	case <-m.signals:
	default:
	}
	select {
	case m.signals <- sig:
	default:
	}
}

func (m *Manager) notify(t *Transition) {
	if t == nil || t.From == t.To {
		return
	}
	logging.LogTransition(t.From.String(), t.To.String(), t.Retry, t.Reason)

	m.mu.RLock()
	watchers := append([]func(Transition){}, m.watchers...)
	m.mu.RUnlock()
	for _, fn := range watchers {
		fn(*t)
	}
}
