package wifi

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

// fakeDriver hands the event channel to the test and records calls.
type fakeDriver struct {
	mu          sync.Mutex
	events      chan<- Event
	startErr    error
	started     chan struct{}
	assoc       chan string
	disconnects int
	stops       int
	calls       []string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		started: make(chan struct{}, 8),
		assoc:   make(chan string, 64),
	}
}

func (f *fakeDriver) Start(events chan<- Event) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.events = events
	f.mu.Unlock()
	f.started <- struct{}{}
	return nil
}

func (f *fakeDriver) Associate(ssid, _ string) error {
	f.assoc <- ssid
	return nil
}

func (f *fakeDriver) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.calls = append(f.calls, "disconnect")
	return nil
}

func (f *fakeDriver) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.calls = append(f.calls, "stop")
	return nil
}

func (f *fakeDriver) RSSI() (int, error) { return -50, nil }

func (f *fakeDriver) emit(ev Event) {
	f.mu.Lock()
	ch := f.events
	f.mu.Unlock()
	ch <- ev
}

var testIP = IPInfo{
	IP:      net.IPv4(192, 168, 4, 2),
	Netmask: net.CIDRMask(24, 32),
	Gateway: net.IPv4(192, 168, 4, 1),
}

func newTestManager(t *testing.T, maxRetry int) (*Manager, *fakeDriver) {
	t.Helper()
	d := newFakeDriver()
	m := NewManager(Config{SSID: "workshop", Password: "pw", MaxRetry: maxRetry}, d)
	if err := m.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m, d
}

func startConnect(m *Manager, timeout time.Duration) <-chan error {
	result := make(chan error, 1)
	go func() { result <- m.Connect(context.Background(), timeout) }()
	return result
}

func waitStarted(t *testing.T, d *fakeDriver) {
	t.Helper()
	select {
	case <-d.started:
	case <-time.After(2 * time.Second):
		t.Fatal("driver was never started")
	}
}

func waitAssociate(t *testing.T, d *fakeDriver) {
	t.Helper()
	select {
	case <-d.assoc:
	case <-time.After(2 * time.Second):
		t.Fatal("association was never requested")
	}
}

func waitResult(t *testing.T, result <-chan error) error {
	t.Helper()
	select {
	case err := <-result:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("Connect() did not return")
		return nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// connected drives a fresh manager to Connected.
func connected(t *testing.T, m *Manager, d *fakeDriver) {
	t.Helper()
	result := startConnect(m, 2*time.Second)
	waitStarted(t, d)
	d.emit(Event{Kind: EventStarted})
	waitAssociate(t, d)
	d.emit(Event{Kind: EventGotIP, IP: testIP})
	if err := waitResult(t, result); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{Disconnected, "disconnected"},
		{Connecting, "connecting"},
		{Connected, "connected"},
		{Failed, "failed"},
		{Error, "error"},
		{Status(42), "Status(42)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}

func TestInit_Validation(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		driver Driver
	}{
		{"no driver", Config{SSID: "x"}, nil},
		{"empty ssid", Config{}, newFakeDriver()},
		{"negative retry", Config{SSID: "x", MaxRetry: -1}, newFakeDriver()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.cfg, tt.driver)
			if err := m.Init(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Init() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNotInitialized(t *testing.T) {
	m := NewManager(Config{SSID: "x"}, newFakeDriver())

	if err := m.Connect(context.Background(), time.Second); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Connect() error = %v, want ErrNotInitialized", err)
	}
	if err := m.Disconnect(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Disconnect() error = %v, want ErrNotInitialized", err)
	}
	if m.Status() != Disconnected {
		t.Errorf("Status() = %v, want disconnected", m.Status())
	}
}

func TestConnect_RetriesThenConnects(t *testing.T) {
	m, d := newTestManager(t, 3)

	result := startConnect(m, 2*time.Second)
	waitStarted(t, d)
	d.emit(Event{Kind: EventStarted})
	waitAssociate(t, d)

	for i := 1; i <= 3; i++ {
		d.emit(Event{Kind: EventDisconnected, Reason: "auth expired"})
		waitAssociate(t, d)
		if got := m.RetryCount(); got != i {
			t.Fatalf("RetryCount() after %d disconnects = %d", i, got)
		}
		if m.Status() != Connecting {
			t.Fatalf("Status() = %v, want connecting", m.Status())
		}
	}

	d.emit(Event{Kind: EventGotIP, IP: testIP})
	if err := waitResult(t, result); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if m.Status() != Connected {
		t.Errorf("Status() = %v, want connected", m.Status())
	}
	if m.RetryCount() != 0 {
		t.Errorf("RetryCount() = %d, want 0", m.RetryCount())
	}
	if !m.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
}

func TestConnect_RetryExhausted(t *testing.T) {
	m, d := newTestManager(t, 2)

	result := startConnect(m, 2*time.Second)
	waitStarted(t, d)
	d.emit(Event{Kind: EventStarted})
	waitAssociate(t, d)

	d.emit(Event{Kind: EventDisconnected})
	waitAssociate(t, d)
	d.emit(Event{Kind: EventDisconnected})
	waitAssociate(t, d)
	d.emit(Event{Kind: EventDisconnected})

	if err := waitResult(t, result); !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("Connect() error = %v, want ErrRetryExhausted", err)
	}
	if m.Status() != Failed {
		t.Errorf("Status() = %v, want failed", m.Status())
	}
	if m.RetryCount() != 2 {
		t.Errorf("RetryCount() = %d, want 2", m.RetryCount())
	}
	if m.IsConnected() {
		t.Error("IsConnected() = true, want false")
	}

	// No further automatic retries once failed
	select {
	case <-d.assoc:
		t.Error("association requested after failure")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestConnect_RetryNeverExceedsMax(t *testing.T) {
	for maxRetry := 0; maxRetry <= 4; maxRetry++ {
		m, d := newTestManager(t, maxRetry)
		var mu sync.Mutex
		var peak int
		m.Watch(func(tr Transition) {
			mu.Lock()
			defer mu.Unlock()
			if tr.Retry > peak {
				peak = tr.Retry
			}
		})

		result := startConnect(m, 2*time.Second)
		waitStarted(t, d)
		d.emit(Event{Kind: EventStarted})
		waitAssociate(t, d)
		for i := 0; i < maxRetry; i++ {
			d.emit(Event{Kind: EventDisconnected})
			waitAssociate(t, d)
			if got := m.RetryCount(); got > maxRetry {
				t.Fatalf("max=%d: RetryCount() = %d while connecting", maxRetry, got)
			}
		}
		d.emit(Event{Kind: EventDisconnected})

		if err := waitResult(t, result); !errors.Is(err, ErrRetryExhausted) {
			t.Fatalf("max=%d: Connect() error = %v", maxRetry, err)
		}
		if got := m.RetryCount(); got != maxRetry {
			t.Errorf("max=%d: RetryCount() = %d", maxRetry, got)
		}
		mu.Lock()
		if peak > maxRetry {
			t.Errorf("max=%d: retry peaked at %d", maxRetry, peak)
		}
		mu.Unlock()
	}
}

func TestConnect_Timeout(t *testing.T) {
	m, d := newTestManager(t, 5)

	err := m.Connect(context.Background(), 30*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Connect() error = %v, want ErrTimeout", err)
	}
	waitStarted(t, d)
	if m.Status() != Failed {
		t.Errorf("Status() = %v, want failed", m.Status())
	}

	// A late address assignment does not revive a failed attempt
	d.emit(Event{Kind: EventGotIP, IP: testIP})
	time.Sleep(20 * time.Millisecond)
	if m.IsConnected() {
		t.Error("late GotIP should be ignored after a timeout")
	}
}

func TestConnect_ContextCancelled(t *testing.T) {
	m, _ := newTestManager(t, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Connect(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("Connect() error = %v, want context.Canceled", err)
	}
	if m.Status() != Failed {
		t.Errorf("Status() = %v, want failed", m.Status())
	}
}

func TestConnect_AlreadyConnected(t *testing.T) {
	m, d := newTestManager(t, 3)
	connected(t, m, d)

	if err := m.Connect(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Connect() while connected = %v, want nil", err)
	}
	select {
	case <-d.assoc:
		t.Error("Connect() while connected should not re-associate")
	default:
	}
}

func TestConnect_DoesNotResetRetryCount(t *testing.T) {
	m, d := newTestManager(t, 1)

	result := startConnect(m, 2*time.Second)
	waitStarted(t, d)
	d.emit(Event{Kind: EventStarted})
	waitAssociate(t, d)
	d.emit(Event{Kind: EventDisconnected})
	waitAssociate(t, d)
	d.emit(Event{Kind: EventDisconnected})
	if err := waitResult(t, result); !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("first Connect() error = %v", err)
	}

	// The driver is already up, so the second attempt associates directly.
	result = startConnect(m, 2*time.Second)
	waitAssociate(t, d)
	if m.RetryCount() != 1 {
		t.Errorf("RetryCount() after manual Connect = %d, want 1", m.RetryCount())
	}

	d.emit(Event{Kind: EventDisconnected})
	if err := waitResult(t, result); !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("second Connect() error = %v, want ErrRetryExhausted", err)
	}

	// Only an address assignment clears it
	result = startConnect(m, 2*time.Second)
	waitAssociate(t, d)
	d.emit(Event{Kind: EventGotIP, IP: testIP})
	if err := waitResult(t, result); err != nil {
		t.Fatalf("third Connect() error = %v", err)
	}
	if m.RetryCount() != 0 {
		t.Errorf("RetryCount() = %d, want 0", m.RetryCount())
	}
}

func TestGotIPResetsRetryCount(t *testing.T) {
	for prior := 0; prior <= 3; prior++ {
		m, d := newTestManager(t, 5)
		result := startConnect(m, 2*time.Second)
		waitStarted(t, d)
		d.emit(Event{Kind: EventStarted})
		waitAssociate(t, d)
		for i := 0; i < prior; i++ {
			d.emit(Event{Kind: EventDisconnected})
			waitAssociate(t, d)
		}
		d.emit(Event{Kind: EventGotIP, IP: testIP})
		if err := waitResult(t, result); err != nil {
			t.Fatalf("prior=%d: Connect() error = %v", prior, err)
		}
		if m.RetryCount() != 0 {
			t.Errorf("prior=%d: RetryCount() = %d, want 0", prior, m.RetryCount())
		}
	}
}

func TestDisconnect_Twice(t *testing.T) {
	m, d := newTestManager(t, 3)
	connected(t, m, d)

	if err := m.Disconnect(); err != nil {
		t.Fatalf("first Disconnect() error = %v", err)
	}
	if m.Status() != Disconnected {
		t.Errorf("Status() = %v, want disconnected", m.Status())
	}
	if err := m.Disconnect(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("second Disconnect() error = %v, want ErrNotConnected", err)
	}

	// The driver echoes a disconnect event; it must not restart the retry loop.
	d.emit(Event{Kind: EventDisconnected, Reason: "assoc leave"})
	time.Sleep(20 * time.Millisecond)
	if m.Status() != Disconnected {
		t.Errorf("Status() after echo = %v, want disconnected", m.Status())
	}
}

func TestUnsolicitedDrop_Reconnects(t *testing.T) {
	m, d := newTestManager(t, 3)
	connected(t, m, d)

	d.emit(Event{Kind: EventDisconnected, Reason: "beacon timeout"})
	waitAssociate(t, d)

	if m.Status() != Connecting {
		t.Fatalf("Status() = %v, want connecting", m.Status())
	}
	if m.RetryCount() != 1 {
		t.Errorf("RetryCount() = %d, want 1", m.RetryCount())
	}
	if _, err := m.IPInfo(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("IPInfo() error = %v, want ErrNotConnected", err)
	}

	d.emit(Event{Kind: EventGotIP, IP: testIP})
	waitFor(t, "reconnect", m.IsConnected)

	st := m.Stats()
	if st.Drops != 1 || st.Associations != 2 || st.RetryCount != 0 {
		t.Errorf("Stats() = %+v, want 1 drop, 2 associations, retry 0", st)
	}
}

func TestQueries(t *testing.T) {
	m, d := newTestManager(t, 3)

	if _, err := m.RSSI(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("RSSI() error = %v, want ErrNotConnected", err)
	}
	if _, err := m.IPInfo(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("IPInfo() error = %v, want ErrNotConnected", err)
	}

	connected(t, m, d)

	rssi, err := m.RSSI()
	if err != nil || rssi != -50 {
		t.Errorf("RSSI() = %d, %v, want -50", rssi, err)
	}
	info, err := m.IPInfo()
	if err != nil {
		t.Fatalf("IPInfo() error = %v", err)
	}
	if info.String() != "192.168.4.2/24" {
		t.Errorf("IPInfo() = %s, want 192.168.4.2/24", info)
	}
	waitFor(t, "rssi in stats", func() bool { return m.Stats().RSSI == -50 })
}

func TestFatalEvent(t *testing.T) {
	m, d := newTestManager(t, 3)

	result := startConnect(m, 2*time.Second)
	waitStarted(t, d)
	d.emit(Event{Kind: EventFatal, Err: errors.New("radio calibration failed")})

	if err := waitResult(t, result); !errors.Is(err, ErrFatal) {
		t.Fatalf("Connect() error = %v, want ErrFatal", err)
	}
	if m.Status() != Error {
		t.Errorf("Status() = %v, want error", m.Status())
	}
	if err := m.Connect(context.Background(), time.Second); !errors.Is(err, ErrFatal) {
		t.Errorf("Connect() in error state = %v, want ErrFatal", err)
	}
	if err := m.Disconnect(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Disconnect() in error state = %v, want ErrNotConnected", err)
	}

	// Init is the only way out
	if err := m.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if m.Status() != Disconnected {
		t.Errorf("Status() after re-init = %v, want disconnected", m.Status())
	}
	d.mu.Lock()
	stops := d.stops
	d.mu.Unlock()
	if stops != 1 {
		t.Errorf("driver stopped %d times during re-init, want 1", stops)
	}

	connected(t, m, d)
}

func TestStartFailureIsFatal(t *testing.T) {
	d := newFakeDriver()
	d.startErr = errors.New("no such device")
	m := NewManager(Config{SSID: "x", MaxRetry: 1}, d)
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	err := m.Connect(context.Background(), time.Second)
	if !errors.Is(err, ErrFatal) {
		t.Fatalf("Connect() error = %v, want ErrFatal", err)
	}
	if m.Status() != Error {
		t.Errorf("Status() = %v, want error", m.Status())
	}
}

func TestInit_Idempotent(t *testing.T) {
	m, d := newTestManager(t, 3)
	connected(t, m, d)

	if err := m.Init(); err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	if !m.IsConnected() {
		t.Error("Init() on a running manager should not reset it")
	}
}

func TestWatch_Transitions(t *testing.T) {
	m, d := newTestManager(t, 3)

	var mu sync.Mutex
	var seen []Transition
	m.Watch(func(tr Transition) {
		mu.Lock()
		seen = append(seen, tr)
		mu.Unlock()
	})

	connected(t, m, d)
	waitFor(t, "connected transition", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	})
	if err := m.Disconnect(); err != nil {
		t.Fatal(err)
	}

	want := []struct{ from, to Status }{
		{Disconnected, Connecting},
		{Connecting, Connected},
		{Connected, Disconnected},
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(want) {
		t.Fatalf("saw %d transitions, want %d: %+v", len(seen), len(want), seen)
	}
	for i, w := range want {
		if seen[i].From != w.from || seen[i].To != w.to {
			t.Errorf("transition %d = %v->%v, want %v->%v", i, seen[i].From, seen[i].To, w.from, w.to)
		}
	}
}

func TestClose(t *testing.T) {
	d := newFakeDriver()
	m := NewManager(Config{SSID: "x", MaxRetry: 1}, d)
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	connected(t, m, d)

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disconnects != 1 || d.stops != 1 {
		t.Errorf("driver disconnects=%d stops=%d, want 1 and 1", d.disconnects, d.stops)
	}
	if len(d.calls) != 2 || d.calls[0] != "disconnect" || d.calls[1] != "stop" {
		t.Errorf("driver calls = %v, want [disconnect stop]", d.calls)
	}
	if m.Status() != Disconnected {
		t.Errorf("Status() = %v, want disconnected", m.Status())
	}

	if err := m.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestFailAttempt_ReturnsSettledOutcome(t *testing.T) {
	m, d := newTestManager(t, 1)
	connected(t, m, d)

	if err := m.failAttempt("connect timeout", ErrTimeout); err != nil {
		t.Errorf("failAttempt() on a connected manager = %v, want nil", err)
	}
	if m.Status() != Connected {
		t.Errorf("Status() = %v, want connected", m.Status())
	}

	m.mu.Lock()
	m.signalLocked(ErrRetryExhausted)
	m.mu.Unlock()
	if err := m.failAttempt("connect timeout", ErrTimeout); !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("failAttempt() with a pending signal = %v, want ErrRetryExhausted", err)
	}
}

func TestConnect_AddressRacingTimeout(t *testing.T) {
	for i := 0; i < 200; i++ {
		d := newFakeDriver()
		m := NewManager(Config{SSID: "workshop", MaxRetry: 1}, d)
		if err := m.Init(); err != nil {
			t.Fatal(err)
		}

		emitted := make(chan struct{})
		go func() {
			defer close(emitted)
			<-d.started
			d.emit(Event{Kind: EventGotIP, IP: testIP})
		}()

		timeout := time.Duration(50+i%200) * time.Microsecond
		err := m.Connect(context.Background(), timeout)
		<-emitted

		status := m.Status()
		switch {
		case err == nil && status != Connected:
			t.Fatalf("iteration %d: Connect() = nil with status %v", i, status)
		case errors.Is(err, ErrTimeout) && status == Connected:
			t.Fatalf("iteration %d: Connect() = ErrTimeout but status is connected", i)
		case err != nil && !errors.Is(err, ErrTimeout):
			t.Fatalf("iteration %d: Connect() error = %v", i, err)
		}
		_ = m.Close()
	}
}
