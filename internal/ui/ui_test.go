package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/telemetryd/internal/agent"
	"github.com/muurk/telemetryd/internal/delivery"
	"github.com/muurk/telemetryd/internal/statusapi"
	"github.com/muurk/telemetryd/internal/wifi"
)

func testSnapshot() agent.Snapshot {
	return agent.Snapshot{
		Version:  "1.0.0",
		Endpoint: "http://collector.local/api",
		Status:   wifi.Connected,
		Connectivity: wifi.Stats{
			Status:       wifi.Connected,
			RetryCount:   0,
			MaxRetry:     5,
			RSSI:         -55,
			Associations: 2,
			Drops:        1,
		},
		Delivery: delivery.Stats{TotalAttempts: 4, Successes: 3, NonSuccess: 1, LastStatusCode: 404},
		Loop:     agent.Counters{Cycles: 6, Skipped: 2, Delivered: 3, Failed: 1},
		Uptime:   time.Hour + 2*time.Minute + 3*time.Second,
		At:       time.Now(),
	}
}

func TestRenderStatus(t *testing.T) {
	out := RenderStatus(testSnapshot(), 80)

	for _, want := range []string{
		"CONNECTED",
		"http://collector.local/api",
		"0/5",
		"-55 dBm",
		"2 (1 drops)",
		"0 timeout, 0 network, 1 HTTP",
		"404",
		"6 (2 skipped)",
		"1h 2m 3s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderStatus() missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "LAST ATTEMPT") {
		t.Error("LAST ATTEMPT should only render with an outcome")
	}
}

func TestRenderStatus_LastOutcome(t *testing.T) {
	snap := testSnapshot()
	snap.LastOutcome = &delivery.Outcome{
		Result:     delivery.ResultTimeout,
		Error:      "Timeout: request timed out",
		At:         time.Now(),
		Elapsed:    5 * time.Second,
		StatusCode: 0,
	}
	out := RenderStatus(snap, 80)
	for _, want := range []string{"LAST ATTEMPT", "timeout", "request timed out"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderStatus() missing %q", want)
		}
	}
}

func TestStatusColor(t *testing.T) {
	tests := []struct {
		status wifi.Status
		want   string
	}{
		{wifi.Connected, string(SuccessColor)},
		{wifi.Connecting, string(WarningColor)},
		{wifi.Failed, string(ErrorColor)},
		{wifi.Error, string(ErrorColor)},
		{wifi.Disconnected, string(MutedColor)},
	}
	for _, tt := range tests {
		if got := string(StatusColor(tt.status)); got != tt.want {
			t.Errorf("StatusColor(%v) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestHeaderRender(t *testing.T) {
	out := NewHeader("Connectivity probe", "telemetryd probe",
		Param{Key: "Endpoint", Value: "http://c/api"},
		Param{Key: "Timeout", Value: "5s"},
	).SetWidth(70).Render()

	if !strings.Contains(out, "CONNECTIVITY PROBE") {
		t.Error("title should be upper-cased")
	}
	e := strings.Index(out, "Endpoint")
	to := strings.Index(out, "Timeout")
	if e < 0 || to < 0 || e > to {
		t.Error("params should render in the given order")
	}
}

func TestResultRender(t *testing.T) {
	ok := NewSuccessResult("Telemetry delivered", Param{Key: "HTTP status", Value: "200"}).SetWidth(70).Render()
	if !strings.Contains(ok, SuccessMarker+" Telemetry delivered") || !strings.Contains(ok, "200") {
		t.Errorf("success box:\n%s", ok)
	}

	fail := NewFailureResult("Delivery failed", errors.New("connection refused"), "Is the collector running?").
		SetWidth(70).Render()
	for _, want := range []string{FailureMarker + " Delivery failed", "connection refused", "Troubleshooting:", "collector running"} {
		if !strings.Contains(fail, want) {
			t.Errorf("failure box missing %q", want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{-1, "unknown"},
		{0, "0 bytes"},
		{512, "512 bytes"},
		{2048, "2.0 KiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Header(NewHeader("Send", "telemetryd send"))
	p.Result(NewWarningResult("Partial reading"))

	out := buf.String()
	if !strings.Contains(out, "SEND") || !strings.Contains(out, "Partial reading") {
		t.Errorf("printer output:\n%s", out)
	}
}

func feed(t *testing.T, m WatchModel, msgs ...tea.Msg) WatchModel {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(WatchModel)
	}
	return m
}

func TestWatchModel_AppliesEvents(t *testing.T) {
	m := NewWatchModel("127.0.0.1:8090", nil, nil)
	if !strings.Contains(m.View(), "Waiting for status stream") {
		t.Error("view should show the spinner before the first snapshot")
	}

	snap := testSnapshot()
	now := time.Now()
	m = feed(t, m,
		streamEventMsg(statusapi.Event{Type: statusapi.EventSnapshot, Snapshot: &snap}),
		streamEventMsg(statusapi.Event{
			Type:       statusapi.EventTransition,
			Transition: &wifi.Transition{From: wifi.Connected, To: wifi.Connecting, Retry: 1, Reason: "beacon timeout", At: now},
		}),
		streamEventMsg(statusapi.Event{
			Type:     statusapi.EventDelivery,
			Delivery: &delivery.Outcome{Result: delivery.ResultSuccess, Success: true, StatusCode: 201, At: now},
		}),
	)

	if m.Snapshot == nil {
		t.Fatal("snapshot should be set")
	}
	if m.Snapshot.Status != wifi.Connecting || m.Snapshot.Connectivity.RetryCount != 1 {
		t.Errorf("status = %v retry = %d", m.Snapshot.Status, m.Snapshot.Connectivity.RetryCount)
	}
	if m.Snapshot.Delivery.TotalAttempts != 5 || m.Snapshot.Delivery.Successes != 4 {
		t.Errorf("delivery = %+v", m.Snapshot.Delivery)
	}
	if m.Snapshot.Delivery.LastStatusCode != 201 {
		t.Errorf("LastStatusCode = %d, want 201", m.Snapshot.Delivery.LastStatusCode)
	}
	if len(m.Recent) != 2 {
		t.Fatalf("Recent = %v, want 2 lines", m.Recent)
	}
	if !strings.Contains(m.Recent[0], "connected → connecting (beacon timeout)") {
		t.Errorf("Recent[0] = %q", m.Recent[0])
	}
	if !strings.Contains(m.Recent[1], "delivery success HTTP 201") {
		t.Errorf("Recent[1] = %q", m.Recent[1])
	}

	// The caller's snapshot is not aliased
	if snap.Status != wifi.Connected {
		t.Error("apply() must copy the snapshot")
	}
}

func TestWatchModel_RecentIsBounded(t *testing.T) {
	m := NewWatchModel("agent", nil, nil)
	for i := 0; i < maxEventLines+5; i++ {
		m = feed(t, m, streamEventMsg(statusapi.Event{
			Type:       statusapi.EventTransition,
			Transition: &wifi.Transition{From: wifi.Disconnected, To: wifi.Connecting, At: time.Now()},
		}))
	}
	if len(m.Recent) != maxEventLines {
		t.Errorf("len(Recent) = %d, want %d", len(m.Recent), maxEventLines)
	}

	m = feed(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	if len(m.Recent) != 0 {
		t.Error("c should clear recent events")
	}
}

func TestWatchModel_StreamClosed(t *testing.T) {
	events := make(chan statusapi.Event)
	done := make(chan error, 1)
	done <- errors.New("connection reset")
	close(events)

	m := NewWatchModel("agent", events, done)
	msg := m.waitForEvent()
	closed, ok := msg.(streamClosedMsg)
	if !ok {
		t.Fatalf("waitForEvent() = %T, want streamClosedMsg", msg)
	}

	m = feed(t, m, closed)
	if !m.Closed || m.Err == nil {
		t.Fatal("model should record the closed stream")
	}
	if !strings.Contains(m.View(), "Stream ended: connection reset") {
		t.Error("view should show why the stream ended")
	}
}

func TestWatchModel_WaitForEvent(t *testing.T) {
	events := make(chan statusapi.Event, 1)
	events <- statusapi.Event{Type: statusapi.EventSnapshot}
	m := NewWatchModel("agent", events, nil)

	if _, ok := m.waitForEvent().(streamEventMsg); !ok {
		t.Error("waitForEvent() should deliver the queued event")
	}
}

func TestWatchModel_Quit(t *testing.T) {
	m := NewWatchModel("agent", nil, nil)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}
