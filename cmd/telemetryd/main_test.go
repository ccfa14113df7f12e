package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/muurk/telemetryd/internal/agent"
	"github.com/muurk/telemetryd/internal/config"
	"github.com/muurk/telemetryd/internal/delivery"
	"github.com/muurk/telemetryd/internal/sensor"
	"github.com/muurk/telemetryd/internal/statusapi"
	"github.com/muurk/telemetryd/internal/transport"
	"github.com/muurk/telemetryd/internal/wifi"
	"github.com/muurk/telemetryd/internal/wifi/hostif"
	"github.com/muurk/telemetryd/internal/wifi/simradio"
)

// execute runs the root command with args. Flag variables are package
// globals, so they are reset first.
func execute(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	cfgPath, logLevel = "", ""
	runDriver, runEndpoint, runOnce = "", "", false
	agentAddr, agentDiscover, statusJSON, statusTimeout = "", false, false, 5*time.Second
	sendEndpoint, sendFile = "", ""
	configForce = false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	if stdin != nil {
		rootCmd.SetIn(stdin)
	}
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func tempConfig(t *testing.T) string {
	t.Helper()
	t.Setenv(config.PasswordEnvVar, "")
	return filepath.Join(t.TempDir(), "config.yaml")
}

func TestBuildDriver(t *testing.T) {
	d, err := buildDriver(config.WiFi{Driver: "sim"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d.(*simradio.Radio); !ok {
		t.Errorf("sim driver = %T", d)
	}

	d, err = buildDriver(config.WiFi{Driver: "hostif", Interface: "wlan0"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d.(*hostif.Driver); !ok {
		t.Errorf("hostif driver = %T", d)
	}

	if _, err := buildDriver(config.WiFi{Driver: "zigbee"}); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("unknown driver error = %v, want ErrInvalid", err)
	}
}

func TestConfigMapping(t *testing.T) {
	cfg := config.Default()
	cfg.API.UserAgent = "probe/1"
	cfg.Transmission.ReportEvery = 7

	dc := deliveryConfig(cfg.API)
	if dc.Endpoint != cfg.API.Endpoint || dc.Timeout != cfg.API.RequestTimeout ||
		dc.ResponseBuffer != cfg.API.ResponseBuffer || dc.UserAgent != "probe/1" {
		t.Errorf("deliveryConfig = %+v", dc)
	}

	ac := agentConfig(cfg)
	if ac.Interval != cfg.Transmission.Interval || ac.ConnectTimeout != cfg.WiFi.ConnectTimeout ||
		ac.ReportEvery != 7 || !ac.ReconnectOnFailure {
		t.Errorf("agentConfig = %+v", ac)
	}
}

func TestTroubleshoot(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"payload", &delivery.PayloadError{Err: delivery.ErrInvalidJSON}, "valid JSON"},
		{"status", transport.NewStatusError(404), "endpoint path"},
		{"invalid", transport.NewInvalidArgument("bad url", nil), "api.endpoint"},
		{"network", transport.Classify(errors.New("connection refused")), "reachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tips := strings.Join(troubleshoot(tt.err), " ")
			if !strings.Contains(tips, tt.want) {
				t.Errorf("troubleshoot() = %q, want mention of %q", tips, tt.want)
			}
		})
	}
	if troubleshoot(errors.New("other")) != nil {
		t.Error("unknown errors get no tips")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, nil, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "telemetryd ") || !strings.Contains(out, "commit:") {
		t.Errorf("version output = %q", out)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	path := tempConfig(t)

	out, err := execute(t, nil, "config", "init", "--config", path)
	if err != nil {
		t.Fatalf("config init error = %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("output = %q", out)
	}

	if _, err := execute(t, nil, "config", "init", "--config", path); err == nil {
		t.Error("config init should refuse to overwrite without --force")
	}
	if _, err := execute(t, nil, "config", "init", "--config", path, "--force"); err != nil {
		t.Errorf("config init --force error = %v", err)
	}

	t.Setenv(config.PasswordEnvVar, "hunter2")
	out, err = execute(t, nil, "config", "show", "--config", path)
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	if !strings.Contains(out, "endpoint: "+config.DefaultEndpoint) {
		t.Errorf("config show missing endpoint:\n%s", out)
	}
	if strings.Contains(out, "hunter2") {
		t.Error("config show must not print the password")
	}
}

func collector(t *testing.T, status int) (*httptest.Server, chan []byte) {
	t.Helper()
	bodies := make(chan []byte, 4)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies <- body
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(ts.Close)
	return ts, bodies
}

func TestSendReading(t *testing.T) {
	ts, bodies := collector(t, http.StatusOK)

	out, err := execute(t, nil, "send", "--config", tempConfig(t), "--endpoint", ts.URL+"/api/telemetry")
	if err != nil {
		t.Fatalf("send error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "Telemetry delivered") {
		t.Errorf("output:\n%s", out)
	}

	var doc map[string]any
	if err := json.Unmarshal(<-bodies, &doc); err != nil {
		t.Fatalf("collector got invalid JSON: %v", err)
	}
	for _, k := range []string{"cpu_temp", "sys_uptime"} {
		if _, ok := doc[k]; !ok {
			t.Errorf("reading missing %q: %v", k, doc)
		}
	}
	// A one-shot send samples at t=0, as its help text says.
	if doc["sys_uptime"] != "0h 0m 0s" {
		t.Errorf("sys_uptime = %v, want 0h 0m 0s", doc["sys_uptime"])
	}
	if temp, _ := doc["cpu_temp"].(float64); temp != sensor.SimulatedTemperature(0) {
		t.Errorf("cpu_temp = %v, want %v", doc["cpu_temp"], sensor.SimulatedTemperature(0))
	}
	if !strings.Contains(sendCmd.Long, "t=0") {
		t.Error("send help should describe the t=0 reading")
	}
}

func TestSendFileFromStdin(t *testing.T) {
	ts, bodies := collector(t, http.StatusAccepted)

	_, err := execute(t, strings.NewReader(`{"custom":1}`),
		"send", "--config", tempConfig(t), "--endpoint", ts.URL, "--file", "-")
	if err != nil {
		t.Fatalf("send --file error = %v", err)
	}
	if got := string(<-bodies); got != `{"custom":1}` {
		t.Errorf("collector got %q", got)
	}
}

func TestSendInvalidDocument(t *testing.T) {
	ts, _ := collector(t, http.StatusOK)
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(path, []byte(`{"broken":`), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, nil, "send", "--config", tempConfig(t), "--endpoint", ts.URL, "--file", path)
	if !delivery.IsPayloadError(err) {
		t.Fatalf("error = %v, want PayloadError", err)
	}
	if !strings.Contains(out, "Delivery failed") {
		t.Errorf("output:\n%s", out)
	}
}

func TestProbeNotFound(t *testing.T) {
	ts, bodies := collector(t, http.StatusNotFound)

	out, err := execute(t, nil, "probe", "--config", tempConfig(t), "--endpoint", ts.URL+"/missing")
	if !transport.IsNonSuccessStatus(err) {
		t.Fatalf("error = %v, want non-success status", err)
	}
	if got := string(<-bodies); got != string(delivery.ProbeBody) {
		t.Errorf("probe body = %q", got)
	}
	if !strings.Contains(out, "Endpoint unreachable") {
		t.Errorf("output:\n%s", out)
	}
}

type staticSource struct{ snap agent.Snapshot }

func (s staticSource) Snapshot() agent.Snapshot { return s.snap }

func TestStatusJSON(t *testing.T) {
	src := staticSource{snap: agent.Snapshot{
		Version:  "9.9.9",
		Endpoint: "http://collector.local/api/telemetry",
		Status:   wifi.Connected,
		Delivery: delivery.Stats{TotalAttempts: 2, Successes: 2},
	}}
	ts := httptest.NewServer(statusapi.New(statusapi.Config{}, src).Handler())
	defer ts.Close()

	addr := strings.TrimPrefix(ts.URL, "http://")
	out, err := execute(t, nil, "status", "--agent", addr, "--json")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}

	var snap agent.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("status --json output is not a snapshot: %v\n%s", err, out)
	}
	if snap.Version != "9.9.9" || snap.Status != wifi.Connected || snap.Delivery.Successes != 2 {
		t.Errorf("snapshot = %+v", snap)
	}

	out, err = execute(t, nil, "status", "--agent", addr)
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !strings.Contains(out, "CONNECTED") || !strings.Contains(out, "REPORTER STATUS") {
		t.Errorf("status output:\n%s", out)
	}
}

func TestRunOnceWithSimDriver(t *testing.T) {
	ts, bodies := collector(t, http.StatusOK)
	path := tempConfig(t)
	cfg := config.Default()
	cfg.Status.Listen = ""
	cfg.WiFi.ConnectTimeout = 2 * time.Second
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, nil, "run", "--once", "--config", path, "--endpoint", ts.URL); err != nil {
		t.Fatalf("run --once error = %v", err)
	}
	select {
	case <-bodies:
	default:
		t.Error("run --once should deliver a reading")
	}
}

func TestRunSingle_InterruptedDuringStartup(t *testing.T) {
	mgr := wifi.NewManager(wifi.Config{SSID: "workshop", MaxRetry: 1}, simradio.New(simradio.Config{Delay: time.Minute}))
	cycle := delivery.New(delivery.Config{Endpoint: "http://127.0.0.1:1/api/telemetry"})
	a := agent.New(agent.Config{Interval: time.Hour, ConnectTimeout: time.Minute}, mgr, cycle, sensor.NewSampler(time.Now()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := runSingle(ctx, a); err != nil {
		t.Errorf("runSingle() error = %v, want nil after an interrupt", err)
	}
}

func TestRunRejectsInvalidOverride(t *testing.T) {
	_, err := execute(t, nil, "run", "--config", tempConfig(t), "--driver", "hostif")
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("error = %v, want ErrInvalid (hostif needs an interface)", err)
	}
}
