package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func entry(instance, host string, port int, v4 []net.IP, text ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, CollectorService, ServiceDomain)
	e.HostName = host
	e.Port = port
	e.AddrIPv4 = v4
	e.Text = text
	return e
}

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name         string
		entry        *zeroconf.ServiceEntry
		wantNil      bool
		wantEndpoint string
		wantMeta     map[string]string
	}{
		{
			name:         "collector with path",
			entry:        entry("workshop", "collector.local.", 9000, []net.IP{net.ParseIP("192.168.4.20")}, "path=/ingest", "fw=2"),
			wantEndpoint: "http://192.168.4.20:9000/ingest",
			wantMeta:     map[string]string{"fw": "2"},
		},
		{
			name:         "no path uses default",
			entry:        entry("lab", "lab.local.", 8080, []net.IP{net.ParseIP("10.0.0.5")}),
			wantEndpoint: "http://10.0.0.5:8080/api/telemetry",
		},
		{
			name:         "no port uses default",
			entry:        entry("lab", "lab.local.", 0, []net.IP{net.ParseIP("10.0.0.5")}, "path=api"),
			wantEndpoint: "http://10.0.0.5:80/api",
		},
		{
			name:         "key without value",
			entry:        entry("lab", "lab.local.", 80, []net.IP{net.ParseIP("10.0.0.5")}, "beta"),
			wantEndpoint: "http://10.0.0.5:80/api/telemetry",
			wantMeta:     map[string]string{"beta": ""},
		},
		{
			name:    "no address",
			entry:   entry("ghost", "ghost.local.", 80, nil),
			wantNil: true,
		},
		{
			name:    "nil entry",
			entry:   nil,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseServiceEntry(tt.entry)
			if tt.wantNil {
				if got != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("parseServiceEntry() = nil")
			}
			if got.Endpoint() != tt.wantEndpoint {
				t.Errorf("Endpoint() = %s, want %s", got.Endpoint(), tt.wantEndpoint)
			}
			for k, v := range tt.wantMeta {
				if got.GetMetadata(k) != v {
					t.Errorf("GetMetadata(%q) = %q, want %q", k, got.GetMetadata(k), v)
				}
			}
			if got.GetMetadata("path") != "" {
				t.Error("path should not remain in metadata")
			}
			if got.DiscoveredAt.IsZero() {
				t.Error("DiscoveredAt not set")
			}
		})
	}
}

func TestParseServiceEntry_IPv6Fallback(t *testing.T) {
	e := entry("v6", "v6.local.", 8080, nil)
	e.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}

	got := parseServiceEntry(e)
	if got == nil {
		t.Fatal("parseServiceEntry() = nil")
	}
	if got.Endpoint() != "http://[fe80::1]:8080/api/telemetry" {
		t.Errorf("Endpoint() = %s", got.Endpoint())
	}
}

func TestNewScanner(t *testing.T) {
	s := NewScanner()
	if s.Timeout != DefaultScanTimeout {
		t.Errorf("Timeout = %v, want %v", s.Timeout, DefaultScanTimeout)
	}
	if s.Service != CollectorService {
		t.Errorf("Service = %q, want %q", s.Service, CollectorService)
	}
}

func TestCollector_String(t *testing.T) {
	c := &Collector{Instance: "workshop", Hostname: "collector.local.", IP: "192.168.4.20", Port: 9000, Path: "/ingest"}
	want := "Collector workshop (collector.local.) at http://192.168.4.20:9000/ingest"
	if c.String() != want {
		t.Errorf("String() = %q, want %q", c.String(), want)
	}
}

func TestAdvertisement_NilShutdown(t *testing.T) {
	var a *Advertisement
	a.Shutdown()
	(&Advertisement{}).Shutdown()
}
