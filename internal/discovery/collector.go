package discovery

import (
	"fmt"
	"strings"
	"time"
)

// Collector is a telemetry endpoint found on the local network.
type Collector struct {
	// Instance is the mDNS service instance name (e.g., "workshop-collector")
	Instance string

	// Hostname is the mDNS hostname (e.g., "collector.local.")
	Hostname string

	// IP is the address to post to, IPv4 preferred
	IP string

	// Port is the HTTP port
	Port int

	// Path is the ingest path taken from the "path" TXT record
	Path string

	// Metadata contains the remaining TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the collector was seen
	DiscoveredAt time.Time
}

// String returns a human-readable description
func (c *Collector) String() string {
	return fmt.Sprintf("Collector %s (%s) at %s", c.Instance, c.Hostname, c.Endpoint())
}

// Endpoint returns the telemetry URL for the collector.
func (c *Collector) Endpoint() string {
	path := c.Path
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	host := c.IP
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("http://%s:%d%s", host, c.Port, path)
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (c *Collector) GetMetadata(key string) string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}
