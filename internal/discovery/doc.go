// Package discovery locates telemetry collectors over multicast DNS and
// advertises the agent's own status API.
//
// Collectors announce themselves as "_telemetry._tcp" services. The TXT
// record "path" names the ingest path; when absent, "/api/telemetry" is
// assumed. The agent advertises its status API as "_telemetryd._tcp".
//
// # Usage Example
//
//	endpoint, err := discovery.FindCollector(ctx, 5*time.Second)
//	if err != nil {
//	    return err
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - The collector must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
