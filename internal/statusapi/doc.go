// Package statusapi serves the agent's local, read-only status surface.
//
// # Endpoints
//
//	GET /status   JSON snapshot of connectivity, delivery and loop counters
//	GET /healthz  200 while the WiFi link is connected, 503 otherwise
//	GET /ws       WebSocket stream of JSON events
//
// # Event Stream
//
// Every WebSocket client first receives a "snapshot" event, then one event
// per status transition ("transition") and per delivery attempt
// ("delivery"). Clients that stop reading are dropped rather than allowed
// to stall the agent.
//
// # Advertisement
//
// When enabled, the API is announced over mDNS as a "_telemetryd._tcp"
// service so that "telemetryd watch" can find it without an address.
package statusapi
