package wifi

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Status is the connection state owned by the Manager.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
	Failed
	Error
)

// String returns the lower-case state name
func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText lets Status appear by name in JSON and YAML.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a name produced by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	for c := Disconnected; c <= Error; c++ {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown wifi status %q", text)
}

var (
	// ErrTimeout is returned by Connect when neither signal fires in time.
	ErrTimeout = errors.New("wifi: connect timed out")
	// ErrRetryExhausted is returned by Connect after max retries.
	ErrRetryExhausted = errors.New("wifi: retries exhausted")
	// ErrNotConnected is returned by queries and Disconnect when there is no link.
	ErrNotConnected = errors.New("wifi: not connected")
	// ErrNotInitialized is returned before Init.
	ErrNotInitialized = errors.New("wifi: manager not initialized")
	// ErrFatal marks an unrecoverable driver failure. Only Init clears it.
	ErrFatal = errors.New("wifi: fatal driver error")
	// ErrInvalidConfig is returned by Init for an unusable Config.
	ErrInvalidConfig = errors.New("wifi: invalid configuration")
)

// EventKind identifies a link-layer event.
type EventKind int

const (
	// EventStarted is emitted once the station interface is up
	EventStarted EventKind = iota
	// EventDisconnected is emitted when association fails or the link drops
	EventDisconnected
	// EventGotIP is emitted when an address is assigned
	EventGotIP
	// EventFatal is emitted when the driver can no longer operate
	EventFatal
)

// String returns the event name
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventDisconnected:
		return "disconnected"
	case EventGotIP:
		return "got-ip"
	case EventFatal:
		return "fatal"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a message from a Driver to the Manager.
type Event struct {
	Kind   EventKind
	IP     IPInfo // EventGotIP only
	Reason string // EventDisconnected, EventFatal
	Err    error  // EventFatal
}

// IPInfo is the address assignment reported with EventGotIP.
type IPInfo struct {
	IP      net.IP     `json:"ip"`
	Netmask net.IPMask `json:"netmask,omitempty"`
	Gateway net.IP     `json:"gateway,omitempty"`
}

// String returns the address in CIDR form when a mask is known.
func (i IPInfo) String() string {
	if i.IP == nil {
		return ""
	}
	if i.Netmask != nil {
		ones, _ := i.Netmask.Size()
		return fmt.Sprintf("%s/%d", i.IP, ones)
	}
	return i.IP.String()
}

// Transition describes one status change.
type Transition struct {
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	Retry  int       `json:"retry"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Stats is a snapshot of the connectivity counters.
type Stats struct {
	Status       Status `json:"status"`
	RetryCount   int    `json:"retry_count"`
	MaxRetry     int    `json:"max_retry"`
	RSSI         int    `json:"rssi"` // last known, dBm
	IP           IPInfo `json:"ip"`   // last known
	Associations uint64 `json:"associations"`
	Drops        uint64 `json:"drops"` // unsolicited disconnects while Connected
}
