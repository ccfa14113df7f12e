package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/telemetryd/internal/logging"
)

const (
	// CollectorService is the mDNS service type collectors advertise
	CollectorService = "_telemetry._tcp"

	// AgentService is the mDNS service type of the telemetryd status API
	AgentService = "_telemetryd._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for collector discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultPort is used when an entry carries no port
	DefaultPort = 80

	// DefaultPath is used when an entry carries no "path" TXT record
	DefaultPath = "/api/telemetry"
)

// ErrNoCollector is returned when nothing answered within the timeout.
var ErrNoCollector = errors.New("no telemetry collector found")

// Scanner handles mDNS collector discovery
type Scanner struct {
	// Timeout is the maximum time to wait for answers
	Timeout time.Duration

	// Service is the service type to browse for
	Service string
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
		Service: CollectorService,
	}
}

// Scan collects every collector that answers before the timeout.
func (s *Scanner) Scan(ctx context.Context) ([]*Collector, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	var (
		mu         sync.Mutex
		collectors = make([]*Collector, 0)
		done       = make(chan struct{})
	)
	go func() {
		defer close(done)
		for entry := range entries {
			if c := parseServiceEntry(entry); c != nil {
				mu.Lock()
				collectors = append(collectors, c)
				mu.Unlock()
			}
		}
	}()

	if err := resolver.Browse(ctx, s.Service, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	// The resolver closes entries once browsing stops.
	select {
	case <-done:
	case <-time.After(time.Second):
	}

	mu.Lock()
	defer mu.Unlock()
	logging.Debug("mDNS scan finished", zap.String("service", s.Service), zap.Int("found", len(collectors)))
	return collectors, nil
}

// First returns the first collector to answer.
func (s *Scanner) First(ctx context.Context) (*Collector, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan *Collector, 1)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		for entry := range entries {
			if c := parseServiceEntry(entry); c != nil {
				select {
				case found <- c:
				default:
				}
				cancel()
			}
		}
	}()

	if err := resolver.Browse(ctx, s.Service, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case c := <-found:
		logging.Info("Collector discovered", zap.String("endpoint", c.Endpoint()))
		return c, nil
	case <-ctx.Done():
		// The entry may have landed just as the context was cancelled.
		select {
		case c := <-found:
			return c, nil
		default:
		}
		return nil, ErrNoCollector
	}
}

// parseServiceEntry converts a zeroconf service entry to a Collector.
// Returns nil for entries without a usable address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Collector {
	if entry == nil {
		return nil
	}

	// Get IP address (prefer IPv4)
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	// TXT records are in "key=value" format
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	path := metadata["path"]
	delete(metadata, "path")

	return &Collector{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Path:         path,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// FindCollector returns the endpoint of the first collector found within timeout.
func FindCollector(ctx context.Context, timeout time.Duration) (string, error) {
	scanner := NewScanner()
	if timeout > 0 {
		scanner.Timeout = timeout
	}
	c, err := scanner.First(ctx)
	if err != nil {
		return "", err
	}
	return c.Endpoint(), nil
}
