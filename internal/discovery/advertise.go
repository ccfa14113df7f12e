package discovery

import (
	"fmt"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/telemetryd/internal/logging"
	"github.com/muurk/telemetryd/internal/version"
)

// Advertisement is a registered mDNS service. Call Shutdown to withdraw it.
type Advertisement struct {
	server *zeroconf.Server
}

// Advertise announces the status API of this agent on port.
func Advertise(instance string, port int, txt ...string) (*Advertisement, error) {
	txt = append([]string{"version=" + version.Version, "path=/status"}, txt...)

	server, err := zeroconf.Register(instance, AgentService, ServiceDomain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	logging.Info("Advertising status API",
		zap.String("instance", instance),
		zap.String("service", AgentService),
		zap.Int("port", port),
	)
	return &Advertisement{server: server}, nil
}

// Shutdown withdraws the advertisement.
func (a *Advertisement) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
}
