package statusapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/telemetryd/internal/agent"
	"github.com/muurk/telemetryd/internal/delivery"
	"github.com/muurk/telemetryd/internal/discovery"
	"github.com/muurk/telemetryd/internal/logging"
	"github.com/muurk/telemetryd/internal/wifi"
)

// Source provides snapshots. *agent.Agent implements it.
type Source interface {
	Snapshot() agent.Snapshot
}

// Config holds the server configuration
type Config struct {
	Listen    string // host:port; port 0 picks a free port
	Advertise bool   // announce over mDNS
	Instance  string // mDNS instance name, defaults to the hostname
}

// Server is the status API server
type Server struct {
	config   Config
	source   Source
	hub      *hub
	http     *http.Server
	listener net.Listener
	adv      *discovery.Advertisement
	wg       sync.WaitGroup
}

// New creates a new Server instance
func New(config Config, source Source) *Server {
	s := &Server{
		config: config,
		source: source,
		hub:    newHub(),
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

// PublishTransition forwards a connectivity transition to stream clients.
// It has the signature expected by wifi.Manager.Watch.
func (s *Server) PublishTransition(t wifi.Transition) {
	s.hub.publish(Event{Type: EventTransition, Time: t.At, Transition: &t})
}

// PublishDelivery forwards a delivery outcome to stream clients. It has the
// signature expected by delivery.Cycle.Observe.
func (s *Server) PublishDelivery(o delivery.Outcome) {
	s.hub.publish(Event{Type: EventDelivery, Time: o.At, Delivery: &o})
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}
	s.listener = listener

	logging.Info("Status API listening", zap.String("addr", listener.Addr().String()))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Status API stopped", zap.Error(err))
		}
	}()

	if s.config.Advertise {
		instance := s.config.Instance
		if instance == "" {
			instance, _ = os.Hostname()
		}
		port := listener.Addr().(*net.TCPAddr).Port
		adv, err := discovery.Advertise(instance, port)
		if err != nil {
			// The API still works without mDNS.
			logging.Warn("mDNS advertisement failed", zap.Error(err))
		} else {
			s.adv = adv
		}
	}
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down status API...")

	s.adv.Shutdown()
	s.hub.closeAll()

	err := s.http.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}
	return err
}

// Clients returns the number of connected stream clients
func (s *Server) Clients() int {
	return s.hub.count()
}
