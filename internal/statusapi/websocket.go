package statusapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/telemetryd/internal/agent"
	"github.com/muurk/telemetryd/internal/delivery"
	"github.com/muurk/telemetryd/internal/logging"
	"github.com/muurk/telemetryd/internal/wifi"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Events buffered per client before it is dropped
	clientBuffer = 32
)

// Event types on the stream.
const (
	EventSnapshot   = "snapshot"
	EventTransition = "transition"
	EventDelivery   = "delivery"
)

// Event is one message on the WebSocket stream.
type Event struct {
	Type       string            `json:"type"`
	Time       time.Time         `json:"time"`
	Snapshot   *agent.Snapshot   `json:"snapshot,omitempty"`
	Transition *wifi.Transition  `json:"transition,omitempty"`
	Delivery   *delivery.Outcome `json:"delivery,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Read-only local API; browsers on other origins may watch it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[*client]struct{})}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

// remove unregisters c and closes its queue. It reports whether c was
// still registered.
func (h *hub) remove(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	return true
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logging.Error("Failed to encode stream event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			logging.Warn("Stream client too slow, dropping",
				zap.String("remote_addr", c.conn.RemoteAddr().String()),
			)
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an error status.
		logging.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}
	remoteAddr := conn.RemoteAddr().String()
	logging.Info("Stream client connected", zap.String("remote_addr", remoteAddr))

	// The snapshot is queued before registration so it always comes first
	// and never races a drop.
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	snap := s.source.Snapshot()
	if data, err := json.Marshal(Event{Type: EventSnapshot, Time: snap.At, Snapshot: &snap}); err == nil {
		c.send <- data
	}
	s.hub.add(c)

	go s.writePump(c)
	s.readPump(c)

	logging.Info("Stream client disconnected", zap.String("remote_addr", remoteAddr))
}

// readPump discards client messages and notices when the peer goes away.
func (s *Server) readPump(c *client) {
	defer func() {
		s.hub.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump sends queued events and keeps the connection alive.
func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
