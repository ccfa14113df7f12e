package statusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/muurk/telemetryd/internal/agent"
)

// FetchStatus retrieves one snapshot from a running agent. baseURL may be
// "host:port" or a full http URL.
func FetchStatus(ctx context.Context, baseURL string) (agent.Snapshot, error) {
	u, err := normalize(baseURL, "http")
	if err != nil {
		return agent.Snapshot{}, err
	}
	u.Path = "/status"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return agent.Snapshot{}, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return agent.Snapshot{}, fmt.Errorf("failed to reach agent at %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return agent.Snapshot{}, fmt.Errorf("agent returned HTTP %d", resp.StatusCode)
	}

	var snap agent.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return agent.Snapshot{}, fmt.Errorf("failed to decode status: %w", err)
	}
	return snap, nil
}

// Subscribe streams events to fn until ctx is done or the connection drops.
// It returns nil when ctx ends the stream.
func Subscribe(ctx context.Context, baseURL string, fn func(Event)) error {
	u, err := normalize(baseURL, "ws")
	if err != nil {
		return err
	}
	u.Path = "/ws"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", u.Host, err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("stream read failed: %w", err)
		}
		fn(ev)
	}
}

// normalize accepts "host:port", "http://host:port" or "ws://host:port" and
// returns a URL using the requested scheme family.
func normalize(raw, family string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid agent address %q", raw)
	}

	secure := u.Scheme == "https" || u.Scheme == "wss"
	switch {
	case family == "ws" && secure:
		u.Scheme = "wss"
	case family == "ws":
		u.Scheme = "ws"
	case secure:
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	return u, nil
}
