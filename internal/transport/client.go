package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/telemetryd/internal/logging"
)

const (
	// DefaultTimeout is the default per-request timeout
	DefaultTimeout = 5 * time.Second

	// DefaultResponseCapacity is the default number of response body bytes kept
	DefaultResponseCapacity = 512
)

// ErrClosed is returned by Post after Close.
var ErrClosed = errors.New("transport closed")

// Config holds the transport settings.
type Config struct {
	// Timeout bounds a whole exchange, body included
	Timeout time.Duration

	// ResponseCapacity is the size of the response buffer; bytes beyond it are dropped
	ResponseCapacity int
}

// Response describes one completed exchange.
type Response struct {
	StatusCode    int
	ContentLength int64 // as announced by the server, -1 when unknown
	Body          []byte
	Success       bool // StatusCode in [200,300)
	Truncated     bool // the body exceeded ResponseCapacity
}

// Client performs single blocking POST exchanges. It never retries.
type Client struct {
	cfg Config

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// mu serialises exchanges so the response buffer is never shared
	mu  sync.Mutex
	buf []byte
}

// New creates a client and allocates its response buffer.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ResponseCapacity <= 0 {
		cfg.ResponseCapacity = DefaultResponseCapacity
	}
	return &Client{
		cfg:        cfg,
		HTTPClient: &http.Client{},
		buf:        make([]byte, cfg.ResponseCapacity),
	}
}

// Timeout returns the per-request timeout
func (c *Client) Timeout() time.Duration {
	return c.cfg.Timeout
}

// Post sends body to rawURL with the given headers and waits for the reply.
//
// A response outside [200,300) is returned together with an *Error of kind
// KindNonSuccessStatus so that callers handle bad statuses and connectivity
// failures through one error path.
func (c *Client) Post(ctx context.Context, rawURL string, headers map[string]string, body []byte) (Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Response{}, NewInvalidArgument("malformed URL", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Response{}, NewInvalidArgument("URL must be absolute http(s): "+rawURL, nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buf == nil {
		return Response{}, NewInvalidArgument("transport is closed", ErrClosed)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return Response{}, NewInvalidArgument("failed to build request", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	logging.Debug("HTTP POST", zap.String("url", u.String()), zap.Int("bytes", len(body)))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Response{}, Classify(err)
	}
	defer func() { _ = resp.Body.Close() }()

	out := Response{
		StatusCode:    resp.StatusCode,
		ContentLength: resp.ContentLength,
		Success:       resp.StatusCode >= 200 && resp.StatusCode < 300,
	}

	n, truncated, err := c.readBounded(resp.Body)
	if err != nil {
		return out, Classify(err)
	}
	out.Body = append([]byte(nil), c.buf[:n]...)
	out.Truncated = truncated

	if truncated {
		logging.Debug("Response body truncated",
			zap.Int("kept", n),
			zap.Int("capacity", len(c.buf)),
		)
	}

	if !out.Success {
		return out, NewStatusError(out.StatusCode)
	}
	return out, nil
}

// readBounded fills the response buffer and discards the remainder.
func (c *Client) readBounded(r io.Reader) (int, bool, error) {
	n, err := io.ReadFull(r, c.buf)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return n, false, nil
	case err != nil:
		return n, false, err
	}

	dropped, err := io.Copy(io.Discard, r)
	if err != nil {
		return n, dropped > 0, err
	}
	return n, dropped > 0, nil
}

// Close releases the response buffer. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = nil
	return nil
}
