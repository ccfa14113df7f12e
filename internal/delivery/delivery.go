// Package delivery runs one telemetry push: encode a reading, post it and
// fold the outcome into the delivery statistics.
//
// Every exchange that reaches the network counts as exactly one attempt and
// exactly one of success, timeout, network error or non-success status, so
// TotalAttempts always equals the sum of those four counters. Readings that
// cannot be encoded never reach the network and are counted separately.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/telemetryd/internal/logging"
	"github.com/muurk/telemetryd/internal/payload"
	"github.com/muurk/telemetryd/internal/sensor"
	"github.com/muurk/telemetryd/internal/transport"
	"github.com/muurk/telemetryd/internal/version"
)

// ContentType is sent with every push
const ContentType = "application/json"

// ProbeBody is the document posted by Probe.
var ProbeBody = []byte(`{"test":"connectivity"}`)

var (
	// ErrNotReady is returned before Init or after Close.
	ErrNotReady = errors.New("delivery: not initialized")
	// ErrNoDelivery is returned by LastOutcome before the first attempt.
	ErrNoDelivery = errors.New("delivery: no attempt recorded")
	// ErrInvalidJSON is wrapped in a PayloadError by SendJSON.
	ErrInvalidJSON = errors.New("invalid JSON document")
)

// PayloadError reports a reading or document that could not be sent.
type PayloadError struct {
	Err error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("payload error: %v", e.Err)
}

// Unwrap returns the encoding error
func (e *PayloadError) Unwrap() error {
	return e.Err
}

// IsPayloadError checks if err is a PayloadError
func IsPayloadError(err error) bool {
	var pe *PayloadError
	return errors.As(err, &pe)
}

// Poster performs one HTTP exchange. *transport.Client implements it.
type Poster interface {
	Post(ctx context.Context, url string, headers map[string]string, body []byte) (transport.Response, error)
	Close() error
}

// Config holds the delivery settings.
type Config struct {
	Endpoint       string
	Timeout        time.Duration
	ResponseBuffer int
	UserAgent      string // defaults to version.UserAgent()
}

// Cycle performs deliveries and keeps their statistics.
type Cycle struct {
	cfg       Config
	newPoster func() Poster
	now       func() time.Time

	mu        sync.Mutex
	poster    Poster
	stats     Stats
	last      *Outcome
	observers []func(Outcome)
}

// New creates a cycle backed by a transport.Client.
func New(cfg Config) *Cycle {
	c := &Cycle{cfg: cfg, now: time.Now}
	c.newPoster = func() Poster {
		return transport.New(transport.Config{
			Timeout:          cfg.Timeout,
			ResponseCapacity: cfg.ResponseBuffer,
		})
	}
	return c
}

// NewWithPoster creates a cycle that uses p for every exchange.
func NewWithPoster(cfg Config, p Poster) *Cycle {
	c := &Cycle{cfg: cfg, now: time.Now}
	c.newPoster = func() Poster { return p }
	return c
}

// Init prepares the transport and clears statistics. It is a no-op when
// already initialized.
func (c *Cycle) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poster != nil {
		logging.Warn("Delivery cycle already initialized")
		return nil
	}
	c.poster = c.newPoster()
	c.stats = Stats{}
	c.last = nil
	logging.Info("Delivery cycle initialized", zap.String("endpoint", c.cfg.Endpoint))
	return nil
}

// Endpoint returns the configured target URL.
func (c *Cycle) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Endpoint
}

// SetEndpoint replaces the configured target URL.
func (c *Cycle) SetEndpoint(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Endpoint = url
}

// Observe registers fn to receive every recorded outcome.
func (c *Cycle) Observe(fn func(Outcome)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Run encodes reading and posts it to targetURL. It never retries.
func (c *Cycle) Run(ctx context.Context, reading sensor.Reading, targetURL string) (Outcome, error) {
	poster, err := c.ready()
	if err != nil {
		return Outcome{}, err
	}

	body, err := payload.Encode(reading)
	if err != nil {
		return Outcome{}, c.payloadFailure(err)
	}
	return c.post(ctx, poster, targetURL, body)
}

// RunDefault is Run against the configured endpoint.
func (c *Cycle) RunDefault(ctx context.Context, reading sensor.Reading) (Outcome, error) {
	return c.Run(ctx, reading, c.Endpoint())
}

// SendJSON posts a pre-formatted document after checking it is valid JSON.
func (c *Cycle) SendJSON(ctx context.Context, targetURL string, raw []byte) (Outcome, error) {
	poster, err := c.ready()
	if err != nil {
		return Outcome{}, err
	}
	if !payload.Validate(raw) {
		return Outcome{}, c.payloadFailure(ErrInvalidJSON)
	}
	return c.post(ctx, poster, targetURL, raw)
}

// Probe posts a fixed test document to the configured endpoint.
func (c *Cycle) Probe(ctx context.Context) (Outcome, error) {
	target := c.Endpoint()
	logging.Info("Testing connectivity", zap.String("url", target))

	out, err := c.SendJSON(ctx, target, ProbeBody)
	if err != nil {
		logging.Warn("Connectivity test failed", zap.Error(err))
		return out, err
	}
	logging.Info("Connectivity test successful")
	return out, nil
}

func (c *Cycle) ready() (Poster, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poster == nil {
		logging.Error("Delivery cycle not initialized")
		return nil, ErrNotReady
	}
	return c.poster, nil
}

func (c *Cycle) payloadFailure(err error) error {
	c.mu.Lock()
	c.stats.PayloadErrors++
	c.mu.Unlock()
	logging.Error("Failed to create payload", zap.Error(err))
	return &PayloadError{Err: err}
}

func (c *Cycle) headers() map[string]string {
	ua := c.cfg.UserAgent
	if ua == "" {
		ua = version.UserAgent()
	}
	return map[string]string{
		"Content-Type": ContentType,
		"User-Agent":   ua,
	}
}

func (c *Cycle) post(ctx context.Context, poster Poster, targetURL string, body []byte) (Outcome, error) {
	logging.LogRawPayload("Telemetry payload", body)

	start := c.now()
	resp, err := poster.Post(ctx, targetURL, c.headers(), body)
	elapsed := c.now().Sub(start)

	if err == nil && !resp.Success {
		err = transport.NewStatusError(resp.StatusCode)
	}
	if transport.IsInvalidArgument(err) {
		logging.Error("Delivery rejected before sending", zap.String("url", targetURL), zap.Error(err))
		return Outcome{}, err
	}
	if errors.Is(err, context.Canceled) {
		// Shutdown interrupted the exchange; there is no result to count.
		logging.Info("Delivery cancelled", zap.String("url", targetURL))
		return Outcome{}, err
	}

	out := Outcome{
		URL:           targetURL,
		StatusCode:    resp.StatusCode,
		ContentLength: resp.ContentLength,
		Body:          resp.Body,
		Success:       err == nil,
		Truncated:     resp.Truncated,
		Result:        classify(err),
		At:            start,
		Elapsed:       elapsed,
	}
	if err != nil {
		out.Error = err.Error()
	}

	c.mu.Lock()
	c.stats.Record(out)
	stored := out
	c.last = &stored
	observers := append([]func(Outcome){}, c.observers...)
	c.mu.Unlock()

	logging.LogDelivery(targetURL, out.StatusCode, elapsed, err)
	for _, fn := range observers {
		fn(out)
	}

	if err != nil {
		return out, fmt.Errorf("delivery to %s: %w", targetURL, err)
	}
	return out, nil
}

// Stats returns a snapshot of the delivery counters.
func (c *Cycle) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// ResetStats clears the counters. The last outcome is kept.
func (c *Cycle) ResetStats() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poster == nil {
		return ErrNotReady
	}
	logging.Info("Resetting delivery statistics")
	c.stats = Stats{}
	return nil
}

// LastOutcome returns the most recent recorded outcome.
func (c *Cycle) LastOutcome() (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poster == nil {
		return Outcome{}, ErrNotReady
	}
	if c.last == nil {
		return Outcome{}, ErrNoDelivery
	}
	return *c.last, nil
}

// Close releases the transport. Further calls return nil; Init may be
// called again afterwards.
func (c *Cycle) Close() error {
	c.mu.Lock()
	poster := c.poster
	c.poster = nil
	c.mu.Unlock()

	if poster == nil {
		return nil
	}
	logging.Info("Closing delivery cycle")
	return poster.Close()
}
