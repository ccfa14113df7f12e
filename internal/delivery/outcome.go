package delivery

import (
	"fmt"
	"time"

	"github.com/muurk/telemetryd/internal/transport"
)

// Result classifies an attempt.
type Result int

const (
	ResultSuccess Result = iota
	ResultTimeout
	ResultNetworkError
	ResultNonSuccess
)

// String returns the result name used in logs and status output
func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultTimeout:
		return "timeout"
	case ResultNetworkError:
		return "network_error"
	case ResultNonSuccess:
		return "non_success"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// MarshalText lets Result appear by name in JSON.
func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses a name produced by MarshalText.
func (r *Result) UnmarshalText(text []byte) error {
	for c := ResultSuccess; c <= ResultNonSuccess; c++ {
		if c.String() == string(text) {
			*r = c
			return nil
		}
	}
	return fmt.Errorf("unknown delivery result %q", text)
}

// classify maps a Post error onto a Result. Errors that carry no transport
// kind are counted as network errors.
func classify(err error) Result {
	if err == nil {
		return ResultSuccess
	}
	kind, ok := transport.KindOf(err)
	if !ok {
		return ResultNetworkError
	}
	switch kind {
	case transport.KindTimeout:
		return ResultTimeout
	case transport.KindNonSuccessStatus:
		return ResultNonSuccess
	default:
		return ResultNetworkError
	}
}

// Outcome is the record of one attempt.
type Outcome struct {
	URL           string        `json:"url"`
	StatusCode    int           `json:"status_code"`
	ContentLength int64         `json:"content_length"`
	Body          []byte        `json:"-"`
	Success       bool          `json:"success"`
	Truncated     bool          `json:"truncated"`
	Result        Result        `json:"result"`
	Error         string        `json:"error,omitempty"`
	At            time.Time     `json:"at"`
	Elapsed       time.Duration `json:"elapsed_ns"`
}

// Stats holds the delivery counters.
type Stats struct {
	TotalAttempts  uint64    `json:"total_attempts"`
	Successes      uint64    `json:"successes"`
	Timeouts       uint64    `json:"timeouts"`
	NetworkErrors  uint64    `json:"network_errors"`
	NonSuccess     uint64    `json:"non_success"`
	PayloadErrors  uint64    `json:"payload_errors"` // not attempts
	LastStatusCode int       `json:"last_status_code"`
	LastAttempt    time.Time `json:"last_attempt"`
}

// Failures returns the number of attempts that did not succeed.
func (s Stats) Failures() uint64 {
	return s.Timeouts + s.NetworkErrors + s.NonSuccess
}

// SuccessRate returns successes as a percentage of attempts.
func (s Stats) SuccessRate() float64 {
	if s.TotalAttempts == 0 {
		return 0
	}
	return float64(s.Successes) * 100 / float64(s.TotalAttempts)
}

// Record counts one attempt. Viewers replaying streamed outcomes use it to
// keep a local copy of the counters in step.
func (s *Stats) Record(o Outcome) {
	s.TotalAttempts++
	switch o.Result {
	case ResultSuccess:
		s.Successes++
	case ResultTimeout:
		s.Timeouts++
	case ResultNonSuccess:
		s.NonSuccess++
	default:
		s.NetworkErrors++
	}
	if o.StatusCode != 0 {
		s.LastStatusCode = o.StatusCode
	}
	s.LastAttempt = o.At
}
