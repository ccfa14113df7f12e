package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// Kind is the category of a failed exchange.
type Kind int

const (
	// KindTimeout indicates the exchange did not complete within its timeout
	KindTimeout Kind = iota
	// KindNetwork indicates a connection-level failure (refused, DNS, unreachable, reset)
	KindNetwork
	// KindNonSuccessStatus indicates the server answered outside [200,300)
	KindNonSuccessStatus
	// KindInvalidArgument indicates a bad URL or request, detected before any I/O
	KindInvalidArgument
)

// NetworkSubtype provides more specific network error classification
type NetworkSubtype int

const (
	NetworkGeneral NetworkSubtype = iota
	NetworkConnectionRefused
	NetworkDNS
	NetworkHostUnreachable
	NetworkUnreachable
)

// String returns a human-readable name for the error kind
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "Timeout"
	case KindNetwork:
		return "Network Error"
	case KindNonSuccessStatus:
		return "Non-Success Status"
	case KindInvalidArgument:
		return "Invalid Argument"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// String returns a short name for the subtype
func (s NetworkSubtype) String() string {
	switch s {
	case NetworkConnectionRefused:
		return "connection refused"
	case NetworkDNS:
		return "dns"
	case NetworkHostUnreachable:
		return "host unreachable"
	case NetworkUnreachable:
		return "network unreachable"
	default:
		return "general"
	}
}

// Error is returned by Client.Post for every failed exchange.
type Error struct {
	Kind       Kind
	Subtype    NetworkSubtype
	StatusCode int // set for KindNonSuccessStatus
	Message    string
	Err        error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// Classify maps a client.Do error onto an *Error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{
			Kind:    KindNetwork,
			Subtype: NetworkDNS,
			Message: fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:     err,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &Error{Kind: KindNetwork, Subtype: NetworkConnectionRefused, Message: "endpoint refused connection", Err: err}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &Error{Kind: KindNetwork, Subtype: NetworkHostUnreachable, Message: "host unreachable", Err: err}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &Error{Kind: KindNetwork, Subtype: NetworkUnreachable, Message: "network unreachable", Err: err}
		}
	}

	return &Error{Kind: KindNetwork, Subtype: NetworkGeneral, Message: "network error occurred", Err: err}
}

// NewStatusError creates the error returned for a response outside [200,300).
func NewStatusError(statusCode int) *Error {
	return &Error{
		Kind:       KindNonSuccessStatus,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("endpoint returned status %d", statusCode),
	}
}

// NewInvalidArgument creates a configuration error detected before any I/O.
func NewInvalidArgument(message string, err error) *Error {
	return &Error{Kind: KindInvalidArgument, Message: message, Err: err}
}

// KindOf returns the kind of err and whether err carries one.
func KindOf(err error) (Kind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}

// IsTimeout checks if an error is a transport timeout
func IsTimeout(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindTimeout
}

// IsNetworkError checks if an error is a connection-level failure
func IsNetworkError(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindNetwork
}

// IsNonSuccessStatus checks if an error is a non-2xx response
func IsNonSuccessStatus(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindNonSuccessStatus
}

// IsInvalidArgument checks if an error is a configuration error
func IsInvalidArgument(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindInvalidArgument
}

// StatusCode returns the HTTP status carried by a non-success error, or 0.
func StatusCode(err error) int {
	var te *Error
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}
