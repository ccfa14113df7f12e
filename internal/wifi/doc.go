// Package wifi implements the station connectivity manager.
//
// The Manager owns a five state machine (disconnected, connecting, connected,
// failed, error) driven by link-layer events from a Driver. Events are
// consumed by a single goroutine; Connect blocks on a one-slot signal
// channel that the event loop fills with the outcome of an attempt.
//
// Retry policy: each disconnect while connecting re-issues association and
// increments the retry counter until MaxRetry is reached, at which point the
// state becomes failed. The counter returns to zero only when an address is
// assigned, never on a manual Connect.
//
// Drivers live in sub-packages: simradio scripts a radio for tests and demo
// mode, hostif follows a real network interface on the host.
package wifi
