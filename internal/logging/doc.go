// Package logging provides structured logging for telemetryd.
//
// This package wraps zap logger with convenience functions for common logging
// patterns used throughout the reporter. It provides both general logging
// functions and specialized functions for connectivity and delivery events.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Detailed debugging info (link events, payload dumps)
//   - Info: Normal operations (transitions, deliveries, status reports)
//   - Warn: Non-fatal issues (failed deliveries, skipped cycles, retries)
//   - Error: Fatal issues (startup failures, driver errors)
//
// # Specialized Logging
//
//	logging.LogTransition("connecting", "connected", 0, "address assigned")
//	logging.LogDelivery(url, 201, elapsed, nil)
//	logging.LogStatusReport(cycle, "connected", attempts, successes, failures, rssi)
//
// # Configuration
//
// Initialize logging at startup:
//
//	if err := logging.Initialize("info"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap logger
// handles synchronization automatically.
package logging
