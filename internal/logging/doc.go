// Package logging provides structured logging for the lettin tools.
//
// This package wraps a package-global zap logger. Logging is silent unless a
// level is requested, so CLI output stays clean by default.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Datagram hex dumps, per-fragment send results
//   - Info: Discovery cycles, published results, server lifecycle
//   - Warn: Dropped datagrams, failed sends
//   - Error: Startup failures
//
// # Structured Logging
//
//	logging.Info("Discovery cycle complete",
//	    zap.Uint16("tid", tid),
//	    zap.Int("gateways", len(result)),
//	)
//
// # Datagram Logging
//
//	logging.LogDatagram("received", remoteAddr, payload)
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// An empty level falls back to the LETTIN_LOG_LEVEL environment variable.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use once Initialize returned.
package logging
