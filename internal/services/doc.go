// Package services defines shared utilities consumed by the daemon tasks and
// the transfer client.
//
// Key responsibilities:
//   - Context helpers that stamp artifact names, task names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification consistent across push, watch, and retention code.
//   - Details extraction that turns a wrapped error into the kind, message,
//     and hint fields structured logs expect.
//
// Use these helpers when wiring new task logic so operational behaviour (error
// handling, observability, retries) stays uniform across the daemon.
package services
