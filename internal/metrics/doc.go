// Package metrics defines the Prometheus instrumentation exposed by the
// daemon's HTTP listener under the ferry namespace.
package metrics
