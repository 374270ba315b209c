// Package notifications publishes operator-facing events over ntfy: daemon
// lifecycle, completed pushes, terminal push failures, and retention
// shortfalls. Without a configured topic every publish is a no-op.
package notifications
