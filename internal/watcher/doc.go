// Package watcher detects ready artifact directories and feeds them to the
// pusher through a single event stream.
//
// Native filesystem notifications and periodic sweeps both produce Event
// values on the same channel; one dispatcher consumes them and pushes
// synchronously, one artifact at a time. Queued directories are deduplicated
// by name, and the pusher's own guard clauses make any residual duplicate a
// no-op.
//
// Modes: "event" requires the native watcher and fails the task when it
// cannot start, "poll" sweeps on an interval only, and "auto" tries the
// native watcher but degrades to polling when it is unavailable. Event mode
// keeps a safety-net sweep, so every mode is individually sufficient for
// eventual replication.
package watcher
