// Package daemon ties the watcher, pusher, and retainer together under one
// supervised runtime. It enforces single-instance execution with a file
// lock, answers status and control requests from the socket server, and
// exposes the optional HTTP health and metrics listener.
package daemon
