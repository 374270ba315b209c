// Package ipc implements the control channel between the ferry CLI and the
// daemon: JSON-RPC over a Unix domain socket. The server wraps a running
// daemon; the client offers one method per RPC so command code stays free
// of wire details.
package ipc
