// Package api defines the transport-friendly payloads shared by the unix
// socket RPC surface and the optional HTTP listener, plus converters from
// the internal types they mirror.
package api
