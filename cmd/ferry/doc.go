// Package main hosts the ferry CLI entrypoint and command graph. Commands stay
// thin: they parse flags, resolve configuration once through commandContext,
// and delegate real work to the daemon over the unix socket or to the internal
// packages directly for the one-shot paths.
//
// Keep this package lean. Anything beyond argument handling and output
// rendering belongs in internal/ so the daemon and the CLI share one
// implementation.
package main
