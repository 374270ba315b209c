// Package history keeps the SQLite ledger of push attempts and outcomes.
// Sentinel files on disk stay authoritative; the ledger adds the attempt
// counter behind the retry budget and the data behind status and history
// output.
package history
