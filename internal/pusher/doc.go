// Package pusher replicates ready artifact directories to the ingest host.
//
// A push runs strictly in order: resolve and stage the ssh secrets, take the
// .PUSHING lock, record the attempt in the history ledger, create the remote
// directory, rsync the payload, hand off with a remote .READY, then mark the
// local directory .PUSHED and apply the cleanup policy. Every exit path
// releases the lock and removes the staged key.
//
// A failed attempt leaves the directory .READY so the watcher retries it.
// Once the attempt counter reaches push.max_attempts the directory is marked
// .FAILED and needs an operator to clear the sentinel after fixing the cause.
package pusher
