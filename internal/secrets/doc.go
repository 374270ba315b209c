// Package secrets resolves and stages the credentials a push needs: the ssh
// private key and the pinned host keys for the ingest host.
package secrets
