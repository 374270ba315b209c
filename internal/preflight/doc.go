// Package preflight provides readiness checks for the paths, credentials,
// and external tools a push depends on.
//
// These checks run in two contexts:
//   - The daemon runtime calls RunAll before starting tasks. A failed check
//     aborts startup rather than letting the watcher spin on a doomed setup.
//   - The CLI "ferry preflight" command runs the same set and renders it.
//
// The remote auth probe is deliberately advisory: the network may be down
// when a worker boots, so a failed probe is a warning, never a failure.
package preflight
