// Package artifact models render output directories and the sentinel files
// that drive their replication lifecycle: .DONE marks a finished render,
// .READY marks eligibility for pushing, .PUSHING is the per-directory push
// lock, .PUSHED records success, and .FAILED is the terminal state after the
// retry budget is exhausted.
package artifact
