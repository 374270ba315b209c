// Package logs locates and tails ferry's on-disk log files.
//
// The daemon writes one log file per run and repoints a stable ferry.log
// link at the newest one. This package owns that layout plus the offset
// based tailing behind `ferry logs`, including follow-mode polling with
// bounded memory and a restart detection that rereads from the top when a
// new run replaces the pointer target.
package logs
