// Package preflight checks that the filesystem and batch queue tooling a
// nightly run depends on are usable before any table is touched.
//
// The CLI "nightproc check" command prints every result. The resubmit and
// seed commands run the same checks and refuse to start when a required
// one fails.
package preflight
