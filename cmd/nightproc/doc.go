// Package main hosts the nightproc CLI entrypoint and command graph.
//
// Each command resolves the configuration, locks the night's processing
// table, runs one operation from the internal packages and persists the table
// only when that operation succeeded. Structural failures (a corrupt table, a
// dependency cycle) exit non-zero without writing anything; transient queue
// failures are logged and the command still exits zero so the next scheduled
// run can pick up where this one stopped.
package main
