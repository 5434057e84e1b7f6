// Package dependency decides which earlier rows a processing row waits on and
// walks the resulting dependency graph.
//
// Resolver applies per job-description Rules: each rule kind names the
// prerequisite job description plus ordered fallbacks, and the best match is
// the row with the largest camera overlap, ties going to the most recently
// created row. Rows that failed permanently or were cancelled never satisfy a
// dependency. Joint fits receive their constituent rows when they are created
// and are not resolved here.
//
// Walk and CheckAcyclic traverse dependencies with an explicit stack so deep
// chains never grow the call stack, and report cycles as DependencyCycleError.
package dependency
