// Package resubmit runs one reconciliation pass over a processing table.
//
// A pass refreshes statuses from the queue, collects the frontier (rows never
// submitted plus rows in a resubmittable failure state), orders it so every
// row follows the rows it depends on, and dispatches the rows whose
// dependencies are usable. A dependency that is itself on the frontier is
// handled first and holds its dependents until a later pass observes it
// complete. The pass mutates the table in memory only; callers persist it.
package resubmit
