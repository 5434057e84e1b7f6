// Package proctable holds the processing table: the ordered, persisted set of
// rows describing every reduction job of a night.
//
// Rows carry their identity (job description, exposure ids, tile), the camera
// constraints forwarded to the batch queue, their dependency keys, and the
// queue bookkeeping (status, queue ids, submission counter). Status values are
// a closed enum and move only along the edges defined in transitions.go; the
// only backward edge is the controller-driven reset of a retryable failure.
//
// Tables are loaded and persisted through codecs selected by file extension
// (CSV or a SQLite snapshot). Persist always writes a sibling temporary file
// and renames it over the destination so readers never observe a partial
// table.
//
// Treat this package as the single source of truth for row semantics; add new
// statuses to status.go and the transition table together.
package proctable
