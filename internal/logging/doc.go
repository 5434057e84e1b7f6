// Package logging assembles the structured slog loggers used by nightproc.
//
// A command run logs human-readable lines to the terminal and, when a log
// directory is configured, mirrors every record as JSON into a per-run file
// so a night's resubmission history can be replayed later. Field keys are
// shared constants so rows, queue ids and statuses always appear under the
// same names.
package logging
