// Package batch defines the contract between the engine and an external
// batch queue: Submit dispatches one job and returns its queue id, Poll
// reports the raw state string of each requested queue id.
//
// Implementations live in subpackages (slurm). Both calls may fail
// transiently; callers bound them with context deadlines.
package batch
