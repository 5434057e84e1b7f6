// Package submit dispatches one eligible processing row to the batch queue.
//
// A Submitter checks the row is UNSUBMITTED with every dependency usable,
// derives the effective camera set (camword minus badcamword minus cameras
// whose amplifiers are all bad), renders the job command from the configured
// template, attaches resource hints and dispatches the job. The row is only
// mutated after the queue accepted the job.
package submit
