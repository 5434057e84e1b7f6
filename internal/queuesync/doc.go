// Package queuesync refreshes processing row statuses from the batch queue.
//
// A Syncer collects the latest queue id of every row the queue still owns
// (SUBMITTED, PENDING, RUNNING), polls the queue in bounded, concurrent
// chunks and merges the observed states back into the table sequentially,
// so every decision made after a sync sees one consistent snapshot. Rows
// whose chunk could not be polled keep their status.
package queuesync
