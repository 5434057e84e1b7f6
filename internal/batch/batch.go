package batch

import (
	"context"
	"time"
)

// Client talks to a batch queue.
type Client interface {
	Submit(ctx context.Context, spec JobSpec) (int64, error)
	// Poll returns the raw queue state for each id the queue knows about.
	// Ids missing from the result are unknown to the queue.
	Poll(ctx context.Context, queueIDs []int64) (map[int64]string, error)
}

// Resources are the scheduling hints attached to a job.
type Resources struct {
	Nodes   int
	Cores   int
	Runtime time.Duration
}

// JobSpec is everything a backend needs to dispatch one processing job.
type JobSpec struct {
	Name        string
	Night       int
	JobDesc     string
	ExpIDs      []int
	TileID      int
	Cameras     string
	BadAmps     string
	Command     string
	Partition   string
	Account     string
	Reservation string
	Resources   Resources
}
