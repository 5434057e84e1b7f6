package queuesync

import (
	"fmt"

	"nightproc/internal/proctable"
)

// QueueUnavailableError reports queue ids whose status could not be fetched
// because the queue was unreachable or the poll timed out. Rows using those
// ids were left unchanged.
type QueueUnavailableError struct {
	QueueIDs []int64
	Err      error
}

func (e *QueueUnavailableError) Error() string {
	return fmt.Sprintf("batch queue unavailable for %d job(s): %v", len(e.QueueIDs), e.Err)
}

func (e *QueueUnavailableError) Unwrap() error { return e.Err }

// ErrorKind implements proctable.ErrorClassifier.
func (e *QueueUnavailableError) ErrorKind() string { return proctable.KindTransient }
