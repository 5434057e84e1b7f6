package testsupport

import (
	"context"
	"errors"
	"slices"
	"sync"

	"nightproc/internal/batch"
)

// ErrQueueDown is a convenient failure for scripted hooks.
var ErrQueueDown = errors.New("queue unreachable")

// FakeQueue is an in-memory batch.Client. Submitted jobs are assigned
// increasing ids and start PENDING; tests move them with SetState.
type FakeQueue struct {
	mu        sync.Mutex
	nextID    int64
	states    map[int64]string
	submitted []batch.JobSpec
	polls     [][]int64

	// SubmitHook, when set, runs before each dispatch; an error fails it.
	SubmitHook func(ctx context.Context, spec batch.JobSpec) error
	// PollHook, when set, runs before each poll; an error fails it.
	PollHook func(ctx context.Context, ids []int64) error
}

// NewFakeQueue returns a queue whose first job id is firstID.
func NewFakeQueue(firstID int64) *FakeQueue {
	return &FakeQueue{nextID: firstID, states: make(map[int64]string)}
}

func (q *FakeQueue) Submit(ctx context.Context, spec batch.JobSpec) (int64, error) {
	if q.SubmitHook != nil {
		if err := q.SubmitHook(ctx, spec); err != nil {
			return 0, err
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.nextID
	q.nextID++
	q.states[id] = "PENDING"
	spec.ExpIDs = slices.Clone(spec.ExpIDs)
	q.submitted = append(q.submitted, spec)
	return id, nil
}

func (q *FakeQueue) Poll(ctx context.Context, ids []int64) (map[int64]string, error) {
	if q.PollHook != nil {
		if err := q.PollHook(ctx, ids); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.polls = append(q.polls, slices.Clone(ids))
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		if state, ok := q.states[id]; ok {
			out[id] = state
		}
	}
	return out, nil
}

// SetState sets the raw queue state reported for id.
func (q *FakeQueue) SetState(id int64, state string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.states[id] = state
}

// Submitted returns the dispatched specs in order.
func (q *FakeQueue) Submitted() []batch.JobSpec {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.submitted)
}

// Polls returns the id chunks passed to Poll in call order.
func (q *FakeQueue) Polls() [][]int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([][]int64, len(q.polls))
	for i, chunk := range q.polls {
		out[i] = slices.Clone(chunk)
	}
	return out
}
