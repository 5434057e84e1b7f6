package queuesync_test

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"nightproc/internal/logging"
	"nightproc/internal/proctable"
	"nightproc/internal/queuesync"
	"nightproc/internal/testsupport"
)

func activeTable(t *testing.T, queue *testsupport.FakeQueue, states map[int64]string) *proctable.Table {
	t.Helper()
	var rows []*proctable.Row
	for i, id := range slices.Sorted(maps.Keys(states)) {
		status := proctable.StatusSubmitted
		if i%2 == 1 {
			status = proctable.StatusRunning
		}
		rows = append(rows, testsupport.NewRow(proctable.JobScience, []int{int(id)}, testsupport.WithStatus(status, id)))
		queue.SetState(id, states[id])
	}
	return testsupport.NewTable(t, rows...)
}

func TestSyncAppliesObservedStates(t *testing.T) {
	queue := testsupport.NewFakeQueue(100)
	submitted := testsupport.NewRow(proctable.JobArc, []int{1}, testsupport.WithStatus(proctable.StatusSubmitted, 10))
	running := testsupport.NewRow(proctable.JobFlat, []int{2}, testsupport.WithStatus(proctable.StatusRunning, 11))
	pending := testsupport.NewRow(proctable.JobScience, []int{3}, testsupport.WithStatus(proctable.StatusPending, 12))
	done := testsupport.NewRow(proctable.JobScience, []int{4}, testsupport.WithStatus(proctable.StatusCompleted, 13))
	fresh := testsupport.NewRow(proctable.JobScience, []int{5})
	table := testsupport.NewTable(t, submitted, running, pending, done, fresh)

	queue.SetState(10, "RUNNING")
	queue.SetState(11, "COMPLETED")
	queue.SetState(12, "NODE_FAIL+")
	queue.SetState(13, "FAILED")

	syncer := queuesync.New(queue, queuesync.Options{}, logging.NewNop())
	report, err := syncer.Sync(context.Background(), table)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Polled != 3 || len(report.Updated) != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
	for key, want := range map[proctable.Key]proctable.Status{
		submitted.Key(): proctable.StatusRunning,
		running.Key():   proctable.StatusCompleted,
		pending.Key():   proctable.StatusNodeFail,
		done.Key():      proctable.StatusCompleted,
		fresh.Key():     proctable.StatusUnsubmitted,
	} {
		if got := testsupport.MustFind(t, table, key).Status; got != want {
			t.Fatalf("%s: status %s, want %s", key, got, want)
		}
	}
	polls := queue.Polls()
	if len(polls) != 1 || !slices.Equal(polls[0], []int64{10, 11, 12}) {
		t.Fatalf("expected one poll of the active ids, got %v", polls)
	}

	// A second sync with no queue progress changes nothing.
	report, err = syncer.Sync(context.Background(), table)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if len(report.Updated) != 0 || report.Unchanged != 1 {
		t.Fatalf("expected an idle second sync, got %+v", report)
	}
}

func TestSyncChunksAndBoundsConcurrency(t *testing.T) {
	queue := testsupport.NewFakeQueue(100)
	states := map[int64]string{}
	for id := int64(1); id <= 7; id++ {
		states[id] = "PENDING"
	}
	table := activeTable(t, queue, states)

	var inFlight, peak atomic.Int32
	queue.PollHook = func(ctx context.Context, ids []int64) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return nil
	}

	syncer := queuesync.New(queue, queuesync.Options{BatchSize: 2, Concurrency: 2}, nil)
	report, err := syncer.Sync(context.Background(), table)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Polled != 7 {
		t.Fatalf("expected 7 polled ids, got %d", report.Polled)
	}
	polls := queue.Polls()
	if len(polls) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(polls))
	}
	for _, chunk := range polls {
		if len(chunk) > 2 {
			t.Fatalf("chunk exceeds batch size: %v", chunk)
		}
	}
	if peak.Load() > 2 {
		t.Fatalf("concurrency limit exceeded: %d", peak.Load())
	}
	for _, row := range table.Rows() {
		if row.Status != proctable.StatusPending {
			t.Fatalf("%s: expected PENDING, got %s", row.Key(), row.Status)
		}
	}
}

func TestSyncQueueUnavailableLeavesRowsUnchanged(t *testing.T) {
	queue := testsupport.NewFakeQueue(100)
	table := activeTable(t, queue, map[int64]string{10: "COMPLETED", 11: "COMPLETED"})
	queue.PollHook = func(ctx context.Context, ids []int64) error {
		if slices.Contains(ids, 11) {
			return testsupport.ErrQueueDown
		}
		return nil
	}

	syncer := queuesync.New(queue, queuesync.Options{BatchSize: 1}, nil)
	report, err := syncer.Sync(context.Background(), table)
	var unavailable *queuesync.QueueUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected QueueUnavailableError, got %v", err)
	}
	if !slices.Equal(unavailable.QueueIDs, []int64{11}) {
		t.Fatalf("unexpected failed ids %v", unavailable.QueueIDs)
	}
	if !errors.Is(err, testsupport.ErrQueueDown) {
		t.Fatalf("cause not wrapped: %v", err)
	}
	if proctable.Kind(err) != proctable.KindTransient {
		t.Fatalf("expected transient kind, got %q", proctable.Kind(err))
	}
	if len(report.Updated) != 1 {
		t.Fatalf("expected the healthy chunk applied, got %+v", report)
	}
	rows := table.Rows()
	if rows[0].Status != proctable.StatusCompleted {
		t.Fatalf("healthy row not updated: %s", rows[0].Status)
	}
	if rows[1].Status != proctable.StatusRunning {
		t.Fatalf("row of failed chunk changed: %s", rows[1].Status)
	}
}

func TestSyncTimeoutIsQueueUnavailable(t *testing.T) {
	queue := testsupport.NewFakeQueue(100)
	table := activeTable(t, queue, map[int64]string{10: "RUNNING"})
	queue.PollHook = func(ctx context.Context, ids []int64) error {
		<-ctx.Done()
		return ctx.Err()
	}

	syncer := queuesync.New(queue, queuesync.Options{Timeout: 20 * time.Millisecond}, nil)
	_, err := syncer.Sync(context.Background(), table)
	var unavailable *queuesync.QueueUnavailableError
	if !errors.As(err, &unavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout as QueueUnavailableError, got %v", err)
	}
	if table.Rows()[0].Status != proctable.StatusSubmitted {
		t.Fatalf("row changed despite timeout: %s", table.Rows()[0].Status)
	}
}

func TestSyncRejectsUnknownStates(t *testing.T) {
	queue := testsupport.NewFakeQueue(100)
	bogus := testsupport.NewRow(proctable.JobArc, []int{1}, testsupport.WithStatus(proctable.StatusPending, 20))
	vanished := testsupport.NewRow(proctable.JobArc, []int{2}, testsupport.WithStatus(proctable.StatusRunning, 21))
	orphan := testsupport.NewRow(proctable.JobArc, []int{3}, testsupport.WithStatus(proctable.StatusSubmitted))
	orphan.NSubmissions = 1
	table := testsupport.NewTable(t, bogus, vanished, orphan)
	queue.SetState(20, "MELTED")

	report, err := queuesync.New(queue, queuesync.Options{}, nil).Sync(context.Background(), table)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(report.Rejected) != 2 {
		t.Fatalf("expected 2 rejections, got %+v", report.Rejected)
	}
	if !slices.Equal(report.Unknown, []int64{21}) {
		t.Fatalf("expected 21 unknown, got %v", report.Unknown)
	}
	if len(report.Updated) != 0 {
		t.Fatalf("nothing should update, got %+v", report.Updated)
	}
	if bogus.Status != proctable.StatusPending {
		t.Fatalf("unknown state applied: %s", bogus.Status)
	}
}
