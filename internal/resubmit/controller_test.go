package resubmit_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"nightproc/internal/batch"
	"nightproc/internal/config"
	"nightproc/internal/dependency"
	"nightproc/internal/logging"
	"nightproc/internal/proctable"
	"nightproc/internal/queuesync"
	"nightproc/internal/resubmit"
	"nightproc/internal/submit"
	"nightproc/internal/testsupport"
)

func newController(t *testing.T, queue *testsupport.FakeQueue) *resubmit.Controller {
	t.Helper()
	syncer := queuesync.New(queue, queuesync.Options{Timeout: time.Second}, logging.NewNop())
	submitter, err := submit.New(queue, submit.Options{CommandTemplate: config.Default().Jobs.CommandTemplate}, logging.NewNop())
	if err != nil {
		t.Fatalf("submit.New: %v", err)
	}
	return resubmit.New(syncer, submitter, logging.NewNop())
}

func nodeFail() proctable.StateSet { return proctable.NewStateSet(proctable.StatusNodeFail) }

func TestFailedDependencyIsResubmittedAndDependentWaits(t *testing.T) {
	queue := testsupport.NewFakeQueue(500)
	flat := testsupport.NewRow(proctable.JobNightlyFlat, []int{1, 2}, testsupport.WithStatus(proctable.StatusNodeFail, 10))
	sci := testsupport.NewRow(proctable.JobScience, []int{3}, testsupport.WithDeps(flat.Key()))
	table := testsupport.NewTable(t, flat, sci)
	queue.SetState(10, "NODE_FAIL")

	result, err := newController(t, queue).Run(context.Background(), table, resubmit.Options{ResubmitStates: nodeFail()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.NSubmitted() != 1 || result.Submitted[0].Row != flat.Key() || !result.Submitted[0].Resubmitted {
		t.Fatalf("expected only the flat resubmitted, got %+v", result.Submitted)
	}
	if flat.Status != proctable.StatusSubmitted || flat.NSubmissions != 2 {
		t.Fatalf("flat: status %s n=%d", flat.Status, flat.NSubmissions)
	}
	if !slices.Equal(flat.QueueIDs, []int64{10, 500}) || flat.LatestQueueID != 500 {
		t.Fatalf("flat queue history %v latest %d", flat.QueueIDs, flat.LatestQueueID)
	}
	if sci.Status != proctable.StatusUnsubmitted || sci.NSubmissions != 0 {
		t.Fatalf("science should wait: status %s n=%d", sci.Status, sci.NSubmissions)
	}
	if len(result.Skipped) != 1 || result.Skipped[0].Row != sci.Key() {
		t.Fatalf("expected science skipped, got %+v", result.Skipped)
	}
	if !slices.Equal(result.Planned, []proctable.Key{flat.Key(), sci.Key()}) {
		t.Fatalf("unexpected plan %v", result.Planned)
	}
}

func TestCompletedDependencyReleasesDependentSamePass(t *testing.T) {
	queue := testsupport.NewFakeQueue(500)
	flat := testsupport.NewRow(proctable.JobNightlyFlat, []int{1, 2}, testsupport.WithStatus(proctable.StatusRunning, 10))
	sci := testsupport.NewRow(proctable.JobScience, []int{3}, testsupport.WithDeps(flat.Key()))
	table := testsupport.NewTable(t, flat, sci)
	// The sync at the start of the pass observes the flat finishing.
	queue.SetState(10, "COMPLETED")

	result, err := newController(t, queue).Run(context.Background(), table, resubmit.Options{ResubmitStates: nodeFail()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if flat.Status != proctable.StatusCompleted {
		t.Fatalf("flat not synced: %s", flat.Status)
	}
	if result.NSubmitted() != 1 || sci.Status != proctable.StatusSubmitted || sci.NSubmissions != 1 {
		t.Fatalf("science not submitted: %+v status %s", result.Submitted, sci.Status)
	}
}

func TestSubmissionCapLeavesRemainderForNextPass(t *testing.T) {
	queue := testsupport.NewFakeQueue(500)
	first := testsupport.NewRow(proctable.JobArc, []int{1})
	second := testsupport.NewRow(proctable.JobArc, []int{2})
	table := testsupport.NewTable(t, first, second)
	controller := newController(t, queue)

	result, err := controller.Run(context.Background(), table, resubmit.Options{MaxSubmissions: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.NSubmitted() != 1 || !result.Capped {
		t.Fatalf("expected exactly one dispatch and a cap, got %+v", result)
	}
	if first.Status != proctable.StatusSubmitted || second.Status != proctable.StatusUnsubmitted {
		t.Fatalf("unexpected statuses %s %s", first.Status, second.Status)
	}

	result, err = controller.Run(context.Background(), table, resubmit.Options{MaxSubmissions: 1})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if result.NSubmitted() != 1 || second.Status != proctable.StatusSubmitted {
		t.Fatalf("second pass should pick up the remainder: %+v", result.Submitted)
	}
}

func TestRepeatedPassesAreIdempotentAndCountersMonotonic(t *testing.T) {
	queue := testsupport.NewFakeQueue(500)
	psf := testsupport.NewRow(proctable.JobPSFNight, []int{1, 2})
	flat := testsupport.NewRow(proctable.JobNightlyFlat, []int{3, 4}, testsupport.WithDeps(psf.Key()))
	sci := testsupport.NewRow(proctable.JobScience, []int{5}, testsupport.WithDeps(flat.Key()))
	table := testsupport.NewTable(t, psf, flat, sci)
	controller := newController(t, queue)

	counters := func() []int {
		out := make([]int, 0, table.Len())
		for _, row := range table.Rows() {
			out = append(out, row.NSubmissions)
		}
		return out
	}
	pass := func() resubmit.Result {
		t.Helper()
		before := counters()
		result, err := controller.Run(context.Background(), table, resubmit.Options{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		for i, n := range counters() {
			if n < before[i] {
				t.Fatalf("n_submissions decreased for row %d: %d -> %d", i, before[i], n)
			}
		}
		return result
	}

	if r := pass(); r.NSubmitted() != 1 || r.Submitted[0].Row != psf.Key() {
		t.Fatalf("first pass should submit only the psf: %+v", r.Submitted)
	}
	if r := pass(); r.NSubmitted() != 0 {
		t.Fatalf("no queue progress must mean no new submissions: %+v", r.Submitted)
	}

	queue.SetState(psf.LatestQueueID, "COMPLETED")
	if r := pass(); r.NSubmitted() != 1 || r.Submitted[0].Row != flat.Key() {
		t.Fatalf("third pass should submit the flat: %+v", r.Submitted)
	}
	// The flat times out and is resubmitted; science keeps waiting.
	queue.SetState(flat.LatestQueueID, "TIMEOUT")
	if r := pass(); r.NSubmitted() != 1 || flat.NSubmissions != 2 {
		t.Fatalf("timeout should be resubmitted: %+v n=%d", r.Submitted, flat.NSubmissions)
	}
	queue.SetState(flat.LatestQueueID, "COMPLETED")
	if r := pass(); r.NSubmitted() != 1 || sci.Status != proctable.StatusSubmitted {
		t.Fatalf("science should finally run: %+v", r.Submitted)
	}
	if r := pass(); r.NSubmitted() != 0 {
		t.Fatalf("settled table must be idle: %+v", r.Submitted)
	}
}

func TestCycleAbortsBeforeMutation(t *testing.T) {
	queue := testsupport.NewFakeQueue(500)
	x := testsupport.NewRow(proctable.JobNightlyFlat, []int{1})
	y := testsupport.NewRow(proctable.JobScience, []int{2}, testsupport.WithDeps(x.Key()))
	x.Dependencies = []proctable.Key{y.Key()}
	running := testsupport.NewRow(proctable.JobArc, []int{3}, testsupport.WithStatus(proctable.StatusRunning, 9))
	table := testsupport.NewTable(t, x, y, running)
	queue.SetState(9, "COMPLETED")
	snapshot := table.Clone()

	_, err := newController(t, queue).Run(context.Background(), table, resubmit.Options{})
	var cycle *dependency.DependencyCycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected DependencyCycleError, got %v", err)
	}
	if !resubmit.IsStructural(err) {
		t.Fatal("cycle must be structural")
	}
	if !table.Equal(snapshot) {
		t.Fatal("table mutated despite cycle")
	}
	if len(queue.Polls()) != 0 || len(queue.Submitted()) != 0 {
		t.Fatal("no external calls expected on a structural failure")
	}
}

func TestDryRunChangesNothing(t *testing.T) {
	queue := testsupport.NewFakeQueue(500)
	flat := testsupport.NewRow(proctable.JobNightlyFlat, []int{1}, testsupport.WithStatus(proctable.StatusNodeFail, 10))
	arc := testsupport.NewRow(proctable.JobArc, []int{2})
	table := testsupport.NewTable(t, flat, arc)
	queue.SetState(10, "NODE_FAIL")
	snapshot := table.Clone()

	result, err := newController(t, queue).Run(context.Background(), table, resubmit.Options{ResubmitStates: nodeFail(), DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.NSubmitted() != 0 || len(queue.Submitted()) != 0 {
		t.Fatalf("dry run dispatched: %+v", result.Submitted)
	}
	if !slices.Equal(result.WouldSubmit, []proctable.Key{flat.Key(), arc.Key()}) {
		t.Fatalf("unexpected would-submit list %v", result.WouldSubmit)
	}
	if !table.Equal(snapshot) {
		t.Fatal("dry run mutated the table")
	}
}

func TestPermanentFailureBlocksDependents(t *testing.T) {
	queue := testsupport.NewFakeQueue(500)
	flat := testsupport.NewRow(proctable.JobNightlyFlat, []int{1}, testsupport.WithStatus(proctable.StatusTimeout, 10))
	sci := testsupport.NewRow(proctable.JobScience, []int{2}, testsupport.WithDeps(flat.Key()))
	ghost := proctable.NewKey(proctable.JobPSFNight, []int{42}, proctable.NoTile)
	orphan := testsupport.NewRow(proctable.JobFlat, []int{3}, testsupport.WithDeps(ghost))
	table := testsupport.NewTable(t, flat, sci, orphan)
	queue.SetState(10, "TIMEOUT")

	result, err := newController(t, queue).Run(context.Background(), table, resubmit.Options{ResubmitStates: nodeFail()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.NSubmitted() != 0 || flat.Status != proctable.StatusTimeout {
		t.Fatalf("TIMEOUT outside the active set must stay put: %+v %s", result.Submitted, flat.Status)
	}
	if len(result.Skipped) != 2 {
		t.Fatalf("expected science and orphan skipped, got %+v", result.Skipped)
	}
	for _, skip := range result.Skipped {
		if !strings.Contains(skip.Reason, "dependency") {
			t.Fatalf("skip reason should name the dependency: %q", skip.Reason)
		}
	}
}

func TestTransientFailuresAreAbsorbed(t *testing.T) {
	queue := testsupport.NewFakeQueue(500)
	broken := testsupport.NewRow(proctable.JobArc, []int{1}, testsupport.WithStatus(proctable.StatusPreempted, 10))
	healthy := testsupport.NewRow(proctable.JobArc, []int{2})
	inFlight := testsupport.NewRow(proctable.JobDark, []int{9}, testsupport.WithStatus(proctable.StatusRunning, 11))
	table := testsupport.NewTable(t, broken, healthy, inFlight)
	queue.PollHook = func(ctx context.Context, ids []int64) error { return testsupport.ErrQueueDown }
	queue.SubmitHook = func(ctx context.Context, spec batch.JobSpec) error {
		if slices.Contains(spec.ExpIDs, 1) {
			return testsupport.ErrQueueDown
		}
		return nil
	}

	result, err := newController(t, queue).Run(context.Background(), table, resubmit.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var unavailable *queuesync.QueueUnavailableError
	if !errors.As(result.SyncErr, &unavailable) {
		t.Fatalf("expected sync error recorded, got %v", result.SyncErr)
	}
	if len(result.Failed) != 1 || result.Failed[0].Row != broken.Key() {
		t.Fatalf("expected one transient failure, got %+v", result.Failed)
	}
	if broken.Status != proctable.StatusUnsubmitted || broken.NSubmissions != 1 {
		t.Fatalf("failed resubmission should leave the row unsubmitted with its count: %s n=%d", broken.Status, broken.NSubmissions)
	}
	if result.NSubmitted() != 1 || healthy.Status != proctable.StatusSubmitted {
		t.Fatalf("healthy row should still be submitted: %+v", result.Submitted)
	}
	if inFlight.Status != proctable.StatusRunning {
		t.Fatalf("unpolled row changed: %s", inFlight.Status)
	}
}
