package queuesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"nightproc/internal/batch"
	"nightproc/internal/logging"
	"nightproc/internal/proctable"
)

const (
	defaultBatchSize   = 50
	defaultConcurrency = 4
	defaultTimeout     = 2 * time.Minute
)

// Options bound the external calls made by a sync.
type Options struct {
	// BatchSize is the maximum number of queue ids per poll call.
	BatchSize int
	// Concurrency is the maximum number of poll calls in flight.
	Concurrency int
	// Timeout applies to each poll call.
	Timeout time.Duration
}

// Syncer refreshes row statuses from a batch queue.
type Syncer struct {
	client batch.Client
	opts   Options
	logger *slog.Logger
}

// New returns a Syncer polling client. Zero options take package defaults.
func New(client batch.Client, opts Options, logger *slog.Logger) *Syncer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Syncer{
		client: client,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "queuesync"),
	}
}

// Change is one applied status update.
type Change struct {
	Row     proctable.Key
	QueueID int64
	From    proctable.Status
	To      proctable.Status
}

// Rejection is an observed queue state that could not be applied.
type Rejection struct {
	Row      proctable.Key
	QueueID  int64
	Observed string
	Reason   string
}

// Report summarises one sync.
type Report struct {
	// Polled counts the distinct queue ids sent to the queue.
	Polled    int
	Updated   []Change
	Unchanged int
	Rejected  []Rejection
	// Unknown lists polled ids the queue did not report on.
	Unknown []int64
}

type chunkResult struct {
	ids    []int64
	states map[int64]string
	err    error
}

// Sync polls every active row and applies the observed states in table
// order. It mutates rows in place and never persists. When some chunks could
// not be polled the returned error is a *QueueUnavailableError and the
// report covers the chunks that succeeded.
func (s *Syncer) Sync(ctx context.Context, table *proctable.Table) (Report, error) {
	logger := logging.WithContext(ctx, s.logger)
	var report Report

	owners := make(map[int64][]*proctable.Row)
	var ids []int64
	for _, row := range table.Rows() {
		if !row.Status.IsActive() {
			continue
		}
		if row.LatestQueueID <= 0 {
			report.Rejected = append(report.Rejected, Rejection{
				Row: row.Key(), Reason: "active row has no queue id",
			})
			continue
		}
		if _, seen := owners[row.LatestQueueID]; !seen {
			ids = append(ids, row.LatestQueueID)
		}
		owners[row.LatestQueueID] = append(owners[row.LatestQueueID], row)
	}
	if len(ids) == 0 {
		s.logRejections(logger, report.Rejected)
		return report, nil
	}
	slices.Sort(ids)
	report.Polled = len(ids)

	results := s.poll(ctx, ids)

	var (
		failedIDs []int64
		errs      []error
	)
	for _, res := range results {
		if res.err != nil {
			failedIDs = append(failedIDs, res.ids...)
			errs = append(errs, res.err)
			continue
		}
		for _, id := range res.ids {
			raw, ok := res.states[id]
			if !ok {
				report.Unknown = append(report.Unknown, id)
				continue
			}
			for _, row := range owners[id] {
				s.apply(&report, row, id, raw)
			}
		}
	}

	for _, change := range report.Updated {
		logger.Info("row status updated",
			logging.Row(change.Row),
			logging.QueueID(change.QueueID),
			logging.String("from", string(change.From)),
			logging.Status(change.To),
			logging.String(logging.FieldEventType, "status_updated"),
		)
	}
	s.logRejections(logger, report.Rejected)
	if len(report.Unknown) > 0 {
		logger.Debug("queue did not report some jobs", logging.Any("queue_ids", report.Unknown))
	}

	if len(failedIDs) > 0 {
		err := &QueueUnavailableError{QueueIDs: failedIDs, Err: errors.Join(errs...)}
		logging.WarnWithContext(logger, "queue poll failed; affected rows unchanged", "queue_poll_failed",
			logging.Int("failed_ids", len(failedIDs)),
			logging.Error(err.Err),
			logging.String(logging.FieldErrorHint, "check sacct availability and slurmdbd health"),
			logging.String(logging.FieldImpact, "statuses of affected rows are stale this pass"),
		)
		return report, err
	}
	logger.Debug("queue sync complete",
		logging.Int("polled", report.Polled),
		logging.Int("updated", len(report.Updated)),
		logging.Int("rejected", len(report.Rejected)),
	)
	return report, nil
}

// poll issues the chunked poll calls. Results come back in chunk order
// regardless of completion order.
func (s *Syncer) poll(ctx context.Context, ids []int64) []chunkResult {
	chunks := slices.Collect(slices.Chunk(ids, s.opts.BatchSize))
	results := make([]chunkResult, len(chunks))

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
			defer cancel()
			states, err := s.client.Poll(callCtx, chunk)
			if err != nil {
				err = fmt.Errorf("poll %d job(s): %w", len(chunk), err)
			}
			results[i] = chunkResult{ids: chunk, states: states, err: err}
			// Chunks fail independently; the group never cancels siblings.
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Syncer) apply(report *Report, row *proctable.Row, id int64, raw string) {
	observed, ok := proctable.ParseQueueState(raw)
	if !ok {
		report.Rejected = append(report.Rejected, Rejection{
			Row: row.Key(), QueueID: id, Observed: raw, Reason: "unrecognised queue state",
		})
		return
	}
	if observed == row.Status {
		report.Unchanged++
		return
	}
	from := row.Status
	if err := row.Transition(observed); err != nil {
		report.Rejected = append(report.Rejected, Rejection{
			Row: row.Key(), QueueID: id, Observed: raw, Reason: err.Error(),
		})
		return
	}
	report.Updated = append(report.Updated, Change{Row: row.Key(), QueueID: id, From: from, To: observed})
}

func (s *Syncer) logRejections(logger *slog.Logger, rejected []Rejection) {
	for _, r := range rejected {
		logging.WarnWithContext(logger, "queue state not applied", "status_rejected",
			logging.String(logging.FieldRow, r.Row.String()),
			logging.QueueID(r.QueueID),
			logging.String("observed", r.Observed),
			logging.String("reason", r.Reason),
			logging.String(logging.FieldErrorHint, "inspect the job with sacct -j <queue_id>"),
			logging.String(logging.FieldImpact, "row keeps its previous status"),
		)
	}
}
