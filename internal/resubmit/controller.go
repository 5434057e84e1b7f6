package resubmit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"nightproc/internal/dependency"
	"nightproc/internal/logging"
	"nightproc/internal/proctable"
	"nightproc/internal/queuesync"
	"nightproc/internal/submit"
)

// StatusSyncer refreshes row statuses; *queuesync.Syncer implements it.
type StatusSyncer interface {
	Sync(ctx context.Context, table *proctable.Table) (queuesync.Report, error)
}

// RowSubmitter dispatches rows; *submit.Submitter implements it.
type RowSubmitter interface {
	Ready(table *proctable.Table, row *proctable.Row) error
	Submit(ctx context.Context, table *proctable.Table, row *proctable.Row) (int64, error)
}

// Options control one pass.
type Options struct {
	// ResubmitStates are the failure subkinds reset and resubmitted. Nil
	// means proctable.DefaultResubmitStates.
	ResubmitStates proctable.StateSet
	// MaxSubmissions caps dispatches per pass; 0 means unlimited.
	MaxSubmissions int
	// DryRun plans and logs without resetting or dispatching anything.
	DryRun bool
}

// Dispatch is one row handed to the queue.
type Dispatch struct {
	Row     proctable.Key
	QueueID int64
	// Resubmitted is true when the row was reset from a failure.
	Resubmitted bool
}

// Skip is a frontier row left alone this pass.
type Skip struct {
	Row    proctable.Key
	Reason string
}

// Failure is a frontier row whose dispatch failed transiently.
type Failure struct {
	Row proctable.Key
	Err error
}

// Result summarises a pass.
type Result struct {
	// Planned is the frontier in dispatch order.
	Planned   []proctable.Key
	Submitted []Dispatch
	// WouldSubmit lists the rows a dry run would have dispatched.
	WouldSubmit []proctable.Key
	Skipped     []Skip
	Failed      []Failure
	// Capped is true when MaxSubmissions stopped the pass early.
	Capped bool
	Sync   queuesync.Report
	// SyncErr is the non-fatal sync failure, if any. The pass continued on
	// the statuses already in the table.
	SyncErr error
}

// NSubmitted is the number of rows actually dispatched.
func (r Result) NSubmitted() int { return len(r.Submitted) }

// Controller runs reconciliation passes.
type Controller struct {
	syncer    StatusSyncer
	submitter RowSubmitter
	logger    *slog.Logger
}

// New returns a Controller.
func New(syncer StatusSyncer, submitter RowSubmitter, logger *slog.Logger) *Controller {
	return &Controller{
		syncer:    syncer,
		submitter: submitter,
		logger:    logging.NewComponentLogger(logger, "resubmit"),
	}
}

// IsStructural reports whether err means the table cannot be trusted and the
// pass must end without persisting.
func IsStructural(err error) bool {
	return proctable.Kind(err) == proctable.KindStructural
}

// Run performs one pass over table. A structural error (a dependency cycle)
// is returned before anything is mutated. Transient sync and dispatch
// failures are reported in Result and do not fail the pass.
func (c *Controller) Run(ctx context.Context, table *proctable.Table, opts Options) (Result, error) {
	logger := logging.WithContext(ctx, c.logger)
	active := opts.ResubmitStates
	if active == nil {
		active = proctable.DefaultResubmitStates()
	}
	var result Result

	if err := dependency.CheckAcyclic(table); err != nil {
		return result, err
	}

	report, err := c.syncer.Sync(ctx, table)
	result.Sync = report
	if err != nil {
		if IsStructural(err) {
			return result, err
		}
		result.SyncErr = err
		logging.WarnWithContext(logger, "queue sync incomplete; continuing with known statuses", "sync_incomplete",
			logging.Error(err),
			logging.String(logging.FieldImpact, "rows whose status could not be refreshed are treated as unchanged"),
		)
	}

	plan, err := Plan(table, active)
	if err != nil {
		return result, err
	}
	result.Planned = plan
	onFrontier := make(map[proctable.Key]struct{}, len(plan))
	for _, key := range plan {
		onFrontier[key] = struct{}{}
	}

	dispatched := 0
	for _, key := range plan {
		row, _ := table.Find(key)

		if reason, blocked := frontierBlocker(row, onFrontier); blocked {
			c.skip(logger, &result, key, reason)
			continue
		}
		if err := c.readyAfterReset(table, row); err != nil {
			c.skip(logger, &result, key, reasonFor(err))
			continue
		}
		if opts.MaxSubmissions > 0 && dispatched >= opts.MaxSubmissions {
			result.Capped = true
			c.skip(logger, &result, key, "submission cap reached")
			continue
		}

		if opts.DryRun {
			dispatched++
			result.WouldSubmit = append(result.WouldSubmit, key)
			logger.Info("would submit",
				logging.Row(key),
				logging.Status(row.Status),
				logging.String(logging.FieldEventType, "dry_run_submit"),
			)
			continue
		}

		resubmitted := row.Status.IsFailure()
		if resubmitted {
			prior := row.Status
			if err := row.ResetForResubmission(active); err != nil {
				return result, err
			}
			logger.Info("row reset for resubmission",
				logging.Row(key),
				logging.String("from", string(prior)),
				logging.Int("n_submissions", row.NSubmissions),
				logging.String(logging.FieldEventType, "row_reset"),
			)
		}

		queueID, err := c.submitter.Submit(ctx, table, row)
		dispatched++
		if err != nil {
			if proctable.Kind(err) != proctable.KindTransient && !isNotReady(err) {
				return result, fmt.Errorf("submit %s: %w", key, err)
			}
			result.Failed = append(result.Failed, Failure{Row: key, Err: err})
			logging.WarnWithContext(logger, "submission failed; row left unsubmitted", "submit_failed",
				logging.Row(key),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check sbatch output and queue health"),
				logging.String(logging.FieldImpact, "row retried on the next pass"),
			)
			continue
		}
		result.Submitted = append(result.Submitted, Dispatch{Row: key, QueueID: queueID, Resubmitted: resubmitted})
	}

	logger.Info("resubmission pass complete",
		logging.Int("planned", len(result.Planned)),
		logging.Int("submitted", len(result.Submitted)),
		logging.Int("would_submit", len(result.WouldSubmit)),
		logging.Int("skipped", len(result.Skipped)),
		logging.Int("failed", len(result.Failed)),
		logging.Bool("capped", result.Capped),
		logging.Bool("dry_run", opts.DryRun),
		logging.String(logging.FieldEventType, "pass_complete"),
	)
	return result, nil
}

// Plan returns the frontier of table ordered so that each row follows every
// frontier row it depends on, directly or through other rows.
func Plan(table *proctable.Table, active proctable.StateSet) ([]proctable.Key, error) {
	var roots []proctable.Key
	frontier := make(map[proctable.Key]struct{})
	for _, row := range table.Rows() {
		if OnFrontier(row, active) {
			roots = append(roots, row.Key())
			frontier[row.Key()] = struct{}{}
		}
	}
	order, err := dependency.Walk(table, roots)
	if err != nil {
		return nil, err
	}
	plan := make([]proctable.Key, 0, len(roots))
	for _, key := range order {
		if _, ok := frontier[key]; ok {
			plan = append(plan, key)
		}
	}
	return plan, nil
}

// OnFrontier reports whether row is eligible for (re)submission under active.
func OnFrontier(row *proctable.Row, active proctable.StateSet) bool {
	if row.Status == proctable.StatusUnsubmitted {
		return true
	}
	return row.Status.IsFailure() && active.Contains(row.Status)
}

func frontierBlocker(row *proctable.Row, onFrontier map[proctable.Key]struct{}) (string, bool) {
	for _, dep := range row.Dependencies {
		if _, ok := onFrontier[dep]; ok {
			return "waiting on dependency " + dep.String() + " (on this pass's frontier)", true
		}
	}
	return "", false
}

// readyAfterReset checks readiness as if a failed row had already been reset,
// so a dry run and a blocked row never mutate anything.
func (c *Controller) readyAfterReset(table *proctable.Table, row *proctable.Row) error {
	if row.Status == proctable.StatusUnsubmitted {
		return c.submitter.Ready(table, row)
	}
	probe := row.Clone()
	probe.Status = proctable.StatusUnsubmitted
	return c.submitter.Ready(table, probe)
}

func (c *Controller) skip(logger *slog.Logger, result *Result, key proctable.Key, reason string) {
	result.Skipped = append(result.Skipped, Skip{Row: key, Reason: reason})
	logger.Info("row skipped",
		logging.Row(key),
		logging.String("reason", reason),
		logging.String(logging.FieldEventType, "row_skipped"),
	)
}

func isNotReady(err error) bool {
	var notReady *submit.DependencyNotReadyError
	return errors.As(err, &notReady)
}

func reasonFor(err error) string {
	var notReady *submit.DependencyNotReadyError
	if errors.As(err, &notReady) {
		if notReady.Dependency == (proctable.Key{}) {
			return notReady.Reason
		}
		return "dependency " + notReady.Dependency.String() + " " + notReady.Reason
	}
	return err.Error()
}
