package submit

import (
	"context"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"nightproc/internal/batch"
	"nightproc/internal/camword"
	"nightproc/internal/logging"
	"nightproc/internal/proctable"
)

const (
	defaultCoresPerNode = 64
	defaultTimeout      = time.Minute
)

// Options configure a Submitter.
type Options struct {
	CommandTemplate string
	Partition       string
	Account         string
	Reservation     string
	CoresPerNode    int
	// Timeout applies to each dispatch.
	Timeout time.Duration
	// Now stamps submissions. Nil means time.Now.
	Now func() time.Time
}

// Submitter dispatches rows to a batch queue.
type Submitter struct {
	client batch.Client
	opts   Options
	tmpl   *template.Template
	logger *slog.Logger
}

// New returns a Submitter. It fails when the command template does not parse.
func New(client batch.Client, opts Options, logger *slog.Logger) (*Submitter, error) {
	tmpl, err := ParseCommandTemplate(opts.CommandTemplate)
	if err != nil {
		return nil, err
	}
	if opts.CoresPerNode <= 0 {
		opts.CoresPerNode = defaultCoresPerNode
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Submitter{
		client: client,
		opts:   opts,
		tmpl:   tmpl,
		logger: logging.NewComponentLogger(logger, "submit"),
	}, nil
}

// Ready reports whether row may be submitted now: it is UNSUBMITTED and every
// dependency has been seen COMPLETED. A dependency that is still queued or
// running blocks the row until a later sync observes its completion. The
// error is a *DependencyNotReadyError naming the first blocker.
func (s *Submitter) Ready(table *proctable.Table, row *proctable.Row) error {
	if row.Status != proctable.StatusUnsubmitted {
		return &DependencyNotReadyError{Row: row.Key(), Status: row.Status, Reason: "status is " + string(row.Status)}
	}
	for _, key := range row.Dependencies {
		dep, ok := table.Find(key)
		if !ok {
			return &DependencyNotReadyError{Row: row.Key(), Dependency: key, Reason: "is not in the table"}
		}
		if dep.Status != proctable.StatusCompleted {
			return &DependencyNotReadyError{Row: row.Key(), Dependency: key, Status: dep.Status, Reason: "is " + string(dep.Status)}
		}
	}
	return nil
}

// Spec builds the job request for row without dispatching it.
func (s *Submitter) Spec(table *proctable.Table, row *proctable.Row) (batch.JobSpec, error) {
	if err := s.Ready(table, row); err != nil {
		return batch.JobSpec{}, err
	}
	cameras, err := camword.Effective(row.Camword, row.BadCamword, row.BadAmps)
	if err != nil {
		return batch.JobSpec{}, fmt.Errorf("row %s: %w", row.Key(), err)
	}
	if cameras.IsEmpty() {
		return batch.JobSpec{}, fmt.Errorf("row %s: %w", row.Key(), ErrNoCameras)
	}

	word := cameras.String()
	name := JobName(row.JobDesc, row.Night, row.FirstExpID(), word)
	command, err := renderCommand(s.tmpl, CommandData{
		Name:     name,
		Night:    row.Night,
		JobDesc:  string(row.JobDesc),
		ObsType:  row.ObsType,
		ExpIDs:   row.ExpIDs,
		TileID:   row.TileID,
		Cameras:  word,
		BadAmps:  row.BadAmps,
		JointFit: row.JobDesc.IsJointFit(),
	})
	if err != nil {
		return batch.JobSpec{}, fmt.Errorf("row %s: %w", row.Key(), err)
	}

	return batch.JobSpec{
		Name:        name,
		Night:       row.Night,
		JobDesc:     string(row.JobDesc),
		ExpIDs:      append([]int(nil), row.ExpIDs...),
		TileID:      row.TileID,
		Cameras:     word,
		BadAmps:     row.BadAmps,
		Command:     command,
		Partition:   s.opts.Partition,
		Account:     s.opts.Account,
		Reservation: s.opts.Reservation,
		Resources:   Resources(row.JobDesc, cameras.Len(), len(row.ExpIDs), s.opts.CoresPerNode),
	}, nil
}

// Submit dispatches row and records the new queue id on success. Readiness
// failures return *DependencyNotReadyError; build and dispatch failures
// return *SubmissionError. In both cases row is unchanged.
func (s *Submitter) Submit(ctx context.Context, table *proctable.Table, row *proctable.Row) (int64, error) {
	spec, err := s.Spec(table, row)
	if err != nil {
		if proctable.Kind(err) == proctable.KindInvariant {
			return 0, err
		}
		return 0, &SubmissionError{Row: row.Key(), Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	queueID, err := s.client.Submit(callCtx, spec)
	if err != nil {
		return 0, &SubmissionError{Row: row.Key(), Err: err}
	}
	if queueID <= 0 {
		return 0, &SubmissionError{Row: row.Key(), Err: fmt.Errorf("queue returned invalid job id %d", queueID)}
	}

	if err := row.RecordSubmission(queueID, s.opts.Now()); err != nil {
		return 0, err
	}
	row.ScriptName = spec.Name

	logging.WithContext(ctx, s.logger).Info("job submitted",
		logging.Row(row.Key()),
		logging.QueueID(queueID),
		logging.String("job_name", spec.Name),
		logging.Int("n_submissions", row.NSubmissions),
		logging.Int("dependencies", len(row.Dependencies)),
		logging.String(logging.FieldEventType, "job_submitted"),
	)
	return queueID, nil
}

// JobName returns the queue job name: jobdesc-night-first expid-cameras.
func JobName(desc proctable.JobDesc, night, firstExpID int, cameras string) string {
	return fmt.Sprintf("%s-%d-%08d-%s", desc, night, firstExpID, cameras)
}
