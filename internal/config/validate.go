package config

import (
	"errors"
	"fmt"
	"strings"

	"nightproc/internal/proctable"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTables(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateResubmit(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.TableDir) == "" {
		return errors.New("paths.table_dir must be set (or set NIGHTPROC_TABLE_DIR)")
	}
	return nil
}

func (c *Config) validateTables() error {
	switch c.Tables.Format {
	case proctable.FormatCSV, proctable.FormatSQLite:
		return nil
	default:
		return fmt.Errorf("tables.format: unsupported value %q (use csv or sqlite)", c.Tables.Format)
	}
}

func (c *Config) validateQueue() error {
	if c.Queue.Backend != "slurm" {
		return fmt.Errorf("queue.backend: unsupported value %q", c.Queue.Backend)
	}
	return ensurePositiveMap(map[string]int{
		"queue.cores_per_node":   c.Queue.CoresPerNode,
		"queue.submit_timeout":   c.Queue.SubmitTimeout,
		"queue.poll_timeout":     c.Queue.PollTimeout,
		"queue.poll_batch_size":  c.Queue.PollBatchSize,
		"queue.poll_concurrency": c.Queue.PollConcurrency,
	})
}

func (c *Config) validateResubmit() error {
	if _, err := proctable.ParseStateList(c.Resubmit.States); err != nil {
		return fmt.Errorf("resubmit.states: %w", err)
	}
	if c.Resubmit.MaxSubmissionsPerRun < 0 {
		return errors.New("resubmit.max_submissions_per_run must be >= 0 (0 means unlimited)")
	}
	return nil
}

func (c *Config) validateJobs() error {
	if c.Jobs.MaxArcExpTime < 0 {
		return errors.New("jobs.max_arc_exptime must be >= 0")
	}
	for _, obstype := range c.Jobs.ProcessObsTypes {
		if _, ok := proctable.ParseJobDesc(obstype); !ok {
			return fmt.Errorf("jobs.process_obstypes: unknown obstype %q", obstype)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
