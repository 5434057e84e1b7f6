package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"nightproc/internal/batch"
	"nightproc/internal/batch/slurm"
	"nightproc/internal/config"
	"nightproc/internal/logging"
)

type commandContext struct {
	configFlag string

	// newClient builds the batch queue client. Tests replace it.
	newClient func(cfg *config.Config) batch.Client
	now       func() time.Time

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext() *commandContext {
	return &commandContext{
		newClient: func(cfg *config.Config) batch.Client {
			return slurm.New(cfg.Queue.SbatchBinary, cfg.Queue.SacctBinary)
		},
		now: time.Now,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// tableTarget is the --night / --table pair shared by table commands.
type tableTarget struct {
	night int
	path  string
}

func (t *tableTarget) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&t.night, "night", "n", 0, "Observing night (YYYYMMDD)")
	cmd.Flags().StringVarP(&t.path, "table", "t", "", "Processing table path (overrides --night)")
}

func (t *tableTarget) resolve(cfg *config.Config) (string, error) {
	if path := strings.TrimSpace(t.path); path != "" {
		return config.ExpandPath(path)
	}
	if t.night <= 0 {
		return "", errors.New("either --night or --table is required")
	}
	if err := validateNight(t.night); err != nil {
		return "", err
	}
	return cfg.TablePath(t.night), nil
}

func validateNight(night int) error {
	if _, err := time.Parse("20060102", fmt.Sprintf("%08d", night)); err != nil {
		return fmt.Errorf("night %d is not a YYYYMMDD date", night)
	}
	return nil
}

// run is the per-invocation state of a command that touches a table.
type run struct {
	cfg     *config.Config
	ctx     context.Context
	session *logging.Session
	// base carries no run id; components that receive ctx add it themselves.
	base    *slog.Logger
	logger  *slog.Logger
	path    string
	lock    *flock.Flock
	started time.Time
}

// startRun opens the run log, tags it with a fresh run id and, when lock is
// set, takes the exclusive table lock. Callers must close the run.
func (c *commandContext) startRun(cmd *cobra.Command, path string, lock bool) (*run, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	started := c.now()
	session, err := logging.NewFromConfig(cfg, cmd.ErrOrStderr(), shouldColorize(cmd.ErrOrStderr()), started)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx := logging.WithRunID(cmd.Context(), runID)
	base := session.Logger.With(logging.String(logging.FieldTable, path))
	logger := logging.WithContext(ctx, base)

	r := &run{cfg: cfg, ctx: ctx, session: session, base: base, logger: logger, path: path, started: started}
	if lock {
		if err := r.acquire(); err != nil {
			_ = session.Close()
			return nil, err
		}
	}

	target := logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: logging.FilePattern}
	if session.Path != "" {
		target.Exclude = []string{session.Path}
	}
	if removed := logging.CleanupOldLogs(logger, started, cfg.Logging.RetentionDays, target); removed > 0 {
		logger.Debug("old run logs pruned", logging.Int("removed", removed))
	}
	return r, nil
}

func (r *run) acquire() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create table directory: %w", err)
	}
	lockPath := r.path + ".lock"
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire table lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("table %s is locked by another nightproc process (%s)", r.path, lockPath)
	}
	r.lock = lock
	return nil
}

func (r *run) close() {
	if r.lock != nil {
		if err := r.lock.Unlock(); err != nil {
			r.logger.Warn("failed to release table lock", logging.Error(err))
		}
	}
	if err := r.session.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "close run log:", err)
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
