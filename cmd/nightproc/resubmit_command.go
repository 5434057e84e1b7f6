package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nightproc/internal/logging"
	"nightproc/internal/proctable"
	"nightproc/internal/resubmit"
)

func newResubmitCommand(ctx *commandContext) *cobra.Command {
	var target tableTarget
	var dryRun bool
	var states string
	var maxSubmissions int
	var reservation string

	cmd := &cobra.Command{
		Use:   "resubmit",
		Short: "Refresh statuses and submit eligible rows",
		Long: "Refresh row statuses from the batch queue, reset rows that failed in a\n" +
			"resubmittable state and submit every row whose dependencies allow it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := target.resolve(cfg)
			if err != nil {
				return err
			}
			active, err := configuredStates(cfg, states, cmd.Flags().Changed("resubmit-states"))
			if err != nil {
				return err
			}
			limit := cfg.Resubmit.MaxSubmissionsPerRun
			if cmd.Flags().Changed("max-submissions") {
				if maxSubmissions < 0 {
					return errors.New("--max-submissions must be >= 0")
				}
				limit = maxSubmissions
			}
			if cmd.Flags().Changed("reservation") {
				override := *cfg
				override.Queue.Reservation = strings.TrimSpace(reservation)
				cfg = &override
			}
			if err := requireQueueTools(cfg, !dryRun); err != nil {
				return err
			}

			r, err := ctx.startRun(cmd, path, true)
			if err != nil {
				return err
			}
			defer r.close()

			table, err := proctable.Load(path)
			if err != nil {
				logging.ErrorWithContext(r.logger, "processing table unreadable", "table_load_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "restore the table from backup or fix the reported row"),
				)
				return err
			}
			controller, err := newController(cfg, ctx.newClient(cfg), r.base)
			if err != nil {
				return err
			}

			result, runErr := controller.Run(r.ctx, table, resubmit.Options{
				ResubmitStates: active,
				MaxSubmissions: limit,
				DryRun:         dryRun,
			})
			if runErr != nil && resubmit.IsStructural(runErr) {
				logging.ErrorWithContext(r.logger, "pass aborted, table left unchanged", "pass_aborted",
					logging.Error(runErr),
					logging.String(logging.FieldErrorHint, "fix the dependency graph before the next pass"),
				)
				return fmt.Errorf("resubmit %s: %w", path, runErr)
			}

			// Rows dispatched before a late failure keep their queue ids.
			if !dryRun {
				if err := proctable.Persist(path, table); err != nil {
					logging.ErrorWithContext(r.logger, "failed to persist processing table", "table_persist_failed",
						logging.Error(err),
						logging.Int("submitted", result.NSubmitted()),
						logging.String(logging.FieldImpact, "dispatched jobs are not recorded; the next pass may duplicate them"),
					)
					return err
				}
			}

			printPassSummary(cmd.OutOrStdout(), path, result, dryRun)
			if runErr != nil {
				return fmt.Errorf("resubmit %s: %w", path, runErr)
			}
			r.logger.Info("pass complete",
				logging.Int("submitted", result.NSubmitted()),
				logging.Int("skipped", len(result.Skipped)),
				logging.Int("failed", len(result.Failed)),
				logging.Bool("capped", result.Capped),
				logging.Bool("dry_run", dryRun),
			)
			return nil
		},
	}

	target.register(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan and log without resetting, submitting or writing the table")
	cmd.Flags().StringVar(&states, "resubmit-states", "", "Comma separated failure states to resubmit (overrides config)")
	cmd.Flags().IntVar(&maxSubmissions, "max-submissions", 0, "Maximum dispatches this pass, 0 for unlimited (overrides config)")
	cmd.Flags().StringVar(&reservation, "reservation", "", "Batch reservation for dispatched jobs (overrides queue.reservation)")
	return cmd
}
