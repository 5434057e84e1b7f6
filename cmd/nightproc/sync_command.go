package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nightproc/internal/logging"
	"nightproc/internal/proctable"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var target tableTarget

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Refresh row statuses from the batch queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := target.resolve(cfg)
			if err != nil {
				return err
			}
			if err := requireQueueTools(cfg, false); err != nil {
				return err
			}
			r, err := ctx.startRun(cmd, path, true)
			if err != nil {
				return err
			}
			defer r.close()

			table, err := proctable.Load(path)
			if err != nil {
				return err
			}
			report, syncErr := newSyncer(cfg, ctx.newClient(cfg), r.base).Sync(r.ctx, table)
			if syncErr != nil {
				logging.WarnWithContext(r.logger, "queue partly unavailable", "sync_incomplete",
					logging.Error(syncErr),
					logging.String(logging.FieldImpact, "statuses for the failed ids stay as recorded"),
				)
			}
			if len(report.Updated) > 0 {
				if err := proctable.Persist(path, table); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Table: %s\n", path)
			fmt.Fprintf(out, "Polled %d, updated %d, unchanged %d, rejected %d, unknown %d\n",
				report.Polled, len(report.Updated), report.Unchanged, len(report.Rejected), len(report.Unknown))
			if len(report.Updated) > 0 {
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(report.Updated))
				for _, change := range report.Updated {
					rows = append(rows, []string{
						change.Row.String(),
						fmt.Sprint(change.QueueID),
						statusCell(change.From, colorize),
						statusCell(change.To, colorize),
					})
				}
				fmt.Fprintln(out, renderTable([]string{"Row", "Queue ID", "From", "To"}, rows, []columnAlignment{alignLeft, alignRight}))
			}
			return nil
		},
	}
	target.register(cmd)
	return cmd
}
