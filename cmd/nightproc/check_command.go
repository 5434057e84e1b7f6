package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"nightproc/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify directories and batch queue tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cfg)
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				state := "ok"
				switch {
				case !r.Passed && r.Optional:
					state = "warn"
				case !r.Passed:
					state = "FAIL"
				}
				rows = append(rows, []string{r.Name, state, r.Detail})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Check", "Result", "Detail"}, rows, nil))
			if failed := preflight.Failed(results); len(failed) > 0 {
				return errors.New("preflight checks failed")
			}
			fmt.Fprintln(out, "All required checks passed")
			return nil
		},
	}
}
