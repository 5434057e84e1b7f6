package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nightproc/internal/config"
	"nightproc/internal/exposure"
	"nightproc/internal/logging"
	"nightproc/internal/proctable"
)

func newSeedCommand(ctx *commandContext) *cobra.Command {
	var target tableTarget
	var exposures string
	var dryRun bool
	var endOfNight bool
	var ignore []int

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create processing rows from the night's exposure table",
		Long: "Replay the exposure table in EXPID order, adding a row for every new\n" +
			"processed exposure and the joint fits each finished calibration group\n" +
			"implies. Existing rows are never modified.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if target.night <= 0 {
				return errors.New("--night is required")
			}
			if err := validateNight(target.night); err != nil {
				return err
			}
			path, err := target.resolve(cfg)
			if err != nil {
				return err
			}
			states, err := proctable.ParseStateList(cfg.Resubmit.States)
			if err != nil {
				return err
			}

			r, err := ctx.startRun(cmd, path, true)
			if err != nil {
				return err
			}
			defer r.close()

			source, err := exposureSource(cfg, exposures)
			if err != nil {
				return err
			}
			exps, err := source.Exposures(target.night)
			if err != nil {
				return err
			}
			table, err := proctable.Load(path)
			if err != nil {
				return err
			}

			seeded, result, err := newSeeder(cfg, states, endOfNight, ignore, r.logger).Seed(table, target.night, exps)
			if err != nil {
				logging.ErrorWithContext(r.logger, "seeding aborted, table left unchanged", "seed_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "enable dependencies.allow_missing or add the missing calibration"),
				)
				return fmt.Errorf("seed %s: %w", path, err)
			}
			if len(result.Added) > 0 && !dryRun {
				if err := proctable.Persist(path, seeded); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Table: %s\n", path)
			if len(result.Added) > 0 {
				rows := make([][]string, 0, len(result.Added))
				for _, key := range result.Added {
					row, _ := seeded.Find(key)
					rows = append(rows, []string{key.String(), row.Camword, joinKeys(row.Dependencies), joinDescs(row.Missing)})
				}
				fmt.Fprintln(out, renderTable([]string{"Row", "Cameras", "Depends on", "Missing"}, rows, nil))
			}
			verb := "Added"
			if dryRun {
				verb = "Would add"
			}
			fmt.Fprintf(out, "%s %d rows (%d existing, %d exposures ignored)\n", verb, len(result.Added), result.Existing, len(result.Ignored))
			return nil
		},
	}

	target.register(cmd)
	cmd.Flags().StringVarP(&exposures, "exposures", "e", "", "Exposure table path (defaults to the configured exposure directory)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the rows that would be added without writing the table")
	cmd.Flags().BoolVar(&endOfNight, "end-of-night", false, "Close the final exposure group and create its joint fit")
	cmd.Flags().IntSliceVar(&ignore, "ignore-expids", nil, "Comma separated exposure ids to skip")
	return cmd
}

func exposureSource(cfg *config.Config, override string) (exposure.Source, error) {
	path := strings.TrimSpace(override)
	if path == "" {
		return exposure.NewCSVSource(cfg.ExposurePath), nil
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	return exposure.NewCSVSource(func(int) string { return expanded }), nil
}

func joinKeys(keys []proctable.Key) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ",")
}

func joinDescs(descs []proctable.JobDesc) string {
	parts := make([]string, len(descs))
	for i, d := range descs {
		parts[i] = string(d)
	}
	return strings.Join(parts, ",")
}
