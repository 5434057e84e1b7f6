package main

import (
	"fmt"
	"log/slog"

	"nightproc/internal/batch"
	"nightproc/internal/config"
	"nightproc/internal/dependency"
	"nightproc/internal/preflight"
	"nightproc/internal/proctable"
	"nightproc/internal/queuesync"
	"nightproc/internal/resubmit"
	"nightproc/internal/seed"
	"nightproc/internal/submit"
)

func newSyncer(cfg *config.Config, client batch.Client, logger *slog.Logger) *queuesync.Syncer {
	return queuesync.New(client, queuesync.Options{
		BatchSize:   cfg.Queue.PollBatchSize,
		Concurrency: cfg.Queue.PollConcurrency,
		Timeout:     cfg.PollTimeoutDuration(),
	}, logger)
}

func newSubmitter(cfg *config.Config, client batch.Client, logger *slog.Logger) (*submit.Submitter, error) {
	submitter, err := submit.New(client, submit.Options{
		CommandTemplate: cfg.Jobs.CommandTemplate,
		Partition:       cfg.Queue.Partition,
		Account:         cfg.Queue.Account,
		Reservation:     cfg.Queue.Reservation,
		CoresPerNode:    cfg.Queue.CoresPerNode,
		Timeout:         cfg.SubmitTimeoutDuration(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("jobs.command_template: %w", err)
	}
	return submitter, nil
}

func newController(cfg *config.Config, client batch.Client, logger *slog.Logger) (*resubmit.Controller, error) {
	submitter, err := newSubmitter(cfg, client, logger)
	if err != nil {
		return nil, err
	}
	return resubmit.New(newSyncer(cfg, client, logger), submitter, logger), nil
}

func newSeeder(cfg *config.Config, states proctable.StateSet, endOfNight bool, ignore []int, logger *slog.Logger) *seed.Seeder {
	resolver := dependency.NewResolver(dependency.DefaultRules(cfg.Dependencies.ArcFallback), cfg.Dependencies.AllowMissing)
	resolver.Resubmit = states
	return seed.New(resolver, seed.Options{
		ProcessObsTypes: cfg.Jobs.ProcessObsTypes,
		MaxArcExpTime:   cfg.Jobs.MaxArcExpTime,
		EndOfNight:      endOfNight,
		IgnoreExpIDs:    ignore,
	}, logger)
}

// configuredStates parses the resubmit states, preferring the flag value.
func configuredStates(cfg *config.Config, flagValue string, flagSet bool) (proctable.StateSet, error) {
	if flagSet {
		states, err := proctable.ParseStateSet(flagValue)
		if err != nil {
			return nil, fmt.Errorf("--resubmit-states: %w", err)
		}
		return states, nil
	}
	return proctable.ParseStateList(cfg.Resubmit.States)
}

// requireQueueTools fails when a required preflight check does not pass.
// Passes that never dispatch only need the poll tool.
func requireQueueTools(cfg *config.Config, dispatch bool) error {
	failed := preflight.Failed(preflight.Run(cfg, preflight.Options{PollOnly: !dispatch}))
	if len(failed) == 0 {
		return nil
	}
	first := failed[0]
	return fmt.Errorf("preflight: %s: %s (run `nightproc check` for details)", first.Name, first.Detail)
}
