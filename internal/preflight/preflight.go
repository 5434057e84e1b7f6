package preflight

import (
	"nightproc/internal/config"
)

// minFreeBytes is the free space required in the table and log directories.
const minFreeBytes = 64 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Detail   string
	Optional bool
}

// Options narrow the checks made by Run.
type Options struct {
	// PollOnly skips the dispatch tool, for passes that never submit.
	PollOnly bool
}

// RunAll executes every preflight check for cfg.
func RunAll(cfg *config.Config) []Result {
	return Run(cfg, Options{})
}

// Run executes the preflight checks selected by opts. Directories are
// created first so a fresh install passes.
func Run(cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	if err := cfg.EnsureDirectories(); err != nil {
		results = append(results, Result{Name: "Directories", Detail: err.Error()})
	}

	results = append(results,
		CheckDirectoryAccess("Table directory", cfg.Paths.TableDir),
		CheckFreeSpace("Table directory space", cfg.Paths.TableDir, minFreeBytes),
	)
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	exposures := CheckReadable("Exposure directory", cfg.Paths.ExposureDir)
	exposures.Optional = true
	results = append(results, exposures)

	if !opts.PollOnly {
		results = append(results, CheckBinary("sbatch", cfg.Queue.SbatchBinary, "Required to dispatch jobs"))
	}
	return append(results, CheckBinary("sacct", cfg.Queue.SacctBinary, "Required to poll job states"))
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}
