package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"nightproc/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.TableDir = filepath.Join(base, "processing_tables")
	cfgVal.Paths.ExposureDir = filepath.Join(base, "exposure_tables")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithTableFormat selects the processing table codec.
func WithTableFormat(format string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Tables.Format = format
	}
}

// WithResubmitStates overrides the resubmittable failure states.
func WithResubmitStates(states ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Resubmit.States = append([]string(nil), states...)
	}
}

// stubScripts holds the output of the stubbed queue tools: sbatch prints a
// parsable job id and sacct reports no jobs.
var stubScripts = map[string]string{
	"sbatch": "#!/bin/sh\necho 4242\n",
	"sacct":  "#!/bin/sh\nexit 0\n",
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, sbatch and sacct are stubbed.
// Names other than the queue tools get a script that exits 0.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"sbatch", "sacct"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		for _, name := range names {
			script, ok := stubScripts[name]
			if !ok {
				script = "#!/bin/sh\nexit 0\n"
			}
			if err := os.WriteFile(filepath.Join(binDir, name), []byte(script), 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.cfg.Queue.SbatchBinary = "sbatch"
		b.cfg.Queue.SacctBinary = "sacct"
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.TableDir)
}
