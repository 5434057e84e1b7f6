package preflight

import (
	"os"
	"path/filepath"
	"testing"

	"nightproc/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if r := CheckFreeSpace("space", dir, 1); !r.Passed {
		t.Fatalf("expected pass, got %s", r.Detail)
	}
	if r := CheckFreeSpace("space", dir, ^uint64(0)); r.Passed {
		t.Fatal("expected failure for impossible requirement")
	}
	if r := CheckFreeSpace("space", filepath.Join(dir, "nope"), 1); r.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckBinary(t *testing.T) {
	testsupport.NewConfig(t, testsupport.WithStubbedBinaries("present-tool"))
	if r := CheckBinary("present", "present-tool", ""); !r.Passed {
		t.Fatalf("expected stub on PATH, got %s", r.Detail)
	}
	if r := CheckBinary("missing", "clearly-not-present-binary", "needed"); r.Passed || r.Detail == "" {
		t.Fatalf("expected failure with detail, got %+v", r)
	}
	if r := CheckBinary("blank", "  ", ""); r.Passed {
		t.Fatal("expected failure for empty command")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_StubbedQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())

	results := RunAll(cfg)
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
	var exposure *Result
	for i := range results {
		if results[i].Name == "Exposure directory" {
			exposure = &results[i]
		}
	}
	if exposure == nil || exposure.Passed || !exposure.Optional {
		t.Fatalf("missing exposure dir should be an optional failure, got %+v", exposure)
	}
	if _, err := os.Stat(cfg.Paths.TableDir); err != nil {
		t.Fatalf("table dir not created: %v", err)
	}
}

func TestRunAll_MissingQueueBinary(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("sbatch"))
	cfg.Queue.SacctBinary = "nightproc-no-such-sacct"

	failed := Failed(RunAll(cfg))
	if len(failed) != 1 || failed[0].Name != "sacct" {
		t.Fatalf("expected only sacct to fail, got %+v", failed)
	}
}

func TestRun_PollOnlySkipsDispatchTool(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("sacct"))
	cfg.Queue.SbatchBinary = "nightproc-no-such-sbatch"

	if failed := Failed(RunAll(cfg)); len(failed) != 1 || failed[0].Name != "sbatch" {
		t.Fatalf("expected sbatch to fail a full run, got %+v", failed)
	}
	results := Run(cfg, Options{PollOnly: true})
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("poll-only run failed: %+v", failed)
	}
	for _, r := range results {
		if r.Name == "sbatch" {
			t.Fatal("poll-only run checked sbatch")
		}
	}
}
