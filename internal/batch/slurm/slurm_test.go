package slurm_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"nightproc/internal/batch"
	"nightproc/internal/batch/slurm"
)

type scriptedExecutor struct {
	calls  [][]string
	output string
	err    error
}

func (s *scriptedExecutor) Run(_ context.Context, binary string, args []string) ([]byte, error) {
	s.calls = append(s.calls, append([]string{binary}, args...))
	return []byte(s.output), s.err
}

func TestSubmitParsesJobID(t *testing.T) {
	exec := &scriptedExecutor{output: "4242;perlmutter\n"}
	client := slurm.NewWithExecutor("/opt/slurm/bin/sbatch", "", exec)

	id, err := client.Submit(context.Background(), batch.JobSpec{
		Name:        "flat-20240115-00000110-a0123",
		Command:     "desi_proc --cameras a0123",
		Partition:   "realtime",
		Account:     "desi",
		Reservation: "desi_night",
		Resources:   batch.Resources{Nodes: 1, Cores: 20, Runtime: 90 * time.Second},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if id != 4242 {
		t.Fatalf("id = %d", id)
	}
	call := exec.calls[0]
	if call[0] != "/opt/slurm/bin/sbatch" {
		t.Fatalf("binary = %s", call[0])
	}
	for _, want := range []string{
		"--parsable",
		"--job-name=flat-20240115-00000110-a0123",
		"--partition=realtime",
		"--account=desi",
		"--nodes=1",
		"--ntasks=20",
		"--time=2",
		"--reservation=desi_night",
		"--wrap=desi_proc --cameras a0123",
	} {
		if !slices.Contains(call, want) {
			t.Fatalf("missing %q in %v", want, call)
		}
	}
}

func TestSubmitRejectsGarbage(t *testing.T) {
	client := slurm.NewWithExecutor("", "", &scriptedExecutor{output: "Submitted batch job"})
	if _, err := client.Submit(context.Background(), batch.JobSpec{Command: "true"}); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := client.Submit(context.Background(), batch.JobSpec{}); err == nil {
		t.Fatal("expected empty command error")
	}
}

func TestPollParsesStates(t *testing.T) {
	exec := &scriptedExecutor{output: strings.Join([]string{
		"100|COMPLETED",
		"101|CANCELLED by 5678",
		"102_1|RUNNING",
		"103|NODE_FAIL",
		"",
	}, "\n")}
	client := slurm.NewWithExecutor("", "sacct", exec)
	states, err := client.Poll(context.Background(), []int64{100, 101, 103, 104})
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(states) != 3 {
		t.Fatalf("states = %v", states)
	}
	if states[101] != "CANCELLED by 5678" || states[103] != "NODE_FAIL" {
		t.Fatalf("states = %v", states)
	}
	args := strings.Join(exec.calls[0], " ")
	if !strings.Contains(args, "-j 100,101,103,104") || !strings.Contains(args, "--format=JobID,State") {
		t.Fatalf("unexpected sacct args %q", args)
	}
}

func TestPollPropagatesExecutorError(t *testing.T) {
	client := slurm.NewWithExecutor("", "", &scriptedExecutor{err: errors.New("slurmdbd down")})
	if _, err := client.Poll(context.Background(), []int64{1}); err == nil {
		t.Fatal("expected error")
	}
	states, err := client.Poll(context.Background(), nil)
	if err != nil || len(states) != 0 {
		t.Fatalf("empty poll = %v, %v", states, err)
	}
}
