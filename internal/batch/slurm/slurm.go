// Package slurm implements batch.Client on top of the sbatch and sacct
// command line tools.
package slurm

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"nightproc/internal/batch"
)

// Executor abstracts command execution so tests can script queue responses.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s: %w: %s", binary, err, msg)
		}
		return out, fmt.Errorf("%s: %w", binary, err)
	}
	return out, nil
}

// Client submits with sbatch and polls with sacct.
type Client struct {
	sbatch string
	sacct  string
	exec   Executor
}

var _ batch.Client = (*Client)(nil)

// New returns a client for the given binaries. Empty names default to
// "sbatch" and "sacct" on PATH.
func New(sbatchBinary, sacctBinary string) *Client {
	return NewWithExecutor(sbatchBinary, sacctBinary, nil)
}

// NewWithExecutor allows injecting a custom executor for testing.
func NewWithExecutor(sbatchBinary, sacctBinary string, exec Executor) *Client {
	if exec == nil {
		exec = commandExecutor{}
	}
	sbatchBinary = strings.TrimSpace(sbatchBinary)
	if sbatchBinary == "" {
		sbatchBinary = "sbatch"
	}
	sacctBinary = strings.TrimSpace(sacctBinary)
	if sacctBinary == "" {
		sacctBinary = "sacct"
	}
	return &Client{sbatch: sbatchBinary, sacct: sacctBinary, exec: exec}
}

// Submit dispatches spec through sbatch --parsable and returns the job id.
func (c *Client) Submit(ctx context.Context, spec batch.JobSpec) (int64, error) {
	if strings.TrimSpace(spec.Command) == "" {
		return 0, errors.New("sbatch: empty command")
	}
	out, err := c.exec.Run(ctx, c.sbatch, SubmitArgs(spec))
	if err != nil {
		return 0, err
	}
	return parseJobID(out)
}

// SubmitArgs builds the sbatch argument list for spec.
func SubmitArgs(spec batch.JobSpec) []string {
	args := []string{"--parsable"}
	if spec.Name != "" {
		args = append(args, "--job-name="+spec.Name)
	}
	if spec.Partition != "" {
		args = append(args, "--partition="+spec.Partition)
	}
	if spec.Account != "" {
		args = append(args, "--account="+spec.Account)
	}
	if spec.Reservation != "" {
		args = append(args, "--reservation="+spec.Reservation)
	}
	if spec.Resources.Nodes > 0 {
		args = append(args, "--nodes="+strconv.Itoa(spec.Resources.Nodes))
	}
	if spec.Resources.Cores > 0 {
		args = append(args, "--ntasks="+strconv.Itoa(spec.Resources.Cores))
	}
	if spec.Resources.Runtime > 0 {
		args = append(args, "--time="+formatMinutes(spec.Resources.Runtime))
	}
	return append(args, "--wrap="+spec.Command)
}

func formatMinutes(d time.Duration) string {
	minutes := int((d + time.Minute - 1) / time.Minute)
	return strconv.Itoa(minutes)
}

// parseJobID reads "<id>" or "<id>;<cluster>" from sbatch --parsable.
func parseJobID(out []byte) (int64, error) {
	line := strings.TrimSpace(string(out))
	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		line = line[:idx]
	}
	id, err := strconv.ParseInt(line, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("sbatch: unexpected output %q", strings.TrimSpace(string(out)))
	}
	return id, nil
}

// Poll queries sacct for the allocation state of each id.
func (c *Client) Poll(ctx context.Context, queueIDs []int64) (map[int64]string, error) {
	states := make(map[int64]string, len(queueIDs))
	if len(queueIDs) == 0 {
		return states, nil
	}
	ids := make([]string, len(queueIDs))
	for i, id := range queueIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	args := []string{"-X", "--parsable2", "--noheader", "--format=JobID,State", "-j", strings.Join(ids, ",")}
	out, err := c.exec.Run(ctx, c.sacct, args)
	if err != nil {
		return nil, err
	}
	return parseStates(out, states)
}

func parseStates(out []byte, states map[int64]string) (map[int64]string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "|", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("sacct: malformed line %q", line)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			// Array and heterogeneous job steps (123_4, 123+0) are never
			// submitted by this engine.
			continue
		}
		states[id] = strings.TrimSpace(fields[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("sacct: read output: %w", err)
	}
	return states, nil
}
