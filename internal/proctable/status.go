package proctable

import (
	"fmt"
	"sort"
	"strings"
)

// Status represents the lifecycle of a processing row.
type Status string

const (
	StatusUnsubmitted Status = "UNSUBMITTED"
	StatusSubmitted   Status = "SUBMITTED"
	StatusPending     Status = "PENDING"
	StatusRunning     Status = "RUNNING"
	StatusCompleted   Status = "COMPLETED"
	StatusCancelled   Status = "CANCELLED"
	StatusFailed      Status = "FAILED"
	StatusBootFail    Status = "BOOT_FAIL"
	StatusDeadline    Status = "DEADLINE"
	StatusNodeFail    Status = "NODE_FAIL"
	StatusOutOfMemory Status = "OUT_OF_MEMORY"
	StatusPreempted   Status = "PREEMPTED"
	StatusTimeout     Status = "TIMEOUT"
)

var allStatuses = []Status{
	StatusUnsubmitted,
	StatusSubmitted,
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusCancelled,
	StatusFailed,
	StatusBootFail,
	StatusDeadline,
	StatusNodeFail,
	StatusOutOfMemory,
	StatusPreempted,
	StatusTimeout,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var activeStatuses = map[Status]struct{}{
	StatusSubmitted: {},
	StatusPending:   {},
	StatusRunning:   {},
}

var retryableStatuses = map[Status]struct{}{
	StatusBootFail:    {},
	StatusDeadline:    {},
	StatusNodeFail:    {},
	StatusOutOfMemory: {},
	StatusPreempted:   {},
	StatusTimeout:     {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a persisted status string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsActive reports whether the row has been handed to the queue and has not
// reached a terminal queue state.
func (s Status) IsActive() bool {
	_, ok := activeStatuses[s]
	return ok
}

// IsRetryable reports whether the status is a failure subkind that may be
// resubmitted automatically.
func (s Status) IsRetryable() bool {
	_, ok := retryableStatuses[s]
	return ok
}

// IsFailure reports whether the status is any failure subkind, retryable or
// not. CANCELLED is not a failure.
func (s Status) IsFailure() bool {
	return s == StatusFailed || s.IsRetryable()
}

// IsTerminal reports whether the status is final given the active
// resubmission set. COMPLETED and CANCELLED are always terminal; failures are
// terminal unless they appear in resubmit.
func (s Status) IsTerminal(resubmit StateSet) bool {
	switch {
	case s == StatusCompleted, s == StatusCancelled:
		return true
	case s.IsFailure():
		return !resubmit.Contains(s)
	default:
		return false
	}
}

// StateSet is a set of statuses, typically the failure subkinds eligible for
// automatic resubmission.
type StateSet map[Status]struct{}

// NewStateSet builds a set from the provided statuses.
func NewStateSet(statuses ...Status) StateSet {
	set := make(StateSet, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}

// DefaultResubmitStates returns the retryable failure subkinds.
func DefaultResubmitStates() StateSet {
	set := make(StateSet, len(retryableStatuses))
	for s := range retryableStatuses {
		set[s] = struct{}{}
	}
	return set
}

// ParseStateSet parses a comma separated list of resubmittable states.
// UNSUBMITTED is accepted and ignored because unsubmitted rows are always
// eligible. COMPLETED, CANCELLED and in-flight states are rejected.
func ParseStateSet(value string) (StateSet, error) {
	return ParseStateList(strings.Split(value, ","))
}

// ParseStateList is ParseStateSet for pre-split values.
func ParseStateList(values []string) (StateSet, error) {
	set := make(StateSet)
	for _, raw := range values {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		status, ok := ParseStatus(raw)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", strings.TrimSpace(raw))
		}
		switch {
		case status == StatusUnsubmitted:
			continue
		case !status.IsFailure():
			return nil, fmt.Errorf("status %s cannot be resubmitted automatically", status)
		}
		set[status] = struct{}{}
	}
	return set, nil
}

// Contains reports whether status is in the set.
func (s StateSet) Contains(status Status) bool {
	if s == nil {
		return false
	}
	_, ok := s[status]
	return ok
}

// Sorted returns the members in canonical status order.
func (s StateSet) Sorted() []Status {
	out := make([]Status, 0, len(s))
	for _, status := range allStatuses {
		if s.Contains(status) {
			out = append(out, status)
		}
	}
	return out
}

// String renders the set as a comma separated list.
func (s StateSet) String() string {
	sorted := s.Sorted()
	parts := make([]string, len(sorted))
	for i, status := range sorted {
		parts[i] = string(status)
	}
	return strings.Join(parts, ",")
}

// queueStateAliases folds batch-queue states that have no row equivalent onto
// the closest row status.
var queueStateAliases = map[string]Status{
	"REQUEUED":      StatusPending,
	"REQUEUE_FED":   StatusPending,
	"REQUEUE_HOLD":  StatusPending,
	"CONFIGURING":   StatusPending,
	"RESV_DEL_HOLD": StatusPending,
	"COMPLETING":    StatusRunning,
	"RESIZING":      StatusRunning,
	"SUSPENDED":     StatusRunning,
	"STOPPED":       StatusRunning,
	"SIGNALING":     StatusRunning,
	"STAGE_OUT":     StatusRunning,
	"REVOKED":       StatusCancelled,
	"SPECIAL_EXIT":  StatusFailed,
}

// ParseQueueState maps a batch-queue state string (for example "RUNNING",
// "CANCELLED by 1234" or "NODE_FAIL+") onto a row status. The second return
// value is false for states the engine does not understand.
func ParseQueueState(raw string) (Status, bool) {
	state := strings.ToUpper(strings.TrimSpace(raw))
	if fields := strings.Fields(state); len(fields) > 0 {
		state = fields[0]
	}
	state = strings.TrimRight(state, "+")
	if state == "" {
		return "", false
	}
	if alias, ok := queueStateAliases[state]; ok {
		return alias, true
	}
	status, ok := ParseStatus(state)
	if !ok || status == StatusUnsubmitted || status == StatusSubmitted {
		return "", false
	}
	return status, true
}

// SortStatuses orders statuses canonically; unknown values sort last.
func SortStatuses(statuses []Status) {
	rank := make(map[Status]int, len(allStatuses))
	for i, s := range allStatuses {
		rank[s] = i
	}
	sort.SliceStable(statuses, func(i, j int) bool {
		ri, okI := rank[statuses[i]]
		rj, okJ := rank[statuses[j]]
		if !okI {
			ri = len(allStatuses)
		}
		if !okJ {
			rj = len(allStatuses)
		}
		return ri < rj
	})
}
