package proctable

import "fmt"

var terminalTargets = []Status{
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

// forwardEdges lists every legal move except failure -> UNSUBMITTED, which
// depends on the active resubmission set.
var forwardEdges = func() map[Status]map[Status]struct{} {
	edges := map[Status]map[Status]struct{}{
		StatusUnsubmitted: {StatusSubmitted: {}},
		StatusSubmitted:   {StatusPending: {}, StatusRunning: {}},
		StatusPending:     {StatusRunning: {}},
		StatusRunning:     {StatusPending: {}},
	}
	for _, from := range []Status{StatusSubmitted, StatusPending, StatusRunning} {
		for _, to := range terminalTargets {
			edges[from][to] = struct{}{}
		}
	}
	return edges
}()

// CanTransition reports whether from -> to is a legal edge. The backward
// failure -> UNSUBMITTED edge is legal only when from is in active.
func CanTransition(from, to Status, active StateSet) bool {
	if to == StatusUnsubmitted {
		return from.IsFailure() && active.Contains(from)
	}
	_, ok := forwardEdges[from][to]
	return ok
}

// IllegalTransitionError reports an attempt to move a row along an edge the
// state machine does not define.
type IllegalTransitionError struct {
	Row  Key
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("row %s: illegal transition %s -> %s", e.Row, e.From, e.To)
}

// ErrorKind implements ErrorClassifier.
func (e *IllegalTransitionError) ErrorKind() string { return KindInvariant }
