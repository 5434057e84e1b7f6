package submit

import (
	"errors"
	"fmt"

	"nightproc/internal/proctable"
)

// ErrNoCameras indicates every camera of a row is excluded as bad.
var ErrNoCameras = errors.New("no usable cameras")

// DependencyNotReadyError reports a Submit call made out of order: the row is
// not UNSUBMITTED, or one of its dependencies is not usable yet.
type DependencyNotReadyError struct {
	Row proctable.Key
	// Dependency is the blocking row; zero when the row itself is not ready.
	Dependency proctable.Key
	Status     proctable.Status
	Reason     string
}

func (e *DependencyNotReadyError) Error() string {
	if e.Dependency == (proctable.Key{}) {
		return fmt.Sprintf("row %s not ready: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("row %s not ready: dependency %s %s", e.Row, e.Dependency, e.Reason)
}

// ErrorKind implements proctable.ErrorClassifier.
func (e *DependencyNotReadyError) ErrorKind() string { return proctable.KindInvariant }

// SubmissionError reports a failed dispatch. The row was left unchanged.
type SubmissionError struct {
	Row proctable.Key
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit %s: %v", e.Row, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ErrorKind implements proctable.ErrorClassifier.
func (e *SubmissionError) ErrorKind() string { return proctable.KindTransient }
