package proctable

import (
	"errors"
	"fmt"
)

// Error kinds reported through ErrorClassifier.
const (
	// KindStructural marks failures that make the table untrustworthy; the
	// pass must abort before anything is persisted.
	KindStructural = "structural"
	// KindTransient marks collaborator failures that a later pass may clear.
	KindTransient = "transient"
	// KindInvariant marks internal contract violations.
	KindInvariant = "invariant"
)

// ErrorClassifier allows errors to declare how the driver should react.
type ErrorClassifier interface {
	ErrorKind() string
}

// Kind returns the classification of err, or "" when nothing in the chain
// implements ErrorClassifier.
func Kind(err error) string {
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorKind()
	}
	return ""
}

var (
	// ErrDuplicateKey indicates two rows share an identity.
	ErrDuplicateKey = errors.New("duplicate row key")
	// ErrSelfDependency indicates a row listing itself as a dependency.
	ErrSelfDependency = errors.New("row depends on itself")
	// ErrCounterRegression indicates an update that lowers n_submissions.
	ErrCounterRegression = errors.New("submission counter decreased")
)

// CorruptTableError reports a persisted table that cannot be decoded or
// violates the table invariants.
type CorruptTableError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CorruptTableError) Error() string {
	msg := "corrupt processing table"
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptTableError) Unwrap() error { return e.Err }

// ErrorKind implements ErrorClassifier.
func (e *CorruptTableError) ErrorKind() string { return KindStructural }

// PersistenceError reports an I/O failure while writing a table.
type PersistenceError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrorKind implements ErrorClassifier.
func (e *PersistenceError) ErrorKind() string { return KindStructural }
