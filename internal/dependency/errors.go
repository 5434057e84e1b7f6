package dependency

import (
	"fmt"
	"strings"

	"nightproc/internal/proctable"
)

// UnresolvedDependencyError reports a row whose required prerequisite kind
// has no eligible row while missing dependencies are disallowed.
type UnresolvedDependencyError struct {
	Row  proctable.Key
	Kind proctable.JobDesc
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("row %s: no eligible %s dependency", e.Row, e.Kind)
}

// ErrorKind implements proctable.ErrorClassifier.
func (e *UnresolvedDependencyError) ErrorKind() string { return proctable.KindStructural }

// DependencyCycleError reports a dependency loop. Cycle lists the keys along
// the loop, starting and ending with the same key.
type DependencyCycleError struct {
	Cycle []proctable.Key
}

func (e *DependencyCycleError) Error() string {
	parts := make([]string, len(e.Cycle))
	for i, key := range e.Cycle {
		parts[i] = key.String()
	}
	return "dependency cycle: " + strings.Join(parts, " -> ")
}

// ErrorKind implements proctable.ErrorClassifier.
func (e *DependencyCycleError) ErrorKind() string { return proctable.KindStructural }
