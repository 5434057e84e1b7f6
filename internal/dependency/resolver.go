package dependency

import (
	"fmt"
	"slices"

	"nightproc/internal/camword"
	"nightproc/internal/proctable"
)

// Resolution is the outcome of resolving one candidate row.
type Resolution struct {
	Dependencies []proctable.Key
	Missing      []proctable.JobDesc
}

// Resolver selects prerequisite rows for new rows.
type Resolver struct {
	Rules Rules
	// AllowMissing records unmatched kinds on the row instead of failing.
	AllowMissing bool
	// Resubmit is the active resubmission set. Failures outside it are
	// permanent and do not satisfy a dependency. Nil means the default set.
	Resubmit proctable.StateSet
}

// NewResolver returns a resolver using rules.
func NewResolver(rules Rules, allowMissing bool) *Resolver {
	return &Resolver{Rules: rules, AllowMissing: allowMissing}
}

func (r *Resolver) resubmitSet() proctable.StateSet {
	if r.Resubmit == nil {
		return proctable.DefaultResubmitStates()
	}
	return r.Resubmit
}

// usable reports whether row may satisfy a dependency: anything except a
// cancellation or a failure that will not be retried.
func (r *Resolver) usable(row *proctable.Row) bool {
	if row.Status == proctable.StatusCompleted {
		return true
	}
	return !row.Status.IsTerminal(r.resubmitSet())
}

// Resolve computes the dependencies of candidate from the rows created before
// it. When candidate is not yet in the table every row counts as earlier.
// Joint fits and job descriptions without rules resolve to nothing.
func (r *Resolver) Resolve(candidate *proctable.Row, table *proctable.Table) (Resolution, error) {
	var res Resolution
	kinds := r.Rules.For(candidate.JobDesc)
	if candidate.JobDesc.IsJointFit() || len(kinds) == 0 {
		return res, nil
	}
	want, err := camword.Parse(candidate.Camword)
	if err != nil {
		return res, fmt.Errorf("row %s: %w", candidate.Key(), err)
	}

	earlier := table.Rows()
	if pos := table.Position(candidate.Key()); pos >= 0 {
		earlier = earlier[:pos]
	}

	for _, kind := range kinds {
		var (
			found bool
			pick  proctable.Key
		)
		for _, desc := range kind.Candidates() {
			key, ok, err := r.best(desc, candidate, want, earlier)
			if err != nil {
				return Resolution{}, err
			}
			if ok {
				found, pick = true, key
				break
			}
		}
		if !found {
			res.Missing = append(res.Missing, kind.JobDesc)
			continue
		}
		if !slices.Contains(res.Dependencies, pick) {
			res.Dependencies = append(res.Dependencies, pick)
		}
	}
	return res, nil
}

// best returns the most recently created eligible row of desc that shares at
// least one camera with want. Rows are scanned newest first.
func (r *Resolver) best(desc proctable.JobDesc, candidate *proctable.Row, want camword.Set, rows []*proctable.Row) (proctable.Key, bool, error) {
	for _, row := range slices.Backward(rows) {
		if row.JobDesc != desc || row.Night != candidate.Night || !r.usable(row) {
			continue
		}
		have, err := camword.Effective(row.Camword, row.BadCamword, row.BadAmps)
		if err != nil {
			return proctable.Key{}, false, fmt.Errorf("row %s: %w", row.Key(), err)
		}
		if !have.Intersects(want) {
			continue
		}
		return row.Key(), true, nil
	}
	return proctable.Key{}, false, nil
}

// Assign resolves candidate and stores the result on it. Only the candidate
// is modified, and nothing is written when an error is returned. Joint fits
// keep the constituent dependencies they were created with.
func (r *Resolver) Assign(candidate *proctable.Row, table *proctable.Table) error {
	if candidate.JobDesc.IsJointFit() {
		candidate.Missing = nil
		return nil
	}
	res, err := r.Resolve(candidate, table)
	if err != nil {
		return err
	}
	if len(res.Missing) > 0 && !r.AllowMissing {
		return &UnresolvedDependencyError{Row: candidate.Key(), Kind: res.Missing[0]}
	}
	candidate.Dependencies = res.Dependencies
	candidate.Missing = res.Missing
	return nil
}
