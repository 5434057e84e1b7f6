package proctable

import (
	"errors"
	"fmt"
)

// Table is an ordered collection of rows with unique keys. Iteration order is
// insertion order. A Table has a single owner; it is not safe for concurrent
// mutation.
type Table struct {
	rows  []*Row
	index map[Key]int
}

// New returns an empty table.
func New() *Table {
	return &Table{index: make(map[Key]int)}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Rows returns the rows in insertion order. The slice is a copy; the rows are
// shared with the table so callers may update them in place.
func (t *Table) Rows() []*Row {
	out := make([]*Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// Find looks up a row by key.
func (t *Table) Find(key Key) (*Row, bool) {
	if t == nil {
		return nil, false
	}
	pos, ok := t.index[key]
	if !ok {
		return nil, false
	}
	return t.rows[pos], true
}

// Position returns the insertion index of key, or -1.
func (t *Table) Position(key Key) int {
	if pos, ok := t.index[key]; ok {
		return pos
	}
	return -1
}

// Append adds a new row at the end of the table.
func (t *Table) Append(row *Row) error {
	if row == nil {
		return errors.New("append: nil row")
	}
	key := row.Key()
	if _, exists := t.index[key]; exists {
		return fmt.Errorf("append %s: %w", key, ErrDuplicateKey)
	}
	if row.DependsOn(key) {
		return fmt.Errorf("append %s: %w", key, ErrSelfDependency)
	}
	t.index[key] = len(t.rows)
	t.rows = append(t.rows, row)
	return nil
}

// Upsert inserts row when its key is absent and otherwise replaces the
// existing row in place. A replacement may not lower the submission counter.
func (t *Table) Upsert(row *Row) error {
	if row == nil {
		return errors.New("upsert: nil row")
	}
	key := row.Key()
	pos, exists := t.index[key]
	if !exists {
		return t.Append(row)
	}
	if row.DependsOn(key) {
		return fmt.Errorf("upsert %s: %w", key, ErrSelfDependency)
	}
	if current := t.rows[pos]; row.NSubmissions < current.NSubmissions {
		return fmt.Errorf("upsert %s: %w (%d -> %d)", key, ErrCounterRegression, current.NSubmissions, row.NSubmissions)
	}
	t.rows[pos] = row
	return nil
}

// Filter returns the rows matching pred in table order.
func (t *Table) Filter(pred func(*Row) bool) []*Row {
	var out []*Row
	for _, row := range t.rows {
		if pred(row) {
			out = append(out, row)
		}
	}
	return out
}

// Counts returns the number of rows per status.
func (t *Table) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, row := range t.rows {
		counts[row.Status]++
	}
	return counts
}

// Validate checks the per-row invariants: unique keys, known statuses, no
// self-dependency and a queue id history consistent with the counter.
// Dependency cycles are detected by the dependency package.
func (t *Table) Validate() error {
	seen := make(map[Key]struct{}, len(t.rows))
	for i, row := range t.rows {
		key := row.Key()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("row %d %s: %w", i, key, ErrDuplicateKey)
		}
		seen[key] = struct{}{}
		if _, ok := statusSet[row.Status]; !ok {
			return fmt.Errorf("row %d %s: unknown status %q", i, key, row.Status)
		}
		if row.DependsOn(key) {
			return fmt.Errorf("row %d %s: %w", i, key, ErrSelfDependency)
		}
		if len(row.ExpIDs) == 0 {
			return fmt.Errorf("row %d %s: no exposure ids", i, key)
		}
		if row.NSubmissions < 0 {
			return fmt.Errorf("row %d %s: negative submission count", i, key)
		}
		if row.Status != StatusUnsubmitted && row.NSubmissions == 0 {
			return fmt.Errorf("row %d %s: status %s without any submission", i, key, row.Status)
		}
	}
	return nil
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	cp := New()
	for _, row := range t.rows {
		c := row.Clone()
		cp.index[c.Key()] = len(cp.rows)
		cp.rows = append(cp.rows, c)
	}
	return cp
}

// Equal reports whether both tables hold equal rows in the same order.
func (t *Table) Equal(other *Table) bool {
	if t.Len() != other.Len() {
		return false
	}
	for i := range t.rows {
		if !t.rows[i].Equal(other.rows[i]) {
			return false
		}
	}
	return true
}
