package testsupport

import (
	"testing"

	"nightproc/internal/proctable"
)

// Night is the observing night used by the row builders.
const Night = 20240115

// RowOption customizes a row built by NewRow.
type RowOption func(*proctable.Row)

// NewRow builds an UNSUBMITTED row on Night covering every camera.
func NewRow(desc proctable.JobDesc, expIDs []int, opts ...RowOption) *proctable.Row {
	row := proctable.NewRow(desc, Night, expIDs, proctable.NoTile)
	row.ObsType = string(desc)
	row.Camword = "a0123456789"
	for _, opt := range opts {
		opt(row)
	}
	return row
}

// WithStatus sets the status together with the queue history that status
// implies. Each queue id counts as one submission.
func WithStatus(status proctable.Status, queueIDs ...int64) RowOption {
	return func(r *proctable.Row) {
		r.Status = status
		r.QueueIDs = append([]int64(nil), queueIDs...)
		r.NSubmissions = len(queueIDs)
		if len(queueIDs) > 0 {
			r.LatestQueueID = queueIDs[len(queueIDs)-1]
		}
	}
}

// WithDeps sets the row dependencies.
func WithDeps(keys ...proctable.Key) RowOption {
	return func(r *proctable.Row) {
		r.Dependencies = append([]proctable.Key(nil), keys...)
	}
}

// WithCamword sets the camword and badcamword.
func WithCamword(word, bad string) RowOption {
	return func(r *proctable.Row) {
		r.Camword = word
		r.BadCamword = bad
	}
}

// WithBadAmps sets the bad amplifier list.
func WithBadAmps(amps string) RowOption {
	return func(r *proctable.Row) {
		r.BadAmps = amps
	}
}

// WithTile sets the tile id. The key changes accordingly.
func WithTile(tile int) RowOption {
	return func(r *proctable.Row) {
		r.TileID = tile
	}
}

// NewTable appends rows in order and fails the test on any rejection.
func NewTable(t testing.TB, rows ...*proctable.Row) *proctable.Table {
	t.Helper()

	table := proctable.New()
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			t.Fatalf("append %s: %v", row.Key(), err)
		}
	}
	return table
}

// MustFind returns the row stored under key.
func MustFind(t testing.TB, table *proctable.Table, key proctable.Key) *proctable.Row {
	t.Helper()

	row, ok := table.Find(key)
	if !ok {
		t.Fatalf("row %s not found", key)
	}
	return row
}
