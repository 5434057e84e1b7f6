package proctable

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes incompatibly.
const schemaVersion = 1

// ErrSchemaMismatch indicates a snapshot written by an incompatible version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// sqlColumns maps the shared column names onto the proc_rows schema.
var sqlColumns = map[string]string{
	colNight:         "night",
	colJobDesc:       "job_desc",
	colObsType:       "obstype",
	colExpIDs:        "exp_ids",
	colTileID:        "tile_id",
	colCamword:       "camword",
	colBadCamword:    "badcamword",
	colBadAmps:       "badamps",
	colStatus:        "status",
	colQueueIDs:      "queue_ids",
	colLatestQueueID: "latest_queue_id",
	colNSubmissions:  "n_submissions",
	colSubmitTime:    "submit_time",
	colScriptName:    "script_name",
	colDependencies:  "dependencies",
	colMissing:       "missing_deps",
}

// SQLiteCodec stores a table as a single-file SQLite snapshot. The position
// column preserves insertion order.
type SQLiteCodec struct{}

// Name implements Codec.
func (SQLiteCodec) Name() string { return FormatSQLite }

func orderedSQLColumns() []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = sqlColumns[col]
	}
	return out
}

// Encode implements Codec. path must not hold an existing snapshot.
func (SQLiteCodec) Encode(path string, table *Table) error {
	ctx := context.Background()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite snapshot: %w", err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	cols := orderedSQLColumns()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)+1), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO proc_rows (position, %s) VALUES (%s)",
		strings.Join(cols, ", "), placeholders,
	))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for pos, row := range table.rows {
		values := encodeRow(row)
		args := make([]any, 0, len(values)+1)
		args = append(args, pos)
		for _, v := range values {
			args = append(args, v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %s: %w", row.Key(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return db.Close()
}

// Decode implements Codec.
func (SQLiteCodec) Decode(path string) (*Table, error) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite snapshot: %w", err)
	}
	defer db.Close()

	var tableExists int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists); err != nil {
		return nil, fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return nil, fmt.Errorf("%w: schema_version table missing", ErrSchemaMismatch)
	}
	var version int
	if err := db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return nil, fmt.Errorf("%w: snapshot has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}

	cols := orderedSQLColumns()
	rows, err := db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM proc_rows ORDER BY position", strings.Join(cols, ", "),
	))
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	table := New()
	values := make([]string, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row, err := decodeRow(func(col string) (string, bool) {
			for i, name := range columns {
				if name == col {
					return values[i], true
				}
			}
			return "", false
		})
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", table.Len(), err)
		}
		if err := table.Append(row); err != nil {
			return nil, fmt.Errorf("row %d: %w", table.Len(), err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return table, nil
}
