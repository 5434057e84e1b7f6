package proctable

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Load reads the table at path using the codec implied by its extension. A
// missing file yields an empty table.
func Load(path string) (*Table, error) {
	codec, err := CodecFor(path)
	if err != nil {
		return nil, err
	}
	return LoadWith(path, codec)
}

// LoadWith reads the table at path with an explicit codec.
func LoadWith(path string, codec Codec) (*Table, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat table: %w", err)
	}
	if info.IsDir() {
		return nil, &CorruptTableError{Path: path, Reason: "path is a directory"}
	}
	table, err := codec.Decode(path)
	if err != nil {
		return nil, &CorruptTableError{Path: path, Reason: codec.Name() + " decode", Err: err}
	}
	if err := table.Validate(); err != nil {
		return nil, &CorruptTableError{Path: path, Reason: "invalid content", Err: err}
	}
	return table, nil
}

// Persist writes table to path atomically using the codec implied by the
// extension.
func Persist(path string, table *Table) error {
	codec, err := CodecFor(path)
	if err != nil {
		return &PersistenceError{Path: path, Op: "select codec", Err: err}
	}
	return PersistWith(path, table, codec)
}

// PersistWith encodes table into a sibling temporary file, syncs it and
// renames it over path. Until the rename succeeds the previous file is left
// untouched; the temporary file is removed on any failure.
func PersistWith(path string, table *Table, codec Codec) (err error) {
	if err := table.Validate(); err != nil {
		return &PersistenceError{Path: path, Op: "validate", Err: err}
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Path: path, Op: "create directory", Err: err}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return &PersistenceError{Path: path, Op: "create temp file", Err: err}
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := codec.Encode(tmpPath, table); err != nil {
		return &PersistenceError{Path: path, Op: "encode " + codec.Name(), Err: err}
	}
	if err := syncFile(tmpPath); err != nil {
		return &PersistenceError{Path: path, Op: "sync temp file", Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return &PersistenceError{Path: path, Op: "rename", Err: err}
	}
	// Best effort: the new file is already complete.
	_ = syncFile(dir)
	return nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
