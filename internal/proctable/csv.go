package proctable

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSVCodec stores a table as a header plus one line per row.
type CSVCodec struct{}

// Name implements Codec.
func (CSVCodec) Name() string { return FormatCSV }

// Encode implements Codec.
func (c CSVCodec) Encode(path string, table *Table) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := c.Write(file, table); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// Write encodes table to w. The output is deterministic for a given table.
func (CSVCodec) Write(w io.Writer, table *Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(columns); err != nil {
		return err
	}
	for _, row := range table.rows {
		if err := writer.Write(encodeRow(row)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Decode implements Codec.
func (c CSVCodec) Decode(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return c.Read(file)
}

// Read decodes a table from r. Columns are matched by header name, so the
// column order of hand-edited files does not matter.
func (CSVCodec) Read(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty file: no header")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	positions := make(map[string]int, len(header))
	for i, name := range header {
		positions[strings.ToUpper(strings.TrimSpace(name))] = i
	}
	for _, col := range columns {
		if _, optional := optionalColumns[col]; optional {
			continue
		}
		if _, ok := positions[col]; !ok {
			return nil, fmt.Errorf("missing required column %s", col)
		}
	}

	table := New()
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row, err := decodeRow(func(col string) (string, bool) {
			pos, ok := positions[col]
			if !ok || pos >= len(record) {
				return "", false
			}
			return record[pos], true
		})
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := table.Append(row); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	return table, nil
}
