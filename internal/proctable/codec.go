package proctable

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Codec reads and writes a table at a filesystem path. Encode always targets
// a fresh path owned by Persist; Decode is only called on existing files.
type Codec interface {
	Name() string
	Encode(path string, table *Table) error
	Decode(path string) (*Table, error)
}

// Supported format names.
const (
	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
)

// CodecFor picks a codec from the file extension.
func CodecFor(path string) (Codec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".ecsv":
		return CSVCodec{}, nil
	case ".db", ".sqlite", ".sqlite3":
		return SQLiteCodec{}, nil
	default:
		return nil, fmt.Errorf("no table codec for %q (use .csv, .ecsv, .db or .sqlite)", filepath.Base(path))
	}
}

// Extension returns the file extension used for a format name.
func Extension(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatCSV:
		return ".csv", nil
	case FormatSQLite:
		return ".sqlite", nil
	default:
		return "", fmt.Errorf("unknown table format %q", format)
	}
}

// Column names shared by the codecs.
const (
	colNight         = "NIGHT"
	colJobDesc       = "JOBDESC"
	colObsType       = "OBSTYPE"
	colExpIDs        = "EXPID"
	colTileID        = "TILEID"
	colCamword       = "PROCCAMWORD"
	colBadCamword    = "BADCAMWORD"
	colBadAmps       = "BADAMPS"
	colStatus        = "STATUS"
	colQueueIDs      = "ALL_QIDS"
	colLatestQueueID = "LATEST_QID"
	colNSubmissions  = "N_SUBMISSIONS"
	colSubmitTime    = "SUBMIT_TIME"
	colScriptName    = "SCRIPTNAME"
	colDependencies  = "DEPENDENCIES"
	colMissing       = "MISSING_DEPS"
)

var columns = []string{
	colNight,
	colJobDesc,
	colObsType,
	colExpIDs,
	colTileID,
	colCamword,
	colBadCamword,
	colBadAmps,
	colStatus,
	colQueueIDs,
	colLatestQueueID,
	colNSubmissions,
	colSubmitTime,
	colScriptName,
	colDependencies,
	colMissing,
}

// optionalColumns may be absent from older tables and decode to zero values.
var optionalColumns = map[string]struct{}{
	colSubmitTime: {},
	colScriptName: {},
	colMissing:    {},
}

const listSep = "|"

// encodeRow flattens a row into column order.
func encodeRow(row *Row) []string {
	expIDs := make([]string, len(row.ExpIDs))
	for i, id := range row.ExpIDs {
		expIDs[i] = strconv.Itoa(id)
	}
	queueIDs := make([]string, len(row.QueueIDs))
	for i, id := range row.QueueIDs {
		queueIDs[i] = strconv.FormatInt(id, 10)
	}
	deps := make([]string, len(row.Dependencies))
	for i, dep := range row.Dependencies {
		deps[i] = dep.String()
	}
	missing := make([]string, len(row.Missing))
	for i, desc := range row.Missing {
		missing[i] = string(desc)
	}
	submitTime := ""
	if !row.SubmitTime.IsZero() {
		submitTime = row.SubmitTime.UTC().Format(time.RFC3339)
	}
	return []string{
		strconv.Itoa(row.Night),
		string(row.JobDesc),
		row.ObsType,
		strings.Join(expIDs, listSep),
		strconv.Itoa(row.TileID),
		row.Camword,
		row.BadCamword,
		row.BadAmps,
		string(row.Status),
		strings.Join(queueIDs, listSep),
		strconv.FormatInt(row.LatestQueueID, 10),
		strconv.Itoa(row.NSubmissions),
		submitTime,
		row.ScriptName,
		strings.Join(deps, listSep),
		strings.Join(missing, listSep),
	}
}

// decodeRow builds a row from named fields. get returns "" and false for
// columns not present in the source.
func decodeRow(get func(col string) (string, bool)) (*Row, error) {
	field := func(col string) (string, error) {
		value, ok := get(col)
		if !ok {
			if _, optional := optionalColumns[col]; optional {
				return "", nil
			}
			return "", fmt.Errorf("missing column %s", col)
		}
		return value, nil
	}
	var firstErr error
	text := func(col string) string {
		value, err := field(col)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return value
	}
	integer := func(col string) int64 {
		value := strings.TrimSpace(text(col))
		if value == "" {
			return 0
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("column %s: invalid integer %q", col, value)
		}
		return n
	}

	row := &Row{
		Night:         int(integer(colNight)),
		ObsType:       text(colObsType),
		TileID:        int(integer(colTileID)),
		Camword:       text(colCamword),
		BadCamword:    text(colBadCamword),
		BadAmps:       text(colBadAmps),
		LatestQueueID: integer(colLatestQueueID),
		NSubmissions:  int(integer(colNSubmissions)),
		ScriptName:    text(colScriptName),
	}
	rawDesc := text(colJobDesc)
	rawStatus := text(colStatus)
	rawExpIDs := text(colExpIDs)
	rawQueueIDs := text(colQueueIDs)
	rawSubmit := text(colSubmitTime)
	rawDeps := text(colDependencies)
	rawMissing := text(colMissing)
	if firstErr != nil {
		return nil, firstErr
	}

	desc, ok := ParseJobDesc(rawDesc)
	if !ok {
		return nil, fmt.Errorf("column %s: unknown job desc %q", colJobDesc, rawDesc)
	}
	row.JobDesc = desc
	status, ok := ParseStatus(rawStatus)
	if !ok {
		return nil, fmt.Errorf("column %s: unknown status %q", colStatus, rawStatus)
	}
	row.Status = status

	for _, part := range splitList(rawExpIDs) {
		id, err := strconv.Atoi(part)
		if err != nil || id < 0 {
			return nil, fmt.Errorf("column %s: invalid exposure id %q", colExpIDs, part)
		}
		row.ExpIDs = append(row.ExpIDs, id)
	}
	if !slices.IsSorted(row.ExpIDs) || len(slices.Compact(slices.Clone(row.ExpIDs))) != len(row.ExpIDs) {
		return nil, fmt.Errorf("column %s: exposure ids %q not sorted and unique", colExpIDs, rawExpIDs)
	}
	for _, part := range splitList(rawQueueIDs) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: invalid queue id %q", colQueueIDs, part)
		}
		row.QueueIDs = append(row.QueueIDs, id)
	}
	if rawSubmit = strings.TrimSpace(rawSubmit); rawSubmit != "" {
		ts, err := time.Parse(time.RFC3339, rawSubmit)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", colSubmitTime, err)
		}
		row.SubmitTime = ts.UTC()
	}
	for _, part := range splitList(rawDeps) {
		key, err := ParseKey(part)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", colDependencies, err)
		}
		row.Dependencies = append(row.Dependencies, key)
	}
	for _, part := range splitList(rawMissing) {
		desc, ok := ParseJobDesc(part)
		if !ok {
			return nil, fmt.Errorf("column %s: unknown job desc %q", colMissing, part)
		}
		row.Missing = append(row.Missing, desc)
	}
	return row, nil
}

func splitList(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, listSep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
