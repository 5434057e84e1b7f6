// Package exposure reads the per-night exposure tables that seed processing
// rows.
package exposure

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"nightproc/internal/proctable"
)

// Last-step markers recorded by the observing pipeline.
const (
	LastStepAll    = "all"
	LastStepSkySub = "skysub"
	LastStepIgnore = "ignore"
)

// Exposure is one row of an exposure table.
type Exposure struct {
	ExpID      int
	Night      int
	ObsType    string
	ExpTime    float64
	TileID     int
	Camword    string
	BadCamword string
	BadAmps    string
	LastStep   string
	SeqTot     int
}

// Source yields the exposures recorded for a night.
type Source interface {
	Exposures(night int) ([]Exposure, error)
}

// CSVSource reads exposure tables from CSV files.
type CSVSource struct {
	// PathFor maps a night to its exposure table path.
	PathFor func(night int) string
}

// NewCSVSource returns a CSVSource.
func NewCSVSource(pathFor func(night int) string) *CSVSource {
	return &CSVSource{PathFor: pathFor}
}

// Exposures implements Source. A missing file yields an error wrapping
// os.ErrNotExist. Rows from other nights are dropped.
func (s *CSVSource) Exposures(night int) ([]Exposure, error) {
	path := s.PathFor(night)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open exposure table: %w", err)
	}
	defer file.Close()

	all, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("exposure table %s: %w", path, err)
	}
	return slices.DeleteFunc(all, func(e Exposure) bool { return e.Night != night }), nil
}

var requiredColumns = []string{"EXPID", "NIGHT", "OBSTYPE"}

// Read decodes an exposure table. Columns are matched by header name; only
// EXPID, NIGHT and OBSTYPE are required. Rows are returned sorted by EXPID.
func Read(r io.Reader) ([]Exposure, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty file: no header")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	upper := cases.Upper(language.Und)
	positions := make(map[string]int, len(header))
	for i, name := range header {
		positions[upper.String(strings.TrimSpace(name))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := positions[col]; !ok {
			return nil, fmt.Errorf("missing required column %s", col)
		}
	}

	lower := cases.Lower(language.Und)
	var out []Exposure
	seen := make(map[int]struct{})
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		get := func(col string) string {
			pos, ok := positions[col]
			if !ok || pos >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[pos])
		}
		exp, err := parseExposure(get, lower)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if _, dup := seen[exp.ExpID]; dup {
			return nil, fmt.Errorf("line %d: duplicate EXPID %d", line, exp.ExpID)
		}
		seen[exp.ExpID] = struct{}{}
		out = append(out, exp)
	}
	slices.SortFunc(out, func(a, b Exposure) int { return a.ExpID - b.ExpID })
	return out, nil
}

func parseExposure(get func(string) string, lower cases.Caser) (Exposure, error) {
	var exp Exposure
	var err error
	if exp.ExpID, err = strconv.Atoi(get("EXPID")); err != nil {
		return exp, fmt.Errorf("EXPID: %w", err)
	}
	if exp.Night, err = strconv.Atoi(get("NIGHT")); err != nil {
		return exp, fmt.Errorf("NIGHT: %w", err)
	}
	exp.ObsType = lower.String(get("OBSTYPE"))
	if exp.ObsType == "" {
		return exp, fmt.Errorf("EXPID %d: empty OBSTYPE", exp.ExpID)
	}
	if raw := get("EXPTIME"); raw != "" {
		if exp.ExpTime, err = strconv.ParseFloat(raw, 64); err != nil {
			return exp, fmt.Errorf("EXPTIME: %w", err)
		}
	}
	exp.TileID = proctable.NoTile
	if raw := get("TILEID"); raw != "" {
		tile, err := strconv.Atoi(raw)
		if err != nil {
			return exp, fmt.Errorf("TILEID: %w", err)
		}
		if tile >= 0 {
			exp.TileID = tile
		}
	}
	if raw := get("SEQTOT"); raw != "" {
		if exp.SeqTot, err = strconv.Atoi(raw); err != nil {
			return exp, fmt.Errorf("SEQTOT: %w", err)
		}
	}
	exp.Camword = lower.String(get("CAMWORD"))
	exp.BadCamword = lower.String(get("BADCAMWORD"))
	exp.BadAmps = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, get("BADAMPS"))
	exp.LastStep = lower.String(get("LASTSTEP"))
	if exp.LastStep == "" {
		exp.LastStep = LastStepAll
	}
	return exp, nil
}
