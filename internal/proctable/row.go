package proctable

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// JobDesc names the kind of processing a row performs.
type JobDesc string

const (
	JobArc         JobDesc = "arc"
	JobFlat        JobDesc = "flat"
	JobScience     JobDesc = "science"
	JobTwilight    JobDesc = "twilight"
	JobDark        JobDesc = "dark"
	JobZero        JobDesc = "zero"
	JobPSFNight    JobDesc = "psfnight"
	JobNightlyFlat JobDesc = "nightlyflat"
	JobStdStarFit  JobDesc = "stdstarfit"
)

var allJobDescs = []JobDesc{
	JobArc,
	JobFlat,
	JobScience,
	JobTwilight,
	JobDark,
	JobZero,
	JobPSFNight,
	JobNightlyFlat,
	JobStdStarFit,
}

var jointFits = map[JobDesc]struct{}{
	JobPSFNight:    {},
	JobNightlyFlat: {},
	JobStdStarFit:  {},
}

// ParseJobDesc converts user or file input into a known JobDesc. Matching is
// case-insensitive.
func ParseJobDesc(value string) (JobDesc, bool) {
	normalized := JobDesc(cases.Fold().String(strings.TrimSpace(value)))
	for _, desc := range allJobDescs {
		if desc == normalized {
			return desc, true
		}
	}
	return "", false
}

// IsJointFit reports whether the job combines several exposures into one
// derived calibration product.
func (j JobDesc) IsJointFit() bool {
	_, ok := jointFits[j]
	return ok
}

// NoTile marks rows that are not tied to a tile.
const NoTile = -1

// Key identifies a row. ExpIDs are kept sorted without duplicates.
type Key struct {
	JobDesc JobDesc
	ExpIDs  string
	TileID  int
}

// NewKey builds a key, normalising the exposure ids.
func NewKey(desc JobDesc, expIDs []int, tileID int) Key {
	return Key{JobDesc: desc, ExpIDs: formatExpIDs(normalizeExpIDs(expIDs)), TileID: tileID}
}

func normalizeExpIDs(ids []int) []int {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func formatExpIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%08d", id)
	}
	return strings.Join(parts, "-")
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d", k.JobDesc, k.ExpIDs, k.TileID)
}

// ExposureIDs decodes the exposure ids carried by the key.
func (k Key) ExposureIDs() []int {
	ids, _ := parseExpIDs(k.ExpIDs)
	return ids
}

func parseExpIDs(value string) ([]int, error) {
	if value == "" {
		return nil, nil
	}
	fields := strings.Split(value, "-")
	ids := make([]int, 0, len(fields))
	for _, field := range fields {
		id, err := strconv.Atoi(field)
		if err != nil || id < 0 {
			return nil, fmt.Errorf("invalid exposure id %q", field)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ParseKey decodes the String form of a key.
func ParseKey(value string) (Key, error) {
	parts := strings.Split(strings.TrimSpace(value), "/")
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("key %q: expected jobdesc/expids/tile", value)
	}
	desc, ok := ParseJobDesc(parts[0])
	if !ok {
		return Key{}, fmt.Errorf("key %q: unknown job desc %q", value, parts[0])
	}
	ids, err := parseExpIDs(parts[1])
	if err != nil {
		return Key{}, fmt.Errorf("key %q: %w", value, err)
	}
	if len(ids) == 0 {
		return Key{}, fmt.Errorf("key %q: no exposure ids", value)
	}
	tile, err := strconv.Atoi(parts[2])
	if err != nil {
		return Key{}, fmt.Errorf("key %q: invalid tile: %w", value, err)
	}
	key := NewKey(desc, ids, tile)
	if key.ExpIDs != parts[1] {
		return Key{}, fmt.Errorf("key %q: exposure ids not in canonical order", value)
	}
	return key, nil
}

// Row is one schedulable processing job.
type Row struct {
	JobDesc       JobDesc
	ExpIDs        []int
	TileID        int
	Night         int
	ObsType       string
	Camword       string
	BadCamword    string
	BadAmps       string
	Dependencies  []Key
	Missing       []JobDesc
	Status        Status
	QueueIDs      []int64
	LatestQueueID int64
	NSubmissions  int
	SubmitTime    time.Time
	ScriptName    string
}

// NewRow returns an UNSUBMITTED row with normalised exposure ids.
func NewRow(desc JobDesc, night int, expIDs []int, tileID int) *Row {
	return &Row{
		JobDesc: desc,
		ExpIDs:  normalizeExpIDs(expIDs),
		TileID:  tileID,
		Night:   night,
		Status:  StatusUnsubmitted,
	}
}

// Key returns the row identity.
func (r *Row) Key() Key {
	return NewKey(r.JobDesc, r.ExpIDs, r.TileID)
}

// FirstExpID returns the smallest exposure id, or zero for rows without any.
func (r *Row) FirstExpID() int {
	if len(r.ExpIDs) == 0 {
		return 0
	}
	return slices.Min(r.ExpIDs)
}

// Clone returns a deep copy.
func (r *Row) Clone() *Row {
	if r == nil {
		return nil
	}
	cp := *r
	cp.ExpIDs = slices.Clone(r.ExpIDs)
	cp.Dependencies = slices.Clone(r.Dependencies)
	cp.Missing = slices.Clone(r.Missing)
	cp.QueueIDs = slices.Clone(r.QueueIDs)
	return &cp
}

// DependsOn reports whether key is among the row's dependencies.
func (r *Row) DependsOn(key Key) bool {
	return slices.Contains(r.Dependencies, key)
}

// Transition moves the row to next along a legal edge. Resetting a failure to
// UNSUBMITTED goes through ResetForResubmission instead because it needs the
// active resubmission set.
func (r *Row) Transition(next Status) error {
	if next == StatusUnsubmitted {
		return &IllegalTransitionError{Row: r.Key(), From: r.Status, To: next}
	}
	if !CanTransition(r.Status, next, nil) {
		return &IllegalTransitionError{Row: r.Key(), From: r.Status, To: next}
	}
	r.Status = next
	return nil
}

// ResetForResubmission moves a failed row back to UNSUBMITTED. The failure
// subkind must be in active.
func (r *Row) ResetForResubmission(active StateSet) error {
	if !CanTransition(r.Status, StatusUnsubmitted, active) {
		return &IllegalTransitionError{Row: r.Key(), From: r.Status, To: StatusUnsubmitted}
	}
	r.Status = StatusUnsubmitted
	return nil
}

// RecordSubmission stores a successful dispatch and moves the row to
// SUBMITTED.
func (r *Row) RecordSubmission(queueID int64, at time.Time) error {
	if err := r.Transition(StatusSubmitted); err != nil {
		return err
	}
	r.QueueIDs = append(r.QueueIDs, queueID)
	r.LatestQueueID = queueID
	r.NSubmissions++
	r.SubmitTime = at.UTC().Truncate(time.Second)
	return nil
}

// Equal reports whether two rows carry the same content.
func (r *Row) Equal(other *Row) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.JobDesc == other.JobDesc &&
		slices.Equal(r.ExpIDs, other.ExpIDs) &&
		r.TileID == other.TileID &&
		r.Night == other.Night &&
		r.ObsType == other.ObsType &&
		r.Camword == other.Camword &&
		r.BadCamword == other.BadCamword &&
		r.BadAmps == other.BadAmps &&
		slices.Equal(r.Dependencies, other.Dependencies) &&
		slices.Equal(r.Missing, other.Missing) &&
		r.Status == other.Status &&
		slices.Equal(r.QueueIDs, other.QueueIDs) &&
		r.LatestQueueID == other.LatestQueueID &&
		r.NSubmissions == other.NSubmissions &&
		r.SubmitTime.Equal(other.SubmitTime) &&
		r.ScriptName == other.ScriptName
}
