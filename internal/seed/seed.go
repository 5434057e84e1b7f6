package seed

import (
	"fmt"
	"log/slog"
	"slices"

	"nightproc/internal/camword"
	"nightproc/internal/dependency"
	"nightproc/internal/exposure"
	"nightproc/internal/logging"
	"nightproc/internal/proctable"
)

// maxShortFlatSequence is the longest flat sequence that feeds the nightly
// flat joint fit.
const maxShortFlatSequence = 5

// Options control which exposures become rows.
type Options struct {
	// ProcessObsTypes lists the exposure types turned into rows.
	ProcessObsTypes []string
	// MaxArcExpTime drops longer arcs. Zero disables the limit.
	MaxArcExpTime float64
	// EndOfNight closes the joint fit of the final exposure group. Leave it
	// unset while exposures are still arriving.
	EndOfNight bool
	// IgnoreExpIDs are skipped as if flagged ignore in the exposure table.
	IgnoreExpIDs []int
}

// Ignored is an exposure that did not become a row.
type Ignored struct {
	ExpID  int
	Reason string
}

// Result summarises a seeding run.
type Result struct {
	Added []proctable.Key
	// Existing counts rows that were already present.
	Existing int
	Ignored  []Ignored
}

// Seeder turns exposures into processing rows.
type Seeder struct {
	resolver *dependency.Resolver
	opts     Options
	logger   *slog.Logger
}

// New returns a Seeder using resolver for dependency assignment.
func New(resolver *dependency.Resolver, opts Options, logger *slog.Logger) *Seeder {
	return &Seeder{
		resolver: resolver,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "seed"),
	}
}

type pass struct {
	table    *proctable.Table
	night    int
	result   Result
	arcs     []*proctable.Row
	flats    []*proctable.Row
	sciences []*proctable.Row
	arcJob   bool
	flatJob  bool
	starFits map[int]bool
}

// Seed returns a copy of table extended with the rows for exposures of
// night. The input table is never modified, so a failed run leaves nothing
// half-seeded.
func (s *Seeder) Seed(table *proctable.Table, night int, exposures []exposure.Exposure) (*proctable.Table, Result, error) {
	p := &pass{table: table.Clone(), night: night, starFits: make(map[int]bool)}
	for _, row := range p.table.Rows() {
		if row.Night != night {
			continue
		}
		switch row.JobDesc {
		case proctable.JobPSFNight:
			p.arcJob = true
		case proctable.JobNightlyFlat:
			p.flatJob = true
		case proctable.JobStdStarFit:
			p.starFits[row.TileID] = true
		}
	}

	exps := slices.Clone(exposures)
	slices.SortStableFunc(exps, func(a, b exposure.Exposure) int { return a.ExpID - b.ExpID })

	var (
		started  bool
		lastType proctable.JobDesc
		lastTile int
	)
	for _, exp := range exps {
		desc, reason := s.classify(exp, night)
		if reason != "" {
			p.result.Ignored = append(p.result.Ignored, Ignored{ExpID: exp.ExpID, Reason: reason})
			s.logger.Debug("exposure ignored", logging.Int("expid", exp.ExpID), logging.String("reason", reason))
			continue
		}
		if started && (desc != lastType || exp.TileID != lastTile) {
			if err := s.closeGroup(p, lastType); err != nil {
				return nil, p.result, err
			}
		}

		row, err := s.add(p, single(exp, desc, night))
		if err != nil {
			return nil, p.result, err
		}
		switch {
		case desc == proctable.JobFlat && !p.flatJob && exp.SeqTot < maxShortFlatSequence:
			p.flats = append(p.flats, row)
		case desc == proctable.JobArc && !p.arcJob:
			p.arcs = append(p.arcs, row)
		case desc == proctable.JobScience && exp.LastStep != exposure.LastStepSkySub:
			p.sciences = append(p.sciences, row)
		}
		started, lastType, lastTile = true, desc, exp.TileID
	}
	if started && s.opts.EndOfNight {
		if err := s.closeGroup(p, lastType); err != nil {
			return nil, p.result, err
		}
	}
	return p.table, p.result, nil
}

func (s *Seeder) classify(exp exposure.Exposure, night int) (proctable.JobDesc, string) {
	if exp.Night != night {
		return "", fmt.Sprintf("exposure belongs to night %d", exp.Night)
	}
	if exp.LastStep == exposure.LastStepIgnore {
		return "", "flagged ignore"
	}
	if slices.Contains(s.opts.IgnoreExpIDs, exp.ExpID) {
		return "", "ignored on request"
	}
	if !slices.Contains(s.opts.ProcessObsTypes, exp.ObsType) {
		return "", fmt.Sprintf("obstype %q not processed", exp.ObsType)
	}
	desc, ok := proctable.ParseJobDesc(exp.ObsType)
	if !ok || desc.IsJointFit() {
		return "", fmt.Sprintf("obstype %q has no job", exp.ObsType)
	}
	if desc == proctable.JobArc && s.opts.MaxArcExpTime > 0 && exp.ExpTime > s.opts.MaxArcExpTime {
		return "", fmt.Sprintf("arc exptime %.1fs exceeds %.1fs", exp.ExpTime, s.opts.MaxArcExpTime)
	}
	if _, err := camword.Effective(exp.Camword, exp.BadCamword, exp.BadAmps); err != nil {
		return "", err.Error()
	}
	return desc, ""
}

func single(exp exposure.Exposure, desc proctable.JobDesc, night int) *proctable.Row {
	row := proctable.NewRow(desc, night, []int{exp.ExpID}, exp.TileID)
	row.ObsType = exp.ObsType
	row.Camword = exp.Camword
	row.BadCamword = exp.BadCamword
	row.BadAmps = exp.BadAmps
	return row
}

// closeGroup creates the joint fit that the finished exposure group feeds.
func (s *Seeder) closeGroup(p *pass, last proctable.JobDesc) error {
	switch last {
	case proctable.JobArc:
		if p.arcJob || len(p.arcs) == 0 {
			return nil
		}
		if _, err := s.joint(p, proctable.JobPSFNight, proctable.NoTile, p.arcs); err != nil {
			return err
		}
		p.arcJob, p.arcs = true, nil
	case proctable.JobFlat:
		if p.flatJob || len(p.flats) == 0 {
			return nil
		}
		if _, err := s.joint(p, proctable.JobNightlyFlat, proctable.NoTile, p.flats); err != nil {
			return err
		}
		p.flatJob, p.flats = true, nil
	case proctable.JobScience:
		sciences := p.sciences
		p.sciences = nil
		if len(sciences) == 0 {
			return nil
		}
		tile := sciences[0].TileID
		if tile == proctable.NoTile || p.starFits[tile] {
			return nil
		}
		if _, err := s.joint(p, proctable.JobStdStarFit, tile, sciences); err != nil {
			return err
		}
		p.starFits[tile] = true
	}
	return nil
}

// joint builds a joint fit over constituents. Its cameras are the union of
// the constituents' effective cameras and it depends on every constituent.
func (s *Seeder) joint(p *pass, desc proctable.JobDesc, tile int, constituents []*proctable.Row) (*proctable.Row, error) {
	var (
		ids  []int
		cams camword.Set
		deps []proctable.Key
	)
	for _, c := range constituents {
		ids = append(ids, c.ExpIDs...)
		eff, err := camword.Effective(c.Camword, c.BadCamword, c.BadAmps)
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", c.Key(), err)
		}
		cams = cams.Union(eff)
		deps = append(deps, c.Key())
	}
	row := proctable.NewRow(desc, p.night, ids, tile)
	row.ObsType = constituents[0].ObsType
	row.Camword = cams.String()
	row.Dependencies = deps
	return s.add(p, row)
}

// add appends row unless its key is already present, in which case the
// existing row is returned untouched.
func (s *Seeder) add(p *pass, row *proctable.Row) (*proctable.Row, error) {
	if existing, ok := p.table.Find(row.Key()); ok {
		p.result.Existing++
		return existing, nil
	}
	if err := s.resolver.Assign(row, p.table); err != nil {
		return nil, err
	}
	if err := p.table.Append(row); err != nil {
		return nil, err
	}
	p.result.Added = append(p.result.Added, row.Key())

	attrs := []logging.Attr{
		logging.Row(row.Key()),
		logging.Int("dependencies", len(row.Dependencies)),
		logging.String(logging.FieldEventType, "row_created"),
	}
	if len(row.Missing) > 0 {
		missing := make([]string, len(row.Missing))
		for i, m := range row.Missing {
			missing[i] = string(m)
		}
		attrs = append(attrs, logging.Any("missing", missing))
	}
	s.logger.Info("row created", logging.Args(attrs...)...)
	return row, nil
}
