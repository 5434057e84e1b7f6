package seed_test

import (
	"errors"
	"slices"
	"testing"

	"nightproc/internal/camword"
	"nightproc/internal/dependency"
	"nightproc/internal/exposure"
	"nightproc/internal/logging"
	"nightproc/internal/proctable"
	"nightproc/internal/seed"
	"nightproc/internal/testsupport"
)

const night = testsupport.Night

var processed = []string{"arc", "flat", "science", "twilight", "dark", "zero"}

func exp(id int, obstype string, tile int) exposure.Exposure {
	return exposure.Exposure{
		ExpID:    id,
		Night:    night,
		ObsType:  obstype,
		ExpTime:  5,
		TileID:   tile,
		Camword:  "a0123456789",
		LastStep: exposure.LastStepAll,
		SeqTot:   3,
	}
}

func fullNight() []exposure.Exposure {
	return []exposure.Exposure{
		exp(1, "arc", proctable.NoTile),
		exp(2, "arc", proctable.NoTile),
		exp(3, "arc", proctable.NoTile),
		exp(4, "flat", proctable.NoTile),
		exp(5, "flat", proctable.NoTile),
		exp(6, "science", 100),
		exp(7, "science", 100),
		exp(8, "science", 101),
	}
}

func newSeeder(opts seed.Options) *seed.Seeder {
	if opts.ProcessObsTypes == nil {
		opts.ProcessObsTypes = processed
	}
	resolver := dependency.NewResolver(dependency.DefaultRules(true), true)
	return seed.New(resolver, opts, logging.NewNop())
}

func key(desc proctable.JobDesc, tile int, ids ...int) proctable.Key {
	return proctable.NewKey(desc, ids, tile)
}

var (
	psfKey = key(proctable.JobPSFNight, proctable.NoTile, 1, 2, 3)
	nfKey  = key(proctable.JobNightlyFlat, proctable.NoTile, 4, 5)
)

func TestSeedFullNight(t *testing.T) {
	table, res, err := newSeeder(seed.Options{EndOfNight: true}).Seed(proctable.New(), night, fullNight())
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}

	want := []proctable.Key{
		key(proctable.JobArc, proctable.NoTile, 1),
		key(proctable.JobArc, proctable.NoTile, 2),
		key(proctable.JobArc, proctable.NoTile, 3),
		psfKey,
		key(proctable.JobFlat, proctable.NoTile, 4),
		key(proctable.JobFlat, proctable.NoTile, 5),
		nfKey,
		key(proctable.JobScience, 100, 6),
		key(proctable.JobScience, 100, 7),
		key(proctable.JobStdStarFit, 100, 6, 7),
		key(proctable.JobScience, 101, 8),
		key(proctable.JobStdStarFit, 101, 8),
	}
	if !slices.Equal(res.Added, want) {
		t.Fatalf("added rows:\n got %v\nwant %v", res.Added, want)
	}
	var got []proctable.Key
	for _, row := range table.Rows() {
		got = append(got, row.Key())
	}
	if !slices.Equal(got, want) {
		t.Fatalf("table order differs from creation order: %v", got)
	}

	psf := testsupport.MustFind(t, table, psfKey)
	if len(psf.Dependencies) != 3 || psf.Camword != "a0123456789" {
		t.Fatalf("psfnight = deps %v camword %q", psf.Dependencies, psf.Camword)
	}
	flat := testsupport.MustFind(t, table, key(proctable.JobFlat, proctable.NoTile, 4))
	if !slices.Equal(flat.Dependencies, []proctable.Key{psfKey}) {
		t.Fatalf("flat deps = %v", flat.Dependencies)
	}
	sci := testsupport.MustFind(t, table, key(proctable.JobScience, 101, 8))
	if !slices.Equal(sci.Dependencies, []proctable.Key{nfKey}) {
		t.Fatalf("science deps = %v", sci.Dependencies)
	}
	star := testsupport.MustFind(t, table, key(proctable.JobStdStarFit, 100, 6, 7))
	if star.TileID != 100 || len(star.Dependencies) != 2 || star.Status != proctable.StatusUnsubmitted {
		t.Fatalf("stdstarfit = %+v", star)
	}
	if err := table.Validate(); err != nil {
		t.Fatalf("seeded table invalid: %v", err)
	}
	if err := dependency.CheckAcyclic(table); err != nil {
		t.Fatalf("seeded table cyclic: %v", err)
	}
}

func TestSeedReplayAddsNothing(t *testing.T) {
	s := newSeeder(seed.Options{EndOfNight: true})
	first, _, err := s.Seed(proctable.New(), night, fullNight())
	if err != nil {
		t.Fatalf("first Seed: %v", err)
	}
	second, res, err := s.Seed(first, night, fullNight())
	if err != nil {
		t.Fatalf("second Seed: %v", err)
	}
	if len(res.Added) != 0 {
		t.Fatalf("replay added %v", res.Added)
	}
	if res.Existing != 8 {
		t.Fatalf("expected 8 existing single-exposure rows, got %d", res.Existing)
	}
	if !second.Equal(first) {
		t.Fatal("replay changed the table")
	}
}

func TestSeedIncrementalMatchesOneShot(t *testing.T) {
	s := newSeeder(seed.Options{})
	partial, res, err := s.Seed(proctable.New(), night, fullNight()[:5])
	if err != nil {
		t.Fatalf("partial Seed: %v", err)
	}
	if len(res.Added) != 6 {
		t.Fatalf("expected arcs, psfnight and flats only, got %v", res.Added)
	}
	if _, ok := partial.Find(nfKey); ok {
		t.Fatal("nightly flat created while the flat sequence is still open")
	}

	final := newSeeder(seed.Options{EndOfNight: true})
	incremental, _, err := final.Seed(partial, night, fullNight())
	if err != nil {
		t.Fatalf("incremental Seed: %v", err)
	}
	oneShot, _, err := final.Seed(proctable.New(), night, fullNight())
	if err != nil {
		t.Fatalf("one-shot Seed: %v", err)
	}
	if !incremental.Equal(oneShot) {
		t.Fatal("incremental seeding diverged from a single pass")
	}
	if partial.Len() != 6 {
		t.Fatalf("input table modified: %d rows", partial.Len())
	}
}

func TestSeedIgnoresUnprocessedExposures(t *testing.T) {
	ignored := exp(2, "arc", proctable.NoTile)
	ignored.LastStep = exposure.LastStepIgnore
	bias := exp(3, "bias", proctable.NoTile)
	longArc := exp(4, "arc", proctable.NoTile)
	longArc.ExpTime = 60
	badCams := exp(5, "flat", proctable.NoTile)
	badCams.Camword = "q7"
	otherNight := exp(6, "flat", proctable.NoTile)
	otherNight.Night = night + 1
	longFlats := exp(7, "flat", proctable.NoTile)
	longFlats.SeqTot = 5
	skysub := exp(8, "science", 100)
	skysub.LastStep = exposure.LastStepSkySub

	exps := []exposure.Exposure{skysub, exp(1, "arc", proctable.NoTile), ignored, bias, longArc, badCams, otherNight, longFlats}
	table, res, err := newSeeder(seed.Options{MaxArcExpTime: 8, EndOfNight: true}).Seed(proctable.New(), night, exps)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}

	var ids []int
	for _, ig := range res.Ignored {
		if ig.Reason == "" {
			t.Fatalf("exposure %d ignored without a reason", ig.ExpID)
		}
		ids = append(ids, ig.ExpID)
	}
	if !slices.Equal(ids, []int{2, 3, 4, 5, 6}) {
		t.Fatalf("ignored = %v", ids)
	}

	want := []proctable.Key{
		key(proctable.JobArc, proctable.NoTile, 1),
		key(proctable.JobPSFNight, proctable.NoTile, 1),
		key(proctable.JobFlat, proctable.NoTile, 7),
		key(proctable.JobScience, 100, 8),
	}
	if !slices.Equal(res.Added, want) {
		t.Fatalf("added:\n got %v\nwant %v", res.Added, want)
	}
	sci := testsupport.MustFind(t, table, key(proctable.JobScience, 100, 8))
	if len(sci.Missing) != 0 {
		t.Fatalf("science should fall back to psfnight, missing %v", sci.Missing)
	}
}

func TestSeedSkipsRequestedExpIDs(t *testing.T) {
	opts := seed.Options{EndOfNight: true, IgnoreExpIDs: []int{2, 7}}
	table, res, err := newSeeder(opts).Seed(proctable.New(), night, fullNight())
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if len(res.Ignored) != 2 || res.Ignored[0].ExpID != 2 || res.Ignored[1].ExpID != 7 {
		t.Fatalf("ignored = %+v", res.Ignored)
	}
	if res.Ignored[0].Reason != "ignored on request" {
		t.Fatalf("unexpected reason %q", res.Ignored[0].Reason)
	}
	for _, k := range []proctable.Key{
		key(proctable.JobArc, proctable.NoTile, 2),
		key(proctable.JobScience, 100, 7),
		psfKey,
	} {
		if _, ok := table.Find(k); ok {
			t.Fatalf("row %s created for a skipped exposure", k)
		}
	}
	testsupport.MustFind(t, table, key(proctable.JobPSFNight, proctable.NoTile, 1, 3))
	testsupport.MustFind(t, table, key(proctable.JobStdStarFit, 100, 6))
}

func TestSeedJointFitUnionsEffectiveCameras(t *testing.T) {
	a := exp(1, "arc", proctable.NoTile)
	a.Camword = "a0"
	a.BadCamword = "b0"
	b := exp(2, "arc", proctable.NoTile)
	b.Camword = "a1"
	b.BadAmps = "r1A"

	table, _, err := newSeeder(seed.Options{EndOfNight: true}).Seed(proctable.New(), night, []exposure.Exposure{a, b})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	psf := testsupport.MustFind(t, table, key(proctable.JobPSFNight, proctable.NoTile, 1, 2))
	want := camword.MustParse("r0z0").Union(camword.MustParse("a1")).String()
	if psf.Camword != want || psf.BadCamword != "" || psf.BadAmps != "" {
		t.Fatalf("psfnight cameras = %q bad %q amps %q, want %q", psf.Camword, psf.BadCamword, psf.BadAmps, want)
	}
}

func TestSeedStrictResolutionLeavesTableUntouched(t *testing.T) {
	resolver := dependency.NewResolver(dependency.DefaultRules(false), false)
	s := seed.New(resolver, seed.Options{ProcessObsTypes: processed}, logging.NewNop())

	input := testsupport.NewTable(t, testsupport.NewRow(proctable.JobZero, []int{1}))
	out, _, err := s.Seed(input, night, []exposure.Exposure{exp(2, "dark", proctable.NoTile), exp(3, "flat", proctable.NoTile)})
	var unresolved *dependency.UnresolvedDependencyError
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected UnresolvedDependencyError, got %v", err)
	}
	if out != nil {
		t.Fatal("expected no table on failure")
	}
	if input.Len() != 1 {
		t.Fatalf("input table modified: %d rows", input.Len())
	}
}
