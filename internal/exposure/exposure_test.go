package exposure_test

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"nightproc/internal/exposure"
	"nightproc/internal/proctable"
	"nightproc/internal/testsupport"
)

func TestReadParsesAndSorts(t *testing.T) {
	input := strings.Join([]string{
		"expid,night,obstype,exptime,tileid,camword,badcamword,badamps,laststep,seqtot",
		"103,20240115,SCIENCE,900.0,1000,a0123,b1,\"r0A, r0B\",skysub,1",
		"101,20240115,arc,5.0,-99,a0123,,,,3",
		"102,20240115,flat,120,,a0123,,,ignore,",
	}, "\n")

	exps, err := exposure.Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(exps) != 3 || exps[0].ExpID != 101 || exps[2].ExpID != 103 {
		t.Fatalf("unexpected order %+v", exps)
	}
	arc, sci := exps[0], exps[2]
	if arc.TileID != proctable.NoTile || arc.LastStep != exposure.LastStepAll || arc.SeqTot != 3 {
		t.Fatalf("arc defaults wrong: %+v", arc)
	}
	if sci.ObsType != "science" || sci.TileID != 1000 || sci.ExpTime != 900 {
		t.Fatalf("science parsed wrong: %+v", sci)
	}
	if sci.BadAmps != "r0A,r0B" || sci.BadCamword != "b1" || sci.LastStep != exposure.LastStepSkySub {
		t.Fatalf("science constraints wrong: %+v", sci)
	}
	if exps[1].LastStep != exposure.LastStepIgnore {
		t.Fatalf("flat laststep %q", exps[1].LastStep)
	}
}

func TestReadRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"missing column": "EXPID,NIGHT\n1,20240115\n",
		"bad expid":      "EXPID,NIGHT,OBSTYPE\nx,20240115,arc\n",
		"duplicate":      "EXPID,NIGHT,OBSTYPE\n1,20240115,arc\n1,20240115,arc\n",
		"bad exptime":    "EXPID,NIGHT,OBSTYPE,EXPTIME\n1,20240115,arc,long\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := exposure.Read(strings.NewReader(input)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCSVSourceFiltersNight(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "202401", "exposure_table_20240115.csv")
	testsupport.WriteFile(t, path,
		"EXPID,NIGHT,OBSTYPE",
		"1,20240115,arc",
		"2,20240114,arc",
	)
	source := exposure.NewCSVSource(func(int) string { return path })
	exps, err := source.Exposures(20240115)
	if err != nil {
		t.Fatalf("Exposures: %v", err)
	}
	if len(exps) != 1 || exps[0].ExpID != 1 {
		t.Fatalf("expected only the requested night, got %+v", exps)
	}

	missing := exposure.NewCSVSource(func(int) string { return filepath.Join(dir, "absent.csv") })
	if _, err := missing.Exposures(20240115); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
