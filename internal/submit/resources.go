package submit

import (
	"time"

	"nightproc/internal/batch"
	"nightproc/internal/proctable"
)

const (
	camerasPerSpectrograph = 3
	maxArcNodes            = 10
	maxNodes               = 5
)

// Resources returns the scheduling hints for a job processing ncameras
// cameras over nexps exposures on nodes with coresPerNode cores.
func Resources(desc proctable.JobDesc, ncameras, nexps, coresPerNode int) batch.Resources {
	if ncameras < 1 {
		ncameras = 1
	}
	if nexps < 1 {
		nexps = 1
	}
	if coresPerNode < 1 {
		coresPerNode = 1
	}
	nspectro := (ncameras-1)/camerasPerSpectrograph + 1

	var cores, minutes int
	switch desc {
	case proctable.JobArc:
		// One extra core for the scheduler process.
		cores, minutes = 10*ncameras+1, 45
	case proctable.JobFlat:
		cores, minutes = 20*nspectro, 25
	case proctable.JobScience, proctable.JobTwilight:
		cores, minutes = 20*nspectro, 30
	case proctable.JobDark:
		cores, minutes = 8, 10
	case proctable.JobZero:
		cores, minutes = 2, 5
	case proctable.JobPSFNight, proctable.JobNightlyFlat:
		cores, minutes = ncameras, 5
	case proctable.JobStdStarFit:
		cores, minutes = 20*ncameras, 6+2*nexps
	default:
		cores, minutes = ncameras, 30
	}

	nodes := (cores-1)/coresPerNode + 1
	limit := maxNodes
	if desc == proctable.JobArc {
		limit = maxArcNodes
	}
	if nodes > limit {
		nodes = limit
		cores = coresPerNode * nodes
		if desc == proctable.JobArc {
			cores = ((cores-1)/20)*20 + 1
		}
	}
	return batch.Resources{Nodes: nodes, Cores: cores, Runtime: time.Duration(minutes) * time.Minute}
}
