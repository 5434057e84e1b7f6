package dependency

import (
	"slices"

	"nightproc/internal/proctable"
)

// Kind is one prerequisite a job description needs. The first of JobDesc
// and Fallbacks (in that order) with an eligible row wins.
type Kind struct {
	JobDesc   proctable.JobDesc
	Fallbacks []proctable.JobDesc
}

// Candidates returns the job descriptions tried for this kind, in order.
func (k Kind) Candidates() []proctable.JobDesc {
	return append([]proctable.JobDesc{k.JobDesc}, k.Fallbacks...)
}

// Rules maps a job description to the prerequisite kinds it requires.
type Rules map[proctable.JobDesc][]Kind

// DefaultRules returns the nightly calibration chain: flats wait on the arc
// joint fit, science and twilight exposures wait on the nightly flat. When
// arcFallback is set, science falls back to the arc joint fit if no nightly
// flat exists.
func DefaultRules(arcFallback bool) Rules {
	sciKind := Kind{JobDesc: proctable.JobNightlyFlat}
	if arcFallback {
		sciKind.Fallbacks = []proctable.JobDesc{proctable.JobPSFNight}
	}
	return Rules{
		proctable.JobFlat:     {{JobDesc: proctable.JobPSFNight}},
		proctable.JobScience:  {sciKind},
		proctable.JobTwilight: {cloneKind(sciKind)},
	}
}

// For returns the kinds required by desc.
func (r Rules) For(desc proctable.JobDesc) []Kind {
	return r[desc]
}

func cloneKind(k Kind) Kind {
	k.Fallbacks = slices.Clone(k.Fallbacks)
	return k
}
