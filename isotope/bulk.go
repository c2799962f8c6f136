package isotope

import (
	"fmt"
	"math"

	"github.com/isolab/clump/errs"
)

const (
	// bulkTolerance is the convergence criterion of the oxygen-17
	// correction, applied to successive bulk delta estimates in permil.
	bulkTolerance = 1e-10

	// bulkMaxIter bounds the fixed-point iteration.
	bulkMaxIter = 100
)

// BulkDelta deconvolves d13C_VPDB and d18O_VSMOW from the measured mass-45
// and mass-46 isobar ratios of a CO2 population, given an independently known
// oxygen-17 anomaly (permil).
//
// The mass-45 and mass-46 signals entangle 13C, 17O and 18O, and the 17O
// abundance itself depends on 18O through the mass-dependent law, so the
// system is solved by fixed-point iteration on the exact identities
//
//	R45 = R13 + 2*R17
//	R46 = 2*R18 + 2*R13*R17 + R17^2
//	R17 = K * R18^Lambda17, K = exp(D17O/1000) * R17VSMOW * R18VSMOW^-Lambda17
//
// starting from R17 = 0 (i.e. a first d18O estimate that ignores 17O). The
// iteration is deterministic and converges in a handful of steps for any
// physically meaningful input; failure to converge within the iteration
// budget returns errs.ErrNoConvergence.
func (c Constants) BulkDelta(r45, r46, d17O float64) (d13C, d18O float64, err error) {
	k := math.Exp(d17O/1000) * c.R17VSMOW * math.Pow(c.R18VSMOW, -c.Lambda17)

	var r17 float64
	prev13 := math.Inf(1)
	prev18 := math.Inf(1)

	for iter := 0; iter < bulkMaxIter; iter++ {
		r13 := r45 - 2*r17
		r18 := (r46 - 2*r13*r17 - r17*r17) / 2
		if r18 <= 0 || r13 <= 0 {
			return 0, 0, fmt.Errorf("non-physical bulk ratios (R45=%g, R46=%g): %w",
				r45, r46, errs.ErrNoConvergence)
		}

		d13C = 1000 * (r13/c.R13VPDB - 1)
		d18O = 1000 * (r18/c.R18VSMOW - 1)

		if math.Abs(d13C-prev13) < bulkTolerance && math.Abs(d18O-prev18) < bulkTolerance {
			return d13C, d18O, nil
		}

		prev13, prev18 = d13C, d18O
		r17 = k * math.Pow(r18, c.Lambda17)
	}

	return 0, 0, fmt.Errorf("oxygen-17 correction (R45=%g, R46=%g): %w",
		r45, r46, errs.ErrNoConvergence)
}
