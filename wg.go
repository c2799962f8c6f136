package clump

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/isolab/clump/errs"
)

// ResolveWorkingGases derives each session's working-gas bulk composition
// from the carbonate standards that carry both nominal δ13C and δ18O values.
//
// For each session, the standards' true isobar ratios (computed from their
// nominal compositions after acid fractionation) are regressed against the
// measured d45 and d46 values. When the measurements bracket d = 0
// reasonably well, the regression intercept gives the working-gas ratio
// directly; otherwise each analysis's implied ratio is averaged instead of
// extrapolating.
func (d *Dataset) ResolveWorkingGases() error {
	if d.stage >= stageCrunched {
		return fmt.Errorf("%w: working gas must be resolved before crunching (stage is %s)", errs.ErrStageOrder, d.stage)
	}

	type ratioPair struct{ r45, r46 float64 }
	standards := make(map[string]ratioPair)
	c := d.cfg.constants
	for name, d13c := range d.cfg.nominalD13C {
		d18o, ok := d.cfg.nominalD18O[name]
		if !ok {
			continue
		}
		r13 := c.R13VPDB * (1 + d13c/1000)
		r17 := c.R17VPDB() * math.Pow((1+d18o/1000)*d.cfg.acidAlpha, c.Lambda17)
		r18 := c.R18VPDB() * (1 + d18o/1000) * d.cfg.acidAlpha

		c12 := 1 / (1 + r13)
		c13 := r13 / (1 + r13)
		c16 := 1 / (1 + r17 + r18)
		c17 := r17 / (1 + r17 + r18)
		c18 := r18 / (1 + r17 + r18)

		c626 := c12 * c16 * c16
		c627 := 2 * c12 * c16 * c17
		c628 := 2 * c12 * c16 * c18
		c636 := c13 * c16 * c16
		c637 := 2 * c13 * c16 * c17
		c727 := c12 * c17 * c17

		standards[name] = ratioPair{
			r45: (c627 + c636) / c626,
			r46: (c628 + c637 + c727) / c626,
		}
	}
	if len(standards) == 0 {
		return fmt.Errorf("%w: no carbonate standard carries both nominal d13C and d18O values", errs.ErrNoAnchors)
	}

	for _, name := range d.sessionNames {
		s := d.sessions[name]

		var d45s, d46s, r45s, r46s []float64
		for _, a := range s.analyses {
			std, ok := standards[a.Sample]
			if !ok {
				continue
			}
			d45s = append(d45s, a.D45)
			d46s = append(d46s, a.D46)
			r45s = append(r45s, std.r45)
			r46s = append(r46s, std.r46)
		}
		if len(d45s) == 0 {
			return fmt.Errorf("%w: session %q has no analyses of any carbonate standard", errs.ErrNoAnchors, name)
		}

		r45wg := wgRatio(d45s, r45s)
		r46wg := wgRatio(d46s, r46s)

		d13c, d18o, err := c.BulkDelta(r45wg, r46wg, 0)
		if err != nil {
			return fmt.Errorf("session %q: %w", name, err)
		}

		s.WGD13C, s.WGD18O, s.wgSet = d13c, d18o, true
		for _, a := range s.analyses {
			a.WGD13C, a.WGD18O = d13c, d18o
		}
		d.log.Info("resolved working gas", "session", name, "d13C_VPDB", d13c, "d18O_VSMOW", d18o)
	}
	d.advanceWG()

	return nil
}

// wgRatio estimates the working-gas isobar ratio from measured deltas x and
// the standards' true ratios y. The delta origin is extrapolated by linear
// regression only when it falls inside (or close to) the measured range.
func wgRatio(x, y []float64) float64 {
	x1, x2 := x[0], x[0]
	for _, v := range x {
		x1 = math.Min(x1, v)
		x2 = math.Max(x2, v)
	}

	wgcoord := 999.0
	if x1 < x2 {
		wgcoord = x1 / (x1 - x2)
	}
	if wgcoord < -0.5 || wgcoord > 1.5 {
		// d=0 is far outside the measured range; average the per-analysis
		// implied ratios instead of extrapolating.
		sum := 0.0
		for i := range x {
			sum += y[i] / (1 + x[i]/1000)
		}

		return sum / float64(len(x))
	}

	intercept, _ := stat.LinearRegression(x, y, nil, false)

	return intercept
}
