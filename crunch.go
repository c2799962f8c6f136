package clump

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/isolab/clump/errs"
	"github.com/isolab/clump/isotope"
)

// Crunch computes, for every analysis, the bulk composition of the analyte
// CO2 and the raw excess values Δ47raw/Δ48raw/Δ49raw, then applies each
// session's bulk standardization against the carbonate standards. Requires
// every session's working gas to be assigned.
func (d *Dataset) Crunch() error {
	if d.stage < stageWG {
		for _, name := range d.sessionNames {
			if !d.sessions[name].wgSet {
				return fmt.Errorf("%w: session %q has no working gas (stage is %s)", errs.ErrStageOrder, name, d.stage)
			}
		}
	}
	if d.stage >= stageCrunched {
		return fmt.Errorf("%w: dataset already crunched (stage is %s)", errs.ErrStageOrder, d.stage)
	}

	for _, a := range d.analyses {
		if err := d.crunchAnalysis(a); err != nil {
			return err
		}
	}
	if err := d.standardizeD13C(); err != nil {
		return err
	}
	if err := d.standardizeD18O(); err != nil {
		return err
	}

	d.stage = stageCrunched
	d.log.Info("crunched analyses", "n", len(d.analyses))

	return nil
}

// crunchAnalysis deconvolves one analysis's bulk composition and raw excess
// values from its working-gas-relative deltas.
func (d *Dataset) crunchAnalysis(a *Analysis) error {
	c := d.cfg.constants

	r13wg := c.R13VPDB * (1 + a.WGD13C/1000)
	r18wg := c.R18VSMOW * (1 + a.WGD18O/1000)
	wg := c.IsobarRatios(r13wg, r18wg, isotope.Anomalies{})

	r45 := (1 + a.D45/1000) * wg.R45
	r46 := (1 + a.D46/1000) * wg.R46
	r47 := (1 + a.D47/1000) * wg.R47
	r48 := (1 + a.D48/1000) * wg.R48
	r49 := (1 + a.D49/1000) * wg.R49

	d13c, d18o, err := c.BulkDelta(r45, r46, a.D17O)
	if err != nil {
		return fmt.Errorf("analysis %s (sample %q, session %q): %w", a.UID, a.Sample, a.Session, err)
	}
	a.D13CVPDB, a.D18OVSMOW = d13c, d18o

	r13 := c.R13VPDB * (1 + d13c/1000)
	r18 := c.R18VSMOW * (1 + d18o/1000)
	stoch := c.IsobarRatios(r13, r18, isotope.Anomalies{D17O: a.D17O})

	if r45/stoch.R45-1 > 5e-8 {
		d.log.Warn("mass-45 anomaly after bulk solve", "uid", a.UID, "ppm", 1e6*(r45/stoch.R45-1))
	}
	if r46/stoch.R46-1 > 5e-8 {
		d.log.Warn("mass-46 anomaly after bulk solve", "uid", a.UID, "ppm", 1e6*(r46/stoch.R46-1))
	}

	a.D47Raw = 1000 * (r47/stoch.R47 - 1)
	a.D48Raw = 1000 * (r48/stoch.R48 - 1)
	a.D49Raw = 1000 * (r49/stoch.R49 - 1)

	return nil
}

// standardizeD13C aligns each session's crunched δ13C values with the
// nominal values of the carbonate standards, per the session's mode.
func (d *Dataset) standardizeD13C() error {
	for _, name := range d.sessionNames {
		s := d.sessions[name]
		if s.D13CMethod == BulkNone {
			continue
		}

		var xs, ys []float64
		for _, a := range s.analyses {
			nominal, ok := d.cfg.nominalD13C[a.Sample]
			if !ok {
				continue
			}
			xs = append(xs, a.D13CVPDB)
			ys = append(ys, nominal)
		}
		if len(xs) == 0 {
			return fmt.Errorf("%w: session %q has no d13C standard for %q standardization", errs.ErrNoAnchors, name, s.D13CMethod)
		}

		switch s.D13CMethod {
		case BulkOnePoint:
			offset := stat.Mean(ys, nil) - stat.Mean(xs, nil)
			for _, a := range s.analyses {
				a.D13CVPDB += offset
			}
		case BulkTwoPoint:
			intercept, slope := stat.LinearRegression(xs, ys, nil, false)
			for _, a := range s.analyses {
				a.D13CVPDB = slope*a.D13CVPDB + intercept
			}
		}
	}

	return nil
}

// standardizeD18O aligns each session's crunched δ18O values with the
// nominal mineral values of the carbonate standards, converted to the CO2
// scale through the acid fractionation factor.
func (d *Dataset) standardizeD18O() error {
	c := d.cfg.constants
	for _, name := range d.sessionNames {
		s := d.sessions[name]
		if s.D18OMethod == BulkNone {
			continue
		}

		var xs, ys []float64
		for _, a := range s.analyses {
			nominal, ok := d.cfg.nominalD18O[a.Sample]
			if !ok {
				continue
			}
			xs = append(xs, a.D18OVSMOW)
			ys = append(ys, (1000+nominal)*c.R18VPDB()*d.cfg.acidAlpha/c.R18VSMOW-1000)
		}
		if len(xs) == 0 {
			return fmt.Errorf("%w: session %q has no d18O standard for %q standardization", errs.ErrNoAnchors, name, s.D18OMethod)
		}

		switch s.D18OMethod {
		case BulkOnePoint:
			offset := stat.Mean(ys, nil) - stat.Mean(xs, nil)
			for _, a := range s.analyses {
				a.D18OVSMOW += offset
			}
		case BulkTwoPoint:
			intercept, slope := stat.LinearRegression(xs, ys, nil, false)
			for _, a := range s.analyses {
				a.D18OVSMOW = slope*a.D18OVSMOW + intercept
			}
		}
	}

	return nil
}

// meanOf averages f over a slice of analyses.
func meanOf(as []*Analysis, f func(*Analysis) float64) float64 {
	if len(as) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, a := range as {
		sum += f(a)
	}

	return sum / float64(len(as))
}
