package isotope

import "math"

// Ratios holds the isobar ratios of a CO2 population relative to the
// mass-44 isotopologue.
type Ratios struct {
	R45 float64
	R46 float64
	R47 float64
	R48 float64
	R49 float64
}

// Anomalies holds excess values (in permil) relative to the stochastic
// isotopologue distribution. The zero value describes a stochastic gas.
type Anomalies struct {
	D17O float64
	D47  float64
	D48  float64
	D49  float64
}

// IsobarRatios computes the isobar ratios of a CO2 population with bulk
// isotopic ratios r13 (13C/12C) and r18 (18O/16O), optionally perturbed by
// non-zero anomalies. The 17O abundance follows the mass-dependent law
// R17 = R17VSMOW * exp(D17O/1000) * (r18/R18VSMOW)**Lambda17.
func (c Constants) IsobarRatios(r13, r18 float64, an Anomalies) Ratios {
	r17 := c.R17VSMOW * math.Exp(an.D17O/1000) * math.Pow(r18/c.R18VSMOW, c.Lambda17)

	// Isotope concentrations.
	c12 := 1 / (1 + r13)
	c13 := c12 * r13
	c16 := 1 / (1 + r17 + r18)
	c17 := c16 * r17
	c18 := c16 * r18

	// Stochastic isotopologue concentrations.
	c626 := c16 * c12 * c16
	c627 := c16 * c12 * c17 * 2
	c628 := c16 * c12 * c18 * 2
	c636 := c16 * c13 * c16
	c637 := c16 * c13 * c17 * 2
	c638 := c16 * c13 * c18 * 2
	c727 := c17 * c12 * c17
	c728 := c17 * c12 * c18 * 2
	c737 := c17 * c13 * c17
	c738 := c17 * c13 * c18 * 2
	c828 := c18 * c12 * c18
	c838 := c18 * c13 * c18

	rr := Ratios{
		R45: (c636 + c627) / c626,
		R46: (c628 + c637 + c727) / c626,
		R47: (c638 + c728 + c737) / c626,
		R48: (c738 + c828) / c626,
		R49: c838 / c626,
	}

	rr.R47 *= 1 + an.D47/1000
	rr.R48 *= 1 + an.D48/1000
	rr.R49 *= 1 + an.D49/1000

	return rr
}

// RatioFromDelta converts a delta value (permil, relative to a reference
// ratio) into an absolute ratio.
func RatioFromDelta(delta, reference float64) float64 {
	return (1 + delta/1000) * reference
}

// DeltaFromRatio converts an absolute ratio into a delta value (permil,
// relative to a reference ratio).
func DeltaFromRatio(ratio, reference float64) float64 {
	return 1000 * (ratio/reference - 1)
}
