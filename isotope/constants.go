// Package isotope implements the isotopic-ratio algebra underlying clumped
// isotope data reduction: stochastic isobar-ratio computation for CO2 and the
// iterative oxygen-17 correction that deconvolves bulk composition from
// measured mass-45 and mass-46 ratios.
package isotope

import "math"

// Constants groups the oxygen-17 correction parameters. A zero Constants is
// not usable; start from Defaults and override fields as needed.
type Constants struct {
	// R13VPDB is the absolute 13C/12C ratio of VPDB (Chang & Li, 1990).
	R13VPDB float64
	// R17VSMOW is the absolute 17O/16O ratio of VSMOW
	// (Assonov & Brenninkmeijer, 2003, rescaled to R13VPDB).
	R17VSMOW float64
	// R18VSMOW is the absolute 18O/16O ratio of VSMOW (Baertschi, 1976).
	R18VSMOW float64
	// Lambda17 is the mass-dependent triple-oxygen exponent (Barkan & Luz, 2005).
	Lambda17 float64
}

// Defaults returns the standard parameter set used throughout the clumped
// isotope community.
func Defaults() Constants {
	return Constants{
		R13VPDB:  0.01118,
		R17VSMOW: 0.00038475,
		R18VSMOW: 0.0020052,
		Lambda17: 0.528,
	}
}

// R18VPDB returns the absolute 18O/16O ratio of VPDB,
// by definition R18VSMOW * 1.03092.
func (c Constants) R18VPDB() float64 {
	return c.R18VSMOW * 1.03092
}

// R17VPDB returns the absolute 17O/16O ratio of VPDB,
// by definition R17VSMOW * 1.03092**Lambda17.
func (c Constants) R17VPDB() float64 {
	return c.R17VSMOW * math.Pow(1.03092, c.Lambda17)
}
