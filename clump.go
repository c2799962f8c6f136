// Package clump converts raw dual-inlet mass-spectrometer measurements of
// carbonate-derived CO2 into error-propagated absolute clumped-isotope
// excess values (Δ47/Δ48) referenced to a common scale across measurement
// sessions.
//
// The pipeline is a synchronous batch computation over one Dataset:
//
//	ds, err := clump.NewD47(records)
//	ds.ResolveWorkingGases()   // or SetWorkingGas per session
//	ds.Crunch()                // bulk composition + raw excess values
//	ds.Standardize()           // pooled regression across all sessions
//
// After standardization every Sample carries its absolute excess value with
// standard error, confidence interval and replicate diagnostics, and the
// Dataset exposes the full covariance structure between unknown samples.
package clump

// NominalD47 returns the default Δ47 anchor values on the I-CDES scale
// (Bernasconi et al., 2021). The returned map is a fresh copy.
func NominalD47() map[string]float64 {
	return map[string]float64{
		"ETH-1":   0.2052,
		"ETH-2":   0.2085,
		"ETH-3":   0.6132,
		"ETH-4":   0.4511,
		"IAEA-C1": 0.3018,
		"IAEA-C2": 0.6409,
		"MERCK":   0.5135,
	}
}

// NominalD48 returns the default Δ48 anchor values (Fiebig et al., 2021).
// The returned map is a fresh copy.
func NominalD48() map[string]float64 {
	return map[string]float64{
		"ETH-1": 0.138,
		"ETH-2": 0.138,
		"ETH-3": 0.270,
		"ETH-4": 0.223,
		"GU-1":  -0.419,
	}
}

// NominalD13C returns the default δ13C_VPDB values of the carbonate
// standards used for bulk standardization and working-gas resolution. The
// returned map is a fresh copy.
func NominalD13C() map[string]float64 {
	return map[string]float64{
		"ETH-1": 2.02,
		"ETH-2": -10.17,
		"ETH-3": 1.71,
	}
}

// NominalD18O returns the default δ18O_VPDB values of the carbonate
// standards. The returned map is a fresh copy.
func NominalD18O() map[string]float64 {
	return map[string]float64{
		"ETH-1": -2.19,
		"ETH-2": -18.69,
		"ETH-3": -1.78,
	}
}

// NewD47 creates a Δ47 dataset with the default anchor and carbonate
// standard tables.
func NewD47(records []Record, opts ...Option) (*Dataset, error) {
	base := []Option{
		WithNominalExcess(NominalD47()),
		WithNominalD13C(NominalD13C()),
		WithNominalD18O(NominalD18O()),
	}

	return New("47", records, append(base, opts...)...)
}

// NewD48 creates a Δ48 dataset with the default anchor and carbonate
// standard tables.
func NewD48(records []Record, opts ...Option) (*Dataset, error) {
	base := []Option{
		WithNominalExcess(NominalD48()),
		WithNominalD13C(NominalD13C()),
		WithNominalD18O(NominalD18O()),
	}

	return New("48", records, append(base, opts...)...)
}
