package clump

import (
	"fmt"
	"math"

	"github.com/isolab/clump/errs"
)

// Record is one analysis as handed over by an external loader: working-gas
// relative delta values plus identity and optional metadata. Required fields
// are Sample, D45, D46 and the delta of the dataset's target mass (D47 for a
// Δ47 dataset, D48 for Δ48).
type Record struct {
	// UID uniquely identifies the analysis. Auto-assigned sequentially
	// when empty.
	UID string
	// Session names the analytical session. Records without a session are
	// grouped into one default session.
	Session string
	// Sample names the measured sample. Required.
	Sample string

	// D45, D46, D47 are working-gas-relative delta values in permil.
	D45, D46, D47 float64
	// D48, D49 are optional; nil marks them as not measured.
	D48, D49 *float64

	// D17O is the independently known oxygen-17 anomaly, zero by default.
	D17O float64
	// TimeTag is an optional explicit time coordinate. When any record of
	// a session lacks one, the whole session falls back to input order.
	TimeTag *float64
	// Weight scales this analysis's residual in the standardization fit;
	// zero means unit weight.
	Weight float64
}

// Analysis is one processed measurement. Identity fields are immutable after
// construction; derived fields are written once per pipeline stage.
type Analysis struct {
	UID     string
	Session string
	Sample  string

	D45, D46, D47, D48, D49 float64
	D17O                    float64
	Weight                  float64

	timeTag    float64
	hasTimeTag bool

	// sampleOrig remembers the pre-split sample name while a SplitSamples
	// regrouping is in effect.
	sampleOrig string

	// T is the session-centered time coordinate, set during
	// standardization.
	T float64

	// Working-gas bulk composition, copied from the session.
	WGD13C, WGD18O float64

	// Bulk composition of the analyte CO2, set by Crunch.
	D13CVPDB, D18OVSMOW float64
	// Raw excess values relative to the stochastic distribution, set by
	// Crunch.
	D47Raw, D48Raw, D49Raw float64

	// Excess is the standardized excess value of the dataset's target
	// mass, set by Standardize.
	Excess float64
}

// delta returns the working-gas-relative delta of the given mass.
func (a *Analysis) delta(mass string) float64 {
	if mass == "48" {
		return a.D48
	}

	return a.D47
}

// rawExcess returns the raw excess value of the given mass.
func (a *Analysis) rawExcess(mass string) float64 {
	if mass == "48" {
		return a.D48Raw
	}

	return a.D47Raw
}

func newAnalysis(i int, rec Record, mass, defaultSession string) (*Analysis, error) {
	if rec.Sample == "" {
		return nil, fmt.Errorf("%w: record %d has no sample name", errs.ErrMissingField, i)
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"d45", rec.D45},
		{"d46", rec.D46},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return nil, fmt.Errorf("%w: record %d (sample %q) has invalid %s", errs.ErrMissingField, i, rec.Sample, f.name)
		}
	}

	a := &Analysis{
		UID:     rec.UID,
		Session: rec.Session,
		Sample:  rec.Sample,
		D45:     rec.D45,
		D46:     rec.D46,
		D47:     rec.D47,
		D48:     math.NaN(),
		D49:     math.NaN(),
		D17O:    rec.D17O,
		Weight:  rec.Weight,
	}
	if a.UID == "" {
		a.UID = fmt.Sprintf("%d", i+1)
	}
	if a.Session == "" {
		a.Session = defaultSession
	}
	if a.Weight <= 0 {
		a.Weight = 1
	}
	if rec.D48 != nil {
		a.D48 = *rec.D48
	}
	if rec.D49 != nil {
		a.D49 = *rec.D49
	}
	if rec.TimeTag != nil {
		a.timeTag = *rec.TimeTag
		a.hasTimeTag = true
	}

	target := a.delta(mass)
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return nil, fmt.Errorf("%w: record %d (sample %q) has no d%s value", errs.ErrMissingField, i, rec.Sample, mass)
	}

	return a, nil
}
