package clump

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"

	"github.com/isolab/clump/errs"
	"github.com/isolab/clump/isotope"
)

// SimulatedSample describes one carbonate sample for measurement simulation.
// Bulk composition and excess values left nil are looked up in the default
// nominal tables by sample name.
type SimulatedSample struct {
	Name string
	// N is how many replicate analyses to generate.
	N int

	D13CVPDB *float64
	D18OVPDB *float64
	Excess47 *float64
	Excess48 *float64
	Excess49 float64
	D17O     float64
}

// SimulatedSession holds the instrumental state of one simulated session:
// working-gas composition, the affine response of both clumped masses and
// the analytical repeatability of each.
type SimulatedSession struct {
	Name string

	WGD13C float64
	WGD18O float64

	A47, B47, C47 float64
	A48, B48, C48 float64

	// RD47, RD48 are the analytical repeatabilities in permil. Zero
	// produces noiseless measurements.
	RD47, RD48 float64
	// Seed makes the generated noise repeatable.
	Seed int64
}

// NewSimulatedSession returns a session with a typical working gas (-4 permil
// VPDB, +26 permil VSMOW), unit scrambling, no compositional nonlinearity and
// customary working-gas offsets.
func NewSimulatedSession(name string) SimulatedSession {
	return SimulatedSession{
		Name:   name,
		WGD13C: -4,
		WGD18O: 26,
		A47:    1, C47: -0.9,
		A48: 1, C48: -0.45,
	}
}

// SimulateAnalysis computes the working-gas delta values one analysis of the
// given sample would produce in the given session, assuming a stochastic
// working gas and a noiseless measurement.
//
// Returns ErrUnknownSample when a nil composition field has no entry in the
// default nominal tables.
func SimulateAnalysis(sess SimulatedSession, smp SimulatedSample) (Record, error) {
	cs := isotope.Defaults()
	acid := defaultAcidAlpha

	d13C, err := simLookup(smp.D13CVPDB, NominalD13C(), smp.Name, "d13C_VPDB")
	if err != nil {
		return Record{}, err
	}
	d18O, err := simLookup(smp.D18OVPDB, NominalD18O(), smp.Name, "d18O_VPDB")
	if err != nil {
		return Record{}, err
	}
	x47, err := simLookup(smp.Excess47, NominalD47(), smp.Name, "D47")
	if err != nil {
		return Record{}, err
	}
	x48, err := simLookup(smp.Excess48, NominalD48(), smp.Name, "D48")
	if err != nil {
		return Record{}, err
	}

	wg := cs.IsobarRatios(
		cs.R13VPDB*(1+sess.WGD13C/1000),
		cs.R18VSMOW*(1+sess.WGD18O/1000),
		isotope.Anomalies{},
	)
	r13 := cs.R13VPDB * (1 + d13C/1000)
	r18 := cs.R18VPDB() * (1 + d18O/1000) * acid
	sample := cs.IsobarRatios(r13, r18, isotope.Anomalies{
		D17O: smp.D17O, D47: x47, D48: x48, D49: smp.Excess49,
	})
	stoch := cs.IsobarRatios(r13, r18, isotope.Anomalies{D17O: smp.D17O})

	d45 := 1000 * (sample.R45/wg.R45 - 1)
	d46 := 1000 * (sample.R46/wg.R46 - 1)
	d47 := 1000 * (sample.R47/wg.R47 - 1)
	d48 := 1000 * (sample.R48/wg.R48 - 1)
	d49 := 1000 * (sample.R49/wg.R49 - 1)

	// The session response applies to the raw excess values, which depend
	// weakly on d47/d48 through the nonlinearity terms; a few fixed-point
	// rounds settle them.
	for round := 0; round < 3; round++ {
		r47raw := (1 + (sess.A47*x47+sess.B47*d47+sess.C47)/1000) * stoch.R47
		r48raw := (1 + (sess.A48*x48+sess.B48*d48+sess.C48)/1000) * stoch.R48
		d47 = 1000 * (r47raw/wg.R47 - 1)
		d48 = 1000 * (r48raw/wg.R48 - 1)
	}

	return Record{
		Session: sess.Name,
		Sample:  smp.Name,
		D45:     d45,
		D46:     d46,
		D47:     d47,
		D48:     &d48,
		D49:     &d49,
		D17O:    smp.D17O,
	}, nil
}

// Simulate generates replicate analyses for a whole session. Measurement
// noise with the session's repeatabilities is added to d47 and d48; the
// generated noise is rescaled so that its realized standard deviation matches
// the requested repeatability exactly.
func Simulate(sess SimulatedSession, samples []SimulatedSample) ([]Record, error) {
	total := 0
	for _, smp := range samples {
		total += smp.N
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: no analyses requested", errs.ErrMissingField)
	}

	rng := rand.New(rand.NewSource(sess.Seed))
	noise47 := simNoise(rng, total, sess.RD47)
	noise48 := simNoise(rng, total, sess.RD48)

	out := make([]Record, 0, total)
	k := 0
	for _, smp := range samples {
		rec, err := SimulateAnalysis(sess, smp)
		if err != nil {
			return nil, err
		}
		for rep := 0; rep < smp.N; rep++ {
			r := rec
			d48 := *rec.D48 + noise48[k]*sess.A48
			d49 := *rec.D49
			r.D47 += noise47[k] * sess.A47
			r.D48 = &d48
			r.D49 = &d49
			out = append(out, r)
			k++
		}
	}

	return out, nil
}

func simLookup(v *float64, nominal map[string]float64, sample, field string) (float64, error) {
	if v != nil {
		return *v, nil
	}
	n, ok := nominal[sample]
	if !ok {
		return 0, fmt.Errorf("%w: %q has no nominal %s", errs.ErrUnknownSample, sample, field)
	}

	return n, nil
}

// simNoise draws n standard normal deviates and rescales them to a realized
// standard deviation of r.
func simNoise(rng *rand.Rand, n int, r float64) []float64 {
	out := make([]float64, n)
	if r == 0 {
		return out
	}
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	if n > 1 {
		if sd := stat.StdDev(out, nil); sd > 0 {
			for i := range out {
				out[i] *= r / sd
			}
		}
	} else {
		out[0] = math.Copysign(r, out[0])
	}

	return out
}
