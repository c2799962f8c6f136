package clump

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/isolab/clump/errs"
	"github.com/isolab/clump/stats"
)

// Subset selects which samples contribute to a repeatability estimate.
type Subset string

const (
	SubsetAll      Subset = "all"
	SubsetAnchors  Subset = "anchors"
	SubsetUnknowns Subset = "unknowns"
)

// Quantity names a per-analysis value whose repeatability can be estimated.
type Quantity string

const (
	QuantityD13C   Quantity = "d13C_VPDB"
	QuantityD18O   Quantity = "d18O_VSMOW"
	QuantityExcess Quantity = "excess"
)

// consolidate compiles per-sample and per-session statistics after the
// standardization fit.
func (d *Dataset) consolidate() error {
	if err := d.consolidateSamples(); err != nil {
		return err
	}
	if err := d.consolidateSessions(); err != nil {
		return err
	}

	return d.repeatabilities()
}

func (d *Dataset) consolidateSamples() error {
	ref, ok := d.samples[d.cfg.leveneRef]
	if !ok {
		return fmt.Errorf("%w: variance reference sample %q not in dataset", errs.ErrUnknownSample, d.cfg.leveneRef)
	}
	refPop := make([]float64, ref.N())
	for i, a := range ref.analyses {
		refPop[i] = a.Excess
	}

	for _, name := range d.sampleNames {
		smp := d.samples[name]

		pop := make([]float64, smp.N())
		for i, a := range smp.analyses {
			pop[i] = a.Excess
		}
		if smp.N() > 1 {
			smp.SD = stat.StdDev(pop, nil)
			smp.hasSD = true
		}
		smp.D13CVPDB = meanOf(smp.analyses, func(a *Analysis) float64 { return a.D13CVPDB })
		smp.D18OVSMOW = meanOf(smp.analyses, func(a *Analysis) float64 { return a.D18OVSMOW })

		if smp.N() > 2 {
			_, p, err := stats.LevenePValue(refPop, pop)
			if err != nil {
				return fmt.Errorf("sample %q: %w", name, err)
			}
			smp.PLevene, smp.hasPLevene = p, true
		}
	}

	switch d.method {
	case MethodPooled:
		return d.consolidatePooledSamples()
	case MethodIndepSessions:
		return d.consolidateIndepSamples()
	}

	return nil
}

func (d *Dataset) consolidatePooledSamples() error {
	for _, name := range d.sampleNames {
		smp := d.samples[name]
		if smp.Anchor {
			smp.Excess, smp.SE = smp.Nominal, 0
			continue
		}

		v := 0.0
		for _, p := range d.pooledParts(name) {
			pv, err := d.fit.Value(p.param)
			if err != nil {
				return err
			}
			v += p.weight * pv
		}
		vv, err := d.pooledCovar(name, name)
		if err != nil {
			return err
		}
		smp.Excess, smp.SE = v, mathSqrt(vv)
	}

	return nil
}

func (d *Dataset) consolidateIndepSamples() error {
	// Global analysis index, to pull the per-analysis weights out of the
	// independent fit.
	index := make(map[*Analysis]int, len(d.analyses))
	for i, a := range d.analyses {
		index[a] = i
	}

	for _, name := range d.sampleNames {
		smp := d.samples[name]
		if smp.Anchor {
			smp.Excess, smp.SE = smp.Nominal, 0
			continue
		}

		smp.sessionShares = make(map[string]sessionShare)
		var values, ses []float64
		var sessionsOf []string
		for _, sname := range d.sessionNames {
			var group []*Analysis
			for _, a := range d.sessions[sname].analyses {
				if a.Sample == name {
					group = append(group, a)
				}
			}
			if len(group) == 0 {
				continue
			}

			avgD := meanOf(group, func(a *Analysis) float64 { return a.Excess })
			avgd := meanOf(group, func(a *Analysis) float64 { return a.delta(d.mass) })
			sp := d.indep.Sessions[sname]
			sigmaS := sp.StandardizationError(avgd, avgD, 0)
			sigmaU := d.indep.Weights[index[group[0]]] / math.Sqrt(float64(len(group)))
			se := math.Sqrt(sigmaU*sigmaU + sigmaS*sigmaS)

			smp.sessionShares[sname] = sessionShare{
				value: avgD, se: se, meanD: avgD, meand: avgd,
			}
			values = append(values, avgD)
			ses = append(ses, se)
			sessionsOf = append(sessionsOf, sname)
		}

		v, se, err := stats.WeightedMean(values, ses)
		if err != nil {
			return fmt.Errorf("sample %q: %w", name, err)
		}
		smp.Excess, smp.SE = v, se

		wsum := 0.0
		for _, s := range ses {
			wsum += 1 / (s * s)
		}
		for i, sname := range sessionsOf {
			share := smp.sessionShares[sname]
			share.weight = (1 / (ses[i] * ses[i])) / wsum
			smp.sessionShares[sname] = share
		}
	}

	return nil
}

func (d *Dataset) consolidateSessions() error {
	for _, name := range d.sessionNames {
		s := d.sessions[name]
		one := []string{name}

		var err error
		if s.RD13C, err = d.repeatability(QuantityD13C, SubsetAnchors, one); err != nil {
			return err
		}
		if s.RD18O, err = d.repeatability(QuantityD18O, SubsetAnchors, one); err != nil {
			return err
		}
		if s.RExcess, err = d.repeatability(QuantityExcess, SubsetAll, one); err != nil {
			return err
		}
	}

	return nil
}

func (d *Dataset) repeatabilities() error {
	var err error
	if d.repD13C, err = d.repeatability(QuantityD13C, SubsetAnchors, nil); err != nil {
		return err
	}
	if d.repD18O, err = d.repeatability(QuantityD18O, SubsetAnchors, nil); err != nil {
		return err
	}
	if d.repExcessA, err = d.repeatability(QuantityExcess, SubsetAnchors, nil); err != nil {
		return err
	}
	if d.repExcessU, err = d.repeatability(QuantityExcess, SubsetUnknowns, nil); err != nil {
		return err
	}
	if d.repExcessAll, err = d.repeatability(QuantityExcess, SubsetAll, nil); err != nil {
		return err
	}

	return nil
}

// Repeatability estimates the pooled standard deviation of a per-analysis
// quantity over the given sample subset and sessions (nil means all
// sessions). For the standardized excess, the degrees of freedom account for
// the parameters fitted jointly across the pooled dataset: anchors
// contribute n replicates each (their value is externally fixed), unknowns
// n-1, and subsets including anchors give up the standardization parameter
// count of the selected sessions.
func (d *Dataset) Repeatability(q Quantity, subset Subset, sessions []string) (float64, error) {
	if d.stage < stageStandardized {
		return 0, fmt.Errorf("%w: repeatabilities require a standardized dataset (stage is %s)", errs.ErrStageOrder, d.stage)
	}

	return d.repeatability(q, subset, sessions)
}

func (d *Dataset) repeatability(q Quantity, subset Subset, sessions []string) (float64, error) {
	switch q {
	case QuantityD13C, QuantityD18O, QuantityExcess:
	default:
		return 0, fmt.Errorf("%w: unknown quantity %q", errs.ErrMissingField, q)
	}
	switch subset {
	case SubsetAll, SubsetAnchors, SubsetUnknowns:
	default:
		return 0, fmt.Errorf("%w: unknown sample subset %q", errs.ErrMissingField, subset)
	}

	if sessions == nil {
		sessions = d.sessionNames
	}
	inSession := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		if _, ok := d.sessions[s]; !ok {
			return 0, fmt.Errorf("%w: %q", errs.ErrUnknownSession, s)
		}
		inSession[s] = true
	}

	value := func(a *Analysis) float64 {
		switch q {
		case QuantityD13C:
			return a.D13CVPDB
		case QuantityD18O:
			return a.D18OVSMOW
		default:
			return a.Excess
		}
	}

	chisq, nf := 0.0, 0
	for _, name := range d.sampleNames {
		smp := d.samples[name]
		if subset == SubsetAnchors && !smp.Anchor {
			continue
		}
		if subset == SubsetUnknowns && smp.Anchor {
			continue
		}

		var xs []float64
		for _, a := range smp.analyses {
			if inSession[a.Session] {
				xs = append(xs, value(a))
			}
		}
		if len(xs) < 2 {
			continue
		}

		if q == QuantityExcess {
			for _, x := range xs {
				dx := x - smp.Excess
				chisq += dx * dx
			}
			if smp.Anchor {
				nf += len(xs)
			} else {
				nf += len(xs) - 1
			}
		} else {
			m := stat.Mean(xs, nil)
			for _, x := range xs {
				dx := x - m
				chisq += dx * dx
			}
			nf += len(xs) - 1
		}
	}

	if q == QuantityExcess && subset != SubsetUnknowns {
		for _, s := range sessions {
			nf -= d.sessions[s].Np
		}
	}
	if nf <= 0 {
		return 0, nil
	}

	return math.Sqrt(chisq / float64(nf)), nil
}

// RepeatabilitySummary reports the pooled repeatabilities across all
// sessions: bulk compositions over anchors, and the standardized excess over
// anchors, unknowns and all samples.
func (d *Dataset) RepeatabilitySummary() (rD13C, rD18O, rExcessAnchors, rExcessUnknowns, rExcessAll float64) {
	return d.repD13C, d.repD18O, d.repExcessA, d.repExcessU, d.repExcessAll
}

// SampleCI returns the half-width of a sample's confidence interval at the
// configured confidence level. The boolean is false when the interval is not
// reported: single-replicate samples, anchors, or zero estimated variance.
func (d *Dataset) SampleCI(name string) (float64, bool, error) {
	if d.stage < stageStandardized {
		return 0, false, fmt.Errorf("%w: confidence intervals require a standardized dataset", errs.ErrStageOrder)
	}
	smp, err := d.Sample(name)
	if err != nil {
		return 0, false, err
	}
	ci, ok := smp.confidenceInterval(d.tcrit)

	return ci, ok, nil
}
