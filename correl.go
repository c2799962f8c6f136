package clump

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/isolab/clump/errs"
	"github.com/isolab/clump/export"
	"github.com/isolab/clump/stats"
)

// SampleCovar returns the error covariance between the standardized excess
// values of two samples (their shared variance when s1 == s2). Anchors have
// zero variance by definition.
func (d *Dataset) SampleCovar(s1, s2 string) (float64, error) {
	if d.stage < stageStandardized {
		return 0, fmt.Errorf("%w: sample covariances require a standardized dataset", errs.ErrStageOrder)
	}
	a, err := d.Sample(s1)
	if err != nil {
		return 0, err
	}
	b, err := d.Sample(s2)
	if err != nil {
		return 0, err
	}
	if a.Anchor || b.Anchor {
		return 0, nil
	}

	switch d.method {
	case MethodPooled:
		return d.pooledCovar(s1, s2)
	case MethodIndepSessions:
		return d.indepCovar(a, b), nil
	}

	return 0, fmt.Errorf("%w: dataset not standardized", errs.ErrStageOrder)
}

// indepCovar propagates the per-session parameter covariances shared by two
// samples measured in the same sessions.
func (d *Dataset) indepCovar(a, b *Sample) float64 {
	if a == b {
		return a.SE * a.SE
	}

	c := 0.0
	for _, sname := range d.sessionNames {
		sa, okA := a.sessionShares[sname]
		sb, okB := b.sessionShares[sname]
		if !okA || !okB {
			continue
		}
		s := d.sessions[sname]

		va := mat.NewVecDense(3, []float64{sa.meanD, sa.meand, 1})
		vb := mat.NewVecDense(3, []float64{sb.meanD, sb.meand, 1})
		cm3 := s.CM.Slice(0, 3, 0, 3)
		var cmv mat.VecDense
		cmv.MulVec(cm3, vb)
		c += sa.weight * sb.weight * mat.Dot(va, &cmv) / (s.A * s.A)
	}

	return c
}

// SampleCorrel returns the error correlation between the standardized
// excess values of two samples. Samples without a reported variance
// correlate at zero (one by convention with themselves).
func (d *Dataset) SampleCorrel(s1, s2 string) (float64, error) {
	if s1 == s2 {
		if _, err := d.Sample(s1); err != nil {
			return 0, err
		}
		return 1, nil
	}
	cov, err := d.SampleCovar(s1, s2)
	if err != nil {
		return 0, err
	}
	a := d.samples[s1]
	b := d.samples[s2]
	if a.SE == 0 || b.SE == 0 {
		return 0, nil
	}

	return cov / (a.SE * b.SE), nil
}

// SampleAverage returns the weighted average excess value of a group of
// samples and its standard error, accounting for the covariances between
// them. Nil weights mean equal weighting; with normalize the weights are
// rescaled to sum to one, so that [1, -1] without normalization gives the
// difference between two samples.
func (d *Dataset) SampleAverage(samples []string, weights []float64, normalize bool) (float64, float64, error) {
	if d.stage < stageStandardized {
		return 0, 0, fmt.Errorf("%w: sample averages require a standardized dataset", errs.ErrStageOrder)
	}
	if len(samples) == 0 {
		return 0, 0, fmt.Errorf("%w: no samples to average", errs.ErrMissingField)
	}
	if weights == nil {
		weights = make([]float64, len(samples))
		for i := range weights {
			weights[i] = 1 / float64(len(samples))
		}
	}
	if len(weights) != len(samples) {
		return 0, 0, fmt.Errorf("%w: %d weights for %d samples", errs.ErrMissingField, len(weights), len(samples))
	}
	if normalize {
		sum := 0.0
		for _, w := range weights {
			sum += w
		}
		if sum != 0 {
			scaled := make([]float64, len(weights))
			for i, w := range weights {
				scaled[i] = w / sum
			}
			weights = scaled
		}
	}

	values := make([]float64, len(samples))
	cov := mat.NewDense(len(samples), len(samples), nil)
	for i, si := range samples {
		smp, err := d.Sample(si)
		if err != nil {
			return 0, 0, err
		}
		values[i] = smp.Excess
		for j, sj := range samples {
			c, err := d.SampleCovar(si, sj)
			if err != nil {
				return 0, 0, err
			}
			cov.Set(i, j, c)
		}
	}

	return stats.CorrelatedSum(values, cov, weights)
}

// CombineSamples merges samples into groups, weighting each member by its
// replicate count, and returns the group values with their full covariance
// as an export matrix. Group names fix the output order (sorted).
func (d *Dataset) CombineSamples(groups map[string][]string) (*export.Matrix, error) {
	if d.stage < stageStandardized {
		return nil, fmt.Errorf("%w: combining samples requires a standardized dataset", errs.ErrStageOrder)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: no sample groups", errs.ErrMissingField)
	}

	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	sort.Strings(names)

	var members []string
	for _, g := range names {
		ms := append([]string(nil), groups[g]...)
		sort.Strings(ms)
		for _, m := range ms {
			if _, err := d.Sample(m); err != nil {
				return nil, err
			}
			members = append(members, m)
		}
	}

	values := mat.NewVecDense(len(members), nil)
	cov := mat.NewDense(len(members), len(members), nil)
	for i, m := range members {
		values.SetVec(i, d.samples[m].Excess)
		for j, m2 := range members {
			c, err := d.SampleCovar(m, m2)
			if err != nil {
				return nil, err
			}
			cov.Set(i, j, c)
		}
	}

	w := mat.NewDense(len(names), len(members), nil)
	for gi, g := range names {
		total := 0
		inGroup := make(map[string]bool, len(groups[g]))
		for _, m := range groups[g] {
			total += d.samples[m].N()
			inGroup[m] = true
		}
		if total == 0 {
			return nil, fmt.Errorf("%w: group %q has no analyses", errs.ErrMissingField, g)
		}
		for mi, m := range members {
			if inGroup[m] {
				w.Set(gi, mi, float64(d.samples[m].N())/float64(total))
			}
		}
	}

	var gv mat.VecDense
	gv.MulVec(w, values)
	var tmp, gcov mat.Dense
	tmp.Mul(w, cov)
	gcov.Mul(&tmp, w.T())

	out := &export.Matrix{
		Mass:    d.mass,
		Samples: names,
		Values:  make([]float64, len(names)),
		SEs:     make([]float64, len(names)),
		Covar:   &gcov,
	}
	for i := range names {
		out.Values[i] = gv.AtVec(i)
		out.SEs[i] = mathSqrt(gcov.At(i, i))
	}

	return out, nil
}

// CovarMatrix assembles the standardized values, standard errors and full
// covariance of the given samples (all unknowns when nil) into an export
// matrix, preserving off-diagonal structure in the listed order.
func (d *Dataset) CovarMatrix(samples []string) (*export.Matrix, error) {
	if d.stage < stageStandardized {
		return nil, fmt.Errorf("%w: covariance export requires a standardized dataset", errs.ErrStageOrder)
	}
	if samples == nil {
		samples = d.Unknowns()
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no samples to export", errs.ErrMissingField)
	}

	out := &export.Matrix{
		Mass:    d.mass,
		Samples: append([]string(nil), samples...),
		Values:  make([]float64, len(samples)),
		SEs:     make([]float64, len(samples)),
		Covar:   mat.NewDense(len(samples), len(samples), nil),
	}
	for i, name := range samples {
		smp, err := d.Sample(name)
		if err != nil {
			return nil, err
		}
		out.Values[i] = smp.Excess
		out.SEs[i] = smp.SE
		for j, name2 := range samples {
			c, err := d.SampleCovar(name, name2)
			if err != nil {
				return nil, err
			}
			out.Covar.Set(i, j, c)
		}
	}

	return out, nil
}

func mathSqrt(v float64) float64 {
	if v < 0 {
		return 0
	}

	return math.Sqrt(v)
}
