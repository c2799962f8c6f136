package regress

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/isolab/clump/errs"
)

// SessionParams holds the standardization coefficients of one session fitted
// independently of all others, together with their 6x6 covariance matrix in
// fixed (a, b, c, a2, b2, c2) order. Inactive drift terms are zero with zero
// covariance rows.
type SessionParams struct {
	A, B, C    float64
	A2, B2, C2 float64

	// CM is the scaled parameter covariance matrix.
	CM *mat.Dense
	// Na is the number of anchor analyses fitted.
	Na int
	// Np is the number of active parameters.
	Np int
}

// Standardize maps one analysis onto the absolute reference frame.
func (p *SessionParams) Standardize(raw, delta, t float64) float64 {
	return (raw - p.C - p.B*delta - p.C2*t - p.B2*t*delta) / (p.A + p.A2*t)
}

// StandardizationError propagates the session parameter covariance onto a
// standardized composition (delta, excess) at time t.
func (p *SessionParams) StandardizationError(delta, excess, t float64) float64 {
	den := p.A + p.A2*t
	v := mat.NewVecDense(6, []float64{
		-excess / den,
		-delta / den,
		-1 / den,
		-excess * p.A2 / den,
		-delta * t / den,
		-t / den,
	})
	var cmv mat.VecDense
	cmv.MulVec(p.CM, v)

	return math.Sqrt(math.Max(mat.Dot(v, &cmv), 0))
}

// StdErrs returns the standard errors of (a, b, c, a2, b2, c2).
func (p *SessionParams) StdErrs() [6]float64 {
	var se [6]float64
	for i := range se {
		se[i] = math.Sqrt(math.Max(p.CM.At(i, i), 0))
	}

	return se
}

// IndepFit is the result of standardizing each session independently.
// Values and Weights are aligned with the input observation slice: Values
// holds the standardized excess of each analysis, Weights its scaled
// standard-error proxy.
type IndepFit struct {
	Sessions map[string]*SessionParams

	Values  []float64
	Weights []float64

	// DF is the pooled degrees of freedom: analyses minus unknown samples
	// minus the active parameters of every session.
	DF int
	// RMSWD is the root mean squared weighted deviation used to scale
	// weights and covariances.
	RMSWD float64
	// Repeatability is the unweighted analytical repeatability of the
	// standardized excess values across all samples.
	Repeatability float64
}

// Indep fits each session's standardization coefficients from its anchor
// analyses alone, then standardizes every analysis with its own session's
// coefficients. Weights and covariances are rescaled by the overall RMSWD so
// that downstream errors reflect the observed external reproducibility.
func Indep(obs []Observation, cfg Config) (*IndepFit, error) {
	if len(obs) == 0 {
		return nil, fmt.Errorf("%w: no observations", errs.ErrUnderdetermined)
	}
	for name := range cfg.Sessions {
		found := false
		for _, o := range obs {
			if o.Session == name {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %q configured but has no analyses", errs.ErrUnknownSession, name)
		}
	}

	byIndex := make(map[string][]int)
	for i, o := range obs {
		byIndex[o.Session] = append(byIndex[o.Session], i)
	}

	fit := &IndepFit{
		Sessions: make(map[string]*SessionParams, len(byIndex)),
		Values:   make([]float64, len(obs)),
		Weights:  make([]float64, len(obs)),
	}

	totalNp := 0
	for _, session := range sortedSessions(obs) {
		idx := byIndex[session]
		sc := cfg.session(session)
		active := [6]bool{true, true, true, sc.ScramblingDrift, sc.SlopeDrift, sc.OffsetDrift}
		np := sc.nparams()
		totalNp += np

		var rows [][6]float64
		var y []float64
		for _, i := range idx {
			o := obs[i]
			if !o.Anchor {
				continue
			}
			w := o.Weight
			if w <= 0 {
				w = 1
			}
			rows = append(rows, [6]float64{
				o.Nominal / w,
				o.Delta / w,
				1 / w,
				o.Nominal * o.Time / w,
				o.Delta * o.Time / w,
				o.Time / w,
			})
			y = append(y, o.Raw/w)
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("%w: session %q has no anchor analyses", errs.ErrNoAnchors, session)
		}
		if len(rows) < np {
			return nil, fmt.Errorf("%w: session %q has %d anchor analyses for %d parameters", errs.ErrUnderdetermined, session, len(rows), np)
		}

		a := mat.NewDense(len(rows), np, nil)
		for r, row := range rows {
			k := 0
			for j, on := range active {
				if on {
					a.Set(r, k, row[j])
					k++
				}
			}
		}
		yv := mat.NewVecDense(len(y), y)

		var ata mat.Dense
		ata.Mul(a.T(), a)
		var cm mat.Dense
		if err := cm.Inverse(&ata); err != nil {
			return nil, fmt.Errorf("%w: session %q anchor design is singular: %v", errs.ErrRankDeficient, session, err)
		}
		var aty mat.VecDense
		aty.MulVec(a.T(), yv)
		var bf mat.VecDense
		bf.MulVec(&cm, &aty)

		sp := &SessionParams{CM: mat.NewDense(6, 6, nil), Na: len(rows), Np: np}
		coeffs := [6]*float64{&sp.A, &sp.B, &sp.C, &sp.A2, &sp.B2, &sp.C2}
		var activeIdx []int
		k := 0
		for j, on := range active {
			if on {
				*coeffs[j] = bf.AtVec(k)
				activeIdx = append(activeIdx, j)
				k++
			}
		}
		for i, ji := range activeIdx {
			for j, jj := range activeIdx {
				sp.CM.Set(ji, jj, cm.At(i, j))
			}
		}
		fit.Sessions[session] = sp

		for _, i := range idx {
			o := obs[i]
			w := o.Weight
			if w <= 0 {
				w = 1
			}
			fit.Values[i] = sp.Standardize(o.Raw, o.Delta, o.Time)
			fit.Weights[i] = w / (sp.A + sp.A2*o.Time)
		}
	}

	// Scale weights and covariances by the RMSWD of the standardized
	// values, so that replicate scatter sets the error floor.
	rmswd := indepRMSWD(obs, fit.Values, fit.Weights)
	fit.RMSWD = rmswd
	if rmswd > 0 {
		for i := range fit.Weights {
			fit.Weights[i] *= rmswd
		}
		for _, sp := range fit.Sessions {
			sp.CM.Scale(rmswd*rmswd, sp.CM)
		}
	}

	unknowns := sortedUnknowns(obs)
	fit.DF = len(obs) - len(unknowns) - totalNp

	fit.Repeatability = indepRepeatability(obs, fit.Values, fit.DF)

	return fit, nil
}

// indepRMSWD computes the root mean squared weighted deviation of the
// standardized values around their per-sample weighted means. Samples with a
// single analysis contribute nothing.
func indepRMSWD(obs []Observation, values, weights []float64) float64 {
	type group struct {
		idx []int
	}
	groups := make(map[string]*group)
	for i, o := range obs {
		g := groups[o.Sample]
		if g == nil {
			g = &group{}
			groups[o.Sample] = g
		}
		g.idx = append(g.idx, i)
	}

	chisq, nf := 0.0, 0
	for _, g := range groups {
		if len(g.idx) < 2 {
			continue
		}
		num, den := 0.0, 0.0
		for _, i := range g.idx {
			w2 := weights[i] * weights[i]
			num += values[i] / w2
			den += 1 / w2
		}
		mean := num / den
		for _, i := range g.idx {
			r := (values[i] - mean) / weights[i]
			chisq += r * r
		}
		nf += len(g.idx) - 1
	}
	if nf == 0 {
		return 0
	}

	return math.Sqrt(chisq / float64(nf))
}

// indepRepeatability computes the unweighted scatter of standardized values
// around their per-sample means, normalized by the pooled degrees of
// freedom.
func indepRepeatability(obs []Observation, values []float64, df int) float64 {
	if df <= 0 {
		return 0
	}
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i, o := range obs {
		sums[o.Sample] += values[i]
		counts[o.Sample]++
	}
	chisq := 0.0
	for i, o := range obs {
		d := values[i] - sums[o.Sample]/float64(counts[o.Sample])
		chisq += d * d
	}

	return math.Sqrt(chisq / float64(df))
}
