package regress

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/isolab/clump/errs"
)

const (
	// Gauss-Newton step tolerance. The model is bilinear, so once the
	// unknown excess values settle the problem is linear and the final
	// steps shrink quadratically.
	pooledTol     = 1e-12
	pooledMaxIter = 64

	startScrambling = 0.9
	startSlope      = 0.0
	startOffset     = -0.9
	startExcess     = 0.5
)

// Pooled solves the full standardization system in one weighted
// least-squares fit: every session's coefficients and every unknown sample's
// excess value are free parameters, anchors enter with their nominal excess
// values fixed.
func Pooled(obs []Observation, cfg Config) (*Fit, error) {
	if len(obs) == 0 {
		return nil, fmt.Errorf("%w: no observations", errs.ErrUnderdetermined)
	}

	sessions := sortedSessions(obs)
	present := make(map[string]struct{}, len(sessions))
	for _, s := range sessions {
		present[s] = struct{}{}
	}
	for name := range cfg.Sessions {
		if _, ok := present[name]; !ok {
			return nil, fmt.Errorf("%w: %q configured but has no analyses", errs.ErrUnknownSession, name)
		}
	}

	hasAnchor := false
	for _, o := range obs {
		if o.Anchor {
			hasAnchor = true
			break
		}
	}
	if !hasAnchor {
		return nil, fmt.Errorf("%w: pooled standardization needs at least one anchor analysis", errs.ErrNoAnchors)
	}

	unknowns := sortedUnknowns(obs)

	var full []string
	defaults := make(map[string]float64)
	addParam := func(name string, start float64) {
		full = append(full, name)
		defaults[name] = start
	}
	for _, s := range sessions {
		sc := cfg.session(s)
		addParam(AName(s), startScrambling)
		addParam(BName(s), startSlope)
		addParam(CName(s), startOffset)
		if sc.ScramblingDrift {
			addParam(A2Name(s), 0)
		}
		if sc.SlopeDrift {
			addParam(B2Name(s), 0)
		}
		if sc.OffsetDrift {
			addParam(C2Name(s), 0)
		}
	}
	for _, u := range unknowns {
		addParam(DName(cfg.Mass, u), startExcess)
	}

	rp, err := buildReparam(full, cfg.Constraints)
	if err != nil {
		return nil, err
	}

	n := len(obs)
	nFree := len(rp.free)
	df := n - nFree
	// An exactly determined system (df == 0) is rejected too: the reduced
	// chi-squared that scales the covariance matrix needs at least one
	// spare observation.
	if df < 1 {
		return nil, fmt.Errorf("%w: %d observations for %d free parameters", errs.ErrUnderdetermined, n, nFree)
	}

	theta := rp.initialFree(defaults)
	jac := mat.NewDense(n, len(full), nil)
	res := mat.NewVecDense(n, nil)
	var (
		jf   mat.Dense
		jtj  mat.Dense
		jtr  mat.VecDense
		step mat.VecDense
	)

	converged := false
	for iter := 0; iter < pooledMaxIter; iter++ {
		thetaFull := rp.expand(theta)
		fillSystem(obs, cfg, rp, thetaFull, jac, res)

		jf.Mul(jac, rp.g)
		jtj.Mul(jf.T(), &jf)
		jtr.MulVec(jf.T(), res)
		if err := step.SolveVec(&jtj, &jtr); err != nil {
			return nil, fmt.Errorf("%w: normal equations are singular: %v", errs.ErrRankDeficient, err)
		}
		theta.AddVec(theta, &step)

		if mat.Norm(&step, math.Inf(1)) < pooledTol*(1+mat.Norm(theta, math.Inf(1))) {
			converged = true
			break
		}
	}
	if !converged {
		return nil, fmt.Errorf("%w: pooled fit did not converge within %d iterations", errs.ErrNoConvergence, pooledMaxIter)
	}

	thetaFull := rp.expand(theta)
	fillSystem(obs, cfg, rp, thetaFull, jac, res)
	jf.Mul(jac, rp.g)
	jtj.Mul(jf.T(), &jf)

	chisq := mat.Dot(res, res)
	redchi := chisq / float64(df)

	var inv mat.Dense
	if err := inv.Inverse(&jtj); err != nil {
		return nil, fmt.Errorf("%w: cannot invert normal equations: %v", errs.ErrRankDeficient, err)
	}
	inv.Scale(redchi, &inv)

	residuals := make([]float64, n)
	for i := range residuals {
		residuals[i] = res.AtVec(i)
	}

	return &Fit{
		names:         full,
		index:         rp.index,
		values:        thetaFull,
		covar:         rp.expandCovar(&inv),
		Residuals:     residuals,
		ChiSquared:    chisq,
		DF:            df,
		RedChiSquared: redchi,
		NObs:          n,
		NFree:         nFree,
	}, nil
}

// fillSystem evaluates the weighted residual vector and the Jacobian of the
// model with respect to the full parameter set at thetaFull.
func fillSystem(obs []Observation, cfg Config, rp *reparam, thetaFull *mat.VecDense, jac *mat.Dense, res *mat.VecDense) {
	jac.Zero()
	at := func(name string) float64 { return thetaFull.AtVec(rp.index[name]) }

	for i, o := range obs {
		w := o.Weight
		if w <= 0 {
			w = 1
		}
		sc := cfg.session(o.Session)

		ia := rp.index[AName(o.Session)]
		ib := rp.index[BName(o.Session)]
		ic := rp.index[CName(o.Session)]
		a := thetaFull.AtVec(ia)
		b := thetaFull.AtVec(ib)
		c := thetaFull.AtVec(ic)

		var a2, b2, c2 float64
		if sc.ScramblingDrift {
			a2 = at(A2Name(o.Session))
		}
		if sc.SlopeDrift {
			b2 = at(B2Name(o.Session))
		}
		if sc.OffsetDrift {
			c2 = at(C2Name(o.Session))
		}

		d := o.Nominal
		if !o.Anchor {
			d = at(DName(cfg.Mass, o.Sample))
		}

		model := a*d + b*o.Delta + c + a2*o.Time*d + b2*o.Time*o.Delta + c2*o.Time
		res.SetVec(i, (o.Raw-model)/w)

		jac.Set(i, ia, d/w)
		jac.Set(i, ib, o.Delta/w)
		jac.Set(i, ic, 1/w)
		if sc.ScramblingDrift {
			jac.Set(i, rp.index[A2Name(o.Session)], o.Time*d/w)
		}
		if sc.SlopeDrift {
			jac.Set(i, rp.index[B2Name(o.Session)], o.Time*o.Delta/w)
		}
		if sc.OffsetDrift {
			jac.Set(i, rp.index[C2Name(o.Session)], o.Time/w)
		}
		if !o.Anchor {
			jac.Set(i, rp.index[DName(cfg.Mass, o.Sample)], (a+a2*o.Time)/w)
		}
	}
}
