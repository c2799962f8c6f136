package regress

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/isolab/clump/errs"
)

// Constraint expresses one model parameter as an affine combination of other
// model parameters: Param = sum(Terms[p] * p) + Const. The constrained
// parameter is eliminated from the free-parameter set before solving; its
// value and uncertainty are reconstructed from the fit afterwards.
type Constraint struct {
	// Param is the parameter being eliminated.
	Param string
	// Terms maps parameter names to their coefficients. Terms may reference
	// other constrained parameters as long as no reference cycle exists.
	Terms map[string]float64
	// Const is the additive constant.
	Const float64
}

// affine is a resolved constraint body: coefficients over free parameters
// plus a constant.
type affine struct {
	coeffs map[string]float64
	c      float64
}

// reparam holds the affine map from the free-parameter vector to the full
// parameter vector: full = G*free + g.
type reparam struct {
	full  []string
	free  []string
	index map[string]int // full name -> full position
	g     *mat.Dense     // len(full) x len(free)
	off   *mat.VecDense  // len(full)
}

// buildReparam validates the constraints against the full parameter list and
// constructs the elimination map. With no constraints the map is the
// identity.
func buildReparam(full []string, constraints []Constraint) (*reparam, error) {
	index := make(map[string]int, len(full))
	for i, name := range full {
		index[name] = i
	}

	targets := make(map[string]affine, len(constraints))
	for _, con := range constraints {
		if _, ok := index[con.Param]; !ok {
			return nil, fmt.Errorf("%w: constrained parameter %q does not exist in the model", errs.ErrBadConstraint, con.Param)
		}
		if _, dup := targets[con.Param]; dup {
			return nil, fmt.Errorf("%w: parameter %q constrained twice", errs.ErrBadConstraint, con.Param)
		}

		body := affine{coeffs: make(map[string]float64, len(con.Terms)), c: con.Const}
		for name, coeff := range con.Terms {
			if _, ok := index[name]; !ok {
				return nil, fmt.Errorf("%w: constraint on %q references unknown parameter %q", errs.ErrBadConstraint, con.Param, name)
			}
			if coeff != 0 {
				body.coeffs[name] = coeff
			}
		}
		targets[con.Param] = body
	}

	// Substitute constrained parameters into each other until every body
	// references free parameters only. Each pass eliminates at least one
	// cross-reference unless the constraints are circular.
	for pass := 0; pass <= len(targets); pass++ {
		changed := false
		for name, body := range targets {
			next := affine{coeffs: make(map[string]float64, len(body.coeffs)), c: body.c}
			for ref, coeff := range body.coeffs {
				sub, isTarget := targets[ref]
				if !isTarget {
					next.coeffs[ref] += coeff
					continue
				}
				if ref == name {
					return nil, fmt.Errorf("%w: parameter %q constrained in terms of itself", errs.ErrBadConstraint, name)
				}
				changed = true
				next.c += coeff * sub.c
				for p, c2 := range sub.coeffs {
					next.coeffs[p] += coeff * c2
				}
			}
			targets[name] = next
		}
		if !changed {
			break
		}
		if pass == len(targets) {
			return nil, fmt.Errorf("%w: circular constraint chain", errs.ErrBadConstraint)
		}
	}
	for name, body := range targets {
		for ref := range body.coeffs {
			if _, isTarget := targets[ref]; isTarget {
				return nil, fmt.Errorf("%w: circular constraint chain involving %q", errs.ErrBadConstraint, name)
			}
		}
	}

	free := make([]string, 0, len(full)-len(targets))
	for _, name := range full {
		if _, eliminated := targets[name]; !eliminated {
			free = append(free, name)
		}
	}
	if len(free) == 0 {
		return nil, fmt.Errorf("%w: all parameters eliminated by constraints", errs.ErrBadConstraint)
	}

	freeIndex := make(map[string]int, len(free))
	for i, name := range free {
		freeIndex[name] = i
	}

	g := mat.NewDense(len(full), len(free), nil)
	off := mat.NewVecDense(len(full), nil)
	for i, name := range full {
		body, eliminated := targets[name]
		if !eliminated {
			g.Set(i, freeIndex[name], 1)
			continue
		}
		off.SetVec(i, body.c)
		for ref, coeff := range body.coeffs {
			g.Set(i, freeIndex[ref], coeff)
		}
	}

	return &reparam{full: full, free: free, index: index, g: g, off: off}, nil
}

// expand maps a free-parameter vector to the full parameter vector.
func (r *reparam) expand(free *mat.VecDense) *mat.VecDense {
	full := mat.NewVecDense(len(r.full), nil)
	full.MulVec(r.g, free)
	full.AddVec(full, r.off)

	return full
}

// expandCovar maps the free-parameter covariance to the full-parameter
// covariance, G*C*G'. The result is symmetrized to cancel round-off.
func (r *reparam) expandCovar(free *mat.Dense) *mat.Dense {
	n := len(r.full)
	var tmp mat.Dense
	tmp.Mul(r.g, free)
	full := mat.NewDense(n, n, nil)
	full.Mul(&tmp, r.g.T())
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := (full.At(i, j) + full.At(j, i)) / 2
			full.Set(i, j, v)
			full.Set(j, i, v)
		}
	}

	return full
}

// initialFree builds the free-parameter starting vector from per-name
// defaults.
func (r *reparam) initialFree(defaults map[string]float64) *mat.VecDense {
	v := mat.NewVecDense(len(r.free), nil)
	for i, name := range r.free {
		v.SetVec(i, defaults[name])
	}

	return v
}

// sortedSessions returns the distinct session names of obs in sorted order.
func sortedSessions(obs []Observation) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, o := range obs {
		if _, ok := seen[o.Session]; !ok {
			seen[o.Session] = struct{}{}
			names = append(names, o.Session)
		}
	}
	sort.Strings(names)

	return names
}

// sortedUnknowns returns the distinct non-anchor sample names of obs in
// sorted order.
func sortedUnknowns(obs []Observation) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, o := range obs {
		if o.Anchor {
			continue
		}
		if _, ok := seen[o.Sample]; !ok {
			seen[o.Sample] = struct{}{}
			names = append(names, o.Sample)
		}
	}
	sort.Strings(names)

	return names
}
