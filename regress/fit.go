package regress

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/isolab/clump/errs"
)

// Fit is the result of a pooled standardization. It exposes every model
// parameter, including those eliminated by constraints, with a full
// covariance matrix over the same set.
type Fit struct {
	names  []string
	index  map[string]int
	values *mat.VecDense
	covar  *mat.Dense

	// Residuals holds the weighted residuals in observation order.
	Residuals []float64
	// ChiSquared is the sum of squared weighted residuals.
	ChiSquared float64
	// DF is the number of model degrees of freedom (observations minus
	// free parameters).
	DF int
	// RedChiSquared is ChiSquared / DF, or zero when DF is zero.
	RedChiSquared float64
	// NObs is the number of observations fitted.
	NObs int
	// NFree is the number of free parameters after constraint elimination.
	NFree int
}

// Params returns the full parameter names in model order: per-session
// coefficients first, then unknown-sample excess values, constrained
// parameters included.
func (f *Fit) Params() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)

	return out
}

// Has reports whether the model contains the named parameter.
func (f *Fit) Has(name string) bool {
	_, ok := f.index[name]

	return ok
}

// Value returns the fitted value of the named parameter.
func (f *Fit) Value(name string) (float64, error) {
	i, ok := f.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", errs.ErrNoSuchParam, name)
	}

	return f.values.AtVec(i), nil
}

// Covariance returns the covariance between two parameters.
func (f *Fit) Covariance(p, q string) (float64, error) {
	i, ok := f.index[p]
	if !ok {
		return 0, fmt.Errorf("%w: %q", errs.ErrNoSuchParam, p)
	}
	j, ok := f.index[q]
	if !ok {
		return 0, fmt.Errorf("%w: %q", errs.ErrNoSuchParam, q)
	}

	return f.covar.At(i, j), nil
}

// StdErr returns the standard error of the named parameter.
func (f *Fit) StdErr(name string) (float64, error) {
	v, err := f.Covariance(name, name)
	if err != nil {
		return 0, err
	}

	return math.Sqrt(math.Max(v, 0)), nil
}
