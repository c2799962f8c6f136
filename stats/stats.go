// Package stats provides the small statistical toolbox used when
// consolidating standardized measurements: variance-weighted averaging,
// covariance-aware sums, Student's t confidence factors and the
// Brown-Forsythe variant of Levene's equality-of-variance test.
package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/isolab/clump/errs"
)

// WeightedMean computes the inverse-variance weighted average of x, where
// sx holds the standard error of each element.
//
// Returns the weighted mean and its standard error.
func WeightedMean(x, sx []float64) (float64, float64, error) {
	if len(x) == 0 {
		return 0, 0, fmt.Errorf("%w: no values to average", errs.ErrMissingField)
	}
	if len(x) != len(sx) {
		return 0, 0, fmt.Errorf("%w: %d values with %d errors", errs.ErrMissingField, len(x), len(sx))
	}

	var num, den float64
	for i := range x {
		if sx[i] <= 0 {
			return 0, 0, fmt.Errorf("%w: non-positive standard error %g", errs.ErrMissingField, sx[i])
		}
		w := 1 / (sx[i] * sx[i])
		num += w * x[i]
		den += w
	}

	return num / den, 1 / math.Sqrt(den), nil
}

// CorrelatedSum computes the weighted sum of x and its standard error,
// propagating the full covariance matrix cov between the elements of x.
// A nil weight slice means unit weights.
func CorrelatedSum(x []float64, cov mat.Matrix, w []float64) (float64, float64, error) {
	n := len(x)
	if n == 0 {
		return 0, 0, fmt.Errorf("%w: no values to sum", errs.ErrMissingField)
	}
	r, c := cov.Dims()
	if r != n || c != n {
		return 0, 0, fmt.Errorf("%w: %dx%d covariance for %d values", errs.ErrMissingField, r, c, n)
	}
	if w == nil {
		w = make([]float64, n)
		for i := range w {
			w[i] = 1
		}
	} else if len(w) != n {
		return 0, 0, fmt.Errorf("%w: %d weights for %d values", errs.ErrMissingField, len(w), n)
	}

	var sum float64
	for i := range x {
		sum += w[i] * x[i]
	}
	wv := mat.NewVecDense(n, w)
	var cw mat.VecDense
	cw.MulVec(cov, wv)

	return sum, math.Sqrt(math.Max(mat.Dot(wv, &cw), 0)), nil
}

// TFactor returns the two-sided Student's t critical value at the given
// confidence level (e.g. 0.95) for df degrees of freedom. It returns NaN
// when df is smaller than one.
func TFactor(confidence float64, df int) float64 {
	if df < 1 || confidence <= 0 || confidence >= 1 {
		return math.NaN()
	}
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}

	return t.Quantile(1 - (1-confidence)/2)
}

