package stats

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/isolab/clump/errs"
)

// Median returns the median of x. It returns NaN for an empty slice.
func Median(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}

	return (s[n/2-1] + s[n/2]) / 2
}

// LevenePValue runs the Brown-Forsythe test (Levene's test centered on group
// medians) for equality of variances across two or more groups.
//
// Returns the W statistic and the p-value from the F distribution with
// (k-1, N-k) degrees of freedom. Empty groups are rejected, and the test
// needs at least two groups and more observations than groups overall.
func LevenePValue(groups ...[]float64) (float64, float64, error) {
	k := len(groups)
	if k < 2 {
		return 0, 0, fmt.Errorf("%w: levene test needs at least two groups", errs.ErrMissingField)
	}

	n := 0
	z := make([][]float64, k)
	zbar := make([]float64, k)
	var grand float64
	for j, g := range groups {
		if len(g) == 0 {
			return 0, 0, fmt.Errorf("%w: levene test group %d is empty", errs.ErrMissingField, j)
		}
		med := Median(g)
		z[j] = make([]float64, len(g))
		for i, v := range g {
			z[j][i] = math.Abs(v - med)
			zbar[j] += z[j][i]
		}
		grand += zbar[j]
		zbar[j] /= float64(len(g))
		n += len(g)
	}
	if n <= k {
		return 0, 0, fmt.Errorf("%w: levene test needs more observations than groups", errs.ErrMissingField)
	}
	grand /= float64(n)

	var between, within float64
	for j := range groups {
		d := zbar[j] - grand
		between += float64(len(groups[j])) * d * d
		for _, zij := range z[j] {
			e := zij - zbar[j]
			within += e * e
		}
	}
	if within == 0 {
		return 0, 1, nil
	}

	w := (float64(n-k) / float64(k-1)) * between / within
	f := distuv.F{D1: float64(k - 1), D2: float64(n - k)}

	return w, 1 - f.CDF(w), nil
}
