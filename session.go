package clump

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// BulkMethod selects how bulk isotope compositions are standardized within a
// session against the nominal values of the carbonate standards.
type BulkMethod string

const (
	// BulkNone leaves crunched bulk values untouched.
	BulkNone BulkMethod = "none"
	// BulkOnePoint applies a constant offset matching the standards' mean.
	BulkOnePoint BulkMethod = "1pt"
	// BulkTwoPoint applies an affine correction fitted to the standards.
	BulkTwoPoint BulkMethod = "2pt"
)

// Session groups the analyses measured under one instrument configuration.
// Regression parameters and statistics are populated by Standardize.
type Session struct {
	Name string

	analyses []*Analysis

	// Working-gas bulk composition.
	WGD13C, WGD18O float64
	wgSet          bool

	// Drift flags select which standardization parameters may vary
	// linearly in time within this session.
	ScramblingDrift bool
	SlopeDrift      bool
	OffsetDrift     bool

	// Bulk standardization modes applied by Crunch.
	D13CMethod BulkMethod
	D18OMethod BulkMethod

	// Standardization parameters: scrambling factor, compositional slope,
	// working-gas offset, and their drift rates.
	A, B, C    float64
	A2, B2, C2 float64
	// SEA..SEC2 are the corresponding standard errors.
	SEA, SEB, SEC    float64
	SEA2, SEB2, SEC2 float64

	// CM is the 6x6 covariance matrix of (a, b, c, a2, b2, c2).
	CM *mat.Dense

	// Np is the number of standardization parameters fitted for this
	// session, Na and Nu the number of anchor and unknown analyses.
	Np, Na, Nu int

	// Within-session repeatabilities, populated by Standardize.
	RD13C, RD18O, RExcess float64
}

// Analyses returns the session's analyses in input order.
func (s *Session) Analyses() []*Analysis {
	return s.analyses
}

// N returns the number of analyses in the session.
func (s *Session) N() int {
	return len(s.analyses)
}

func (s *Session) nparams() int {
	np := 3
	if s.ScramblingDrift {
		np++
	}
	if s.SlopeDrift {
		np++
	}
	if s.OffsetDrift {
		np++
	}

	return np
}

// Sample aggregates the replicate analyses of one measured material.
// Statistics are populated by Standardize.
type Sample struct {
	Name string

	// Anchor marks samples with an externally fixed nominal excess value.
	Anchor bool
	// Nominal is the anchor's assigned excess value; unset for unknowns.
	Nominal float64

	analyses []*Analysis

	// Excess is the standardized excess value: the nominal value for
	// anchors, the fitted or averaged value for unknowns.
	Excess float64
	// SE is the standard error of Excess, zero for anchors.
	SE float64
	// SD is the replicate standard deviation, populated when N > 1.
	SD    float64
	hasSD bool

	// D13CVPDB and D18OVSMOW are the mean bulk compositions over the
	// sample's analyses.
	D13CVPDB, D18OVSMOW float64

	// PLevene is the p-value of the variance-homogeneity test against the
	// reference sample, populated when N > 2.
	PLevene    float64
	hasPLevene bool

	// sessionShares holds, for independent-sessions standardization, the
	// per-session mean value, its SE and its weight share.
	sessionShares map[string]sessionShare
}

type sessionShare struct {
	value  float64
	se     float64
	weight float64
	meanD  float64 // mean standardized excess in the session
	meand  float64 // mean target-mass delta in the session
}

// Analyses returns the sample's replicate analyses in input order.
func (s *Sample) Analyses() []*Analysis {
	return s.analyses
}

// N returns the number of replicate analyses.
func (s *Sample) N() int {
	return len(s.analyses)
}

// StdDev returns the replicate standard deviation. The second return value
// is false when the sample has fewer than two replicates.
func (s *Sample) StdDev() (float64, bool) {
	return s.SD, s.hasSD
}

// StdErr returns the sample's reported standard error. The second return
// value is false when no error is reported: single-replicate samples and
// zero estimated variance.
func (s *Sample) StdErr() (float64, bool) {
	if s.N() < 2 || s.SE <= 0 {
		return 0, false
	}

	return s.SE, true
}

// LevenePValue returns the variance-homogeneity p-value against the
// reference sample. The second return value is false when the sample has
// fewer than three replicates.
func (s *Sample) LevenePValue() (float64, bool) {
	return s.PLevene, s.hasPLevene
}

// confidenceInterval returns the half-width of the sample's confidence
// interval, SE times the Student's t-factor at the fit's degrees of freedom.
// The second return value is false for single-replicate samples, anchors,
// and fits without positive variance or degrees of freedom.
func (s *Sample) confidenceInterval(t95 float64) (float64, bool) {
	if s.N() < 2 || s.SE <= 0 || math.IsNaN(t95) {
		return 0, false
	}

	return s.SE * t95, true
}
