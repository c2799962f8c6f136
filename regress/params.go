// Package regress implements the standardization regressions that map raw
// clumped-isotope excess values onto an absolute reference frame.
//
// Two strategies are provided over the same observation model:
//
//   - Pooled: a single weighted least-squares system spanning every session's
//     standardization parameters and every unknown sample's excess value,
//     solved simultaneously with optional linear drift terms and
//     user-supplied affine constraints between parameters.
//   - Indep: per-session fits using anchor analyses only, with unknowns
//     standardized analysis-by-analysis afterwards.
//
// Observations reference sessions and samples by name; parameter names follow
// the a_<session> / b_<session> / c_<session> (plus a2/b2/c2 drift rates) and
// D<mass>_<sample> conventions.
package regress

import "strings"

// Observation is one analysis as seen by the regression: the raw excess
// value to be explained, the covariates entering the model, and the
// session/sample identity tying it to its parameters.
type Observation struct {
	// Session identifies the analytical session supplying a, b, c.
	Session string
	// Sample identifies the measured sample.
	Sample string
	// Anchor marks samples whose true excess value is externally fixed.
	Anchor bool
	// Nominal is the externally supplied excess value; only read for anchors.
	Nominal float64
	// Delta is the working-gas-relative delta of the target mass (e.g. d47).
	Delta float64
	// Raw is the raw excess value of the target mass (e.g. D47raw).
	Raw float64
	// Time is the session-centered time tag.
	Time float64
	// Weight scales the residual; 1 means unit (OLS) weighting.
	Weight float64
}

// SessionConfig selects which standardization parameters of a session are
// allowed to drift linearly in time. A drift term that is off is excluded
// from the free-parameter set entirely, not fixed at zero.
type SessionConfig struct {
	ScramblingDrift bool
	SlopeDrift      bool
	OffsetDrift     bool
}

// nparams returns the number of free parameters this session contributes.
func (c SessionConfig) nparams() int {
	n := 3
	if c.ScramblingDrift {
		n++
	}
	if c.SlopeDrift {
		n++
	}
	if c.OffsetDrift {
		n++
	}

	return n
}

// Config describes a standardization problem.
type Config struct {
	// Mass tags unknown-sample parameter names, e.g. "47" yields D47_<sample>.
	Mass string
	// Sessions maps session names to their drift configuration. Sessions
	// absent from the map use the zero SessionConfig (no drift).
	Sessions map[string]SessionConfig
	// Constraints lists affine relations to eliminate before solving
	// (pooled strategy only).
	Constraints []Constraint
}

func (c Config) session(name string) SessionConfig {
	if c.Sessions == nil {
		return SessionConfig{}
	}

	return c.Sessions[name]
}

var nameCleaner = strings.NewReplacer("-", "_", ".", "_", " ", "_")

// CleanName normalizes a session or sample identifier for use inside a
// parameter name.
func CleanName(s string) string {
	return nameCleaner.Replace(s)
}

// AName returns the scrambling-factor parameter name of a session.
func AName(session string) string { return "a_" + CleanName(session) }

// BName returns the compositional-slope parameter name of a session.
func BName(session string) string { return "b_" + CleanName(session) }

// CName returns the working-gas-offset parameter name of a session.
func CName(session string) string { return "c_" + CleanName(session) }

// A2Name returns the scrambling-drift parameter name of a session.
func A2Name(session string) string { return "a2_" + CleanName(session) }

// B2Name returns the slope-drift parameter name of a session.
func B2Name(session string) string { return "b2_" + CleanName(session) }

// C2Name returns the offset-drift parameter name of a session.
func C2Name(session string) string { return "c2_" + CleanName(session) }

// DName returns the excess-value parameter name of an unknown sample.
func DName(mass, sample string) string { return "D" + mass + "_" + CleanName(sample) }
