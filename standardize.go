package clump

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/isolab/clump/errs"
	"github.com/isolab/clump/internal/options"
	"github.com/isolab/clump/regress"
	"github.com/isolab/clump/stats"
)

type standardizeConfig struct {
	method      Method
	constraints []regress.Constraint
}

// StandardizeOption configures a Standardize call.
type StandardizeOption = options.Option[*standardizeConfig]

// WithMethod selects the standardization strategy, pooled by default.
func WithMethod(m Method) StandardizeOption {
	return options.New(func(cfg *standardizeConfig) error {
		switch m {
		case MethodPooled, MethodIndepSessions:
			cfg.method = m
			return nil
		default:
			return fmt.Errorf("%w: unknown standardization method %q", errs.ErrMissingField, m)
		}
	})
}

// WithConstraints adds affine constraints between regression parameters.
// Only valid with the pooled method.
func WithConstraints(cs ...regress.Constraint) StandardizeOption {
	return options.NoError(func(cfg *standardizeConfig) {
		cfg.constraints = append(cfg.constraints, cs...)
	})
}

// Standardize computes absolute excess values for every analysis and every
// sample, together with their full error structure. Requires Crunch to have
// completed.
func (d *Dataset) Standardize(opts ...StandardizeOption) error {
	if d.stage < stageCrunched {
		return fmt.Errorf("%w: dataset must be crunched before standardization (stage is %s)", errs.ErrStageOrder, d.stage)
	}
	if d.stage >= stageStandardized {
		return fmt.Errorf("%w: dataset already standardized", errs.ErrStageOrder)
	}

	cfg := standardizeConfig{method: MethodPooled}
	if err := options.Apply(&cfg, opts...); err != nil {
		return err
	}
	if cfg.method == MethodIndepSessions && len(cfg.constraints) > 0 {
		return fmt.Errorf("%w: constraints require the pooled method", errs.ErrBadConstraint)
	}

	d.assignTimestamps()
	obs := d.observations()
	rcfg := regress.Config{
		Mass:        d.mass,
		Sessions:    make(map[string]regress.SessionConfig, len(d.sessionNames)),
		Constraints: cfg.constraints,
	}
	for _, name := range d.sessionNames {
		s := d.sessions[name]
		rcfg.Sessions[name] = regress.SessionConfig{
			ScramblingDrift: s.ScramblingDrift,
			SlopeDrift:      s.SlopeDrift,
			OffsetDrift:     s.OffsetDrift,
		}
	}

	var err error
	switch cfg.method {
	case MethodPooled:
		err = d.standardizePooled(obs, rcfg)
	case MethodIndepSessions:
		err = d.standardizeIndep(obs, rcfg)
	}
	if err != nil {
		return err
	}

	d.method = cfg.method
	d.tcrit = stats.TFactor(d.cfg.confidence, d.nf)
	if err := d.consolidate(); err != nil {
		return err
	}
	d.stage = stageStandardized
	d.log.Info("standardized dataset",
		"method", string(cfg.method), "df", d.nf, "analyses", len(d.analyses))

	return nil
}

// assignTimestamps computes each analysis's session-centered time
// coordinate. Sessions where every analysis carries an explicit TimeTag use
// it; any session with a missing tag falls back to input order for the whole
// session.
func (d *Dataset) assignTimestamps() {
	for _, name := range d.sessionNames {
		s := d.sessions[name]

		tagged := true
		for _, a := range s.analyses {
			if !a.hasTimeTag {
				tagged = false
				break
			}
		}

		if tagged {
			t0 := meanOf(s.analyses, func(a *Analysis) float64 { return a.timeTag })
			for _, a := range s.analyses {
				a.T = a.timeTag - t0
			}
			continue
		}
		t0 := float64(len(s.analyses)-1) / 2
		for i, a := range s.analyses {
			a.T = float64(i) - t0
		}
	}
}

// observations maps the crunched analyses onto the regression's input form.
func (d *Dataset) observations() []regress.Observation {
	obs := make([]regress.Observation, len(d.analyses))
	for i, a := range d.analyses {
		smp := d.samples[a.Sample]
		obs[i] = regress.Observation{
			Session: a.Session,
			Sample:  a.Sample,
			Anchor:  smp.Anchor,
			Nominal: smp.Nominal,
			Delta:   a.delta(d.mass),
			Raw:     a.rawExcess(d.mass),
			Time:    a.T,
			Weight:  a.Weight,
		}
	}

	return obs
}

func (d *Dataset) standardizePooled(obs []regress.Observation, rcfg regress.Config) error {
	fit, err := regress.Pooled(obs, rcfg)
	if err != nil {
		return err
	}
	d.fit = fit
	d.nf = fit.DF

	for _, name := range d.sessionNames {
		if err := d.fillSessionFromPooled(name, fit); err != nil {
			return err
		}
	}

	// Map every analysis onto the absolute frame with its session's fitted
	// parameters.
	for _, a := range d.analyses {
		s := d.sessions[a.Session]
		delta := a.delta(d.mass)
		raw := a.rawExcess(d.mass)
		a.Excess = (raw - s.C - s.B*delta - s.C2*a.T - s.B2*a.T*delta) / (s.A + s.A2*a.T)
	}

	return nil
}

// fillSessionFromPooled copies one session's fitted parameters, standard
// errors and 6x6 covariance out of the pooled fit.
func (d *Dataset) fillSessionFromPooled(name string, fit *regress.Fit) error {
	s := d.sessions[name]
	s.Np = s.nparams()
	s.Na, s.Nu = 0, 0
	for _, a := range s.analyses {
		if d.samples[a.Sample].Anchor {
			s.Na++
		} else {
			s.Nu++
		}
	}

	params := [6]string{
		regress.AName(name), regress.BName(name), regress.CName(name),
		regress.A2Name(name), regress.B2Name(name), regress.C2Name(name),
	}
	values := [6]*float64{&s.A, &s.B, &s.C, &s.A2, &s.B2, &s.C2}
	ses := [6]*float64{&s.SEA, &s.SEB, &s.SEC, &s.SEA2, &s.SEB2, &s.SEC2}

	s.CM = mat.NewDense(6, 6, nil)
	for i, p := range params {
		if !fit.Has(p) {
			*values[i], *ses[i] = 0, 0
			continue
		}
		v, err := fit.Value(p)
		if err != nil {
			return err
		}
		se, err := fit.StdErr(p)
		if err != nil {
			return err
		}
		*values[i], *ses[i] = v, se

		for j, q := range params {
			if !fit.Has(q) {
				continue
			}
			cov, err := fit.Covariance(p, q)
			if err != nil {
				return err
			}
			s.CM.Set(i, j, cov)
		}
	}

	return nil
}

func (d *Dataset) standardizeIndep(obs []regress.Observation, rcfg regress.Config) error {
	fit, err := regress.Indep(obs, rcfg)
	if err != nil {
		return err
	}
	d.indep = fit
	d.nf = fit.DF

	for i, a := range d.analyses {
		a.Excess = fit.Values[i]
	}
	for _, name := range d.sessionNames {
		s := d.sessions[name]
		sp := fit.Sessions[name]
		s.A, s.B, s.C = sp.A, sp.B, sp.C
		s.A2, s.B2, s.C2 = sp.A2, sp.B2, sp.C2
		s.CM = mat.DenseCopyOf(sp.CM)
		se := sp.StdErrs()
		s.SEA, s.SEB, s.SEC = se[0], se[1], se[2]
		s.SEA2, s.SEB2, s.SEC2 = se[3], se[4], se[5]
		s.Np = sp.Np
		s.Na, s.Nu = 0, 0
		for _, a := range s.analyses {
			if d.samples[a.Sample].Anchor {
				s.Na++
			} else {
				s.Nu++
			}
		}
	}

	return nil
}
