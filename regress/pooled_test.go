package regress

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/isolab/clump/errs"
)

// synthObs generates one noise-free observation of the bilinear model.
func synthObs(session, sample string, anchor bool, trueD, delta, t float64, a, b, c, a2, b2, c2 float64) Observation {
	o := Observation{
		Session: session,
		Sample:  sample,
		Anchor:  anchor,
		Delta:   delta,
		Time:    t,
		Weight:  1,
		Raw:     a*trueD + b*delta + c + a2*t*trueD + b2*t*delta + c2*t,
	}
	if anchor {
		o.Nominal = trueD
	}

	return o
}

func TestPooledRecoversExactModel(t *testing.T) {
	const (
		a = 0.94
		b = 0.012
		c = -0.87
	)

	obs := []Observation{
		synthObs("S1", "ETH-1", true, 0.2052, 18.5, 0, a, b, c, 0, 0, 0),
		synthObs("S1", "ETH-1", true, 0.2052, 19.1, 0, a, b, c, 0, 0, 0),
		synthObs("S1", "ETH-3", true, 0.6132, 2.3, 0, a, b, c, 0, 0, 0),
		synthObs("S1", "ETH-3", true, 0.6132, 1.9, 0, a, b, c, 0, 0, 0),
		synthObs("S1", "MYSAMPLE", false, 0.4511, -4.2, 0, a, b, c, 0, 0, 0),
		synthObs("S1", "MYSAMPLE", false, 0.4511, -3.8, 0, a, b, c, 0, 0, 0),
	}

	fit, err := Pooled(obs, Config{Mass: "47"})
	require.NoError(t, err)
	require.Equal(t, 6, fit.NObs)
	require.Equal(t, 4, fit.NFree)
	require.Equal(t, 2, fit.DF)

	av, err := fit.Value(AName("S1"))
	require.NoError(t, err)
	require.InDelta(t, a, av, 1e-9)

	bv, err := fit.Value(BName("S1"))
	require.NoError(t, err)
	require.InDelta(t, b, bv, 1e-9)

	cv, err := fit.Value(CName("S1"))
	require.NoError(t, err)
	require.InDelta(t, c, cv, 1e-9)

	dv, err := fit.Value(DName("47", "MYSAMPLE"))
	require.NoError(t, err)
	require.InDelta(t, 0.4511, dv, 1e-9)

	require.InDelta(t, 0, fit.ChiSquared, 1e-16)
}

func TestPooledDriftTerms(t *testing.T) {
	const (
		a  = 0.91
		b  = -0.004
		c  = -0.92
		c2 = 0.013
	)

	var obs []Observation
	times := []float64{-2, -1, -0.5, 0.5, 1, 2}
	deltas := []float64{21, 3, -6, 20.5, 2.5, -5.5}
	samples := []struct {
		name   string
		anchor bool
		d      float64
	}{
		{"ETH-1", true, 0.2052},
		{"ETH-2", true, 0.2085},
		{"ETH-3", true, 0.6132},
	}
	for i, tm := range times {
		s := samples[i%len(samples)]
		obs = append(obs, synthObs("S1", s.name, s.anchor, s.d, deltas[i], tm, a, b, c, 0, 0, c2))
	}

	cfg := Config{
		Mass:     "47",
		Sessions: map[string]SessionConfig{"S1": {OffsetDrift: true}},
	}
	fit, err := Pooled(obs, cfg)
	require.NoError(t, err)
	require.True(t, fit.Has(C2Name("S1")))
	require.False(t, fit.Has(A2Name("S1")))

	c2v, err := fit.Value(C2Name("S1"))
	require.NoError(t, err)
	require.InDelta(t, c2, c2v, 1e-9)
}

func TestPooledConstraintsTieSessionSlopes(t *testing.T) {
	const (
		a1, a2s = 0.93, 0.96
		b       = 0.008
		c1, c2s = -0.85, -0.9
	)

	var obs []Observation
	add := func(session string, a, c float64) {
		obs = append(obs,
			synthObs(session, "ETH-1", true, 0.2052, 17.0, 0, a, b, c, 0, 0, 0),
			synthObs(session, "ETH-1", true, 0.2052, 17.5, 0, a, b, c, 0, 0, 0),
			synthObs(session, "ETH-3", true, 0.6132, 1.5, 0, a, b, c, 0, 0, 0),
			synthObs(session, "ETH-3", true, 0.6132, 2.0, 0, a, b, c, 0, 0, 0),
			synthObs(session, "UNK", false, 0.35, -2.0, 0, a, b, c, 0, 0, 0),
		)
	}
	add("S1", a1, c1)
	add("S2", a2s, c2s)

	cfg := Config{
		Mass: "47",
		Constraints: []Constraint{
			{Param: BName("S2"), Terms: map[string]float64{BName("S1"): 1}},
		},
	}
	fit, err := Pooled(obs, cfg)
	require.NoError(t, err)

	// One parameter eliminated from the free set, still reported.
	require.Equal(t, 6, fit.NFree)
	require.True(t, fit.Has(BName("S2")))

	b1, err := fit.Value(BName("S1"))
	require.NoError(t, err)
	b2, err := fit.Value(BName("S2"))
	require.NoError(t, err)
	require.InDelta(t, b1, b2, 1e-12)
	require.InDelta(t, b, b1, 1e-9)

	v11, err := fit.Covariance(BName("S1"), BName("S1"))
	require.NoError(t, err)
	v22, err := fit.Covariance(BName("S2"), BName("S2"))
	require.NoError(t, err)
	v12, err := fit.Covariance(BName("S1"), BName("S2"))
	require.NoError(t, err)
	require.InDelta(t, v11, v22, 1e-18)
	require.InDelta(t, v11, v12, 1e-18)
}

func TestPooledConstraintChain(t *testing.T) {
	full := []string{"a_S1", "b_S1", "c_S1", "a_S2", "b_S2", "c_S2", "a_S3", "b_S3", "c_S3"}
	rp, err := buildReparam(full, []Constraint{
		{Param: "b_S3", Terms: map[string]float64{"b_S2": 1}},
		{Param: "b_S2", Terms: map[string]float64{"b_S1": 2}, Const: 0.1},
	})
	require.NoError(t, err)
	require.Len(t, rp.free, 7)

	// b_S3 must resolve through b_S2 down to 2*b_S1 + 0.1.
	i3 := rp.index["b_S3"]
	free := map[string]int{}
	for i, name := range rp.free {
		free[name] = i
	}
	require.InDelta(t, 2.0, rp.g.At(i3, free["b_S1"]), 1e-15)
	require.InDelta(t, 0.1, rp.off.AtVec(i3), 1e-15)
}

func TestPooledConstraintErrors(t *testing.T) {
	full := []string{"a_S1", "b_S1", "c_S1"}

	t.Run("unknown target", func(t *testing.T) {
		_, err := buildReparam(full, []Constraint{{Param: "b_S9"}})
		require.ErrorIs(t, err, errs.ErrBadConstraint)
	})

	t.Run("unknown reference", func(t *testing.T) {
		_, err := buildReparam(full, []Constraint{
			{Param: "b_S1", Terms: map[string]float64{"b_S9": 1}},
		})
		require.ErrorIs(t, err, errs.ErrBadConstraint)
	})

	t.Run("duplicate target", func(t *testing.T) {
		_, err := buildReparam(full, []Constraint{
			{Param: "b_S1", Const: 0},
			{Param: "b_S1", Const: 1},
		})
		require.ErrorIs(t, err, errs.ErrBadConstraint)
	})

	t.Run("self reference", func(t *testing.T) {
		_, err := buildReparam(full, []Constraint{
			{Param: "b_S1", Terms: map[string]float64{"b_S1": 1}},
		})
		require.ErrorIs(t, err, errs.ErrBadConstraint)
	})

	t.Run("cycle", func(t *testing.T) {
		_, err := buildReparam(full, []Constraint{
			{Param: "a_S1", Terms: map[string]float64{"c_S1": 1}},
			{Param: "c_S1", Terms: map[string]float64{"a_S1": 1}},
		})
		require.ErrorIs(t, err, errs.ErrBadConstraint)
	})
}

func TestPooledUnderdetermined(t *testing.T) {
	anchors := []Observation{
		synthObs("S1", "ETH-1", true, 0.2052, 18.0, 0, 0.9, 0, -0.9, 0, 0, 0),
		synthObs("S1", "ETH-3", true, 0.6132, 2.0, 0, 0.9, 0, -0.9, 0, 0, 0),
		synthObs("S1", "ETH-2", true, 0.2085, 15.0, 0, 0.9, 0, -0.9, 0, 0, 0),
	}

	// Three observations for three session parameters: no residual degrees
	// of freedom, so no covariance scale.
	t.Run("ExactlyDetermined", func(t *testing.T) {
		_, err := Pooled(anchors, Config{Mass: "47"})
		require.ErrorIs(t, err, errs.ErrUnderdetermined)
	})

	t.Run("MoreParamsThanObservations", func(t *testing.T) {
		obs := []Observation{
			anchors[0],
			anchors[1],
			synthObs("S1", "UNK", false, 0.4, 10.0, 0, 0.9, 0, -0.9, 0, 0, 0),
		}
		_, err := Pooled(obs, Config{Mass: "47"})
		require.ErrorIs(t, err, errs.ErrUnderdetermined)
	})
}

func TestPooledNoAnchors(t *testing.T) {
	obs := []Observation{
		synthObs("S1", "UNK", false, 0.4, 18.0, 0, 0.9, 0, -0.9, 0, 0, 0),
		synthObs("S1", "UNK", false, 0.4, 17.0, 0, 0.9, 0, -0.9, 0, 0, 0),
		synthObs("S1", "UNK", false, 0.4, 16.0, 0, 0.9, 0, -0.9, 0, 0, 0),
		synthObs("S1", "UNK", false, 0.4, 15.0, 0, 0.9, 0, -0.9, 0, 0, 0),
		synthObs("S1", "UNK", false, 0.4, 14.0, 0, 0.9, 0, -0.9, 0, 0, 0),
	}
	_, err := Pooled(obs, Config{Mass: "47"})
	require.ErrorIs(t, err, errs.ErrNoAnchors)
}

func TestPooledUnknownSessionConfig(t *testing.T) {
	obs := []Observation{
		synthObs("S1", "ETH-1", true, 0.2052, 18.0, 0, 0.9, 0, -0.9, 0, 0, 0),
	}
	cfg := Config{Mass: "47", Sessions: map[string]SessionConfig{"S9": {}}}
	_, err := Pooled(obs, cfg)
	require.ErrorIs(t, err, errs.ErrUnknownSession)
}

func TestPooledCovarianceWithScatter(t *testing.T) {
	const (
		a = 0.95
		b = 0.006
		c = -0.89
	)

	// Deterministic residual pattern around the exact model.
	noise := []float64{0.008, -0.005, 0.003, -0.007, 0.006, -0.004, 0.002, -0.003}
	deltas := []float64{19.2, 18.8, 2.1, 1.7, -4.0, -4.4, 12.0, 11.6}
	var obs []Observation
	for i := 0; i < len(noise); i++ {
		var o Observation
		switch i % 4 {
		case 0:
			o = synthObs("S1", "ETH-1", true, 0.2052, deltas[i], 0, a, b, c, 0, 0, 0)
		case 1:
			o = synthObs("S1", "ETH-2", true, 0.2085, deltas[i], 0, a, b, c, 0, 0, 0)
		case 2:
			o = synthObs("S1", "ETH-3", true, 0.6132, deltas[i], 0, a, b, c, 0, 0, 0)
		default:
			o = synthObs("S1", "UNK", false, 0.42, deltas[i], 0, a, b, c, 0, 0, 0)
		}
		o.Raw += noise[i]
		obs = append(obs, o)
	}

	fit, err := Pooled(obs, Config{Mass: "47"})
	require.NoError(t, err)
	require.Greater(t, fit.ChiSquared, 0.0)
	require.Greater(t, fit.RedChiSquared, 0.0)

	for _, p := range fit.Params() {
		se, err := fit.StdErr(p)
		require.NoError(t, err)
		require.Greater(t, se, 0.0)
		for _, q := range fit.Params() {
			cpq, err := fit.Covariance(p, q)
			require.NoError(t, err)
			cqp, err := fit.Covariance(q, p)
			require.NoError(t, err)
			require.Equal(t, cpq, cqp)
		}
	}

	_, err = fit.Value("a_S9")
	require.ErrorIs(t, err, errs.ErrNoSuchParam)
}

func TestCleanName(t *testing.T) {
	require.Equal(t, "ETH_1", CleanName("ETH-1"))
	require.Equal(t, "Session_2024_01", CleanName("Session 2024.01"))
	require.Equal(t, "D47_IAEA_C1", DName("47", "IAEA-C1"))
}
