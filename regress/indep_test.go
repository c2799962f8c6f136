package regress

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/isolab/clump/errs"
)

func TestIndepRecoversExactModel(t *testing.T) {
	params := map[string][3]float64{
		"S1": {0.93, 0.010, -0.88},
		"S2": {0.97, -0.005, -0.91},
	}

	var obs []Observation
	var want []float64
	for _, session := range []string{"S1", "S2"} {
		p := params[session]
		for i, d := range []float64{18.0, 17.4, 2.2, 1.8} {
			sample, excess := "ETH-1", 0.2052
			if i >= 2 {
				sample, excess = "ETH-3", 0.6132
			}
			obs = append(obs, synthObs(session, sample, true, excess, d, 0, p[0], p[1], p[2], 0, 0, 0))
			want = append(want, excess)
		}
		obs = append(obs,
			synthObs(session, "UNK", false, 0.37, -3.0, 0, p[0], p[1], p[2], 0, 0, 0),
			synthObs(session, "UNK", false, 0.37, -2.5, 0, p[0], p[1], p[2], 0, 0, 0),
		)
		want = append(want, 0.37, 0.37)
	}

	fit, err := Indep(obs, Config{Mass: "47"})
	require.NoError(t, err)
	require.Len(t, fit.Sessions, 2)

	for session, p := range params {
		sp := fit.Sessions[session]
		require.NotNil(t, sp)
		require.InDelta(t, p[0], sp.A, 1e-9)
		require.InDelta(t, p[1], sp.B, 1e-9)
		require.InDelta(t, p[2], sp.C, 1e-9)
		require.Zero(t, sp.A2)
		require.Equal(t, 4, sp.Na)
		require.Equal(t, 3, sp.Np)
	}

	for i := range obs {
		require.InDelta(t, want[i], fit.Values[i], 1e-9)
	}

	// 12 analyses, 1 unknown sample, 3 parameters per session.
	require.Equal(t, 12-1-6, fit.DF)
	require.InDelta(t, 0, fit.RMSWD, 1e-9)
}

func TestIndepDrift(t *testing.T) {
	const (
		a  = 0.90
		b  = 0.0
		c  = -0.90
		c2 = 0.02
	)

	var obs []Observation
	times := []float64{-1.5, -0.5, 0.5, 1.5, -1.0, 1.0}
	for i, tm := range times {
		sample, excess := "ETH-1", 0.2052
		if i%2 == 1 {
			sample, excess = "ETH-3", 0.6132
		}
		obs = append(obs, synthObs("S1", sample, true, excess, 10-float64(i), tm, a, b, c, 0, 0, c2))
	}

	cfg := Config{Mass: "47", Sessions: map[string]SessionConfig{"S1": {OffsetDrift: true}}}
	fit, err := Indep(obs, cfg)
	require.NoError(t, err)

	sp := fit.Sessions["S1"]
	require.InDelta(t, a, sp.A, 1e-9)
	require.InDelta(t, c2, sp.C2, 1e-9)
	require.Equal(t, 4, sp.Np)
}

func TestIndepStandardizationError(t *testing.T) {
	noise := []float64{0.006, -0.004, 0.005, -0.006, 0.003, -0.004}
	var obs []Observation
	for i, n := range noise {
		sample, excess := "ETH-1", 0.2052
		if i%2 == 1 {
			sample, excess = "ETH-3", 0.6132
		}
		o := synthObs("S1", sample, true, excess, 15-3*float64(i), 0, 0.94, 0.008, -0.89, 0, 0, 0)
		o.Raw += n
		obs = append(obs, o)
	}

	fit, err := Indep(obs, Config{Mass: "47"})
	require.NoError(t, err)
	require.Greater(t, fit.RMSWD, 0.0)

	sp := fit.Sessions["S1"]
	se := sp.StandardizationError(10.0, 0.4, 0)
	require.Greater(t, se, 0.0)

	// Mid-range compositions are better constrained than extrapolations.
	seFar := sp.StandardizationError(10.0, 2.0, 0)
	require.Greater(t, seFar, se)

	ses := sp.StdErrs()
	require.Greater(t, ses[0], 0.0)
	require.Greater(t, ses[2], 0.0)
	require.Zero(t, ses[3])
}

func TestIndepErrors(t *testing.T) {
	t.Run("no anchors in session", func(t *testing.T) {
		obs := []Observation{
			synthObs("S1", "UNK", false, 0.4, 10, 0, 0.9, 0, -0.9, 0, 0, 0),
		}
		_, err := Indep(obs, Config{Mass: "47"})
		require.ErrorIs(t, err, errs.ErrNoAnchors)
	})

	t.Run("too few anchors", func(t *testing.T) {
		obs := []Observation{
			synthObs("S1", "ETH-1", true, 0.2052, 10, 0, 0.9, 0, -0.9, 0, 0, 0),
			synthObs("S1", "ETH-3", true, 0.6132, 2, 0, 0.9, 0, -0.9, 0, 0, 0),
		}
		_, err := Indep(obs, Config{Mass: "47"})
		require.ErrorIs(t, err, errs.ErrUnderdetermined)
	})

	t.Run("configured session absent", func(t *testing.T) {
		obs := []Observation{
			synthObs("S1", "ETH-1", true, 0.2052, 10, 0, 0.9, 0, -0.9, 0, 0, 0),
		}
		cfg := Config{Mass: "47", Sessions: map[string]SessionConfig{"S9": {}}}
		_, err := Indep(obs, cfg)
		require.ErrorIs(t, err, errs.ErrUnknownSession)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := Indep(nil, Config{Mass: "47"})
		require.ErrorIs(t, err, errs.ErrUnderdetermined)
	})
}
