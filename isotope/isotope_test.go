package isotope

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/isolab/clump/errs"
)

func TestDefaults(t *testing.T) {
	c := Defaults()
	require.Equal(t, 0.01118, c.R13VPDB)
	require.Equal(t, 0.0020052, c.R18VSMOW)
	require.InDelta(t, 0.0020672, c.R18VPDB(), 1e-7)
	require.Greater(t, c.R17VPDB(), c.R17VSMOW)
}

func TestIsobarRatiosStochastic(t *testing.T) {
	c := Defaults()
	rr := c.IsobarRatios(c.R13VPDB, c.R18VSMOW, Anomalies{})

	// Exact small-ratio identities for a stochastic gas.
	r17 := c.R17VSMOW
	require.InEpsilon(t, c.R13VPDB+2*r17, rr.R45, 1e-12)
	require.InEpsilon(t, 2*c.R18VSMOW+2*c.R13VPDB*r17+r17*r17, rr.R46, 1e-12)
	require.Greater(t, rr.R47, rr.R48)
	require.Greater(t, rr.R48, rr.R49)
}

func TestIsobarRatiosAnomalies(t *testing.T) {
	c := Defaults()
	base := c.IsobarRatios(c.R13VPDB, c.R18VSMOW, Anomalies{})
	bumped := c.IsobarRatios(c.R13VPDB, c.R18VSMOW, Anomalies{D47: 1})

	require.InEpsilon(t, base.R47*1.001, bumped.R47, 1e-12)
	require.Equal(t, base.R45, bumped.R45)
	require.Equal(t, base.R46, bumped.R46)
}

func TestBulkDeltaRoundTrip(t *testing.T) {
	c := Defaults()

	cases := []struct {
		name       string
		d13C, d18O float64
		d17O       float64
	}{
		{"vpdb-like", 0, 0, 0},
		{"typical carbonate", 2.02, 37.0, 0},
		{"depleted", -10.17, 18.1, 0},
		{"nonzero 17O anomaly", 1.71, 37.5, 0.2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r13 := RatioFromDelta(tc.d13C, c.R13VPDB)
			r18 := RatioFromDelta(tc.d18O, c.R18VSMOW)
			rr := c.IsobarRatios(r13, r18, Anomalies{D17O: tc.d17O})

			d13C, d18O, err := c.BulkDelta(rr.R45, rr.R46, tc.d17O)
			require.NoError(t, err)
			require.InDelta(t, tc.d13C, d13C, 1e-9)
			require.InDelta(t, tc.d18O, d18O, 1e-9)
		})
	}
}

func TestBulkDeltaDeterministic(t *testing.T) {
	c := Defaults()
	r13 := RatioFromDelta(1.5, c.R13VPDB)
	r18 := RatioFromDelta(30.0, c.R18VSMOW)
	rr := c.IsobarRatios(r13, r18, Anomalies{})

	a13, a18, err := c.BulkDelta(rr.R45, rr.R46, 0)
	require.NoError(t, err)
	b13, b18, err := c.BulkDelta(rr.R45, rr.R46, 0)
	require.NoError(t, err)

	require.Equal(t, a13, b13)
	require.Equal(t, a18, b18)
}

func TestBulkDeltaNonPhysical(t *testing.T) {
	c := Defaults()
	_, _, err := c.BulkDelta(0.01196, -1.0, 0)
	require.ErrorIs(t, err, errs.ErrNoConvergence)
}

func TestDeltaRatioConversions(t *testing.T) {
	ref := 0.0020052
	r := RatioFromDelta(25.0, ref)
	require.InDelta(t, 25.0, DeltaFromRatio(r, ref), 1e-12)
	require.True(t, math.Signbit(DeltaFromRatio(ref*0.99, ref)))
}
