package clump

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/isolab/clump/errs"
)

func fp(v float64) *float64 { return &v }

func validRecords() []Record {
	return []Record{
		{Sample: "ETH-1", D45: 5.79, D46: 11.63, D47: 16.89},
		{Sample: "ETH-2", D45: -6.06, D46: -4.82, D47: -11.97},
		{Sample: "ETH-3", D45: 5.54, D46: 12.05, D47: 17.41},
	}
}

func TestNewInputValidation(t *testing.T) {
	t.Run("UnsupportedMass", func(t *testing.T) {
		_, err := New("46", validRecords())
		require.ErrorIs(t, err, errs.ErrMissingField)
	})

	t.Run("NoRecords", func(t *testing.T) {
		_, err := NewD47(nil)
		require.ErrorIs(t, err, errs.ErrMissingField)
	})

	t.Run("MissingSampleName", func(t *testing.T) {
		recs := validRecords()
		recs[1].Sample = ""
		_, err := NewD47(recs)
		require.ErrorIs(t, err, errs.ErrMissingField)
	})

	t.Run("NonFiniteDelta", func(t *testing.T) {
		recs := validRecords()
		recs[0].D46 = math.NaN()
		_, err := NewD47(recs)
		require.ErrorIs(t, err, errs.ErrMissingField)
	})

	t.Run("MissingTargetDelta48", func(t *testing.T) {
		recs := validRecords()
		_, err := NewD48(recs)
		require.ErrorIs(t, err, errs.ErrMissingField)
	})

	t.Run("DuplicateUID", func(t *testing.T) {
		recs := validRecords()
		recs[0].UID = "A01"
		recs[2].UID = "A01"
		_, err := NewD47(recs)
		require.ErrorIs(t, err, errs.ErrDuplicateUID)
	})

	t.Run("AutoAssignedUIDs", func(t *testing.T) {
		d, err := NewD47(validRecords())
		require.NoError(t, err)

		seen := make(map[string]bool)
		for _, a := range d.Analyses() {
			require.NotEmpty(t, a.UID)
			require.False(t, seen[a.UID])
			seen[a.UID] = true
		}
	})
}

func TestNominalTablesAreCopies(t *testing.T) {
	m := NominalD47()
	m["ETH-1"] = 42

	require.InDelta(t, 0.2052, NominalD47()["ETH-1"], 1e-12)
	require.InDelta(t, 0.6132, NominalD47()["ETH-3"], 1e-12)
	require.InDelta(t, 0.270, NominalD48()["ETH-3"], 1e-12)
	require.InDelta(t, -10.17, NominalD13C()["ETH-2"], 1e-12)
	require.InDelta(t, -18.69, NominalD18O()["ETH-2"], 1e-12)
}

func TestDefaultSessionAssignment(t *testing.T) {
	d, err := NewD47(validRecords())
	require.NoError(t, err)
	require.Equal(t, []string{"mySession"}, d.Sessions())

	d, err = NewD47(validRecords(), WithDefaultSession("2026-08"))
	require.NoError(t, err)
	require.Equal(t, []string{"2026-08"}, d.Sessions())
}

func TestAnchorClassification(t *testing.T) {
	recs := append(validRecords(),
		Record{Sample: "FOO", D45: 1, D46: 2, D47: 3},
	)
	d, err := NewD47(recs)
	require.NoError(t, err)

	require.Equal(t, []string{"ETH-1", "ETH-2", "ETH-3"}, d.Anchors())
	require.Equal(t, []string{"FOO"}, d.Unknowns())

	smp, err := d.Sample("ETH-1")
	require.NoError(t, err)
	require.True(t, smp.Anchor)
	require.InDelta(t, 0.2052, smp.Nominal, 1e-12)

	_, err = d.Sample("NOPE")
	require.ErrorIs(t, err, errs.ErrUnknownSample)
}

func TestStageOrdering(t *testing.T) {
	d, err := NewD47(validRecords())
	require.NoError(t, err)

	t.Run("CrunchBeforeWorkingGas", func(t *testing.T) {
		require.ErrorIs(t, d.Crunch(), errs.ErrStageOrder)
	})

	t.Run("StandardizeBeforeCrunch", func(t *testing.T) {
		require.ErrorIs(t, d.Standardize(), errs.ErrStageOrder)
	})

	t.Run("ResultsBeforeStandardize", func(t *testing.T) {
		_, err := d.Repeatability(QuantityExcess, SubsetAll, nil)
		require.ErrorIs(t, err, errs.ErrStageOrder)

		_, _, err = d.SampleCI("ETH-1")
		require.ErrorIs(t, err, errs.ErrStageOrder)

		_, err = d.SampleCovar("ETH-1", "ETH-2")
		require.ErrorIs(t, err, errs.ErrStageOrder)

		_, err = d.CovarMatrix(nil)
		require.ErrorIs(t, err, errs.ErrStageOrder)
	})

	t.Run("WorkingGasForUnknownSession", func(t *testing.T) {
		require.ErrorIs(t, d.SetWorkingGas("nope", -4, 26), errs.ErrUnknownSession)
	})
}

func TestExclude(t *testing.T) {
	records := func() []Record {
		return []Record{
			{UID: "A01", Sample: "ETH-1", D45: 1, D46: 2, D47: 3},
			{UID: "A02", Sample: "ETH-1", D45: 1, D46: 2, D47: 3},
			{UID: "A03", Sample: "ETH-2", D45: 1, D46: 2, D47: 3},
			{UID: "A04", Sample: "FOO", D45: 1, D46: 2, D47: 3},
		}
	}

	t.Run("ByUID", func(t *testing.T) {
		d, err := NewD47(records())
		require.NoError(t, err)
		require.NoError(t, d.Exclude([]string{"A02"}, nil))
		require.Equal(t, 3, d.N())

		smp, err := d.Sample("ETH-1")
		require.NoError(t, err)
		require.Equal(t, 1, smp.N())
	})

	t.Run("BySample", func(t *testing.T) {
		d, err := NewD47(records())
		require.NoError(t, err)
		require.NoError(t, d.Exclude(nil, []string{"ETH-1"}))
		require.Equal(t, 2, d.N())
		require.Equal(t, []string{"ETH-2"}, d.Anchors())
	})

	t.Run("BlankEntriesIgnored", func(t *testing.T) {
		d, err := NewD47(records())
		require.NoError(t, err)
		require.NoError(t, d.Exclude([]string{""}, []string{""}))
		require.Equal(t, 4, d.N())
	})

	t.Run("UnknownUID", func(t *testing.T) {
		d, err := NewD47(records())
		require.NoError(t, err)
		require.ErrorIs(t, d.Exclude([]string{"A99"}, nil), errs.ErrUnknownSample)
	})

	t.Run("UnknownSample", func(t *testing.T) {
		d, err := NewD47(records())
		require.NoError(t, err)
		require.ErrorIs(t, d.Exclude(nil, []string{"BAR"}), errs.ErrUnknownSample)
	})

	t.Run("CannotExcludeEverything", func(t *testing.T) {
		d, err := NewD47(records())
		require.NoError(t, err)
		err = d.Exclude(nil, []string{"ETH-1", "ETH-2", "FOO"})
		require.ErrorIs(t, err, errs.ErrMissingField)
	})
}

func TestFingerprint(t *testing.T) {
	d1, err := NewD47(validRecords())
	require.NoError(t, err)
	d2, err := NewD47(validRecords())
	require.NoError(t, err)
	require.Equal(t, d1.Fingerprint(), d2.Fingerprint())

	recs := validRecords()
	recs[0].D47 += 1e-9
	d3, err := NewD47(recs)
	require.NoError(t, err)
	require.NotEqual(t, d1.Fingerprint(), d3.Fingerprint())
}

func TestCustomNominalTables(t *testing.T) {
	recs := append(validRecords(),
		Record{Sample: "IAEA-C1", D45: 6.2, D46: 11.5, D47: 17.3},
	)

	// IAEA-C1 carries a default nominal value; restricting the anchor
	// table demotes it to an unknown.
	d, err := NewD47(recs, WithNominalExcess(map[string]float64{
		"ETH-1": 0.2052, "ETH-2": 0.2085, "ETH-3": 0.6132,
	}))
	require.NoError(t, err)
	require.Equal(t, []string{"IAEA-C1"}, d.Unknowns())

	d, err = NewD47(recs)
	require.NoError(t, err)
	require.Empty(t, d.Unknowns())
}
