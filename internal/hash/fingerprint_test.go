package hash

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestDeterministic(t *testing.T) {
	mk := func() uint64 {
		dg := New()
		dg.WriteString("Session01")
		dg.WriteString("ETH-1")
		dg.WriteFloat(5.795017)
		dg.WriteFloat(11.627668)

		return dg.Sum64()
	}

	require.Equal(t, mk(), mk())
}

func TestDigestFieldBoundaries(t *testing.T) {
	a := New()
	a.WriteString("ab")
	a.WriteString("c")

	b := New()
	b.WriteString("a")
	b.WriteString("bc")

	assert.NotEqual(t, a.Sum64(), b.Sum64())
}

func TestDigestNaNCanonical(t *testing.T) {
	a := New()
	a.WriteFloat(math.NaN())

	b := New()
	b.WriteFloat(math.Float64frombits(0x7ff8000000000001)) // NaN with payload

	assert.Equal(t, a.Sum64(), b.Sum64())
}
