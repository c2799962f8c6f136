// Package hash computes stable fingerprints of analysis data.
//
// Fingerprints are used to stamp exports and to verify that two processing
// runs consumed byte-identical inputs.
package hash

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Digest accumulates canonical field values into an xxHash64 state.
type Digest struct {
	d xxhash.Digest
}

// New returns a ready-to-use Digest.
func New() *Digest {
	var dg Digest
	dg.d.Reset()

	return &dg
}

// WriteString folds a string field into the digest, followed by a separator
// byte so that ("ab","c") and ("a","bc") hash differently.
func (dg *Digest) WriteString(s string) {
	_, _ = dg.d.WriteString(s)
	_, _ = dg.d.Write([]byte{0})
}

// WriteFloat folds a float64 field into the digest using its IEEE-754 bits.
// NaN is canonicalized so that all NaN payloads hash identically.
func (dg *Digest) WriteFloat(v float64) {
	bits := math.Float64bits(v)
	if v != v {
		bits = math.Float64bits(math.NaN())
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], bits)
	_, _ = dg.d.Write(buf[:])
}

// Sum64 returns the accumulated fingerprint.
func (dg *Digest) Sum64() uint64 {
	return dg.d.Sum64()
}
