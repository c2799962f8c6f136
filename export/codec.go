// Package export renders consolidated sample results, in particular the
// excess values of unknown samples with their full error correlation
// structure, into CSV tables and optionally compressed payloads suitable for
// archival or transfer.
package export

import (
	"fmt"

	"github.com/isolab/clump/errs"
)

// Compression selects the algorithm applied to an encoded table.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionS2   Compression = "s2"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// ParseCompression maps a configuration string onto a Compression value.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case CompressionNone, CompressionS2, CompressionZstd, CompressionLZ4:
		return Compression(s), nil
	case "":
		return CompressionNone, nil
	default:
		return "", fmt.Errorf("%w: %q", errs.ErrInvalidCompression, s)
	}
}

// Compressor compresses an encoded table payload.
type Compressor interface {
	// Compress returns a newly allocated compressed copy of data. The
	// input slice is not modified.
	Compress(data []byte) ([]byte, error)
}

// Decompressor recovers the original payload from compressed data.
type Decompressor interface {
	// Decompress returns a newly allocated decompressed copy of data. It
	// fails when the data is corrupted or was produced by a different
	// algorithm.
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both directions of one compression algorithm.
type Codec interface {
	Compressor
	Decompressor
}

var builtinCodecs = map[Compression]Codec{
	CompressionNone: NewNoOpCodec(),
	CompressionS2:   NewS2Codec(),
	CompressionZstd: NewZstdCodec(),
	CompressionLZ4:  NewLZ4Codec(),
}

// GetCodec retrieves the built-in Codec for the given compression.
func GetCodec(c Compression) (Codec, error) {
	if codec, ok := builtinCodecs[c]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("%w: %q", errs.ErrInvalidCompression, c)
}
