package export

// ZstdCodec compresses table payloads with Zstandard, the best choice when
// tables are archived long-term and ratio matters more than speed.
//
// Two implementations are provided: a pure-Go one based on
// github.com/klauspost/compress/zstd (the default) and a cgo one based on
// github.com/valyala/gozstd, selected with the "czstd" build tag when cgo is
// available.
type ZstdCodec struct{}

var _ Codec = (*ZstdCodec)(nil)

// NewZstdCodec creates a new Zstandard codec.
func NewZstdCodec() ZstdCodec {
	return ZstdCodec{}
}
