package export

// NoOpCodec passes payloads through unchanged. Useful when tables are small
// or when downstream storage compresses on its own.
type NoOpCodec struct{}

var _ Codec = (*NoOpCodec)(nil)

// NewNoOpCodec creates a pass-through codec.
func NewNoOpCodec() NoOpCodec {
	return NoOpCodec{}
}

// Compress returns the input slice as-is.
func (c NoOpCodec) Compress(data []byte) ([]byte, error) {
	return data, nil
}

// Decompress returns the input slice as-is.
func (c NoOpCodec) Decompress(data []byte) ([]byte, error) {
	return data, nil
}
