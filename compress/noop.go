package compress

// NoOpCodec bypasses data without compression. GetCodec does not return
// it, so the reader and writer data paths do not use it.
type NoOpCodec struct{}

var _ Codec = (*NoOpCodec)(nil)

// NewNoOpCodec creates a new pass-through codec.
func NewNoOpCodec() NoOpCodec {
	return NoOpCodec{}
}

// Compress returns the input data as-is. The returned slice shares the
// same underlying memory as the input.
func (c NoOpCodec) Compress(data []byte) ([]byte, error) {
	return data, nil
}

// Decompress returns the input data as-is. The returned slice shares the
// same underlying memory as the input.
func (c NoOpCodec) Decompress(data []byte, _ uint64) ([]byte, error) {
	return data, nil
}
