package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// DeflateCodec implements RFC-1951 DEFLATE for DZ block payloads.
//
// The writer cuts data blocks at roughly 4 MB uncompressed, so a fresh
// flate writer per call is cheap compared to the payload itself.
type DeflateCodec struct {
	level int
}

var _ Codec = (*DeflateCodec)(nil)

// NewDeflateCodec creates a DEFLATE codec with the default compression level.
func NewDeflateCodec() *DeflateCodec {
	return &DeflateCodec{level: flate.DefaultCompression}
}

// Compress deflates the input data.
func (c *DeflateCodec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	buf.Grow(len(data) / 2)
	fw, err := flate.NewWriter(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("create flate writer: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("deflate close: %w", err)
	}

	return buf.Bytes(), nil
}

// Decompress inflates the input data and verifies the size against the
// uncompressed length declared in the DZ header.
func (c *DeflateCodec) Decompress(data []byte, origSize uint64) ([]byte, error) {
	if len(data) == 0 && origSize == 0 {
		return nil, nil
	}

	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()

	out := make([]byte, 0, origSize)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, fr); err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	if uint64(buf.Len()) != origSize {
		return nil, fmt.Errorf("inflate: got %d bytes, DZ header declares %d", buf.Len(), origSize)
	}

	return buf.Bytes(), nil
}
