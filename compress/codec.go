package compress

import (
	"fmt"

	"github.com/ihedvall/gomdf/errs"
)

// ZipType identifies the compression algorithm of a DZ or HL block.
type ZipType uint8

const (
	// ZipDeflate is plain RFC-1951 DEFLATE, the only algorithm the MDF 4
	// standard defines for DZ payloads.
	ZipDeflate ZipType = 0
	// ZipTransposeDeflate is DEFLATE after a byte transpose. Declared by
	// the standard but not produced by this library.
	ZipTransposeDeflate ZipType = 1
)

func (t ZipType) String() string {
	switch t {
	case ZipDeflate:
		return "Deflate"
	case ZipTransposeDeflate:
		return "TransposeDeflate"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// Compressor compresses one DZ payload.
//
// Memory management:
//   - Returned slice is owned by the caller; the DEFLATE codec allocates
//     it anew, the no-op codec returns the input slice itself
//   - Input slice is not modified
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor restores the original DT/SD payload of a DZ block.
//
// The uncompressed size is stored in the DZ header, so callers pass it in
// to pre-size the output buffer and to verify the result.
type Decompressor interface {
	Decompress(data []byte, origSize uint64) ([]byte, error)
}

// Codec combines both directions for one algorithm.
type Codec interface {
	Compressor
	Decompressor
}

// GetCodec returns the codec for the given zip type or a typed error when
// the algorithm is not supported.
func GetCodec(zipType ZipType) (Codec, error) {
	if zipType == ZipDeflate {
		return NewDeflateCodec(), nil
	}

	return nil, fmt.Errorf("%w: %s", errs.ErrUnsupportedZip, zipType)
}
