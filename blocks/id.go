package blocks

import (
	"fmt"
	"io"
	"strings"

	"github.com/ihedvall/gomdf/errs"
)

// File id strings of the identification block.
const (
	MagicFinalized   = "MDF     "
	MagicUnfinalized = "UnFinMF "
)

// Standard unfinalized flags in the identification block. A finalizer must
// clear these and rewrite the id block.
const (
	UnfinFlagCgCycleCount     uint16 = 0x0001
	UnfinFlagSrCycleCount     uint16 = 0x0002
	UnfinFlagDtLength         uint16 = 0x0004
	UnfinFlagRdLength         uint16 = 0x0008
	UnfinFlagDlLength         uint16 = 0x0010
	UnfinFlagVlsdCgCycleCount uint16 = 0x0020
	UnfinFlagVlsdOffset       uint16 = 0x0040
)

// ID is the 64 byte identification block at file position 0. It is the
// only block without the common header.
type ID struct {
	FileID      string // "MDF     " or "UnFinMF "
	VersionText string // e.g. "4.10    "
	ProgramID   string // writing tool id, 8 chars
	Version     uint16 // 100*major + 10*minor, e.g. 410
	StdFlags    uint16
	CustomFlags uint16
}

// NewID returns the identification block this library writes.
func NewID() *ID {
	return &ID{
		FileID:      MagicUnfinalized,
		VersionText: "4.10    ",
		ProgramID:   "gomdf   ",
		Version:     410,
	}
}

// Finalized reports whether the file id marks a finalized file.
func (id *ID) Finalized() bool {
	return id.FileID == MagicFinalized
}

// Read parses the identification block.
func (id *ID) Read(r io.ReaderAt) error {
	var buf [IDSize]byte
	if _, err := r.ReadAt(buf[:], 0); err != nil {
		return errs.Parse(0, "", fmt.Errorf("%w: %v", errs.ErrTruncated, err))
	}
	id.FileID = string(buf[0:8])
	if id.FileID != MagicFinalized && id.FileID != MagicUnfinalized {
		return errs.Parse(0, "", errs.ErrInvalidMagic)
	}
	id.VersionText = string(buf[8:16])
	id.ProgramID = string(buf[16:24])
	id.Version = le.Uint16(buf[28:30])
	if id.Version < 400 || id.Version >= 500 {
		return errs.Parse(0, "", fmt.Errorf("%w: %d", errs.ErrUnsupportedVersion, id.Version))
	}
	id.StdFlags = le.Uint16(buf[60:62])
	id.CustomFlags = le.Uint16(buf[62:64])

	return nil
}

// Bytes serializes the identification block.
func (id *ID) Bytes() []byte {
	buf := make([]byte, IDSize)
	copy(buf[0:8], pad8(id.FileID))
	copy(buf[8:16], pad8(id.VersionText))
	copy(buf[16:24], pad8(id.ProgramID))
	le.PutUint16(buf[28:30], id.Version)
	le.PutUint16(buf[60:62], id.StdFlags)
	le.PutUint16(buf[62:64], id.CustomFlags)

	return buf
}

// Write stores the identification block at file position 0.
func (id *ID) Write(w *Writer) error {
	return w.WriteAt(id.Bytes(), 0)
}

func pad8(s string) string {
	if len(s) >= 8 {
		return s[:8]
	}
	return s + strings.Repeat(" ", 8-len(s))
}
