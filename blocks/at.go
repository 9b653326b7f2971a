package blocks

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/flate"

	"github.com/ihedvall/gomdf/errs"
)

// AT flags.
const (
	AtFlagEmbedded   uint16 = 0x01
	AtFlagCompressed uint16 = 0x02
	AtFlagMD5Valid   uint16 = 0x04
)

// AT is an attachment: an external file reference or an embedded, possibly
// DEFLATE compressed, byte payload.
type AT struct {
	Pos int64

	Filename     string
	FileType     string // MIME like type string
	Comment      string
	Flags        uint16
	CreatorIndex uint16
	MD5          [16]byte
	OriginalSize uint64
	EmbeddedSize uint64
	Embedded     []byte

	nextLink int64
}

// IsEmbedded reports whether the payload is stored inside the block.
func (at *AT) IsEmbedded() bool { return at.Flags&AtFlagEmbedded != 0 }

// Embed stores data inside the attachment block, optionally compressed,
// and stamps the MD5 of the original bytes.
func (at *AT) Embed(data []byte, compress bool) error {
	at.OriginalSize = uint64(len(data))
	at.MD5 = md5.Sum(data)
	at.Flags |= AtFlagEmbedded | AtFlagMD5Valid

	if !compress {
		at.Flags &^= AtFlagCompressed
		at.Embedded = append([]byte(nil), data...)
		at.EmbeddedSize = uint64(len(at.Embedded))
		return nil
	}

	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return fmt.Errorf("embed attachment: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("embed attachment: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("embed attachment: %w", err)
	}
	at.Flags |= AtFlagCompressed
	at.Embedded = buf.Bytes()
	at.EmbeddedSize = uint64(len(at.Embedded))

	return nil
}

// Payload returns the embedded data, inflated when stored compressed.
func (at *AT) Payload() ([]byte, error) {
	if !at.IsEmbedded() {
		return nil, fmt.Errorf("attachment %q is not embedded", at.Filename)
	}
	if at.Flags&AtFlagCompressed == 0 {
		return at.Embedded, nil
	}
	fr := flate.NewReader(bytes.NewReader(at.Embedded))
	defer fr.Close()
	data, err := io.ReadAll(fr)
	if err != nil {
		return nil, fmt.Errorf("inflate attachment %q: %w", at.Filename, err)
	}

	return data, nil
}

// Export writes the embedded payload to the given path.
func (at *AT) Export(path string) error {
	data, err := at.Payload()
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func (p *Parser) readAT(pos int64) (*AT, error) {
	_, links, data, err := readBlock(p.r, pos, TagAT)
	if err != nil {
		return nil, err
	}
	if err := p.enter(pos, TagAT); err != nil {
		return nil, err
	}
	at := &AT{Pos: pos, nextLink: link(links, 0)}
	if err := requireSize(pos, TagAT, data, 40); err != nil {
		return nil, err
	}

	at.Flags = le.Uint16(data[0:2])
	at.CreatorIndex = le.Uint16(data[2:4])
	copy(at.MD5[:], data[8:24])
	at.OriginalSize = le.Uint64(data[24:32])
	at.EmbeddedSize = le.Uint64(data[32:40])
	if at.EmbeddedSize > 0 {
		if uint64(len(data)) < 40+at.EmbeddedSize {
			return nil, errs.Parse(pos, TagAT, errs.ErrInvalidBlockLength)
		}
		at.Embedded = append([]byte(nil), data[40:40+at.EmbeddedSize]...)
	}

	if at.Filename, err = p.ReadText(link(links, 1)); err != nil {
		return nil, err
	}
	if at.FileType, err = p.ReadText(link(links, 2)); err != nil {
		return nil, err
	}
	comment, err := p.ReadText(link(links, 3))
	if err != nil {
		return nil, err
	}
	at.Comment = ParseMeta(comment).Text

	return at, nil
}

// Write appends the attachment block.
func (at *AT) Write(w *Writer) (int64, error) {
	fnLink, err := w.WriteText(at.Filename)
	if err != nil {
		return 0, err
	}
	ftLink, err := w.WriteText(at.FileType)
	if err != nil {
		return 0, err
	}
	var mdLink int64
	if at.Comment != "" {
		if mdLink, err = w.WriteMeta(MakeComment("ATcomment", at.Comment, nil)); err != nil {
			return 0, err
		}
	}

	dataSize := 40 + len(at.Embedded)
	if rem := dataSize % 8; rem != 0 {
		dataSize += 8 - rem
	}
	block := appendHeader(make([]byte, 0, HeaderSize+32+dataSize), TagAT,
		[]int64{0, fnLink, ftLink, mdLink}, dataSize)
	block = le.AppendUint16(block, at.Flags)
	block = le.AppendUint16(block, at.CreatorIndex)
	block = append(block, 0, 0, 0, 0)
	block = append(block, at.MD5[:]...)
	block = le.AppendUint64(block, at.OriginalSize)
	block = le.AppendUint64(block, at.EmbeddedSize)
	block = append(block, at.Embedded...)
	block = block[:HeaderSize+32+dataSize]

	pos, err := w.Append(block)
	if err != nil {
		return 0, err
	}
	at.Pos = pos

	return pos, nil
}
