// Package blocks implements the MDF 4 block catalog: the typed on-disk
// records that make up a measurement file, their field codecs and the
// primitives for reading and writing them at absolute file positions.
//
// Every v4 block starts with a 24 byte header (4 byte tag, 4 reserved
// bytes, total length and link count, both u64), followed by the link
// array (8 bytes per link, 0 means "no target") and the type specific
// payload. All scalars are little-endian.
//
// The structs in this package double as the in-memory measurement graph:
// parsing fills them from a file, the writer serializes them back. A block
// keeps its file position once assigned; rewrites of counters and links
// happen in place.
package blocks

import (
	"fmt"
	"io"
	"math"

	"github.com/ihedvall/gomdf/endian"
	"github.com/ihedvall/gomdf/errs"
)

func f64bits(v float64) uint64     { return math.Float64bits(v) }
func f64frombits(b uint64) float64 { return math.Float64frombits(b) }

// Block type tags.
const (
	TagHD = "##HD"
	TagMD = "##MD"
	TagTX = "##TX"
	TagFH = "##FH"
	TagCH = "##CH"
	TagAT = "##AT"
	TagEV = "##EV"
	TagDG = "##DG"
	TagCG = "##CG"
	TagSI = "##SI"
	TagCN = "##CN"
	TagCC = "##CC"
	TagCA = "##CA"
	TagDT = "##DT"
	TagSR = "##SR"
	TagRD = "##RD"
	TagSD = "##SD"
	TagDL = "##DL"
	TagDZ = "##DZ"
	TagHL = "##HL"
	TagDV = "##DV"
)

// HeaderSize is the size of the common v4 block header.
const HeaderSize = 24

// IDSize is the size of the identification block at file position 0.
const IDSize = 64

// HeaderStart is the fixed file position of the HD block.
const HeaderStart = IDSize

var le = endian.GetLittleEndianEngine()

// Header is the decoded common block envelope.
type Header struct {
	Tag       string
	Length    uint64
	LinkCount uint64
}

// DataSize returns the payload size after header and links.
func (h Header) DataSize() uint64 {
	return h.Length - HeaderSize - 8*h.LinkCount
}

func validTag(tag []byte) bool {
	return tag[0] == '#' && tag[1] == '#' &&
		tag[2] >= 'A' && tag[2] <= 'Z' && tag[3] >= 'A' && tag[3] <= 'Z'
}

// ReadHeader reads and validates a block header plus its link array at the
// given file position.
func ReadHeader(r io.ReaderAt, pos int64) (Header, []int64, error) {
	var buf [HeaderSize]byte
	if _, err := r.ReadAt(buf[:], pos); err != nil {
		return Header{}, nil, errs.Parse(pos, "", fmt.Errorf("%w: %v", errs.ErrTruncated, err))
	}
	if !validTag(buf[0:4]) {
		return Header{}, nil, errs.Parse(pos, "", errs.ErrInvalidBlockTag)
	}
	h := Header{
		Tag:       string(buf[0:4]),
		Length:    le.Uint64(buf[8:16]),
		LinkCount: le.Uint64(buf[16:24]),
	}
	if h.Length < HeaderSize+8*h.LinkCount {
		return Header{}, nil, errs.Parse(pos, h.Tag, errs.ErrInvalidBlockLength)
	}

	links := make([]int64, h.LinkCount)
	if h.LinkCount > 0 {
		raw := make([]byte, 8*h.LinkCount)
		if _, err := r.ReadAt(raw, pos+HeaderSize); err != nil {
			return Header{}, nil, errs.Parse(pos, h.Tag, fmt.Errorf("%w: %v", errs.ErrTruncated, err))
		}
		for i := range links {
			links[i] = int64(le.Uint64(raw[8*i:]))
		}
	}

	return h, links, nil
}

// readBlock reads header, links and the full payload of the block at pos.
// The expected tag may be empty to accept any block type.
func readBlock(r io.ReaderAt, pos int64, expect string) (Header, []int64, []byte, error) {
	h, links, err := ReadHeader(r, pos)
	if err != nil {
		return Header{}, nil, nil, err
	}
	if expect != "" && h.Tag != expect {
		return Header{}, nil, nil, errs.Parse(pos, h.Tag,
			fmt.Errorf("%w: expected %s", errs.ErrInvalidBlockTag, expect))
	}
	data := make([]byte, h.DataSize())
	if len(data) > 0 {
		if _, err := r.ReadAt(data, pos+HeaderSize+8*int64(h.LinkCount)); err != nil {
			return Header{}, nil, nil, errs.Parse(pos, h.Tag, fmt.Errorf("%w: %v", errs.ErrTruncated, err))
		}
	}

	return h, links, data, nil
}

// requireSize validates that a block payload holds at least n bytes, so
// field slicing below cannot step outside a malformed block.
func requireSize(pos int64, tag string, data []byte, n int) error {
	if len(data) < n {
		return errs.Parse(pos, tag, errs.ErrInvalidBlockLength)
	}
	return nil
}

// appendHeader serializes a block header plus link array.
func appendHeader(buf []byte, tag string, links []int64, dataSize int) []byte {
	buf = append(buf, tag...)
	buf = append(buf, 0, 0, 0, 0)
	buf = le.AppendUint64(buf, uint64(HeaderSize+8*len(links)+dataSize))
	buf = le.AppendUint64(buf, uint64(len(links)))
	for _, link := range links {
		buf = le.AppendUint64(buf, uint64(link))
	}

	return buf
}

// Parser walks a block graph from an io.ReaderAt. It keeps a visited set
// for cycle detection and caches text blocks so shared TX targets are read
// once.
type Parser struct {
	r       io.ReaderAt
	visited map[int64]string
	texts   map[int64]string
	ccDepth int
}

// NewParser creates a parser over the given reader.
func NewParser(r io.ReaderAt) *Parser {
	return &Parser{
		r:       r,
		visited: make(map[int64]string),
		texts:   make(map[int64]string),
	}
}

// Reader returns the underlying reader, for payload streaming.
func (p *Parser) Reader() io.ReaderAt { return p.r }

// enter registers pos in the visited set and reports a cyclic link error
// when the position was already walked as a structural block.
func (p *Parser) enter(pos int64, tag string) error {
	if prev, ok := p.visited[pos]; ok {
		return errs.Parse(pos, prev, errs.ErrCyclicLink)
	}
	p.visited[pos] = tag

	return nil
}

// ReadText reads a TX or MD block and returns its text payload. A zero
// link returns the empty string.
func (p *Parser) ReadText(link int64) (string, error) {
	if link == 0 {
		return "", nil
	}
	if text, ok := p.texts[link]; ok {
		return text, nil
	}
	h, _, data, err := readBlock(p.r, link, "")
	if err != nil {
		return "", err
	}
	if h.Tag != TagTX && h.Tag != TagMD {
		return "", errs.Parse(link, h.Tag, errs.ErrInvalidBlockTag)
	}
	text := cutNul(data)
	p.texts[link] = text

	return text, nil
}

// cutNul terminates the string at the first NUL byte.
func cutNul(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}

// Writer appends blocks at end-of-file and patches links and counters of
// blocks already on disk. Identical TX/MD payloads are deduplicated, so a
// text written twice resolves to one on-disk block.
type Writer struct {
	f   writeFile
	end int64
	txs map[uint64]int64
}

// writeFile is the file access the block writer needs.
type writeFile interface {
	io.WriterAt
	io.Writer
	io.Seeker
}

// NewWriter creates a block writer. The end position must be the current
// end of file (0 for a new file).
func NewWriter(f writeFile, end int64) *Writer {
	return &Writer{f: f, end: end, txs: make(map[uint64]int64)}
}

// End returns the current end-of-file position.
func (w *Writer) End() int64 { return w.end }

// Append writes a fully serialized block at end-of-file and returns its
// assigned position. Blocks are aligned to 8 byte boundaries as required
// by the standard.
func (w *Writer) Append(block []byte) (int64, error) {
	if rem := w.end % 8; rem != 0 {
		pad := make([]byte, 8-rem)
		if _, err := w.f.WriteAt(pad, w.end); err != nil {
			return 0, fmt.Errorf("pad block alignment: %w", err)
		}
		w.end += int64(len(pad))
	}
	pos := w.end
	if _, err := w.f.WriteAt(block, pos); err != nil {
		return 0, fmt.Errorf("append block: %w", err)
	}
	w.end += int64(len(block))

	return pos, nil
}

// PatchLink overwrites one link slot of a block already on disk.
func (w *Writer) PatchLink(blockPos int64, slot int, target int64) error {
	var buf [8]byte
	le.PutUint64(buf[:], uint64(target))
	if _, err := w.f.WriteAt(buf[:], blockPos+HeaderSize+8*int64(slot)); err != nil {
		return fmt.Errorf("patch link %d of block at %d: %w", slot, blockPos, err)
	}

	return nil
}

// PatchUint64 rewrites a u64 field at an absolute file position.
func (w *Writer) PatchUint64(pos int64, value uint64) error {
	var buf [8]byte
	le.PutUint64(buf[:], value)
	if _, err := w.f.WriteAt(buf[:], pos); err != nil {
		return fmt.Errorf("patch field at %d: %w", pos, err)
	}

	return nil
}

// WriteAt exposes positioned writes for data payload streaming.
func (w *Writer) WriteAt(data []byte, pos int64) error {
	if _, err := w.f.WriteAt(data, pos); err != nil {
		return err
	}
	if end := pos + int64(len(data)); end > w.end {
		w.end = end
	}

	return nil
}
