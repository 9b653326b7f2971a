package blocks

import (
	"fmt"

	"github.com/ihedvall/gomdf/compress"
	"github.com/ihedvall/gomdf/errs"
)

// DT is an uncompressed data block: the raw concatenation of records. The
// same layout serves SD (signal data) and RD (reduction data) blocks; only
// the tag differs.
type DT struct {
	Pos int64
	Tag string
	// Size is the payload size in bytes.
	Size uint64
}

// DataPos returns the file position of the first payload byte.
func (dt *DT) DataPos() int64 { return dt.Pos + HeaderSize }

// WriteEmptyData appends an empty data block header of the given tag and
// returns the block. The streaming writer appends records after it and
// patches the length on every flush.
func (w *Writer) WriteEmptyData(tag string) (*DT, error) {
	block := appendHeader(make([]byte, 0, HeaderSize), tag, nil, 0)
	pos, err := w.Append(block)
	if err != nil {
		return nil, err
	}

	return &DT{Pos: pos, Tag: tag}, nil
}

// PatchLength rewrites the block length field after payload bytes were
// appended past the header.
func (dt *DT) PatchLength(w *Writer) error {
	return w.PatchUint64(dt.Pos+8, HeaderSize+dt.Size)
}

// WriteData appends a data block with its full payload.
func (w *Writer) WriteData(tag string, payload []byte) (*DT, error) {
	block := appendHeader(make([]byte, 0, HeaderSize+len(payload)), tag, nil, len(payload))
	block = append(block, payload...)
	pos, err := w.Append(block)
	if err != nil {
		return nil, err
	}

	return &DT{Pos: pos, Tag: tag, Size: uint64(len(payload))}, nil
}

// DZ is a DEFLATE compressed data block wrapping a DT or SD payload.
type DZ struct {
	Pos      int64
	OrigTag  string // "DT" or "SD"
	ZipType  compress.ZipType
	OrigSize uint64
	ZipSize  uint64
}

// WriteCompressedData deflates the payload and appends a DZ block.
func (w *Writer) WriteCompressedData(origTag string, payload []byte) (*DZ, error) {
	codec := compress.NewDeflateCodec()
	zipped, err := codec.Compress(payload)
	if err != nil {
		return nil, err
	}
	dz := &DZ{
		OrigTag:  origTag,
		ZipType:  compress.ZipDeflate,
		OrigSize: uint64(len(payload)),
		ZipSize:  uint64(len(zipped)),
	}

	block := appendHeader(make([]byte, 0, HeaderSize+24+len(zipped)), TagDZ, nil, 24+len(zipped))
	block = append(block, origTag[:2]...)
	block = append(block, byte(dz.ZipType), 0, 0, 0, 0, 0)
	block = le.AppendUint64(block, dz.OrigSize)
	block = le.AppendUint64(block, dz.ZipSize)
	block = append(block, zipped...)

	pos, err := w.Append(block)
	if err != nil {
		return nil, err
	}
	dz.Pos = pos

	return dz, nil
}

// ReadDataPayload resolves a data link to its full uncompressed payload.
// It accepts DT/SD/RD blocks, DZ blocks, DL chains and HL spines and is
// used for signal data and sample reduction streams, which are small
// compared to record data. Record data is streamed instead (see the
// reader).
func (p *Parser) ReadDataPayload(pos int64) ([]byte, error) {
	var out []byte
	err := p.WalkDataBlocks(pos, func(chunk []byte) error {
		out = append(out, chunk...)
		return nil
	})

	return out, err
}

// WalkDataBlocks streams the uncompressed payload chunks of a data link in
// file order. Each chunk is a whole DT/SD payload or an inflated DZ block.
func (p *Parser) WalkDataBlocks(pos int64, emit func(chunk []byte) error) error {
	if pos == 0 {
		return nil
	}
	h, links, err := ReadHeader(p.r, pos)
	if err != nil {
		return err
	}
	switch h.Tag {
	case TagDT, TagSD, TagRD, TagDV:
		chunk := make([]byte, h.DataSize())
		if _, err := p.r.ReadAt(chunk, pos+HeaderSize); err != nil {
			return errs.Parse(pos, h.Tag, fmt.Errorf("%w: %v", errs.ErrTruncated, err))
		}
		return emit(chunk)

	case TagDZ:
		chunk, err := p.readDZ(pos)
		if err != nil {
			return err
		}
		return emit(chunk)

	case TagDL:
		for dlPos := pos; dlPos != 0; {
			dlh, dlLinks, err := ReadHeader(p.r, dlPos)
			if err != nil {
				return err
			}
			if dlh.Tag != TagDL {
				return errs.Parse(dlPos, dlh.Tag, errs.ErrInvalidBlockTag)
			}
			if len(dlLinks) == 0 {
				return errs.Parse(dlPos, TagDL, errs.ErrInvalidBlockLength)
			}
			for _, blockLink := range dlLinks[1:] {
				if blockLink == 0 {
					continue
				}
				if err := p.WalkDataBlocks(blockLink, emit); err != nil {
					return err
				}
			}
			dlPos = dlLinks[0]
		}
		return nil

	case TagHL:
		hl, err := p.readHL(pos, links)
		if err != nil {
			return err
		}
		return p.WalkDataBlocks(hl.dlLink, emit)

	default:
		return errs.Parse(pos, h.Tag, errs.ErrInvalidBlockTag)
	}
}

// readDZ reads and inflates one DZ block.
func (p *Parser) readDZ(pos int64) ([]byte, error) {
	_, _, data, err := readBlock(p.r, pos, TagDZ)
	if err != nil {
		return nil, err
	}
	if len(data) < 24 {
		return nil, errs.Parse(pos, TagDZ, errs.ErrInvalidBlockLength)
	}
	zipType := compress.ZipType(data[2])
	origSize := le.Uint64(data[8:16])
	zipSize := le.Uint64(data[16:24])
	if uint64(len(data)) < 24+zipSize {
		return nil, errs.Parse(pos, TagDZ, errs.ErrInvalidBlockLength)
	}
	codec, err := compress.GetCodec(zipType)
	if err != nil {
		return nil, errs.Parse(pos, TagDZ, err)
	}
	chunk, err := codec.Decompress(data[24:24+zipSize], origSize)
	if err != nil {
		return nil, errs.Parse(pos, TagDZ, err)
	}

	return chunk, nil
}

// HL is the header list spine of a compressed data stream.
type HL struct {
	Pos     int64
	Flags   uint16
	ZipType compress.ZipType

	dlLink int64
}

func (p *Parser) readHL(pos int64, links []int64) (*HL, error) {
	_, _, data, err := readBlock(p.r, pos, TagHL)
	if err != nil {
		return nil, err
	}
	hl := &HL{Pos: pos, dlLink: link(links, 0)}
	if err := requireSize(pos, TagHL, data, 8); err != nil {
		return nil, err
	}
	hl.Flags = le.Uint16(data[0:2])
	hl.ZipType = compress.ZipType(data[2])
	if _, err := compress.GetCodec(hl.ZipType); err != nil {
		return nil, errs.Parse(pos, TagHL, err)
	}

	return hl, nil
}

// WriteHL appends a header list block pointing at the first data list.
func (w *Writer) WriteHL(dlLink int64) (*HL, error) {
	hl := &HL{ZipType: compress.ZipDeflate, dlLink: dlLink}

	data := make([]byte, 8)
	le.PutUint16(data[0:2], hl.Flags)
	data[2] = byte(hl.ZipType)

	block := appendHeader(make([]byte, 0, HeaderSize+8+8), TagHL, []int64{dlLink}, len(data))
	block = append(block, data...)

	pos, err := w.Append(block)
	if err != nil {
		return nil, err
	}
	hl.Pos = pos

	return hl, nil
}

// PatchFirstDL points the header list at its first data list block.
func (hl *HL) PatchFirstDL(w *Writer, dlPos int64) error {
	hl.dlLink = dlPos
	return w.PatchLink(hl.Pos, 0, dlPos)
}

// DLFlagEqualLength marks a data list whose blocks all share one size.
const DLFlagEqualLength uint8 = 0x01

// DL is a data list: an ordered array of links to DT/SD/DZ blocks together
// with their accumulated uncompressed byte offsets.
type DL struct {
	Pos     int64
	Flags   uint8
	Links   []int64
	Offsets []uint64

	nextLink int64
}

// WriteDL appends a data list block referencing the given data blocks.
func (w *Writer) WriteDL(blockLinks []int64, offsets []uint64) (*DL, error) {
	if len(blockLinks) != len(offsets) {
		return nil, fmt.Errorf("data list: %d links but %d offsets", len(blockLinks), len(offsets))
	}
	dl := &DL{Links: blockLinks, Offsets: offsets}

	links := make([]int64, 1+len(blockLinks))
	copy(links[1:], blockLinks)

	data := make([]byte, 0, 8+8*len(offsets))
	data = append(data, dl.Flags, 0, 0, 0)
	data = le.AppendUint32(data, uint32(len(blockLinks)))
	for _, offset := range offsets {
		data = le.AppendUint64(data, offset)
	}

	block := appendHeader(make([]byte, 0, HeaderSize+8*len(links)+len(data)), TagDL, links, len(data))
	block = append(block, data...)

	pos, err := w.Append(block)
	if err != nil {
		return nil, err
	}
	dl.Pos = pos

	return dl, nil
}

// PatchNext chains another data list after this one.
func (dl *DL) PatchNext(w *Writer, nextPos int64) error {
	dl.nextLink = nextPos
	return w.PatchLink(dl.Pos, 0, nextPos)
}
