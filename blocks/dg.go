package blocks

import (
	"fmt"

	"github.com/ihedvall/gomdf/errs"
)

// DG link slots.
const (
	dgLinkNext = iota
	dgLinkCG
	dgLinkData
	dgLinkMD
	dgLinkCount
)

// DG is a data group: a set of channel groups sharing one record stream.
type DG struct {
	Pos int64

	// RecordIDSize is the width of the record id prefix of every record in
	// the data stream: 0, 1, 2, 4 or 8 bytes. 0 is only valid for a single
	// channel group.
	RecordIDSize uint8
	Comment      string

	Groups []*CG

	// DataLink is the position of the data payload: a DT, SD, DL or HL
	// block, or 0 while no data has been written.
	DataLink int64

	nextLink int64
	cgLink   int64
}

// NewChannelGroup appends a channel group with the next free record id.
func (dg *DG) NewChannelGroup(name string) *CG {
	cg := &CG{
		Name:          name,
		RecordID:      uint64(len(dg.Groups) + 1),
		PathSeparator: '.',
	}
	dg.Groups = append(dg.Groups, cg)
	if dg.RecordIDSize == 0 {
		dg.RecordIDSize = 1
	}

	return cg
}

// FindGroup returns the channel group with the given record id or nil.
func (dg *DG) FindGroup(recordID uint64) *CG {
	for _, cg := range dg.Groups {
		if cg.RecordID == recordID {
			return cg
		}
	}
	return nil
}

// IsEmpty reports whether the data group has no channel groups yet.
func (dg *DG) IsEmpty() bool { return len(dg.Groups) == 0 }

func (p *Parser) readDG(pos int64) (*DG, error) {
	_, links, data, err := readBlock(p.r, pos, TagDG)
	if err != nil {
		return nil, err
	}
	if err := p.enter(pos, TagDG); err != nil {
		return nil, err
	}
	dg := &DG{
		Pos:      pos,
		nextLink: link(links, dgLinkNext),
		cgLink:   link(links, dgLinkCG),
		DataLink: link(links, dgLinkData),
	}
	if err := requireSize(pos, TagDG, data, 8); err != nil {
		return nil, err
	}
	dg.RecordIDSize = data[0]
	switch dg.RecordIDSize {
	case 0, 1, 2, 4, 8:
	default:
		return nil, errs.Parse(pos, TagDG,
			fmt.Errorf("%w: record id size %d", errs.ErrInvalidBlockLength, dg.RecordIDSize))
	}

	comment, err := p.ReadText(link(links, dgLinkMD))
	if err != nil {
		return nil, err
	}
	dg.Comment = ParseMeta(comment).Text

	return dg, nil
}

// ReadGroups loads the channel group chain including channels, conversions
// and source information. After this the group structure is fully
// navigable without touching record data.
func (dg *DG) ReadGroups(p *Parser) error {
	if len(dg.Groups) > 0 {
		return nil // already loaded
	}
	for pos := dg.cgLink; pos != 0; {
		cg, err := p.readCG(pos)
		if err != nil {
			return err
		}
		dg.Groups = append(dg.Groups, cg)
		pos = cg.nextLink
	}

	// Resolve VLSD sibling references: a variable length channel whose
	// data link points at a CG block stores its payloads in that group.
	posToID := make(map[int64]uint64, len(dg.Groups))
	for _, cg := range dg.Groups {
		posToID[cg.Pos] = cg.RecordID
	}
	posToCN := make(map[int64]*CN)
	for _, cg := range dg.Groups {
		for _, cn := range cg.allChannels() {
			posToCN[cn.Pos] = cn
		}
	}
	for _, cg := range dg.Groups {
		for _, cn := range cg.allChannels() {
			switch {
			case cn.Type == ChannelTypeVariableLength && cn.DataLinkTag == TagCG:
				cn.VlsdRecordID = posToID[cn.DataLink]
			case cn.Type == ChannelTypeMaxLength && cn.DataLinkTag == TagCN:
				cn.MlsdLength = posToCN[cn.DataLink]
			}
		}
	}

	return nil
}

// Write appends the data group block and its channel group chain. The
// data link stays zero; the streaming writer patches it when the payload
// block is created.
func (dg *DG) Write(w *Writer) (int64, error) {
	var mdLink int64
	var err error
	if dg.Comment != "" {
		if mdLink, err = w.WriteMeta(MakeComment("DGcomment", dg.Comment, nil)); err != nil {
			return 0, err
		}
	}

	links := make([]int64, dgLinkCount)
	links[dgLinkMD] = mdLink
	links[dgLinkData] = dg.DataLink

	data := make([]byte, 8)
	data[0] = dg.RecordIDSize

	block := appendHeader(make([]byte, 0, HeaderSize+8*dgLinkCount+8), TagDG, links, len(data))
	block = append(block, data...)

	pos, err := w.Append(block)
	if err != nil {
		return 0, err
	}
	dg.Pos = pos

	// Channel group chain.
	var prev *CG
	for _, cg := range dg.Groups {
		cgPos, err := cg.Write(w)
		if err != nil {
			return 0, err
		}
		if prev == nil {
			if err := w.PatchLink(pos, dgLinkCG, cgPos); err != nil {
				return 0, err
			}
		} else {
			if err := w.PatchLink(prev.Pos, cgLinkNext, cgPos); err != nil {
				return 0, err
			}
		}
		prev = cg
	}

	// Variable length channels referencing a sibling VLSD group carry
	// that group's block position in their data link. The positions are
	// only known now that the whole chain is on disk.
	for _, cg := range dg.Groups {
		for _, cn := range cg.allChannels() {
			switch {
			case cn.Type == ChannelTypeVariableLength && cn.VlsdRecordID != 0:
				side := dg.FindGroup(cn.VlsdRecordID)
				if side == nil {
					return 0, fmt.Errorf("channel %q references VLSD record id %d with no group",
						cn.Name, cn.VlsdRecordID)
				}
				if err := cn.PatchDataLink(w, side.Pos); err != nil {
					return 0, err
				}
			case cn.Type == ChannelTypeMaxLength && cn.MlsdLength != nil:
				if err := cn.PatchDataLink(w, cn.MlsdLength.Pos); err != nil {
					return 0, err
				}
			}
		}
	}

	return pos, nil
}

// PatchDataLink points the data group at its data payload block.
func (dg *DG) PatchDataLink(w *Writer, target int64) error {
	dg.DataLink = target
	return w.PatchLink(dg.Pos, dgLinkData, target)
}
