package blocks

// Source types.
type SourceType uint8

const (
	SourceOther SourceType = 0
	SourceEcu   SourceType = 1
	SourceBus   SourceType = 2
	SourceIo    SourceType = 3
	SourceTool  SourceType = 4
	SourceUser  SourceType = 5
)

// Bus types.
type BusType uint8

const (
	BusNone     BusType = 0
	BusOther    BusType = 1
	BusCan      BusType = 2
	BusLin      BusType = 3
	BusMost     BusType = 4
	BusFlexRay  BusType = 5
	BusKLine    BusType = 6
	BusEthernet BusType = 7
	BusUsb      BusType = 8
)

// SI source flags.
const SiFlagSimulated uint8 = 0x01

// SI is a source information block: where a channel or channel group's
// data came from.
type SI struct {
	Pos int64

	Name        string
	Path        string
	Description string
	Type        SourceType
	Bus         BusType
	Flags       uint8
}

func (p *Parser) readSI(pos int64) (*SI, error) {
	// SI blocks are shared between channels; re-reading a shared block is
	// not a cycle, so the visited set is not consulted here.
	_, links, data, err := readBlock(p.r, pos, TagSI)
	if err != nil {
		return nil, err
	}
	si := &SI{Pos: pos}
	if err := requireSize(pos, TagSI, data, 8); err != nil {
		return nil, err
	}
	si.Type = SourceType(data[0])
	si.Bus = BusType(data[1])
	si.Flags = data[2]

	if si.Name, err = p.ReadText(link(links, 0)); err != nil {
		return nil, err
	}
	if si.Path, err = p.ReadText(link(links, 1)); err != nil {
		return nil, err
	}
	comment, err := p.ReadText(link(links, 2))
	if err != nil {
		return nil, err
	}
	si.Description = ParseMeta(comment).Text

	return si, nil
}

// Write appends the source information block.
func (si *SI) Write(w *Writer) (int64, error) {
	nameLink, err := w.WriteText(si.Name)
	if err != nil {
		return 0, err
	}
	pathLink, err := w.WriteText(si.Path)
	if err != nil {
		return 0, err
	}
	var mdLink int64
	if si.Description != "" {
		if mdLink, err = w.WriteMeta(MakeComment("SIcomment", si.Description, nil)); err != nil {
			return 0, err
		}
	}

	data := make([]byte, 8)
	data[0] = byte(si.Type)
	data[1] = byte(si.Bus)
	data[2] = si.Flags

	block := appendHeader(make([]byte, 0, HeaderSize+24+8), TagSI,
		[]int64{nameLink, pathLink, mdLink}, len(data))
	block = append(block, data...)

	pos, err := w.Append(block)
	if err != nil {
		return 0, err
	}
	si.Pos = pos

	return pos, nil
}
