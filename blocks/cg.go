package blocks

// CG link slots.
const (
	cgLinkNext = iota
	cgLinkCN
	cgLinkTX
	cgLinkSI
	cgLinkSR
	cgLinkMD
	cgLinkCount
)

// CG flags.
const (
	CgFlagVlsd         uint16 = 0x0001
	CgFlagBusEvent     uint16 = 0x0002
	CgFlagPlainBusEvent uint16 = 0x0004
	CgFlagRemoteMaster uint16 = 0x0008
)

// CG is a channel group: the layout of one record type within a data
// group, together with its channels.
type CG struct {
	Pos int64

	Name          string
	Comment       string
	RecordID      uint64
	CycleCount    uint64
	Flags         uint16
	PathSeparator rune
	DataBytes     uint32
	InvalidBytes  uint32

	Source   *SI
	Channels []*CN
	Reductions []*SR

	nextLink  int64
	cnLink    int64
	srLink    int64
	sampleBuf []byte
}

// IsVlsd reports whether this group stores variable length payloads for a
// sibling group instead of fixed records.
func (cg *CG) IsVlsd() bool { return cg.Flags&CgFlagVlsd != 0 }

// RecordSize returns the fixed record size including invalid bytes.
func (cg *CG) RecordSize() uint32 { return cg.DataBytes + cg.InvalidBytes }

// NewChannel appends a channel to the group.
func (cg *CG) NewChannel(name string) *CN {
	cn := &CN{Name: name, group: cg}
	cg.Channels = append(cg.Channels, cn)

	return cn
}

// NewSourceInformation attaches acquisition source information.
func (cg *CG) NewSourceInformation() *SI {
	cg.Source = &SI{}
	return cg.Source
}

// GetChannel returns the channel with the given name, searching the
// composition trees too, or nil.
func (cg *CG) GetChannel(name string) *CN {
	var find func(list []*CN) *CN
	find = func(list []*CN) *CN {
		for _, cn := range list {
			if cn.Name == name {
				return cn
			}
			if found := find(cn.Composition); found != nil {
				return found
			}
		}
		return nil
	}

	return find(cg.Channels)
}

// allChannels returns the channel tree flattened in depth-first order.
func (cg *CG) allChannels() []*CN {
	var out []*CN
	var walk func(list []*CN)
	walk = func(list []*CN) {
		for _, cn := range list {
			out = append(out, cn)
			walk(cn.Composition)
		}
	}
	walk(cg.Channels)

	return out
}

// AllChannels returns every channel of the group including composition
// sub-channels, in declaration order.
func (cg *CG) AllChannels() []*CN { return cg.allChannels() }

// MasterChannel returns the master (time) channel of the group or nil.
func (cg *CG) MasterChannel() *CN {
	for _, cn := range cg.Channels {
		if cn.Type == ChannelTypeMaster || cn.Type == ChannelTypeVirtualMaster {
			return cn
		}
	}
	return nil
}

// FindSdChannel returns the first variable length channel that stores its
// payloads in an SD block owned by the channel (no VLSD sibling group).
func (cg *CG) FindSdChannel() *CN {
	var find func(list []*CN) *CN
	find = func(list []*CN) *CN {
		for _, cn := range list {
			if cn.Type == ChannelTypeVariableLength && cn.VlsdRecordID == 0 {
				return cn
			}
			if found := find(cn.Composition); found != nil {
				return found
			}
		}
		return nil
	}

	return find(cg.Channels)
}

// PrepareForWriting computes the record layout from the channel tree: the
// group data byte count is raised to the highest channel end offset, and
// channels with an invalid bit get the invalid byte suffix sized.
func (cg *CG) PrepareForWriting() {
	if cg.IsVlsd() {
		cg.DataBytes = 0
		cg.InvalidBytes = 0
		return
	}
	var dataBytes uint32
	var maxInvalidBit uint32
	var used bool
	var walk func(list []*CN)
	walk = func(list []*CN) {
		for _, cn := range list {
			if end := cn.endOffset(); end > dataBytes {
				dataBytes = end
			}
			if cn.Flags&CnFlagInvalidValid != 0 {
				used = true
				if cn.InvalidBitPos > maxInvalidBit {
					maxInvalidBit = cn.InvalidBitPos
				}
			}
			walk(cn.Composition)
		}
	}
	walk(cg.Channels)
	if cg.DataBytes < dataBytes {
		cg.DataBytes = dataBytes
	}
	if used {
		cg.InvalidBytes = maxInvalidBit/8 + 1
	}
}

func (p *Parser) readCG(pos int64) (*CG, error) {
	_, links, data, err := readBlock(p.r, pos, TagCG)
	if err != nil {
		return nil, err
	}
	if err := p.enter(pos, TagCG); err != nil {
		return nil, err
	}
	cg := &CG{
		Pos:      pos,
		nextLink: link(links, cgLinkNext),
		cnLink:   link(links, cgLinkCN),
		srLink:   link(links, cgLinkSR),
	}
	if err := requireSize(pos, TagCG, data, 32); err != nil {
		return nil, err
	}

	cg.RecordID = le.Uint64(data[0:8])
	cg.CycleCount = le.Uint64(data[8:16])
	cg.Flags = le.Uint16(data[16:18])
	cg.PathSeparator = rune(le.Uint16(data[18:20]))
	cg.DataBytes = le.Uint32(data[24:28])
	cg.InvalidBytes = le.Uint32(data[28:32])

	if cg.Name, err = p.ReadText(link(links, cgLinkTX)); err != nil {
		return nil, err
	}
	comment, err := p.ReadText(link(links, cgLinkMD))
	if err != nil {
		return nil, err
	}
	cg.Comment = ParseMeta(comment).Text

	if siLink := link(links, cgLinkSI); siLink != 0 {
		if cg.Source, err = p.readSI(siLink); err != nil {
			return nil, err
		}
	}

	for cnPos := cg.cnLink; cnPos != 0; {
		cn, err := p.readCN(cnPos, cg)
		if err != nil {
			return nil, err
		}
		cg.Channels = append(cg.Channels, cn)
		cnPos = cn.nextLink
	}
	for srPos := cg.srLink; srPos != 0; {
		sr, err := p.readSR(srPos)
		if err != nil {
			return nil, err
		}
		cg.Reductions = append(cg.Reductions, sr)
		srPos = sr.nextLink
	}

	return cg, nil
}

// Write appends the channel group block and its channel chain.
func (cg *CG) Write(w *Writer) (int64, error) {
	txLink, err := w.WriteText(cg.Name)
	if err != nil {
		return 0, err
	}
	var mdLink int64
	if cg.Comment != "" {
		if mdLink, err = w.WriteMeta(MakeComment("CGcomment", cg.Comment, nil)); err != nil {
			return 0, err
		}
	}
	var siLink int64
	if cg.Source != nil {
		if siLink, err = cg.Source.Write(w); err != nil {
			return 0, err
		}
	}

	links := make([]int64, cgLinkCount)
	links[cgLinkTX] = txLink
	links[cgLinkSI] = siLink
	links[cgLinkMD] = mdLink

	sep := cg.PathSeparator
	if sep == 0 {
		sep = '.'
	}
	data := make([]byte, 0, 32)
	data = le.AppendUint64(data, cg.RecordID)
	data = le.AppendUint64(data, cg.CycleCount)
	data = le.AppendUint16(data, cg.Flags)
	data = le.AppendUint16(data, uint16(sep))
	data = append(data, 0, 0, 0, 0)
	data = le.AppendUint32(data, cg.DataBytes)
	data = le.AppendUint32(data, cg.InvalidBytes)

	block := appendHeader(make([]byte, 0, HeaderSize+8*cgLinkCount+32), TagCG, links, len(data))
	block = append(block, data...)

	pos, err := w.Append(block)
	if err != nil {
		return 0, err
	}
	cg.Pos = pos

	var prev *CN
	for _, cn := range cg.Channels {
		cnPos, err := cn.Write(w)
		if err != nil {
			return 0, err
		}
		if prev == nil {
			if err := w.PatchLink(pos, cgLinkCN, cnPos); err != nil {
				return 0, err
			}
		} else {
			if err := w.PatchLink(prev.Pos, cnLinkNext, cnPos); err != nil {
				return 0, err
			}
		}
		prev = cn
	}

	return pos, nil
}

// PatchVlsdSize stores the total VLSD payload size. For VLSD groups the
// data byte and invalid byte fields together hold the 64 bit total length
// of all stored payloads.
func (cg *CG) PatchVlsdSize(w *Writer, total uint64) error {
	cg.DataBytes = uint32(total)
	cg.InvalidBytes = uint32(total >> 32)
	return w.PatchUint64(cg.Pos+HeaderSize+8*cgLinkCount+24, total)
}

// PatchCycleCount rewrites the sample counter of a group already on disk.
func (cg *CG) PatchCycleCount(w *Writer) error {
	return w.PatchUint64(cg.Pos+HeaderSize+8*cgLinkCount+8, cg.CycleCount)
}
