package blocks

import "github.com/ihedvall/gomdf/errs"

// CN link slots.
const (
	cnLinkNext = iota
	cnLinkComposition
	cnLinkTX
	cnLinkSI
	cnLinkCC
	cnLinkData
	cnLinkUnit
	cnLinkMD
	cnLinkCount
)

// ChannelType enumerates the channel kinds.
type ChannelType uint8

const (
	ChannelTypeFixedLength    ChannelType = 0
	ChannelTypeVariableLength ChannelType = 1
	ChannelTypeMaster         ChannelType = 2
	ChannelTypeVirtualMaster  ChannelType = 3
	ChannelTypeSync           ChannelType = 4
	ChannelTypeMaxLength      ChannelType = 5
	ChannelTypeVirtualData    ChannelType = 6
)

// ChannelSyncType enumerates the sync dimension of master channels.
type ChannelSyncType uint8

const (
	ChannelSyncNone     ChannelSyncType = 0
	ChannelSyncTime     ChannelSyncType = 1
	ChannelSyncAngle    ChannelSyncType = 2
	ChannelSyncDistance ChannelSyncType = 3
	ChannelSyncIndex    ChannelSyncType = 4
)

// ChannelDataType enumerates the raw value encodings.
type ChannelDataType uint8

const (
	DataTypeUnsignedLe  ChannelDataType = 0
	DataTypeUnsignedBe  ChannelDataType = 1
	DataTypeSignedLe    ChannelDataType = 2
	DataTypeSignedBe    ChannelDataType = 3
	DataTypeFloatLe     ChannelDataType = 4
	DataTypeFloatBe     ChannelDataType = 5
	DataTypeStringAscii ChannelDataType = 6
	DataTypeStringUTF8  ChannelDataType = 7
	DataTypeStringUTF16Le ChannelDataType = 8
	DataTypeStringUTF16Be ChannelDataType = 9
	DataTypeByteArray   ChannelDataType = 10
	DataTypeMimeSample  ChannelDataType = 11
	DataTypeMimeStream  ChannelDataType = 12
	DataTypeCanOpenDate ChannelDataType = 13
	DataTypeCanOpenTime ChannelDataType = 14
)

// CN flags.
const (
	CnFlagAllInvalid    uint32 = 0x0001
	CnFlagInvalidValid  uint32 = 0x0002
	CnFlagPrecisionValid uint32 = 0x0004
	CnFlagRangeValid    uint32 = 0x0008
	CnFlagLimitValid    uint32 = 0x0010
	CnFlagExtLimitValid uint32 = 0x0020
	CnFlagDiscrete      uint32 = 0x0040
	CnFlagCalibration   uint32 = 0x0080
	CnFlagCalculated    uint32 = 0x0100
	CnFlagVirtual       uint32 = 0x0200
	CnFlagBusEvent      uint32 = 0x0400
	CnFlagMonotonous    uint32 = 0x0800
	CnFlagDefaultX      uint32 = 0x1000
)

// CN is a channel: the bit-precise description of one signal inside the
// record of its channel group.
type CN struct {
	Pos int64

	Name        string
	Description string
	Unit        string

	Type     ChannelType
	Sync     ChannelSyncType
	DataType ChannelDataType

	BitOffset     uint8
	ByteOffset    uint32
	BitCount      uint32
	Flags         uint32
	InvalidBitPos uint32
	Precision     uint8

	RangeMin    float64
	RangeMax    float64
	LimitMin    float64
	LimitMax    float64
	LimitExtMin float64
	LimitExtMax float64

	// Composition holds sub-channels describing bitfields inside this
	// channel's byte range. Mutually exclusive with Array.
	Composition []*CN
	// Array is the CA array descriptor, when the composition link points
	// to one.
	Array *CA

	Conversion *CC
	Source     *SI

	// VlsdRecordID names the sibling VLSD channel group that stores this
	// variable length channel's payloads. Zero means the payloads live in
	// a channel owned SD stream instead.
	VlsdRecordID uint64

	// MlsdLength is the paired length channel of a max length channel;
	// on disk the channel's data link points at its CN block.
	MlsdLength *CN

	// DataLink is the raw data link of the channel (SD/DL/HL chain for
	// VLSD channels storing in place, or the VLSD group position).
	DataLink    int64
	DataLinkTag string

	group    *CG
	nextLink int64
}

// Group returns the owning channel group. The parser sets it when the
// channel is read, composition members included.
func (cn *CN) Group() *CG { return cn.group }

// SetRange stores the plausible value range and marks it valid.
func (cn *CN) SetRange(min, max float64) {
	cn.RangeMin, cn.RangeMax = min, max
	cn.Flags |= CnFlagRangeValid
}

// SetDataBytes sizes the channel to a whole number of bytes. The byte and
// bit offsets are left unchanged.
func (cn *CN) SetDataBytes(nofBytes uint32) {
	cn.BitCount = nofBytes * 8
}

// NewComposition appends a sub-channel describing a bitfield inside this
// channel's byte range.
func (cn *CN) NewComposition(name string) *CN {
	sub := &CN{Name: name, group: cn.group}
	cn.Composition = append(cn.Composition, sub)

	return sub
}

// NewConversion attaches a conversion block to the channel.
func (cn *CN) NewConversion() *CC {
	cn.Conversion = &CC{}
	return cn.Conversion
}

// NewSourceInformation attaches source information to the channel.
func (cn *CN) NewSourceInformation() *SI {
	cn.Source = &SI{}
	return cn.Source
}

// endOffset returns the first record byte past this channel's bit range.
func (cn *CN) endOffset() uint32 {
	if cn.Type == ChannelTypeVirtualMaster || cn.Type == ChannelTypeVirtualData {
		return 0
	}
	bits := uint32(cn.BitOffset) + cn.BitCount
	return cn.ByteOffset + (bits+7)/8
}

// IsBigEndian reports whether the raw value uses big-endian byte order.
func (cn *CN) IsBigEndian() bool {
	switch cn.DataType {
	case DataTypeUnsignedBe, DataTypeSignedBe, DataTypeFloatBe, DataTypeStringUTF16Be:
		return true
	default:
		return false
	}
}

// IsNumeric reports whether the decoded value is numeric.
func (cn *CN) IsNumeric() bool {
	switch cn.DataType {
	case DataTypeUnsignedLe, DataTypeUnsignedBe, DataTypeSignedLe, DataTypeSignedBe,
		DataTypeFloatLe, DataTypeFloatBe, DataTypeCanOpenDate, DataTypeCanOpenTime:
		return true
	default:
		return false
	}
}

func (p *Parser) readCN(pos int64, group *CG) (*CN, error) {
	_, links, data, err := readBlock(p.r, pos, TagCN)
	if err != nil {
		return nil, err
	}
	if err := p.enter(pos, TagCN); err != nil {
		return nil, err
	}
	cn := &CN{
		Pos:      pos,
		group:    group,
		nextLink: link(links, cnLinkNext),
		DataLink: link(links, cnLinkData),
	}
	if err := requireSize(pos, TagCN, data, 72); err != nil {
		return nil, err
	}

	cn.Type = ChannelType(data[0])
	cn.Sync = ChannelSyncType(data[1])
	cn.DataType = ChannelDataType(data[2])
	cn.BitOffset = data[3]
	cn.ByteOffset = le.Uint32(data[4:8])
	cn.BitCount = le.Uint32(data[8:12])
	cn.Flags = le.Uint32(data[12:16])
	cn.InvalidBitPos = le.Uint32(data[16:20])
	cn.Precision = data[20]
	cn.RangeMin = f64frombits(le.Uint64(data[24:32]))
	cn.RangeMax = f64frombits(le.Uint64(data[32:40]))
	cn.LimitMin = f64frombits(le.Uint64(data[40:48]))
	cn.LimitMax = f64frombits(le.Uint64(data[48:56]))
	cn.LimitExtMin = f64frombits(le.Uint64(data[56:64]))
	cn.LimitExtMax = f64frombits(le.Uint64(data[64:72]))

	if cn.Name, err = p.ReadText(link(links, cnLinkTX)); err != nil {
		return nil, err
	}
	if cn.Unit, err = p.ReadText(link(links, cnLinkUnit)); err != nil {
		return nil, err
	}
	if unit := ParseMeta(cn.Unit); unit.Text != "" {
		cn.Unit = unit.Text
	}
	comment, err := p.ReadText(link(links, cnLinkMD))
	if err != nil {
		return nil, err
	}
	cn.Description = ParseMeta(comment).Text

	if siLink := link(links, cnLinkSI); siLink != 0 {
		if cn.Source, err = p.readSI(siLink); err != nil {
			return nil, err
		}
	}
	if ccLink := link(links, cnLinkCC); ccLink != 0 {
		if cn.Conversion, err = p.readCC(ccLink); err != nil {
			return nil, err
		}
	}

	// Composition: a CN chain (bitfields) or a CA array descriptor.
	if cxLink := link(links, cnLinkComposition); cxLink != 0 {
		h, _, err := ReadHeader(p.r, cxLink)
		if err != nil {
			return nil, err
		}
		switch h.Tag {
		case TagCN:
			for subPos := cxLink; subPos != 0; {
				sub, err := p.readCN(subPos, group)
				if err != nil {
					return nil, err
				}
				cn.Composition = append(cn.Composition, sub)
				subPos = sub.nextLink
			}
		case TagCA:
			if cn.Array, err = p.readCA(cxLink); err != nil {
				return nil, err
			}
		default:
			return nil, errs.Parse(cxLink, h.Tag, errs.ErrInvalidBlockTag)
		}
	}

	// The data link of a variable length channel points either at the
	// sibling VLSD channel group or at an SD/DL/HL/DZ stream.
	if cn.DataLink != 0 {
		h, _, err := ReadHeader(p.r, cn.DataLink)
		if err != nil {
			return nil, err
		}
		cn.DataLinkTag = h.Tag
	}

	return cn, nil
}

// Write appends the channel block, its composition chain and attached
// conversion/source blocks. VLSD group links are patched later by the
// data group once sibling group positions are known.
func (cn *CN) Write(w *Writer) (int64, error) {
	txLink, err := w.WriteText(cn.Name)
	if err != nil {
		return 0, err
	}
	var unitLink int64
	if cn.Unit != "" {
		if unitLink, err = w.WriteText(cn.Unit); err != nil {
			return 0, err
		}
	}
	var mdLink int64
	if cn.Description != "" {
		if mdLink, err = w.WriteMeta(MakeComment("CNcomment", cn.Description, nil)); err != nil {
			return 0, err
		}
	}
	var siLink int64
	if cn.Source != nil {
		if siLink, err = cn.Source.Write(w); err != nil {
			return 0, err
		}
	}
	var ccLink int64
	if cn.Conversion != nil {
		if ccLink, err = cn.Conversion.Write(w); err != nil {
			return 0, err
		}
	}

	links := make([]int64, cnLinkCount)
	links[cnLinkTX] = txLink
	links[cnLinkSI] = siLink
	links[cnLinkCC] = ccLink
	links[cnLinkUnit] = unitLink
	links[cnLinkMD] = mdLink

	data := make([]byte, 0, 72)
	data = append(data, byte(cn.Type), byte(cn.Sync), byte(cn.DataType), cn.BitOffset)
	data = le.AppendUint32(data, cn.ByteOffset)
	data = le.AppendUint32(data, cn.BitCount)
	data = le.AppendUint32(data, cn.Flags)
	data = le.AppendUint32(data, cn.InvalidBitPos)
	data = append(data, cn.Precision, 0)
	data = le.AppendUint16(data, 0) // no attachment references
	data = le.AppendUint64(data, f64bits(cn.RangeMin))
	data = le.AppendUint64(data, f64bits(cn.RangeMax))
	data = le.AppendUint64(data, f64bits(cn.LimitMin))
	data = le.AppendUint64(data, f64bits(cn.LimitMax))
	data = le.AppendUint64(data, f64bits(cn.LimitExtMin))
	data = le.AppendUint64(data, f64bits(cn.LimitExtMax))

	block := appendHeader(make([]byte, 0, HeaderSize+8*cnLinkCount+72), TagCN, links, len(data))
	block = append(block, data...)

	pos, err := w.Append(block)
	if err != nil {
		return 0, err
	}
	cn.Pos = pos

	var prev *CN
	for _, sub := range cn.Composition {
		subPos, err := sub.Write(w)
		if err != nil {
			return 0, err
		}
		if prev == nil {
			if err := w.PatchLink(pos, cnLinkComposition, subPos); err != nil {
				return 0, err
			}
		} else {
			if err := w.PatchLink(prev.Pos, cnLinkNext, subPos); err != nil {
				return 0, err
			}
		}
		prev = sub
	}
	if cn.Array != nil && len(cn.Composition) == 0 {
		caPos, err := cn.Array.Write(w)
		if err != nil {
			return 0, err
		}
		if err := w.PatchLink(pos, cnLinkComposition, caPos); err != nil {
			return 0, err
		}
	}

	return pos, nil
}

// PatchDataLink points the channel's data link at its SD stream or VLSD
// sibling group block.
func (cn *CN) PatchDataLink(w *Writer, target int64) error {
	cn.DataLink = target
	return w.PatchLink(cn.Pos, cnLinkData, target)
}
