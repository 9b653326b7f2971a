package blocks

import (
	"math"
	"time"
)

// HD link slots.
const (
	hdLinkDG = iota
	hdLinkFH
	hdLinkCH
	hdLinkAT
	hdLinkEV
	hdLinkMD
	hdLinkCount
)

// HD time flags.
const (
	TimeFlagLocalTime   uint8 = 0x01
	TimeFlagOffsetValid uint8 = 0x02
)

// HD flags.
const (
	HdFlagStartAngleValid    uint8 = 0x01
	HdFlagStartDistanceValid uint8 = 0x02
)

// HD is the header block: the root of the measurement graph.
type HD struct {
	Pos int64

	StartTimeNs  uint64
	TzOffsetMin  int16
	DstOffsetMin int16
	TimeFlags    uint8
	TimeClass    uint8
	Flags        uint8
	StartAngle   float64 // rad, valid per Flags
	StartDist    float64 // m, valid per Flags

	Author      string
	Department  string
	Project     string
	Subject     string
	Description string
	MeasureUUID string

	Comment Meta

	DataGroups    []*DG
	FileHistories []*FH
	Attachments   []*AT
	Events        []*EV

	dgLink int64
	fhLink int64
	chLink int64
	atLink int64
	evLink int64
	mdLink int64
}

// NewHD creates a header block with the start time set to now.
func NewHD() *HD {
	return &HD{StartTimeNs: uint64(time.Now().UnixNano())}
}

// StartTime returns the absolute measurement start time.
func (hd *HD) StartTime() time.Time {
	return time.Unix(0, int64(hd.StartTimeNs))
}

// SetStartAngle sets the start angle in radians and marks it valid.
func (hd *HD) SetStartAngle(rad float64) {
	hd.StartAngle = rad
	hd.Flags |= HdFlagStartAngleValid
}

// SetStartDistance sets the start distance in meters and marks it valid.
func (hd *HD) SetStartDistance(meters float64) {
	hd.StartDist = meters
	hd.Flags |= HdFlagStartDistanceValid
}

// NewDataGroup appends a new data group to the header and returns it.
func (hd *HD) NewDataGroup() *DG {
	dg := &DG{}
	hd.DataGroups = append(hd.DataGroups, dg)

	return dg
}

// LastDataGroup returns the most recently created data group or nil.
func (hd *HD) LastDataGroup() *DG {
	if len(hd.DataGroups) == 0 {
		return nil
	}
	return hd.DataGroups[len(hd.DataGroups)-1]
}

// NewFileHistory appends a file history entry.
func (hd *HD) NewFileHistory() *FH {
	fh := &FH{TimeNs: uint64(time.Now().UnixNano())}
	hd.FileHistories = append(hd.FileHistories, fh)

	return fh
}

// NewAttachment appends an attachment entry.
func (hd *HD) NewAttachment() *AT {
	at := &AT{CreatorIndex: uint16(len(hd.FileHistories))}
	hd.Attachments = append(hd.Attachments, at)

	return at
}

// NewEvent appends an event entry.
func (hd *HD) NewEvent() *EV {
	ev := &EV{SyncFactor: 1.0}
	hd.Events = append(hd.Events, ev)

	return ev
}

// ReadHD parses the header block fixed fields at the mandated position.
// Child chains are loaded by ReadInfo.
func (p *Parser) ReadHD() (*HD, error) {
	_, links, data, err := readBlock(p.r, HeaderStart, TagHD)
	if err != nil {
		return nil, err
	}
	hd := &HD{Pos: HeaderStart}
	if err := p.enter(HeaderStart, TagHD); err != nil {
		return nil, err
	}
	if err := requireSize(HeaderStart, TagHD, data, 32); err != nil {
		return nil, err
	}
	hd.dgLink = link(links, hdLinkDG)
	hd.fhLink = link(links, hdLinkFH)
	hd.chLink = link(links, hdLinkCH)
	hd.atLink = link(links, hdLinkAT)
	hd.evLink = link(links, hdLinkEV)
	hd.mdLink = link(links, hdLinkMD)

	hd.StartTimeNs = le.Uint64(data[0:8])
	hd.TzOffsetMin = int16(le.Uint16(data[8:10]))
	hd.DstOffsetMin = int16(le.Uint16(data[10:12]))
	hd.TimeFlags = data[12]
	hd.TimeClass = data[13]
	hd.Flags = data[14]
	hd.StartAngle = math.Float64frombits(le.Uint64(data[16:24]))
	hd.StartDist = math.Float64frombits(le.Uint64(data[24:32]))

	if text, err := p.ReadText(hd.mdLink); err != nil {
		return nil, err
	} else if text != "" {
		hd.Comment = ParseMeta(text)
		hd.Author = hd.Comment.Properties["author"]
		hd.Department = hd.Comment.Properties["department"]
		hd.Project = hd.Comment.Properties["project"]
		hd.Subject = hd.Comment.Properties["subject"]
		hd.MeasureUUID = hd.Comment.Properties["measurement.uuid"]
		hd.Description = hd.Comment.Text
	}

	return hd, nil
}

// ReadInfo walks the file history, attachment, event and data group chains
// of the header. Channel groups and deeper structures are loaded by
// DG.ReadGroups.
func (hd *HD) ReadInfo(p *Parser) error {
	for pos := hd.fhLink; pos != 0; {
		fh, err := p.readFH(pos)
		if err != nil {
			return err
		}
		hd.FileHistories = append(hd.FileHistories, fh)
		pos = fh.nextLink
	}
	for pos := hd.atLink; pos != 0; {
		at, err := p.readAT(pos)
		if err != nil {
			return err
		}
		hd.Attachments = append(hd.Attachments, at)
		pos = at.nextLink
	}
	for pos := hd.evLink; pos != 0; {
		ev, err := p.readEV(pos)
		if err != nil {
			return err
		}
		hd.Events = append(hd.Events, ev)
		pos = ev.nextLink
	}
	for pos := hd.dgLink; pos != 0; {
		dg, err := p.readDG(pos)
		if err != nil {
			return err
		}
		hd.DataGroups = append(hd.DataGroups, dg)
		pos = dg.nextLink
	}

	return nil
}

// commentXML builds the hd_comment MD payload from the header metadata.
func (hd *HD) commentXML() string {
	props := map[string]string{}
	if hd.Author != "" {
		props["author"] = hd.Author
	}
	if hd.Department != "" {
		props["department"] = hd.Department
	}
	if hd.Project != "" {
		props["project"] = hd.Project
	}
	if hd.Subject != "" {
		props["subject"] = hd.Subject
	}
	if hd.MeasureUUID != "" {
		props["measurement.uuid"] = hd.MeasureUUID
	}
	if hd.Description == "" && len(props) == 0 {
		return ""
	}

	return MakeComment("HDcomment", hd.Description, props)
}

// Write serializes the header block with zeroed child links; the writer
// patches the links as the chains are written.
func (hd *HD) Write(w *Writer) error {
	size := int64(HeaderSize + 8*hdLinkCount + 32)
	if w.End() < HeaderStart+size {
		// Reserve the fixed header position so the comment block is
		// appended behind it instead of being overwritten by it.
		if err := w.WriteAt(make([]byte, size), HeaderStart); err != nil {
			return err
		}
	}
	mdLink, err := w.WriteMeta(hd.commentXML())
	if err != nil {
		return err
	}
	hd.mdLink = mdLink

	links := make([]int64, hdLinkCount)
	links[hdLinkMD] = mdLink

	data := make([]byte, 0, 32)
	data = le.AppendUint64(data, hd.StartTimeNs)
	data = le.AppendUint16(data, uint16(hd.TzOffsetMin))
	data = le.AppendUint16(data, uint16(hd.DstOffsetMin))
	data = append(data, hd.TimeFlags, hd.TimeClass, hd.Flags, 0)
	data = le.AppendUint64(data, math.Float64bits(hd.StartAngle))
	data = le.AppendUint64(data, math.Float64bits(hd.StartDist))

	block := appendHeader(make([]byte, 0, HeaderSize+8*hdLinkCount+32), TagHD, links, len(data))
	block = append(block, data...)
	hd.Pos = HeaderStart

	return w.WriteAt(block, HeaderStart)
}

// PatchStartTime rewrites the start time field of a header already on disk.
func (hd *HD) PatchStartTime(w *Writer, startNs uint64) error {
	hd.StartTimeNs = startNs
	return w.PatchUint64(hd.Pos+HeaderSize+8*hdLinkCount, startNs)
}

func link(links []int64, slot int) int64 {
	if slot < len(links) {
		return links[slot]
	}
	return 0
}
