package blocks

// Event types.
type EventType uint8

const (
	EventRecording       EventType = 0
	EventRecordingInt    EventType = 1
	EventAcquisitionInt  EventType = 2
	EventStartRecording  EventType = 3
	EventStopRecording   EventType = 4
	EventTrigger         EventType = 5
	EventMarker          EventType = 6
)

// Event sync types.
type SyncType uint8

const (
	SyncTime     SyncType = 1
	SyncAngle    SyncType = 2
	SyncDistance SyncType = 3
	SyncIndex    SyncType = 4
)

// Event range types.
type RangeType uint8

const (
	RangePoint RangeType = 0
	RangeStart RangeType = 1
	RangeEnd   RangeType = 2
)

// Event causes.
type EventCause uint8

const (
	CauseOther  EventCause = 0
	CauseError  EventCause = 1
	CauseTool   EventCause = 2
	CauseScript EventCause = 3
	CauseUser   EventCause = 4
)

// EV is a typed event marker on the measurement timeline.
type EV struct {
	Pos int64

	Name    string
	Comment string

	Type         EventType
	Sync         SyncType
	Range        RangeType
	Cause        EventCause
	Flags        uint8
	CreatorIndex uint16
	SyncBase     int64
	SyncFactor   float64

	// AttachmentRefs are file positions of referenced AT blocks, resolved
	// against the header attachment list after the full info pass.
	AttachmentRefs []int64

	nextLink   int64
	parentLink int64
	rangeLink  int64
}

// SyncValue returns the event position in its sync dimension (e.g. seconds
// for time synced events).
func (ev *EV) SyncValue() float64 {
	return float64(ev.SyncBase) * ev.SyncFactor
}

func (p *Parser) readEV(pos int64) (*EV, error) {
	_, links, data, err := readBlock(p.r, pos, TagEV)
	if err != nil {
		return nil, err
	}
	if err := p.enter(pos, TagEV); err != nil {
		return nil, err
	}
	ev := &EV{
		Pos:        pos,
		nextLink:   link(links, 0),
		parentLink: link(links, 1),
		rangeLink:  link(links, 2),
	}
	if err := requireSize(pos, TagEV, data, 32); err != nil {
		return nil, err
	}

	ev.Type = EventType(data[0])
	ev.Sync = SyncType(data[1])
	ev.Range = RangeType(data[2])
	ev.Cause = EventCause(data[3])
	ev.Flags = data[4]
	scopeCount := le.Uint32(data[8:12])
	attachmentCount := le.Uint16(data[12:14])
	ev.CreatorIndex = le.Uint16(data[14:16])
	ev.SyncBase = int64(le.Uint64(data[16:24]))
	ev.SyncFactor = f64frombits(le.Uint64(data[24:32]))

	// Scope links precede the attachment references.
	base := 5 + int(scopeCount)
	for i := 0; i < int(attachmentCount); i++ {
		if ref := link(links, base+i); ref != 0 {
			ev.AttachmentRefs = append(ev.AttachmentRefs, ref)
		}
	}

	if ev.Name, err = p.ReadText(link(links, 3)); err != nil {
		return nil, err
	}
	comment, err := p.ReadText(link(links, 4))
	if err != nil {
		return nil, err
	}
	ev.Comment = ParseMeta(comment).Text

	return ev, nil
}

// Write appends the event block.
func (ev *EV) Write(w *Writer) (int64, error) {
	nameLink, err := w.WriteText(ev.Name)
	if err != nil {
		return 0, err
	}
	var mdLink int64
	if ev.Comment != "" {
		if mdLink, err = w.WriteMeta(MakeComment("EVcomment", ev.Comment, nil)); err != nil {
			return 0, err
		}
	}

	links := []int64{0, ev.parentLink, ev.rangeLink, nameLink, mdLink}
	links = append(links, ev.AttachmentRefs...)

	data := make([]byte, 0, 32)
	data = append(data, byte(ev.Type), byte(ev.Sync), byte(ev.Range), byte(ev.Cause),
		ev.Flags, 0, 0, 0)
	data = le.AppendUint32(data, 0) // no scope links
	data = le.AppendUint16(data, uint16(len(ev.AttachmentRefs)))
	data = le.AppendUint16(data, ev.CreatorIndex)
	data = le.AppendUint64(data, uint64(ev.SyncBase))
	data = le.AppendUint64(data, f64bits(ev.SyncFactor))

	block := appendHeader(make([]byte, 0, HeaderSize+8*len(links)+32), TagEV, links, len(data))
	block = append(block, data...)

	pos, err := w.Append(block)
	if err != nil {
		return 0, err
	}
	ev.Pos = pos

	return pos, nil
}
