package blocks

import "time"

// FH is a file history entry: who touched the file, with what tool, when.
type FH struct {
	Pos int64

	TimeNs       uint64
	TzOffsetMin  int16
	DstOffsetMin int16
	TimeFlags    uint8

	ToolID      string
	ToolVendor  string
	ToolVersion string
	UserName    string
	Description string

	nextLink int64
	mdLink   int64
}

// Time returns the change time of this entry.
func (fh *FH) Time() time.Time {
	return time.Unix(0, int64(fh.TimeNs))
}

func (p *Parser) readFH(pos int64) (*FH, error) {
	_, links, data, err := readBlock(p.r, pos, TagFH)
	if err != nil {
		return nil, err
	}
	if err := p.enter(pos, TagFH); err != nil {
		return nil, err
	}
	if err := requireSize(pos, TagFH, data, 16); err != nil {
		return nil, err
	}
	fh := &FH{
		Pos:      pos,
		nextLink: link(links, 0),
		mdLink:   link(links, 1),
	}
	fh.TimeNs = le.Uint64(data[0:8])
	fh.TzOffsetMin = int16(le.Uint16(data[8:10]))
	fh.DstOffsetMin = int16(le.Uint16(data[10:12]))
	fh.TimeFlags = data[12]

	text, err := p.ReadText(fh.mdLink)
	if err != nil {
		return nil, err
	}
	if text != "" {
		meta := ParseMeta(text)
		fh.Description = meta.Text
		fh.ToolID = meta.Properties["tool_id"]
		fh.ToolVendor = meta.Properties["tool_vendor"]
		fh.ToolVersion = meta.Properties["tool_version"]
		fh.UserName = meta.Properties["user_name"]
	}

	return fh, nil
}

func (fh *FH) commentXML() string {
	var sb textBuilder
	sb.open("FHcomment")
	sb.element("TX", fh.Description)
	sb.element("tool_id", fh.ToolID)
	sb.element("tool_vendor", fh.ToolVendor)
	sb.element("tool_version", fh.ToolVersion)
	sb.element("user_name", fh.UserName)
	sb.close("FHcomment")

	return sb.String()
}

// Write appends the file history block. The next link is zero and is
// patched by the caller when another entry follows.
func (fh *FH) Write(w *Writer) (int64, error) {
	mdLink, err := w.WriteMeta(fh.commentXML())
	if err != nil {
		return 0, err
	}
	fh.mdLink = mdLink

	data := make([]byte, 0, 16)
	data = le.AppendUint64(data, fh.TimeNs)
	data = le.AppendUint16(data, uint16(fh.TzOffsetMin))
	data = le.AppendUint16(data, uint16(fh.DstOffsetMin))
	data = append(data, fh.TimeFlags, 0, 0, 0)

	block := appendHeader(make([]byte, 0, HeaderSize+16+16), TagFH, []int64{0, mdLink}, len(data))
	block = append(block, data...)

	pos, err := w.Append(block)
	if err != nil {
		return 0, err
	}
	fh.Pos = pos

	return pos, nil
}
