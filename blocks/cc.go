package blocks

import "github.com/ihedvall/gomdf/errs"

// maxConversionDepth bounds nested conversion references.
const maxConversionDepth = 16

// ConversionType enumerates the conversion algorithms.
type ConversionType uint8

const (
	ConversionIdentity        ConversionType = 0
	ConversionLinear          ConversionType = 1
	ConversionRational        ConversionType = 2
	ConversionAlgebraic       ConversionType = 3
	ConversionValueToValueInterpolate ConversionType = 4
	ConversionValueToValue    ConversionType = 5
	ConversionValueRangeToValue ConversionType = 6
	ConversionValueToText     ConversionType = 7
	ConversionValueRangeToText ConversionType = 8
	ConversionTextToValue     ConversionType = 9
	ConversionTextToTranslation ConversionType = 10
	// MDF 3 carry-overs kept for files converted from older versions.
	ConversionPolynomial  ConversionType = 30
	ConversionExponential ConversionType = 31
	ConversionLogarithmic ConversionType = 32
)

// CC flags.
const (
	CcFlagPrecisionValid uint16 = 0x0001
	CcFlagRangeValid     uint16 = 0x0002
	CcFlagStatusString   uint16 = 0x0004
)

// CCRef is one entry of a conversion's reference list: either a text
// target or a nested conversion. The trailing entry of text valued
// conversions is the default target.
type CCRef struct {
	Text string
	Conv *CC
}

// CC is a conversion block: the algorithm that maps raw channel values to
// engineering values or text.
type CC struct {
	Pos int64

	Name    string
	Unit    string
	Comment string

	Type      ConversionType
	Precision uint8
	Flags     uint16
	RangeMin  float64
	RangeMax  float64

	// Params is the raw parameter array; its interpretation depends on
	// Type (see the decoder).
	Params []float64

	// Refs is the reference list of text valued conversions.
	Refs []CCRef

	// Formula is the algebraic expression text (ConversionAlgebraic).
	Formula string

	// Inverse is the declared inverse conversion, when present.
	Inverse *CC
}

// SetParameter grows the parameter array as needed and sets one entry.
func (cc *CC) SetParameter(index int, value float64) {
	for len(cc.Params) <= index {
		cc.Params = append(cc.Params, 0)
	}
	cc.Params[index] = value
}

// SetTextRef grows the reference list as needed and sets one text entry.
func (cc *CC) SetTextRef(index int, text string) {
	for len(cc.Refs) <= index {
		cc.Refs = append(cc.Refs, CCRef{})
	}
	cc.Refs[index] = CCRef{Text: text}
}

func (p *Parser) readCC(pos int64) (*CC, error) {
	// Conversions may legally be shared and nested, so the visited set is
	// not used; a depth guard stops malicious reference cycles instead.
	p.ccDepth++
	defer func() { p.ccDepth-- }()
	if p.ccDepth > maxConversionDepth {
		return nil, errs.Parse(pos, TagCC, errs.ErrCyclicLink)
	}

	_, links, data, err := readBlock(p.r, pos, TagCC)
	if err != nil {
		return nil, err
	}
	cc := &CC{Pos: pos}
	if err := requireSize(pos, TagCC, data, 24); err != nil {
		return nil, err
	}

	cc.Type = ConversionType(data[0])
	cc.Precision = data[1]
	cc.Flags = le.Uint16(data[2:4])
	refCount := le.Uint16(data[4:6])
	valCount := le.Uint16(data[6:8])
	cc.RangeMin = f64frombits(le.Uint64(data[8:16]))
	cc.RangeMax = f64frombits(le.Uint64(data[16:24]))
	if err := requireSize(pos, TagCC, data, 24+8*int(valCount)); err != nil {
		return nil, err
	}
	for i := 0; i < int(valCount); i++ {
		cc.Params = append(cc.Params, f64frombits(le.Uint64(data[24+8*i:32+8*i])))
	}

	if cc.Name, err = p.ReadText(link(links, 0)); err != nil {
		return nil, err
	}
	if cc.Unit, err = p.ReadText(link(links, 1)); err != nil {
		return nil, err
	}
	if unit := ParseMeta(cc.Unit); unit.Text != "" {
		cc.Unit = unit.Text
	}
	comment, err := p.ReadText(link(links, 2))
	if err != nil {
		return nil, err
	}
	cc.Comment = ParseMeta(comment).Text
	if invLink := link(links, 3); invLink != 0 {
		if cc.Inverse, err = p.readCC(invLink); err != nil {
			return nil, err
		}
	}

	// Reference list: TX targets and/or nested CC blocks.
	for i := 0; i < int(refCount); i++ {
		refLink := link(links, 4+i)
		if refLink == 0 {
			cc.Refs = append(cc.Refs, CCRef{})
			continue
		}
		h, _, err := ReadHeader(p.r, refLink)
		if err != nil {
			return nil, err
		}
		switch h.Tag {
		case TagCC:
			nested, err := p.readCC(refLink)
			if err != nil {
				return nil, err
			}
			cc.Refs = append(cc.Refs, CCRef{Conv: nested})
		default:
			text, err := p.ReadText(refLink)
			if err != nil {
				return nil, err
			}
			cc.Refs = append(cc.Refs, CCRef{Text: text})
		}
	}

	if cc.Type == ConversionAlgebraic && len(cc.Refs) > 0 {
		cc.Formula = cc.Refs[0].Text
	}

	return cc, nil
}

// Write appends the conversion block with its reference list.
func (cc *CC) Write(w *Writer) (int64, error) {
	nameLink, err := w.WriteText(cc.Name)
	if err != nil {
		return 0, err
	}
	var unitLink int64
	if cc.Unit != "" {
		if unitLink, err = w.WriteText(cc.Unit); err != nil {
			return 0, err
		}
	}
	var mdLink int64
	if cc.Comment != "" {
		if mdLink, err = w.WriteMeta(MakeComment("CCcomment", cc.Comment, nil)); err != nil {
			return 0, err
		}
	}
	var invLink int64
	if cc.Inverse != nil {
		if invLink, err = cc.Inverse.Write(w); err != nil {
			return 0, err
		}
	}

	refs := cc.Refs
	if cc.Type == ConversionAlgebraic && len(refs) == 0 {
		refs = []CCRef{{Text: cc.Formula}}
	}
	refLinks := make([]int64, 0, len(refs))
	for _, ref := range refs {
		switch {
		case ref.Conv != nil:
			refPos, err := ref.Conv.Write(w)
			if err != nil {
				return 0, err
			}
			refLinks = append(refLinks, refPos)
		case ref.Text != "":
			refPos, err := w.WriteText(ref.Text)
			if err != nil {
				return 0, err
			}
			refLinks = append(refLinks, refPos)
		default:
			refLinks = append(refLinks, 0)
		}
	}

	links := []int64{nameLink, unitLink, mdLink, invLink}
	links = append(links, refLinks...)

	data := make([]byte, 0, 24+8*len(cc.Params))
	data = append(data, byte(cc.Type), cc.Precision)
	data = le.AppendUint16(data, cc.Flags)
	data = le.AppendUint16(data, uint16(len(refLinks)))
	data = le.AppendUint16(data, uint16(len(cc.Params)))
	data = le.AppendUint64(data, f64bits(cc.RangeMin))
	data = le.AppendUint64(data, f64bits(cc.RangeMax))
	for _, par := range cc.Params {
		data = le.AppendUint64(data, f64bits(par))
	}

	block := appendHeader(make([]byte, 0, HeaderSize+8*len(links)+len(data)), TagCC, links, len(data))
	block = append(block, data...)

	pos, err := w.Append(block)
	if err != nil {
		return 0, err
	}
	cc.Pos = pos

	return pos, nil
}
