package blocks

import (
	"encoding/xml"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// WriteText appends a TX block with the given NUL-terminated text and
// returns its position. Identical payloads are written once per file; the
// writer keeps an xxhash keyed map of already stored texts. An empty text
// yields link 0.
func (w *Writer) WriteText(text string) (int64, error) {
	return w.writeTextBlock(TagTX, text)
}

// WriteMeta appends an MD block holding an XML metadata payload. Like
// WriteText it deduplicates identical payloads.
func (w *Writer) WriteMeta(xmlText string) (int64, error) {
	return w.writeTextBlock(TagMD, xmlText)
}

func (w *Writer) writeTextBlock(tag string, text string) (int64, error) {
	if text == "" {
		return 0, nil
	}
	key := xxhash.Sum64String(tag + "\x00" + text)
	if pos, ok := w.txs[key]; ok {
		return pos, nil
	}

	// Payload is NUL terminated and zero padded to an 8 byte boundary.
	size := len(text) + 1
	if rem := size % 8; rem != 0 {
		size += 8 - rem
	}
	buf := appendHeader(make([]byte, 0, HeaderSize+size), tag, nil, size)
	buf = append(buf, text...)
	buf = buf[:HeaderSize+size]

	pos, err := w.Append(buf)
	if err != nil {
		return 0, err
	}
	w.txs[key] = pos

	return pos, nil
}

// ETag is one typed e/tree entry of an MD metadata block.
type ETag struct {
	Name     string
	Value    string
	DataType string
	Unit     string
}

// Meta is the parsed content of an MD comment block: the plain TX text
// (the <TX> element or the whole payload when it is not XML), a flat
// key to value view of the common elements and the typed ETag list.
type Meta struct {
	Text       string
	Properties map[string]string
	ETags      []ETag
}

// Float returns a property converted to float64.
func (m *Meta) Float(key string) (float64, bool) {
	raw, ok := m.Properties[key]
	if !ok {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}

	return value, true
}

type xmlProp struct {
	Name     string `xml:"name,attr"`
	Type     string `xml:"type,attr"`
	Unit     string `xml:"unit,attr"`
	Value    string `xml:",chardata"`
	Children []xmlProp `xml:"e"`
}

type xmlComment struct {
	TX          string    `xml:"TX"`
	ToolID      string    `xml:"tool_id"`
	ToolVendor  string    `xml:"tool_vendor"`
	ToolVersion string    `xml:"tool_version"`
	UserName    string    `xml:"user_name"`
	Props       []xmlProp `xml:"common_properties>e"`
	Trees       []xmlProp `xml:"common_properties>tree"`
}

// ParseMeta parses an MD payload. Plain (non-XML) text is returned as the
// Text field with no properties. Unknown XML content degrades to an empty
// property set rather than an error; metadata is advisory.
func ParseMeta(payload string) Meta {
	meta := Meta{Properties: make(map[string]string)}
	trimmed := strings.TrimSpace(payload)
	if !strings.HasPrefix(trimmed, "<") {
		meta.Text = payload
		return meta
	}

	var comment xmlComment
	if err := xml.Unmarshal([]byte(trimmed), &comment); err != nil {
		meta.Text = payload
		return meta
	}
	meta.Text = comment.TX
	if comment.ToolID != "" {
		meta.Properties["tool_id"] = comment.ToolID
	}
	if comment.ToolVendor != "" {
		meta.Properties["tool_vendor"] = comment.ToolVendor
	}
	if comment.ToolVersion != "" {
		meta.Properties["tool_version"] = comment.ToolVersion
	}
	if comment.UserName != "" {
		meta.Properties["user_name"] = comment.UserName
	}
	addProps(&meta, comment.Props)
	for _, tree := range comment.Trees {
		addProps(&meta, tree.Children)
	}

	return meta
}

func addProps(meta *Meta, props []xmlProp) {
	for _, p := range props {
		if p.Name == "" {
			continue
		}
		value := strings.TrimSpace(p.Value)
		meta.Properties[p.Name] = value
		meta.ETags = append(meta.ETags, ETag{
			Name:     p.Name,
			Value:    value,
			DataType: p.Type,
			Unit:     p.Unit,
		})
	}
}

// MakeComment wraps a plain description in the minimal MD XML body used
// for comment links.
func MakeComment(root string, text string, props map[string]string) string {
	var sb strings.Builder
	sb.WriteString("<")
	sb.WriteString(root)
	sb.WriteString("><TX>")
	xml.EscapeText(&sb, []byte(text))
	sb.WriteString("</TX>")
	if len(props) > 0 {
		sb.WriteString("<common_properties>")
		for _, name := range sortedKeys(props) {
			sb.WriteString(`<e name="`)
			xml.EscapeText(&sb, []byte(name))
			sb.WriteString(`">`)
			xml.EscapeText(&sb, []byte(props[name]))
			sb.WriteString("</e>")
		}
		sb.WriteString("</common_properties>")
	}
	sb.WriteString("</")
	sb.WriteString(root)
	sb.WriteString(">")

	return sb.String()
}

// textBuilder assembles the small fixed-shape XML comments block by block.
type textBuilder struct {
	sb strings.Builder
}

func (b *textBuilder) open(tag string) {
	b.sb.WriteString("<")
	b.sb.WriteString(tag)
	b.sb.WriteString(">")
}

func (b *textBuilder) close(tag string) {
	b.sb.WriteString("</")
	b.sb.WriteString(tag)
	b.sb.WriteString(">")
}

// element writes <tag>text</tag>, skipping empty text except for the
// mandatory TX element.
func (b *textBuilder) element(tag, text string) {
	if text == "" && tag != "TX" {
		return
	}
	b.open(tag)
	xml.EscapeText(&b.sb, []byte(text))
	b.close(tag)
}

func (b *textBuilder) String() string { return b.sb.String() }

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}
