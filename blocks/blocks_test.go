package blocks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T) (*os.File, *Writer) {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "blocks.mf4"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	return f, NewWriter(f, 0)
}

func TestIDRoundTrip(t *testing.T) {
	f, w := newTestWriter(t)

	id := NewID()
	id.StdFlags = UnfinFlagDtLength
	require.NoError(t, id.Write(w))

	var parsed ID
	require.NoError(t, parsed.Read(f))
	assert.Equal(t, MagicUnfinalized, parsed.FileID)
	assert.Equal(t, uint16(410), parsed.Version)
	assert.Equal(t, UnfinFlagDtLength, parsed.StdFlags)
	assert.False(t, parsed.Finalized())
}

func TestIDRejectsBadMagic(t *testing.T) {
	f, _ := newTestWriter(t)
	_, err := f.WriteAt(make([]byte, IDSize), 0)
	require.NoError(t, err)

	var id ID
	assert.Error(t, id.Read(f))
}

func TestReadHeaderValidation(t *testing.T) {
	f, w := newTestWriter(t)
	require.NoError(t, NewID().Write(w))

	// A lowercase tag is rejected on read.
	badPos, err := w.Append(appendHeader(nil, "##hd", nil, 8))
	require.NoError(t, err)
	_, _, err = ReadHeader(f, badPos)
	assert.Error(t, err)

	pos, err := w.Append(appendHeader(nil, TagTX, []int64{0}, 8))
	require.NoError(t, err)
	h, links, err := ReadHeader(f, pos)
	require.NoError(t, err)
	assert.Equal(t, TagTX, h.Tag)
	assert.Len(t, links, 1)
	assert.Equal(t, uint64(8), h.DataSize())
}

func TestWriteTextDedup(t *testing.T) {
	f, w := newTestWriter(t)
	require.NoError(t, NewID().Write(w))

	first, err := w.WriteText("CAN_DataFrame")
	require.NoError(t, err)
	second, err := w.WriteText("CAN_DataFrame")
	require.NoError(t, err)
	assert.Equal(t, first, second, "identical texts share one block")

	other, err := w.WriteText("CAN_RemoteFrame")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	p := NewParser(f)
	text, err := p.ReadText(first)
	require.NoError(t, err)
	assert.Equal(t, "CAN_DataFrame", text)

	empty, err := w.WriteText("")
	require.NoError(t, err)
	assert.Zero(t, empty)
}

func TestBlockAlignment(t *testing.T) {
	_, w := newTestWriter(t)
	require.NoError(t, NewID().Write(w))

	// Force an unaligned end and verify the next block lands on an
	// 8 byte boundary.
	require.NoError(t, w.WriteAt([]byte{1, 2, 3}, w.End()))
	pos, err := w.WriteText("x")
	require.NoError(t, err)
	assert.Zero(t, pos%8)
}

func TestParseMeta(t *testing.T) {
	meta := ParseMeta(`<HDcomment><TX>Test measurement</TX>` +
		`<common_properties>` +
		`<e name="author">Olle</e>` +
		`<e name="speed" type="float" unit="km/h">33.5</e>` +
		`</common_properties></HDcomment>`)

	assert.Equal(t, "Test measurement", meta.Text)
	assert.Equal(t, "Olle", meta.Properties["author"])
	speed, ok := meta.Float("speed")
	require.True(t, ok)
	assert.InDelta(t, 33.5, speed, 1e-9)
	require.Len(t, meta.ETags, 2)
	assert.Equal(t, "float", meta.ETags[1].DataType)
	assert.Equal(t, "km/h", meta.ETags[1].Unit)

	plain := ParseMeta("just a comment")
	assert.Equal(t, "just a comment", plain.Text)
	assert.Empty(t, plain.Properties)
}

func TestMakeCommentEscapes(t *testing.T) {
	xmlText := MakeComment("CNcomment", "a < b", map[string]string{"k": "v&w"})
	meta := ParseMeta(xmlText)
	assert.Equal(t, "a < b", meta.Text)
	assert.Equal(t, "v&w", meta.Properties["k"])
}

func TestFHRoundTrip(t *testing.T) {
	f, w := newTestWriter(t)
	require.NoError(t, NewID().Write(w))

	fh := &FH{
		TimeNs:      1_600_000_000_000_000_000,
		ToolID:      "gomdf",
		ToolVendor:  "ihedvall",
		ToolVersion: "1.0",
		UserName:    "tester",
		Description: "unit test",
	}
	pos, err := fh.Write(w)
	require.NoError(t, err)

	p := NewParser(f)
	parsed, err := p.readFH(pos)
	require.NoError(t, err)
	assert.Equal(t, fh.TimeNs, parsed.TimeNs)
	assert.Equal(t, "gomdf", parsed.ToolID)
	assert.Equal(t, "tester", parsed.UserName)
	assert.Equal(t, "unit test", parsed.Description)
}

func TestATEmbedRoundTrip(t *testing.T) {
	f, w := newTestWriter(t)
	require.NoError(t, NewID().Write(w))

	payload := []byte("calibration calibration calibration data")
	at := &AT{Filename: "cal.txt", FileType: "text/plain"}
	require.NoError(t, at.Embed(payload, true))
	pos, err := at.Write(w)
	require.NoError(t, err)

	p := NewParser(f)
	parsed, err := p.readAT(pos)
	require.NoError(t, err)
	assert.Equal(t, "cal.txt", parsed.Filename)
	assert.True(t, parsed.IsEmbedded())
	assert.Equal(t, uint64(len(payload)), parsed.OriginalSize)

	restored, err := parsed.Payload()
	require.NoError(t, err)
	assert.Equal(t, payload, restored)

	out := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, parsed.Export(out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestSIRoundTrip(t *testing.T) {
	f, w := newTestWriter(t)
	require.NoError(t, NewID().Write(w))

	si := &SI{Name: "CAN", Path: "can0", Type: SourceBus, Bus: BusCan}
	pos, err := si.Write(w)
	require.NoError(t, err)

	p := NewParser(f)
	parsed, err := p.readSI(pos)
	require.NoError(t, err)
	assert.Equal(t, "CAN", parsed.Name)
	assert.Equal(t, "can0", parsed.Path)
	assert.Equal(t, SourceBus, parsed.Type)
	assert.Equal(t, BusCan, parsed.Bus)
}

func TestCCRoundTrip(t *testing.T) {
	f, w := newTestWriter(t)
	require.NoError(t, NewID().Write(w))

	cc := &CC{Type: ConversionValueToText, Unit: "state"}
	cc.SetParameter(0, 0)
	cc.SetParameter(1, 1)
	cc.SetTextRef(0, "Rx")
	cc.SetTextRef(1, "Tx")
	cc.SetTextRef(2, "")
	pos, err := cc.Write(w)
	require.NoError(t, err)

	p := NewParser(f)
	parsed, err := p.readCC(pos)
	require.NoError(t, err)
	assert.Equal(t, ConversionValueToText, parsed.Type)
	assert.Equal(t, []float64{0, 1}, parsed.Params)
	require.Len(t, parsed.Refs, 3)
	assert.Equal(t, "Rx", parsed.Refs[0].Text)
	assert.Equal(t, "Tx", parsed.Refs[1].Text)
	assert.Equal(t, "", parsed.Refs[2].Text)
	assert.Equal(t, "state", parsed.Unit)
}

func TestDataListWalk(t *testing.T) {
	f, w := newTestWriter(t)
	require.NoError(t, NewID().Write(w))

	first, err := w.WriteData(TagDT, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	second, err := w.WriteCompressedData("DT", []byte{5, 6, 7, 8})
	require.NoError(t, err)
	dl, err := w.WriteDL([]int64{first.Pos, second.Pos}, []uint64{0, 4})
	require.NoError(t, err)
	hl, err := w.WriteHL(dl.Pos)
	require.NoError(t, err)

	p := NewParser(f)
	payload, err := p.ReadDataPayload(hl.Pos)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, payload)
}

func TestCGPrepareForWriting(t *testing.T) {
	dg := &DG{}
	cg := dg.NewChannelGroup("Group")
	timeChan := cg.NewChannel("t")
	timeChan.Type = ChannelTypeMaster
	timeChan.Sync = ChannelSyncTime
	timeChan.DataType = DataTypeFloatLe
	timeChan.BitCount = 64

	value := cg.NewChannel("value")
	value.DataType = DataTypeUnsignedLe
	value.ByteOffset = 8
	value.BitCount = 16
	value.Flags |= CnFlagInvalidValid
	value.InvalidBitPos = 0

	cg.PrepareForWriting()
	assert.Equal(t, uint32(10), cg.DataBytes)
	assert.Equal(t, uint32(1), cg.InvalidBytes)
	assert.Equal(t, uint32(11), cg.RecordSize())

	cg.InitSampleBuffer()
	value.SetUintValue(0xABCD, true)
	record := cg.SnapshotRecord()
	assert.Equal(t, byte(0xCD), record[8])
	assert.Equal(t, byte(0xAB), record[9])
}
