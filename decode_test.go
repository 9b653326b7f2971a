package gomdf

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihedvall/gomdf/blocks"
	"github.com/ihedvall/gomdf/errs"
)

func TestDecodeNumericChannels(t *testing.T) {
	record := []byte{0xB6, 0x00, 0xCD, 0xAB, 0xFF}

	unsigned := &blocks.CN{DataType: blocks.DataTypeUnsignedLe, ByteOffset: 2, BitCount: 16}
	value, err := decodeRaw(unsigned, record, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xABCD), value.Uint)

	nibble := &blocks.CN{DataType: blocks.DataTypeUnsignedLe, BitOffset: 4, BitCount: 4}
	value, err = decodeRaw(nibble, record, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xB), value.Uint)

	signed := &blocks.CN{DataType: blocks.DataTypeSignedLe, ByteOffset: 4, BitCount: 8}
	value, err = decodeRaw(signed, record, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), value.Int)
	assert.Equal(t, -1.0, value.AsFloat(signed.DataType))
}

func TestDecodeFloatChannels(t *testing.T) {
	record := make([]byte, 12)
	le.PutUint64(record[0:8], math.Float64bits(3.25))
	le.PutUint32(record[8:12], math.Float32bits(1.5))

	f64 := &blocks.CN{DataType: blocks.DataTypeFloatLe, BitCount: 64}
	value, err := decodeRaw(f64, record, 0)
	require.NoError(t, err)
	assert.Equal(t, 3.25, value.Float)

	f32 := &blocks.CN{DataType: blocks.DataTypeFloatLe, ByteOffset: 8, BitCount: 32}
	value, err = decodeRaw(f32, record, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.5, value.Float)

	half := &blocks.CN{DataType: blocks.DataTypeFloatLe, BitCount: 16}
	_, err = decodeRaw(half, record, 0)
	assert.ErrorIs(t, err, errs.ErrUnsupportedHalfFloat)
}

func TestDecodeStringChannels(t *testing.T) {
	record := append([]byte("hello\x00xx"), 0xFF)

	ascii := &blocks.CN{DataType: blocks.DataTypeStringAscii, BitCount: 64}
	value, err := decodeRaw(ascii, record, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", value.Text)

	utf16le := &blocks.CN{DataType: blocks.DataTypeStringUTF16Le, BitCount: 8 * 8}
	record16 := []byte{'h', 0, 'i', 0, 0, 0, 0, 0}
	value, err = decodeRaw(utf16le, record16, 0)
	require.NoError(t, err)
	assert.Equal(t, "hi", value.Text)
}

func TestDecodeCanOpenTimes(t *testing.T) {
	// 1984-01-02 00:00:00.500 UTC: 500 ms into day one.
	record := make([]byte, 6)
	le.PutUint32(record[0:4], 500)
	le.PutUint16(record[4:6], 1)

	cn := &blocks.CN{DataType: blocks.DataTypeCanOpenTime, BitCount: 48}
	value, err := decodeRaw(cn, record, 0)
	require.NoError(t, err)
	want := time.Date(1984, 1, 2, 0, 0, 0, int(500*time.Millisecond), time.UTC)
	assert.Equal(t, uint64(want.UnixNano()), value.Uint)

	// CANopen date: 2024-03-05 10:20:30.250 UTC.
	date := make([]byte, 7)
	le.PutUint16(date[0:2], 30_250) // ms within the minute
	date[2] = 20                    // minute
	date[3] = 10                    // hour
	date[4] = 5                     // day of month
	date[5] = 3                     // month
	date[6] = 40                    // years since 1984
	dateChan := &blocks.CN{DataType: blocks.DataTypeCanOpenDate, BitCount: 56}
	value, err = decodeRaw(dateChan, date, 0)
	require.NoError(t, err)
	wantDate := time.Date(2024, 3, 5, 10, 20, 30, int(250*time.Millisecond), time.UTC)
	assert.Equal(t, uint64(wantDate.UnixNano()), value.Uint)
}

func TestDecodeVirtualChannel(t *testing.T) {
	cn := &blocks.CN{Type: blocks.ChannelTypeVirtualMaster, DataType: blocks.DataTypeUnsignedLe}
	value, err := decodeRaw(cn, nil, 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), value.Uint)
}

func TestChannelValidity(t *testing.T) {
	cn := &blocks.CN{
		DataType:      blocks.DataTypeUnsignedLe,
		BitCount:      8,
		Flags:         blocks.CnFlagInvalidValid,
		InvalidBitPos: 2,
	}
	record := []byte{0x01, 0x00}

	assert.True(t, channelValid(cn, record, 1))
	record[1] = 0x04 // invalid bit 2 set
	assert.False(t, channelValid(cn, record, 1))

	allInvalid := &blocks.CN{Flags: blocks.CnFlagAllInvalid}
	assert.False(t, channelValid(allInvalid, record, 1))
}
