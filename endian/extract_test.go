package endian

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEngines(t *testing.T) {
	assert.Equal(t, binary.LittleEndian, GetLittleEndianEngine())
	assert.Equal(t, binary.BigEndian, GetBigEndianEngine())
	assert.Equal(t, IsNativeLittleEndian(), !IsNativeBigEndian())
}

func TestExtractUint(t *testing.T) {
	tests := []struct {
		name       string
		buf        []byte
		byteOffset uint32
		bitOffset  uint8
		bitCount   uint32
		bigEndian  bool
		want       uint64
	}{
		{name: "whole byte", buf: []byte{0xAB}, bitCount: 8, want: 0xAB},
		{name: "low nibble", buf: []byte{0xAB}, bitCount: 4, want: 0x0B},
		{name: "high nibble", buf: []byte{0xAB}, bitOffset: 4, bitCount: 4, want: 0x0A},
		{name: "single bit set", buf: []byte{0x80}, bitOffset: 7, bitCount: 1, want: 1},
		{name: "single bit clear", buf: []byte{0x7F}, bitOffset: 7, bitCount: 1, want: 0},
		{name: "u16 le", buf: []byte{0x34, 0x12}, bitCount: 16, want: 0x1234},
		{name: "u16 be", buf: []byte{0x12, 0x34}, bitCount: 16, bigEndian: true, want: 0x1234},
		{name: "offset byte", buf: []byte{0xFF, 0x34, 0x12}, byteOffset: 1, bitCount: 16, want: 0x1234},
		{
			name:     "29 bit CAN id",
			buf:      []byte{0x7B, 0x00, 0x00, 0x80},
			bitCount: 29,
			want:     123,
		},
		{
			name:     "u64 full",
			buf:      []byte{1, 2, 3, 4, 5, 6, 7, 8},
			bitCount: 64,
			want:     0x0807060504030201,
		},
		{
			name:      "straddling bytes",
			buf:       []byte{0b1100_0000, 0b0000_0011},
			bitOffset: 6,
			bitCount:  4,
			want:      0b1111,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractUint(tt.buf, tt.byteOffset, tt.bitOffset, tt.bitCount, tt.bigEndian)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractUintErrors(t *testing.T) {
	_, err := ExtractUint([]byte{1}, 0, 0, 0, false)
	assert.Error(t, err)
	_, err = ExtractUint([]byte{1}, 0, 0, 65, false)
	assert.Error(t, err)
	_, err = ExtractUint([]byte{1}, 0, 8, 1, false)
	assert.Error(t, err)
	_, err = ExtractUint([]byte{1}, 1, 0, 8, false)
	assert.Error(t, err)
	_, err = ExtractUint([]byte{1, 2}, 0, 4, 16, false)
	assert.Error(t, err)
}

func TestExtractInt(t *testing.T) {
	tests := []struct {
		name      string
		buf       []byte
		bitOffset uint8
		bitCount  uint32
		want      int64
	}{
		{name: "positive i8", buf: []byte{0x7F}, bitCount: 8, want: 127},
		{name: "negative i8", buf: []byte{0xFF}, bitCount: 8, want: -1},
		{name: "negative 4 bit", buf: []byte{0x0F}, bitCount: 4, want: -1},
		{name: "positive 4 bit", buf: []byte{0x07}, bitCount: 4, want: 7},
		{name: "negative i16", buf: []byte{0xFE, 0xFF}, bitCount: 16, want: -2},
		{name: "sign bit at offset", buf: []byte{0b0000_1100}, bitOffset: 2, bitCount: 2, want: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractInt(tt.buf, 0, tt.bitOffset, tt.bitCount, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInsertUintRoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	require.NoError(t, InsertUint(buf, 1, 3, 7, 0x55))
	got, err := ExtractUint(buf, 1, 3, 7, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x55), got)

	// Neighboring bits stay untouched.
	buf = []byte{0xFF, 0xFF}
	require.NoError(t, InsertUint(buf, 0, 2, 4, 0))
	assert.Equal(t, []byte{0b1100_0011, 0xFF}, buf)
}

func TestInsertUintErrors(t *testing.T) {
	buf := make([]byte, 2)
	assert.Error(t, InsertUint(buf, 0, 0, 0, 1))
	assert.Error(t, InsertUint(buf, 0, 9, 4, 1))
	assert.Error(t, InsertUint(buf, 2, 0, 8, 1))
}
