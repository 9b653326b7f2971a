package blocks

import (
	"math"

	"github.com/ihedvall/gomdf/endian"
)

// The sample buffer holds the current record of a channel group while the
// application sets channel values; the streaming writer snapshots it on
// every SaveSample call.

// InitSampleBuffer sizes the group's sample buffer from the computed
// record layout. Called when the measurement is prepared for writing.
func (cg *CG) InitSampleBuffer() {
	cg.sampleBuf = make([]byte, cg.RecordSize())
}

// SampleBuffer returns the mutable current record of the group.
func (cg *CG) SampleBuffer() []byte { return cg.sampleBuf }

// SnapshotRecord returns a copy of the current record buffer.
func (cg *CG) SnapshotRecord() []byte {
	return append([]byte(nil), cg.sampleBuf...)
}

// setValid sets or clears the channel's invalid bit in the group buffer.
func (cn *CN) setValid(valid bool) {
	cg := cn.group
	if cg == nil || cn.Flags&CnFlagInvalidValid == 0 {
		return
	}
	byteIndex := uint64(cg.DataBytes) + uint64(cn.InvalidBitPos/8)
	if byteIndex >= uint64(len(cg.sampleBuf)) {
		return
	}
	mask := byte(1) << (cn.InvalidBitPos % 8)
	if valid {
		cg.sampleBuf[byteIndex] &^= mask
	} else {
		cg.sampleBuf[byteIndex] |= mask
	}
}

// SetUintValue stores an unsigned value into the group's sample buffer.
func (cn *CN) SetUintValue(value uint64, valid bool) {
	if cn.group == nil || len(cn.group.sampleBuf) == 0 {
		return
	}
	if err := endian.InsertUint(cn.group.sampleBuf, cn.ByteOffset, cn.BitOffset, cn.BitCount, value); err != nil {
		cn.setValid(false)
		return
	}
	cn.setValid(valid)
}

// SetIntValue stores a signed value into the group's sample buffer.
func (cn *CN) SetIntValue(value int64, valid bool) {
	cn.SetUintValue(uint64(value), valid)
}

// SetFloatValue stores a float value into the group's sample buffer. Only
// 32 and 64 bit float channels are supported.
func (cn *CN) SetFloatValue(value float64, valid bool) {
	if cn.group == nil || len(cn.group.sampleBuf) == 0 {
		return
	}
	var raw uint64
	switch cn.BitCount {
	case 32:
		raw = uint64(math.Float32bits(float32(value)))
	case 64:
		raw = math.Float64bits(value)
	default:
		cn.setValid(false)
		return
	}
	if err := endian.InsertUint(cn.group.sampleBuf, cn.ByteOffset, cn.BitOffset, cn.BitCount, raw); err != nil {
		cn.setValid(false)
		return
	}
	cn.setValid(valid)
}

// SetBytesValue copies a byte payload into the channel's fixed range,
// padding with zeros.
func (cn *CN) SetBytesValue(data []byte, valid bool) {
	if cn.group == nil || len(cn.group.sampleBuf) == 0 {
		return
	}
	start := uint64(cn.ByteOffset)
	end := start + uint64(cn.BitCount/8)
	if end > uint64(len(cn.group.sampleBuf)) {
		cn.setValid(false)
		return
	}
	dst := cn.group.sampleBuf[start:end]
	n := copy(dst, data)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	cn.setValid(valid)
}

// SetTextValue stores a NUL terminated string into the channel range.
func (cn *CN) SetTextValue(text string, valid bool) {
	cn.SetBytesValue([]byte(text), valid)
}
