package gomdf

import (
	"github.com/ihedvall/gomdf/blocks"
	"github.com/ihedvall/gomdf/endian"
)

// SampleObserver receives the raw records of a data group while the reader
// streams its data payload. OnSample returns false to stop the pass; the
// reader aborts the rest of the scan without error.
//
// Observers are attached to a data group before ReadData and are invoked
// synchronously on the reader's goroutine.
type SampleObserver interface {
	OnSample(sampleIndex uint64, recordID uint64, record []byte) bool
}

// ObserverFunc adapts a plain function to the SampleObserver interface.
type ObserverFunc func(sampleIndex uint64, recordID uint64, record []byte) bool

// OnSample implements SampleObserver.
func (fn ObserverFunc) OnSample(sampleIndex uint64, recordID uint64, record []byte) bool {
	return fn(sampleIndex, recordID, record)
}

// ChannelObserver collects the decoded values of one channel over a full
// ReadData pass: a pre-sized value vector and a parallel validity vector,
// indexed by sample number within the owning channel group.
type ChannelObserver struct {
	cg *blocks.CG
	cn *blocks.CN

	values []RawValue
	valid  []bool
	count  uint64

	// vlsdPayloads stores side group payloads keyed by their byte offset
	// in the VLSD stream (VLSD-in-CG storage).
	vlsdPayloads map[uint64][]byte
	// sdData is the channel owned SD stream (VLSD-in-place storage).
	sdData []byte
}

// NewChannelObserver creates an observer for one channel. The value
// vectors are pre-sized from the group's cycle count.
func NewChannelObserver(cg *blocks.CG, cn *blocks.CN) *ChannelObserver {
	return &ChannelObserver{
		cg:     cg,
		cn:     cn,
		values: make([]RawValue, cg.CycleCount),
		valid:  make([]bool, cg.CycleCount),
	}
}

// Channel returns the observed channel.
func (o *ChannelObserver) Channel() *blocks.CN { return o.cn }

// SampleCount returns the number of samples decoded so far.
func (o *ChannelObserver) SampleCount() uint64 { return o.count }

// OnSample implements SampleObserver. Records of the observed group are
// decoded into the value vector; records of the VLSD side group are
// retained as payload lookups.
func (o *ChannelObserver) OnSample(sampleIndex uint64, recordID uint64, record []byte) bool {
	if o.cn.VlsdRecordID != 0 && recordID == o.cn.VlsdRecordID {
		// Side group record: sampleIndex is the byte offset in the VLSD
		// stream for these dispatches.
		if o.vlsdPayloads == nil {
			o.vlsdPayloads = make(map[uint64][]byte)
		}
		o.vlsdPayloads[sampleIndex] = append([]byte(nil), record...)
		return true
	}
	if recordID != o.cg.RecordID {
		return true
	}

	for uint64(len(o.values)) <= sampleIndex {
		o.values = append(o.values, RawValue{})
		o.valid = append(o.valid, false)
	}

	value, err := o.decode(record, sampleIndex)
	if err != nil {
		o.values[sampleIndex] = RawValue{}
		o.valid[sampleIndex] = false
	} else {
		o.values[sampleIndex] = value
		o.valid[sampleIndex] = channelValid(o.cn, record, o.cg.DataBytes)
	}
	if sampleIndex >= o.count {
		o.count = sampleIndex + 1
	}

	return true
}

// decode extracts the channel value, resolving VLSD indirection through
// the side group store or the channel's SD stream.
func (o *ChannelObserver) decode(record []byte, sampleIndex uint64) (RawValue, error) {
	if o.cn.Type != blocks.ChannelTypeVariableLength {
		value, err := decodeRaw(o.cn, record, sampleIndex)
		if err == nil && o.cn.Type == blocks.ChannelTypeMaxLength {
			o.trimMaxLength(record, &value)
		}
		return value, err
	}

	offset, err := endian.ExtractUint(record, o.cn.ByteOffset, o.cn.BitOffset, o.cn.BitCount, o.cn.IsBigEndian())
	if err != nil {
		return RawValue{}, err
	}
	if o.cn.VlsdRecordID != 0 {
		payload := o.vlsdPayloads[offset]
		return RawValue{Bytes: payload, Text: cutNul(payload), Uint: offset}, nil
	}

	// VLSD in place: the offset points into the channel's SD stream at a
	// 32 bit length prefix.
	if o.sdData == nil || offset+4 > uint64(len(o.sdData)) {
		return RawValue{Uint: offset}, nil
	}
	length := uint64(endian.GetLittleEndianEngine().Uint32(o.sdData[offset : offset+4]))
	end := offset + 4 + length
	if end > uint64(len(o.sdData)) {
		return RawValue{Uint: offset}, nil
	}
	payload := o.sdData[offset+4 : end]

	return RawValue{Bytes: payload, Text: cutNul(payload), Uint: offset}, nil
}

// trimMaxLength cuts an MLSD payload to the actual length stored in the
// paired length channel, applying its conversion (e.g. the CAN DLC to
// byte length table).
func (o *ChannelObserver) trimMaxLength(record []byte, value *RawValue) {
	lengthChan := o.cn.MlsdLength
	if lengthChan == nil || value.Bytes == nil {
		return
	}
	rawLen, err := decodeRaw(lengthChan, record, 0)
	if err != nil {
		return
	}
	length, ok := convertToFloat(lengthChan.Conversion, rawLen.AsFloat(lengthChan.DataType), false)
	if !ok || length < 0 {
		return
	}
	if n := uint64(length); n < uint64(len(value.Bytes)) {
		value.Bytes = value.Bytes[:n]
	}
}

// RawAt returns the raw value and validity flag at a sample index.
func (o *ChannelObserver) RawAt(index uint64) (RawValue, bool) {
	if index >= uint64(len(o.values)) {
		return RawValue{}, false
	}

	return o.values[index], o.valid[index]
}

// UintAt returns the raw value as an unsigned integer.
func (o *ChannelObserver) UintAt(index uint64) (uint64, bool) {
	value, valid := o.RawAt(index)
	return value.Uint, valid
}

// FloatAt returns the raw value as float64.
func (o *ChannelObserver) FloatAt(index uint64) (float64, bool) {
	value, valid := o.RawAt(index)
	return value.AsFloat(o.cn.DataType), valid
}

// BytesAt returns the raw byte payload of a byte array or VLSD channel.
func (o *ChannelObserver) BytesAt(index uint64) ([]byte, bool) {
	value, valid := o.RawAt(index)
	return value.Bytes, valid
}

// TextAt returns the decoded string of a string channel.
func (o *ChannelObserver) TextAt(index uint64) (string, bool) {
	value, valid := o.RawAt(index)
	return value.Text, valid
}

// EngFloatAt returns the engineering value: the raw value passed through
// the channel conversion. A conversion failure (singular divisor,
// non-finite result) reports valid false, matching the decode error
// policy.
func (o *ChannelObserver) EngFloatAt(index uint64) (float64, bool) {
	value, valid := o.RawAt(index)
	if !valid {
		return 0, false
	}
	eng, ok := convertToFloat(o.cn.Conversion, value.AsFloat(o.cn.DataType), o.isFloatChannel())
	if !ok {
		return 0, false
	}

	return eng, true
}

// EngTextAt resolves a text valued conversion for the sample.
func (o *ChannelObserver) EngTextAt(index uint64) (string, bool) {
	value, valid := o.RawAt(index)
	if !valid {
		return "", false
	}

	return convertToText(o.cn.Conversion, value.AsFloat(o.cn.DataType), o.isFloatChannel())
}

// Unit returns the engineering unit: the conversion unit when set,
// otherwise the channel unit.
func (o *ChannelObserver) Unit() string {
	if cc := o.cn.Conversion; cc != nil && cc.Unit != "" {
		return cc.Unit
	}
	return o.cn.Unit
}

func (o *ChannelObserver) isFloatChannel() bool {
	switch o.cn.DataType {
	case blocks.DataTypeFloatLe, blocks.DataTypeFloatBe:
		return true
	default:
		return false
	}
}

// NumericValue constrains the target types of the generic accessor.
type NumericValue interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// ChannelValueAs returns the raw value of a sample converted to the
// requested numeric type.
func ChannelValueAs[T NumericValue](o *ChannelObserver, index uint64) (T, bool) {
	value, valid := o.RawAt(index)
	if !valid {
		return 0, false
	}

	switch o.cn.DataType {
	case blocks.DataTypeSignedLe, blocks.DataTypeSignedBe:
		return T(value.Int), true
	case blocks.DataTypeFloatLe, blocks.DataTypeFloatBe:
		return T(value.Float), true
	default:
		return T(value.Uint), true
	}
}
