package gomdf

import (
	"fmt"
	"math"
	"time"
	"unicode/utf16"

	"github.com/ihedvall/gomdf/blocks"
	"github.com/ihedvall/gomdf/endian"
	"github.com/ihedvall/gomdf/errs"
)

// canOpenEpoch is 1984-01-01 00:00:00 UTC, the day zero of CANopen time.
var canOpenEpoch = time.Date(1984, 1, 1, 0, 0, 0, 0, time.UTC)

// RawValue is the decoded raw (pre conversion) value of one channel in one
// record. Exactly one of the value fields is meaningful, selected by the
// channel data type: Uint/Int/Float for numeric channels, Text for string
// channels, Bytes for byte arrays and MIME payloads. CANopen date and time
// channels decode into Uint as nanoseconds since the Unix epoch.
type RawValue struct {
	Uint  uint64
	Int   int64
	Float float64
	Text  string
	Bytes []byte
}

// AsFloat returns the raw value as float64, the input of numeric
// conversions.
func (v RawValue) AsFloat(dataType blocks.ChannelDataType) float64 {
	switch dataType {
	case blocks.DataTypeSignedLe, blocks.DataTypeSignedBe:
		return float64(v.Int)
	case blocks.DataTypeFloatLe, blocks.DataTypeFloatBe:
		return v.Float
	default:
		return float64(v.Uint)
	}
}

// decodeRaw extracts the raw value of a channel from a record buffer.
// Virtual channels take their value from the sample index instead of the
// record bytes.
func decodeRaw(cn *blocks.CN, record []byte, sampleIndex uint64) (RawValue, error) {
	if cn.Type == blocks.ChannelTypeVirtualMaster || cn.Type == blocks.ChannelTypeVirtualData {
		return RawValue{Uint: sampleIndex, Float: float64(sampleIndex)}, nil
	}

	switch cn.DataType {
	case blocks.DataTypeUnsignedLe, blocks.DataTypeUnsignedBe:
		raw, err := endian.ExtractUint(record, cn.ByteOffset, cn.BitOffset, cn.BitCount, cn.IsBigEndian())
		if err != nil {
			return RawValue{}, err
		}
		return RawValue{Uint: raw, Float: float64(raw)}, nil

	case blocks.DataTypeSignedLe, blocks.DataTypeSignedBe:
		raw, err := endian.ExtractInt(record, cn.ByteOffset, cn.BitOffset, cn.BitCount, cn.IsBigEndian())
		if err != nil {
			return RawValue{}, err
		}
		return RawValue{Int: raw, Uint: uint64(raw), Float: float64(raw)}, nil

	case blocks.DataTypeFloatLe, blocks.DataTypeFloatBe:
		return decodeFloat(cn, record)

	case blocks.DataTypeStringAscii, blocks.DataTypeStringUTF8:
		data, err := sliceChannelBytes(cn, record)
		if err != nil {
			return RawValue{}, err
		}
		return RawValue{Text: cutNul(data)}, nil

	case blocks.DataTypeStringUTF16Le, blocks.DataTypeStringUTF16Be:
		data, err := sliceChannelBytes(cn, record)
		if err != nil {
			return RawValue{}, err
		}
		return RawValue{Text: decodeUTF16(data, cn.DataType == blocks.DataTypeStringUTF16Be)}, nil

	case blocks.DataTypeByteArray, blocks.DataTypeMimeSample, blocks.DataTypeMimeStream:
		data, err := sliceChannelBytes(cn, record)
		if err != nil {
			return RawValue{}, err
		}
		return RawValue{Bytes: data}, nil

	case blocks.DataTypeCanOpenDate:
		ns, err := decodeCanOpenDate(cn, record)
		if err != nil {
			return RawValue{}, err
		}
		return RawValue{Uint: ns, Float: float64(ns)}, nil

	case blocks.DataTypeCanOpenTime:
		ns, err := decodeCanOpenTime(cn, record)
		if err != nil {
			return RawValue{}, err
		}
		return RawValue{Uint: ns, Float: float64(ns)}, nil

	default:
		return RawValue{}, fmt.Errorf("unknown channel data type %d", cn.DataType)
	}
}

func decodeFloat(cn *blocks.CN, record []byte) (RawValue, error) {
	switch cn.BitCount {
	case 32:
		raw, err := endian.ExtractUint(record, cn.ByteOffset, cn.BitOffset, 32, cn.IsBigEndian())
		if err != nil {
			return RawValue{}, err
		}
		value := float64(math.Float32frombits(uint32(raw)))
		return RawValue{Float: value, Uint: uint64(raw)}, nil
	case 64:
		raw, err := endian.ExtractUint(record, cn.ByteOffset, cn.BitOffset, 64, cn.IsBigEndian())
		if err != nil {
			return RawValue{}, err
		}
		value := math.Float64frombits(raw)
		return RawValue{Float: value, Uint: raw}, nil
	case 16:
		// Declared by the standard but without a defined decoding here.
		return RawValue{}, errs.ErrUnsupportedHalfFloat
	default:
		return RawValue{}, fmt.Errorf("invalid float bit count %d", cn.BitCount)
	}
}

// sliceChannelBytes slices the byte aligned range of a string or byte
// array channel.
func sliceChannelBytes(cn *blocks.CN, record []byte) ([]byte, error) {
	if cn.BitOffset != 0 || cn.BitCount%8 != 0 {
		return nil, fmt.Errorf("channel %q: byte ranges must be byte aligned", cn.Name)
	}
	start := uint64(cn.ByteOffset)
	end := start + uint64(cn.BitCount/8)
	if end > uint64(len(record)) {
		return nil, fmt.Errorf("channel %q: %w", cn.Name, errs.ErrRecordTooShort)
	}

	return record[start:end], nil
}

func cutNul(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}

func decodeUTF16(data []byte, bigEndian bool) string {
	engine := endian.GetLittleEndianEngine()
	if bigEndian {
		engine = endian.GetBigEndianEngine()
	}
	units := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		unit := engine.Uint16(data[i : i+2])
		if unit == 0 {
			break
		}
		units = append(units, unit)
	}

	return string(utf16.Decode(units))
}

// decodeCanOpenDate unpacks the 7 byte CANopen date layout into
// nanoseconds since the Unix epoch.
func decodeCanOpenDate(cn *blocks.CN, record []byte) (uint64, error) {
	start := uint64(cn.ByteOffset)
	if start+7 > uint64(len(record)) {
		return 0, fmt.Errorf("channel %q: %w", cn.Name, errs.ErrRecordTooShort)
	}
	buf := record[start : start+7]
	ms := int(uint16(buf[0]) | uint16(buf[1])<<8)
	minute := int(buf[2] & 0x3F)
	hour := int(buf[3] & 0x1F)
	day := int(buf[4] & 0x1F)
	month := time.Month(buf[5] & 0x3F)
	year := 1984 + int(buf[6]&0x7F)

	t := time.Date(year, month, day, hour, minute, ms/1000, (ms%1000)*int(time.Millisecond), time.UTC)

	return uint64(t.UnixNano()), nil
}

// decodeCanOpenTime unpacks the 6 byte CANopen time layout (milliseconds
// since midnight + days since 1984-01-01) into nanoseconds since the Unix
// epoch.
func decodeCanOpenTime(cn *blocks.CN, record []byte) (uint64, error) {
	start := uint64(cn.ByteOffset)
	if start+6 > uint64(len(record)) {
		return 0, fmt.Errorf("channel %q: %w", cn.Name, errs.ErrRecordTooShort)
	}
	buf := record[start : start+6]
	engine := endian.GetLittleEndianEngine()
	ms := engine.Uint32(buf[0:4]) & 0x0FFFFFFF
	days := engine.Uint16(buf[4:6])

	t := canOpenEpoch.
		Add(time.Duration(days) * 24 * time.Hour).
		Add(time.Duration(ms) * time.Millisecond)

	return uint64(t.UnixNano()), nil
}

// channelValid evaluates the validity of a channel value in a record: the
// all-invalid flag forces false, otherwise the invalid bit in the record's
// invalid byte suffix is tested when declared.
func channelValid(cn *blocks.CN, record []byte, dataBytes uint32) bool {
	if cn.Flags&blocks.CnFlagAllInvalid != 0 {
		return false
	}
	if cn.Flags&blocks.CnFlagInvalidValid == 0 {
		return true
	}
	byteIndex := uint64(dataBytes) + uint64(cn.InvalidBitPos/8)
	if byteIndex >= uint64(len(record)) {
		return true
	}

	return record[byteIndex]&(1<<(cn.InvalidBitPos%8)) == 0
}
