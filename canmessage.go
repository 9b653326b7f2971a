package gomdf

import (
	"fmt"
	"strings"

	"github.com/ihedvall/gomdf/blocks"
)

// CAN flag byte bits (record byte 13 of the bus logging layout).
const (
	canDirBit        uint8 = 0x01
	canSrrBit        uint8 = 0x02
	canEdlBit        uint8 = 0x04
	canBrsBit        uint8 = 0x08
	canEsiBit        uint8 = 0x10
	canWakeUpBit     uint8 = 0x20
	canSingleWireBit uint8 = 0x40
	canRtrBit        uint8 = 0x80
)

const (
	canExtendedBit uint32 = 0x80000000
	can11BitMask   uint32 = 0x7FF
)

// canDataLengthCode maps a DLC to the number of data bytes (CAN FD).
var canDataLengthCode = [16]uint32{0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64}

// CanDlcToLength returns the payload byte count of a data length code.
func CanDlcToLength(dlc uint8) uint32 {
	return canDataLengthCode[dlc&0x0F]
}

// CanErrorType classifies a CAN error frame.
type CanErrorType uint8

const (
	CanErrorUnknown      CanErrorType = 0
	CanErrorBit          CanErrorType = 1
	CanErrorForm         CanErrorType = 2
	CanErrorBitStuffing  CanErrorType = 3
	CanErrorCrc          CanErrorType = 4
	CanErrorAck          CanErrorType = 5
)

// CanMessage models one CAN or CAN FD frame and serializes itself into
// the record layout of the bus logging configuration.
type CanMessage struct {
	messageID   uint32
	dlc         uint8 // low nibble DLC, high nibble bus channel
	flags       uint8
	bitPosition uint8
	errorType   uint8
	dataBytes   []byte
}

// SetMessageID sets the CAN identifier. IDs above the 11 bit range are
// marked extended automatically.
func (m *CanMessage) SetMessageID(msgID uint32) {
	m.messageID = msgID
	if msgID > can11BitMask {
		m.messageID |= canExtendedBit
	}
}

// MessageID returns the identifier including the extended marker bit.
func (m *CanMessage) MessageID() uint32 { return m.messageID }

// SetExtendedID marks or clears the extended (29 bit) identifier flag.
func (m *CanMessage) SetExtendedID(extended bool) {
	if extended {
		m.messageID |= canExtendedBit
	} else {
		m.messageID &^= canExtendedBit
	}
}

// ExtendedID reports whether the identifier is a 29 bit id.
func (m *CanMessage) ExtendedID() bool { return m.messageID&canExtendedBit != 0 }

// SetDlc sets the data length code and resizes the payload accordingly.
func (m *CanMessage) SetDlc(dlc uint8) {
	m.dlc = m.dlc&0xF0 | dlc&0x0F
	size := CanDlcToLength(dlc)
	for uint32(len(m.dataBytes)) < size {
		m.dataBytes = append(m.dataBytes, 0xFF)
	}
	m.dataBytes = m.dataBytes[:size]
}

// Dlc returns the data length code.
func (m *CanMessage) Dlc() uint8 { return m.dlc & 0x0F }

// SetDataLength sets the payload length, rounding up to the next legal
// CAN FD size.
func (m *CanMessage) SetDataLength(length uint32) {
	if length > 64 {
		length = 8
	}
	dlc := uint8(0)
	for _, size := range canDataLengthCode {
		if length <= size {
			break
		}
		dlc++
	}
	m.SetDlc(dlc)
}

// DataLength returns the payload length derived from the DLC.
func (m *CanMessage) DataLength() uint32 { return CanDlcToLength(m.dlc) }

// SetDataBytes sets the payload. The DLC is derived from the length; for
// CAN FD sizes the padding bytes are 0xFF.
func (m *CanMessage) SetDataBytes(data []byte) {
	m.SetDataLength(uint32(len(data)))
	n := copy(m.dataBytes, data)
	for i := n; i < len(m.dataBytes); i++ {
		m.dataBytes[i] = 0xFF
	}
}

// DataBytes returns the payload including CAN FD padding.
func (m *CanMessage) DataBytes() []byte { return m.dataBytes }

// SetBusChannel stores the bus channel number (0..15).
func (m *CanMessage) SetBusChannel(channel uint8) {
	m.dlc = m.dlc&0x0F | channel<<4
}

// BusChannel returns the bus channel number.
func (m *CanMessage) BusChannel() uint8 { return m.dlc >> 4 }

func (m *CanMessage) setFlag(bit uint8, on bool) {
	if on {
		m.flags |= bit
	} else {
		m.flags &^= bit
	}
}

// SetDir sets the direction: true for transmit.
func (m *CanMessage) SetDir(transmit bool) { m.setFlag(canDirBit, transmit) }

// Dir reports true for transmitted frames.
func (m *CanMessage) Dir() bool { return m.flags&canDirBit != 0 }

// SetSrr sets the substitute remote request bit.
func (m *CanMessage) SetSrr(srr bool) { m.setFlag(canSrrBit, srr) }

// SetEdl marks an extended data length (CAN FD) frame.
func (m *CanMessage) SetEdl(edl bool) { m.setFlag(canEdlBit, edl) }

// SetBrs marks bit rate switching.
func (m *CanMessage) SetBrs(brs bool) { m.setFlag(canBrsBit, brs) }

// SetEsi marks the error state indicator.
func (m *CanMessage) SetEsi(esi bool) { m.setFlag(canEsiBit, esi) }

// SetRtr marks a remote transmission request.
func (m *CanMessage) SetRtr(rtr bool) { m.setFlag(canRtrBit, rtr) }

// SetWakeUp marks a wake up frame.
func (m *CanMessage) SetWakeUp(wakeUp bool) { m.setFlag(canWakeUpBit, wakeUp) }

// SetSingleWire marks single wire operation.
func (m *CanMessage) SetSingleWire(singleWire bool) { m.setFlag(canSingleWireBit, singleWire) }

// SetBitPosition stores the error bit position (error frames).
func (m *CanMessage) SetBitPosition(position uint8) { m.bitPosition = position }

// SetErrorType classifies the error frame.
func (m *CanMessage) SetErrorType(errorType CanErrorType) { m.errorType = uint8(errorType) }

// ErrorType returns the error frame classification.
func (m *CanMessage) ErrorType() CanErrorType { return CanErrorType(m.errorType) }

// toRaw packs the message into the record layout of the named frame
// group. The first 8 record bytes carry the master time and are written
// by the flush goroutine.
func (m *CanMessage) toRaw(groupName string, storage StorageType, maxLength uint32) (SampleRecord, error) {
	switch {
	case strings.HasSuffix(groupName, "_DataFrame"):
		return m.makeDataFrame(storage, maxLength), nil
	case strings.HasSuffix(groupName, "_RemoteFrame"):
		return m.makeRemoteFrame(), nil
	case strings.HasSuffix(groupName, "_ErrorFrame"):
		return m.makeErrorFrame(storage, maxLength), nil
	case strings.HasSuffix(groupName, "_OverloadFrame"):
		return m.makeOverloadFrame(), nil
	default:
		return SampleRecord{}, fmt.Errorf("channel group %q is not a CAN frame group", groupName)
	}
}

// packHeader fills the shared id/dlc/flag fields at record bytes 8..13.
func (m *CanMessage) packHeader(record []byte) {
	le.PutUint32(record[8:12], m.messageID)
	record[12] = m.dlc
	record[13] = m.flags
}

func (m *CanMessage) makeDataFrame(storage StorageType, maxLength uint32) SampleRecord {
	if storage == MlsdStorage {
		record := make([]byte, 8+6+maxLength)
		m.packHeader(record)
		data := record[14:]
		n := copy(data, m.dataBytes)
		for i := n; i < len(data); i++ {
			data[i] = 0xFF
		}
		return SampleRecord{Record: record}
	}

	// VLSD or SD storage: the last 8 bytes are the payload index slot.
	record := make([]byte, 8+6+8)
	m.packHeader(record)

	return SampleRecord{
		Record:      record,
		VlsdData:    true,
		VlsdPayload: append([]byte(nil), m.dataBytes...),
	}
}

func (m *CanMessage) makeRemoteFrame() SampleRecord {
	record := make([]byte, 8+6)
	m.packHeader(record)

	return SampleRecord{Record: record}
}

func (m *CanMessage) makeErrorFrame(storage StorageType, maxLength uint32) SampleRecord {
	if storage == MlsdStorage {
		record := make([]byte, 8+8+maxLength)
		m.packHeader(record)
		record[14] = m.bitPosition
		record[15] = m.errorType
		data := record[16:]
		n := copy(data, m.dataBytes)
		for i := n; i < len(data); i++ {
			data[i] = 0xFF
		}
		return SampleRecord{Record: record}
	}

	record := make([]byte, 8+8+8)
	m.packHeader(record)
	record[14] = m.bitPosition
	record[15] = m.errorType

	return SampleRecord{
		Record:      record,
		VlsdData:    true,
		VlsdPayload: append([]byte(nil), m.dataBytes...),
	}
}

func (m *CanMessage) makeOverloadFrame() SampleRecord {
	record := make([]byte, 8+1)
	record[8] = m.BusChannel()<<4 | m.flags&canDirBit

	return SampleRecord{Record: record}
}

// SaveCanMessage packs a CAN message for the given frame group and queues
// it with the timestamp.
func (w *Writer) SaveCanMessage(cg *blocks.CG, timestampNs uint64, msg *CanMessage) error {
	sample, err := msg.toRaw(cg.Name, w.storage, w.maxLength)
	if err != nil {
		return err
	}
	sample.RecordID = cg.RecordID
	sample.TimestampNs = timestampNs

	return w.enqueue(sample)
}
