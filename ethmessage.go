package gomdf

import (
	"fmt"
	"strings"

	"github.com/ihedvall/gomdf/blocks"
)

const (
	ethChannelMask uint8 = 0x0F
	ethErrorMask   uint8 = 0x70
	ethDirMask     uint8 = 0x80
)

// EthErrorType classifies an Ethernet receive error event.
type EthErrorType uint8

const (
	EthErrorUnknown   EthErrorType = 0
	EthErrorCollision EthErrorType = 1
	EthErrorShortFrame EthErrorType = 2
	EthErrorLongFrame EthErrorType = 3
)

// EthMessage models one Ethernet frame or error event and serializes
// itself into the record layout of the bus logging configuration. Frame
// payloads are stored VLSD.
type EthMessage struct {
	busChannel  uint8 // channel, error type and direction packed per mask
	source      [6]byte
	destination [6]byte
	ethType     uint16
	received    uint16
	dataLength  uint16
	dataBytes   []byte
	crc         uint32
	expectedCrc uint32
	padding     uint16
}

// NewEthMessage returns a message with the default IPv4 ether type.
func NewEthMessage() *EthMessage {
	return &EthMessage{ethType: 0x0800}
}

// SetBusChannel stores the bus channel number (0..15).
func (m *EthMessage) SetBusChannel(channel uint8) {
	m.busChannel = m.busChannel&^ethChannelMask | channel&ethChannelMask
}

// BusChannel returns the bus channel number.
func (m *EthMessage) BusChannel() uint8 { return m.busChannel & ethChannelMask }

// SetDir sets the direction: true for transmit.
func (m *EthMessage) SetDir(transmit bool) {
	if transmit {
		m.busChannel |= ethDirMask
	} else {
		m.busChannel &^= ethDirMask
	}
}

// Dir reports true for transmitted frames.
func (m *EthMessage) Dir() bool { return m.busChannel&ethDirMask != 0 }

// SetErrorType classifies an error event.
func (m *EthMessage) SetErrorType(errorType EthErrorType) {
	m.busChannel = m.busChannel&^ethErrorMask | uint8(errorType)<<4&ethErrorMask
}

// ErrorType returns the error event classification.
func (m *EthMessage) ErrorType() EthErrorType {
	return EthErrorType(m.busChannel & ethErrorMask >> 4)
}

// SetSource sets the source MAC address.
func (m *EthMessage) SetSource(mac [6]byte) { m.source = mac }

// SetDestination sets the destination MAC address.
func (m *EthMessage) SetDestination(mac [6]byte) { m.destination = mac }

// SetEthType sets the ether type field.
func (m *EthMessage) SetEthType(ethType uint16) { m.ethType = ethType }

// SetReceivedDataByteCount stores the number of bytes seen on the wire.
func (m *EthMessage) SetReceivedDataByteCount(count uint16) { m.received = count }

// SetDataBytes sets the payload; the data length field follows it.
func (m *EthMessage) SetDataBytes(data []byte) {
	m.dataBytes = append(m.dataBytes[:0], data...)
	m.dataLength = uint16(len(data))
}

// DataBytes returns the payload.
func (m *EthMessage) DataBytes() []byte { return m.dataBytes }

// SetCrc stores the frame checksum.
func (m *EthMessage) SetCrc(crc uint32) { m.crc = crc }

// SetExpectedCrc stores the calculated checksum of a checksum error.
func (m *EthMessage) SetExpectedCrc(crc uint32) { m.expectedCrc = crc }

// SetPadByteCount stores the number of padding bytes.
func (m *EthMessage) SetPadByteCount(count uint16) { m.padding = count }

// packAddressHead fills the shared bus/source/destination/type fields at
// record bytes 8..22.
func (m *EthMessage) packAddressHead(record []byte) {
	record[8] = m.busChannel
	copy(record[9:15], m.source[:])
	copy(record[15:21], m.destination[:])
	le.PutUint16(record[21:23], m.ethType)
}

// toRaw packs the message into the record layout of the named group.
func (m *EthMessage) toRaw(groupName string, mandatory bool) (SampleRecord, error) {
	switch {
	case strings.HasSuffix(groupName, "_Frame"):
		return m.makeFrame(mandatory), nil
	case strings.HasSuffix(groupName, "_ChecksumError"):
		return m.makeChecksumError(mandatory), nil
	case strings.HasSuffix(groupName, "_LengthError"), strings.HasSuffix(groupName, "_ReceiveError"):
		return m.makeShortError(mandatory), nil
	default:
		return SampleRecord{}, fmt.Errorf("channel group %q is not an Ethernet group", groupName)
	}
}

func (m *EthMessage) makeFrame(mandatory bool) SampleRecord {
	size := 8 + 33
	if mandatory {
		size = 8 + 27
	}
	record := make([]byte, size)
	m.packAddressHead(record)
	le.PutUint16(record[23:25], m.received)
	le.PutUint16(record[25:27], m.dataLength)
	// Bytes 27..34 are the VLSD index slot patched by the flush goroutine.
	sample := SampleRecord{
		Record:      record,
		VlsdData:    true,
		VlsdPayload: append([]byte(nil), m.dataBytes...),
		VlsdIndexAt: 27,
	}
	if mandatory {
		return sample
	}
	le.PutUint32(record[35:39], m.crc)
	le.PutUint16(record[39:41], m.padding)

	return sample
}

func (m *EthMessage) makeChecksumError(mandatory bool) SampleRecord {
	size := 8 + 37
	if mandatory {
		size = 8 + 25
	}
	record := make([]byte, size)
	m.packAddressHead(record)
	le.PutUint16(record[23:25], m.dataLength)
	le.PutUint32(record[25:29], m.crc)
	le.PutUint32(record[29:33], m.expectedCrc)
	if mandatory {
		return SampleRecord{Record: record}
	}
	// Bytes 33..40 are the VLSD index slot.
	le.PutUint16(record[41:43], m.received)
	le.PutUint16(record[43:45], m.padding)

	return SampleRecord{
		Record:      record,
		VlsdData:    true,
		VlsdPayload: append([]byte(nil), m.dataBytes...),
		VlsdIndexAt: 33,
	}
}

// makeShortError packs the length error and receive error layouts, which
// share one frame shape.
func (m *EthMessage) makeShortError(mandatory bool) SampleRecord {
	size := 8 + 33
	if mandatory {
		size = 8 + 17
	}
	record := make([]byte, size)
	m.packAddressHead(record)
	le.PutUint16(record[23:25], m.received)
	if mandatory {
		return SampleRecord{Record: record}
	}
	le.PutUint16(record[25:27], m.dataLength)
	// Bytes 27..34 are the VLSD index slot.
	le.PutUint32(record[35:39], m.crc)
	le.PutUint16(record[39:41], m.padding)

	return SampleRecord{
		Record:      record,
		VlsdData:    true,
		VlsdPayload: append([]byte(nil), m.dataBytes...),
		VlsdIndexAt: 27,
	}
}

// SaveEthMessage packs an Ethernet message for the given frame group and
// queues it with the timestamp.
func (w *Writer) SaveEthMessage(cg *blocks.CG, timestampNs uint64, msg *EthMessage) error {
	sample, err := msg.toRaw(cg.Name, w.mandatoryOnly)
	if err != nil {
		return err
	}
	sample.RecordID = cg.RecordID
	sample.TimestampNs = timestampNs

	return w.enqueue(sample)
}
