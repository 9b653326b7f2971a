package gomdf

import (
	"fmt"
	"math"
	"strings"

	"github.com/ihedvall/gomdf/blocks"
)

// LinChecksumModel selects the LIN checksum calculation.
type LinChecksumModel int8

const (
	LinChecksumUnknown  LinChecksumModel = -1
	LinChecksumClassic  LinChecksumModel = 0
	LinChecksumEnhanced LinChecksumModel = 1
)

// LinLongDomState classifies a long dominant signal report.
type LinLongDomState uint8

const (
	LinLongDomFirstDetection LinLongDomState = 0
	LinLongDomCyclicReport   LinLongDomState = 1
	LinLongDomEndOfDetection LinLongDomState = 2
)

// LinMessage models one LIN frame or bus event and serializes itself into
// the record layout of the bus logging configuration. LIN payloads are at
// most 8 bytes and are stored MLSD style inside the record.
type LinMessage struct {
	busChannel    uint8
	linID         uint8
	dir           bool
	checksumModel LinChecksumModel
	checksum      uint8
	dataBytes     []byte
	specified     uint8
	longDomState  LinLongDomState

	sofNs            uint64
	baudrate         float32
	responseBaudrate float32
	breakLength      uint32
	breakDelimiter   uint32
	totalSignalNs    uint32
}

// SetBusChannel stores the bus channel number (0..63).
func (m *LinMessage) SetBusChannel(channel uint8) { m.busChannel = channel & 0x3F }

// BusChannel returns the bus channel number.
func (m *LinMessage) BusChannel() uint8 { return m.busChannel }

// SetLinID stores the frame identifier (0..63).
func (m *LinMessage) SetLinID(id uint8) { m.linID = id & 0x3F }

// LinID returns the frame identifier.
func (m *LinMessage) LinID() uint8 { return m.linID }

// SetDir sets the direction: true for transmit.
func (m *LinMessage) SetDir(transmit bool) { m.dir = transmit }

// SetChecksumModel selects the checksum calculation of the frame.
func (m *LinMessage) SetChecksumModel(model LinChecksumModel) { m.checksumModel = model }

// SetChecksum stores the received checksum byte.
func (m *LinMessage) SetChecksum(checksum uint8) { m.checksum = checksum }

// SetDataBytes sets the payload (max 8 bytes).
func (m *LinMessage) SetDataBytes(data []byte) {
	if len(data) > 8 {
		data = data[:8]
	}
	m.dataBytes = append(m.dataBytes[:0], data...)
}

// DataBytes returns the payload.
func (m *LinMessage) DataBytes() []byte { return m.dataBytes }

// SetSpecifiedDataByteCount stores the expected payload length of error
// events.
func (m *LinMessage) SetSpecifiedDataByteCount(count uint8) { m.specified = count & 0x0F }

// SetStartOfFrame stores the absolute start of frame time in nanoseconds.
func (m *LinMessage) SetStartOfFrame(sofNs uint64) { m.sofNs = sofNs }

// SetBaudrate stores the measured baudrate in bit/s.
func (m *LinMessage) SetBaudrate(baudrate float32) { m.baudrate = baudrate }

// SetResponseBaudrate stores the response field baudrate in bit/s.
func (m *LinMessage) SetResponseBaudrate(baudrate float32) { m.responseBaudrate = baudrate }

// SetBreakLength stores the break length in nanoseconds.
func (m *LinMessage) SetBreakLength(ns uint32) { m.breakLength = ns }

// SetBreakDelimiterLength stores the break delimiter length in nanoseconds.
func (m *LinMessage) SetBreakDelimiterLength(ns uint32) { m.breakDelimiter = ns }

// SetTotalSignalLength stores the long dominant signal length in
// nanoseconds.
func (m *LinMessage) SetTotalSignalLength(ns uint32) { m.totalSignalNs = ns }

// SetLongDomState classifies a long dominant signal report.
func (m *LinMessage) SetLongDomState(state LinLongDomState) { m.longDomState = state }

// LongDomState returns the long dominant report classification.
func (m *LinMessage) LongDomState() LinLongDomState { return m.longDomState }

// header byte 8: bus channel in bits 0..5, checksum model in bits 6..7.
func (m *LinMessage) busByte() byte {
	return m.busChannel&0x3F | byte(m.checksumModel)<<6
}

// id byte 9: LIN id in bits 0..5, direction in bit 7.
func (m *LinMessage) idByte() byte {
	b := m.linID & 0x3F
	if m.dir {
		b |= 0x80
	}
	return b
}

func (m *LinMessage) packTimingTail(record []byte, sofAt, baudAt int) {
	le.PutUint64(record[sofAt:], m.sofNs)
	le.PutUint32(record[baudAt:], math.Float32bits(m.baudrate))
}

// toRaw packs the message into the record layout of the named LIN group.
func (m *LinMessage) toRaw(groupName string, mandatory bool) (SampleRecord, error) {
	switch {
	case strings.HasSuffix(groupName, "_Frame"), strings.HasSuffix(groupName, "_ChecksumError"):
		return m.makeFrame(mandatory), nil
	case strings.HasSuffix(groupName, "_ReceiveError"):
		return m.makeReceiveError(mandatory), nil
	case strings.HasSuffix(groupName, "_SyncError"):
		return m.makeSyncError(mandatory), nil
	case strings.HasSuffix(groupName, "_TransmissionError"):
		return m.makeTransmissionError(mandatory), nil
	case strings.HasSuffix(groupName, "_WakeUp"), strings.HasSuffix(groupName, "_Spike"):
		return m.makeWakeUp(mandatory), nil
	case strings.HasSuffix(groupName, "_LongDom"):
		return m.makeLongDom(mandatory), nil
	default:
		return SampleRecord{}, fmt.Errorf("channel group %q is not a LIN group", groupName)
	}
}

func (m *LinMessage) makeFrame(mandatory bool) SampleRecord {
	size := 8 + 36
	if mandatory {
		size = 8 + 11
	}
	record := make([]byte, size)
	record[8] = m.busByte()
	record[9] = m.idByte()
	record[10] = uint8(len(m.dataBytes))&0x0F | uint8(len(m.dataBytes))<<4
	data := record[11:19]
	n := copy(data, m.dataBytes)
	for i := n; i < len(data); i++ {
		data[i] = 0xFF
	}
	if mandatory {
		return SampleRecord{Record: record}
	}
	record[19] = m.checksum
	m.packTimingTail(record, 20, 28)
	le.PutUint32(record[32:], math.Float32bits(m.responseBaudrate))
	le.PutUint32(record[36:], m.breakLength)
	le.PutUint32(record[40:], m.breakDelimiter)

	return SampleRecord{Record: record}
}

func (m *LinMessage) makeReceiveError(mandatory bool) SampleRecord {
	size := 8 + 35
	if mandatory {
		size = 8 + 2
	}
	record := make([]byte, size)
	record[8] = m.busByte()
	record[9] = m.idByte()
	if mandatory {
		return SampleRecord{Record: record}
	}
	record[10] = uint8(len(m.dataBytes))&0x0F | uint8(len(m.dataBytes))<<4
	record[11] = m.checksum
	record[12] = m.specified & 0x0F
	// The receive error reserves only six data bytes before the timing
	// fields.
	data := record[13:19]
	n := copy(data, m.dataBytes)
	for i := n; i < len(data); i++ {
		data[i] = 0xFF
	}
	m.packTimingTail(record, 19, 27)
	le.PutUint32(record[31:], math.Float32bits(m.responseBaudrate))
	le.PutUint32(record[35:], m.breakLength)
	le.PutUint32(record[39:], m.breakDelimiter)

	return SampleRecord{Record: record}
}

func (m *LinMessage) makeSyncError(mandatory bool) SampleRecord {
	size := 8 + 21
	if mandatory {
		size = 8 + 5
	}
	record := make([]byte, size)
	record[8] = m.busByte()
	le.PutUint32(record[9:], math.Float32bits(m.baudrate))
	if mandatory {
		return SampleRecord{Record: record}
	}
	le.PutUint64(record[13:], m.sofNs)
	le.PutUint32(record[21:], m.breakLength)
	le.PutUint32(record[25:], m.breakDelimiter)

	return SampleRecord{Record: record}
}

func (m *LinMessage) makeTransmissionError(mandatory bool) SampleRecord {
	size := 8 + 23
	if mandatory {
		size = 8 + 2
	}
	record := make([]byte, size)
	record[8] = m.busByte()
	record[9] = m.idByte()
	if mandatory {
		return SampleRecord{Record: record}
	}
	record[10] = m.specified & 0x0F
	m.packTimingTail(record, 15, 11)
	le.PutUint32(record[23:], m.breakLength)
	le.PutUint32(record[27:], m.breakDelimiter)

	return SampleRecord{Record: record}
}

func (m *LinMessage) makeWakeUp(mandatory bool) SampleRecord {
	size := 8 + 13
	if mandatory {
		size = 8 + 1
	}
	record := make([]byte, size)
	record[8] = m.busByte()
	if mandatory {
		return SampleRecord{Record: record}
	}
	le.PutUint32(record[9:], math.Float32bits(m.baudrate))
	le.PutUint64(record[13:], m.sofNs)

	return SampleRecord{Record: record}
}

func (m *LinMessage) makeLongDom(mandatory bool) SampleRecord {
	size := 8 + 18
	if mandatory {
		size = 8 + 2
	}
	record := make([]byte, size)
	record[8] = m.busByte()
	// Report state lives in the upper nibble of byte 9.
	record[9] = uint8(m.longDomState&0x03) << 4
	if mandatory {
		return SampleRecord{Record: record}
	}
	le.PutUint32(record[10:], math.Float32bits(m.baudrate))
	le.PutUint64(record[14:], m.sofNs)
	le.PutUint32(record[22:], m.totalSignalNs)

	return SampleRecord{Record: record}
}

// SaveLinMessage packs a LIN message for the given frame group and queues
// it with the timestamp.
func (w *Writer) SaveLinMessage(cg *blocks.CG, timestampNs uint64, msg *LinMessage) error {
	sample, err := msg.toRaw(cg.Name, w.mandatoryOnly)
	if err != nil {
		return err
	}
	sample.RecordID = cg.RecordID
	sample.TimestampNs = timestampNs

	return w.enqueue(sample)
}
