package gomdf

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihedvall/gomdf/blocks"
)

const testStartNs = uint64(1_700_000_000_000_000_000)

const msNs = uint64(time.Millisecond)

func tempMf4(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.mf4")
}

func findGroup(t *testing.T, dg *blocks.DG, name string) *blocks.CG {
	t.Helper()
	for _, cg := range dg.Groups {
		if cg.Name == name {
			return cg
		}
	}
	t.Fatalf("channel group %q not found", name)
	return nil
}

func makeCanMessage(i int) *CanMessage {
	msg := &CanMessage{}
	msg.SetBusChannel(11)
	msg.SetMessageID(123)
	msg.SetExtendedID(true)
	size := i + 1
	if size > 8 {
		size = 8
	}
	payload := bytes.Repeat([]byte{byte(size)}, size)
	msg.SetDataBytes(payload)

	return msg
}

func reopen(t *testing.T, path string) *Reader {
	t.Helper()
	reader, err := OpenReader(path)
	require.NoError(t, err)
	require.NoError(t, reader.ReadEverythingButData())

	return reader
}

// Scenario: CAN bus logging with MLSD storage, 10 frames into every frame
// group.
func TestCanBusLogMlsd(t *testing.T) {
	path := tempMf4(t)
	writer, err := NewWriter(path, WithStorageType(MlsdStorage), WithMaxLength(8))
	require.NoError(t, err)

	dg, err := writer.CreateBusLogConfiguration(blocks.BusCan)
	require.NoError(t, err)
	require.Len(t, dg.Groups, 4)

	cgData := findGroup(t, dg, "CAN_DataFrame")
	cgRemote := findGroup(t, dg, "CAN_RemoteFrame")
	cgError := findGroup(t, dg, "CAN_ErrorFrame")
	cgOverload := findGroup(t, dg, "CAN_OverloadFrame")

	require.NoError(t, writer.InitMeasurement())
	writer.StartMeasurement(testStartNs)
	for i := 0; i < 10; i++ {
		msg := makeCanMessage(i)
		ts := testStartNs + uint64(i)*msNs
		require.NoError(t, writer.SaveCanMessage(cgData, ts, msg))
		require.NoError(t, writer.SaveCanMessage(cgRemote, ts, msg))
		require.NoError(t, writer.SaveCanMessage(cgError, ts, msg))
		require.NoError(t, writer.SaveCanMessage(cgOverload, ts, msg))
	}
	writer.StopMeasurement(testStartNs + 10*msNs)
	require.NoError(t, writer.FinalizeMeasurement())

	assert.True(t, IsMdfFile(path))

	reader := reopen(t, path)
	assert.True(t, reader.IsFinalized())
	require.Len(t, reader.Header().DataGroups, 1)
	rdg := reader.Header().DataGroups[0]
	require.Len(t, rdg.Groups, 4)
	for _, name := range []string{"CAN_DataFrame", "CAN_RemoteFrame", "CAN_ErrorFrame", "CAN_OverloadFrame"} {
		cg := findGroup(t, rdg, name)
		assert.Equal(t, uint64(10), cg.CycleCount, name)
	}

	rData := findGroup(t, rdg, "CAN_DataFrame")
	dataBytes := rData.GetChannel("CAN_DataFrame.DataBytes")
	require.NotNil(t, dataBytes)
	require.NotNil(t, dataBytes.MlsdLength, "MLSD channel links its length channel")
	dataLength := rData.GetChannel("CAN_DataFrame.DataLength")
	require.NotNil(t, dataLength)
	msgID := rData.GetChannel("CAN_DataFrame.ID")
	require.NotNil(t, msgID)
	busChan := rData.GetChannel("CAN_DataFrame.BusChannel")
	require.NotNil(t, busChan)
	dir := rData.GetChannel("CAN_DataFrame.Dir")
	require.NotNil(t, dir)

	obsBytes, err := reader.CreateChannelObserver(rdg, rData, dataBytes)
	require.NoError(t, err)
	obsLength, err := reader.CreateChannelObserver(rdg, rData, dataLength)
	require.NoError(t, err)
	obsID, err := reader.CreateChannelObserver(rdg, rData, msgID)
	require.NoError(t, err)
	obsBus, err := reader.CreateChannelObserver(rdg, rData, busChan)
	require.NoError(t, err)
	obsDir, err := reader.CreateChannelObserver(rdg, rData, dir)
	require.NoError(t, err)
	obsTime, err := reader.CreateChannelObserver(rdg, rData, rData.MasterChannel())
	require.NoError(t, err)

	require.NoError(t, reader.ReadData(rdg))
	assert.Equal(t, uint64(10), obsBytes.SampleCount())

	payload, valid := obsBytes.BytesAt(5)
	assert.True(t, valid)
	assert.Equal(t, []byte{6, 6, 6, 6, 6, 6}, payload)

	length, valid := obsLength.EngFloatAt(5)
	assert.True(t, valid)
	assert.Equal(t, 6.0, length)

	id, valid := obsID.UintAt(3)
	assert.True(t, valid)
	assert.Equal(t, uint64(123), id)

	bus, valid := obsBus.UintAt(0)
	assert.True(t, valid)
	assert.Equal(t, uint64(11), bus)

	text, ok := obsDir.EngTextAt(0)
	assert.True(t, ok)
	assert.Equal(t, "Rx", text)

	// Master time is stored relative to the measurement start.
	tm, valid := obsTime.FloatAt(3)
	assert.True(t, valid)
	assert.InDelta(t, 0.003, tm, 1e-9)

	// The generic observer accessor mirrors the typed getters.
	value8, valid := ChannelValueAs[uint8](obsBus, 0)
	assert.True(t, valid)
	assert.Equal(t, uint8(11), value8)
}

// Scenario: CAN bus logging with VLSD channel group storage.
func TestCanBusLogVlsd(t *testing.T) {
	const nofSamples = 100_000

	path := tempMf4(t)
	writer, err := NewWriter(path, WithStorageType(VlsdStorage), WithMaxLength(20))
	require.NoError(t, err)

	dg, err := writer.CreateBusLogConfiguration(blocks.BusCan)
	require.NoError(t, err)
	// Four frame groups plus VLSD siblings for data and error frames.
	require.Len(t, dg.Groups, 6)

	cgData := findGroup(t, dg, "CAN_DataFrame")
	cgRemote := findGroup(t, dg, "CAN_RemoteFrame")
	cgError := findGroup(t, dg, "CAN_ErrorFrame")
	cgOverload := findGroup(t, dg, "CAN_OverloadFrame")

	require.NoError(t, writer.InitMeasurement())
	writer.StartMeasurement(testStartNs)
	for i := 0; i < nofSamples; i++ {
		msg := makeCanMessage(i % 8)
		ts := testStartNs + uint64(i)*msNs
		require.NoError(t, writer.SaveCanMessage(cgData, ts, msg))
		require.NoError(t, writer.SaveCanMessage(cgRemote, ts, msg))
		require.NoError(t, writer.SaveCanMessage(cgError, ts, msg))
		require.NoError(t, writer.SaveCanMessage(cgOverload, ts, msg))
	}
	writer.StopMeasurement(testStartNs + nofSamples*msNs)
	require.NoError(t, writer.FinalizeMeasurement())

	reader := reopen(t, path)
	rdg := reader.Header().DataGroups[0]
	require.Len(t, rdg.Groups, 6)
	for _, name := range []string{"CAN_DataFrame", "CAN_RemoteFrame", "CAN_ErrorFrame", "CAN_OverloadFrame"} {
		assert.Equal(t, uint64(nofSamples), findGroup(t, rdg, name).CycleCount, name)
	}

	rData := findGroup(t, rdg, "CAN_DataFrame")
	dataBytes := rData.GetChannel("CAN_DataFrame.DataBytes")
	require.NotNil(t, dataBytes)
	assert.Equal(t, blocks.ChannelTypeVariableLength, dataBytes.Type)
	assert.NotZero(t, dataBytes.VlsdRecordID, "data bytes resolve to the VLSD sibling group")

	obsBytes, err := reader.CreateChannelObserver(rdg, rData, dataBytes)
	require.NoError(t, err)
	require.NoError(t, reader.ReadData(rdg))

	payload, valid := obsBytes.BytesAt(4)
	assert.True(t, valid)
	assert.Equal(t, []byte{5, 5, 5, 5, 5}, payload)
}

// Scenario: compressed CAN write. The data link resolves to an HL/DL/DZ
// chain and the payloads round trip byte for byte.
func TestCanBusLogCompressed(t *testing.T) {
	const nofSamples = 100_000

	path := tempMf4(t)
	writer, err := NewWriter(path,
		WithStorageType(VlsdStorage),
		WithMaxLength(8),
		WithCompression(true))
	require.NoError(t, err)

	dg, err := writer.CreateBusLogConfiguration(blocks.BusCan)
	require.NoError(t, err)
	cgData := findGroup(t, dg, "CAN_DataFrame")

	require.NoError(t, writer.InitMeasurement())
	writer.StartMeasurement(testStartNs)
	for i := 0; i < nofSamples; i++ {
		msg := makeCanMessage(i % 8)
		require.NoError(t, writer.SaveCanMessage(cgData, testStartNs+uint64(i)*msNs, msg))
	}
	writer.StopMeasurement(testStartNs + nofSamples*msNs)
	require.NoError(t, writer.FinalizeMeasurement())

	reader := reopen(t, path)
	rdg := reader.Header().DataGroups[0]

	// The data link must be a header list spine.
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	h, _, err := blocks.ReadHeader(f, rdg.DataLink)
	require.NoError(t, err)
	assert.Equal(t, blocks.TagHL, h.Tag)

	rData := findGroup(t, rdg, "CAN_DataFrame")
	assert.Equal(t, uint64(nofSamples), rData.CycleCount)

	dataBytes := rData.GetChannel("CAN_DataFrame.DataBytes")
	require.NotNil(t, dataBytes)
	obsBytes, err := reader.CreateChannelObserver(rdg, rData, dataBytes)
	require.NoError(t, err)
	require.NoError(t, reader.ReadData(rdg))

	for _, index := range []uint64{0, 1, 7, 4999, uint64(nofSamples) - 1} {
		size := int(index%8) + 1
		payload, valid := obsBytes.BytesAt(index)
		assert.True(t, valid, "sample %d", index)
		assert.Equal(t, bytes.Repeat([]byte{byte(size)}, size), payload, "sample %d", index)
	}
}

// Scenario: Ethernet frames with mandatory members only.
func TestEthBusLogMandatory(t *testing.T) {
	const nofSamples = 100_000
	source := [6]byte{1, 2, 3, 4, 5, 6}
	destination := [6]byte{2, 3, 4, 5, 6, 7}

	path := tempMf4(t)
	writer, err := NewWriter(path,
		WithStorageType(VlsdStorage),
		WithMandatoryMembersOnly())
	require.NoError(t, err)

	dg, err := writer.CreateBusLogConfiguration(blocks.BusEthernet)
	require.NoError(t, err)
	cgFrame := findGroup(t, dg, "ETH_Frame")

	// Mandatory mode drops the CRC and padding channels.
	assert.Nil(t, cgFrame.GetChannel("ETH_Frame.CRC"))
	assert.Nil(t, cgFrame.GetChannel("ETH_Frame.PadByteCount"))

	require.NoError(t, writer.InitMeasurement())
	writer.StartMeasurement(testStartNs)
	for i := 0; i < nofSamples; i++ {
		msg := NewEthMessage()
		msg.SetBusChannel(1)
		msg.SetSource(source)
		msg.SetDestination(destination)
		size := i%8 + 1
		msg.SetDataBytes(bytes.Repeat([]byte{byte(size)}, size))
		require.NoError(t, writer.SaveEthMessage(cgFrame, testStartNs+uint64(i)*msNs, msg))
	}
	writer.StopMeasurement(testStartNs + nofSamples*msNs)
	require.NoError(t, writer.FinalizeMeasurement())

	reader := reopen(t, path)
	rdg := reader.Header().DataGroups[0]
	rFrame := findGroup(t, rdg, "ETH_Frame")
	assert.Equal(t, uint64(nofSamples), rFrame.CycleCount)
	assert.Nil(t, rFrame.GetChannel("ETH_Frame.CRC"))

	dst := rFrame.GetChannel("ETH_Frame.Destination")
	require.NotNil(t, dst)
	obsDst, err := reader.CreateChannelObserver(rdg, rFrame, dst)
	require.NoError(t, err)
	dataBytes := rFrame.GetChannel("ETH_Frame.DataBytes")
	require.NotNil(t, dataBytes)
	obsBytes, err := reader.CreateChannelObserver(rdg, rFrame, dataBytes)
	require.NoError(t, err)

	require.NoError(t, reader.ReadData(rdg))

	for _, index := range []uint64{0, 99, uint64(nofSamples) - 1} {
		mac, valid := obsDst.BytesAt(index)
		assert.True(t, valid, "sample %d", index)
		assert.Equal(t, destination[:], mac, "sample %d", index)

		size := int(index%8) + 1
		payload, valid := obsBytes.BytesAt(index)
		assert.True(t, valid, "sample %d", index)
		assert.Equal(t, bytes.Repeat([]byte{byte(size)}, size), payload, "sample %d", index)
	}
}

// Scenario: LIN bus logging. Frames and bus events round trip with the
// field offsets of the mandated layout.
func TestLinBusLog(t *testing.T) {
	const nofFrames = 10

	path := tempMf4(t)
	writer, err := NewWriter(path)
	require.NoError(t, err)

	dg, err := writer.CreateBusLogConfiguration(blocks.BusLin)
	require.NoError(t, err)
	require.Len(t, dg.Groups, 8)

	cgFrame := findGroup(t, dg, "LIN_Frame")
	cgReceive := findGroup(t, dg, "LIN_ReceiveError")
	cgLongDom := findGroup(t, dg, "LIN_LongDom")

	require.NoError(t, writer.InitMeasurement())
	writer.StartMeasurement(testStartNs)

	for i := 0; i < nofFrames; i++ {
		msg := &LinMessage{}
		msg.SetBusChannel(2)
		msg.SetLinID(0x15)
		msg.SetDir(true)
		msg.SetChecksumModel(LinChecksumEnhanced)
		msg.SetChecksum(0xA5)
		msg.SetDataBytes([]byte{1, 2, 3, 4})
		msg.SetBaudrate(19200)
		msg.SetStartOfFrame(testStartNs)
		require.NoError(t, writer.SaveLinMessage(cgFrame, testStartNs+uint64(i)*msNs, msg))
	}

	recvMsg := &LinMessage{}
	recvMsg.SetBusChannel(2)
	recvMsg.SetLinID(0x20)
	recvMsg.SetChecksum(0x5A)
	recvMsg.SetSpecifiedDataByteCount(4)
	recvMsg.SetDataBytes([]byte{9, 9})
	recvMsg.SetBaudrate(19200)
	recvMsg.SetStartOfFrame(testStartNs)
	require.NoError(t, writer.SaveLinMessage(cgReceive, testStartNs+msNs, recvMsg))

	domMsg := &LinMessage{}
	domMsg.SetBusChannel(2)
	domMsg.SetLongDomState(LinLongDomEndOfDetection)
	domMsg.SetBaudrate(19200)
	domMsg.SetStartOfFrame(testStartNs)
	domMsg.SetTotalSignalLength(5000)
	require.NoError(t, writer.SaveLinMessage(cgLongDom, testStartNs+2*msNs, domMsg))

	writer.StopMeasurement(testStartNs + nofFrames*msNs)
	require.NoError(t, writer.FinalizeMeasurement())

	reader := reopen(t, path)
	rdg := reader.Header().DataGroups[0]
	require.Len(t, rdg.Groups, 8)

	rFrame := findGroup(t, rdg, "LIN_Frame")
	assert.Equal(t, uint64(nofFrames), rFrame.CycleCount)
	rReceive := findGroup(t, rdg, "LIN_ReceiveError")
	assert.Equal(t, uint64(1), rReceive.CycleCount)
	rLongDom := findGroup(t, rdg, "LIN_LongDom")
	assert.Equal(t, uint64(1), rLongDom.CycleCount)

	obsID, err := reader.CreateChannelObserver(rdg, rFrame, rFrame.GetChannel("LIN_Frame.ID"))
	require.NoError(t, err)
	obsDir, err := reader.CreateChannelObserver(rdg, rFrame, rFrame.GetChannel("LIN_Frame.Dir"))
	require.NoError(t, err)
	obsData, err := reader.CreateChannelObserver(rdg, rFrame, rFrame.GetChannel("LIN_Frame.DataBytes"))
	require.NoError(t, err)
	obsCrc, err := reader.CreateChannelObserver(rdg, rFrame, rFrame.GetChannel("LIN_Frame.Checksum"))
	require.NoError(t, err)
	obsModel, err := reader.CreateChannelObserver(rdg, rFrame, rFrame.GetChannel("LIN_Frame.ChecksumModel"))
	require.NoError(t, err)
	obsBaud, err := reader.CreateChannelObserver(rdg, rFrame, rFrame.GetChannel("LIN_Frame.Baudrate"))
	require.NoError(t, err)
	obsSof, err := reader.CreateChannelObserver(rdg, rFrame, rFrame.GetChannel("LIN_Frame.SOF"))
	require.NoError(t, err)

	obsRecvCrc, err := reader.CreateChannelObserver(rdg, rReceive, rReceive.GetChannel("LIN_ReceiveError.Checksum"))
	require.NoError(t, err)
	obsRecvSof, err := reader.CreateChannelObserver(rdg, rReceive, rReceive.GetChannel("LIN_ReceiveError.SOF"))
	require.NoError(t, err)
	obsRecvBaud, err := reader.CreateChannelObserver(rdg, rReceive, rReceive.GetChannel("LIN_ReceiveError.Baudrate"))
	require.NoError(t, err)

	obsState, err := reader.CreateChannelObserver(rdg, rLongDom, rLongDom.GetChannel("LIN_LongDom.State"))
	require.NoError(t, err)
	obsLength, err := reader.CreateChannelObserver(rdg, rLongDom, rLongDom.GetChannel("LIN_LongDom.Length"))
	require.NoError(t, err)

	require.NoError(t, reader.ReadData(rdg))

	id, valid := obsID.UintAt(0)
	assert.True(t, valid)
	assert.Equal(t, uint64(0x15), id)

	text, ok := obsDir.EngTextAt(0)
	assert.True(t, ok)
	assert.Equal(t, "Tx", text)

	payload, valid := obsData.BytesAt(0)
	assert.True(t, valid)
	assert.Equal(t, []byte{1, 2, 3, 4}, payload, "MLSD payload trims to the data length")

	crc, valid := obsCrc.UintAt(0)
	assert.True(t, valid)
	assert.Equal(t, uint64(0xA5), crc)

	model, valid := obsModel.RawAt(0)
	assert.True(t, valid)
	assert.Equal(t, int64(LinChecksumEnhanced), model.Int)

	baud, valid := obsBaud.FloatAt(0)
	assert.True(t, valid)
	assert.Equal(t, 19200.0, baud)

	sof, valid := obsSof.UintAt(0)
	assert.True(t, valid)
	assert.Equal(t, testStartNs, sof)

	// Receive error fields sit at the original offsets (checksum at
	// record byte 11, SOF at 19, baudrate at 27).
	crc, valid = obsRecvCrc.UintAt(0)
	assert.True(t, valid)
	assert.Equal(t, uint64(0x5A), crc)
	sof, valid = obsRecvSof.UintAt(0)
	assert.True(t, valid)
	assert.Equal(t, testStartNs, sof)
	baud, valid = obsRecvBaud.FloatAt(0)
	assert.True(t, valid)
	assert.Equal(t, 19200.0, baud)

	state, valid := obsState.UintAt(0)
	assert.True(t, valid)
	assert.Equal(t, uint64(LinLongDomEndOfDetection), state)
	text, ok = obsState.EngTextAt(0)
	assert.True(t, ok)
	assert.Equal(t, "End of Detection", text)

	length, valid := obsLength.UintAt(0)
	assert.True(t, valid)
	assert.Equal(t, uint64(5000), length)
}

// Scenario: an observer may stop the read pass early.
func TestObserverEarlyStop(t *testing.T) {
	path := tempMf4(t)
	writer, err := NewWriter(path, WithStorageType(MlsdStorage), WithMaxLength(8))
	require.NoError(t, err)

	dg, err := writer.CreateBusLogConfiguration(blocks.BusCan)
	require.NoError(t, err)
	cgData := findGroup(t, dg, "CAN_DataFrame")

	require.NoError(t, writer.InitMeasurement())
	writer.StartMeasurement(testStartNs)
	for i := 0; i < 1000; i++ {
		require.NoError(t, writer.SaveCanMessage(cgData, testStartNs+uint64(i)*msNs, makeCanMessage(i)))
	}
	writer.StopMeasurement(testStartNs + 1000*msNs)
	require.NoError(t, writer.FinalizeMeasurement())

	reader := reopen(t, path)
	rdg := reader.Header().DataGroups[0]

	var validCount int
	reader.AttachObserver(rdg, ObserverFunc(func(sampleIndex, recordID uint64, record []byte) bool {
		validCount++
		return validCount < 10
	}))

	require.NoError(t, reader.ReadData(rdg))
	assert.Equal(t, 10, validCount)
}

// Scenario: pre-trigger trimming. Only the samples inside the window
// before the measurement start survive, with relative master times.
func TestPreTriggerTrim(t *testing.T) {
	path := tempMf4(t)
	writer, err := NewWriter(path,
		WithStorageType(MlsdStorage),
		WithMaxLength(8),
		WithPreTrigger(100*time.Millisecond))
	require.NoError(t, err)

	dg, err := writer.CreateBusLogConfiguration(blocks.BusCan)
	require.NoError(t, err)
	cgData := findGroup(t, dg, "CAN_DataFrame")

	require.NoError(t, writer.InitMeasurement())

	// 1000 samples at 1 ms intervals before the trigger.
	for i := 0; i < 1000; i++ {
		require.NoError(t, writer.SaveCanMessage(cgData, testStartNs+uint64(i)*msNs, makeCanMessage(i)))
	}
	start := testStartNs + 999*msNs
	writer.StartMeasurement(start)
	writer.StopMeasurement(start)
	require.NoError(t, writer.FinalizeMeasurement())

	reader := reopen(t, path)
	rdg := reader.Header().DataGroups[0]
	rData := findGroup(t, rdg, "CAN_DataFrame")
	assert.Equal(t, uint64(100), rData.CycleCount)

	obsTime, err := reader.CreateChannelObserver(rdg, rData, rData.MasterChannel())
	require.NoError(t, err)
	require.NoError(t, reader.ReadData(rdg))

	first, valid := obsTime.FloatAt(0)
	assert.True(t, valid)
	assert.InDelta(t, -0.099, first, 1e-9)
	last, valid := obsTime.FloatAt(99)
	assert.True(t, valid)
	assert.InDelta(t, 0.0, last, 1e-9)
}

// Scenario: a plain signal measurement with header metadata, an embedded
// attachment, an event and an SD stored variable length channel.
func TestPlainMeasurementRoundTrip(t *testing.T) {
	const nofSamples = 100

	path := tempMf4(t)
	writer, err := NewWriter(path)
	require.NoError(t, err)

	hd := writer.Header()
	hd.Author = "Olle"
	hd.Project = "gomdf"
	hd.Subject = "unit test"
	hd.MeasureUUID = "7f2f4a50-1f3a-4dbb-9a0e-6d2c64a1a9b1"
	hd.Description = "Plain measurement"

	at := hd.NewAttachment()
	at.Filename = "notes.txt"
	at.FileType = "text/plain"
	require.NoError(t, at.Embed([]byte("attachment payload"), false))

	ev := hd.NewEvent()
	ev.Name = "Trigger"
	ev.Type = blocks.EventTrigger
	ev.Sync = blocks.SyncTime
	ev.SyncBase = 1
	ev.SyncFactor = 0.5

	dg := writer.CreateDataGroup()
	cg := dg.NewChannelGroup("Signals")

	timeChan := cg.NewChannel("t")
	timeChan.Type = blocks.ChannelTypeMaster
	timeChan.Sync = blocks.ChannelSyncTime
	timeChan.DataType = blocks.DataTypeFloatLe
	timeChan.BitCount = 64
	timeChan.Unit = "s"

	temp := cg.NewChannel("Temperature")
	temp.DataType = blocks.DataTypeFloatLe
	temp.ByteOffset = 8
	temp.BitCount = 64
	temp.Unit = "C"
	linear := temp.NewConversion()
	linear.Type = blocks.ConversionLinear
	linear.SetParameter(0, -40)
	linear.SetParameter(1, 0.5)
	linear.Unit = "degC"

	count := cg.NewChannel("Counter")
	count.DataType = blocks.DataTypeUnsignedLe
	count.ByteOffset = 16
	count.BitCount = 16
	count.Flags |= blocks.CnFlagInvalidValid
	count.InvalidBitPos = 0

	name := cg.NewChannel("Label")
	name.Type = blocks.ChannelTypeVariableLength
	name.DataType = blocks.DataTypeStringUTF8
	name.ByteOffset = 18
	name.BitCount = 64

	require.NoError(t, writer.InitMeasurement())
	writer.StartMeasurement(testStartNs)
	for i := 0; i < nofSamples; i++ {
		timeChan.SetFloatValue(float64(i)*0.001, true)
		temp.SetFloatValue(float64(i), true)
		count.SetUintValue(uint64(i), i%10 != 0)
		label := []byte("sample-" + string(rune('A'+i%26)))
		require.NoError(t, writer.SaveVlsdSample(cg, testStartNs+uint64(i)*msNs, label))
	}
	writer.StopMeasurement(testStartNs + nofSamples*msNs)
	require.NoError(t, writer.FinalizeMeasurement())

	reader := reopen(t, path)
	rhd := reader.Header()
	assert.Equal(t, "Olle", rhd.Author)
	assert.Equal(t, "gomdf", rhd.Project)
	assert.Equal(t, "unit test", rhd.Subject)
	assert.Equal(t, "7f2f4a50-1f3a-4dbb-9a0e-6d2c64a1a9b1", rhd.MeasureUUID)
	assert.Equal(t, testStartNs, rhd.StartTimeNs)
	require.NotEmpty(t, rhd.FileHistories, "the writer records its tool")

	require.Len(t, rhd.Attachments, 1)
	payload, err := rhd.Attachments[0].Payload()
	require.NoError(t, err)
	assert.Equal(t, []byte("attachment payload"), payload)

	require.Len(t, rhd.Events, 1)
	assert.Equal(t, "Trigger", rhd.Events[0].Name)
	assert.Equal(t, blocks.EventTrigger, rhd.Events[0].Type)
	assert.InDelta(t, 0.5, rhd.Events[0].SyncValue(), 1e-12)

	rdg := rhd.DataGroups[0]
	rcg := findGroup(t, rdg, "Signals")
	assert.Equal(t, uint64(nofSamples), rcg.CycleCount)

	rTemp := rcg.GetChannel("Temperature")
	require.NotNil(t, rTemp)
	obsTemp, err := reader.CreateChannelObserver(rdg, rcg, rTemp)
	require.NoError(t, err)
	rCount := rcg.GetChannel("Counter")
	require.NotNil(t, rCount)
	obsCount, err := reader.CreateChannelObserver(rdg, rcg, rCount)
	require.NoError(t, err)
	rLabel := rcg.GetChannel("Label")
	require.NotNil(t, rLabel)
	obsLabel, err := reader.CreateChannelObserver(rdg, rcg, rLabel)
	require.NoError(t, err)

	require.NoError(t, reader.ReadData(rdg))

	raw, valid := obsTemp.FloatAt(10)
	assert.True(t, valid)
	assert.Equal(t, 10.0, raw)
	eng, valid := obsTemp.EngFloatAt(10)
	assert.True(t, valid)
	assert.Equal(t, -35.0, eng)
	assert.Equal(t, "degC", obsTemp.Unit(), "conversion unit overrides the channel unit")

	_, valid = obsCount.UintAt(0)
	assert.False(t, valid, "invalid bit set for every tenth sample")
	value, valid := obsCount.UintAt(7)
	assert.True(t, valid)
	assert.Equal(t, uint64(7), value)

	label, valid := obsLabel.TextAt(3)
	assert.True(t, valid)
	assert.Equal(t, "sample-D", label)

	// The signal data scan sees the same length prefixed payloads.
	var sdCount int
	require.NoError(t, reader.ReadSignalData(rLabel, func(offset uint64, payload []byte) error {
		sdCount++
		return nil
	}))
	assert.Equal(t, nofSamples, sdCount)
}

func TestWriterStateErrors(t *testing.T) {
	path := tempMf4(t)
	writer, err := NewWriter(path)
	require.NoError(t, err)

	dg := writer.CreateDataGroup()
	cg := dg.NewChannelGroup("Group")
	timeChan := cg.NewChannel("t")
	timeChan.Type = blocks.ChannelTypeMaster
	timeChan.Sync = blocks.ChannelSyncTime
	timeChan.DataType = blocks.DataTypeFloatLe
	timeChan.BitCount = 64

	// Sampling before InitMeasurement is a state error.
	err = writer.SaveSample(cg, testStartNs)
	assert.Error(t, err)

	err = writer.FinalizeMeasurement()
	assert.Error(t, err)

	require.NoError(t, writer.InitMeasurement())
	writer.StartMeasurement(testStartNs)
	require.NoError(t, writer.SaveSample(cg, testStartNs))
	writer.StopMeasurement(testStartNs + msNs)
	require.NoError(t, writer.FinalizeMeasurement())
	assert.Equal(t, StateFinalize, writer.State())
}

func TestIsMdfFile(t *testing.T) {
	assert.False(t, IsMdfFile(filepath.Join(t.TempDir(), "missing.mf4")))

	junk := filepath.Join(t.TempDir(), "junk.bin")
	require.NoError(t, os.WriteFile(junk, bytes.Repeat([]byte{0xAA}, 128), 0o644))
	assert.False(t, IsMdfFile(junk))
}

func TestReaderMemoryMapped(t *testing.T) {
	path := tempMf4(t)
	writer, err := NewWriter(path, WithStorageType(MlsdStorage), WithMaxLength(8))
	require.NoError(t, err)
	dg, err := writer.CreateBusLogConfiguration(blocks.BusCan)
	require.NoError(t, err)
	cgData := findGroup(t, dg, "CAN_DataFrame")

	require.NoError(t, writer.InitMeasurement())
	writer.StartMeasurement(testStartNs)
	for i := 0; i < 100; i++ {
		require.NoError(t, writer.SaveCanMessage(cgData, testStartNs+uint64(i)*msNs, makeCanMessage(i)))
	}
	writer.StopMeasurement(testStartNs + 100*msNs)
	require.NoError(t, writer.FinalizeMeasurement())

	reader, err := OpenReader(path, WithMemoryMapped())
	require.NoError(t, err)
	require.NoError(t, reader.ReadEverythingButData())

	rdg := reader.Header().DataGroups[0]
	rData := findGroup(t, rdg, "CAN_DataFrame")
	obs, err := reader.CreateChannelObserver(rdg, rData, rData.GetChannel("CAN_DataFrame.DataBytes"))
	require.NoError(t, err)
	require.NoError(t, reader.ReadData(rdg))

	payload, valid := obs.BytesAt(2)
	assert.True(t, valid)
	assert.Equal(t, []byte{3, 3, 3}, payload)
}
