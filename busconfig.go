package gomdf

import (
	"fmt"

	"github.com/ihedvall/gomdf/blocks"
	"github.com/ihedvall/gomdf/errs"
)

// CreateBusLogConfiguration materializes the channel graph the ASAM bus
// logging standard mandates for the given buses into the last (or a new)
// data group. Call before InitMeasurement.
func (w *Writer) CreateBusLogConfiguration(buses ...blocks.BusType) (*blocks.DG, error) {
	if w.hd == nil {
		return nil, errs.ErrNoHeader
	}
	dg := w.hd.LastDataGroup()
	if dg == nil || !dg.IsEmpty() {
		dg = w.hd.NewDataGroup()
	}

	for _, bus := range buses {
		switch bus {
		case blocks.BusCan:
			w.createCanConfig(dg)
		case blocks.BusLin:
			w.createLinConfig(dg)
		case blocks.BusEthernet:
			w.createEthConfig(dg)
		default:
			return nil, fmt.Errorf("no bus log configuration for bus type %d", bus)
		}
	}

	return dg, nil
}

// makeTimeChannel ensures the group has a master time channel named t,
// float64 little-endian seconds at record byte 0.
func makeTimeChannel(cg *blocks.CG) *blocks.CN {
	if master := cg.MasterChannel(); master != nil {
		return master
	}
	cn := cg.NewChannel("t")
	cn.Type = blocks.ChannelTypeMaster
	cn.Sync = blocks.ChannelSyncTime
	cn.DataType = blocks.DataTypeFloatLe
	cn.ByteOffset = 0
	cn.BitCount = 64
	cn.Unit = "s"

	return cn
}

// makeBitChannel creates a one bit composition channel.
func makeBitChannel(parent *blocks.CN, name string, byteOffset uint32, bitOffset uint8) *blocks.CN {
	cn := parent.NewComposition(name)
	cn.Type = blocks.ChannelTypeFixedLength
	cn.Sync = blocks.ChannelSyncNone
	cn.DataType = blocks.DataTypeUnsignedLe
	cn.Flags = blocks.CnFlagBusEvent
	cn.ByteOffset = byteOffset
	cn.BitOffset = bitOffset
	cn.BitCount = 1

	return cn
}

// makeSubChannel creates a multi bit composition channel.
func makeSubChannel(parent *blocks.CN, name string, byteOffset uint32, bitOffset uint8, bitCount uint32) *blocks.CN {
	cn := parent.NewComposition(name)
	cn.Type = blocks.ChannelTypeFixedLength
	cn.Sync = blocks.ChannelSyncNone
	cn.DataType = blocks.DataTypeUnsignedLe
	cn.Flags = blocks.CnFlagBusEvent
	cn.ByteOffset = byteOffset
	cn.BitOffset = bitOffset
	cn.BitCount = bitCount

	return cn
}

// makeDirConversion attaches the mandated Rx/Tx value to text conversion
// to a direction bit.
func makeDirConversion(dir *blocks.CN) {
	cc := dir.NewConversion()
	cc.Type = blocks.ConversionValueToText
	cc.SetParameter(0, 0.0)
	cc.SetParameter(1, 1.0)
	cc.SetTextRef(0, "Rx")
	cc.SetTextRef(1, "Tx")
	cc.SetTextRef(2, "") // default text
}

// makeDlcConversion attaches the CAN FD DLC to byte length table.
func makeDlcConversion(length *blocks.CN) {
	cc := length.NewConversion()
	cc.Type = blocks.ConversionValueToValue
	index := 0
	for key := 0; key < 16; key++ {
		cc.SetParameter(index, float64(key))
		index++
		cc.SetParameter(index, float64(CanDlcToLength(uint8(key))))
		index++
	}
}

// makeBusSource attaches bus source information to a channel group.
func makeBusSource(cg *blocks.CG, bus blocks.BusType, name string) {
	si := cg.NewSourceInformation()
	si.Name = name
	si.Type = blocks.SourceBus
	si.Bus = bus
}

// addVlsdGroup appends the sibling VLSD channel group holding the
// payloads of one variable length channel. The "dirty trick" of the bus
// logging layout is that the side group always takes the next record id.
func addVlsdGroup(dg *blocks.DG, dataBytes *blocks.CN) {
	side := dg.NewChannelGroup("")
	side.Flags = blocks.CgFlagVlsd
	dataBytes.VlsdRecordID = side.RecordID
}

// newBusGroup creates one bus event channel group with the mandated flags
// and master time channel.
func newBusGroup(dg *blocks.DG, name string, bus blocks.BusType, busName string) *blocks.CG {
	cg := dg.NewChannelGroup(name)
	cg.PathSeparator = '.'
	cg.Flags = blocks.CgFlagPlainBusEvent | blocks.CgFlagBusEvent
	makeBusSource(cg, bus, busName)
	makeTimeChannel(cg)

	return cg
}

// newFrameChannel creates the byte array parent channel of a bus group.
func newFrameChannel(cg *blocks.CG, dataBytes uint32) *blocks.CN {
	cn := cg.NewChannel(cg.Name)
	cn.Type = blocks.ChannelTypeFixedLength
	cn.Sync = blocks.ChannelSyncNone
	cn.DataType = blocks.DataTypeByteArray
	cn.Flags = blocks.CnFlagBusEvent
	cn.ByteOffset = 8
	cn.SetDataBytes(dataBytes)

	return cn
}

// ---------------------------------------------------------------------
// CAN

func (w *Writer) createCanConfig(dg *blocks.DG) {
	cgData := newBusGroup(dg, "CAN_DataFrame", blocks.BusCan, "CAN")
	w.createCanDataFrameChannel(cgData)
	if w.storage == VlsdStorage {
		if dataBytes := cgData.GetChannel("CAN_DataFrame.DataBytes"); dataBytes != nil {
			addVlsdGroup(dg, dataBytes)
		}
	}

	cgRemote := newBusGroup(dg, "CAN_RemoteFrame", blocks.BusCan, "CAN")
	w.createCanRemoteFrameChannel(cgRemote)

	cgError := newBusGroup(dg, "CAN_ErrorFrame", blocks.BusCan, "CAN")
	w.createCanErrorFrameChannel(cgError)
	if w.storage == VlsdStorage {
		if errorBytes := cgError.GetChannel("CAN_ErrorFrame.DataBytes"); errorBytes != nil {
			addVlsdGroup(dg, errorBytes)
		}
	}

	if w.mandatoryOnly {
		// The overload frame is rarely used.
		return
	}
	cgOverload := newBusGroup(dg, "CAN_OverloadFrame", blocks.BusCan, "CAN")
	w.createCanOverloadFrameChannel(cgOverload)
}

func (w *Writer) createCanDataFrameChannel(cg *blocks.CG) {
	var size uint32
	switch w.storage {
	case MlsdStorage:
		size = 6 + w.maxLength
	default:
		size = 6 + 8 // index into SD or VLSD
	}
	frame := newFrameChannel(cg, size)

	bus := makeSubChannel(frame, "CAN_DataFrame.BusChannel", 8+4, 4, 4)
	bus.SetRange(0, 15)
	makeSubChannel(frame, "CAN_DataFrame.ID", 8, 0, 29)
	makeBitChannel(frame, "CAN_DataFrame.IDE", 8+3, 7)
	makeSubChannel(frame, "CAN_DataFrame.DLC", 8+4, 0, 4)
	length := makeSubChannel(frame, "CAN_DataFrame.DataLength", 8+4, 0, 4)
	makeDlcConversion(length)

	dataBytes := frame.NewComposition("CAN_DataFrame.DataBytes")
	dataBytes.Sync = blocks.ChannelSyncNone
	dataBytes.DataType = blocks.DataTypeByteArray
	dataBytes.Flags = blocks.CnFlagBusEvent
	dataBytes.ByteOffset = 8 + 6
	switch w.storage {
	case MlsdStorage:
		dataBytes.Type = blocks.ChannelTypeMaxLength
		dataBytes.BitCount = 8 * w.maxLength
		dataBytes.MlsdLength = length
	default:
		dataBytes.Type = blocks.ChannelTypeVariableLength
		dataBytes.BitCount = 8 * 8 // index to SD or VLSD CG block
	}

	dir := makeBitChannel(frame, "CAN_DataFrame.Dir", 8+5, 0)
	makeDirConversion(dir)
	makeBitChannel(frame, "CAN_DataFrame.SRR", 8+5, 1)
	makeBitChannel(frame, "CAN_DataFrame.EDL", 8+5, 2)
	makeBitChannel(frame, "CAN_DataFrame.BRS", 8+5, 3)
	makeBitChannel(frame, "CAN_DataFrame.ESI", 8+5, 4)
	makeBitChannel(frame, "CAN_DataFrame.WakeUp", 8+5, 5)
	makeBitChannel(frame, "CAN_DataFrame.SingleWire", 8+5, 6)
}

func (w *Writer) createCanRemoteFrameChannel(cg *blocks.CG) {
	frame := newFrameChannel(cg, 6)

	makeSubChannel(frame, "CAN_RemoteFrame.BusChannel", 8+4, 4, 4)
	makeSubChannel(frame, "CAN_RemoteFrame.ID", 8, 0, 29)
	makeBitChannel(frame, "CAN_RemoteFrame.IDE", 8+3, 7)
	makeSubChannel(frame, "CAN_RemoteFrame.DLC", 8+4, 0, 4)
	length := makeSubChannel(frame, "CAN_RemoteFrame.DataLength", 8+4, 0, 4)
	makeDlcConversion(length)

	dir := makeBitChannel(frame, "CAN_RemoteFrame.Dir", 8+5, 0)
	makeDirConversion(dir)
	makeBitChannel(frame, "CAN_RemoteFrame.SRR", 8+5, 1)
	makeBitChannel(frame, "CAN_RemoteFrame.WakeUp", 8+5, 5)
	makeBitChannel(frame, "CAN_RemoteFrame.SingleWire", 8+5, 6)
}

func (w *Writer) createCanErrorFrameChannel(cg *blocks.CG) {
	var size uint32
	switch w.storage {
	case MlsdStorage:
		size = 8 + w.maxLength
	default:
		size = 8 + 8 // index into SD or VLSD
	}
	frame := newFrameChannel(cg, size)

	makeSubChannel(frame, "CAN_ErrorFrame.BusChannel", 8+4, 4, 4)
	makeSubChannel(frame, "CAN_ErrorFrame.ID", 8, 0, 29)
	makeBitChannel(frame, "CAN_ErrorFrame.IDE", 8+3, 7)
	makeSubChannel(frame, "CAN_ErrorFrame.DLC", 8+4, 0, 4)
	length := makeSubChannel(frame, "CAN_ErrorFrame.DataLength", 8+4, 0, 4)
	if w.maxLength > 8 {
		makeDlcConversion(length)
	}

	dataBytes := frame.NewComposition("CAN_ErrorFrame.DataBytes")
	dataBytes.Sync = blocks.ChannelSyncNone
	dataBytes.DataType = blocks.DataTypeByteArray
	dataBytes.Flags = blocks.CnFlagBusEvent
	dataBytes.ByteOffset = 8 + 8
	switch w.storage {
	case MlsdStorage:
		dataBytes.Type = blocks.ChannelTypeMaxLength
		dataBytes.BitCount = 8 * w.maxLength
		dataBytes.MlsdLength = length
	default:
		dataBytes.Type = blocks.ChannelTypeVariableLength
		dataBytes.BitCount = 8 * 8
	}

	dir := makeBitChannel(frame, "CAN_ErrorFrame.Dir", 8+5, 0)
	makeDirConversion(dir)
	makeBitChannel(frame, "CAN_ErrorFrame.RTR", 8+5, 7)
	makeBitChannel(frame, "CAN_ErrorFrame.SRR", 8+5, 1)
	makeBitChannel(frame, "CAN_ErrorFrame.EDL", 8+5, 2)
	makeBitChannel(frame, "CAN_ErrorFrame.BRS", 8+5, 3)
	makeBitChannel(frame, "CAN_ErrorFrame.ESI", 8+5, 4)
	makeBitChannel(frame, "CAN_ErrorFrame.WakeUp", 8+5, 5)
	makeBitChannel(frame, "CAN_ErrorFrame.SingleWire", 8+5, 6)
	makeSubChannel(frame, "CAN_ErrorFrame.BitPosition", 8+6, 0, 8)
	makeSubChannel(frame, "CAN_ErrorFrame.ErrorType", 8+7, 0, 8)
}

func (w *Writer) createCanOverloadFrameChannel(cg *blocks.CG) {
	frame := newFrameChannel(cg, 1)

	makeSubChannel(frame, "CAN_OverloadFrame.BusChannel", 8, 4, 4)
	dir := makeBitChannel(frame, "CAN_OverloadFrame.Dir", 8, 0)
	makeDirConversion(dir)
}

// ---------------------------------------------------------------------
// LIN

func (w *Writer) createLinConfig(dg *blocks.DG) {
	cgFrame := newBusGroup(dg, "LIN_Frame", blocks.BusLin, "LIN")
	w.createLinFrameChannels(cgFrame)

	cgChecksum := newBusGroup(dg, "LIN_ChecksumError", blocks.BusLin, "LIN")
	w.createLinFrameChannels(cgChecksum) // same layout as the data frame

	cgReceive := newBusGroup(dg, "LIN_ReceiveError", blocks.BusLin, "LIN")
	w.createLinReceiveErrorChannels(cgReceive)

	cgSync := newBusGroup(dg, "LIN_SyncError", blocks.BusLin, "LIN")
	w.createLinSyncErrorChannels(cgSync)

	cgTransmit := newBusGroup(dg, "LIN_TransmissionError", blocks.BusLin, "LIN")
	w.createLinTransmissionErrorChannels(cgTransmit)

	cgWakeUp := newBusGroup(dg, "LIN_WakeUp", blocks.BusLin, "LIN")
	w.createLinWakeUpChannels(cgWakeUp)

	cgSpike := newBusGroup(dg, "LIN_Spike", blocks.BusLin, "LIN")
	w.createLinSpikeChannels(cgSpike)

	cgLongDom := newBusGroup(dg, "LIN_LongDom", blocks.BusLin, "LIN")
	w.createLinLongDomChannels(cgLongDom)
}

// createLinFrameChannels lays out the LIN data frame (and checksum error,
// which shares it). The data bytes are stored MLSD style inside the
// record, max 8 bytes.
func (w *Writer) createLinFrameChannels(cg *blocks.CG) {
	mandatory := w.mandatoryOnly
	name := cg.Name
	var size uint32 = 36
	if mandatory {
		size = 11
	}
	frame := newFrameChannel(cg, size)

	makeSubChannel(frame, name+".BusChannel", 8, 0, 6)
	makeSubChannel(frame, name+".ID", 8+1, 0, 6)
	dir := makeBitChannel(frame, name+".Dir", 8+1, 7)
	makeDirConversion(dir)
	makeSubChannel(frame, name+".ReceivedDataByteCount", 8+2, 0, 4)
	length := makeSubChannel(frame, name+".DataLength", 8+2, 4, 4)

	dataBytes := frame.NewComposition(name + ".DataBytes")
	dataBytes.Type = blocks.ChannelTypeMaxLength
	dataBytes.Sync = blocks.ChannelSyncNone
	dataBytes.DataType = blocks.DataTypeByteArray
	dataBytes.Flags = blocks.CnFlagBusEvent
	dataBytes.ByteOffset = 11
	dataBytes.BitCount = 8 * 8
	dataBytes.MlsdLength = length

	if mandatory {
		return
	}
	makeSubChannel(frame, name+".Checksum", 19, 0, 8)
	crcModel := makeSubChannel(frame, name+".ChecksumModel", 8, 6, 2)
	crcModel.DataType = blocks.DataTypeSignedLe
	makeSubChannel(frame, name+".SOF", 20, 0, 64)
	baudrate := makeSubChannel(frame, name+".Baudrate", 28, 0, 32)
	baudrate.DataType = blocks.DataTypeFloatLe
	response := makeSubChannel(frame, name+".ResponseBaudrate", 32, 0, 32)
	response.DataType = blocks.DataTypeFloatLe
	makeSubChannel(frame, name+".BreakLength", 36, 0, 32)
	makeSubChannel(frame, name+".BreakDelimiterLength", 40, 0, 32)
}

func (w *Writer) createLinReceiveErrorChannels(cg *blocks.CG) {
	mandatory := w.mandatoryOnly
	name := cg.Name
	var size uint32 = 35
	if mandatory {
		size = 2
	}
	frame := newFrameChannel(cg, size)

	makeSubChannel(frame, name+".BusChannel", 8, 0, 6)
	makeSubChannel(frame, name+".ID", 8+1, 0, 6)

	if mandatory {
		return
	}
	makeSubChannel(frame, name+".ReceivedDataByteCount", 8+2, 0, 4)
	length := makeSubChannel(frame, name+".DataLength", 8+2, 4, 4)
	makeSubChannel(frame, name+".Checksum", 8+3, 0, 8)
	makeSubChannel(frame, name+".SpecifiedDataByteCount", 8+4, 0, 4)

	dataBytes := frame.NewComposition(name + ".DataBytes")
	dataBytes.Type = blocks.ChannelTypeMaxLength
	dataBytes.Sync = blocks.ChannelSyncNone
	dataBytes.DataType = blocks.DataTypeByteArray
	dataBytes.Flags = blocks.CnFlagBusEvent
	dataBytes.ByteOffset = 13
	dataBytes.BitCount = 8 * 6
	dataBytes.MlsdLength = length

	crcModel := makeSubChannel(frame, name+".ChecksumModel", 8, 6, 2)
	crcModel.DataType = blocks.DataTypeSignedLe
	makeSubChannel(frame, name+".SOF", 19, 0, 64)
	baudrate := makeSubChannel(frame, name+".Baudrate", 27, 0, 32)
	baudrate.DataType = blocks.DataTypeFloatLe
	response := makeSubChannel(frame, name+".ResponseBaudrate", 31, 0, 32)
	response.DataType = blocks.DataTypeFloatLe
	makeSubChannel(frame, name+".BreakLength", 35, 0, 32)
	makeSubChannel(frame, name+".BreakDelimiterLength", 39, 0, 32)
}

func (w *Writer) createLinSyncErrorChannels(cg *blocks.CG) {
	mandatory := w.mandatoryOnly
	name := cg.Name
	var size uint32 = 21
	if mandatory {
		size = 5
	}
	frame := newFrameChannel(cg, size)

	makeSubChannel(frame, name+".BusChannel", 8, 0, 6)
	baudrate := makeSubChannel(frame, name+".Baudrate", 8+1, 0, 32)
	baudrate.DataType = blocks.DataTypeFloatLe

	if mandatory {
		return
	}
	makeSubChannel(frame, name+".SOF", 13, 0, 64)
	makeSubChannel(frame, name+".BreakLength", 21, 0, 32)
	makeSubChannel(frame, name+".BreakDelimiterLength", 25, 0, 32)
}

func (w *Writer) createLinTransmissionErrorChannels(cg *blocks.CG) {
	mandatory := w.mandatoryOnly
	name := cg.Name
	var size uint32 = 23
	if mandatory {
		size = 2
	}
	frame := newFrameChannel(cg, size)

	makeSubChannel(frame, name+".BusChannel", 8, 0, 6)
	makeSubChannel(frame, name+".ID", 8+1, 0, 6)

	if mandatory {
		return
	}
	makeSubChannel(frame, name+".SpecifiedDataByteCount", 8+2, 0, 4)
	baudrate := makeSubChannel(frame, name+".Baudrate", 11, 0, 32)
	baudrate.DataType = blocks.DataTypeFloatLe
	makeSubChannel(frame, name+".SOF", 15, 0, 64)
	makeSubChannel(frame, name+".BreakLength", 23, 0, 32)
	makeSubChannel(frame, name+".BreakDelimiterLength", 27, 0, 32)
}

func (w *Writer) createLinWakeUpChannels(cg *blocks.CG) {
	mandatory := w.mandatoryOnly
	name := cg.Name
	var size uint32 = 13
	if mandatory {
		size = 1
	}
	frame := newFrameChannel(cg, size)

	makeSubChannel(frame, name+".BusChannel", 8, 0, 6)

	if mandatory {
		return
	}
	baudrate := makeSubChannel(frame, name+".Baudrate", 8+1, 0, 32)
	baudrate.DataType = blocks.DataTypeFloatLe
	makeSubChannel(frame, name+".SOF", 13, 0, 64)
}

func (w *Writer) createLinSpikeChannels(cg *blocks.CG) {
	mandatory := w.mandatoryOnly
	name := cg.Name
	var size uint32 = 13
	if mandatory {
		size = 1
	}
	frame := newFrameChannel(cg, size)

	makeSubChannel(frame, name+".BusChannel", 8, 0, 6)

	if mandatory {
		return
	}
	baudrate := makeSubChannel(frame, name+".Baudrate", 8+1, 0, 32)
	baudrate.DataType = blocks.DataTypeFloatLe
	makeSubChannel(frame, name+".SOF", 13, 0, 64)
}

func (w *Writer) createLinLongDomChannels(cg *blocks.CG) {
	mandatory := w.mandatoryOnly
	name := cg.Name
	var size uint32 = 18
	if mandatory {
		size = 2
	}
	frame := newFrameChannel(cg, size)

	makeSubChannel(frame, name+".BusChannel", 8, 0, 6)
	state := makeSubChannel(frame, name+".State", 8+1, 4, 2)
	stateConv := state.NewConversion()
	stateConv.Type = blocks.ConversionValueToText
	stateConv.SetParameter(0, 0.0)
	stateConv.SetParameter(1, 1.0)
	stateConv.SetParameter(2, 2.0)
	stateConv.SetTextRef(0, "First Detection")
	stateConv.SetTextRef(1, "Cyclic Report")
	stateConv.SetTextRef(2, "End of Detection")
	stateConv.SetTextRef(3, "") // default text

	if mandatory {
		return
	}
	baudrate := makeSubChannel(frame, name+".Baudrate", 10, 0, 32)
	baudrate.DataType = blocks.DataTypeFloatLe
	makeSubChannel(frame, name+".SOF", 14, 0, 64)
	makeSubChannel(frame, name+".Length", 22, 0, 32)
}

// ---------------------------------------------------------------------
// Ethernet

func (w *Writer) createEthConfig(dg *blocks.DG) {
	cgFrame := newBusGroup(dg, "ETH_Frame", blocks.BusEthernet, "Ethernet")
	w.createEthFrameChannels(cgFrame)
	if w.storage == VlsdStorage {
		if dataBytes := cgFrame.GetChannel("ETH_Frame.DataBytes"); dataBytes != nil {
			addVlsdGroup(dg, dataBytes)
		}
	}

	cgChecksum := newBusGroup(dg, "ETH_ChecksumError", blocks.BusEthernet, "Ethernet")
	w.createEthChecksumErrorChannels(cgChecksum)
	if w.storage == VlsdStorage && !w.mandatoryOnly {
		if dataBytes := cgChecksum.GetChannel("ETH_ChecksumError.DataBytes"); dataBytes != nil {
			addVlsdGroup(dg, dataBytes)
		}
	}

	cgLength := newBusGroup(dg, "ETH_LengthError", blocks.BusEthernet, "Ethernet")
	w.createEthShortErrorChannels(cgLength)
	if w.storage == VlsdStorage && !w.mandatoryOnly {
		if dataBytes := cgLength.GetChannel("ETH_LengthError.DataBytes"); dataBytes != nil {
			addVlsdGroup(dg, dataBytes)
		}
	}

	cgReceive := newBusGroup(dg, "ETH_ReceiveError", blocks.BusEthernet, "Ethernet")
	w.createEthShortErrorChannels(cgReceive)
	if w.storage == VlsdStorage && !w.mandatoryOnly {
		if dataBytes := cgReceive.GetChannel("ETH_ReceiveError.DataBytes"); dataBytes != nil {
			addVlsdGroup(dg, dataBytes)
		}
	}
}

func (w *Writer) createEthFrameChannels(cg *blocks.CG) {
	mandatory := w.mandatoryOnly
	name := cg.Name
	var size uint32 = 33
	if mandatory {
		size = 27
	}
	frame := newFrameChannel(cg, size)

	makeSubChannel(frame, name+".BusChannel", 8, 0, 4)
	dir := makeBitChannel(frame, name+".Dir", 8, 7)
	makeDirConversion(dir)

	source := makeSubChannel(frame, name+".Source", 8+1, 0, 48)
	source.DataType = blocks.DataTypeByteArray
	destination := makeSubChannel(frame, name+".Destination", 8+7, 0, 48)
	destination.DataType = blocks.DataTypeByteArray
	makeSubChannel(frame, name+".EthType", 8+13, 0, 16)
	makeSubChannel(frame, name+".ReceivedDataByteCount", 8+15, 0, 16)
	makeSubChannel(frame, name+".DataLength", 8+17, 0, 16)

	dataBytes := frame.NewComposition(name + ".DataBytes")
	dataBytes.Type = blocks.ChannelTypeVariableLength
	dataBytes.Sync = blocks.ChannelSyncNone
	dataBytes.DataType = blocks.DataTypeByteArray
	dataBytes.Flags = blocks.CnFlagBusEvent
	dataBytes.ByteOffset = 8 + 19
	dataBytes.BitCount = 8 * 8

	if mandatory {
		return
	}
	makeSubChannel(frame, name+".CRC", 8+27, 0, 32)
	makeSubChannel(frame, name+".PadByteCount", 8+31, 0, 16)
}

func (w *Writer) createEthChecksumErrorChannels(cg *blocks.CG) {
	mandatory := w.mandatoryOnly
	name := cg.Name
	var size uint32 = 37
	if mandatory {
		size = 25
	}
	frame := newFrameChannel(cg, size)

	makeSubChannel(frame, name+".BusChannel", 8, 0, 4)
	dir := makeBitChannel(frame, name+".Dir", 8, 7)
	makeDirConversion(dir)

	source := makeSubChannel(frame, name+".Source", 8+1, 0, 48)
	source.DataType = blocks.DataTypeByteArray
	destination := makeSubChannel(frame, name+".Destination", 8+7, 0, 48)
	destination.DataType = blocks.DataTypeByteArray
	makeSubChannel(frame, name+".EthType", 8+13, 0, 16)
	makeSubChannel(frame, name+".DataLength", 8+15, 0, 16)
	makeSubChannel(frame, name+".CRC", 8+17, 0, 32)
	makeSubChannel(frame, name+".ExpectedCRC", 8+21, 0, 32)

	if mandatory {
		return
	}
	dataBytes := frame.NewComposition(name + ".DataBytes")
	dataBytes.Type = blocks.ChannelTypeVariableLength
	dataBytes.Sync = blocks.ChannelSyncNone
	dataBytes.DataType = blocks.DataTypeByteArray
	dataBytes.Flags = blocks.CnFlagBusEvent
	dataBytes.ByteOffset = 8 + 25
	dataBytes.BitCount = 8 * 8

	makeSubChannel(frame, name+".ReceivedDataByteCount", 8+33, 0, 16)
	makeSubChannel(frame, name+".PadByteCount", 8+35, 0, 16)
}

// createEthShortErrorChannels lays out the length error and receive error
// groups, which share one frame shape.
func (w *Writer) createEthShortErrorChannels(cg *blocks.CG) {
	mandatory := w.mandatoryOnly
	name := cg.Name
	var size uint32 = 33
	if mandatory {
		size = 17
	}
	frame := newFrameChannel(cg, size)

	makeSubChannel(frame, name+".BusChannel", 8, 0, 4)
	dir := makeBitChannel(frame, name+".Dir", 8, 7)
	makeDirConversion(dir)

	source := makeSubChannel(frame, name+".Source", 8+1, 0, 48)
	source.DataType = blocks.DataTypeByteArray
	destination := makeSubChannel(frame, name+".Destination", 8+7, 0, 48)
	destination.DataType = blocks.DataTypeByteArray
	makeSubChannel(frame, name+".EthType", 8+13, 0, 16)
	makeSubChannel(frame, name+".ReceivedDataByteCount", 8+15, 0, 16)

	if mandatory {
		return
	}
	makeSubChannel(frame, name+".DataLength", 8+17, 0, 16)

	dataBytes := frame.NewComposition(name + ".DataBytes")
	dataBytes.Type = blocks.ChannelTypeVariableLength
	dataBytes.Sync = blocks.ChannelSyncNone
	dataBytes.DataType = blocks.DataTypeByteArray
	dataBytes.Flags = blocks.CnFlagBusEvent
	dataBytes.ByteOffset = 8 + 19
	dataBytes.BitCount = 8 * 8

	makeSubChannel(frame, name+".CRC", 8+27, 0, 32)
	makeSubChannel(frame, name+".PadByteCount", 8+31, 0, 16)
}
