// Package gomdf reads and writes ASAM MDF (Measurement Data Format)
// version 4 files: the binary container used in automotive testing for
// time series measurement data, bus traffic and metadata.
//
// # Reading
//
//	reader, _ := gomdf.OpenReader("meas.mf4")
//	_ = reader.ReadEverythingButData()
//	dg := reader.Header().DataGroups[0]
//	cg := dg.Groups[0]
//	obs, _ := reader.CreateChannelObserver(dg, cg, cg.Channels[1])
//	_ = reader.ReadData(dg)
//	value, valid := obs.EngFloatAt(0)
//
// # Writing
//
//	writer, _ := gomdf.NewWriter("log.mf4",
//		gomdf.WithStorageType(gomdf.VlsdStorage))
//	dg, _ := writer.CreateBusLogConfiguration(blocks.BusCan)
//	_ = writer.InitMeasurement()
//	writer.StartMeasurement(uint64(time.Now().UnixNano()))
//	// feed CAN frames with writer.SaveCanMessage(...)
//	writer.StopMeasurement(uint64(time.Now().UnixNano()))
//	_ = writer.FinalizeMeasurement()
//
// The block catalog lives in the blocks package; endian and bit level
// extraction in endian; the DEFLATE codec for compressed data blocks in
// compress.
package gomdf

import (
	"os"

	"github.com/ihedvall/gomdf/blocks"
)

// IsMdfFile reports whether the file at path starts with a valid MDF
// identification block.
func IsMdfFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	id := &blocks.ID{}

	return id.Read(f) == nil
}
