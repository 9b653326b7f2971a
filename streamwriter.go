package gomdf

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ihedvall/gomdf/blocks"
	"github.com/ihedvall/gomdf/endian"
	"github.com/ihedvall/gomdf/errs"
	"github.com/ihedvall/gomdf/internal/pool"
)

// SampleRecord is one queued sample on its way to disk.
type SampleRecord struct {
	// RecordID selects the target channel group within the last data
	// group.
	RecordID uint64
	// TimestampNs is the absolute sample time in nanoseconds since the
	// Unix epoch. The on-disk master channel stores the delta to the
	// measurement start in seconds.
	TimestampNs uint64
	// Record is the fixed record buffer (without record id prefix).
	Record []byte
	// VlsdData marks a variable length payload in VlsdPayload.
	VlsdData bool
	// VlsdPayload is stored in the VLSD side group or SD stream; the
	// record's index slot is patched with the assigned offset.
	VlsdPayload []byte
	// VlsdIndexAt is the byte offset of the 8 byte index slot inside
	// Record. Zero means the slot is the last 8 bytes of the record.
	VlsdIndexAt int
}

// flushTickInterval is the periodic wake of the flush goroutine so the
// pre-trigger trim runs even when no samples arrive.
const flushTickInterval = 10 * time.Second

var le = endian.GetLittleEndianEngine()

// SaveSample snapshots the channel group's current sample buffer and
// queues it with the given timestamp. Valid in Init, StartMeas and
// StopMeas states.
func (w *Writer) SaveSample(cg *blocks.CG, timestampNs uint64) error {
	return w.enqueue(SampleRecord{
		RecordID:    cg.RecordID,
		TimestampNs: timestampNs,
		Record:      cg.SnapshotRecord(),
	})
}

// SaveVlsdSample queues a sample whose variable length channel payload is
// stored out of record (SD stream or VLSD sibling group). The fixed
// record is snapshot from the group's sample buffer; the payload index
// slot is patched when the payload lands on disk.
func (w *Writer) SaveVlsdSample(cg *blocks.CG, timestampNs uint64, payload []byte) error {
	sample := SampleRecord{
		RecordID:    cg.RecordID,
		TimestampNs: timestampNs,
		Record:      cg.SnapshotRecord(),
		VlsdData:    true,
		VlsdPayload: append([]byte(nil), payload...),
	}
	if cn := cg.FindSdChannel(); cn != nil {
		sample.VlsdIndexAt = int(cn.ByteOffset)
	}

	return w.enqueue(sample)
}

// enqueue adds a sample to the flush queue, applying the soft queue
// limit: when the queue is full the oldest queued sample is dropped,
// whether or not it lies inside the pre-trigger window, rather than
// blocking the producer.
func (w *Writer) enqueue(sample SampleRecord) error {
	switch w.State() {
	case StateInit, StateStartMeas, StateStopMeas:
	default:
		return fmt.Errorf("%w: SaveSample before InitMeasurement", errs.ErrInvalidState)
	}

	w.mu.Lock()
	if w.queueLimit > 0 && len(w.queue) >= w.queueLimit {
		w.queue = w.queue[1:]
		w.log.Warn("sample queue overflow, dropping oldest sample")
	}
	w.queue = append(w.queue, sample)
	w.mu.Unlock()
	w.cond.Signal()

	return nil
}

// StartMeasurement marks the measurement start. Queued pre-trigger
// samples older than the window are dropped; the rest are flushed with
// master times relative to the start.
func (w *Writer) StartMeasurement(startTimeNs uint64) {
	w.mu.Lock()
	w.startTimeNs.Store(startTimeNs)
	w.stopTimeNs.Store(0)
	w.state.Store(uint32(StateStartMeas))
	w.mu.Unlock()

	// A better start time than the file creation time for the first
	// measurement.
	if w.IsFirstMeasurement() {
		w.hd.StartTimeNs = startTimeNs
	}
	w.cond.Signal()
}

// StopMeasurement records the stop time; queued samples beyond it are
// discarded while draining continues.
func (w *Writer) StopMeasurement(stopTimeNs uint64) {
	w.mu.Lock()
	w.stopTimeNs.Store(stopTimeNs)
	w.state.Store(uint32(StateStopMeas))
	w.mu.Unlock()
	w.cond.Signal()
}

// FinalizeMeasurement stops the flush goroutine, drains the remaining
// samples, patches all lengths and counters and rewrites the
// identification block as finalized.
func (w *Writer) FinalizeMeasurement() error {
	if w.flushDone == nil {
		return fmt.Errorf("%w: FinalizeMeasurement before InitMeasurement", errs.ErrInvalidState)
	}
	w.mu.Lock()
	w.stopThread.Store(true)
	w.mu.Unlock()
	w.cond.Signal()
	<-w.flushDone
	w.flushDone = nil

	f, bw, err := w.openFile()
	if err != nil {
		return fmt.Errorf("finalize %s: %w", w.path, err)
	}
	defer f.Close()

	if err := w.finalizeBlocks(bw); err != nil {
		return err
	}
	w.fileEnd = bw.End()
	w.state.Store(uint32(StateFinalize))

	return nil
}

// finalizeBlocks writes the outstanding data structures and counter
// patches of the last data group.
func (w *Writer) finalizeBlocks(bw *blocks.Writer) error {
	dg := w.hd.LastDataGroup()
	if dg == nil {
		// Metadata only file: just finalize the identification block.
		w.id.FileID = blocks.MagicFinalized
		w.id.StdFlags = 0
		w.id.CustomFlags = 0
		return w.id.Write(bw)
	}

	// Compressed mode: flush the partial buffer, then the DL/HL spine.
	if w.compressData {
		if err := w.flushZipBuffer(bw, true); err != nil {
			return err
		}
		if len(w.dzLinks) > 0 {
			dl, err := bw.WriteDL(w.dzLinks, w.dzOffsets)
			if err != nil {
				return err
			}
			hl, err := bw.WriteHL(dl.Pos)
			if err != nil {
				return err
			}
			if err := dg.PatchDataLink(bw, hl.Pos); err != nil {
				return err
			}
		}
	} else if w.dataDT != nil {
		w.dataDT.Size = w.dtSize
		if err := w.dataDT.PatchLength(bw); err != nil {
			return err
		}
	}

	// Channel owned SD streams.
	for cn, stream := range w.sdStreams {
		sd, err := bw.WriteData(blocks.TagSD, stream)
		if err != nil {
			return err
		}
		if err := cn.PatchDataLink(bw, sd.Pos); err != nil {
			return err
		}
	}

	// Cycle counters and VLSD sizes.
	for _, cg := range dg.Groups {
		if err := cg.PatchCycleCount(bw); err != nil {
			return err
		}
		if cg.IsVlsd() {
			if err := cg.PatchVlsdSize(bw, w.vlsdOffset[cg.RecordID]); err != nil {
				return err
			}
		}
	}

	// Start time may have been improved by StartMeasurement.
	if err := w.hd.PatchStartTime(bw, w.hd.StartTimeNs); err != nil {
		return err
	}

	// The file is consistent now.
	w.id.FileID = blocks.MagicFinalized
	w.id.StdFlags = 0
	w.id.CustomFlags = 0

	return w.id.Write(bw)
}

// flushLoop is the single consumer goroutine: it waits on the queue
// condition with a periodic tick, trims in Init state and drains to disk
// once the measurement runs.
func (w *Writer) flushLoop() {
	defer close(w.flushDone)

	for {
		w.mu.Lock()
		if !w.stopThread.Load() {
			waitWithTimeout(w.cond, flushTickInterval)
		}
		stop := w.stopThread.Load()
		w.mu.Unlock()

		switch w.State() {
		case StateInit:
			w.mu.Lock()
			w.trimQueue()
			w.mu.Unlock()

		case StateStartMeas, StateStopMeas:
			if err := w.saveQueue(); err != nil {
				w.log.Error("flush failed: %v", err)
			}

		default:
			// No measurement running; drop queued samples.
			w.mu.Lock()
			w.queue = nil
			w.mu.Unlock()
		}

		if stop {
			break
		}
	}

	// Final drain before the goroutine exits.
	if err := w.saveQueue(); err != nil {
		w.log.Error("final flush failed: %v", err)
	}
}

// waitWithTimeout waits on the condition variable, waking after at most
// the given duration. The condition's mutex must be held.
func waitWithTimeout(cond *sync.Cond, timeout time.Duration) {
	timer := time.AfterFunc(timeout, cond.Signal)
	defer timer.Stop()
	cond.Wait()
}

// trimQueue drops samples older than the pre-trigger window, measured
// against the newest queued sample. At least two samples are kept so the
// master time delta at start stays meaningful. The queue mutex must be
// held.
func (w *Writer) trimQueue() {
	preTrig := w.preTrigNs.Load()
	for len(w.queue) > 2 {
		newest := w.queue[len(w.queue)-1].TimestampNs
		oldest := w.queue[0].TimestampNs
		if newest-oldest <= preTrig {
			break
		}
		w.queue = w.queue[1:]
	}
}

// saveQueue drains the queue to disk using the configured flush path.
func (w *Writer) saveQueue() error {
	if w.compressData {
		return w.saveQueueCompressed()
	}
	return w.saveQueueUncompressed()
}

// takeSamples removes and returns the drainable queue prefix: samples
// inside the pre-trigger window and not beyond the stop time.
func (w *Writer) takeSamples() []SampleRecord {
	startTime := w.startTimeNs.Load()
	preTrig := w.preTrigNs.Load()
	stopTime := w.stopTimeNs.Load()

	w.mu.Lock()
	defer w.mu.Unlock()

	taken := make([]SampleRecord, 0, len(w.queue))
	for _, sample := range w.queue {
		if preTrig > 0 {
			if startTime > preTrig && sample.TimestampNs <= startTime-preTrig {
				continue // before the pre-trigger window
			}
		} else if sample.TimestampNs < startTime {
			continue // before the measurement start
		}
		if stopTime > 0 && sample.TimestampNs > stopTime {
			continue // after the measurement stop
		}
		taken = append(taken, sample)
	}
	w.queue = w.queue[:0]

	return taken
}

// writeMasterTime stores the sample time, relative to the measurement
// start, into the group's master time channel.
func (w *Writer) writeMasterTime(cg *blocks.CG, sample *SampleRecord) {
	master := cg.MasterChannel()
	if master == nil || master.BitCount != 64 || master.DataType != blocks.DataTypeFloatLe {
		return
	}
	start := w.startTimeNs.Load()
	relative := float64(int64(sample.TimestampNs-start)) / 1e9
	end := master.ByteOffset + 8
	if uint64(end) <= uint64(len(sample.Record)) {
		le.PutUint64(sample.Record[master.ByteOffset:end], math.Float64bits(relative))
	}
}

// patchVlsdIndex stores the assigned VLSD offset into the record's index
// slot: at the explicit offset when set, otherwise the last 8 bytes.
func patchVlsdIndex(sample *SampleRecord, index uint64) {
	record := sample.Record
	at := sample.VlsdIndexAt
	if at == 0 {
		at = len(record) - 8
	}
	if at < 0 || at+8 > len(record) {
		return
	}
	le.PutUint64(record[at:at+8], index)
}

// saveQueueUncompressed appends the drainable samples to the growing DT
// block. VLSD payloads are appended (as side group records or SD stream
// entries) before the fixed record so the patched index always points at
// persisted data.
func (w *Writer) saveQueueUncompressed() error {
	samples := w.takeSamples()
	if len(samples) == 0 {
		return nil
	}
	dg := w.hd.LastDataGroup()
	if dg == nil || w.dataDT == nil {
		return errs.ErrNoDataGroup
	}

	f, bw, err := w.openFile()
	if err != nil {
		return err
	}
	defer f.Close()

	appendAt := w.dataDT.DataPos() + int64(w.dtSize)
	batch := pool.GetFlushBuffer()
	defer pool.PutFlushBuffer(batch)
	idSize := dg.RecordIDSize

	for i := range samples {
		sample := &samples[i]
		cg := dg.FindGroup(sample.RecordID)
		if cg == nil {
			w.log.Warn("dropping sample with unknown record id %d", sample.RecordID)
			continue
		}
		w.writeMasterTime(cg, sample)

		if sample.VlsdData {
			batch.B = w.appendVlsdPayload(batch.B, dg, cg, sample, idSize)
		}

		batch.B = appendRecordID(batch.B, idSize, sample.RecordID)
		batch.B = append(batch.B, sample.Record...)
		cg.CycleCount++

		// Bound the in-memory batch.
		if batch.Len() >= zipBufferMax {
			if err := bw.WriteAt(batch.Bytes(), appendAt); err != nil {
				return err
			}
			appendAt += int64(batch.Len())
			batch.Reset()
		}
	}
	if batch.Len() > 0 {
		if err := bw.WriteAt(batch.Bytes(), appendAt); err != nil {
			return err
		}
		appendAt += int64(batch.Len())
	}

	w.dtSize = uint64(appendAt - w.dataDT.DataPos())
	w.dataDT.Size = w.dtSize
	if err := w.dataDT.PatchLength(bw); err != nil {
		return err
	}
	w.fileEnd = bw.End()

	return nil
}

// appendVlsdPayload stores a sample's variable payload and patches the
// record's index slot. VLSD-in-CG payloads become records of the sibling
// group inside the same stream; SD payloads go to the channel's in-memory
// stream written at finalize.
func (w *Writer) appendVlsdPayload(buf []byte, dg *blocks.DG, cg *blocks.CG, sample *SampleRecord, idSize uint8) []byte {
	side := dg.FindGroup(sample.RecordID + 1)
	if side != nil && !side.IsVlsd() {
		side = nil
	}
	if side != nil {
		index := w.vlsdOffset[side.RecordID]
		patchVlsdIndex(sample, index)
		buf = appendRecordID(buf, idSize, side.RecordID)
		buf = le.AppendUint32(buf, uint32(len(sample.VlsdPayload)))
		buf = append(buf, sample.VlsdPayload...)
		w.vlsdOffset[side.RecordID] = index + 4 + uint64(len(sample.VlsdPayload))
		side.CycleCount++
		return buf
	}

	if cn := cg.FindSdChannel(); cn != nil {
		stream := w.sdStreams[cn]
		index := uint64(len(stream))
		patchVlsdIndex(sample, index)
		stream = le.AppendUint32(stream, uint32(len(sample.VlsdPayload)))
		stream = append(stream, sample.VlsdPayload...)
		w.sdStreams[cn] = stream
		return buf
	}

	w.log.Warn("sample with VLSD payload but no VLSD group or SD channel (record id %d)", sample.RecordID)

	return buf
}

func appendRecordID(buf []byte, idSize uint8, recordID uint64) []byte {
	switch idSize {
	case 1:
		return append(buf, byte(recordID))
	case 2:
		return le.AppendUint16(buf, uint16(recordID))
	case 4:
		return le.AppendUint32(buf, uint32(recordID))
	case 8:
		return le.AppendUint64(buf, recordID)
	default:
		return buf
	}
}

// saveQueueCompressed accumulates records in the 4 MB zip buffer and cuts
// a DZ block whenever it fills. Unless finalizing, a partial buffer stays
// in memory for the next pass.
func (w *Writer) saveQueueCompressed() error {
	samples := w.takeSamples()
	if len(samples) == 0 {
		return nil
	}
	dg := w.hd.LastDataGroup()
	if dg == nil {
		return errs.ErrNoDataGroup
	}

	f, bw, err := w.openFile()
	if err != nil {
		return err
	}
	defer f.Close()

	idSize := dg.RecordIDSize
	for i := range samples {
		sample := &samples[i]
		cg := dg.FindGroup(sample.RecordID)
		if cg == nil {
			w.log.Warn("dropping sample with unknown record id %d", sample.RecordID)
			continue
		}
		w.writeMasterTime(cg, sample)

		// Cut the DZ block before this sample would push the buffer past
		// its uncompressed limit.
		needed := len(sample.Record) + int(idSize)
		if sample.VlsdData {
			needed += len(sample.VlsdPayload) + 4 + int(idSize)
		}
		if len(w.zipBuf)+needed >= zipBufferMax {
			if err := w.flushZipBuffer(bw, false); err != nil {
				return err
			}
		}

		if sample.VlsdData {
			w.zipBuf = w.appendVlsdPayload(w.zipBuf, dg, cg, sample, idSize)
		}
		w.zipBuf = appendRecordID(w.zipBuf, idSize, sample.RecordID)
		w.zipBuf = append(w.zipBuf, sample.Record...)
		cg.CycleCount++
	}
	w.fileEnd = bw.End()

	return nil
}

// flushZipBuffer cuts the accumulated buffer into a DZ block (or, for a
// tiny finalize remainder, a plain DT where compression would waste
// space) and records it for the data list.
func (w *Writer) flushZipBuffer(bw *blocks.Writer, finalize bool) error {
	if len(w.zipBuf) == 0 {
		return nil
	}

	var pos int64
	if finalize && len(w.zipBuf) <= 100 {
		dt, err := bw.WriteData(blocks.TagDT, w.zipBuf)
		if err != nil {
			return err
		}
		pos = dt.Pos
	} else {
		dz, err := bw.WriteCompressedData("DT", w.zipBuf)
		if err != nil {
			return err
		}
		pos = dz.Pos
	}

	w.dzLinks = append(w.dzLinks, pos)
	w.dzOffsets = append(w.dzOffsets, w.zipOffset)
	w.zipOffset += uint64(len(w.zipBuf))
	w.zipBuf = w.zipBuf[:0]
	w.fileEnd = bw.End()

	return nil
}
