package gomdf

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ihedvall/gomdf/blocks"
	"github.com/ihedvall/gomdf/clog"
	"github.com/ihedvall/gomdf/errs"
)

// StorageType selects how variable length signal data is stored.
type StorageType uint8

const (
	// FixedLengthStorage keeps variable payloads in channel owned SD
	// streams; the fixed record stores a byte offset into the stream.
	FixedLengthStorage StorageType = iota
	// VlsdStorage stores each payload as a record of a sibling VLSD
	// channel group.
	VlsdStorage
	// MlsdStorage reserves the maximum payload size inside the fixed
	// record.
	MlsdStorage
)

// WriteState is the measurement state of a writer.
type WriteState uint32

const (
	// StateCreate: the file does not exist yet; the block graph is being
	// configured.
	StateCreate WriteState = iota
	// StateInit: structural blocks are on disk; samples are queued and
	// trimmed against the pre-trigger window.
	StateInit
	// StateStartMeas: the measurement runs; the flush goroutine drains
	// the queue to disk.
	StateStartMeas
	// StateStopMeas: the stop time is set; draining continues up to it.
	StateStopMeas
	// StateFinalize: all counters are patched and the file is finalized.
	StateFinalize
)

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithCompression enables DEFLATE framed data blocks (HL/DL/DZ chain).
func WithCompression(on bool) WriterOption {
	return func(w *Writer) { w.compressData = on }
}

// WithStorageType selects the variable length storage discipline used by
// the bus configurator.
func WithStorageType(storage StorageType) WriterOption {
	return func(w *Writer) { w.storage = storage }
}

// WithMaxLength sets the reserved payload size for MLSD storage.
func WithMaxLength(maxLength uint32) WriterOption {
	return func(w *Writer) { w.maxLength = maxLength }
}

// WithPreTrigger keeps the given window of samples queued before the
// measurement start, so the file captures events preceding the trigger.
func WithPreTrigger(window time.Duration) WriterOption {
	return func(w *Writer) { w.preTrigNs.Store(uint64(window.Nanoseconds())) }
}

// WithMandatoryMembersOnly restricts the bus configurator to the channels
// the bus logging standard mandates.
func WithMandatoryMembersOnly() WriterOption {
	return func(w *Writer) { w.mandatoryOnly = true }
}

// WithQueueLimit bounds the sample queue. On overflow the oldest queued
// sample is dropped with a warning, pre-trigger samples included; the
// producer never blocks.
func WithQueueLimit(maxSamples int) WriterOption {
	return func(w *Writer) { w.queueLimit = maxSamples }
}

// Writer builds an MDF 4 measurement file: the block graph is configured
// through the header factories, serialized by InitMeasurement and fed with
// samples through the streaming interface while a measurement runs.
//
// One background goroutine performs all disk flushing; the public methods
// are safe to call from one producer goroutine. Multiple producers are
// serialized by the queue mutex but their relative order is unspecified.
type Writer struct {
	path string
	id   *blocks.ID
	hd   *blocks.HD

	compressData  bool
	storage       StorageType
	maxLength     uint32
	mandatoryOnly bool
	queueLimit    int

	state       atomic.Uint32
	startTimeNs atomic.Uint64
	stopTimeNs  atomic.Uint64
	preTrigNs   atomic.Uint64
	stopThread  atomic.Bool

	mu    sync.Mutex
	cond  *sync.Cond
	queue []SampleRecord

	flushDone chan struct{}

	// Disk append state, owned by the flush goroutine after
	// InitMeasurement.
	fileEnd    int64
	dataDT     *blocks.DT
	dtSize     uint64
	zipBuf     []byte
	dzLinks    []int64
	dzOffsets  []uint64
	zipOffset  uint64
	vlsdOffset map[uint64]uint64
	sdStreams  map[*blocks.CN][]byte

	log clog.Clog
}

// defaultQueueLimit bounds queue memory when the producer outruns the
// flush goroutine.
const defaultQueueLimit = 1_000_000

// zipBufferMax is the uncompressed size of one DZ block.
const zipBufferMax = 4_000_000

// NewWriter creates a writer for the given path. An existing file is
// parsed so new measurements append to it; otherwise a new file is
// started.
func NewWriter(path string, opts ...WriterOption) (*Writer, error) {
	w := &Writer{
		path:       path,
		maxLength:  8,
		queueLimit: defaultQueueLimit,
		vlsdOffset: make(map[uint64]uint64),
		sdStreams:  make(map[*blocks.CN][]byte),
		log:        clog.NewLogger("gomdf "),
	}
	w.cond = sync.NewCond(&w.mu)
	for _, opt := range opts {
		opt(w)
	}

	if _, err := os.Stat(path); err == nil {
		reader, err := OpenReader(path)
		if err != nil {
			return nil, fmt.Errorf("read existing file: %w", err)
		}
		if err := reader.ReadEverythingButData(); err != nil {
			return nil, fmt.Errorf("read existing file: %w", err)
		}
		w.id = reader.ID()
		w.hd = reader.Header()
		w.state.Store(uint32(StateFinalize))
	} else {
		w.id = blocks.NewID()
		w.hd = blocks.NewHD()
		w.state.Store(uint32(StateCreate))
	}

	return w, nil
}

// Logger exposes the writer log switch for diagnostics.
func (w *Writer) Logger() *clog.Clog { return &w.log }

// Header returns the header block for configuration and its factories.
func (w *Writer) Header() *blocks.HD { return w.hd }

// State returns the current measurement state.
func (w *Writer) State() WriteState { return WriteState(w.state.Load()) }

// StorageType returns the configured variable length storage discipline.
func (w *Writer) StorageType() StorageType { return w.storage }

// MaxLength returns the reserved MLSD payload size.
func (w *Writer) MaxLength() uint32 { return w.maxLength }

// MandatoryMembersOnly reports whether the bus configurator is restricted
// to mandated channels.
func (w *Writer) MandatoryMembersOnly() bool { return w.mandatoryOnly }

// PreTrigTime returns the configured pre-trigger window.
func (w *Writer) PreTrigTime() time.Duration {
	return time.Duration(w.preTrigNs.Load())
}

// CreateDataGroup appends a new data group to the header.
func (w *Writer) CreateDataGroup() *blocks.DG {
	return w.hd.NewDataGroup()
}

// openFile opens the measurement file for appending and patching and
// returns a block writer positioned at the remembered end-of-file.
func (w *Writer) openFile() (*os.File, *blocks.Writer, error) {
	f, err := os.OpenFile(w.path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, nil, err
	}

	return f, blocks.NewWriter(f, w.fileEnd), nil
}

// InitMeasurement serializes the block graph, reserves the data position
// and starts the flush goroutine. Samples queued from now on are trimmed
// to the pre-trigger window until StartMeasurement.
func (w *Writer) InitMeasurement() error {
	switch w.State() {
	case StateCreate, StateFinalize:
	default:
		return fmt.Errorf("%w: InitMeasurement in state %d", errs.ErrInvalidState, w.State())
	}

	flag := os.O_RDWR | os.O_CREATE
	if w.State() == StateCreate {
		flag |= os.O_TRUNC
	}
	f, err := os.OpenFile(w.path, flag, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", w.path, err)
	}
	defer f.Close()

	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	bw := blocks.NewWriter(f, end)

	if err := w.writeStructure(bw); err != nil {
		return err
	}
	if err := w.setDataPosition(bw); err != nil {
		return err
	}
	w.fileEnd = bw.End()

	w.startTimeNs.Store(0)
	w.stopTimeNs.Store(0)
	w.stopThread.Store(false)
	w.state.Store(uint32(StateInit))
	w.flushDone = make(chan struct{})
	go w.flushLoop()

	return nil
}

// writeStructure writes the identification block and the full block graph
// bottom-up. In append mode only data groups without an assigned file
// position are written.
func (w *Writer) writeStructure(bw *blocks.Writer) error {
	appendMode := w.hd.Pos != 0

	// The file is inconsistent until FinalizeMeasurement patches the
	// counters, so it carries the unfinalized magic while measuring.
	w.id.FileID = blocks.MagicUnfinalized
	w.id.StdFlags = blocks.UnfinFlagCgCycleCount | blocks.UnfinFlagDtLength |
		blocks.UnfinFlagVlsdCgCycleCount | blocks.UnfinFlagDlLength
	if err := w.id.Write(bw); err != nil {
		return err
	}

	if !appendMode {
		// Every new file records its creating tool.
		if len(w.hd.FileHistories) == 0 {
			fh := w.hd.NewFileHistory()
			fh.ToolID = "gomdf"
			fh.ToolVendor = "ihedvall"
			fh.ToolVersion = "1.0"
			fh.Description = "Created"
		}

		if err := w.hd.Write(bw); err != nil {
			return err
		}
	}

	// Prepare record layouts before the groups hit the disk.
	for _, dg := range w.hd.DataGroups {
		for _, cg := range dg.Groups {
			cg.PrepareForWriting()
			cg.InitSampleBuffer()
		}
	}

	if appendMode {
		return w.appendNewDataGroups(bw)
	}

	if err := writeChain(bw, w.hd.FileHistories, w.hd.Pos, 1); err != nil {
		return err
	}
	if err := writeChain(bw, w.hd.Attachments, w.hd.Pos, 3); err != nil {
		return err
	}
	if err := writeChain(bw, w.hd.Events, w.hd.Pos, 4); err != nil {
		return err
	}
	if err := writeChain(bw, w.hd.DataGroups, w.hd.Pos, 0); err != nil {
		return err
	}

	return nil
}

// chainItem is any block that writes itself and chains through link 0.
type chainItem interface {
	Write(bw *blocks.Writer) (int64, error)
}

// writeChain writes a sibling chain, patching the parent slot for the
// first element and each element's next link (slot 0) for the rest.
func writeChain[T chainItem](bw *blocks.Writer, items []T, parentPos int64, parentSlot int) error {
	var prevPos int64
	for i, item := range items {
		pos, err := item.Write(bw)
		if err != nil {
			return err
		}
		if i == 0 {
			if err := bw.PatchLink(parentPos, parentSlot, pos); err != nil {
				return err
			}
		} else {
			if err := bw.PatchLink(prevPos, 0, pos); err != nil {
				return err
			}
		}
		prevPos = pos
	}

	return nil
}

// appendNewDataGroups writes data groups created since the last finalize
// and links them after the existing chain.
func (w *Writer) appendNewDataGroups(bw *blocks.Writer) error {
	var lastExisting *blocks.DG
	for _, dg := range w.hd.DataGroups {
		if dg.Pos != 0 {
			lastExisting = dg
			continue
		}
		pos, err := dg.Write(bw)
		if err != nil {
			return err
		}
		if lastExisting == nil {
			if err := bw.PatchLink(w.hd.Pos, 0, pos); err != nil {
				return err
			}
		} else {
			// DG next link is slot 0.
			if err := bw.PatchLink(lastExisting.Pos, 0, pos); err != nil {
				return err
			}
		}
		lastExisting = dg
	}

	return nil
}

// setDataPosition reserves the record data position of the last data
// group. Uncompressed streams get an empty DT block appended so records
// can follow directly; compressed streams are assembled at finalize.
func (w *Writer) setDataPosition(bw *blocks.Writer) error {
	dg := w.hd.LastDataGroup()
	if dg == nil {
		return nil // metadata only file
	}

	// Per measurement append state.
	w.dzLinks = nil
	w.dzOffsets = nil
	w.zipOffset = 0
	w.dtSize = 0
	w.dataDT = nil
	w.vlsdOffset = make(map[uint64]uint64)
	w.sdStreams = make(map[*blocks.CN][]byte)

	if w.compressData {
		w.zipBuf = make([]byte, 0, zipBufferMax)
		return nil
	}

	dt, err := bw.WriteEmptyData(blocks.TagDT)
	if err != nil {
		return err
	}
	if err := dg.PatchDataLink(bw, dt.Pos); err != nil {
		return err
	}
	w.dataDT = dt
	w.dtSize = 0

	return nil
}

// IsFirstMeasurement reports whether the file holds exactly one data
// group, in which case the header start time tracks the measurement
// start.
func (w *Writer) IsFirstMeasurement() bool {
	return len(w.hd.DataGroups) == 1
}
