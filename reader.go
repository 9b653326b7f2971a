package gomdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/ihedvall/gomdf/blocks"
	"github.com/ihedvall/gomdf/endian"
	"github.com/ihedvall/gomdf/errs"
)

// errStopScan aborts a record scan when an observer asked to stop.
var errStopScan = errors.New("observer stop")

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithMemoryMapped makes every read pass map the file read-only instead of
// issuing positioned reads. Useful for repeated scans over large files.
func WithMemoryMapped() ReaderOption {
	return func(r *Reader) { r.useMmap = true }
}

// Reader parses MDF 4 files: the identification block, the block graph and
// the record data streams. The file handle is only held for the duration
// of each Read call, so a file being written by a streaming writer can be
// read between flushes.
type Reader struct {
	path    string
	useMmap bool

	id *blocks.ID
	hd *blocks.HD

	observers map[*blocks.DG][]SampleObserver
}

// OpenReader opens a measurement file and parses its identification block.
func OpenReader(path string, opts ...ReaderOption) (*Reader, error) {
	r := &Reader{
		path:      path,
		observers: make(map[*blocks.DG][]SampleObserver),
	}
	for _, opt := range opts {
		opt(r)
	}

	id := &blocks.ID{}
	if err := r.withFile(func(ra io.ReaderAt) error {
		return id.Read(ra)
	}); err != nil {
		return nil, err
	}
	r.id = id

	return r, nil
}

// ID returns the parsed identification block.
func (r *Reader) ID() *blocks.ID { return r.id }

// IsFinalized reports whether the file id marks a finalized file.
func (r *Reader) IsFinalized() bool { return r.id.Finalized() }

// Header returns the header block, available after ReadHeader.
func (r *Reader) Header() *blocks.HD { return r.hd }

// withFile runs fn over a freshly opened (and optionally memory mapped)
// view of the file.
func (r *Reader) withFile(fn func(ra io.ReaderAt) error) error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", r.path, err)
	}
	defer f.Close()

	if !r.useMmap {
		return fn(f)
	}

	mapped, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		// Fall back to positioned reads; mapping is an optimization only.
		return fn(f)
	}
	defer mapped.Unmap()

	return fn(bytes.NewReader(mapped))
}

// ReadHeader parses the header block only.
func (r *Reader) ReadHeader() error {
	return r.withFile(func(ra io.ReaderAt) error {
		hd, err := blocks.NewParser(ra).ReadHD()
		if err != nil {
			return err
		}
		r.hd = hd
		return nil
	})
}

// ReadMeasurementInfo parses the header block and walks the file history,
// attachment, event and data group chains without loading channel groups
// or record data.
func (r *Reader) ReadMeasurementInfo() error {
	return r.withFile(func(ra io.ReaderAt) error {
		p := blocks.NewParser(ra)
		hd, err := p.ReadHD()
		if err != nil {
			return err
		}
		if err := hd.ReadInfo(p); err != nil {
			return err
		}
		r.hd = hd
		return nil
	})
}

// ReadEverythingButData loads the complete block graph: measurement info
// plus every channel group, channel, conversion and source information.
// After this call the graph is fully navigable offline.
func (r *Reader) ReadEverythingButData() error {
	return r.withFile(func(ra io.ReaderAt) error {
		p := blocks.NewParser(ra)
		hd, err := p.ReadHD()
		if err != nil {
			return err
		}
		if err := hd.ReadInfo(p); err != nil {
			return err
		}
		for _, dg := range hd.DataGroups {
			if err := dg.ReadGroups(p); err != nil {
				return err
			}
		}
		r.hd = hd
		return nil
	})
}

// AttachObserver subscribes an observer to a data group's record stream.
// The data group keeps no ownership; detach or drop the reader to release.
func (r *Reader) AttachObserver(dg *blocks.DG, obs SampleObserver) {
	r.observers[dg] = append(r.observers[dg], obs)
}

// DetachObserver removes a previously attached observer.
func (r *Reader) DetachObserver(dg *blocks.DG, obs SampleObserver) {
	list := r.observers[dg]
	for i, o := range list {
		if o == obs {
			r.observers[dg] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// CreateChannelObserver creates a channel observer and attaches it to the
// data group. For VLSD channels storing in an SD stream the stream is
// loaded lazily during ReadData.
func (r *Reader) CreateChannelObserver(dg *blocks.DG, cg *blocks.CG, cn *blocks.CN) (*ChannelObserver, error) {
	if dg.FindGroup(cg.RecordID) != cg {
		return nil, errs.ErrUnknownChannel
	}
	obs := NewChannelObserver(cg, cn)
	r.AttachObserver(dg, obs)

	return obs, nil
}

// ReadData streams the record data of one data group and dispatches every
// record to the attached observers. The pass stops early without error
// when an observer returns false.
func (r *Reader) ReadData(dg *blocks.DG) error {
	observers := r.observers[dg]
	return r.withFile(func(ra io.ReaderAt) error {
		p := blocks.NewParser(ra)

		// Load SD streams for channel observers on VLSD in place channels.
		for _, obs := range observers {
			co, ok := obs.(*ChannelObserver)
			if !ok || co.cn.Type != blocks.ChannelTypeVariableLength {
				continue
			}
			if co.cn.VlsdRecordID == 0 && co.cn.DataLink != 0 && co.sdData == nil {
				sd, err := p.ReadDataPayload(co.cn.DataLink)
				if err != nil {
					return err
				}
				co.sdData = sd
			}
		}

		scan := newRecordScanner(dg, observers)
		err := p.WalkDataBlocks(dg.DataLink, scan.feed)
		if errors.Is(err, errStopScan) {
			return nil
		}
		if err != nil {
			return err
		}

		return scan.finish()
	})
}

// ReadSignalData scans the SD/DL/DZ stream attached to a variable length
// channel and calls emit with every (offset, payload) pair. When offsets
// are given only those entries are reported.
func (r *Reader) ReadSignalData(cn *blocks.CN, emit func(offset uint64, payload []byte) error, offsets ...uint64) error {
	if cn.DataLink == 0 || cn.DataLinkTag == blocks.TagCG {
		return nil
	}
	var wanted map[uint64]bool
	if len(offsets) > 0 {
		wanted = make(map[uint64]bool, len(offsets))
		for _, offset := range offsets {
			wanted[offset] = true
		}
	}

	return r.withFile(func(ra io.ReaderAt) error {
		p := blocks.NewParser(ra)
		data, err := p.ReadDataPayload(cn.DataLink)
		if err != nil {
			return err
		}
		le := endian.GetLittleEndianEngine()
		for offset := uint64(0); offset+4 <= uint64(len(data)); {
			length := uint64(le.Uint32(data[offset : offset+4]))
			end := offset + 4 + length
			if end > uint64(len(data)) {
				return errs.Parse(int64(offset), blocks.TagSD, errs.ErrInvalidBlockLength)
			}
			if wanted == nil || wanted[offset] {
				if err := emit(offset, data[offset+4:end]); err != nil {
					return err
				}
			}
			offset = end
		}
		return nil
	})
}

// ExportAttachment writes an embedded attachment payload to out.
func (r *Reader) ExportAttachment(at *blocks.AT, out string) error {
	return at.Export(out)
}

// recordScanner incrementally splits the uncompressed data stream of a
// data group into records and dispatches them.
type recordScanner struct {
	dg        *blocks.DG
	observers []SampleObserver

	carry []byte
	// sample index per record id for plain groups, running byte offset
	// for VLSD groups.
	sampleIndex map[uint64]uint64
	vlsdOffset  map[uint64]uint64
}

func newRecordScanner(dg *blocks.DG, observers []SampleObserver) *recordScanner {
	return &recordScanner{
		dg:          dg,
		observers:   observers,
		sampleIndex: make(map[uint64]uint64),
		vlsdOffset:  make(map[uint64]uint64),
	}
}

// feed consumes one uncompressed chunk, dispatching every complete record
// and carrying the remainder into the next chunk.
func (s *recordScanner) feed(chunk []byte) error {
	data := chunk
	if len(s.carry) > 0 {
		data = append(s.carry, chunk...)
		s.carry = nil
	}

	le := endian.GetLittleEndianEngine()
	idSize := uint64(s.dg.RecordIDSize)
	at := uint64(0)
	for {
		rest := uint64(len(data)) - at
		if rest < idSize {
			break
		}
		var recordID uint64
		switch s.dg.RecordIDSize {
		case 0:
			if len(s.dg.Groups) == 0 {
				return errs.ErrNoDataGroup
			}
			recordID = s.dg.Groups[0].RecordID
		case 1:
			recordID = uint64(data[at])
		case 2:
			recordID = uint64(le.Uint16(data[at:]))
		case 4:
			recordID = uint64(le.Uint32(data[at:]))
		case 8:
			recordID = le.Uint64(data[at:])
		}
		cg := s.dg.FindGroup(recordID)
		if cg == nil {
			return errs.Parse(int64(at), blocks.TagDT,
				fmt.Errorf("%w: unknown record id %d", errs.ErrInvalidBlockTag, recordID))
		}

		var record []byte
		var consumed uint64
		if cg.IsVlsd() {
			// Length prefixed payload record.
			if rest < idSize+4 {
				break
			}
			length := uint64(le.Uint32(data[at+idSize:]))
			consumed = idSize + 4 + length
			if rest < consumed {
				break
			}
			record = data[at+idSize+4 : at+consumed]
		} else {
			size := uint64(cg.RecordSize())
			consumed = idSize + size
			if rest < consumed {
				break
			}
			record = data[at+idSize : at+consumed]
		}

		index := s.sampleIndex[recordID]
		if cg.IsVlsd() {
			// Dispatch with the running byte offset so VLSD lookups match
			// the offsets stored in the fixed records.
			index = s.vlsdOffset[recordID]
			s.vlsdOffset[recordID] += 4 + uint64(len(record))
			s.sampleIndex[recordID]++
		} else {
			s.sampleIndex[recordID]++
		}

		for _, obs := range s.observers {
			if !obs.OnSample(index, recordID, record) {
				return errStopScan
			}
		}
		at += consumed
	}

	if at < uint64(len(data)) {
		s.carry = append([]byte(nil), data[at:]...)
	}

	return nil
}

// finish verifies that no partial record is left over.
func (s *recordScanner) finish() error {
	if len(s.carry) > 0 {
		return errs.Parse(0, blocks.TagDT, errs.ErrTruncated)
	}
	return nil
}
