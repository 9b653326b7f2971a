package blocks

// SR is a sample reduction block: down-sampled statistics over a channel
// group's records. For every reduction interval the data stream stores
// three consecutive records (mean, minimum, maximum) using the owning
// group's record layout without record ids.
type SR struct {
	Pos int64

	CycleCount uint64
	// Interval is the reduction interval length in the sync dimension
	// (seconds for time synced groups).
	Interval float64
	Sync     SyncType
	Flags    uint8

	// DataLink points at the RD/DL/DZ stream of reduced records.
	DataLink int64

	nextLink int64
}

// SR flags.
const SrFlagInvalidBytes uint8 = 0x01

func (p *Parser) readSR(pos int64) (*SR, error) {
	_, links, data, err := readBlock(p.r, pos, TagSR)
	if err != nil {
		return nil, err
	}
	if err := p.enter(pos, TagSR); err != nil {
		return nil, err
	}
	sr := &SR{
		Pos:      pos,
		nextLink: link(links, 0),
		DataLink: link(links, 1),
	}
	if err := requireSize(pos, TagSR, data, 24); err != nil {
		return nil, err
	}
	sr.CycleCount = le.Uint64(data[0:8])
	sr.Interval = f64frombits(le.Uint64(data[8:16]))
	sr.Sync = SyncType(data[16])
	sr.Flags = data[17]

	return sr, nil
}

// ReadReduced streams the reduced record triplets of the reduction. The
// callback receives the interval index and the mean, min and max records.
func (sr *SR) ReadReduced(p *Parser, recordSize uint32, emit func(index uint64, mean, min, max []byte) error) error {
	payload, err := p.ReadDataPayload(sr.DataLink)
	if err != nil {
		return err
	}
	size := int(recordSize)
	step := 3 * size
	var index uint64
	for at := 0; at+step <= len(payload); at += step {
		mean := payload[at : at+size]
		minRec := payload[at+size : at+2*size]
		maxRec := payload[at+2*size : at+3*size]
		if err := emit(index, mean, minRec, maxRec); err != nil {
			return err
		}
		index++
	}

	return nil
}

// Write appends the sample reduction block.
func (sr *SR) Write(w *Writer) (int64, error) {
	data := make([]byte, 0, 24)
	data = le.AppendUint64(data, sr.CycleCount)
	data = le.AppendUint64(data, f64bits(sr.Interval))
	data = append(data, byte(sr.Sync), sr.Flags, 0, 0, 0, 0, 0, 0)

	block := appendHeader(make([]byte, 0, HeaderSize+16+24), TagSR,
		[]int64{0, sr.DataLink}, len(data))
	block = append(block, data...)

	pos, err := w.Append(block)
	if err != nil {
		return 0, err
	}
	sr.Pos = pos

	return pos, nil
}
