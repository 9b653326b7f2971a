package blocks

// CA array types.
type ArrayType uint8

const (
	ArrayPlain          ArrayType = 0
	ArrayScalingAxis    ArrayType = 1
	ArrayLookup         ArrayType = 2
	ArrayIntervalAxes   ArrayType = 3
	ArrayClassification ArrayType = 4
)

// CA array storage kinds.
type ArrayStorage uint8

const (
	StorageCnTemplate ArrayStorage = 0
	StorageCgTemplate ArrayStorage = 1
	StorageDgTemplate ArrayStorage = 2
)

// CA is an array descriptor: the alternative composition of a channel
// where the channel's byte range holds an N-dimensional array of equally
// typed elements.
type CA struct {
	Pos int64

	Type       ArrayType
	Storage    ArrayStorage
	Flags      uint32
	ByteOffsetBase int32
	InvalidBitPosBase uint32

	// DimSizes holds the element count per dimension.
	DimSizes []uint64
}

// ElementCount returns the total number of array elements.
func (ca *CA) ElementCount() uint64 {
	total := uint64(1)
	for _, size := range ca.DimSizes {
		total *= size
	}

	return total
}

func (p *Parser) readCA(pos int64) (*CA, error) {
	_, _, data, err := readBlock(p.r, pos, TagCA)
	if err != nil {
		return nil, err
	}
	ca := &CA{Pos: pos}
	if err := requireSize(pos, TagCA, data, 16); err != nil {
		return nil, err
	}
	ca.Type = ArrayType(data[0])
	ca.Storage = ArrayStorage(data[1])
	dims := le.Uint16(data[2:4])
	ca.Flags = le.Uint32(data[4:8])
	ca.ByteOffsetBase = int32(le.Uint32(data[8:12]))
	ca.InvalidBitPosBase = le.Uint32(data[12:16])
	for i := 0; i < int(dims) && 16+8*i+8 <= len(data); i++ {
		ca.DimSizes = append(ca.DimSizes, le.Uint64(data[16+8*i:24+8*i]))
	}

	return ca, nil
}

// Write appends a plain CN-template array descriptor.
func (ca *CA) Write(w *Writer) (int64, error) {
	data := make([]byte, 0, 16+8*len(ca.DimSizes))
	data = append(data, byte(ca.Type), byte(ca.Storage))
	data = le.AppendUint16(data, uint16(len(ca.DimSizes)))
	data = le.AppendUint32(data, ca.Flags)
	data = le.AppendUint32(data, uint32(ca.ByteOffsetBase))
	data = le.AppendUint32(data, ca.InvalidBitPosBase)
	for _, size := range ca.DimSizes {
		data = le.AppendUint64(data, size)
	}

	block := appendHeader(make([]byte, 0, HeaderSize+len(data)), TagCA, nil, len(data))
	block = append(block, data...)

	pos, err := w.Append(block)
	if err != nil {
		return 0, err
	}
	ca.Pos = pos

	return pos, nil
}
