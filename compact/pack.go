package compact

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/maspeqc/qcpack/codec"
	"github.com/maspeqc/qcpack/compress"
	"github.com/maspeqc/qcpack/errs"
	"github.com/maspeqc/qcpack/format"
	"github.com/maspeqc/qcpack/internal/pool"
)

// Packed payload layout:
//
//	offset 0  magic "QC"
//	offset 2  version (1)
//	offset 3  kind
//	offset 4  time precision
//	offset 5  value precision
//	offset 6  compression type
//	offset 7  body, compressed with the codec of the compression type
//
// Body:
//
//	uvarint   sample count n
//	n x       zigzag varint delta time ticks
//	n x       zigzag varint value ticks (value * 10^value precision)
//	8 bytes   m/z (float64, big-endian), chromatograms only
//	8 bytes   expected retention time (float64, big-endian), chromatograms only
const (
	packVersion    = 1
	packHeaderSize = 7
)

var packMagic = [2]byte{'Q', 'C'}

type packed struct {
	kind   Kind
	series Series
	mz     float64
	expRT  float64
}

func pack(kind Kind, s Series, mz, expRT float64, ct format.CompressionType, c compress.Codec) ([]byte, error) {
	if len(s.DeltaTimes) != len(s.Values) {
		return nil, fmt.Errorf("%w: %d deltas, %d values", errs.ErrLengthMismatch, len(s.DeltaTimes), len(s.Values))
	}
	if s.TimePrecision < 0 || s.TimePrecision > MaxPrecision || s.ValuePrecision < 0 || s.ValuePrecision > MaxPrecision {
		return nil, fmt.Errorf("%w: precisions %d/%d", errs.ErrInvalidPrecision, s.TimePrecision, s.ValuePrecision)
	}

	body := pool.GetPackBuffer()
	defer pool.PutPackBuffer(body)

	var tmp [binary.MaxVarintLen64]byte

	body.Grow(binary.MaxVarintLen64 + 2*len(s.Values)*3 + 16)
	n := binary.PutUvarint(tmp[:], uint64(len(s.Values)))
	body.MustWrite(tmp[:n])

	for _, d := range s.DeltaTimes {
		n = binary.PutUvarint(tmp[:], zigzag(d))
		body.MustWrite(tmp[:n])
	}

	valueScale := math.Pow10(s.ValuePrecision)
	for _, v := range s.Values {
		n = binary.PutUvarint(tmp[:], zigzag(int64(math.RoundToEven(v*valueScale))))
		body.MustWrite(tmp[:n])
	}

	if kind == KindChromatogram {
		engine := codec.BigEndian()
		body.B = engine.AppendUint64(body.B, math.Float64bits(mz))
		body.B = engine.AppendUint64(body.B, math.Float64bits(expRT))
	}

	compressed, err := c.Compress(body.Bytes())
	if err != nil {
		return nil, fmt.Errorf("compress %s payload: %w", ct, err)
	}

	out := make([]byte, 0, packHeaderSize+len(compressed))
	out = append(out, packMagic[0], packMagic[1], packVersion, byte(kind),
		byte(s.TimePrecision), byte(s.ValuePrecision), byte(ct))
	out = append(out, compressed...)

	return out, nil
}

func unpack(data []byte) (packed, error) {
	var p packed

	if len(data) < packHeaderSize || data[0] != packMagic[0] || data[1] != packMagic[1] {
		return p, fmt.Errorf("%w: missing packed header", errs.ErrInvalidPayload)
	}
	if data[2] != packVersion {
		return p, fmt.Errorf("%w: unsupported packed version %d", errs.ErrInvalidPayload, data[2])
	}

	p.kind = Kind(data[3])
	p.series.TimePrecision = int(data[4])
	p.series.ValuePrecision = int(data[5])
	if p.series.TimePrecision > MaxPrecision || p.series.ValuePrecision > MaxPrecision {
		return p, fmt.Errorf("%w: precisions %d/%d", errs.ErrInvalidPayload, data[4], data[5])
	}

	c, err := compress.GetCodec(format.CompressionType(data[6]))
	if err != nil {
		return p, fmt.Errorf("%w: %w", errs.ErrInvalidPayload, err)
	}

	body, err := c.Decompress(data[packHeaderSize:])
	if err != nil {
		return p, fmt.Errorf("%w: %w", errs.ErrInvalidPayload, err)
	}

	count, off := binary.Uvarint(body)
	if off <= 0 || count > uint64(len(body)) {
		return p, fmt.Errorf("%w: bad sample count", errs.ErrInvalidPayload)
	}

	p.series.DeltaTimes = make([]int64, count)
	for i := range p.series.DeltaTimes {
		v, n := binary.Uvarint(body[off:])
		if n <= 0 {
			return p, fmt.Errorf("%w: truncated delta times", errs.ErrInvalidPayload)
		}
		off += n
		p.series.DeltaTimes[i] = unzigzag(v)
	}

	valueScale := math.Pow10(p.series.ValuePrecision)
	p.series.Values = make([]float64, count)
	for i := range p.series.Values {
		v, n := binary.Uvarint(body[off:])
		if n <= 0 {
			return p, fmt.Errorf("%w: truncated values", errs.ErrInvalidPayload)
		}
		off += n
		p.series.Values[i] = float64(unzigzag(v)) / valueScale
	}

	if p.kind == KindChromatogram {
		if len(body)-off < 16 {
			return p, fmt.Errorf("%w: truncated chromatogram context", errs.ErrInvalidPayload)
		}
		engine := codec.BigEndian()
		p.mz = math.Float64frombits(engine.Uint64(body[off:]))
		p.expRT = math.Float64frombits(engine.Uint64(body[off+8:]))
	}

	return p, nil
}

func zigzag(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63)) //nolint:gosec
}

func unzigzag(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1) //nolint:gosec
}
