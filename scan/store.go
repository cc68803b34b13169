package scan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/spf13/afero"

	"github.com/maspeqc/qcpack/codec"
	"github.com/maspeqc/qcpack/errs"
)

// pointSize is the payload width of one (m/z, intensity) pair.
const pointSize = 2 * codec.ElementSize

// Spectrum is the materialized data of one scan.
type Spectrum struct {
	MZ        []float32
	Intensity []float32
}

// Len returns the number of data points.
func (s Spectrum) Len() int {
	return len(s.MZ)
}

// Store gives random access to the scans of one raw data file. The payload is
// never read sequentially; every Spectrum call reads at the slot offset.
type Store struct {
	meta    *Metadata
	payload io.ReaderAt
	size    int64 // payload size, -1 when unknown
	closer  io.Closer
}

// NewStore creates a Store over an already opened payload. size is the payload
// length in bytes, or -1 when unknown.
func NewStore(meta *Metadata, payload io.ReaderAt, size int64) *Store {
	return &Store{meta: meta, payload: payload, size: size}
}

// Open parses the descriptor at metaPath and opens the payload at payloadPath.
// The returned Store owns the payload handle and must be closed.
func Open(fs afero.Fs, metaPath, payloadPath string, opts ...Option) (*Store, error) {
	mf, err := fs.Open(metaPath)
	if err != nil {
		return nil, fmt.Errorf("open scan metadata: %w", err)
	}
	defer mf.Close()

	opts = append([]Option{WithSource(baseName(metaPath))}, opts...)
	meta, err := ParseMetadata(mf, opts...)
	if err != nil {
		return nil, err
	}

	pf, err := fs.Open(payloadPath)
	if err != nil {
		return nil, fmt.Errorf("open scan payload: %w", err)
	}

	info, err := pf.Stat()
	if err != nil {
		_ = pf.Close()
		return nil, fmt.Errorf("stat scan payload: %w", err)
	}

	s := NewStore(meta, pf, info.Size())
	s.closer = pf

	return s, nil
}

// Metadata returns the parsed descriptor.
func (s *Store) Metadata() *Metadata {
	return s.meta
}

// Scans returns the scans with nonzero declared points in ascending id order.
func (s *Store) Scans() []Scan {
	return s.meta.Scans
}

// Spectrum reads and de-interleaves the data of sc. It fails with
// errs.ErrScanDataTruncated when the payload ends before the slot does.
func (s *Store) Spectrum(sc Scan) (Spectrum, error) {
	slot := sc.slot
	if slot.Points == 0 {
		return Spectrum{MZ: []float32{}, Intensity: []float32{}}, nil
	}

	if slot.Points < 0 || int64(slot.Points) > (math.MaxInt64-slot.Offset)/pointSize {
		return Spectrum{}, fmt.Errorf("%w: scan %d: %d points at offset %d",
			errs.ErrScanDataTruncated, sc.ID, slot.Points, slot.Offset)
	}

	n := int64(slot.Points) * pointSize
	if s.size >= 0 && (slot.Offset > s.size || n > s.size-slot.Offset) {
		return Spectrum{}, fmt.Errorf("%w: scan %d needs bytes [%d, %d), payload has %d",
			errs.ErrScanDataTruncated, sc.ID, slot.Offset, slot.Offset+n, s.size)
	}

	buf, err := s.read(slot.Offset, n)
	if int64(len(buf)) < n {
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Spectrum{}, fmt.Errorf("%w: scan %d: read %d of %d bytes",
				errs.ErrScanDataTruncated, sc.ID, len(buf), n)
		}

		return Spectrum{}, fmt.Errorf("read scan %d: %w", sc.ID, err)
	}

	values, err := codec.DecodeFloat32s(buf, slot.Points*2)
	if err != nil {
		return Spectrum{}, err
	}

	mz, intensity, err := codec.Deinterleave(values)
	if err != nil {
		return Spectrum{}, err
	}

	return Spectrum{MZ: mz, Intensity: intensity}, nil
}

// read returns up to n bytes at off. With an unknown payload size the buffer
// grows with the bytes actually read.
func (s *Store) read(off, n int64) ([]byte, error) {
	if s.size >= 0 {
		buf := make([]byte, n)
		read, err := s.payload.ReadAt(buf, off)

		return buf[:read], err
	}

	var buf bytes.Buffer
	_, err := io.CopyN(&buf, io.NewSectionReader(s.payload, off, n), n)

	return buf.Bytes(), err
}

// Close releases the payload handle. It is a no-op for stores built with
// NewStore.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}

	err := s.closer.Close()
	s.closer = nil

	return err
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}

	return path
}
