package xic

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maspeqc/qcpack/errs"
	"github.com/maspeqc/qcpack/internal/fixture"
	"github.com/maspeqc/qcpack/peaklist"
	"github.com/maspeqc/qcpack/scan"
)

// memorySource serves spectra from a map keyed by scan id.
type memorySource struct {
	scans   []scan.Scan
	spectra map[int]scan.Spectrum
	fail    map[int]error
}

func (m *memorySource) Scans() []scan.Scan {
	return m.scans
}

func (m *memorySource) Spectrum(s scan.Scan) (scan.Spectrum, error) {
	if err := m.fail[s.ID]; err != nil {
		return scan.Spectrum{}, err
	}

	return m.spectra[s.ID], nil
}

func (m *memorySource) add(s scan.Scan, mz, intensity []float32) {
	if m.spectra == nil {
		m.spectra = make(map[int]scan.Spectrum)
	}
	if s.Points == 0 {
		s.Points = len(mz)
	}
	m.scans = append(m.scans, s)
	m.spectra[s.ID] = scan.Spectrum{MZ: mz, Intensity: intensity}
}

func windowPeak(id int, mz ...float32) peaklist.Peak {
	ids := make([]int32, len(mz))
	heights := make([]float32, len(mz))

	return peaklist.Peak{
		ID:     id,
		Name:   fmt.Sprintf("peak %d", id),
		MZ:     float64(mz[0]),
		RT:     1,
		Window: &peaklist.Window{ScanIDs: ids, MZ: mz, Heights: heights},
	}
}

func TestReconstruct_MaxInWindow(t *testing.T) {
	src := &memorySource{}
	src.add(scan.Scan{ID: 1, MSLevel: 1, RT: 1.0}, []float32{100.0, 101.0}, []float32{10, 50})
	src.add(scan.Scan{ID: 2, MSLevel: 1, RT: 1.1}, []float32{100.5}, []float32{5})

	res, err := Reconstruct(context.Background(), []peaklist.Peak{windowPeak(1, 100.0, 101.0)}, src)
	require.NoError(t, err)
	require.Empty(t, res.Warnings)
	require.Equal(t, 2, res.Scans)
	require.Len(t, res.Chromatograms, 1)

	c := res.Chromatograms[0]
	require.Equal(t, []float64{50, 5}, c.Intensities)
	require.Equal(t, []float64{1.0, 1.1}, c.Times)
	require.Equal(t, float32(100), c.MZMin)
	require.Equal(t, float32(101), c.MZMax)
	require.Equal(t, 2, c.Len())
}

func TestReconstruct_ScanSelection(t *testing.T) {
	src := &memorySource{}
	src.add(scan.Scan{ID: 5, MSLevel: 1, RT: 0.5, Polarity: "+"}, []float32{200}, []float32{7})
	src.add(scan.Scan{ID: 3, MSLevel: 1, RT: 0.3, Polarity: "-"}, []float32{200}, []float32{3})
	src.add(scan.Scan{ID: 4, MSLevel: 2, RT: 0.4, Polarity: "+"}, []float32{200}, []float32{99})
	src.add(scan.Scan{ID: 1, MSLevel: 1, RT: 0.1, Polarity: "+"}, []float32{150}, []float32{1})

	peaks := []peaklist.Peak{windowPeak(1, 199.9, 200.1)}

	t.Run("AscendingIDMS1Only", func(t *testing.T) {
		res, err := Reconstruct(context.Background(), peaks, src)
		require.NoError(t, err)
		require.Equal(t, 3, res.Scans)
		require.Equal(t, []float64{0.1, 0.3, 0.5}, res.Chromatograms[0].Times)
		require.Equal(t, []float64{0, 3, 7}, res.Chromatograms[0].Intensities)
	})

	t.Run("PolarityFilter", func(t *testing.T) {
		res, err := Reconstruct(context.Background(), peaks, src, WithPolarity("+"))
		require.NoError(t, err)
		require.Equal(t, []float64{0.1, 0.5}, res.Chromatograms[0].Times)
		require.Equal(t, []float64{0, 7}, res.Chromatograms[0].Intensities)
	})
}

func TestReconstruct_ZeroPointScansExcluded(t *testing.T) {
	_, rf := fixture.SimpleRun()
	rf.Scans = append(rf.Scans, fixture.Scan{ID: 4, MSLevel: 1, RTSeconds: 302.4})

	md, err := scan.ParseMetadata(bytes.NewReader(rf.XML()))
	require.NoError(t, err)
	payload := rf.Payload()
	store := scan.NewStore(md, bytes.NewReader(payload), int64(len(payload)))

	pl, _ := fixture.SimpleRun()
	parsed, err := peaklist.Parse(bytes.NewReader(pl.XML()))
	require.NoError(t, err)

	res, err := Reconstruct(context.Background(), parsed.Peaks, store)
	require.NoError(t, err)
	require.Equal(t, 3, res.Scans)
	require.Equal(t, []float64{1000, 5000, 0}, res.Chromatograms[0].Intensities)
}

func TestReconstruct_PeaksWithoutWindowSkipped(t *testing.T) {
	src := &memorySource{}
	src.add(scan.Scan{ID: 1, MSLevel: 1, RT: 1}, []float32{100}, []float32{10})

	peaks := []peaklist.Peak{
		{ID: 1, Name: "no window"},
		windowPeak(2, 99, 101),
		{ID: 3, Name: "empty window", Window: &peaklist.Window{}},
	}

	res, err := Reconstruct(context.Background(), peaks, src)
	require.NoError(t, err)
	require.Len(t, res.Chromatograms, 1)
	require.Equal(t, 2, res.Chromatograms[0].PeakID)
}

func TestReconstruct_FailedScanDropped(t *testing.T) {
	src := &memorySource{fail: map[int]error{2: errs.ErrScanDataTruncated}}
	src.add(scan.Scan{ID: 1, MSLevel: 1, RT: 1}, []float32{100}, []float32{10})
	src.add(scan.Scan{ID: 2, MSLevel: 1, RT: 2}, []float32{100}, []float32{20})
	src.add(scan.Scan{ID: 3, MSLevel: 1, RT: 3}, []float32{100}, []float32{30})

	res, err := Reconstruct(context.Background(), []peaklist.Peak{windowPeak(1, 100), windowPeak(2, 99, 100)}, src)
	require.NoError(t, err)
	require.Equal(t, 2, res.Scans)
	require.Len(t, res.Warnings, 1)
	require.ErrorIs(t, res.Warnings[0], errs.ErrScanDataTruncated)

	for _, c := range res.Chromatograms {
		require.Equal(t, []float64{1, 3}, c.Times)
		require.Equal(t, []float64{10, 30}, c.Intensities)
	}
}

func TestReconstruct_WorkersMatchSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	src := &memorySource{}
	for id := 1; id <= 200; id++ {
		n := 50 + rng.Intn(50)
		mz := make([]float32, n)
		intensity := make([]float32, n)
		for i := range n {
			mz[i] = 100 + rng.Float32()*100
			intensity[i] = rng.Float32() * 1e5
		}
		src.add(scan.Scan{ID: id, MSLevel: 1 + id%2, RT: float64(id) / 100}, mz, intensity)
	}

	peaks := make([]peaklist.Peak, 40)
	for i := range peaks {
		center := 100 + rng.Float32()*100
		peaks[i] = windowPeak(i+1, center-0.5, center, center+0.5)
	}

	sequential, err := Reconstruct(context.Background(), peaks, src)
	require.NoError(t, err)

	parallel, err := Reconstruct(context.Background(), peaks, src, WithWorkers(8))
	require.NoError(t, err)

	require.Equal(t, sequential, parallel)
	require.Equal(t, 100, sequential.Scans)
}

func TestReconstruct_Cancelled(t *testing.T) {
	src := &memorySource{}
	src.add(scan.Scan{ID: 1, MSLevel: 1, RT: 1}, []float32{100}, []float32{10})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Reconstruct(ctx, []peaklist.Peak{windowPeak(1, 100)}, src)
	require.ErrorIs(t, err, context.Canceled)

	_, err = Reconstruct(context.Background(), nil, src, WithWorkers(-1))
	require.Error(t, err)
}

func TestMaxInWindow(t *testing.T) {
	spec := scan.Spectrum{
		MZ:        []float32{99.9, 100, 100.5, 101, 101.1},
		Intensity: []float32{1000, 3, 8, 4, 2000},
	}
	require.Equal(t, 8.0, MaxInWindow(spec, 100, 101))
	require.Equal(t, 0.0, MaxInWindow(spec, 102, 103))
	require.Equal(t, 0.0, MaxInWindow(scan.Spectrum{}, 0, 1000))
}
