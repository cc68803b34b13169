package profile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/maspeqc/qcpack/errs"
)

// TraceProvider supplies the raw pressure trace of a channel, times in minutes.
type TraceProvider interface {
	Trace(ctx context.Context, channel string) (times, values []float64, err error)
}

// CSVProvider reads traces from "<Dir>/<channel>.csv" files with two columns,
// minutes and value. A non-numeric first row is treated as a header.
type CSVProvider struct {
	FS  afero.Fs
	Dir string
}

var _ TraceProvider = (*CSVProvider)(nil)

// NewCSVProvider creates a CSVProvider over dir on fs.
func NewCSVProvider(fs afero.Fs, dir string) *CSVProvider {
	return &CSVProvider{FS: fs, Dir: dir}
}

// Trace implements TraceProvider. A missing file yields errs.ErrUnknownChannel.
func (p *CSVProvider) Trace(ctx context.Context, channel string) ([]float64, []float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if channel == "" || strings.ContainsAny(channel, `/\`) {
		return nil, nil, fmt.Errorf("%w: %q", errs.ErrUnknownChannel, channel)
	}

	path := filepath.Join(p.Dir, channel+".csv")
	f, err := p.FS.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", errs.ErrUnknownChannel, channel)
		}

		return nil, nil, fmt.Errorf("open trace %s: %w", path, err)
	}
	defer f.Close()

	times, values, err := readTrace(f)
	if err != nil {
		return nil, nil, fmt.Errorf("read trace %s: %w", path, err)
	}

	return times, values, nil
}

func readTrace(r io.Reader) ([]float64, []float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var (
		times  []float64
		values []float64
		line   int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", errs.ErrMalformedDescriptor, err)
		}
		line++

		t, errT := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		v, errV := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if errT != nil || errV != nil {
			if line == 1 {
				continue
			}

			return nil, nil, fmt.Errorf("%w: line %d: %q", errs.ErrMalformedDescriptor, line, strings.Join(rec, ","))
		}

		times = append(times, t)
		values = append(values, v)
	}

	return times, values, nil
}

// StaticProvider serves traces held in memory.
type StaticProvider map[string][2][]float64

var _ TraceProvider = StaticProvider(nil)

// Trace implements TraceProvider.
func (p StaticProvider) Trace(ctx context.Context, channel string) ([]float64, []float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	tr, ok := p[channel]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", errs.ErrUnknownChannel, channel)
	}

	return tr[0], tr[1], nil
}
