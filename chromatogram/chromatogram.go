// Package chromatogram drives the per-archive pipeline: it extracts an
// analysis bundle, parses every peak list with its raw scan data,
// reconstructs the extracted-ion chromatograms, compacts them and hands the
// payloads to storage.
//
// Archive-level failures (missing or corrupt bundle, failed extraction) are
// returned as errors. Failures confined to one peak list, one scan or one
// series are collected in Report.Warnings and processing continues.
package chromatogram

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/maspeqc/qcpack/archive"
	"github.com/maspeqc/qcpack/compact"
	"github.com/maspeqc/qcpack/errs"
	"github.com/maspeqc/qcpack/format"
	"github.com/maspeqc/qcpack/internal/options"
	"github.com/maspeqc/qcpack/peaklist"
	"github.com/maspeqc/qcpack/scan"
	"github.com/maspeqc/qcpack/store"
	"github.com/maspeqc/qcpack/xic"
)

// PeakListResult summarizes one processed peak list.
type PeakListResult struct {
	Member     string // bundle member name
	Name       string // peak list name
	RawFile    string
	Peaks      int // parsed rows
	WithWindow int // rows carrying an XIC window
	Scans      int // MS1 scans walked
}

// SeriesResult describes one stored chromatogram.
type SeriesResult struct {
	PeakList    string
	PeakID      int
	Name        string
	ComponentID int64
	Points      int // reconstructed points
	Retained    int // points left after compaction
	Bytes       int
}

// Report is the outcome of Processor.Process.
type Report struct {
	RunID     int64
	Archive   string
	PeakLists []PeakListResult
	Series    []SeriesResult
	Warnings  error // *multierror.Error, nil when the archive was consistent
}

// Processor turns analysis bundles into stored chromatograms.
type Processor struct {
	fs      afero.Fs
	writer  store.ChromatogramWriter
	encoder *compact.Encoder
	xicOpts []xic.Option
	logger  log.Logger
}

// Option configures a Processor.
type Option = options.Option[*Processor]

// WithLogger sets the logger passed down to every stage.
func WithLogger(logger log.Logger) Option {
	return options.NoError(func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	})
}

// WithEncoder replaces the default JSON encoder.
func WithEncoder(enc *compact.Encoder) Option {
	return options.NoError(func(p *Processor) {
		if enc != nil {
			p.encoder = enc
		}
	})
}

// WithXIC appends reconstruction options such as xic.WithWorkers.
func WithXIC(opts ...xic.Option) Option {
	return options.NoError(func(p *Processor) {
		p.xicOpts = append(p.xicOpts, opts...)
	})
}

// NewProcessor creates a Processor reading bundles from fs and storing into writer.
func NewProcessor(fs afero.Fs, writer store.ChromatogramWriter, opts ...Option) (*Processor, error) {
	if fs == nil || writer == nil {
		return nil, fmt.Errorf("chromatogram processor requires a filesystem and a writer")
	}

	p := &Processor{fs: fs, writer: writer, logger: log.NewNopLogger()}
	if err := options.Apply(p, opts...); err != nil {
		return nil, err
	}

	if p.encoder == nil {
		enc, err := compact.NewEncoder(format.PayloadJSON, format.CompressionNone)
		if err != nil {
			return nil, err
		}
		p.encoder = enc
	}

	return p, nil
}

type run struct {
	id       int64
	bundle   *archive.Bundle
	report   *Report
	rows     []store.ChromatogramRow
	warnings *multierror.Error
}

func (r *run) warn(err error) {
	r.warnings = multierror.Append(r.warnings, err)
}

// Process extracts the bundle at archivePath into workDir and stores one
// chromatogram per windowed peak. The chromatograms of the archive are
// committed together once every peak list is processed, so a failed archive
// persists nothing. The caller owns workDir and removes it.
func (p *Processor) Process(ctx context.Context, runID int64, archivePath, workDir string) (*Report, error) {
	b, err := archive.Open(p.fs, archivePath)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	if err := b.Extract(workDir); err != nil {
		return nil, fmt.Errorf("extract %s: %w", archivePath, err)
	}

	r := &run{id: runID, bundle: b, report: &Report{RunID: runID, Archive: archivePath}}
	lists := b.PeakLists()
	level.Debug(p.logger).Log("msg", "extracted bundle", "archive", archivePath, "peak_lists", len(lists), "members", len(b.Members()))

	for _, m := range lists {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.processPeakList(ctx, r, m); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(r.rows) > 0 {
		if err := p.writer.InsertChromatograms(ctx, r.rows); err != nil {
			return nil, fmt.Errorf("store chromatograms of %s: %w", archivePath, err)
		}
	}

	r.report.Warnings = r.warnings.ErrorOrNil()

	return r.report, nil
}

// processPeakList returns only fatal errors; everything else becomes a warning.
func (p *Processor) processPeakList(ctx context.Context, r *run, m archive.Member) error {
	pl, err := peaklist.ParseFile(p.fs, m.Path, peaklist.WithLogger(p.logger))
	if err != nil {
		p.skip(r, m.Name, err)
		return nil
	}
	for _, w := range pl.Warnings {
		r.warn(w)
	}

	result := PeakListResult{
		Member:     m.Name,
		Name:       pl.Name,
		RawFile:    pl.RawFile,
		Peaks:      len(pl.Peaks),
		WithWindow: len(pl.WithWindow()),
	}

	meta, payload, ok := r.bundle.RawDataFile(pl.RawFile)
	if !ok {
		p.skip(r, m.Name, fmt.Errorf("%w: raw data file %q", errs.ErrMissingCompanion, pl.RawFile))
		return nil
	}

	scans, err := scan.Open(p.fs, meta.Path, payload.Path, scan.WithLogger(p.logger))
	if err != nil {
		p.skip(r, m.Name, err)
		return nil
	}
	defer scans.Close()

	for _, w := range scans.Metadata().Warnings {
		r.warn(w)
	}

	opts := append([]xic.Option{xic.WithLogger(p.logger)}, p.xicOpts...)
	res, err := xic.Reconstruct(ctx, pl.WithWindow(), scans, opts...)
	if err != nil {
		return fmt.Errorf("reconstruct %s: %w", m.Name, err)
	}
	for _, w := range res.Warnings {
		r.warn(w)
	}

	result.Scans = res.Scans
	r.report.PeakLists = append(r.report.PeakLists, result)

	for i := range res.Chromatograms {
		if err := p.storeSeries(ctx, r, m.Name, &res.Chromatograms[i]); err != nil {
			return err
		}
	}

	return nil
}

func (p *Processor) storeSeries(ctx context.Context, r *run, member string, c *xic.Chromatogram) error {
	componentID, err := p.writer.ComponentID(ctx, c.Name)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		level.Warn(p.logger).Log("msg", "skipping series", "peak_list", member, "peak", c.PeakID, "name", c.Name, "err", err)
		r.warn(errs.NewRecordError(member, fmt.Sprintf("row %d", c.PeakID), err))

		return nil
	}

	series, err := compact.Compact(c.Times, c.Intensities, compact.ChromatogramOptions()...)
	if err != nil {
		r.warn(errs.NewRecordError(member, fmt.Sprintf("row %d", c.PeakID), err))
		return nil
	}

	data, err := p.encoder.EncodeChromatogram(compact.ChromatogramRecord{
		Series:     series,
		MZ:         c.MZ,
		ExpectedRT: c.ExpectedRT,
	})
	if err != nil {
		return fmt.Errorf("encode chromatogram %q: %w", c.Name, err)
	}

	r.rows = append(r.rows, store.ChromatogramRow{
		RunID:       r.id,
		ComponentID: componentID,
		Encoding:    p.encoder.Encoding(),
		Data:        data,
	})

	r.report.Series = append(r.report.Series, SeriesResult{
		PeakList:    member,
		PeakID:      c.PeakID,
		Name:        c.Name,
		ComponentID: componentID,
		Points:      c.Len(),
		Retained:    series.Len(),
		Bytes:       len(data),
	})

	return nil
}

func (p *Processor) skip(r *run, member string, err error) {
	level.Warn(p.logger).Log("msg", "skipping peak list", "peak_list", member, "err", err)
	r.warn(fmt.Errorf("%s: %w", member, err))
}

// IsArchiveError reports whether err stems from a missing or unreadable bundle.
func IsArchiveError(err error) bool {
	return errors.Is(err, errs.ErrArchiveNotFound) || errors.Is(err, errs.ErrArchiveCorrupt)
}
