// Package xic reconstructs extracted-ion chromatograms from MS1 scans.
//
// For every peak carrying an XIC window, the m/z bounds are the minimum and
// maximum of the window's m/z values. Each MS1 scan contributes one point to
// every chromatogram: the scan's retention time, and the largest intensity
// among the scan's points whose m/z lies in [min, max] inclusive, or 0 when no
// point qualifies. Scans are walked in ascending scan id order, so all
// chromatograms of one archive share the same time axis.
//
// Peaks are independent: with WithWorkers(n) they are computed concurrently
// over the same immutable spectra.
package xic

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/maspeqc/qcpack/errs"
	"github.com/maspeqc/qcpack/internal/options"
	"github.com/maspeqc/qcpack/peaklist"
	"github.com/maspeqc/qcpack/scan"
)

// SpectrumSource provides scans and their data. *scan.Store implements it.
type SpectrumSource interface {
	Scans() []scan.Scan
	Spectrum(s scan.Scan) (scan.Spectrum, error)
}

// Aggregation reduces the points of one spectrum that fall into [mzLo, mzHi] to a
// single chromatogram value.
type Aggregation func(spec scan.Spectrum, mzLo, mzHi float32) float64

// MaxInWindow returns the largest intensity with m/z in [mzLo, mzHi], or 0.
func MaxInWindow(spec scan.Spectrum, mzLo, mzHi float32) float64 {
	var best float32
	for i, mz := range spec.MZ {
		if mz >= mzLo && mz <= mzHi && spec.Intensity[i] > best {
			best = spec.Intensity[i]
		}
	}

	return float64(best)
}

// Chromatogram is the reconstructed series of one peak.
type Chromatogram struct {
	PeakID      int
	Name        string
	MZ          float64 // target m/z
	ExpectedRT  float64 // minutes
	MZMin       float32
	MZMax       float32
	Times       []float64 // minutes
	Intensities []float64
}

// Len returns the number of points.
func (c *Chromatogram) Len() int {
	return len(c.Times)
}

// Result is the outcome of Reconstruct.
type Result struct {
	Chromatograms []Chromatogram
	Scans         int // MS1 scans contributing a point
	Warnings      []error
}

type config struct {
	logger      log.Logger
	polarity    string
	workers     int
	aggregation Aggregation
}

// Option configures Reconstruct.
type Option = options.Option[*config]

// WithLogger sets the logger receiving dropped-scan warnings.
func WithLogger(logger log.Logger) Option {
	return options.NoError(func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	})
}

// WithPolarity restricts the walk to scans of the given polarity ("+" or "-").
// The empty string disables the filter, which is the default.
func WithPolarity(polarity string) Option {
	return options.NoError(func(c *config) {
		c.polarity = polarity
	})
}

// WithWorkers sets the number of peaks computed concurrently. Values below 2
// keep reconstruction sequential.
func WithWorkers(n int) Option {
	return options.New(func(c *config) error {
		if n < 0 {
			return fmt.Errorf("invalid worker count %d", n)
		}
		c.workers = n

		return nil
	})
}

// WithAggregation replaces MaxInWindow.
func WithAggregation(agg Aggregation) Option {
	return options.NoError(func(c *config) {
		if agg != nil {
			c.aggregation = agg
		}
	})
}

type sample struct {
	rt   float64
	spec scan.Spectrum
}

// Reconstruct builds one chromatogram per peak with an XIC window. Peaks
// without a window are skipped. A scan whose data cannot be read is dropped
// from every chromatogram and reported in Result.Warnings.
func Reconstruct(ctx context.Context, peaks []peaklist.Peak, src SpectrumSource, opts ...Option) (*Result, error) {
	cfg := &config{logger: log.NewNopLogger(), aggregation: MaxInWindow}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	selected := lo.Filter(src.Scans(), func(s scan.Scan, _ int) bool {
		return s.MSLevel == 1 && s.Points > 0 && (cfg.polarity == "" || s.Polarity == cfg.polarity)
	})
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].ID < selected[j].ID
	})

	res := &Result{}
	samples := make([]sample, 0, len(selected))
	for _, s := range selected {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		spec, err := src.Spectrum(s)
		if err != nil {
			res.Warnings = append(res.Warnings, errs.NewRecordError("", "scan "+strconv.Itoa(s.ID), err))
			level.Warn(cfg.logger).Log("msg", "dropping scan", "scan", s.ID, "err", err)

			continue
		}
		samples = append(samples, sample{rt: s.RT, spec: spec})
	}
	res.Scans = len(samples)

	withWindow := lo.Filter(peaks, func(p peaklist.Peak, _ int) bool {
		return p.Window.Len() > 0
	})
	res.Chromatograms = make([]Chromatogram, len(withWindow))

	if cfg.workers < 2 {
		for i := range withWindow {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res.Chromatograms[i] = build(&withWindow[i], samples, cfg.aggregation)
		}

		return res, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers)
	for i := range withWindow {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res.Chromatograms[i] = build(&withWindow[i], samples, cfg.aggregation)

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return res, nil
}

func build(p *peaklist.Peak, samples []sample, agg Aggregation) Chromatogram {
	mzMin := lo.Min(p.Window.MZ)
	mzMax := lo.Max(p.Window.MZ)

	c := Chromatogram{
		PeakID:      p.ID,
		Name:        p.Name,
		MZ:          p.MZ,
		ExpectedRT:  p.RT,
		MZMin:       mzMin,
		MZMax:       mzMax,
		Times:       make([]float64, len(samples)),
		Intensities: make([]float64, len(samples)),
	}
	for i, s := range samples {
		c.Times[i] = s.rt
		c.Intensities[i] = agg(s.spec, mzMin, mzMax)
	}

	return c
}
