// Package compact implements the lossy, deterministic time-series compaction
// shared by chromatograms and pressure profiles.
//
// Compaction runs three steps in order:
//
//  1. Times are rounded to TimePrecision decimals and values to ValuePrecision
//     decimals (half to even). Values rounded to 0 decimals are whole numbers
//     and serialize as integers.
//  2. Optionally, every run of three or more consecutive zero values keeps only
//     its first and last sample. Runs of exactly two zeros are kept in full.
//  3. The retained times are delta encoded as integer ticks of 10^-TimePrecision:
//     the first element is the absolute start, every following element the
//     difference to the previous retained sample.
//
// Cumulative-summing DeltaTimes and dividing by 10^TimePrecision reconstructs
// the rounded, retained times bit for bit (see Expand).
//
// Example:
//
//	series, err := compact.Compact(rts, intensities, compact.ChromatogramOptions()...)
//	times := compact.Expand(series)
package compact

import (
	"fmt"
	"math"

	"github.com/maspeqc/qcpack/errs"
	"github.com/maspeqc/qcpack/internal/options"
)

// MaxPrecision bounds both rounding precisions; 10^9 ticks still leaves int64
// room for retention times of many years.
const MaxPrecision = 9

const (
	ChromatogramTimePrecision  = 3
	ChromatogramValuePrecision = 0
	ProfileTimePrecision       = 0
	ProfileValuePrecision      = 2
)

// Series is the compact representation of a time series.
type Series struct {
	DeltaTimes     []int64
	Values         []float64
	TimePrecision  int
	ValuePrecision int
}

// Len returns the number of retained samples.
func (s Series) Len() int {
	return len(s.Values)
}

// Config holds the compaction parameters.
type Config struct {
	TimePrecision  int
	ValuePrecision int
	CollapseZeros  bool
}

// Option configures a Compact call.
type Option = options.Option[*Config]

// WithTimePrecision sets the number of decimals kept on the time axis.
func WithTimePrecision(p int) Option {
	return options.New(func(c *Config) error {
		if p < 0 || p > MaxPrecision {
			return fmt.Errorf("%w: time precision %d", errs.ErrInvalidPrecision, p)
		}
		c.TimePrecision = p

		return nil
	})
}

// WithValuePrecision sets the number of decimals kept on the value axis.
func WithValuePrecision(p int) Option {
	return options.New(func(c *Config) error {
		if p < 0 || p > MaxPrecision {
			return fmt.Errorf("%w: value precision %d", errs.ErrInvalidPrecision, p)
		}
		c.ValuePrecision = p

		return nil
	})
}

// WithZeroCollapse enables or disables zero-run collapse.
func WithZeroCollapse(on bool) Option {
	return options.NoError(func(c *Config) {
		c.CollapseZeros = on
	})
}

// ChromatogramOptions returns the chromatogram preset: times rounded to
// thousandths of a minute, integer intensities, zero runs collapsed.
func ChromatogramOptions() []Option {
	return []Option{
		WithTimePrecision(ChromatogramTimePrecision),
		WithValuePrecision(ChromatogramValuePrecision),
		WithZeroCollapse(true),
	}
}

// ProfileOptions returns the pressure profile preset: whole seconds, values
// with two decimals, no zero-run collapse.
func ProfileOptions() []Option {
	return []Option{
		WithTimePrecision(ProfileTimePrecision),
		WithValuePrecision(ProfileValuePrecision),
		WithZeroCollapse(false),
	}
}

// NewConfig returns the configuration after applying opts on top of the
// chromatogram preset.
func NewConfig(opts ...Option) (Config, error) {
	cfg := &Config{
		TimePrecision:  ChromatogramTimePrecision,
		ValuePrecision: ChromatogramValuePrecision,
		CollapseZeros:  true,
	}
	if err := options.Apply(cfg, opts...); err != nil {
		return Config{}, err
	}

	return *cfg, nil
}

// Compact rounds, collapses and delta encodes (times, values).
func Compact(times, values []float64, opts ...Option) (Series, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return Series{}, err
	}

	ticks, rounded, err := retain(times, values, cfg)
	if err != nil {
		return Series{}, err
	}

	deltas := make([]int64, len(ticks))
	for i, tick := range ticks {
		if i == 0 {
			deltas[i] = tick
			continue
		}
		deltas[i] = tick - ticks[i-1]
	}

	return Series{
		DeltaTimes:     deltas,
		Values:         rounded,
		TimePrecision:  cfg.TimePrecision,
		ValuePrecision: cfg.ValuePrecision,
	}, nil
}

// Retained returns the rounded samples that Compact keeps, before delta
// encoding. Expand(Compact(t, v)) equals the times returned here.
func Retained(times, values []float64, opts ...Option) ([]float64, []float64, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, nil, err
	}

	ticks, rounded, err := retain(times, values, cfg)
	if err != nil {
		return nil, nil, err
	}

	scale := pow10(cfg.TimePrecision)
	out := make([]float64, len(ticks))
	for i, tick := range ticks {
		out[i] = float64(tick) / scale
	}

	return out, rounded, nil
}

// Expand reverses the delta encoding of s and returns the retained times.
func Expand(s Series) []float64 {
	scale := pow10(s.TimePrecision)
	out := make([]float64, len(s.DeltaTimes))

	var tick int64
	for i, d := range s.DeltaTimes {
		tick += d
		out[i] = float64(tick) / scale
	}

	return out
}

// RoundValue rounds v half to even at precision decimals.
func RoundValue(v float64, precision int) float64 {
	scale := pow10(precision)
	return math.RoundToEven(v*scale) / scale
}

// retain rounds both axes and applies zero-run collapse. Times are returned as
// integer ticks so that delta encoding is exact.
func retain(times, values []float64, cfg Config) ([]int64, []float64, error) {
	if len(times) != len(values) {
		return nil, nil, fmt.Errorf("%w: %d times, %d values", errs.ErrLengthMismatch, len(times), len(values))
	}

	timeScale := pow10(cfg.TimePrecision)
	ticks := make([]int64, len(times))
	rounded := make([]float64, len(values))
	for i := range times {
		if math.IsNaN(times[i]) || math.IsInf(times[i], 0) {
			return nil, nil, fmt.Errorf("%w: non-finite time at index %d", errs.ErrInvalidPayload, i)
		}
		if math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			return nil, nil, fmt.Errorf("%w: non-finite value at index %d", errs.ErrInvalidPayload, i)
		}

		ticks[i] = int64(math.RoundToEven(times[i] * timeScale))
		rounded[i] = RoundValue(values[i], cfg.ValuePrecision)
		if rounded[i] == 0 {
			rounded[i] = 0 // drop negative zero
		}
	}

	if !cfg.CollapseZeros {
		return ticks, rounded, nil
	}

	keep := collapseZeroRuns(rounded)
	if keep == nil {
		return ticks, rounded, nil
	}

	outTicks := make([]int64, 0, len(ticks))
	outValues := make([]float64, 0, len(rounded))
	for i, k := range keep {
		if k {
			outTicks = append(outTicks, ticks[i])
			outValues = append(outValues, rounded[i])
		}
	}

	return outTicks, outValues, nil
}

// collapseZeroRuns marks the interior members of zero runs of length >= 3 for
// removal. It returns nil when nothing is dropped.
func collapseZeroRuns(values []float64) []bool {
	var keep []bool

	for i := 0; i < len(values); {
		if values[i] != 0 {
			i++
			continue
		}

		start := i
		for i < len(values) && values[i] == 0 {
			i++
		}
		stop := i - 1

		if stop-start < 2 {
			continue
		}

		if keep == nil {
			keep = make([]bool, len(values))
			for j := range keep {
				keep[j] = true
			}
		}
		for j := start + 1; j < stop; j++ {
			keep[j] = false
		}
	}

	return keep
}

func pow10(p int) float64 {
	return math.Pow10(p)
}
