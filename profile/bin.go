// Package profile bins pump pressure traces into per-second profiles and
// persists them next to the chromatograms of a run.
//
// A trace is a list of (minute, value) samples. Binning walks the samples in
// order with a boundary of ceil(t*60) seconds taken from the first sample.
// A sample whose time in seconds exceeds the boundary closes the current bin,
// emitted at the boundary second, and opens a new one at ceil(t*60). The last
// open bin is always emitted. Bin values are rounded to two decimals.
package profile

import (
	"fmt"
	"math"

	"github.com/maspeqc/qcpack/compact"
	"github.com/maspeqc/qcpack/errs"
)

// Pump channels recorded by the instrument. Channels are free-form strings;
// these are the ones the instrument exports.
const (
	LoadingPump = "lp"
	NanoPump    = "np"
	MainPump    = "mp"
)

// DefaultChannels lists the channels processed when none are given.
var DefaultChannels = []string{LoadingPump, NanoPump, MainPump}

// Aggregation reduces the samples of one bin to a single value.
type Aggregation func(values []float64) float64

// Mean is the arithmetic mean. It is the profile default.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// Max returns the largest value.
func Max(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	best := values[0]
	for _, v := range values[1:] {
		if v > best {
			best = v
		}
	}

	return best
}

// Bin groups a trace sampled in minutes into whole-second bins.
// It returns the bin seconds and the aggregated, rounded bin values.
func Bin(timesMinutes, values []float64, agg Aggregation) ([]float64, []float64, error) {
	if len(timesMinutes) != len(values) {
		return nil, nil, fmt.Errorf("%w: %d times, %d values", errs.ErrLengthMismatch, len(timesMinutes), len(values))
	}
	if agg == nil {
		agg = Mean
	}
	if len(timesMinutes) == 0 {
		return []float64{}, []float64{}, nil
	}

	for i := range timesMinutes {
		if !finite(timesMinutes[i]) || !finite(values[i]) {
			return nil, nil, fmt.Errorf("%w: sample %d", errs.ErrNonFiniteSample, i)
		}
	}

	var (
		seconds []float64
		binned  []float64
		pending []float64
	)
	flush := func(second float64) {
		seconds = append(seconds, second)
		binned = append(binned, compact.RoundValue(agg(pending), compact.ProfileValuePrecision))
		pending = pending[:0]
	}

	boundary := math.Ceil(timesMinutes[0] * 60)
	for i, t := range timesMinutes {
		s := t * 60
		if s > boundary {
			flush(boundary)
			boundary = math.Ceil(s)
		}
		pending = append(pending, values[i])
	}
	flush(boundary)

	return seconds, binned, nil
}

// Compact bins a trace with Mean and compacts it with the profile preset.
func Compact(timesMinutes, values []float64) (compact.Series, error) {
	seconds, binned, err := Bin(timesMinutes, values, Mean)
	if err != nil {
		return compact.Series{}, err
	}

	return compact.Compact(seconds, binned, compact.ProfileOptions()...)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
