package compact

import (
	"math"
	"math/rand"
	"testing"

	"github.com/maspeqc/qcpack/errs"
	"github.com/stretchr/testify/require"
)

func TestCompact_ZeroRuns(t *testing.T) {
	tests := []struct {
		name       string
		values     []float64
		wantValues []float64
		wantTimes  []float64
	}{
		{
			name:       "run of two kept",
			values:     []float64{5, 0, 0, 3},
			wantValues: []float64{5, 0, 0, 3},
			wantTimes:  []float64{1, 2, 3, 4},
		},
		{
			name:       "run of three loses interior",
			values:     []float64{5, 0, 0, 0, 3},
			wantValues: []float64{5, 0, 0, 3},
			wantTimes:  []float64{1, 2, 4, 5},
		},
		{
			name:       "long run keeps edges",
			values:     []float64{0, 0, 0, 0, 0, 0},
			wantValues: []float64{0, 0},
			wantTimes:  []float64{1, 6},
		},
		{
			name:       "single zero",
			values:     []float64{1, 0, 1},
			wantValues: []float64{1, 0, 1},
			wantTimes:  []float64{1, 2, 3},
		},
		{
			name:       "several runs",
			values:     []float64{0, 0, 0, 7, 0, 0, 0, 0, 2},
			wantValues: []float64{0, 0, 7, 0, 0, 2},
			wantTimes:  []float64{1, 3, 4, 5, 8, 9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			times := make([]float64, len(tt.values))
			for i := range times {
				times[i] = float64(i + 1)
			}

			series, err := Compact(times, tt.values, ChromatogramOptions()...)
			require.NoError(t, err)
			require.Equal(t, tt.wantValues, series.Values)
			require.Equal(t, tt.wantTimes, Expand(series))
		})
	}
}

func TestCompact_ZeroCollapseDisabled(t *testing.T) {
	values := []float64{5, 0, 0, 0, 3}
	times := []float64{0, 1, 2, 3, 4}

	series, err := Compact(times, values, WithZeroCollapse(false))
	require.NoError(t, err)
	require.Equal(t, values, series.Values)
	require.Len(t, series.DeltaTimes, 5)
}

func TestCompact_DeltaEncoding(t *testing.T) {
	times := []float64{1.2344, 1.2501, 1.2649, 1.2801}
	values := []float64{10.4, 20.5, 21.5, 0.2}

	series, err := Compact(times, values, ChromatogramOptions()...)
	require.NoError(t, err)

	require.Equal(t, []int64{1234, 16, 15, 15}, series.DeltaTimes)
	require.Equal(t, int64(math.Round(times[0]*1000)), series.DeltaTimes[0])
	// 20.5 and 21.5 round half to even.
	require.Equal(t, []float64{10, 20, 22, 0}, series.Values)
	require.Equal(t, 3, series.TimePrecision)
	require.Equal(t, 0, series.ValuePrecision)
}

func TestCompact_RoundTripLaw(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := range 50 {
		n := rng.Intn(400)
		times := make([]float64, n)
		values := make([]float64, n)
		t0 := rng.Float64() * 30
		for i := range n {
			t0 += rng.Float64() * 0.05
			times[i] = t0
			if rng.Intn(3) == 0 {
				values[i] = 0
			} else {
				values[i] = rng.Float64() * 1e6
			}
		}

		series, err := Compact(times, values, ChromatogramOptions()...)
		require.NoError(t, err, "iteration %d", iter)

		wantTimes, wantValues, err := Retained(times, values, ChromatogramOptions()...)
		require.NoError(t, err)
		require.Equal(t, wantTimes, Expand(series), "iteration %d", iter)
		require.Equal(t, wantValues, series.Values, "iteration %d", iter)

		for i, v := range series.Values {
			require.Equal(t, math.Trunc(v), v, "value %d not integral", i)
		}
	}
}

func TestCompact_ProfilePreset(t *testing.T) {
	seconds := []float64{1, 2, 3, 5}
	values := []float64{0, 0, 0, 101.256}

	series, err := Compact(seconds, values, ProfileOptions()...)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 1, 1, 2}, series.DeltaTimes)
	require.Equal(t, []float64{0, 0, 0, 101.26}, series.Values)
	require.Equal(t, seconds, Expand(series))
}

func TestCompact_Empty(t *testing.T) {
	series, err := Compact(nil, nil)
	require.NoError(t, err)
	require.Empty(t, series.DeltaTimes)
	require.Empty(t, series.Values)
	require.Empty(t, Expand(series))
}

func TestCompact_NegativeZero(t *testing.T) {
	series, err := Compact([]float64{0, 1}, []float64{-0.2, 4})
	require.NoError(t, err)
	require.False(t, math.Signbit(series.Values[0]))
}

func TestCompact_Errors(t *testing.T) {
	_, err := Compact([]float64{1, 2}, []float64{1})
	require.ErrorIs(t, err, errs.ErrLengthMismatch)

	_, err = Compact([]float64{math.NaN()}, []float64{1})
	require.ErrorIs(t, err, errs.ErrInvalidPayload)

	_, err = Compact([]float64{1}, []float64{math.Inf(1)})
	require.ErrorIs(t, err, errs.ErrInvalidPayload)

	_, err = Compact(nil, nil, WithTimePrecision(-1))
	require.ErrorIs(t, err, errs.ErrInvalidPrecision)

	_, err = Compact(nil, nil, WithValuePrecision(MaxPrecision+1))
	require.ErrorIs(t, err, errs.ErrInvalidPrecision)
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)
	require.Equal(t, Config{TimePrecision: 3, ValuePrecision: 0, CollapseZeros: true}, cfg)

	cfg, err = NewConfig(ProfileOptions()...)
	require.NoError(t, err)
	require.Equal(t, Config{TimePrecision: 0, ValuePrecision: 2, CollapseZeros: false}, cfg)
}

func TestRoundValue(t *testing.T) {
	require.Equal(t, 2.0, RoundValue(2.5, 0))
	require.Equal(t, 4.0, RoundValue(3.5, 0))
	require.Equal(t, 1.26, RoundValue(1.256, 2))
	require.Equal(t, 0.0, RoundValue(0.004, 2))
}
