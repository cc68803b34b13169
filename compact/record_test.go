package compact

import (
	"testing"

	"github.com/maspeqc/qcpack/errs"
	"github.com/maspeqc/qcpack/format"
	"github.com/stretchr/testify/require"
)

func testChromatogram(t *testing.T, n int) ChromatogramRecord {
	t.Helper()

	times := make([]float64, n)
	values := make([]float64, n)
	for i := range n {
		times[i] = 5.0 + float64(i)*0.0137
		if i%5 != 0 {
			values[i] = float64(i*i*31 + 7)
		}
	}

	series, err := Compact(times, values, ChromatogramOptions()...)
	require.NoError(t, err)

	return ChromatogramRecord{Series: series, MZ: 195.0877, ExpectedRT: 5.42}
}

func TestEncoder_ChromatogramJSON(t *testing.T) {
	enc, err := NewEncoder(format.PayloadJSON, format.CompressionZstd)
	require.NoError(t, err)
	require.Equal(t, "json", enc.Encoding())

	rec := ChromatogramRecord{
		Series: Series{
			DeltaTimes:     []int64{5001, 14, 14},
			Values:         []float64{0, 120, 0},
			TimePrecision:  ChromatogramTimePrecision,
			ValuePrecision: ChromatogramValuePrecision,
		},
		MZ:         195.0877,
		ExpectedRT: 5.1,
	}

	data, err := enc.EncodeChromatogram(rec)
	require.NoError(t, err)
	require.JSONEq(t, `{"rts":[5001,14,14],"intensities":[0,120,0],"mz":195.0877,"exp_rt":5.1}`, string(data))

	got, err := DecodeChromatogram(data, enc.Encoding())
	require.NoError(t, err)
	require.Equal(t, rec, got)
}

func TestEncoder_ProfileJSON(t *testing.T) {
	enc, err := NewEncoder(format.PayloadJSON, format.CompressionNone)
	require.NoError(t, err)

	rec := ProfileRecord{
		Series: Series{
			DeltaTimes:     []int64{1, 1, 1},
			Values:         []float64{250.25, 250.5, 251},
			TimePrecision:  ProfileTimePrecision,
			ValuePrecision: ProfileValuePrecision,
		},
		Channel: "lp",
	}

	data, err := enc.EncodeProfile(rec)
	require.NoError(t, err)
	require.JSONEq(t, `{"rts":[1,1,1],"intensities":[250.25,250.5,251]}`, string(data))

	got, err := DecodeProfile(data, "json")
	require.NoError(t, err)
	require.Empty(t, got.Channel)
	require.Equal(t, rec.Series, got.Series)
}

func TestEncoder_EmptySeriesJSON(t *testing.T) {
	enc, err := NewEncoder(format.PayloadJSON, format.CompressionNone)
	require.NoError(t, err)

	data, err := enc.EncodeProfile(ProfileRecord{})
	require.NoError(t, err)
	require.JSONEq(t, `{"rts":[],"intensities":[]}`, string(data))
}

func TestEncoder_PackedRoundTrip(t *testing.T) {
	compressions := []format.CompressionType{
		format.CompressionNone,
		format.CompressionZstd,
		format.CompressionS2,
		format.CompressionLZ4,
	}

	for _, ct := range compressions {
		t.Run(ct.String(), func(t *testing.T) {
			enc, err := NewEncoder(format.PayloadPacked, ct)
			require.NoError(t, err)
			require.Equal(t, format.Encoding(format.PayloadPacked, ct), enc.Encoding())

			rec := testChromatogram(t, 600)
			data, err := enc.EncodeChromatogram(rec)
			require.NoError(t, err)

			got, err := DecodeChromatogram(data, enc.Encoding())
			require.NoError(t, err)
			require.Equal(t, rec, got)

			profile := ProfileRecord{Series: Series{
				DeltaTimes:     []int64{61, 1, 1, 1},
				Values:         []float64{250.25, -0.5, 0, 1e5},
				TimePrecision:  ProfileTimePrecision,
				ValuePrecision: ProfileValuePrecision,
			}}
			data, err = enc.EncodeProfile(profile)
			require.NoError(t, err)

			gotProfile, err := DecodeProfile(data, enc.Encoding())
			require.NoError(t, err)
			require.Equal(t, profile, gotProfile)
		})
	}
}

func TestEncoder_PackedSmallerThanJSON(t *testing.T) {
	rec := testChromatogram(t, 2000)

	jsonEnc, err := NewEncoder(format.PayloadJSON, format.CompressionNone)
	require.NoError(t, err)
	packedEnc, err := NewEncoder(format.PayloadPacked, format.CompressionZstd)
	require.NoError(t, err)

	jsonData, err := jsonEnc.EncodeChromatogram(rec)
	require.NoError(t, err)
	packedData, err := packedEnc.EncodeChromatogram(rec)
	require.NoError(t, err)

	require.Less(t, len(packedData), len(jsonData))
}

func TestDecode_Errors(t *testing.T) {
	t.Run("UnknownEncoding", func(t *testing.T) {
		_, err := DecodeChromatogram([]byte("{}"), "xml")
		require.ErrorIs(t, err, errs.ErrInvalidPayload)
	})

	t.Run("BadJSON", func(t *testing.T) {
		_, err := DecodeProfile([]byte("{"), "json")
		require.ErrorIs(t, err, errs.ErrInvalidPayload)
	})

	t.Run("JSONLengthMismatch", func(t *testing.T) {
		_, err := DecodeChromatogram([]byte(`{"rts":[1,2],"intensities":[1]}`), "json")
		require.ErrorIs(t, err, errs.ErrLengthMismatch)
	})

	t.Run("PackedGarbage", func(t *testing.T) {
		_, err := DecodeChromatogram([]byte{1, 2, 3}, "packed")
		require.ErrorIs(t, err, errs.ErrInvalidPayload)
	})

	t.Run("PackedKindMismatch", func(t *testing.T) {
		enc, err := NewEncoder(format.PayloadPacked, format.CompressionS2)
		require.NoError(t, err)

		data, err := enc.EncodeProfile(ProfileRecord{Series: Series{
			DeltaTimes: []int64{1}, Values: []float64{1}, ValuePrecision: 2,
		}})
		require.NoError(t, err)

		_, err = DecodeChromatogram(data, enc.Encoding())
		require.ErrorIs(t, err, errs.ErrInvalidPayload)
	})

	t.Run("PackedTruncated", func(t *testing.T) {
		enc, err := NewEncoder(format.PayloadPacked, format.CompressionNone)
		require.NoError(t, err)

		data, err := enc.EncodeChromatogram(testChromatogram(t, 10))
		require.NoError(t, err)

		_, err = DecodeChromatogram(data[:len(data)-4], enc.Encoding())
		require.ErrorIs(t, err, errs.ErrInvalidPayload)
	})

	t.Run("UnsupportedPayloadFormat", func(t *testing.T) {
		_, err := NewEncoder(format.PayloadFormat(9), format.CompressionNone)
		require.ErrorIs(t, err, errs.ErrInvalidPayload)
	})
}

func TestZigzag(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 63, -64, 1 << 40, -(1 << 40)} {
		require.Equal(t, v, unzigzag(zigzag(v)))
	}
	require.Equal(t, uint64(1), zigzag(-1))
	require.Equal(t, uint64(2), zigzag(1))
}
