package peaklist

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/maspeqc/qcpack/codec"
	"github.com/maspeqc/qcpack/errs"
	"github.com/maspeqc/qcpack/internal/fixture"
)

func TestParse_SimpleRun(t *testing.T) {
	fx, _ := fixture.SimpleRun()

	pl, err := Parse(bytes.NewReader(fx.XML()))
	require.NoError(t, err)
	require.Empty(t, pl.Warnings)

	require.Equal(t, fx.Name, pl.Name)
	require.Equal(t, "1", pl.RawFile)
	require.Equal(t, 1, pl.Quantity)
	require.Len(t, pl.Peaks, 1)

	p := pl.Peaks[0]
	require.Equal(t, 1, p.ID)
	require.Equal(t, "Caffeine", p.Name)
	require.Equal(t, 195.0877, p.MZ)
	require.InDelta(t, 301.2/60, p.RT, 1e-12)
	require.Equal(t, 5.0e6, p.Height)
	require.Equal(t, 1.2e7, p.Area)
	require.Equal(t, 2, p.BestScan)

	require.NotNil(t, p.Window)
	require.Equal(t, 3, p.Window.Len())
	require.Equal(t, []int32{1, 2, 3}, p.Window.ScanIDs)
	require.Equal(t, fx.Rows[0].Window.MZ, p.Window.MZ)
	require.Equal(t, fx.Rows[0].Window.Heights, p.Window.Heights)
}

func TestParse_RowWithoutPeak(t *testing.T) {
	fx, _ := fixture.SimpleRun()
	fx.Rows = append(fx.Rows, fixture.Row{ID: 2, Name: "Unknown 231.1"})

	pl, err := Parse(bytes.NewReader(fx.XML()))
	require.NoError(t, err)
	require.Empty(t, pl.Warnings)
	require.Len(t, pl.Peaks, 2)

	require.Nil(t, pl.Peaks[1].Window)
	require.Equal(t, 0, pl.Peaks[1].Window.Len())
	require.Equal(t, "Unknown 231.1", pl.Peaks[1].Name)

	withWindow := pl.WithWindow()
	require.Len(t, withWindow, 1)
	require.Equal(t, 1, withWindow[0].ID)
}

func TestParse_QuantityMismatch(t *testing.T) {
	fx, _ := fixture.SimpleRun()
	fx.Quantity = fixture.Int(4)

	var logs bytes.Buffer
	pl, err := Parse(bytes.NewReader(fx.XML()), WithLogger(log.NewLogfmtLogger(&logs)), WithSource("Peak list #1.xml"))
	require.NoError(t, err)
	require.Len(t, pl.Peaks, 1)
	require.Len(t, pl.Warnings, 1)

	var w *errs.IntegrityWarning
	require.True(t, errors.As(pl.Warnings[0], &w))
	require.ErrorIs(t, w, errs.ErrIntegrity)
	require.Equal(t, 4, w.Declared)
	require.Equal(t, 1, w.Observed)
	require.Equal(t, "Peak list #1.xml", w.Source)

	require.Contains(t, logs.String(), "level=warn")
	require.Contains(t, logs.String(), "declared=4")
}

func TestParse_MalformedRow(t *testing.T) {
	t.Run("ShortBinaryArray", func(t *testing.T) {
		fx, _ := fixture.SimpleRun()
		fx.Rows = append(fx.Rows, fixture.Row{
			ID: 2, Name: "Broken", MZ: 100, RTSeconds: 60, BestScan: 1,
			Window: &fixture.Window{
				ScanIDs:  []int32{1, 2},
				MZ:       []float32{100, 100.1},
				Heights:  []float32{1, 2},
				Quantity: fixture.Int(3),
			},
		})

		pl, err := Parse(bytes.NewReader(fx.XML()))
		require.NoError(t, err)
		require.Len(t, pl.Peaks, 1)
		require.Equal(t, 2, pl.Quantity)
		require.Len(t, pl.Warnings, 2)

		var recErr *errs.RecordError
		require.True(t, errors.As(pl.Warnings[0], &recErr))
		require.Equal(t, "row 2", recErr.Record)
		require.ErrorIs(t, pl.Warnings[0], errs.ErrMalformedBinaryPayload)
		require.ErrorIs(t, pl.Warnings[1], errs.ErrIntegrity)
	})

	t.Run("HugeQuantity", func(t *testing.T) {
		fx, _ := fixture.SimpleRun()
		fx.Rows = append(fx.Rows, fixture.Row{
			ID: 2, Name: "Huge", MZ: 100, RTSeconds: 60, BestScan: 1,
			Window: &fixture.Window{Quantity: fixture.Int(1 << 62)},
		})

		pl, err := Parse(bytes.NewReader(fx.XML()))
		require.NoError(t, err)
		require.Len(t, pl.Peaks, 1)
		require.ErrorIs(t, pl.Warnings[0], errs.ErrMalformedBinaryPayload)
	})

	t.Run("BadNumber", func(t *testing.T) {
		fx, _ := fixture.SimpleRun()
		fx.Rows[0].RawMZ = "195,0877"

		pl, err := Parse(bytes.NewReader(fx.XML()))
		require.NoError(t, err)
		require.Empty(t, pl.Peaks)
		require.Len(t, pl.Warnings, 2)
		require.True(t, errs.IsWarning(pl.Warnings[0]))
		require.True(t, errs.IsWarning(pl.Warnings[1]))
	})
}

func TestParse_MalformedDocument(t *testing.T) {
	_, err := Parse(strings.NewReader("<peaklist><pl_name>x</pl_name>"))
	require.ErrorIs(t, err, errs.ErrMalformedDescriptor)

	_, err = Parse(strings.NewReader("<peaklist><quantity>many</quantity></peaklist>"))
	require.ErrorIs(t, err, errs.ErrMalformedDescriptor)
}

func TestParse_WrappedBase64(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<peaklist>
  <pl_name>wrapped</pl_name>
  <quantity>1</quantity>
  <raw_file>2</raw_file>
  <row id="7">
    <identity><identity_property name="formula">C8H10N4O2</identity_property></identity>
    <peak mz="195.0877" rt="120" height="10" area="20">
      <best_scan>1</best_scan>
      <mzpeaks quantity="2">
        <scan_id>` + wrap(codec.EncodeBase64Int32s([]int32{1, 2})) + `</scan_id>
        <mz>` + wrap(codec.EncodeBase64Float32s([]float32{195.08, 195.09})) + `</mz>
        <height>` + codec.EncodeBase64Float32s([]float32{1, 2}) + `</height>
      </mzpeaks>
    </peak>
  </row>
</peaklist>`

	pl, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Empty(t, pl.Warnings)
	require.Len(t, pl.Peaks, 1)

	p := pl.Peaks[0]
	require.Equal(t, "C8H10N4O2", p.Name)
	require.Equal(t, 2.0, p.RT)
	require.Equal(t, []int32{1, 2}, p.Window.ScanIDs)
	require.Equal(t, []float32{195.08, 195.09}, p.Window.MZ)
}

func TestParseFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	fx, _ := fixture.SimpleRun()
	require.NoError(t, afero.WriteFile(fs, "/work/Peak list #1.xml", fx.XML(), 0o644))

	pl, err := ParseFile(fs, "/work/Peak list #1.xml")
	require.NoError(t, err)
	require.Len(t, pl.Peaks, 1)

	_, err = ParseFile(fs, "/work/Peak list #2.xml")
	require.Error(t, err)
}

// wrap breaks s into indented four-character lines.
func wrap(s string) string {
	var b strings.Builder
	b.WriteString("\n")
	for len(s) > 4 {
		b.WriteString("          " + s[:4] + "\n")
		s = s[4:]
	}
	b.WriteString("          " + s + "\n")

	return b.String()
}
