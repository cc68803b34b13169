// Package fixture builds synthetic analysis bundles for tests.
package fixture

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"

	"github.com/maspeqc/qcpack/codec"
)

// Int returns a pointer to n, used for count overrides.
func Int(n int) *int {
	return &n
}

// Point is one (m/z, intensity) data point of a scan.
type Point struct {
	MZ        float32
	Intensity float32
}

// Scan describes one scan of a raw data file.
type Scan struct {
	ID        int
	StorageID int // defaults to the 1-based position in RawFile.Scans
	MSLevel   int
	RTSeconds float64
	Polarity  string // defaults to "+"
	Points    []Point

	DeclaredPoints *int // overrides <num_dp> of the scan element
}

// RawFile describes a raw data file descriptor and its binary payload.
type RawFile struct {
	Name  string
	Scans []Scan

	NumScans *int // overrides <num_scans>
	Quantity *int // overrides stored_datapoints@quantity
}

func (rf RawFile) storageID(i int) int {
	if rf.Scans[i].StorageID != 0 {
		return rf.Scans[i].StorageID
	}

	return i + 1
}

// Payload returns the ".scans" content: every scan's points as interleaved
// big-endian float32 (m/z, intensity) pairs, in storage order.
func (rf RawFile) Payload() []byte {
	c := codec.New(codec.BigEndian())

	var buf []byte
	for _, s := range rf.Scans {
		for _, p := range s.Points {
			buf = c.AppendFloat32s(buf, []float32{p.MZ, p.Intensity})
		}
	}

	return buf
}

// XML returns the raw data file descriptor.
func (rf RawFile) XML() []byte {
	var b bytes.Buffer

	quantity := len(rf.Scans)
	if rf.Quantity != nil {
		quantity = *rf.Quantity
	}
	numScans := len(rf.Scans)
	if rf.NumScans != nil {
		numScans = *rf.NumScans
	}

	b.WriteString(xml.Header)
	b.WriteString("<rawdatafile>\n")
	fmt.Fprintf(&b, "  <name>%s</name>\n", escape(rf.Name))
	fmt.Fprintf(&b, "  <stored_datapoints quantity=\"%d\">\n", quantity)

	offset := 0
	for i, s := range rf.Scans {
		fmt.Fprintf(&b, "    <stored_data storage_id=\"%d\" num_dp=\"%d\">%d</stored_data>\n",
			i+1, len(s.Points), offset)
		offset += len(s.Points) * 2 * codec.ElementSize
	}
	b.WriteString("  </stored_datapoints>\n")
	fmt.Fprintf(&b, "  <num_scans>%d</num_scans>\n", numScans)

	for i, s := range rf.Scans {
		declared := len(s.Points)
		if s.DeclaredPoints != nil {
			declared = *s.DeclaredPoints
		}
		polarity := s.Polarity
		if polarity == "" {
			polarity = "+"
		}

		fmt.Fprintf(&b, "  <scan storage_id=\"%d\">\n", rf.storageID(i))
		fmt.Fprintf(&b, "    <id>%d</id>\n", s.ID)
		fmt.Fprintf(&b, "    <mslevel>%d</mslevel>\n", s.MSLevel)
		fmt.Fprintf(&b, "    <rt>%s</rt>\n", strconv.FormatFloat(s.RTSeconds, 'f', -1, 64))
		b.WriteString("    <centroid>true</centroid>\n")
		fmt.Fprintf(&b, "    <num_dp>%d</num_dp>\n", declared)
		fmt.Fprintf(&b, "    <polarity>%s</polarity>\n", escape(polarity))
		fmt.Fprintf(&b, "    <scan_description>FTMS %s p ESI Full ms</scan_description>\n", escape(polarity))
		b.WriteString("    <scan_mz_range>100.0 - 1000.0</scan_mz_range>\n")
		b.WriteString("  </scan>\n")
	}
	b.WriteString("</rawdatafile>\n")

	return b.Bytes()
}

// Window is an exported XIC window.
type Window struct {
	ScanIDs []int32
	MZ      []float32
	Heights []float32

	Quantity *int // overrides mzpeaks@quantity
}

// Row is one compound row of a peak list.
type Row struct {
	ID        int
	Name      string
	MZ        float64
	RTSeconds float64
	Height    float64
	Area      float64
	BestScan  int
	Window    *Window // nil writes a row without <peak>

	RawMZ string // replaces the mz attribute verbatim when set
}

// PeakList describes a peak-list descriptor.
type PeakList struct {
	Name    string
	RawFile string
	Rows    []Row

	Quantity *int // overrides <quantity>
}

// XML returns the peak-list descriptor.
func (pl PeakList) XML() []byte {
	var b bytes.Buffer

	quantity := len(pl.Rows)
	if pl.Quantity != nil {
		quantity = *pl.Quantity
	}

	b.WriteString(xml.Header)
	b.WriteString("<peaklist>\n")
	fmt.Fprintf(&b, "  <pl_name>%s</pl_name>\n", escape(pl.Name))
	fmt.Fprintf(&b, "  <quantity>%d</quantity>\n", quantity)
	fmt.Fprintf(&b, "  <raw_file>%s</raw_file>\n", escape(pl.RawFile))

	for _, r := range pl.Rows {
		fmt.Fprintf(&b, "  <row id=\"%d\">\n", r.ID)
		b.WriteString("    <identity id=\"0\" preferred=\"true\">\n")
		fmt.Fprintf(&b, "      <identity_property name=\"name\">%s</identity_property>\n", escape(r.Name))
		b.WriteString("    </identity>\n")

		if r.Window != nil {
			mz := strconv.FormatFloat(r.MZ, 'f', -1, 64)
			if r.RawMZ != "" {
				mz = r.RawMZ
			}
			fmt.Fprintf(&b, "    <peak column_id=\"0\" mz=\"%s\" rt=\"%s\" height=\"%s\" area=\"%s\" status=\"DETECTED\">\n",
				escape(mz), ftoa(r.RTSeconds), ftoa(r.Height), ftoa(r.Area))
			fmt.Fprintf(&b, "      <best_scan>%d</best_scan>\n", r.BestScan)

			quantity := len(r.Window.ScanIDs)
			if r.Window.Quantity != nil {
				quantity = *r.Window.Quantity
			}
			fmt.Fprintf(&b, "      <mzpeaks quantity=\"%d\">\n", quantity)
			fmt.Fprintf(&b, "        <scan_id>%s</scan_id>\n", codec.EncodeBase64Int32s(r.Window.ScanIDs))
			fmt.Fprintf(&b, "        <mz>%s</mz>\n", codec.EncodeBase64Float32s(r.Window.MZ))
			fmt.Fprintf(&b, "        <height>%s</height>\n", codec.EncodeBase64Float32s(r.Window.Heights))
			b.WriteString("      </mzpeaks>\n")
			b.WriteString("    </peak>\n")
		}
		b.WriteString("  </row>\n")
	}
	b.WriteString("</peaklist>\n")

	return b.Bytes()
}

// Bundle collects members of a synthetic bundle.
type Bundle struct {
	files map[string][]byte
}

// NewBundle creates an empty bundle.
func NewBundle() *Bundle {
	return &Bundle{files: make(map[string][]byte)}
}

// Add adds a member with arbitrary content.
func (b *Bundle) Add(name string, data []byte) *Bundle {
	b.files[name] = data
	return b
}

// AddPeakList adds "Peak list #<key>.xml".
func (b *Bundle) AddPeakList(key string, pl PeakList) *Bundle {
	return b.Add("Peak list #"+key+".xml", pl.XML())
}

// AddRawFile adds "Raw data file #<key>.xml" and "Raw data file #<key>.scans".
func (b *Bundle) AddRawFile(key string, rf RawFile) *Bundle {
	b.Add("Raw data file #"+key+".xml", rf.XML())
	return b.Add("Raw data file #"+key+".scans", rf.Payload())
}

// Zip returns the bundle as a zip container. Members are written in name order.
func (b *Bundle) Zip() ([]byte, error) {
	names := make([]string, 0, len(b.files))
	for name := range b.files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(b.files[name]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Write stores the zipped bundle at path on fs.
func (b *Bundle) Write(fs afero.Fs, path string) error {
	data, err := b.Zip()
	if err != nil {
		return err
	}

	return afero.WriteFile(fs, path, data, 0o644)
}

// SimpleRun returns a peak list with one 3-point window row and a raw file with
// three MS1 scans of two points each, the smallest bundle yielding a chromatogram.
func SimpleRun() (PeakList, RawFile) {
	pl := PeakList{
		Name:    "QC_Metabolomics_1.mzML peaks",
		RawFile: "1",
		Rows: []Row{{
			ID:        1,
			Name:      "Caffeine",
			MZ:        195.0877,
			RTSeconds: 301.2,
			Height:    5.0e6,
			Area:      1.2e7,
			BestScan:  2,
			Window: &Window{
				ScanIDs: []int32{1, 2, 3},
				MZ:      []float32{195.0870, 195.0877, 195.0884},
				Heights: []float32{1.0e6, 5.0e6, 2.0e6},
			},
		}},
	}

	rf := RawFile{
		Name: "QC_Metabolomics_1.mzML",
		Scans: []Scan{
			{ID: 1, MSLevel: 1, RTSeconds: 300.6, Points: []Point{{150.1, 10}, {195.0875, 1000}}},
			{ID: 2, MSLevel: 1, RTSeconds: 301.2, Points: []Point{{195.0877, 5000}, {300.2, 20}}},
			{ID: 3, MSLevel: 1, RTSeconds: 301.8, Points: []Point{{120.0, 30}, {195.0990, 700}}},
		},
	}

	return pl, rf
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func escape(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))

	return b.String()
}
