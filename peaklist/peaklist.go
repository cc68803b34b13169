// Package peaklist parses peak-list descriptors ("Peak list #<n>.xml").
//
// Each row of a descriptor is one compound. A row that carries peak detection
// data has a <peak> element whose <mzpeaks> block holds the XIC window: three
// base64 arrays of big-endian scan ids (int32), m/z values and heights
// (float32), all of the declared quantity.
//
// Retention times are stored in seconds and converted to minutes.
package peaklist

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/afero"

	"github.com/maspeqc/qcpack/codec"
	"github.com/maspeqc/qcpack/errs"
	"github.com/maspeqc/qcpack/internal/options"
)

// Window is the XIC window exported for a peak. The three arrays have equal
// length.
type Window struct {
	ScanIDs []int32
	MZ      []float32
	Heights []float32
}

// Len returns the number of sampled scans.
func (w *Window) Len() int {
	if w == nil {
		return 0
	}

	return len(w.ScanIDs)
}

// Peak is one compound row.
type Peak struct {
	ID       int
	Name     string
	MZ       float64
	RT       float64 // expected retention time in minutes
	Height   float64
	Area     float64
	BestScan int
	Window   *Window // nil when the row has no peak detection data
}

// PeakList is a parsed peak-list descriptor.
type PeakList struct {
	Name     string
	RawFile  string // join key reference to "Raw data file #<n>"
	Quantity int    // declared number of rows
	Peaks    []Peak
	Warnings []error
}

// WithWindow returns the peaks that carry an XIC window, in row order.
func (pl *PeakList) WithWindow() []Peak {
	out := make([]Peak, 0, len(pl.Peaks))
	for _, p := range pl.Peaks {
		if p.Window != nil {
			out = append(out, p)
		}
	}

	return out
}

type config struct {
	logger log.Logger
	source string
}

// Option configures Parse.
type Option = options.Option[*config]

// WithLogger sets the logger receiving integrity warnings.
func WithLogger(logger log.Logger) Option {
	return options.NoError(func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	})
}

// WithSource names the descriptor in warnings and errors.
func WithSource(name string) Option {
	return options.NoError(func(c *config) {
		c.source = name
	})
}

type peakListXML struct {
	Name     string   `xml:"pl_name"`
	Quantity string   `xml:"quantity"`
	RawFile  string   `xml:"raw_file"`
	Rows     []rowXML `xml:"row"`
}

type rowXML struct {
	ID         string        `xml:"id,attr"`
	Identities []identityXML `xml:"identity"`
	Peaks      []peakXML     `xml:"peak"`
}

type identityXML struct {
	Properties []propertyXML `xml:"identity_property"`
}

type propertyXML struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type peakXML struct {
	MZ       string      `xml:"mz,attr"`
	RT       string      `xml:"rt,attr"`
	Height   string      `xml:"height,attr"`
	Area     string      `xml:"area,attr"`
	BestScan string      `xml:"best_scan"`
	MZPeaks  *mzPeaksXML `xml:"mzpeaks"`
}

type mzPeaksXML struct {
	Quantity string `xml:"quantity,attr"`
	ScanID   string `xml:"scan_id"`
	MZ       string `xml:"mz"`
	Height   string `xml:"height"`
}

// ParseFile parses the descriptor at path on fs.
func ParseFile(fs afero.Fs, path string, opts ...Option) (*PeakList, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open peak list: %w", err)
	}
	defer f.Close()

	opts = append([]Option{WithSource(baseName(path))}, opts...)

	return Parse(f, opts...)
}

// Parse reads a peak-list descriptor from r.
//
// A row that cannot be decoded is skipped and reported as *errs.RecordError in
// Warnings. A row count that differs from the declared quantity is reported as
// *errs.IntegrityWarning. Neither aborts parsing.
func Parse(r io.Reader, opts ...Option) (*PeakList, error) {
	cfg := &config{logger: log.NewNopLogger()}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	var doc peakListXML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrMalformedDescriptor, cfg.source, err)
	}

	quantity, err := strconv.Atoi(strings.TrimSpace(doc.Quantity))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: quantity %q", errs.ErrMalformedDescriptor, cfg.source, doc.Quantity)
	}

	pl := &PeakList{
		Name:     strings.TrimSpace(doc.Name),
		RawFile:  strings.TrimSpace(doc.RawFile),
		Quantity: quantity,
		Peaks:    make([]Peak, 0, len(doc.Rows)),
	}

	for i := range doc.Rows {
		peak, err := parseRow(&doc.Rows[i])
		if err != nil {
			recErr := errs.NewRecordError(cfg.source, "row "+rowLabel(&doc.Rows[i], i), err)
			level.Warn(cfg.logger).Log("msg", "skipping peak row", "source", cfg.source, "err", err)
			pl.Warnings = append(pl.Warnings, recErr)

			continue
		}
		pl.Peaks = append(pl.Peaks, peak)
	}

	if len(pl.Peaks) != quantity {
		w := errs.NewIntegrityWarning(cfg.source, "peak rows", quantity, len(pl.Peaks))
		level.Warn(cfg.logger).Log("msg", "peak count mismatch", "source", cfg.source, "declared", quantity, "observed", len(pl.Peaks))
		pl.Warnings = append(pl.Warnings, w)
	}

	return pl, nil
}

func parseRow(row *rowXML) (Peak, error) {
	var p Peak

	id, err := strconv.Atoi(strings.TrimSpace(row.ID))
	if err != nil {
		return p, fmt.Errorf("row id %q: %w", row.ID, err)
	}
	p.ID = id
	p.Name = rowName(row)

	if len(row.Peaks) == 0 {
		return p, nil
	}
	peak := &row.Peaks[0]

	fields := []struct {
		name string
		text string
		dst  *float64
	}{
		{"mz", peak.MZ, &p.MZ},
		{"rt", peak.RT, &p.RT},
		{"height", peak.Height, &p.Height},
		{"area", peak.Area, &p.Area},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f.text), 64)
		if err != nil {
			return p, fmt.Errorf("peak %s %q: %w", f.name, f.text, err)
		}
		*f.dst = v
	}
	p.RT /= 60

	if p.BestScan, err = strconv.Atoi(strings.TrimSpace(peak.BestScan)); err != nil {
		return p, fmt.Errorf("best_scan %q: %w", peak.BestScan, err)
	}

	if peak.MZPeaks == nil {
		return p, fmt.Errorf("%w: peak without mzpeaks", errs.ErrMalformedDescriptor)
	}

	window, err := parseWindow(peak.MZPeaks)
	if err != nil {
		return p, err
	}
	p.Window = window

	return p, nil
}

func parseWindow(mp *mzPeaksXML) (*Window, error) {
	quantity, err := strconv.Atoi(strings.TrimSpace(mp.Quantity))
	if err != nil {
		return nil, fmt.Errorf("mzpeaks quantity %q: %w", mp.Quantity, err)
	}

	ids, err := codec.DecodeBase64Int32s(mp.ScanID, quantity)
	if err != nil {
		return nil, fmt.Errorf("scan_id: %w", err)
	}

	mz, err := codec.DecodeBase64Float32s(mp.MZ, quantity)
	if err != nil {
		return nil, fmt.Errorf("mz: %w", err)
	}

	heights, err := codec.DecodeBase64Float32s(mp.Height, quantity)
	if err != nil {
		return nil, fmt.Errorf("height: %w", err)
	}

	return &Window{ScanIDs: ids, MZ: mz, Heights: heights}, nil
}

// rowName returns the "name" identity property, falling back to the first
// property of the first identity.
func rowName(row *rowXML) string {
	for _, id := range row.Identities {
		for _, prop := range id.Properties {
			if prop.Name == "name" {
				return strings.TrimSpace(prop.Value)
			}
		}
	}

	if len(row.Identities) > 0 && len(row.Identities[0].Properties) > 0 {
		return strings.TrimSpace(row.Identities[0].Properties[0].Value)
	}

	return ""
}

func rowLabel(row *rowXML, index int) string {
	if id := strings.TrimSpace(row.ID); id != "" {
		return id
	}

	return "#" + strconv.Itoa(index+1)
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}

	return path
}
