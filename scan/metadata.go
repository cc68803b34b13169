// Package scan reads raw-scan metadata descriptors ("Raw data file #<n>.xml")
// and materializes scans from the matching binary payload
// ("Raw data file #<n>.scans").
//
// The descriptor carries an offset table: one stored_data entry per 1-based
// storage id giving the byte offset and point count of a scan inside the
// payload. Each scan element refers to its slot by storage id. A scan's data is
// points*2 big-endian float32 values, interleaved as (m/z, intensity) pairs.
package scan

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/maspeqc/qcpack/errs"
	"github.com/maspeqc/qcpack/internal/options"
)

// Slot locates one scan inside the binary payload.
type Slot struct {
	Offset int64
	Points int
}

// Scan is the metadata of one scan.
type Scan struct {
	ID          int
	StorageID   int // 1-based offset table index
	MSLevel     int
	RT          float64 // minutes
	Points      int     // declared number of data points
	Centroid    bool
	Polarity    string
	Description string
	MZRange     string

	slot Slot
}

// Slot returns the offset table entry of the scan.
func (s Scan) Slot() Slot {
	return s.slot
}

// Metadata is a parsed raw-scan metadata descriptor.
type Metadata struct {
	Name     string
	NumScans int          // declared scan count
	Slots    map[int]Slot // offset table keyed by storage id
	Scans    []Scan       // scans with nonzero declared points, ascending id
	Skipped  int          // scans dropped for declaring zero points
	Warnings []error
}

type config struct {
	logger log.Logger
	source string
}

// Option configures ParseMetadata and Open.
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

func newConfig(opts []Option) (*config, error) {
	cfg := &config{logger: log.NewNopLogger()}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	return cfg, nil
}

type rawDataFileXML struct {
	Name             string              `xml:"name"`
	NumScans         string              `xml:"num_scans"`
	StoredDatapoints storedDatapointsXML `xml:"stored_datapoints"`
	Scans            []scanXML           `xml:"scan"`
}

type storedDatapointsXML struct {
	Quantity string          `xml:"quantity,attr"`
	Entries  []storedDataXML `xml:"stored_data"`
}

type storedDataXML struct {
	StorageID string `xml:"storage_id,attr"`
	Points    string `xml:"num_dp,attr"`
	Offset    string `xml:",chardata"`
}

type scanXML struct {
	StorageID   string `xml:"storage_id,attr"`
	ID          string `xml:"id"`
	MSLevel     string `xml:"mslevel"`
	RT          string `xml:"rt"`
	Centroid    string `xml:"centroid"`
	Points      string `xml:"num_dp"`
	Polarity    string `xml:"polarity"`
	Description string `xml:"scan_description"`
	MZRange     string `xml:"scan_mz_range"`
}

// ParseMetadata reads a raw-scan metadata descriptor from r.
//
// Count mismatches (declared scans, stored quantity and per-scan points
// against the offset table) are reported as *errs.IntegrityWarning. Scans that
// cannot be decoded or reference an unknown storage id are dropped and
// reported as *errs.RecordError. A broken offset table is fatal.
func ParseMetadata(r io.Reader, opts ...Option) (*Metadata, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	var doc rawDataFileXML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrMalformedDescriptor, cfg.source, err)
	}

	md := &Metadata{Name: strings.TrimSpace(doc.Name)}
	warn := func(w error) {
		md.Warnings = append(md.Warnings, w)
		level.Warn(cfg.logger).Log("msg", "scan metadata", "source", cfg.source, "err", w)
	}

	if md.NumScans, err = atoi(doc.NumScans); err != nil {
		return nil, fmt.Errorf("%w: %s: num_scans: %w", errs.ErrMalformedDescriptor, cfg.source, err)
	}

	quantity, err := atoi(doc.StoredDatapoints.Quantity)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: stored_datapoints quantity: %w", errs.ErrMalformedDescriptor, cfg.source, err)
	}

	if md.Slots, err = parseSlots(doc.StoredDatapoints.Entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrMalformedDescriptor, cfg.source, err)
	}

	entries := len(doc.StoredDatapoints.Entries)
	if quantity != entries {
		warn(errs.NewIntegrityWarning(cfg.source, "stored data entries", quantity, entries))
	}
	if md.NumScans != entries {
		warn(errs.NewIntegrityWarning(cfg.source, "scans in offset table", md.NumScans, entries))
	}

	// A repeated scan id replaces the earlier scan in place.
	var (
		scans []Scan
		byID  = make(map[int]int)
		seen  = make(map[int]int)
	)
	for i := range doc.Scans {
		s, err := parseScan(&doc.Scans[i])
		if err != nil {
			warn(errs.NewRecordError(cfg.source, "scan element "+strconv.Itoa(i+1), err))
			continue
		}

		slot, ok := md.Slots[s.StorageID]
		if !ok {
			warn(errs.NewRecordError(cfg.source, "scan "+strconv.Itoa(s.ID),
				fmt.Errorf("%w: %d", errs.ErrUnknownStorageID, s.StorageID)))
			continue
		}
		s.slot = slot

		if s.Points != s.slot.Points {
			warn(errs.NewIntegrityWarning(cfg.source, "points of scan "+strconv.Itoa(s.ID), s.Points, s.slot.Points))
		}

		seen[s.ID]++
		if pos, dup := byID[s.ID]; dup {
			warn(errs.NewIntegrityWarning(cfg.source, "occurrences of scan id "+strconv.Itoa(s.ID), 1, seen[s.ID]))
			scans[pos] = s
			continue
		}
		byID[s.ID] = len(scans)
		scans = append(scans, s)
	}

	for _, s := range scans {
		if s.Points == 0 {
			md.Skipped++
			continue
		}
		md.Scans = append(md.Scans, s)
	}

	sort.SliceStable(md.Scans, func(i, j int) bool {
		return md.Scans[i].ID < md.Scans[j].ID
	})

	return md, nil
}

// parseSlots builds the offset table. Storage ids are 1-based and may appear
// in any order. Every slot must end within an addressable payload.
func parseSlots(entries []storedDataXML) (map[int]Slot, error) {
	slots := make(map[int]Slot, len(entries))
	for _, e := range entries {
		id, err := atoi(e.StorageID)
		if err != nil {
			return nil, fmt.Errorf("stored_data storage_id: %w", err)
		}
		if id < 1 {
			return nil, fmt.Errorf("stored_data storage_id %d is not positive", id)
		}

		points, err := atoi(e.Points)
		if err != nil {
			return nil, fmt.Errorf("stored_data %d num_dp: %w", id, err)
		}

		offset, err := strconv.ParseInt(strings.TrimSpace(e.Offset), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stored_data %d offset: %w", id, err)
		}

		if points < 0 || offset < 0 {
			return nil, fmt.Errorf("stored_data %d: negative offset or point count", id)
		}
		if int64(points) > (math.MaxInt64-offset)/pointSize {
			return nil, fmt.Errorf("stored_data %d: %d points at offset %d overflow the payload", id, points, offset)
		}

		slots[id] = Slot{Offset: offset, Points: points}
	}

	return slots, nil
}

func parseScan(x *scanXML) (Scan, error) {
	var (
		s   Scan
		err error
	)

	if s.StorageID, err = atoi(x.StorageID); err != nil {
		return s, fmt.Errorf("storage_id: %w", err)
	}
	if s.ID, err = atoi(x.ID); err != nil {
		return s, fmt.Errorf("id: %w", err)
	}
	if s.MSLevel, err = atoi(x.MSLevel); err != nil {
		return s, fmt.Errorf("mslevel: %w", err)
	}
	if s.Points, err = atoi(x.Points); err != nil {
		return s, fmt.Errorf("num_dp: %w", err)
	}

	rt, err := strconv.ParseFloat(strings.TrimSpace(x.RT), 64)
	if err != nil {
		return s, fmt.Errorf("rt: %w", err)
	}
	s.RT = rt / 60

	s.Centroid = strings.EqualFold(strings.TrimSpace(x.Centroid), "true")
	s.Polarity = strings.TrimSpace(x.Polarity)
	s.Description = strings.TrimSpace(x.Description)
	s.MZRange = strings.TrimSpace(x.MZRange)

	return s, nil
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
