// Package archive opens exported analysis bundles and extracts the members
// needed for chromatogram reconstruction.
//
// A bundle is a zip container. Three member families are recognized by base
// name, everything else is ignored:
//
//	Peak list #<n>.xml       peak-list descriptor
//	Raw data file #<n>.xml   raw-scan metadata descriptor
//	Raw data file #<n>.scans raw-scan binary payload
//
// The number <n> is the join key between a peak list's raw_file reference and
// its metadata/payload pair.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"

	"github.com/maspeqc/qcpack/errs"
)

// Kind classifies a bundle member.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindPeakList
	KindScanMeta
	KindScanPayload
)

func (k Kind) String() string {
	switch k {
	case KindPeakList:
		return "peak-list"
	case KindScanMeta:
		return "scan-meta"
	case KindScanPayload:
		return "scan-payload"
	default:
		return "unknown"
	}
}

const rawDataFilePrefix = "Raw data file #"

var memberPattern = regexp.MustCompile(`^(Peak list|Raw data file) #(\d+)\.(xml|scans)$`)

// Member is a classified bundle entry.
type Member struct {
	Name string // base name inside the container
	Key  string // the <n> join key
	Kind Kind
	Size uint64 // uncompressed size
	Path string // extracted path, empty until Extract

	file *zip.File
}

// Classify returns the kind and join key of a member base name.
func Classify(name string) (Kind, string) {
	m := memberPattern.FindStringSubmatch(path.Base(name))
	if m == nil {
		return KindUnknown, ""
	}

	switch {
	case m[1] == "Peak list" && m[3] == "xml":
		return KindPeakList, m[2]
	case m[1] == "Raw data file" && m[3] == "xml":
		return KindScanMeta, m[2]
	case m[1] == "Raw data file" && m[3] == "scans":
		return KindScanPayload, m[2]
	default:
		return KindUnknown, ""
	}
}

// NormalizeKey turns a raw_file reference ("3" or "Raw data file #3") into a join key.
func NormalizeKey(ref string) string {
	ref = strings.TrimSpace(ref)
	return strings.TrimPrefix(ref, rawDataFilePrefix)
}

// Bundle is an opened analysis bundle.
type Bundle struct {
	fs      afero.Fs
	path    string
	file    afero.File
	members []*Member
}

// Open opens the bundle at p on fs.
//
// It fails with errs.ErrArchiveNotFound when p does not exist and with
// errs.ErrArchiveCorrupt when the container directory cannot be read.
func Open(fs afero.Fs, p string) (*Bundle, error) {
	f, err := fs.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", errs.ErrArchiveNotFound, p)
		}

		return nil, fmt.Errorf("open bundle %s: %w", p, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat bundle %s: %w", p, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", errs.ErrArchiveCorrupt, p)
	}

	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrArchiveCorrupt, p, err)
	}

	b := &Bundle{fs: fs, path: p, file: f}
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}

		kind, key := Classify(zf.Name)
		if kind == KindUnknown {
			continue
		}

		b.members = append(b.members, &Member{
			Name: path.Base(zf.Name),
			Key:  key,
			Kind: kind,
			Size: zf.UncompressedSize64,
			file: zf,
		})
	}

	sort.SliceStable(b.members, func(i, j int) bool {
		if b.members[i].Kind != b.members[j].Kind {
			return b.members[i].Kind < b.members[j].Kind
		}

		return b.members[i].Name < b.members[j].Name
	})

	return b, nil
}

// Path returns the bundle path.
func (b *Bundle) Path() string {
	return b.path
}

// Members returns all classified members.
func (b *Bundle) Members() []Member {
	out := make([]Member, len(b.members))
	for i, m := range b.members {
		out[i] = *m
	}

	return out
}

// PeakLists returns the peak-list descriptors ordered by name.
func (b *Bundle) PeakLists() []Member {
	var out []Member
	for _, m := range b.members {
		if m.Kind == KindPeakList {
			out = append(out, *m)
		}
	}

	return out
}

// RawDataFile returns the metadata descriptor and binary payload registered
// under key. ok is false unless both are present.
func (b *Bundle) RawDataFile(key string) (meta, payload Member, ok bool) {
	key = NormalizeKey(key)

	var foundMeta, foundPayload bool
	for _, m := range b.members {
		if m.Key != key {
			continue
		}

		switch m.Kind {
		case KindScanMeta:
			meta, foundMeta = *m, true
		case KindScanPayload:
			payload, foundPayload = *m, true
		}
	}

	return meta, payload, foundMeta && foundPayload
}

// Open returns a reader over the member's content inside the container.
func (b *Bundle) Open(m Member) (io.ReadCloser, error) {
	for _, own := range b.members {
		if own.Name == m.Name {
			rc, err := own.file.Open()
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", errs.ErrArchiveCorrupt, m.Name, err)
			}

			return rc, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", errs.ErrMissingCompanion, m.Name)
}

// Extract writes every classified member to dir under its base name and
// records the extracted path on the member. The caller owns dir.
func (b *Bundle) Extract(dir string) error {
	if err := b.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create work dir %s: %w", dir, err)
	}

	buf := make([]byte, 32*1024)
	for _, m := range b.members {
		dst := filepath.Join(dir, m.Name)
		if err := b.extractOne(m, dst, buf); err != nil {
			return err
		}
		m.Path = dst
	}

	return nil
}

func (b *Bundle) extractOne(m *Member, dst string, buf []byte) error {
	rc, err := m.file.Open()
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", errs.ErrArchiveCorrupt, m.Name, err)
	}
	defer rc.Close()

	out, err := b.fs.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.CopyBuffer(out, rc, buf); err != nil {
		_ = out.Close()
		if errors.Is(err, zip.ErrChecksum) || errors.Is(err, zip.ErrFormat) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: extract %s: %w", errs.ErrArchiveCorrupt, m.Name, err)
		}

		return fmt.Errorf("extract %s: %w", m.Name, err)
	}

	return out.Close()
}

// Close releases the container handle.
func (b *Bundle) Close() error {
	return b.file.Close()
}
