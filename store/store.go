// Package store defines where compacted series are persisted.
//
// Chromatograms are keyed by (run id, component id), pressure profiles by
// (run id, channel). Every row carries the encoding tag of its payload
// ("json", "packed+zstd", ...) and an xxHash64 checksum of the payload bytes.
//
// Two implementations are provided: the SQLite store in store/sqlite and the
// in-memory Memory store.
package store

import (
	"context"

	"github.com/maspeqc/qcpack/internal/hash"
)

// ChromatogramRow is one persisted chromatogram.
type ChromatogramRow struct {
	RunID       int64
	ComponentID int64
	Encoding    string
	Data        []byte
	Checksum    uint64 // filled by the store when zero
}

// ProfileRow is one persisted pressure profile.
type ProfileRow struct {
	RunID    int64
	Channel  string
	Encoding string
	Data     []byte
	Checksum uint64 // filled by the store when zero
}

// Component is a registered sample component.
type Component struct {
	ID   int64
	Name string
}

// ComponentResolver maps component names to ids.
type ComponentResolver interface {
	// ComponentID returns the id of name or an error wrapping
	// errs.ErrComponentNotFound.
	ComponentID(ctx context.Context, name string) (int64, error)
}

// ChromatogramWriter persists chromatograms.
type ChromatogramWriter interface {
	ComponentResolver
	// InsertChromatograms stores all rows or none of them.
	InsertChromatograms(ctx context.Context, rows []ChromatogramRow) error
}

// ProfileWriter persists pressure profiles.
type ProfileWriter interface {
	InsertPressureProfile(ctx context.Context, row ProfileRow) error
}

// Reader lists persisted rows of a run.
type Reader interface {
	Chromatograms(ctx context.Context, runID int64) ([]ChromatogramRow, error)
	PressureProfiles(ctx context.Context, runID int64) ([]ProfileRow, error)
	Components(ctx context.Context) ([]Component, error)
}

// Store is the full storage collaborator.
type Store interface {
	ChromatogramWriter
	ProfileWriter
	Reader
	AddComponent(ctx context.Context, name string) (int64, error)
	Close() error
}

// Seal fills the checksum of data when sum is zero.
func Seal(data []byte, sum uint64) uint64 {
	if sum != 0 {
		return sum
	}

	return hash.Checksum(data)
}

// Verify reports whether the row payload matches its checksum.
func (r ChromatogramRow) Verify() bool {
	return hash.Verify(r.Data, r.Checksum)
}

// Verify reports whether the row payload matches its checksum.
func (r ProfileRow) Verify() bool {
	return hash.Verify(r.Data, r.Checksum)
}
