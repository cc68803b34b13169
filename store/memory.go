package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/maspeqc/qcpack/errs"
	"github.com/maspeqc/qcpack/internal/collision"
)

// Memory is an in-memory Store. Component ids are the 63-bit xxHash64 of the
// component name, moved to the next free id on collision.
type Memory struct {
	mu            sync.RWMutex
	components    *collision.Tracker
	chromatograms []ChromatogramRow
	profiles      []ProfileRow
	closed        bool
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty Memory store with the given components registered.
func NewMemory(components ...string) (*Memory, error) {
	m := &Memory{components: collision.NewTracker()}
	for _, name := range components {
		if _, err := m.components.Track(strings.TrimSpace(name)); err != nil {
			return nil, fmt.Errorf("register component %q: %w", name, err)
		}
	}

	return m, nil
}

// AddComponent registers name and returns its id.
func (m *Memory) AddComponent(ctx context.Context, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.components.Track(strings.TrimSpace(name))
	if err != nil {
		return 0, fmt.Errorf("add component %q: %w", name, err)
	}

	return id, nil
}

// ComponentID returns the id of name.
func (m *Memory) ComponentID(ctx context.Context, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.components.ID(strings.TrimSpace(name))
	if !ok {
		return 0, fmt.Errorf("%w: %q", errs.ErrComponentNotFound, name)
	}

	return id, nil
}

// Components returns the registered components in registration order.
func (m *Memory) Components(ctx context.Context) ([]Component, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Component, 0, m.components.Count())
	for _, name := range m.components.Names() {
		id, _ := m.components.ID(name)
		out = append(out, Component{ID: id, Name: name})
	}

	return out, nil
}

// InsertChromatogram stores a copy of row.
func (m *Memory) InsertChromatogram(ctx context.Context, row ChromatogramRow) error {
	return m.InsertChromatograms(ctx, []ChromatogramRow{row})
}

// InsertChromatograms stores copies of rows. Nothing is stored when any row
// references an unknown component.
func (m *Memory) InsertChromatograms(ctx context.Context, rows []ChromatogramRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("insert chromatogram: store closed")
	}
	for _, row := range rows {
		if _, ok := m.components.Owner(row.ComponentID); !ok {
			return fmt.Errorf("%w: id %d", errs.ErrComponentNotFound, row.ComponentID)
		}
	}

	for _, row := range rows {
		row.Data = slices.Clone(row.Data)
		row.Checksum = Seal(row.Data, row.Checksum)
		m.chromatograms = append(m.chromatograms, row)
	}

	return nil
}

// InsertPressureProfile stores a copy of row.
func (m *Memory) InsertPressureProfile(ctx context.Context, row ProfileRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("insert pressure profile: store closed")
	}

	row.Data = slices.Clone(row.Data)
	row.Checksum = Seal(row.Data, row.Checksum)
	m.profiles = append(m.profiles, row)

	return nil
}

// Chromatograms returns the chromatograms of runID in insertion order.
func (m *Memory) Chromatograms(ctx context.Context, runID int64) ([]ChromatogramRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ChromatogramRow
	for _, row := range m.chromatograms {
		if row.RunID == runID {
			out = append(out, row)
		}
	}

	return out, nil
}

// PressureProfiles returns the profiles of runID in insertion order.
func (m *Memory) PressureProfiles(ctx context.Context, runID int64) ([]ProfileRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ProfileRow
	for _, row := range m.profiles {
		if row.RunID == runID {
			out = append(out, row)
		}
	}

	return out, nil
}

// Close marks the store closed; later inserts fail.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true

	return nil
}
