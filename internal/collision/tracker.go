// Package collision assigns stable hash ids to component names and resolves
// hash collisions between different names.
package collision

import (
	"math"

	"github.com/maspeqc/qcpack/errs"
	"github.com/maspeqc/qcpack/internal/hash"
)

// Tracker maps component names to ids derived from their xxHash64. Ids are
// masked to 63 bits so they fit a signed SQL integer. When two names hash to
// the same id, the later one probes forward to the next free id and the
// collision flag is set.
type Tracker struct {
	owners       map[int64]string // id → name
	ids          map[string]int64 // name → id
	names        []string         // registration order
	hasCollision bool
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		owners: make(map[int64]string),
		ids:    make(map[string]int64),
		names:  make([]string, 0),
	}
}

// HashID returns the preferred id of name.
func HashID(name string) int64 {
	return int64(hash.ID(name) & math.MaxInt64) //nolint:gosec
}

// Track registers name and returns its id.
// Returns errs.ErrInvalidComponent for an empty name and
// errs.ErrComponentExists when name is already registered.
func (t *Tracker) Track(name string) (int64, error) {
	if name == "" {
		return 0, errs.ErrInvalidComponent
	}
	if _, exists := t.ids[name]; exists {
		return 0, errs.ErrComponentExists
	}

	id := HashID(name)
	for {
		if _, taken := t.owners[id]; !taken {
			break
		}
		t.hasCollision = true
		id = (id + 1) & math.MaxInt64
	}

	t.owners[id] = name
	t.ids[name] = id
	t.names = append(t.names, name)

	return id, nil
}

// TrackID registers name under an explicit id, e.g. one loaded from storage.
// Returns errs.ErrComponentExists when either the name or the id is taken.
func (t *Tracker) TrackID(name string, id int64) error {
	if name == "" {
		return errs.ErrInvalidComponent
	}
	if _, exists := t.ids[name]; exists {
		return errs.ErrComponentExists
	}
	if _, taken := t.owners[id]; taken {
		return errs.ErrComponentExists
	}
	if id != HashID(name) {
		t.hasCollision = true
	}

	t.owners[id] = name
	t.ids[name] = id
	t.names = append(t.names, name)

	return nil
}

// ID returns the id registered for name.
func (t *Tracker) ID(name string) (int64, bool) {
	id, ok := t.ids[name]
	return id, ok
}

// Owner returns the name registered under id.
func (t *Tracker) Owner(id int64) (string, bool) {
	name, ok := t.owners[id]
	return name, ok
}

// HasCollision reports whether any name was moved off its hash id.
func (t *Tracker) HasCollision() bool {
	return t.hasCollision
}

// Names returns the registered names in registration order.
func (t *Tracker) Names() []string {
	return t.names
}

// Count returns the number of registered names.
func (t *Tracker) Count() int {
	return len(t.names)
}

// Reset clears all registrations and keeps allocated capacity.
func (t *Tracker) Reset() {
	clear(t.owners)
	clear(t.ids)
	t.names = t.names[:0]
	t.hasCollision = false
}
