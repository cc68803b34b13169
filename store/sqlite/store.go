// Package sqlite provides the SQLite-backed store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/maspeqc/qcpack/errs"
	"github.com/maspeqc/qcpack/store"
	"github.com/maspeqc/qcpack/store/sqlite/migrations"
)

// Store persists components, chromatograms and pressure profiles in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens the database at path and applies the embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas and ":memory:" databases are per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}

	return s.sqlDB.Close()
}

// AddComponent registers name and returns its id.
func (s *Store) AddComponent(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errs.ErrInvalidComponent
	}

	res, err := s.sqlDB.ExecContext(ctx, `INSERT INTO sample_component (component_name) VALUES (?)`, name)
	if err != nil {
		if hasCode(err, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY) {
			return 0, fmt.Errorf("%w: %q", errs.ErrComponentExists, name)
		}

		return 0, fmt.Errorf("add component: %w", err)
	}

	return res.LastInsertId()
}

// ComponentID returns the id of name.
func (s *Store) ComponentID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT component_id FROM sample_component WHERE component_name = ?`,
		strings.TrimSpace(name),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %q", errs.ErrComponentNotFound, name)
	}
	if err != nil {
		return 0, fmt.Errorf("get component id: %w", err)
	}

	return id, nil
}

// Components returns all registered components ordered by id.
func (s *Store) Components(ctx context.Context) ([]store.Component, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT component_id, component_name FROM sample_component ORDER BY component_id`)
	if err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	defer rows.Close()

	var out []store.Component
	for rows.Next() {
		var c store.Component
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan component: %w", err)
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

// InsertChromatogram stores row.
func (s *Store) InsertChromatogram(ctx context.Context, row store.ChromatogramRow) error {
	return s.InsertChromatograms(ctx, []store.ChromatogramRow{row})
}

// InsertChromatograms stores rows in one transaction.
func (s *Store) InsertChromatograms(ctx context.Context, rows []store.ChromatogramRow) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chromatogram batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chromatogram (run_id, component_id, encoding, chrom_data, checksum) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chromatogram insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		sum := store.Seal(row.Data, row.Checksum)
		_, err := stmt.ExecContext(ctx, row.RunID, row.ComponentID, row.Encoding, nonNil(row.Data), int64(sum)) //nolint:gosec
		if err != nil {
			if hasCode(err, sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY) {
				return fmt.Errorf("%w: id %d", errs.ErrComponentNotFound, row.ComponentID)
			}

			return fmt.Errorf("insert chromatogram: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chromatogram batch: %w", err)
	}

	return nil
}

// InsertPressureProfile stores row.
func (s *Store) InsertPressureProfile(ctx context.Context, row store.ProfileRow) error {
	sum := store.Seal(row.Data, row.Checksum)

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO pressure_profile (run_id, channel, encoding, profile_data, checksum) VALUES (?, ?, ?, ?, ?)`,
		row.RunID, row.Channel, row.Encoding, nonNil(row.Data), int64(sum), //nolint:gosec
	)
	if err != nil {
		return fmt.Errorf("insert pressure profile: %w", err)
	}

	return nil
}

// Chromatograms returns the chromatograms of runID in insertion order.
func (s *Store) Chromatograms(ctx context.Context, runID int64) ([]store.ChromatogramRow, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT run_id, component_id, encoding, chrom_data, checksum FROM chromatogram WHERE run_id = ? ORDER BY id`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("list chromatograms: %w", err)
	}
	defer rows.Close()

	var out []store.ChromatogramRow
	for rows.Next() {
		var (
			r   store.ChromatogramRow
			sum int64
		)
		if err := rows.Scan(&r.RunID, &r.ComponentID, &r.Encoding, &r.Data, &sum); err != nil {
			return nil, fmt.Errorf("scan chromatogram: %w", err)
		}
		r.Checksum = uint64(sum) //nolint:gosec
		out = append(out, r)
	}

	return out, rows.Err()
}

// PressureProfiles returns the profiles of runID in insertion order.
func (s *Store) PressureProfiles(ctx context.Context, runID int64) ([]store.ProfileRow, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT run_id, channel, encoding, profile_data, checksum FROM pressure_profile WHERE run_id = ? ORDER BY id`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("list pressure profiles: %w", err)
	}
	defer rows.Close()

	var out []store.ProfileRow
	for rows.Next() {
		var (
			r   store.ProfileRow
			sum int64
		)
		if err := rows.Scan(&r.RunID, &r.Channel, &r.Encoding, &r.Data, &sum); err != nil {
			return nil, fmt.Errorf("scan pressure profile: %w", err)
		}
		r.Checksum = uint64(sum) //nolint:gosec
		out = append(out, r)
	}

	return out, rows.Err()
}

func hasCode(err error, codes ...int) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	for _, code := range codes {
		if sqliteErr.Code() == code {
			return true
		}
	}

	return false
}

func nonNil(data []byte) []byte {
	if data == nil {
		return []byte{}
	}

	return data
}
