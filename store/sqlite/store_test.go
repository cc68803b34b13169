package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/maspeqc/qcpack/errs"
	"github.com/maspeqc/qcpack/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "qc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qc.db")

	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.AddComponent(context.Background(), "Caffeine")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.ComponentID(context.Background(), "Caffeine")
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestStore_Components(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.ComponentID(ctx, "Caffeine")
	require.ErrorIs(t, err, errs.ErrComponentNotFound)

	caffeine, err := s.AddComponent(ctx, "Caffeine")
	require.NoError(t, err)
	reserpine, err := s.AddComponent(ctx, " Reserpine ")
	require.NoError(t, err)
	require.NotEqual(t, caffeine, reserpine)

	_, err = s.AddComponent(ctx, "Caffeine")
	require.ErrorIs(t, err, errs.ErrComponentExists)

	_, err = s.AddComponent(ctx, "")
	require.ErrorIs(t, err, errs.ErrInvalidComponent)

	got, err := s.ComponentID(ctx, "Reserpine")
	require.NoError(t, err)
	require.Equal(t, reserpine, got)

	components, err := s.Components(ctx)
	require.NoError(t, err)
	require.Equal(t, []store.Component{{ID: caffeine, Name: "Caffeine"}, {ID: reserpine, Name: "Reserpine"}}, components)
}

func TestStore_Chromatograms(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.AddComponent(ctx, "Caffeine")
	require.NoError(t, err)

	payload := []byte(`{"rts":[5010,10,10],"intensities":[1000,5000,0],"mz":195.0877,"exp_rt":5.02}`)
	require.NoError(t, s.InsertChromatogram(ctx, store.ChromatogramRow{
		RunID: 3, ComponentID: id, Encoding: "json", Data: payload,
	}))
	require.NoError(t, s.InsertChromatogram(ctx, store.ChromatogramRow{
		RunID: 4, ComponentID: id, Encoding: "packed+zstd", Data: []byte{1, 2, 3},
	}))

	rows, err := s.Chromatograms(ctx, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, payload, rows[0].Data)
	require.Equal(t, "json", rows[0].Encoding)
	require.Equal(t, id, rows[0].ComponentID)
	require.True(t, rows[0].Verify())

	err = s.InsertChromatogram(ctx, store.ChromatogramRow{RunID: 3, ComponentID: id + 100, Encoding: "json", Data: payload})
	require.ErrorIs(t, err, errs.ErrComponentNotFound)
}

func TestStore_InsertChromatogramsRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.AddComponent(ctx, "Caffeine")
	require.NoError(t, err)

	err = s.InsertChromatograms(ctx, []store.ChromatogramRow{
		{RunID: 5, ComponentID: id, Encoding: "json", Data: []byte("{}")},
		{RunID: 5, ComponentID: id + 100, Encoding: "json", Data: []byte("{}")},
	})
	require.ErrorIs(t, err, errs.ErrComponentNotFound)

	rows, err := s.Chromatograms(ctx, 5)
	require.NoError(t, err)
	require.Empty(t, rows)

	require.NoError(t, s.InsertChromatograms(ctx, []store.ChromatogramRow{
		{RunID: 5, ComponentID: id, Encoding: "json", Data: []byte("{}")},
		{RunID: 5, ComponentID: id, Encoding: "packed+s2", Data: []byte{9}},
	}))
	rows, err = s.Chromatograms(ctx, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "packed+s2", rows[1].Encoding)
}

func TestStore_PressureProfiles(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, ch := range []string{"lp", "np", "mp"} {
		require.NoError(t, s.InsertPressureProfile(ctx, store.ProfileRow{
			RunID: 9, Channel: ch, Encoding: "json", Data: []byte(`{"rts":[],"intensities":[]}`),
		}))
	}
	require.NoError(t, s.InsertPressureProfile(ctx, store.ProfileRow{RunID: 9, Channel: "empty", Encoding: "json"}))

	rows, err := s.PressureProfiles(ctx, 9)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, "np", rows[1].Channel)
	for _, r := range rows {
		require.True(t, r.Verify())
	}

	none, err := s.PressureProfiles(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	migrationFS := fstest.MapFS{
		"0001_a.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE extra (id INTEGER);\n-- +migrate Down\nDROP TABLE extra;\n")},
		"notes.txt":  {Data: []byte("ignored")},
	}
	require.NoError(t, applyMigrations(ctx, s.sqlDB, migrationFS))
	require.NoError(t, applyMigrations(ctx, s.sqlDB, migrationFS))

	var count int
	require.NoError(t, s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+migrationTable).Scan(&count))
	require.Equal(t, 2, count)
}

func TestExtractUp(t *testing.T) {
	require.Equal(t, "SELECT 1;", strings.TrimSpace(extractUp("-- +migrate Up\nSELECT 1;\n-- +migrate Down\nSELECT 2;")))
	require.Equal(t, "SELECT 1;", strings.TrimSpace(extractUp("-- +migrate Up\nSELECT 1;")))
	require.Equal(t, "SELECT 3;", extractUp("SELECT 3;"))
}
