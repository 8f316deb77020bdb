package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T, opts ...Option) *DB {
	t.Helper()
	db, err := Open(context.Background(), MemoryPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	require.NoError(t, err)
	return n == 1
}

func TestOpenAppliesMigrations(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	for _, table := range []string{"settings", "catalogs", "systems", "cores", "cores_systems",
		"catalog_binaries", "games_identification", "games_identification_files", "games"} {
		assert.True(t, tableExists(t, db, table), table)
	}

	latest, ok, err := NewSettings(db).Get(ctx, LatestMigrationKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "0002_games", latest)
}

func TestOpenFileIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "corehub.sqlite")
	ctx := context.Background()
	calls := 0
	hook := WithHook("0001_catalogs", func(context.Context, *sql.Tx) error {
		calls++
		return nil
	})

	db, err := Open(ctx, path, hook)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(ctx, path, hook)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, 1, calls)
	assert.Equal(t, path, db.Path())
}

func TestMigrateRollsBackOnFailure(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"migrations/0001_catalogs.sql": {Data: []byte(`SELECT 1;`)},
		"migrations/0003_widgets.sql":  {Data: []byte(`CREATE TABLE widgets (id INTEGER);`)},
		"migrations/0004_broken.sql":   {Data: []byte(`CREATE TABLE nope (`)},
	}
	err := db.migrate(ctx, fsys, nil)
	require.Error(t, err)

	assert.False(t, tableExists(t, db, "widgets"))
	assert.Equal(t, "0002_games", NewSettings(db).GetOrDefault(ctx, LatestMigrationKey, ""))
}

func TestMigrateHookFailure(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"migrations/0003_widgets.sql": {Data: []byte(`CREATE TABLE widgets (id INTEGER);`)},
	}
	err := db.migrate(ctx, fsys, map[string]Hook{
		"0003_widgets": func(context.Context, *sql.Tx) error { return errors.New("boom") },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.False(t, tableExists(t, db, "widgets"))
}

func TestMigrateOnlyNewer(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"migrations/0001_catalogs.sql": {Data: []byte(`CREATE TABLE catalogs (id INTEGER);`)},
		"migrations/0003_widgets.sql":  {Data: []byte(`CREATE TABLE widgets (id INTEGER);`)},
	}
	require.NoError(t, db.migrate(ctx, fsys, nil))
	assert.True(t, tableExists(t, db, "widgets"))
	assert.Equal(t, "0003_widgets", NewSettings(db).GetOrDefault(ctx, LatestMigrationKey, ""))
}

func TestSettings(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()
	s := NewSettings(db)

	_, ok, err := s.Get(ctx, "theme")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "dark", s.GetOrDefault(ctx, "theme", "dark"))

	require.NoError(t, s.Set(ctx, "theme", "light"))
	require.NoError(t, s.Set(ctx, "theme", "blue"))
	assert.Equal(t, "blue", s.GetOrDefault(ctx, "theme", "dark"))
}

func TestWithTxRollback(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := NewSettings(tx).Set(ctx, "k", "v"); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")

	_, ok, err := NewSettings(db).Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
