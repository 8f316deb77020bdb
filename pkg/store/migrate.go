package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/huanfeng/corehub/pkg/utils"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// LatestMigrationKey is the setting holding the name of the last applied
// migration.
const LatestMigrationKey = "latest_migration"

// Hook runs after a migration, in the same transaction.
type Hook func(ctx context.Context, tx *sql.Tx) error

type migration struct {
	name string
	sql  string
}

func loadMigrations(fsys fs.FS) ([]migration, error) {
	paths, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)

	out := make([]migration, 0, len(paths))
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", p, err)
		}
		out = append(out, migration{
			name: strings.TrimSuffix(path.Base(p), ".sql"),
			sql:  string(data),
		})
	}
	return out, nil
}

// migrate applies, in name order, every migration whose name sorts after
// the latest applied one. Everything runs in one transaction.
func (db *DB) migrate(ctx context.Context, fsys fs.FS, hooks map[string]Hook) error {
	all, err := loadMigrations(fsys)
	if err != nil {
		return err
	}

	latest := NewSettings(db).GetOrDefault(ctx, LatestMigrationKey, "")

	pending := make([]migration, 0, len(all))
	for _, m := range all {
		if m.name > latest {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	return db.WithTx(ctx, func(tx *sql.Tx) error {
		settings := NewSettings(tx)
		for _, m := range pending {
			utils.Info("applying migration %s", m.name)
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return fmt.Errorf("migration %s failed: %w", m.name, err)
			}
			if hook, ok := hooks[m.name]; ok {
				if err := hook(ctx, tx); err != nil {
					return fmt.Errorf("migration hook %s failed: %w", m.name, err)
				}
			}
			if err := settings.Set(ctx, LatestMigrationKey, m.name); err != nil {
				return err
			}
		}
		return nil
	})
}
