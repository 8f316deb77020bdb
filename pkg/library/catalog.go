package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/pkg/remote"
	"github.com/huanfeng/corehub/pkg/store"
	"github.com/huanfeng/corehub/pkg/utils"
	"github.com/huanfeng/corehub/pkg/versions"
)

// Catalog is a row of the catalogs table.
type Catalog struct {
	ID             int64
	Name           string
	URL            string
	LatestCheckAt  *time.Time
	LatestUpdateAt *time.Time
	LastUpdated    string
	Version        versions.Version
	Priority       int
	UpdatePending  bool
}

const catalogColumns = `id, name, url, latest_check_at, latest_update_at, last_updated, version, priority, update_pending`

func scanCatalog(row rowScanner) (*Catalog, error) {
	var (
		c                     Catalog
		checkAt, updateAt     sql.NullString
		lastUpdated, versionS sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Name, &c.URL, &checkAt, &updateAt, &lastUpdated, &versionS, &c.Priority, &c.UpdatePending); err != nil {
		return nil, err
	}
	c.LatestCheckAt = parseTime(checkAt)
	c.LatestUpdateAt = parseTime(updateAt)
	c.LastUpdated = lastUpdated.String
	c.Version = versions.Parse(versionS.String)
	return &c, nil
}

// CatalogFilter narrows ListCatalogs. Zero values match everything.
type CatalogFilter struct {
	UpdatePending *bool
	URL           string
}

// CreateCatalog records rc and every system it publishes in one
// transaction. Binaries this host knows how to upgrade are recorded too.
func (l *Library) CreateCatalog(ctx context.Context, rc *remote.Catalog, priority int) (*Catalog, error) {
	exists, err := l.HasCatalog(ctx, rc.URL)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperrors.NewDuplicateError("CATALOG_EXISTS", "catalog already exists").WithContext("url", rc.URL)
	}

	systems, err := rc.FetchSystems(ctx, nil, true)
	if err != nil {
		return nil, err
	}
	binaries, err := rc.FetchReleases(ctx, func(name string) bool {
		_, known := l.installed(name)
		return known
	})
	if err != nil {
		return nil, err
	}

	var created *Catalog
	err = l.db.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO catalogs (name, url, last_updated, version, priority)
			VALUES (?, ?, ?, ?, ?)
			RETURNING `+catalogColumns,
			rc.Name(), rc.URL, nullString(rc.LastUpdated()), nullVersion(rc.Version()), priority)
		c, err := scanCatalog(row)
		if err != nil {
			return fmt.Errorf("failed to insert catalog: %w", err)
		}

		for _, name := range sortedKeys(systems) {
			if _, err := createSystem(ctx, tx, systems[name], c.ID); err != nil {
				return err
			}
		}
		for _, name := range sortedKeys(binaries) {
			if _, err := l.createBinary(ctx, tx, binaries[name], c); err != nil {
				return err
			}
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.Info("added catalog %s (%d systems)", created.URL, len(systems))
	return created, nil
}

func (l *Library) getCatalog(ctx context.Context, q store.Queryer, where string, arg any) (*Catalog, error) {
	c, err := scanCatalog(q.QueryRowContext(ctx, `SELECT `+catalogColumns+` FROM catalogs WHERE `+where+` LIMIT 1`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("CATALOG_NOT_FOUND", "catalog not found").WithContext("key", fmt.Sprint(arg))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return c, nil
}

func (l *Library) GetCatalogByURL(ctx context.Context, url string) (*Catalog, error) {
	return l.getCatalog(ctx, l.db, "url = ?", url)
}

func (l *Library) GetCatalogByID(ctx context.Context, id int64) (*Catalog, error) {
	return l.getCatalog(ctx, l.db, "id = ?", id)
}

// ListCatalogs returns the catalogs matching filter, lowest priority first.
func (l *Library) ListCatalogs(ctx context.Context, filter CatalogFilter) ([]*Catalog, error) {
	var (
		where []string
		args  []any
	)
	if filter.URL != "" {
		where = append(where, "url = ?")
		args = append(args, filter.URL)
	}
	if filter.UpdatePending != nil {
		where = append(where, "update_pending = ?")
		args = append(args, boolInt(*filter.UpdatePending))
	}

	query := `SELECT ` + catalogColumns + ` FROM catalogs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY priority ASC, id ASC`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalogs: %w", err)
	}
	defer rows.Close()

	var out []*Catalog
	for rows.Next() {
		c, err := scanCatalog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountCatalogs counts all catalogs, or only those with an update pending.
func (l *Library) CountCatalogs(ctx context.Context, updatePendingOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM catalogs`
	if updatePendingOnly {
		query += ` WHERE update_pending = 1`
	}
	var n int
	if err := l.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count catalogs: %w", err)
	}
	return n, nil
}

func (l *Library) HasCatalog(ctx context.Context, url string) (bool, error) {
	list, err := l.ListCatalogs(ctx, CatalogFilter{URL: url})
	if err != nil {
		return false, err
	}
	return len(list) > 0, nil
}

// RemoveCatalog deletes the catalog and everything recorded from it.
func (l *Library) RemoveCatalog(ctx context.Context, c *Catalog) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM catalogs WHERE id = ?`, c.ID); err != nil {
		return fmt.Errorf("failed to remove catalog: %w", err)
	}
	return nil
}

func (l *Library) FetchRemoteCatalog(ctx context.Context, c *Catalog) (*remote.Catalog, error) {
	return l.graph.FetchCatalog(ctx, c.URL, false)
}

// CheckCatalogForUpdates returns the remote catalog when it is newer than
// the recorded one, and nil otherwise. A catalog whose last check lies in
// the future is skipped.
func (l *Library) CheckCatalogForUpdates(ctx context.Context, c *Catalog) (*remote.Catalog, error) {
	now := l.now()
	// TODO: replace with a minimum re-check interval; with a sane clock
	// this guard never fires.
	if c.LatestCheckAt != nil && c.LatestCheckAt.After(now) {
		return nil, nil
	}

	rc, err := l.FetchRemoteCatalog(ctx, c)
	if err != nil {
		return nil, err
	}
	if _, err := l.db.ExecContext(ctx, `UPDATE catalogs SET latest_check_at = ? WHERE id = ?`, formatTime(now), c.ID); err != nil {
		return nil, fmt.Errorf("failed to record catalog check: %w", err)
	}
	c.LatestCheckAt = &now

	if versions.Compare(rc.Version(), c.Version) > 0 {
		return rc, nil
	}
	return nil, nil
}

// CheckAllCatalogsForUpdates checks every catalog without a pending update
// and flags those with a newer remote version. It reports whether any was
// flagged.
func (l *Library) CheckAllCatalogsForUpdates(ctx context.Context) (bool, error) {
	l.graph.ClearCache()

	pending := false
	catalogs, err := l.ListCatalogs(ctx, CatalogFilter{UpdatePending: &pending})
	if err != nil {
		return false, err
	}

	var flagged []any
	for _, c := range catalogs {
		rc, err := l.CheckCatalogForUpdates(ctx, c)
		if err != nil {
			return false, err
		}
		if rc != nil {
			flagged = append(flagged, c.ID)
		}
	}
	if len(flagged) == 0 {
		return false, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(flagged)), ",")
	if _, err := l.db.ExecContext(ctx, `UPDATE catalogs SET update_pending = 1 WHERE id IN (`+placeholders+`)`, flagged...); err != nil {
		return false, fmt.Errorf("failed to flag catalogs: %w", err)
	}
	return true, nil
}

// UpdateCatalog refreshes c from its remote when the remote is newer:
// name, version and last update are rewritten and newly published systems
// are added. It reports whether anything was updated.
func (l *Library) UpdateCatalog(ctx context.Context, c *Catalog) (bool, error) {
	rc, err := l.FetchRemoteCatalog(ctx, c)
	if err != nil {
		return false, err
	}
	if versions.Compare(rc.Version(), c.Version) <= 0 {
		return false, nil
	}
	utils.Debug("updating catalog %s from %s to %s", c.Name, c.Version, rc.Version())

	systems, err := rc.FetchSystems(ctx, nil, true)
	if err != nil {
		return false, err
	}

	now := l.now()
	err = l.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE catalogs
			SET name = ?, version = ?, last_updated = ?, latest_update_at = ?, update_pending = 0
			WHERE id = ?`,
			rc.Name(), nullVersion(rc.Version()), nullString(rc.LastUpdated()), formatTime(now), c.ID)
		if err != nil {
			return fmt.Errorf("failed to update catalog: %w", err)
		}

		for _, name := range sortedKeys(systems) {
			var id int64
			err := tx.QueryRowContext(ctx, `SELECT id FROM systems WHERE unique_name = ?`, name).Scan(&id)
			if err == nil {
				continue
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			if _, err := createSystem(ctx, tx, systems[name], c.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	c.Name = rc.Name()
	c.Version = rc.Version()
	c.LastUpdated = rc.LastUpdated()
	c.LatestUpdateAt = &now
	c.UpdatePending = false
	return true, nil
}

// UpdateAllCatalogs updates every catalog with a pending update.
func (l *Library) UpdateAllCatalogs(ctx context.Context) (bool, error) {
	pending := true
	catalogs, err := l.ListCatalogs(ctx, CatalogFilter{UpdatePending: &pending})
	if err != nil {
		return false, err
	}
	updatedAny := false
	for _, c := range catalogs {
		updated, err := l.UpdateCatalog(ctx, c)
		if err != nil {
			return updatedAny, err
		}
		updatedAny = updatedAny || updated
	}
	return updatedAny, nil
}
