package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/pkg/client"
	"github.com/huanfeng/corehub/pkg/remote"
	"github.com/huanfeng/corehub/pkg/scan"
	"github.com/huanfeng/corehub/pkg/schema"
	"github.com/huanfeng/corehub/pkg/upgrade"
	"github.com/huanfeng/corehub/pkg/utils"
	"github.com/huanfeng/corehub/pkg/versions"
)

// Core is a row of the cores table.
type Core struct {
	ID            int64
	CatalogID     int64
	Name          string
	UniqueName    string
	Description   string
	Version       versions.Version
	RbfPath       string
	UpdatePending bool
}

const coreColumns = `cores.id, cores.catalog_id, cores.name, cores.unique_name, cores.description, cores.version, cores.rbf_path, cores.update_pending`

func scanCore(row rowScanner) (*Core, error) {
	var (
		c             Core
		desc, v, path sql.NullString
	)
	if err := row.Scan(&c.ID, &c.CatalogID, &c.Name, &c.UniqueName, &desc, &v, &path, &c.UpdatePending); err != nil {
		return nil, err
	}
	c.Description = desc.String
	c.Version = versions.Parse(v.String)
	c.RbfPath = path.String
	return &c, nil
}

// CoreDir is where files of a core release are installed.
func (l *Library) CoreDir(uniqueName string, v versions.Version) string {
	return filepath.Join(l.coresDir, uniqueName, v.String())
}

func selectRelease(rc *remote.Core, version string) (*schema.Release, error) {
	if version != "" {
		if r, ok := rc.Release(version); ok {
			return r, nil
		}
		return nil, apperrors.NewNotFoundError("RELEASE_NOT_FOUND", "no release with that version").
			WithContext("core", rc.UniqueName()).
			WithContext("version", version)
	}
	r, ok := rc.LatestRelease()
	if !ok {
		return nil, apperrors.NewNotFoundError("NO_RELEASE", "core has no installable release").
			WithContext("core", rc.UniqueName())
	}
	return r, nil
}

// InstallCore downloads a release of rc (the latest when version is empty)
// and records it. A core that is already installed is not reinstalled: it
// is flagged for update when the release is newer, and reported as a
// duplicate otherwise.
func (l *Library) InstallCore(ctx context.Context, rc *remote.Core, c *Catalog, version string) (*Core, error) {
	release, err := selectRelease(rc, version)
	if err != nil {
		return nil, err
	}

	existing, err := l.GetCoreByUniqueName(ctx, rc.UniqueName())
	if err != nil && !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		return nil, err
	}
	if existing != nil {
		if versions.Compare(release.Version, existing.Version) > 0 {
			if _, err := l.db.ExecContext(ctx, `UPDATE cores SET update_pending = 1 WHERE id = ?`, existing.ID); err != nil {
				return nil, fmt.Errorf("failed to flag core: %w", err)
			}
			existing.UpdatePending = true
			return existing, nil
		}
		return nil, apperrors.NewDuplicateError("CORE_INSTALLED", "core already installed").
			WithContext("core", rc.UniqueName()).
			WithContext("version", existing.Version.String())
	}

	utils.GetGlobalLogger().WithFields(map[string]interface{}{
		"core": rc.UniqueName(), "version": release.Version.String(), "files": len(release.Files),
	}).Info("installing core")
	l.graph.Fetcher().Prompter().Show("Downloading core...",
		fmt.Sprintf("Core %q\nVersion %q", rc.Name(), release.Version.String()))

	rbf, err := l.downloadRelease(ctx, rc, release)
	if err != nil {
		return nil, err
	}

	var installed *Core
	err = l.db.WithTx(ctx, func(tx *sql.Tx) error {
		core, err := scanCore(tx.QueryRowContext(ctx, `
			INSERT INTO cores (catalog_id, name, unique_name, description, version, rbf_path)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING id, catalog_id, name, unique_name, description, version, rbf_path, update_pending`,
			c.ID, rc.Name(), rc.UniqueName(), nullString(rc.Description()), nullVersion(release.Version), nullString(rbf)))
		if err != nil {
			return fmt.Errorf("failed to insert core: %w", err)
		}

		for _, name := range rc.Systems() {
			var systemID int64
			err := tx.QueryRowContext(ctx, `SELECT id FROM systems WHERE unique_name = ?`, name).Scan(&systemID)
			if errors.Is(err, sql.ErrNoRows) {
				return apperrors.NewNotFoundError("SYSTEM_NOT_FOUND", "core references an unknown system").
					WithContext("core", rc.UniqueName()).
					WithContext("system", name)
			}
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO cores_systems (core_id, system_id) VALUES (?, ?)`, core.ID, systemID); err != nil {
				return fmt.Errorf("failed to link core to system %s: %w", name, err)
			}
		}

		if slices.Contains(rc.Tags(), "no-roms") {
			if _, err := tx.ExecContext(ctx, `INSERT INTO games (name, core_id) VALUES (?, ?)`, rc.Name(), core.ID); err != nil {
				return fmt.Errorf("failed to add core game: %w", err)
			}
		}
		installed = core
		return nil
	})
	if err != nil {
		return nil, err
	}
	return installed, nil
}

// downloadRelease fetches and verifies every file of release and returns
// the path of its RBF file, if any. On failure nothing it downloaded is
// left behind.
func (l *Library) downloadRelease(ctx context.Context, rc *remote.Core, release *schema.Release) (string, error) {
	dir := l.CoreDir(rc.UniqueName(), release.Version)

	urls := make([]string, len(release.Files))
	var need uint64
	for i, f := range release.Files {
		u, err := rc.FileURL(f)
		if err != nil {
			return "", err
		}
		urls[i] = u
		need += uint64(f.Size)
	}
	if err := client.CheckDistinctNames(urls); err != nil {
		if e, ok := apperrors.As(err); ok {
			e.WithContext("core", rc.UniqueName()).WithContext("version", release.Version.String())
		}
		return "", err
	}
	if err := scan.EnsureSpace(dir, need); err != nil {
		return "", err
	}

	paths := make([]string, len(release.Files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, f := range release.Files {
		g.Go(func() error {
			p, err := l.transport().Download(gctx, urls[i], dir)
			if err != nil {
				return err
			}
			paths[i] = p
			return upgrade.VerifyFile(p, f)
		})
	}
	if err := g.Wait(); err != nil {
		scan.RemoveFiles(paths)
		return "", err
	}

	for i, f := range release.Files {
		if f.Type == schema.FileTypeCoreRBF {
			return paths[i], nil
		}
	}
	return "", nil
}

// UpgradeCore replaces an installed core with a newer release (the latest
// when version is empty) and clears its pending flag.
func (l *Library) UpgradeCore(ctx context.Context, core *Core, version string) (*Core, error) {
	rc, err := l.FetchRemoteCore(ctx, core)
	if err != nil {
		return nil, err
	}
	release, err := selectRelease(rc, version)
	if err != nil {
		return nil, err
	}
	if versions.Compare(release.Version, core.Version) <= 0 {
		return nil, apperrors.NewDuplicateError("CORE_INSTALLED", "core is already at this release or newer").
			WithContext("core", core.UniqueName).
			WithContext("version", core.Version.String())
	}

	utils.GetGlobalLogger().WithFields(map[string]interface{}{
		"core": core.UniqueName, "from": core.Version.String(), "to": release.Version.String(),
	}).Info("upgrading core")
	l.graph.Fetcher().Prompter().Show("Downloading core...",
		fmt.Sprintf("Core %q\nVersion %q", rc.Name(), release.Version.String()))

	rbf, err := l.downloadRelease(ctx, rc, release)
	if err != nil {
		return nil, err
	}

	oldDir := l.CoreDir(core.UniqueName, core.Version)
	upgraded, err := scanCore(l.db.QueryRowContext(ctx, `
		UPDATE cores SET name = ?, description = ?, version = ?, rbf_path = ?
		WHERE id = ?
		RETURNING id, catalog_id, name, unique_name, description, version, rbf_path, update_pending`,
		rc.Name(), nullString(rc.Description()), nullVersion(release.Version), nullString(rbf), core.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to update core: %w", err)
	}
	if err := l.CleanCore(ctx, upgraded); err != nil {
		return nil, err
	}
	if err := os.RemoveAll(oldDir); err != nil {
		utils.Warn("failed to remove %s: %v", oldDir, err)
	}
	return upgraded, nil
}

func (l *Library) listCores(ctx context.Context, query string, args ...any) ([]*Core, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cores: %w", err)
	}
	defer rows.Close()

	var out []*Core
	for rows.Next() {
		c, err := scanCore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListCores lists the cores running a system, or every core when systemID
// is zero.
func (l *Library) ListCores(ctx context.Context, systemID int64) ([]*Core, error) {
	if systemID == 0 {
		return l.listCores(ctx, `SELECT `+coreColumns+` FROM cores ORDER BY cores.unique_name`)
	}
	return l.listCores(ctx, `
		SELECT `+coreColumns+`
		FROM cores JOIN cores_systems ON cores_systems.core_id = cores.id
		WHERE cores_systems.system_id = ?
		ORDER BY cores.unique_name`, systemID)
}

func (l *Library) ListCoresForCatalog(ctx context.Context, catalogID int64) ([]*Core, error) {
	return l.listCores(ctx, `SELECT `+coreColumns+` FROM cores WHERE cores.catalog_id = ? ORDER BY cores.unique_name`, catalogID)
}

// CountCores counts the cores running a system, or all when systemID is zero.
func (l *Library) CountCores(ctx context.Context, systemID int64) (int, error) {
	query := `SELECT COUNT(*) FROM cores`
	var args []any
	if systemID != 0 {
		query = `SELECT COUNT(*) FROM cores_systems WHERE system_id = ?`
		args = append(args, systemID)
	}
	var n int
	if err := l.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cores: %w", err)
	}
	return n, nil
}

func (l *Library) getCore(ctx context.Context, where string, arg any) (*Core, error) {
	c, err := scanCore(l.db.QueryRowContext(ctx, `SELECT `+coreColumns+` FROM cores WHERE `+where+` LIMIT 1`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("CORE_NOT_FOUND", "core not found").WithContext("key", fmt.Sprint(arg))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read core: %w", err)
	}
	return c, nil
}

func (l *Library) GetCoreByID(ctx context.Context, id int64) (*Core, error) {
	return l.getCore(ctx, "cores.id = ?", id)
}

func (l *Library) GetCoreByUniqueName(ctx context.Context, uniqueName string) (*Core, error) {
	return l.getCore(ctx, "cores.unique_name = ?", uniqueName)
}

func (l *Library) FetchRemoteCore(ctx context.Context, core *Core) (*remote.Core, error) {
	c, err := l.GetCatalogByID(ctx, core.CatalogID)
	if err != nil {
		return nil, err
	}
	rc, err := l.FetchRemoteCatalog(ctx, c)
	if err != nil {
		return nil, err
	}
	return rc.FetchCore(ctx, core.UniqueName)
}

// CheckCoresForUpdates flags every core whose latest release is newer than
// the installed one and reports whether any was flagged.
func (l *Library) CheckCoresForUpdates(ctx context.Context) (bool, error) {
	cores, err := l.ListCores(ctx, 0)
	if err != nil {
		return false, err
	}

	flagged := false
	for _, core := range cores {
		if core.UpdatePending {
			continue
		}
		rc, err := l.FetchRemoteCore(ctx, core)
		if err != nil {
			return flagged, err
		}
		latest, ok := rc.LatestRelease()
		if !ok || versions.Compare(latest.Version, core.Version) <= 0 {
			continue
		}
		if _, err := l.db.ExecContext(ctx, `UPDATE cores SET update_pending = 1 WHERE id = ?`, core.ID); err != nil {
			return flagged, fmt.Errorf("failed to flag core: %w", err)
		}
		core.UpdatePending = true
		flagged = true
	}
	return flagged, nil
}

// CleanCore clears the pending update flag. UpgradeCore calls it once the
// new release is recorded.
func (l *Library) CleanCore(ctx context.Context, core *Core) error {
	if _, err := l.db.ExecContext(ctx, `UPDATE cores SET update_pending = 0 WHERE id = ?`, core.ID); err != nil {
		return fmt.Errorf("failed to clean core: %w", err)
	}
	core.UpdatePending = false
	return nil
}
