package library

import (
	"context"
	"database/sql"
	"fmt"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/pkg/remote"
	"github.com/huanfeng/corehub/pkg/store"
	"github.com/huanfeng/corehub/pkg/utils"
	"github.com/huanfeng/corehub/pkg/versions"
)

// Binary is a row of catalog_binaries: an upgradable program and the
// version of it that is installed.
type Binary struct {
	ID            int64
	CatalogID     int64
	Name          string
	Version       versions.Version
	UpdatePending bool
}

const binaryColumns = `id, catalog_id, name, version, update_pending`

func scanBinary(row rowScanner) (*Binary, error) {
	var (
		b Binary
		v sql.NullString
	)
	if err := row.Scan(&b.ID, &b.CatalogID, &b.Name, &v, &b.UpdatePending); err != nil {
		return nil, err
	}
	b.Version = versions.Parse(v.String)
	return &b, nil
}

func (l *Library) createBinary(ctx context.Context, q store.Queryer, rb *remote.Binary, c *Catalog) (*Binary, error) {
	installed, _ := l.installed(rb.Name)
	current := versions.Parse(installed)

	latest := rb.LatestVersion()
	pending := !latest.IsZero() && versions.Compare(latest, current) > 0

	b, err := scanBinary(q.QueryRowContext(ctx, `
		INSERT INTO catalog_binaries (catalog_id, name, version, update_pending)
		VALUES (?, ?, ?, ?)
		RETURNING `+binaryColumns,
		c.ID, rb.Name, nullVersion(current), boolInt(pending)))
	if err != nil {
		return nil, fmt.Errorf("failed to insert binary %s: %w", rb.Name, err)
	}
	return b, nil
}

// CreateBinary records rb with the version installed on this host.
func (l *Library) CreateBinary(ctx context.Context, rb *remote.Binary, c *Catalog) (*Binary, error) {
	return l.createBinary(ctx, l.db, rb, c)
}

// ListBinaries lists the binaries of one catalog, or of all when catalogID
// is zero.
func (l *Library) ListBinaries(ctx context.Context, catalogID int64) ([]*Binary, error) {
	query := `SELECT ` + binaryColumns + ` FROM catalog_binaries`
	var args []any
	if catalogID != 0 {
		query += ` WHERE catalog_id = ?`
		args = append(args, catalogID)
	}
	query += ` ORDER BY name`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list binaries: %w", err)
	}
	defer rows.Close()

	var out []*Binary
	for rows.Next() {
		b, err := scanBinary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// FetchRemoteBinary finds b in its catalog's releases.
func (l *Library) FetchRemoteBinary(ctx context.Context, b *Binary) (*remote.Binary, error) {
	c, err := l.GetCatalogByID(ctx, b.CatalogID)
	if err != nil {
		return nil, err
	}
	rc, err := l.FetchRemoteCatalog(ctx, c)
	if err != nil {
		return nil, err
	}
	rb, err := rc.FetchBinary(ctx, b.Name)
	if err != nil {
		return nil, err
	}
	if rb == nil {
		return nil, apperrors.NewNotFoundError("RELEASE_NOT_FOUND", "release not found").WithContext("binary", b.Name)
	}
	return rb, nil
}

// CheckBinariesForUpdates flags every binary whose latest remote release
// is newer than the installed one. Binaries already flagged are skipped.
// It reports whether any binary was flagged.
func (l *Library) CheckBinariesForUpdates(ctx context.Context) (bool, error) {
	binaries, err := l.ListBinaries(ctx, 0)
	if err != nil {
		return false, err
	}

	flagged := false
	for _, b := range binaries {
		if b.UpdatePending {
			continue
		}
		rb, err := l.FetchRemoteBinary(ctx, b)
		if err != nil {
			return flagged, err
		}
		latest := rb.LatestVersion()
		if latest.IsZero() || versions.Compare(latest, b.Version) <= 0 {
			continue
		}
		if _, err := l.db.ExecContext(ctx, `UPDATE catalog_binaries SET update_pending = 1 WHERE id = ?`, b.ID); err != nil {
			return flagged, fmt.Errorf("failed to flag binary: %w", err)
		}
		utils.Info("update available for %s: %s -> %s", b.Name, b.Version, latest)
		b.UpdatePending = true
		flagged = true
	}
	return flagged, nil
}

// CleanBinary clears the pending update flag after a successful upgrade
// and records installed as the current version when it is present.
func (l *Library) CleanBinary(ctx context.Context, b *Binary, installed versions.Version) error {
	if installed.IsZero() {
		installed = b.Version
	}
	_, err := l.db.ExecContext(ctx, `UPDATE catalog_binaries SET update_pending = 0, version = ? WHERE id = ?`,
		nullVersion(installed), b.ID)
	if err != nil {
		return fmt.Errorf("failed to clean binary: %w", err)
	}
	b.UpdatePending = false
	b.Version = installed
	return nil
}
