package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/pkg/remote"
	"github.com/huanfeng/corehub/pkg/store"
	"github.com/huanfeng/corehub/pkg/utils"
)

// System is a row of the systems table.
type System struct {
	ID          int64
	CatalogID   int64
	Name        string
	UniqueName  string
	Description string
}

const systemColumns = `id, catalog_id, name, unique_name, description`

func scanSystem(row rowScanner) (*System, error) {
	var (
		s    System
		desc sql.NullString
	)
	if err := row.Scan(&s.ID, &s.CatalogID, &s.Name, &s.UniqueName, &desc); err != nil {
		return nil, err
	}
	s.Description = desc.String
	return &s, nil
}

func createSystem(ctx context.Context, q store.Queryer, rs *remote.System, catalogID int64) (*System, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM systems WHERE unique_name = ?`, rs.UniqueName()).Scan(&id)
	if err == nil {
		return nil, apperrors.NewDuplicateError("SYSTEM_EXISTS", "system already exists").
			WithContext("unique_name", rs.UniqueName())
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	s, err := scanSystem(q.QueryRowContext(ctx, `
		INSERT INTO systems (catalog_id, name, unique_name, description)
		VALUES (?, ?, ?, ?)
		RETURNING `+systemColumns,
		catalogID, rs.Name(), rs.UniqueName(), nullString(rs.Description())))
	if err != nil {
		return nil, fmt.Errorf("failed to insert system %s: %w", rs.UniqueName(), err)
	}
	return s, nil
}

// CreateSystem records rs as part of catalog c.
func (l *Library) CreateSystem(ctx context.Context, rs *remote.System, c *Catalog) (*System, error) {
	return createSystem(ctx, l.db, rs, c.ID)
}

func (l *Library) listSystems(ctx context.Context, query string, args ...any) ([]*System, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list systems: %w", err)
	}
	defer rows.Close()

	var out []*System
	for rows.Next() {
		s, err := scanSystem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListSystems returns every recorded system ordered by unique name.
func (l *Library) ListSystems(ctx context.Context) ([]*System, error) {
	return l.listSystems(ctx, `SELECT `+systemColumns+` FROM systems ORDER BY unique_name`)
}

func (l *Library) ListSystemsForCatalog(ctx context.Context, catalogID int64) ([]*System, error) {
	return l.listSystems(ctx, `SELECT `+systemColumns+` FROM systems WHERE catalog_id = ? ORDER BY unique_name`, catalogID)
}

func (l *Library) getSystem(ctx context.Context, where string, arg any) (*System, error) {
	s, err := scanSystem(l.db.QueryRowContext(ctx, `SELECT `+systemColumns+` FROM systems WHERE `+where+` LIMIT 1`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("SYSTEM_NOT_FOUND", "system not found").WithContext("key", fmt.Sprint(arg))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read system: %w", err)
	}
	return s, nil
}

func (l *Library) GetSystemByUniqueName(ctx context.Context, uniqueName string) (*System, error) {
	return l.getSystem(ctx, "unique_name = ?", uniqueName)
}

func (l *Library) GetSystemByID(ctx context.Context, id int64) (*System, error) {
	return l.getSystem(ctx, "id = ?", id)
}

// FetchRemoteSystem fetches the remote document s was recorded from.
func (l *Library) FetchRemoteSystem(ctx context.Context, s *System) (*remote.System, error) {
	c, err := l.GetCatalogByID(ctx, s.CatalogID)
	if err != nil {
		return nil, err
	}
	rc, err := l.FetchRemoteCatalog(ctx, c)
	if err != nil {
		return nil, err
	}
	return rc.FetchSystem(ctx, s.UniqueName)
}

// InstallSystem installs every core of the catalog that runs the system,
// then imports the games database the system publishes, if any. Cores that
// are already installed are skipped.
func (l *Library) InstallSystem(ctx context.Context, s *System, progress Progress) error {
	rs, err := l.FetchRemoteSystem(ctx, s)
	if err != nil {
		return err
	}
	c, err := l.GetCatalogByID(ctx, s.CatalogID)
	if err != nil {
		return err
	}

	if err := l.installSystemCores(ctx, rs.Catalog(), s, c); err != nil {
		return err
	}

	gamesDb, err := rs.FetchGamesDb(ctx)
	if err != nil {
		return err
	}
	if gamesDb == nil {
		utils.Info("system %s has no games database", s.UniqueName)
		return nil
	}

	l.graph.Fetcher().Prompter().Show("Installing game database...", fmt.Sprintf("System %q", s.Name))
	return l.CreateGamesBatch(ctx, gamesDb.Games(), s, c, progress)
}

func (l *Library) installSystemCores(ctx context.Context, rc *remote.Catalog, s *System, c *Catalog) error {
	cores, err := rc.FetchCores(ctx, nil, true)
	if err != nil {
		return err
	}
	for _, name := range sortedKeys(cores) {
		core := cores[name]
		if !slices.Contains(core.Systems(), s.UniqueName) {
			continue
		}
		if _, err := l.InstallCore(ctx, core, c, ""); err != nil {
			if e, ok := apperrors.As(err); ok && e.Code == "CORE_INSTALLED" {
				utils.Debug("core %s already installed", name)
				continue
			}
			return err
		}
	}
	return nil
}
