package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/pkg/scan"
	"github.com/huanfeng/corehub/pkg/schema"
	"github.com/huanfeng/corehub/pkg/utils"
)

// GamesChunkSize is the number of records imported between progress
// reports and cancellation checks.
const GamesChunkSize = 100

// CreateGamesBatch imports a games database for system s of catalog c.
// The whole batch is one transaction: on any error, including a cancelled
// context, nothing is kept. progress is called before each chunk and once
// when done.
func (l *Library) CreateGamesBatch(ctx context.Context, games []schema.Game, s *System, c *Catalog, progress Progress) error {
	total := len(games)
	err := l.db.WithTx(ctx, func(tx *sql.Tx) error {
		for start := 0; start < total; start += GamesChunkSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if progress != nil {
				progress(start, total)
			}
			end := min(start+GamesChunkSize, total)
			for i := start; i < end; i++ {
				if err := insertGame(ctx, tx, &games[i], s.ID, c.ID); err != nil {
					return err
				}
			}
		}
		if progress != nil {
			progress(total, total)
		}
		return nil
	})
	if err != nil {
		return err
	}
	utils.Info("imported %d game identifications for %s", total, s.UniqueName)
	return nil
}

func insertGame(ctx context.Context, tx *sql.Tx, g *schema.Game, systemID, catalogID int64) error {
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO games_identification (system_id, catalog_id, name, shortname, region, languages, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
		RETURNING id`,
		systemID, catalogID, g.Name, nullString(g.Shortname), nullString(g.Region),
		nullString(g.Languages.Joined()), nullString(g.Description)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM games_identification WHERE name = ? AND system_id = ?`, g.Name, systemID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewDataIntegrityError("GAME_ID_MISSING", "game identification was neither inserted nor found").
				WithContext("name", g.Name)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to insert game %q: %w", g.Name, err)
	}

	for _, src := range g.Sources {
		for _, f := range src.Files {
			_, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO games_identification_files (games_identification_id, extension, size, sha256)
				VALUES (?, ?, ?, ?)`,
				id, strings.ToLower(f.Extension), f.Size, strings.ToLower(f.SHA256))
			if err != nil {
				return fmt.Errorf("failed to insert file of game %q: %w", g.Name, err)
			}
		}
	}
	return nil
}

// GameExtensions lists the distinct file extensions known to the imported
// games databases.
func (l *Library) GameExtensions(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT DISTINCT extension FROM games_identification_files ORDER BY extension`)
	if err != nil {
		return nil, fmt.Errorf("failed to list extensions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ext string
		if err := rows.Scan(&ext); err != nil {
			return nil, err
		}
		out = append(out, ext)
	}
	return out, rows.Err()
}

// AddGamesFromRoot scans root for files with a known extension, matches
// them by sha256 (and by size when the database records one) and records
// the matches in the games table. It returns the paths that matched
// nothing.
func (l *Library) AddGamesFromRoot(ctx context.Context, root string, progress Progress) ([]string, error) {
	extensions, err := l.GameExtensions(ctx)
	if err != nil {
		return nil, err
	}
	files, err := scan.FindAllFiles(root, extensions)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "SCAN_FAILED", "cannot scan games directory").
			WithContext("root", root)
	}
	utils.Debug("found %d candidate files under %s", len(files), root)

	infos, err := scan.HashFiles(ctx, files, l.workers, progress)
	if err != nil {
		return nil, err
	}

	var unmatched []string
	err = l.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, info := range infos {
			id, name, err := matchGame(ctx, tx, info)
			if err != nil {
				return err
			}
			if id == 0 {
				unmatched = append(unmatched, info.Path)
				continue
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO games (name, path, games_id) VALUES (?, ?, ?)
				ON CONFLICT(path) DO UPDATE SET name = excluded.name, games_id = excluded.games_id`,
				name, info.Path, id)
			if err != nil {
				return fmt.Errorf("failed to record game %s: %w", info.Path, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unmatched, nil
}

func matchGame(ctx context.Context, tx *sql.Tx, info scan.FileInfo) (int64, string, error) {
	var (
		id   int64
		name string
	)
	err := tx.QueryRowContext(ctx, `
		SELECT gi.id, gi.name
		FROM games_identification_files f
		JOIN games_identification gi ON gi.id = f.games_identification_id
		WHERE f.sha256 = ? AND (f.size = 0 OR f.size = ?)
		ORDER BY gi.id
		LIMIT 1`, info.SHA256, info.Size).Scan(&id, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("failed to match %s: %w", filepath.Base(info.Path), err)
	}
	return id, name, nil
}

// Game is a row of the games table joined with its identification.
type Game struct {
	ID         int64
	Name       string
	Path       string
	System     string
	Identified bool
}

func scanGame(row rowScanner) (*Game, error) {
	var (
		g            Game
		path, system sql.NullString
		gamesID      sql.NullInt64
	)
	if err := row.Scan(&g.ID, &g.Name, &path, &gamesID, &system); err != nil {
		return nil, err
	}
	g.Path = path.String
	g.System = system.String
	g.Identified = gamesID.Valid
	return &g, nil
}

// ListGames lists recorded games, optionally only those of one system.
func (l *Library) ListGames(ctx context.Context, systemUniqueName string) ([]*Game, error) {
	query := `
		SELECT games.id, IFNULL(gi.name, games.name), games.path, games.games_id, systems.unique_name
		FROM games
		LEFT JOIN games_identification gi ON gi.id = games.games_id
		LEFT JOIN systems ON systems.id = gi.system_id`
	var args []any
	if systemUniqueName != "" {
		query += ` WHERE systems.unique_name = ?`
		args = append(args, systemUniqueName)
	}
	query += ` ORDER BY 2`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var out []*Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// CountGameIdentifications counts imported identifications of a system.
func (l *Library) CountGameIdentifications(ctx context.Context, systemID int64) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM games_identification WHERE system_id = ?`, systemID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count game identifications: %w", err)
	}
	return n, nil
}
