package remote

import (
	"context"
	"fmt"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/pkg/client"
	"github.com/huanfeng/corehub/pkg/schema"
)

// Systems is a catalog's systems.json.
type Systems struct {
	*collection[System]
	catalog *Catalog
}

func newSystems(c *Catalog, url string, idx schema.Index) *Systems {
	s := &Systems{catalog: c}
	s.collection = newCollection(url, idx, s.fetchSystem)
	return s
}

func (s *Systems) URL() string { return s.url }

// Get returns the system with the given unique name.
func (s *Systems) Get(ctx context.Context, uniqueName string) (*System, error) {
	return s.get(ctx, uniqueName)
}

func (s *Systems) fetchSystem(ctx context.Context, key, u string) (*System, error) {
	doc, err := client.FetchAndValidate[schema.System](ctx, s.catalog.fetcher(), u,
		client.WithStatus("Fetching system...", fmt.Sprintf("Catalog %s\nURL: %s", s.catalog.Name(), u)))
	if err != nil {
		return nil, err
	}
	if doc.UniqueName != key {
		return nil, apperrors.NewIdentityMismatchError("system", key, doc.UniqueName).WithContext("url", u)
	}
	return &System{URL: u, Schema: doc, systems: s}, nil
}

// System is a fetched system document.
type System struct {
	URL    string
	Schema *schema.System

	systems *Systems
}

func (s *System) Catalog() *Catalog { return s.systems.catalog }

func (s *System) UniqueName() string { return s.Schema.UniqueName }

// Name falls back to the unique name when the document has none.
func (s *System) Name() string {
	if s.Schema.Name != "" {
		return s.Schema.Name
	}
	return s.Schema.UniqueName
}

func (s *System) Description() string { return s.Schema.Description }

func (s *System) Tags() []string { return s.Schema.Tags }

// GamesDbSize is the declared size of the games database, 0 when absent.
func (s *System) GamesDbSize() int64 {
	if s.Schema.GamesDb == nil {
		return 0
	}
	return s.Schema.GamesDb.Size
}

// GamesDb is a system's games identification database.
type GamesDb struct {
	URL    string
	System *System
	Schema *schema.GamesDb
}

func (g *GamesDb) Games() []schema.Game {
	if g == nil || g.Schema == nil {
		return nil
	}
	return g.Schema.Games
}

// FetchGamesDb downloads the system's games database. It returns nil
// without error when the system does not publish one.
func (s *System) FetchGamesDb(ctx context.Context) (*GamesDb, error) {
	if s.Schema.GamesDb == nil {
		return nil, nil
	}
	u, err := ResolveURL(s.URL, s.Schema.GamesDb.URL)
	if err != nil {
		return nil, err
	}
	doc, err := client.FetchAndValidate[schema.GamesDb](ctx, s.Catalog().fetcher(), u,
		client.WithStatus("Fetching games database...",
			fmt.Sprintf("Catalog %q\nSystem %q\nURL: %s", s.Catalog().Name(), s.Name(), u)))
	if err != nil {
		return nil, err
	}
	return &GamesDb{URL: u, System: s, Schema: doc}, nil
}
