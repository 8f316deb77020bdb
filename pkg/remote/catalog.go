package remote

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/pkg/client"
	"github.com/huanfeng/corehub/pkg/schema"
	"github.com/huanfeng/corehub/pkg/versions"
)

// Catalog is a fetched catalog.json.
type Catalog struct {
	URL    string
	Schema *schema.Catalog

	graph *Graph

	mu       sync.Mutex
	systems  *Systems
	cores    *Cores
	releases *Releases
	flight   singleflight.Group
}

func newCatalog(g *Graph, url string, doc *schema.Catalog) *Catalog {
	return &Catalog{URL: url, Schema: doc, graph: g}
}

func (c *Catalog) Name() string { return c.Schema.Name }

func (c *Catalog) Version() versions.Version { return c.Schema.Version }

func (c *Catalog) LastUpdated() string { return c.Schema.LastUpdated }

func (c *Catalog) fetcher() *client.Fetcher { return c.graph.fetcher }

// memo runs load once per name and keeps the first successful result.
func memo[T any](c *Catalog, name string, slot **T, load func() (*T, error)) (*T, error) {
	c.mu.Lock()
	if *slot != nil {
		v := *slot
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err, _ := c.flight.Do(name, func() (interface{}, error) {
		loaded, err := load()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if *slot == nil {
			*slot = loaded
		}
		return *slot, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*T), nil
}

// Systems returns the systems index, or nil when the catalog has none.
func (c *Catalog) Systems(ctx context.Context) (*Systems, error) {
	if c.Schema.Systems == nil {
		return nil, nil
	}
	return memo(c, "systems", &c.systems, func() (*Systems, error) {
		u, err := ResolveURL(c.URL, c.Schema.Systems.URL)
		if err != nil {
			return nil, err
		}
		idx, err := client.FetchAndValidate[schema.Index](ctx, c.fetcher(), u,
			client.WithStatus("Fetching systems...", "Catalog "+c.Name()+"\nURL: "+u))
		if err != nil {
			return nil, err
		}
		return newSystems(c, u, *idx), nil
	})
}

// Cores returns the cores index, or nil when the catalog has none.
func (c *Catalog) Cores(ctx context.Context) (*Cores, error) {
	if c.Schema.Cores == nil {
		return nil, nil
	}
	return memo(c, "cores", &c.cores, func() (*Cores, error) {
		u, err := ResolveURL(c.URL, c.Schema.Cores.URL)
		if err != nil {
			return nil, err
		}
		idx, err := client.FetchAndValidate[schema.Index](ctx, c.fetcher(), u,
			client.WithStatus("Fetching cores...", "Catalog "+c.Name()+"\nURL: "+u))
		if err != nil {
			return nil, err
		}
		return newCores(c, u, *idx), nil
	})
}

// Releases returns the binary releases document, or nil when the catalog
// has none.
func (c *Catalog) Releases(ctx context.Context) (*Releases, error) {
	if c.Schema.Releases == nil {
		return nil, nil
	}
	return memo(c, "releases", &c.releases, func() (*Releases, error) {
		u, err := ResolveURL(c.URL, c.Schema.Releases.URL)
		if err != nil {
			return nil, err
		}
		idx, err := client.FetchAndValidate[schema.ReleasesIndex](ctx, c.fetcher(), u,
			client.WithStatus("Fetching releases...", "Catalog "+c.Name()+"\nURL: "+u))
		if err != nil {
			return nil, err
		}
		return &Releases{URL: u, Index: *idx, catalog: c}, nil
	})
}

// SystemPredicate selects entries of the systems index.
type SystemPredicate func(uniqueName string, ref schema.Ref) bool

// CorePredicate selects entries of the cores index.
type CorePredicate func(uniqueName string, ref schema.Ref) bool

// FetchSystems fetches the systems accepted by pred (all when nil). With
// deep set every accepted system is fetched concurrently.
func (c *Catalog) FetchSystems(ctx context.Context, pred SystemPredicate, deep bool) (map[string]*System, error) {
	systems, err := c.Systems(ctx)
	if err != nil || systems == nil {
		return map[string]*System{}, err
	}
	return systems.getAll(ctx, pred, c.limit(deep))
}

// FetchCores fetches the cores accepted by pred (all when nil).
func (c *Catalog) FetchCores(ctx context.Context, pred CorePredicate, deep bool) (map[string]*Core, error) {
	cores, err := c.Cores(ctx)
	if err != nil || cores == nil {
		return map[string]*Core{}, err
	}
	return cores.getAll(ctx, pred, c.limit(deep))
}

// FetchReleases returns the binaries accepted by pred (all when nil).
func (c *Catalog) FetchReleases(ctx context.Context, pred func(name string) bool) (map[string]*Binary, error) {
	releases, err := c.Releases(ctx)
	if err != nil || releases == nil {
		return map[string]*Binary{}, err
	}
	return releases.AsMap(pred), nil
}

// FetchSystem returns a single system by unique name.
func (c *Catalog) FetchSystem(ctx context.Context, uniqueName string) (*System, error) {
	systems, err := c.Systems(ctx)
	if err != nil {
		return nil, err
	}
	if systems == nil {
		return nil, apperrors.NewNotFoundError("NO_SYSTEMS", "catalog has no systems").WithContext("catalog", c.URL)
	}
	return systems.Get(ctx, uniqueName)
}

// FetchCore returns a single core by unique name.
func (c *Catalog) FetchCore(ctx context.Context, uniqueName string) (*Core, error) {
	cores, err := c.Cores(ctx)
	if err != nil {
		return nil, err
	}
	if cores == nil {
		return nil, apperrors.NewNotFoundError("NO_CORES", "catalog has no cores").WithContext("catalog", c.URL)
	}
	return cores.Get(ctx, uniqueName)
}

// FetchBinary returns a single binary by name, or nil when the catalog
// does not publish it.
func (c *Catalog) FetchBinary(ctx context.Context, name string) (*Binary, error) {
	releases, err := c.Releases(ctx)
	if err != nil || releases == nil {
		return nil, err
	}
	b, _ := releases.Binary(name)
	return b, nil
}

// FetchDeep fetches the releases and every system and core.
func (c *Catalog) FetchDeep(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := c.FetchReleases(gctx, nil)
		return err
	})
	g.Go(func() error {
		_, err := c.FetchSystems(gctx, nil, true)
		return err
	})
	g.Go(func() error {
		_, err := c.FetchCores(gctx, nil, true)
		return err
	})
	return g.Wait()
}

func (c *Catalog) limit(deep bool) int {
	if deep {
		return c.graph.concurrency
	}
	return 1
}
