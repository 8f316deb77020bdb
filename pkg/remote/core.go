package remote

import (
	"context"
	"fmt"
	"slices"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/pkg/client"
	"github.com/huanfeng/corehub/pkg/schema"
	"github.com/huanfeng/corehub/pkg/versions"
)

// Cores is a catalog's cores.json.
type Cores struct {
	*collection[Core]
	catalog *Catalog
}

func newCores(c *Catalog, url string, idx schema.Index) *Cores {
	cs := &Cores{catalog: c}
	cs.collection = newCollection(url, idx, cs.fetchCore)
	return cs
}

func (cs *Cores) URL() string { return cs.url }

// Get returns the core with the given unique name.
func (cs *Cores) Get(ctx context.Context, uniqueName string) (*Core, error) {
	return cs.get(ctx, uniqueName)
}

func (cs *Cores) fetchCore(ctx context.Context, key, u string) (*Core, error) {
	doc, err := client.FetchAndValidate[schema.Core](ctx, cs.catalog.fetcher(), u,
		client.WithStatus("Fetching core...", fmt.Sprintf("Catalog %q\nCore: %s\nURL: %s", cs.catalog.Name(), key, u)))
	if err != nil {
		return nil, err
	}
	if doc.UniqueName != key {
		return nil, apperrors.NewIdentityMismatchError("core", key, doc.UniqueName).WithContext("url", u)
	}
	return &Core{URL: u, Schema: doc, cores: cs}, nil
}

// Core is a fetched core document.
type Core struct {
	URL    string
	Schema *schema.Core

	cores *Cores
}

func (c *Core) Catalog() *Catalog { return c.cores.catalog }

func (c *Core) UniqueName() string { return c.Schema.UniqueName }

func (c *Core) Name() string {
	if c.Schema.Name != "" {
		return c.Schema.Name
	}
	return c.Schema.UniqueName
}

// Systems lists the unique names of the systems the core runs.
func (c *Core) Systems() []string { return []string(c.Schema.Systems) }

func (c *Core) Tags() []string { return c.Schema.Tags }

func (c *Core) Description() string { return c.Schema.Description }

func (c *Core) Releases() []schema.Release { return c.Schema.Releases }

// LatestRelease picks the release to install by default.
func (c *Core) LatestRelease() (*schema.Release, bool) {
	return LatestRelease(c.Schema.Releases)
}

// Release returns the release with exactly the given version string.
func (c *Core) Release(version string) (*schema.Release, bool) {
	for i := range c.Schema.Releases {
		if c.Schema.Releases[i].Version.String() == version {
			return &c.Schema.Releases[i], true
		}
	}
	return nil, false
}

// FileURL resolves a release file against the core document.
func (c *Core) FileURL(f schema.File) (string, error) {
	return ResolveURL(c.URL, f.URL)
}

// LatestRelease applies the default release selection:
//  1. the first release tagged "latest" wins;
//  2. otherwise releases tagged "alpha" or "beta" are dropped and the
//     highest remaining version is taken;
//  3. otherwise there is no installable release.
func LatestRelease(releases []schema.Release) (*schema.Release, bool) {
	for i := range releases {
		if releases[i].HasTag("latest") {
			return &releases[i], true
		}
	}

	candidates := make([]*schema.Release, 0, len(releases))
	for i := range releases {
		if releases[i].HasTag("alpha") || releases[i].HasTag("beta") {
			continue
		}
		candidates = append(candidates, &releases[i])
	}
	if len(candidates) == 0 {
		return nil, false
	}

	slices.SortStableFunc(candidates, func(a, b *schema.Release) int {
		return -versions.Compare(a.Version, b.Version)
	})
	return candidates[0], true
}
