// Package remote resolves the documents published by a catalog: the
// catalog itself, its systems and cores indices and their leaves, the
// binary releases and per-system games databases.
//
// A Graph owns the cache of fetched catalogs. Every document is fetched
// at most once per Graph (failures are not remembered), and sub-documents
// are resolved relative to the document that references them.
package remote

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/pkg/client"
	"github.com/huanfeng/corehub/pkg/schema"
	"github.com/huanfeng/corehub/pkg/utils"
)

// WellKnown catalog locations.
type WellKnown string

const (
	OneFpga     WellKnown = "https://catalog.1fpga.cloud/"
	OneFpgaBeta WellKnown = "https://catalog.1fpga.cloud/beta.json"
	LocalTest   WellKnown = "http://catalog.local:8081/catalog.json"
)

// WellKnownByName maps command line names to well-known catalogs.
var WellKnownByName = map[string]WellKnown{
	"1fpga":      OneFpga,
	"1fpga-beta": OneFpgaBeta,
	"local-test": LocalTest,
}

// Graph is the process-scoped cache of remote catalogs.
type Graph struct {
	fetcher     *client.Fetcher
	concurrency int

	mu       sync.Mutex
	catalogs map[string]*Catalog
}

// GraphOption configures a Graph.
type GraphOption func(*Graph)

// WithConcurrency bounds how many documents a deep fetch requests at once.
func WithConcurrency(n int) GraphOption {
	return func(g *Graph) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

func NewGraph(fetcher *client.Fetcher, opts ...GraphOption) *Graph {
	g := &Graph{
		fetcher:     fetcher,
		concurrency: 8,
		catalogs:    make(map[string]*Catalog),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Fetcher returns the fetcher documents are loaded with.
func (g *Graph) Fetcher() *client.Fetcher { return g.fetcher }

// ClearCache forgets every fetched catalog. Catalogs already handed out
// keep working; later fetches create new instances.
func (g *Graph) ClearCache() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.catalogs = make(map[string]*Catalog)
}

// NormalizeURL prepends https:// when no scheme is given and makes an
// empty path "/".
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", apperrors.NewValidationError(raw, []apperrors.FieldError{{Field: "url", Message: "is required"}})
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", apperrors.WrapError(err, apperrors.ErrorTypeValidation, "BAD_URL", "invalid catalog URL").
			WithContext("url", raw)
	}
	if u.Host == "" && u.Scheme != "file" {
		return "", apperrors.NewError(apperrors.ErrorTypeValidation, "BAD_URL", "catalog URL has no host").
			WithContext("url", raw)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// ResolveURL resolves ref against base.
func ResolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid reference %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}

func (g *Graph) cached(keys ...string) *Catalog {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, k := range keys {
		if c, ok := g.catalogs[k]; ok {
			return c
		}
	}
	return nil
}

// store caches c under every key unless another fetch won the race, in
// which case the earlier instance is returned.
func (g *Graph) store(c *Catalog, keys ...string) *Catalog {
	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.catalogs[c.URL]; ok {
		c = existing
	}
	for _, k := range keys {
		if _, ok := g.catalogs[k]; !ok {
			g.catalogs[k] = c
		}
	}
	return c
}

// FetchWellKnown fetches one of the well-known catalogs.
func (g *Graph) FetchWellKnown(ctx context.Context, wk WellKnown, deep bool) (*Catalog, error) {
	return g.FetchCatalog(ctx, string(wk), deep)
}

// FetchCatalog returns the catalog at rawURL, from cache when possible.
//
// When the document cannot be fetched for any reason other than failing
// validation, two alternatives are tried in order: the URL with
// "catalog.json" resolved against it, then the same URL over https. The
// last error is returned when neither applies.
func (g *Graph) FetchCatalog(ctx context.Context, rawURL string, deep bool) (*Catalog, error) {
	return g.fetchCatalog(ctx, rawURL, deep, nil)
}

func (g *Graph) fetchCatalog(ctx context.Context, rawURL string, deep bool, aliases []string) (*Catalog, error) {
	u, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	aliases = append(aliases, u)

	if c := g.cached(u); c != nil {
		g.store(c, aliases...)
		if deep {
			if err := c.FetchDeep(ctx); err != nil {
				return nil, err
			}
		}
		return c, nil
	}

	doc, err := client.FetchAndValidate[schema.Catalog](ctx, g.fetcher, u,
		client.WithoutRetry(),
		client.WithStatus("Fetching catalog...", "URL: "+u))
	if err == nil {
		c := g.store(newCatalog(g, u, doc), aliases...)
		if deep {
			if err := c.FetchDeep(ctx); err != nil {
				return nil, err
			}
		}
		return c, nil
	}

	if apperrors.IsType(err, apperrors.ErrorTypeValidation) || ctx.Err() != nil {
		return nil, err
	}

	utils.Debug("error fetching catalog %s: %v", u, err)

	if !strings.HasSuffix(u, "/catalog.json") {
		next, rerr := ResolveURL(u, "catalog.json")
		if rerr != nil {
			return nil, err
		}
		return g.fetchCatalog(ctx, next, deep, aliases)
	}
	if strings.HasPrefix(u, "http://") {
		return g.fetchCatalog(ctx, "https://"+strings.TrimPrefix(u, "http://"), deep, aliases)
	}
	return nil, err
}
