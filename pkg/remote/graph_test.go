package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/pkg/client"
	"github.com/huanfeng/corehub/pkg/schema"
	"github.com/huanfeng/corehub/pkg/ui"
	"github.com/huanfeng/corehub/pkg/versions"
)

type memTransport struct {
	mu       sync.Mutex
	docs     map[string]string
	failures map[string]int
	requests []string
}

func (m *memTransport) FetchJSON(_ context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, url)
	if m.failures[url] > 0 {
		m.failures[url]--
		return nil, apperrors.NewTransportError("HTTP_STATUS", "HTTP 503")
	}
	doc, ok := m.docs[url]
	if !ok {
		return nil, apperrors.NewTransportError("HTTP_STATUS", "HTTP 404")
	}
	return []byte(doc), nil
}

func (m *memTransport) Download(context.Context, string, string) (string, error) {
	return "", errors.New("not implemented")
}

func (m *memTransport) IsOnline(context.Context) bool { return true }

func (m *memTransport) count(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r == url {
			n++
		}
	}
	return n
}

func newTestGraph(docs map[string]string) (*Graph, *memTransport) {
	tr := &memTransport{docs: docs, failures: map[string]int{}}
	return NewGraph(client.NewFetcher(tr, ui.Silent{}), WithConcurrency(4)), tr
}

var sha = strings.Repeat("ab", 32)

func coreDoc(name string, vs ...string) string {
	releases := make([]string, 0, len(vs))
	for _, v := range vs {
		releases = append(releases, fmt.Sprintf(`{"version":%q,"files":[{"url":"%s-%s.rbf","size":3,"sha256":%q}]}`, v, name, v, sha))
	}
	return fmt.Sprintf(`{"uniqueName":%q,"systems":"nes","releases":[%s]}`, name, strings.Join(releases, ","))
}

const base = "https://example.com/"

func fullCatalog() map[string]string {
	docs := map[string]string{}
	docs[base+"catalog.json"] = `{"name":"Example","version":"1.0","systems":{"url":"systems.json"},"cores":{"url":"cores.json"},"releases":{"url":"releases.json"}}`
	docs[base+"systems.json"] = `{"nes":{"url":"systems/nes.json"},"snes":{"url":"systems/snes.json"}}`
	docs[base+"systems/nes.json"] = `{"uniqueName":"nes","name":"NES","gamesDb":{"url":"nes-games.json","size":10}}`
	docs[base+"systems/snes.json"] = `{"uniqueName":"snes"}`
	docs[base+"systems/nes-games.json"] = `{"games":[{"name":"Game","sources":[{"files":[{"extension":"nes","size":1,"sha256":"00ff"}]}]}]}`
	docs[base+"cores.json"] = `{"nes-core":{"url":"cores/nes-core.json"}}`
	docs[base+"cores/nes-core.json"] = coreDoc("nes-core", "1.0", "1.2")
	docs[base+"releases.json"] = fmt.Sprintf(`{"1fpga":[{"version":"0.9","files":[{"url":"bin/1fpga","size":3,"sha256":%q}]}]}`, sha)
	return docs
}

func TestFetchCatalogAppendsCatalogJSON(t *testing.T) {
	g, tr := newTestGraph(fullCatalog())

	c, err := g.FetchCatalog(context.Background(), "example.com", false)
	require.NoError(t, err)
	assert.Equal(t, base+"catalog.json", c.URL)
	assert.Equal(t, "Example", c.Name())
	assert.Equal(t, []string{base, base + "catalog.json"}, tr.requests)

	again, err := g.FetchCatalog(context.Background(), "https://example.com", false)
	require.NoError(t, err)
	assert.Same(t, c, again)
	assert.Len(t, tr.requests, 2)
}

func TestFetchCatalogFallsBackToHTTPS(t *testing.T) {
	g, tr := newTestGraph(fullCatalog())

	c, err := g.FetchCatalog(context.Background(), "http://example.com/", false)
	require.NoError(t, err)
	assert.Equal(t, base+"catalog.json", c.URL)
	assert.Equal(t, []string{
		"http://example.com/",
		"http://example.com/catalog.json",
		"https://example.com/catalog.json",
	}, tr.requests)

	for _, alias := range []string{"http://example.com/", "http://example.com/catalog.json"} {
		cached, err := g.FetchCatalog(context.Background(), alias, false)
		require.NoError(t, err)
		assert.Same(t, c, cached)
	}
	assert.Len(t, tr.requests, 3)
}

func TestFetchCatalogGivesUp(t *testing.T) {
	g, tr := newTestGraph(map[string]string{})

	_, err := g.FetchCatalog(context.Background(), "https://nowhere.example/catalog.json", false)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeTransport))
	assert.Len(t, tr.requests, 1)
}

func TestFetchCatalogFallbackIsDeterministic(t *testing.T) {
	for _, tc := range []struct {
		url  string
		want []string
	}{
		{"example.com", []string{"https://example.com/", "https://example.com/catalog.json"}},
		{"http://example.com", []string{
			"http://example.com/",
			"http://example.com/catalog.json",
			"https://example.com/catalog.json",
		}},
	} {
		t.Run(tc.url, func(t *testing.T) {
			g, tr := newTestGraph(map[string]string{})
			ctx := context.Background()

			_, err := g.FetchCatalog(ctx, tc.url, false)
			require.Error(t, err)
			first := append([]string(nil), tr.requests...)

			tr.requests = nil
			_, err = g.FetchCatalog(ctx, tc.url, false)
			require.Error(t, err)

			assert.Equal(t, tc.want, first)
			assert.Equal(t, first, tr.requests)
		})
	}
}

func TestFetchCatalogValidationStopsFallback(t *testing.T) {
	g, tr := newTestGraph(map[string]string{base: `{"version":1}`})

	_, err := g.FetchCatalog(context.Background(), base, false)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	assert.Equal(t, []string{base}, tr.requests)
}

func TestClearCache(t *testing.T) {
	g, tr := newTestGraph(fullCatalog())
	ctx := context.Background()

	first, err := g.FetchCatalog(ctx, base+"catalog.json", false)
	require.NoError(t, err)
	g.ClearCache()
	second, err := g.FetchCatalog(ctx, base+"catalog.json", false)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, 2, tr.count(base+"catalog.json"))
}

func TestSystemIdentityMismatch(t *testing.T) {
	docs := fullCatalog()
	docs[base+"systems/nes.json"] = `{"uniqueName":"snes"}`
	g, _ := newTestGraph(docs)
	ctx := context.Background()

	c, err := g.FetchCatalog(ctx, base+"catalog.json", false)
	require.NoError(t, err)

	_, err = c.FetchSystem(ctx, "nes")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeIdentityMismatch))

	snes, err := c.FetchSystem(ctx, "snes")
	require.NoError(t, err)
	assert.Equal(t, "snes", snes.Name())
}

func TestCoreIdentityMismatch(t *testing.T) {
	docs := fullCatalog()
	docs[base+"cores/nes-core.json"] = coreDoc("other", "1.0")
	g, _ := newTestGraph(docs)
	ctx := context.Background()

	c, err := g.FetchCatalog(ctx, base+"catalog.json", false)
	require.NoError(t, err)
	_, err = c.FetchCore(ctx, "nes-core")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeIdentityMismatch))
}

func TestFetchDeep(t *testing.T) {
	g, tr := newTestGraph(fullCatalog())
	ctx := context.Background()

	c, err := g.FetchCatalog(ctx, base+"catalog.json", true)
	require.NoError(t, err)
	for _, u := range []string{"systems.json", "systems/nes.json", "systems/snes.json", "cores.json", "cores/nes-core.json", "releases.json"} {
		assert.Equal(t, 1, tr.count(base+u), u)
	}

	systems, err := c.FetchSystems(ctx, nil, false)
	require.NoError(t, err)
	assert.Len(t, systems, 2)
	assert.Equal(t, 1, tr.count(base+"systems/nes.json"))

	cores, err := c.FetchCores(ctx, nil, false)
	require.NoError(t, err)
	core := cores["nes-core"]
	require.NotNil(t, core)
	assert.Equal(t, []string{"nes"}, core.Systems())

	latest, ok := core.LatestRelease()
	require.True(t, ok)
	assert.Equal(t, "1.2", latest.Version.String())

	fileURL, err := core.FileURL(latest.Files[0])
	require.NoError(t, err)
	assert.Equal(t, base+"cores/nes-core-1.2.rbf", fileURL)

	bin, err := c.FetchBinary(ctx, "1fpga")
	require.NoError(t, err)
	require.NotNil(t, bin)
	assert.Equal(t, "0.9", bin.LatestVersion().String())
	binURL, err := bin.FileURL(bin.Releases[0].Files[0])
	require.NoError(t, err)
	assert.Equal(t, base+"bin/1fpga", binURL)
}

func TestFetchSystemsPredicate(t *testing.T) {
	g, tr := newTestGraph(fullCatalog())
	ctx := context.Background()

	c, err := g.FetchCatalog(ctx, base+"catalog.json", false)
	require.NoError(t, err)
	systems, err := c.FetchSystems(ctx, func(name string, _ schema.Ref) bool { return name == "nes" }, false)
	require.NoError(t, err)
	assert.Len(t, systems, 1)
	assert.Equal(t, 0, tr.count(base+"systems/snes.json"))
}

func TestFailedLeafIsNotMemoized(t *testing.T) {
	g, tr := newTestGraph(fullCatalog())
	tr.failures[base+"systems/nes.json"] = 1
	ctx := context.Background()

	c, err := g.FetchCatalog(ctx, base+"catalog.json", false)
	require.NoError(t, err)

	_, err = c.FetchSystem(ctx, "nes")
	require.Error(t, err)

	nes, err := c.FetchSystem(ctx, "nes")
	require.NoError(t, err)
	assert.Equal(t, "NES", nes.Name())
	assert.Equal(t, int64(10), nes.GamesDbSize())

	again, err := c.FetchSystem(ctx, "nes")
	require.NoError(t, err)
	assert.Same(t, nes, again)
}

func TestUnknownSystem(t *testing.T) {
	g, _ := newTestGraph(fullCatalog())
	ctx := context.Background()

	c, err := g.FetchCatalog(ctx, base+"catalog.json", false)
	require.NoError(t, err)
	_, err = c.FetchSystem(ctx, "genesis")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestFetchGamesDb(t *testing.T) {
	g, _ := newTestGraph(fullCatalog())
	ctx := context.Background()

	c, err := g.FetchCatalog(ctx, base+"catalog.json", false)
	require.NoError(t, err)

	nes, err := c.FetchSystem(ctx, "nes")
	require.NoError(t, err)
	db, err := nes.FetchGamesDb(ctx)
	require.NoError(t, err)
	require.Len(t, db.Games(), 1)
	assert.Equal(t, "Game", db.Games()[0].Name)

	snes, err := c.FetchSystem(ctx, "snes")
	require.NoError(t, err)
	none, err := snes.FetchGamesDb(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestCatalogWithoutSections(t *testing.T) {
	g, _ := newTestGraph(map[string]string{base + "catalog.json": `{"name":"Bare","version":2}`})
	ctx := context.Background()

	c, err := g.FetchCatalog(ctx, base+"catalog.json", true)
	require.NoError(t, err)

	systems, err := c.FetchSystems(ctx, nil, false)
	require.NoError(t, err)
	assert.Empty(t, systems)

	bin, err := c.FetchBinary(ctx, "1fpga")
	require.NoError(t, err)
	assert.Nil(t, bin)
}

func release(version string, tags ...string) schema.Release {
	return schema.Release{Version: versions.Parse(version), Tags: tags}
}

func TestLatestRelease(t *testing.T) {
	tests := []struct {
		name     string
		releases []schema.Release
		want     string
		found    bool
	}{
		{"empty", nil, "", false},
		{"highest version", []schema.Release{release("1.0"), release("1.10"), release("1.9")}, "1.10", true},
		{"latest tag wins", []schema.Release{release("2.0"), release("1.5", "latest")}, "1.5", true},
		{"beta excluded", []schema.Release{release("1.0"), release("2.0", "beta")}, "1.0", true},
		{"alpha excluded", []schema.Release{release("3.0", "alpha"), release("0.1")}, "0.1", true},
		{"only prereleases", []schema.Release{release("1.0", "beta"), release("2.0", "alpha")}, "", false},
		{"latest beats prerelease filter", []schema.Release{release("1.0"), release("2.0", "beta", "latest")}, "2.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LatestRelease(tt.releases)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, got.Version.String())
			}
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := map[string]string{
		"example.com":                   "https://example.com/",
		"http://example.com":            "http://example.com/",
		"https://example.com/beta.json": "https://example.com/beta.json",
	}
	for in, want := range tests {
		got, err := NormalizeURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := NormalizeURL("  ")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}
