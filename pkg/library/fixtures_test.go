package library

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/huanfeng/corehub/pkg/client"
	"github.com/huanfeng/corehub/pkg/remote"
	"github.com/huanfeng/corehub/pkg/store"
	"github.com/huanfeng/corehub/pkg/ui"
)

// catalogServer serves a mutable set of documents.
type catalogServer struct {
	*httptest.Server

	mu       sync.Mutex
	docs     map[string][]byte
	requests map[string]int
}

func newCatalogServer(t *testing.T) *catalogServer {
	t.Helper()
	s := &catalogServer{docs: map[string][]byte{}, requests: map[string]int{}}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.URL.Path]++
		body, ok := s.docs[r.URL.Path]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *catalogServer) set(path string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[path] = body
}

func (s *catalogServer) setJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	s.set(path, data)
}

func (s *catalogServer) hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func fileEntry(url string, data []byte, typ string) map[string]any {
	return map[string]any{"url": url, "size": len(data), "sha256": digest(data), "type": typ}
}

var (
	rbf11    = []byte("nes core 1.1")
	rbf10    = []byte("nes core 1.0")
	binary20 = []byte("binary 2.0")
	romAlpha = []byte("alpha rom")
	romBravo = []byte("bravo rom")
	romPlain = []byte("not in any database")
)

// publish writes a complete catalog at version v.
func (s *catalogServer) publish(t *testing.T, v string) {
	t.Helper()
	s.setJSON(t, "/catalog.json", map[string]any{
		"name": "Test", "version": v, "lastUpdated": "2024-01-01",
		"systems":  map[string]string{"url": "systems.json"},
		"cores":    map[string]string{"url": "cores.json"},
		"releases": map[string]string{"url": "releases.json"},
	})
	s.setJSON(t, "/systems.json", map[string]any{
		"nes":  map[string]string{"url": "systems/nes.json"},
		"snes": map[string]string{"url": "systems/snes.json"},
	})
	s.setJSON(t, "/systems/nes.json", map[string]any{
		"uniqueName": "nes", "name": "NES",
		"gamesDb": map[string]any{"url": "nes/games.json", "size": 100},
	})
	s.setJSON(t, "/systems/snes.json", map[string]any{"uniqueName": "snes", "name": "SNES"})
	s.setJSON(t, "/systems/nes/games.json", map[string]any{
		"games": []any{
			map[string]any{"name": "Alpha", "region": "US", "languages": "EN",
				"sources": []any{map[string]any{"files": []any{
					map[string]any{"extension": "nes", "size": len(romAlpha), "sha256": strings.ToUpper(digest(romAlpha))},
				}}}},
			map[string]any{"name": "Bravo", "languages": []string{"EN", "FR"},
				"sources": []any{map[string]any{"files": []any{
					map[string]any{"extension": "nes", "size": 0, "sha256": digest(romBravo)},
				}}}},
			map[string]any{"name": "Charlie"},
		},
	})
	s.setJSON(t, "/cores.json", map[string]any{
		"nes-core": map[string]string{"url": "cores/nes-core.json"},
		"gen-core": map[string]string{"url": "cores/gen-core.json"},
		"bad-core": map[string]string{"url": "cores/bad-core.json"},
		"dup-core": map[string]string{"url": "cores/dup-core.json"},
	})
	s.setJSON(t, "/cores/nes-core.json", map[string]any{
		"uniqueName": "nes-core", "name": "NES Core", "systems": "nes", "tags": []string{"no-roms"},
		"releases": []any{
			map[string]any{"version": "1.0", "files": []any{fileEntry("nes-core-1.0.rbf", rbf10, "mister.core.rbf")}},
			map[string]any{"version": "1.1", "files": []any{fileEntry("nes-core-1.1.rbf", rbf11, "mister.core.rbf")}},
		},
	})
	s.set("/cores/nes-core-1.0.rbf", rbf10)
	s.set("/cores/nes-core-1.1.rbf", rbf11)
	s.setJSON(t, "/cores/gen-core.json", map[string]any{
		"uniqueName": "gen-core", "systems": []string{"genesis"},
		"releases": []any{map[string]any{"version": "1", "files": []any{fileEntry("nes-core-1.0.rbf", rbf10, "mister.core.rbf")}}},
	})
	bad := fileEntry("nes-core-1.0.rbf", rbf10, "mister.core.rbf")
	bad["sha256"] = digest([]byte("something else"))
	s.setJSON(t, "/cores/bad-core.json", map[string]any{
		"uniqueName": "bad-core", "systems": "genesis",
		"releases": []any{map[string]any{"version": "1", "files": []any{bad}}},
	})
	s.setJSON(t, "/cores/dup-core.json", map[string]any{
		"uniqueName": "dup-core", "systems": "genesis",
		"releases": []any{map[string]any{"version": "1", "files": []any{
			fileEntry("a/data.bin", romAlpha, ""),
			fileEntry("b/data.bin", romBravo, ""),
		}}},
	})
	s.set("/cores/a/data.bin", romAlpha)
	s.set("/cores/b/data.bin", romBravo)
	s.setJSON(t, "/releases.json", map[string]any{
		"1fpga": []any{map[string]any{"version": "2.0", "files": []any{fileEntry("bin/1fpga", binary20, "")}}},
		"other": []any{map[string]any{"version": "9.0", "files": []any{fileEntry("bin/other", binary20, "")}}},
	})
}

type testEnv struct {
	server  *catalogServer
	lib     *Library
	graph   *remote.Graph
	now     time.Time
	version string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		server:  newCatalogServer(t),
		now:     time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		version: "1.0",
	}
	env.server.publish(t, "1.0")

	db, err := store.Open(context.Background(), store.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	transport := client.NewHTTPTransport(client.WithRetry(client.RetryConfig{
		MaxRetries: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1,
	}))
	env.graph = remote.NewGraph(client.NewFetcher(transport, ui.Silent{}))
	env.lib = New(db, env.graph,
		WithCoresDir(t.TempDir()),
		WithClock(func() time.Time { return env.now }),
		WithInstalledVersions(func(name string) (string, bool) {
			if name == "1fpga" {
				return env.version, true
			}
			return "", false
		}),
	)
	return env
}

func (env *testEnv) catalogURL() string {
	return env.server.URL + "/catalog.json"
}

func (env *testEnv) createCatalog(t *testing.T) *Catalog {
	t.Helper()
	ctx := context.Background()
	rc, err := env.graph.FetchCatalog(ctx, env.catalogURL(), false)
	require.NoError(t, err)
	c, err := env.lib.CreateCatalog(ctx, rc, 0)
	require.NoError(t, err)
	return c
}

func (env *testEnv) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, env.lib.DB().QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n))
	return n
}
