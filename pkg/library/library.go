// Package library keeps the local record of installed catalogs, systems,
// cores, binaries and game identifications in the SQLite store, and keeps
// it in step with the remote catalogs.
package library

import (
	"database/sql"
	"slices"
	"time"

	"github.com/huanfeng/corehub/internal/version"
	"github.com/huanfeng/corehub/pkg/client"
	"github.com/huanfeng/corehub/pkg/remote"
	"github.com/huanfeng/corehub/pkg/store"
	"github.com/huanfeng/corehub/pkg/versions"
)

// Progress receives (current, total) updates from long operations.
type Progress func(current, total int)

// Library is the local record of what is installed.
type Library struct {
	db        *store.DB
	graph     *remote.Graph
	coresDir  string
	workers   int
	now       func() time.Time
	installed func(binary string) (string, bool)
}

// Option configures a Library.
type Option func(*Library)

// WithCoresDir sets where cores are installed.
func WithCoresDir(dir string) Option {
	return func(l *Library) { l.coresDir = dir }
}

// WithWorkers bounds concurrent hashing and downloads.
func WithWorkers(n int) Option {
	return func(l *Library) {
		if n > 0 {
			l.workers = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Library) { l.now = now }
}

// WithInstalledVersions replaces the lookup of installed binary versions.
func WithInstalledVersions(fn func(binary string) (string, bool)) Option {
	return func(l *Library) { l.installed = fn }
}

func New(db *store.DB, graph *remote.Graph, opts ...Option) *Library {
	l := &Library{
		db:        db,
		graph:     graph,
		coresDir:  "cores",
		workers:   4,
		now:       time.Now,
		installed: version.Installed,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Library) DB() *store.DB { return l.db }

func (l *Library) Graph() *remote.Graph { return l.graph }

func (l *Library) transport() client.Transport { return l.graph.Fetcher().Transport() }

type rowScanner interface {
	Scan(dest ...any) error
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullVersion(v versions.Version) sql.NullString {
	return nullString(v.String())
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
