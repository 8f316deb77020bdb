package remote

import (
	"github.com/huanfeng/corehub/pkg/schema"
	"github.com/huanfeng/corehub/pkg/versions"
)

// Releases is a catalog's releases.json: installable binaries by name.
type Releases struct {
	URL   string
	Index schema.ReleasesIndex

	catalog *Catalog
}

func (r *Releases) Catalog() *Catalog { return r.catalog }

// Binary returns the binary with the given name.
func (r *Releases) Binary(name string) (*Binary, bool) {
	list, ok := r.Index[name]
	if !ok {
		return nil, false
	}
	return &Binary{Name: name, Releases: list, releases: r}, true
}

// AsMap returns every binary accepted by pred (all when nil).
func (r *Releases) AsMap(pred func(name string) bool) map[string]*Binary {
	out := make(map[string]*Binary, len(r.Index))
	for name := range r.Index {
		if pred != nil && !pred(name) {
			continue
		}
		b, _ := r.Binary(name)
		out[name] = b
	}
	return out
}

// Binary is one named binary of a releases document.
type Binary struct {
	Name     string
	Releases []schema.Release

	releases *Releases
}

func (b *Binary) Catalog() *Catalog { return b.releases.catalog }

// BaseURL is the URL release files are resolved against.
func (b *Binary) BaseURL() string { return b.releases.URL }

// LatestRelease uses the same selection rule as cores.
func (b *Binary) LatestRelease() (*schema.Release, bool) {
	return LatestRelease(b.Releases)
}

// LatestVersion is the version of LatestRelease, absent when there is none.
func (b *Binary) LatestVersion() versions.Version {
	r, ok := b.LatestRelease()
	if !ok {
		return versions.None
	}
	return r.Version
}

// FileURL resolves a release file against the releases document.
func (b *Binary) FileURL(f schema.File) (string, error) {
	return ResolveURL(b.releases.URL, f.URL)
}
