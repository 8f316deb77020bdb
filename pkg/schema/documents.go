package schema

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/huanfeng/corehub/pkg/versions"
)

// Ref points at another document, relative to the referencing one.
type Ref struct {
	URL string `json:"url" validate:"required"`
}

// Catalog is the root catalog.json document.
type Catalog struct {
	Name        string           `json:"name" validate:"required"`
	Version     versions.Version `json:"version" validate:"required"`
	LastUpdated string           `json:"lastUpdated,omitempty"`
	Systems     *Ref             `json:"systems,omitempty"`
	Cores       *Ref             `json:"cores,omitempty"`
	Releases    *Ref             `json:"releases,omitempty"`
}

// Index maps unique names to the location of their document. Both
// systems.json and cores.json have this shape.
type Index map[string]Ref

// Keys returns the index keys in sorted order.
func (idx Index) Keys() []string {
	keys := make([]string, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

type GamesDbRef struct {
	URL  string `json:"url" validate:"required"`
	Size int64  `json:"size" validate:"gte=0"`
}

type System struct {
	UniqueName  string      `json:"uniqueName" validate:"required"`
	Name        string      `json:"name,omitempty"`
	Description string      `json:"description,omitempty"`
	GamesDb     *GamesDbRef `json:"gamesDb,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
}

type Core struct {
	UniqueName  string     `json:"uniqueName" validate:"required"`
	Name        string     `json:"name,omitempty"`
	Systems     StringList `json:"systems,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Releases    []Release  `json:"releases" validate:"dive"`
	Description string     `json:"description,omitempty"`
}

// Release is one downloadable version of a core or binary.
type Release struct {
	Version versions.Version `json:"version" validate:"required"`
	Tags    []string         `json:"tags,omitempty"`
	Files   []File           `json:"files" validate:"required,min=1,dive"`
}

// HasTag reports whether the release carries tag.
func (r *Release) HasTag(tag string) bool {
	return slices.Contains(r.Tags, tag)
}

// File types with a known meaning.
const (
	FileTypeCoreRBF = "mister.core.rbf"
)

type File struct {
	URL       string `json:"url" validate:"required"`
	Size      int64  `json:"size" validate:"gte=0"`
	SHA256    string `json:"sha256" validate:"required,hexadecimal,len=64"`
	Signature string `json:"signature,omitempty" validate:"omitempty,base64"`
	Type      string `json:"type,omitempty"`
}

// ReleasesIndex is the top-level releases.json: binary name to releases.
type ReleasesIndex map[string][]Release

type GamesDb struct {
	Games []Game `json:"games" validate:"dive"`
}

type Game struct {
	Name        string     `json:"name" validate:"required"`
	Shortname   string     `json:"shortname,omitempty"`
	Region      string     `json:"region,omitempty"`
	Languages   StringList `json:"languages,omitempty"`
	Description string     `json:"description,omitempty"`
	Sources     []Source   `json:"sources,omitempty" validate:"dive"`
}

type Source struct {
	Files []GameFile `json:"files" validate:"dive"`
}

type GameFile struct {
	Extension string `json:"extension" validate:"required"`
	Size      int64  `json:"size" validate:"gte=0"`
	SHA256    string `json:"sha256" validate:"required,hexadecimal"`
}

// StringList accepts either a single JSON string or an array of strings.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*l = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected a string or a list of strings: %w", err)
	}
	*l = many
	return nil
}

// Joined lowercases every entry and joins them with commas. A single
// string value is lowercased as is.
func (l StringList) Joined() string {
	if len(l) == 0 {
		return ""
	}
	parts := make([]string, len(l))
	for i, s := range l {
		parts[i] = strings.ToLower(s)
	}
	return strings.Join(parts, ",")
}
