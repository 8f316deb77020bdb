// Package versions orders catalog version values.
//
// Versions published by catalogs are either strings ("0.2.3-beta") or bare
// JSON numbers (3), and may be missing altogether. Ordering is segment based
// and deliberately not semver aware: "0.2.3-beta" sorts after "0.2.2".
package versions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type kind uint8

const (
	kindNone kind = iota
	kindString
	kindNumber
)

// Version is an optional string or numeric version. The zero value is an
// absent version.
type Version struct {
	kind kind
	str  string
	num  float64
}

// None is the absent version.
var None = Version{}

// String returns a string version.
func String(s string) Version { return Version{kind: kindString, str: s} }

// Number returns a numeric version.
func Number(n float64) Version { return Version{kind: kindNumber, num: n} }

// Parse turns a stored column value back into a Version. An empty string is
// absent; anything else is kept as a string.
func Parse(s string) Version {
	if s == "" {
		return None
	}
	return String(s)
}

// IsZero reports whether v is absent.
func (v Version) IsZero() bool { return v.kind == kindNone }

// IsNumber reports whether v was published as a JSON number.
func (v Version) IsNumber() bool { return v.kind == kindNumber }

// String renders v the way it is compared. Numbers use the shortest
// representation that round-trips; absent renders as "".
func (v Version) String() string {
	switch v.kind {
	case kindString:
		return v.str
	case kindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return ""
	}
}

func (v *Version) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = None
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("version must be a string or a number: %w", err)
		}
		*v = Number(n)
	}
	return nil
}

func (v Version) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindString:
		return json.Marshal(v.str)
	case kindNumber:
		return json.Marshal(v.num)
	default:
		return []byte("null"), nil
	}
}

// Compare returns a negative number when a < b, zero when they are equal
// and a positive number when a > b.
//
// An absent version sorts after every present one.
func Compare(a, b Version) int {
	switch {
	case a.IsZero() && b.IsZero():
		return 0
	case a.IsZero():
		return 1
	case b.IsZero():
		return -1
	case a.kind == kindNumber && b.kind == kindNumber:
		return sign(a.num - b.num)
	}

	as := strings.Split(a.String(), ".")
	bs := strings.Split(b.String(), ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}

	for i := 0; i < n; i++ {
		if i >= len(as) {
			return -1
		}
		if i >= len(bs) {
			return 1
		}
		if c := compareSegment(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return 0
}

// CompareStrings is Compare over two string versions, where "" is absent.
func CompareStrings(a, b string) int {
	return Compare(Parse(a), Parse(b))
}

func compareSegment(a, b string) int {
	na, okA := parseNumber(a)
	nb, okB := parseNumber(b)
	if okA && okB {
		if c := sign(na - nb); c != 0 {
			return c
		}
	}
	return collateStrings(a, b)
}

func sign(f float64) int {
	switch {
	case f < 0:
		return -1
	case f > 0:
		return 1
	default:
		return 0
	}
}

var decimalLiteral = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// parseNumber converts s using numeric string literal rules: surrounding
// whitespace is ignored, the empty string is 0 and 0x/0o/0b prefixes select
// a radix. The result is reported only when finite.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}

	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, ok := new(big.Int).SetString(s[2:], base)
			if !ok {
				return 0, false
			}
			f, _ := new(big.Float).SetInt(n).Float64()
			return f, !math.IsInf(f, 0)
		}
	}

	if !decimalLiteral.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

var (
	collatorMu sync.Mutex
	collator   = collate.New(language.English)
)

func collateStrings(a, b string) int {
	collatorMu.Lock()
	defer collatorMu.Unlock()
	return collator.CompareString(a, b)
}
