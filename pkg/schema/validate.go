// Package schema holds the catalog document types and validates them.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/pkg/versions"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validate.RegisterCustomTypeFunc(func(v reflect.Value) interface{} {
			return v.Interface().(versions.Version).String()
		}, versions.Version{})
	})
	return validate
}

type selfValidating interface {
	fieldErrors(v *validator.Validate) []apperrors.FieldError
}

// Validate checks doc against its schema and returns every violation.
// A nil result means the document is valid.
func Validate(doc interface{}) []apperrors.FieldError {
	if sv, ok := doc.(selfValidating); ok {
		return sv.fieldErrors(instance())
	}
	return structErrors(instance(), doc, "")
}

func structErrors(v *validator.Validate, doc interface{}, prefix string) []apperrors.FieldError {
	err := v.Struct(doc)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []apperrors.FieldError{{Field: strings.TrimSuffix(prefix, "."), Message: err.Error()}}
	}

	out := make([]apperrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, apperrors.FieldError{
			Field:   prefix + stripRoot(fe.Namespace()),
			Message: describe(fe),
			Value:   fmt.Sprintf("%v", fe.Value()),
		})
	}
	return out
}

// stripRoot drops the leading struct type name from a namespace.
func stripRoot(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
	case "len":
		return fmt.Sprintf("must be %s characters long", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "hexadecimal":
		return "must be a hexadecimal string"
	case "base64":
		return "must be base64 encoded"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

func (idx *Index) fieldErrors(v *validator.Validate) []apperrors.FieldError {
	if *idx == nil {
		return []apperrors.FieldError{{Field: "(root)", Message: "must be an object"}}
	}
	var out []apperrors.FieldError
	for _, key := range idx.Keys() {
		if key == "" {
			out = append(out, apperrors.FieldError{Field: "(root)", Message: "keys must not be empty"})
			continue
		}
		ref := (*idx)[key]
		out = append(out, structErrors(v, &ref, key+".")...)
	}
	return out
}

func (idx *ReleasesIndex) fieldErrors(v *validator.Validate) []apperrors.FieldError {
	if *idx == nil {
		return []apperrors.FieldError{{Field: "(root)", Message: "must be an object"}}
	}
	names := make([]string, 0, len(*idx))
	for name := range *idx {
		names = append(names, name)
	}
	slices.Sort(names)

	var out []apperrors.FieldError
	for _, name := range names {
		for i := range (*idx)[name] {
			out = append(out, structErrors(v, &(*idx)[name][i], fmt.Sprintf("%s[%d].", name, i))...)
		}
	}
	return out
}

// Kinds of document that can be validated by name.
const (
	KindCatalog  = "catalog"
	KindSystems  = "systems"
	KindSystem   = "system"
	KindCores    = "cores"
	KindCore     = "core"
	KindReleases = "releases"
	KindGamesDb  = "games_db"
)

var registry = map[string]func() interface{}{
	KindCatalog:  func() interface{} { return &Catalog{} },
	KindSystems:  func() interface{} { return &Index{} },
	KindSystem:   func() interface{} { return &System{} },
	KindCores:    func() interface{} { return &Index{} },
	KindCore:     func() interface{} { return &Core{} },
	KindReleases: func() interface{} { return &ReleasesIndex{} },
	KindGamesDb:  func() interface{} { return &GamesDb{} },
}

// Kinds lists the registered document kinds.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// ValidateJSON decodes data as a document of the given kind and validates
// it. Undecodable input is reported as a single root-level violation.
func ValidateJSON(kind string, data []byte) ([]apperrors.FieldError, error) {
	newDoc, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown document kind %q", kind)
	}
	doc := newDoc()
	if err := json.Unmarshal(data, doc); err != nil {
		return []apperrors.FieldError{{Field: "(root)", Message: fmt.Sprintf("invalid JSON: %v", err)}}, nil
	}
	return Validate(doc), nil
}
