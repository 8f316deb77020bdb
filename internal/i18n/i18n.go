// Package i18n localizes command output. Messages live in embedded TOML
// files named active.<lang>.toml.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// EnvLang overrides the detected language.
const EnvLang = "COREHUB_LANG"

//go:embed locales/*.toml
var localeFS embed.FS

var (
	mu        sync.RWMutex
	bundle    *goi18n.Bundle
	localizer *goi18n.Localizer
	current   = language.English
)

// Init loads the embedded locales and picks a language. The first of these
// that names a supported language wins: lang, $COREHUB_LANG, $LC_ALL,
// $LC_MESSAGES, $LANG, the platform's preferred UI languages. English is
// the fallback.
func Init(lang string) error {
	b := goi18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(localeFS, "locales/active.*.toml")
	if err != nil {
		return err
	}
	for _, file := range files {
		if _, err := b.LoadMessageFileFS(localeFS, file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}

	chosen := match(b.LanguageTags(), candidates(lang))

	mu.Lock()
	defer mu.Unlock()
	bundle = b
	current = chosen
	localizer = goi18n.NewLocalizer(b, chosen.String(), language.English.String())
	return nil
}

// Languages lists the languages messages are available in.
func Languages() []language.Tag {
	mu.RLock()
	defer mu.RUnlock()
	if bundle == nil {
		return []language.Tag{language.English}
	}
	return bundle.LanguageTags()
}

// CurrentLanguage returns the language chosen by Init.
func CurrentLanguage() language.Tag {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// T returns the message with the given ID rendered with data. Unknown IDs
// render as the ID itself.
func T(id string, data ...map[string]interface{}) string {
	mu.RLock()
	l := localizer
	mu.RUnlock()
	if l == nil {
		if err := Init(""); err != nil {
			fmt.Fprintf(os.Stderr, "i18n init failed: %v\n", err)
			return id
		}
		mu.RLock()
		l = localizer
		mu.RUnlock()
	}

	cfg := &goi18n.LocalizeConfig{
		MessageID:      id,
		DefaultMessage: &goi18n.Message{ID: id, Other: id},
	}
	if len(data) > 0 && data[0] != nil {
		cfg.TemplateData = data[0]
		if n, ok := data[0]["Count"]; ok {
			cfg.PluralCount = n
		}
	}

	msg, err := l.Localize(cfg)
	if err != nil || msg == "" {
		return id
	}
	return msg
}

// Tf is T with alternating key/value template arguments.
func Tf(id string, kv ...interface{}) string {
	data := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			data[key] = kv[i+1]
		}
	}
	return T(id, data)
}

func candidates(lang string) []string {
	var out []string
	if lang != "" {
		out = append(out, lang)
	}
	for _, key := range []string{EnvLang, "LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		out = platformLocales()
	}
	return out
}

// normalize turns POSIX locale names such as zh_CN.UTF-8 into BCP 47 tags.
func normalize(locale string) (language.Tag, bool) {
	s := strings.TrimSpace(locale)
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, "_", "-")
	if s == "" || s == "C" || s == "POSIX" {
		return language.Und, false
	}
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und, false
	}
	return tag, true
}

func match(supported []language.Tag, locales []string) language.Tag {
	var tags []language.Tag
	for _, l := range locales {
		if tag, ok := normalize(l); ok {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		return language.English
	}
	_, i, conf := language.NewMatcher(supported).Match(tags...)
	if conf == language.No {
		return language.English
	}
	return supported[i]
}
