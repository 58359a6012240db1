// Package i18n loads the bot's message catalogs and maps menu labels back to tokens.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"

	"github.com/m3rciful/vkinder/internal/menu"
)

// DefaultLocale is the locale used when the user's language is not supported.
const DefaultLocale = "ru"

//go:embed locales/*.yaml
var embedded embed.FS

// startCommands always bring the user to the main menu.
var startCommands = []string{"start", "/start", "начать", "привет"}

type catalogFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

// Bundle holds the registered catalogs of all supported locales.
type Bundle struct {
	cat     *catalog.Builder
	tags    []language.Tag
	matcher language.Matcher
	labels  map[string]menu.Token
}

var (
	defaultOnce   sync.Once
	defaultBundle *Bundle
)

// Default returns the process-wide bundle with Russian as the fallback locale.
func Default() *Bundle {
	defaultOnce.Do(func() {
		b, err := Load(embedded, DefaultLocale)
		if err != nil {
			panic(fmt.Sprintf("i18n: embedded catalogs: %v", err))
		}
		defaultBundle = b
	})
	return defaultBundle
}

// Embedded loads the built-in catalogs with the given fallback locale.
func Embedded(fallback string) (*Bundle, error) {
	return Load(embedded, fallback)
}

// Load reads locales/*.yaml from fsys. The fallback locale must be present.
func Load(fsys fs.FS, fallback string) (*Bundle, error) {
	paths, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	fallbackTag, err := language.Parse(fallback)
	if err != nil {
		return nil, fmt.Errorf("parse fallback locale %q: %w", fallback, err)
	}

	b := &Bundle{
		cat:    catalog.NewBuilder(catalog.Fallback(fallbackTag)),
		labels: make(map[string]menu.Token),
	}
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, err)
		}
		tag, err := language.Parse(strings.TrimSpace(file.Locale))
		if err != nil {
			return nil, fmt.Errorf("catalog %s: locale: %w", path, err)
		}
		for key, msg := range file.Messages {
			if err := b.cat.SetString(tag, key, msg); err != nil {
				return nil, fmt.Errorf("catalog %s: key %s: %w", path, key, err)
			}
		}
		for _, tok := range menu.All {
			label, ok := file.Messages[labelKey(tok)]
			if !ok {
				return nil, fmt.Errorf("catalog %s: missing label for %s", path, tok)
			}
			b.labels[foldLabel(label)] = tok
		}
		b.tags = append(b.tags, tag)
	}
	if !slices.Contains(b.tags, fallbackTag) {
		return nil, fmt.Errorf("fallback locale %s is not defined in catalogs", fallback)
	}
	// The matcher prefers its first tag when nothing matches.
	ordered := append([]language.Tag{fallbackTag}, slices.DeleteFunc(slices.Clone(b.tags), func(t language.Tag) bool {
		return t == fallbackTag
	})...)
	b.matcher = language.NewMatcher(ordered)
	return b, nil
}

// Match picks the supported locale closest to a BCP 47 language code.
func (b *Bundle) Match(lang string) language.Tag {
	tag, _ := language.MatchStrings(b.matcher, lang)
	base, _ := tag.Base()
	for _, t := range b.tags {
		if tb, _ := t.Base(); tb == base {
			return t
		}
	}
	return b.tags[0]
}

// Printer returns a printer bound to the bundle's catalog.
func (b *Bundle) Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(b.cat))
}

// Label returns the button caption of tok in tag.
func (b *Bundle) Label(tag language.Tag, tok menu.Token) string {
	return b.Printer(tag).Sprintf(labelKey(tok))
}

// Normalize maps a button caption in any supported locale to its token.
func (b *Bundle) Normalize(text string) (menu.Token, bool) {
	tok, ok := b.labels[foldLabel(text)]
	return tok, ok
}

// IsStartCommand reports whether text is one of the greeting commands.
func IsStartCommand(text string) bool {
	return slices.Contains(startCommands, strings.ToLower(strings.TrimSpace(text)))
}

func labelKey(tok menu.Token) string {
	return "menu." + string(tok)
}

func foldLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
