// Package i18n loads UI label dictionaries and matches client language
// preferences against them.
package i18n

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"golang.org/x/text/language"
)

type Bundle struct {
	dict      map[string]map[string]string
	fallback  string
	supported []string
	matcher   language.Matcher
}

// Load reads <lang>.json for every supported language from fsys. Only the
// fallback dictionary is required.
func Load(fsys fs.FS, fallback string, supported []string) (*Bundle, error) {
	if len(supported) == 0 {
		supported = []string{"en", "ja"}
	}
	b := &Bundle{
		dict:     map[string]map[string]string{},
		fallback: fallback,
	}
	// The fallback goes first so the matcher defaults to it.
	ordered := []string{fallback}
	for _, l := range supported {
		if l != fallback {
			ordered = append(ordered, l)
		}
	}
	tags := make([]language.Tag, 0, len(ordered))
	for _, l := range ordered {
		tag, err := language.Parse(l)
		if err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", l, err)
		}
		raw, err := fs.ReadFile(fsys, l+".json")
		if err != nil {
			// allow missing file for non-default locales
			if l == fallback {
				return nil, fmt.Errorf("load locale %s: %w", l, err)
			}
			continue
		}
		var m map[string]string
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", l, err)
		}
		b.dict[l] = m
		b.supported = append(b.supported, l)
		tags = append(tags, tag)
	}
	b.matcher = language.NewMatcher(tags)
	return b, nil
}

// Supported returns the loaded languages, sorted.
func (b *Bundle) Supported() []string {
	out := append([]string(nil), b.supported...)
	sort.Strings(out)
	return out
}

// Fallback returns the configured fallback language.
func (b *Bundle) Fallback() string { return b.fallback }

// T returns translation for key in lang, falling back to default and finally key.
func (b *Bundle) T(lang, key string) string {
	if lang != "" {
		if m, ok := b.dict[lang]; ok {
			if v, ok := m[key]; ok {
				return v
			}
		}
	}
	if m, ok := b.dict[b.fallback]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return key
}

// Resolve chooses the best loaded language for an Accept-Language header.
func (b *Bundle) Resolve(acceptLang string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLang)
	if err != nil || len(tags) == 0 {
		return b.fallback
	}
	return b.pick(tags...)
}

// Match maps a single language code ("en-GB", "JA") onto a loaded language.
func (b *Bundle) Match(lang string) string {
	tag, err := language.Parse(strings.TrimSpace(lang))
	if err != nil {
		return b.fallback
	}
	return b.pick(tag)
}

func (b *Bundle) pick(tags ...language.Tag) string {
	_, idx, conf := b.matcher.Match(tags...)
	if conf == language.No || idx < 0 || idx >= len(b.supported) {
		return b.fallback
	}
	return b.supported[idx]
}
