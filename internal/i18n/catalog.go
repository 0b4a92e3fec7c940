// Package i18n provides the translation catalog and localized date
// formatting for the four supported locales.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// FallbackLocale is used when a key is missing for the requested locale.
const FallbackLocale = "en"

// Locales lists the supported locale codes.
var Locales = []string{"ru", "uz", "en", "tr"}

// IsSupported reports whether code is a supported locale.
func IsSupported(code string) bool {
	for _, l := range Locales {
		if l == code {
			return true
		}
	}
	return false
}

// Catalog maps (key, locale) to display strings, loaded from the
// embedded per-locale YAML files. Nested YAML maps flatten to
// dot-separated keys.
type Catalog struct {
	messages map[string]map[string]string // locale -> key -> text
}

// NewCatalog loads the embedded locale files.
func NewCatalog() (*Catalog, error) {
	entries, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded locales: %w", err)
	}

	c := &Catalog{messages: make(map[string]map[string]string)}
	for _, entry := range entries {
		locale := strings.TrimSuffix(entry.Name(), ".yaml")
		raw, err := localeFS.ReadFile("locales/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read locale file %s: %w", entry.Name(), err)
		}

		var tree map[string]any
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("failed to parse locale file %s: %w", entry.Name(), err)
		}

		flat := make(map[string]string)
		flatten("", tree, flat)
		c.messages[locale] = flat
	}

	if _, ok := c.messages[FallbackLocale]; !ok {
		return nil, fmt.Errorf("fallback locale %q missing from embedded catalog", FallbackLocale)
	}
	return c, nil
}

func flatten(prefix string, tree map[string]any, out map[string]string) {
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		switch v := tree[k].(type) {
		case string:
			out[full] = v
		case map[string]any:
			flatten(full, v, out)
		default:
			out[full] = fmt.Sprint(v)
		}
	}
}

// Lookup returns the display string for key in the given locale,
// falling back to the default locale and finally to the key itself.
// Substitutions replace {name} placeholders in the result.
func (c *Catalog) Lookup(key, locale string, subs map[string]string) string {
	text, ok := c.messages[locale][key]
	if !ok {
		text, ok = c.messages[FallbackLocale][key]
	}
	if !ok {
		return key
	}
	for name, value := range subs {
		text = strings.ReplaceAll(text, "{"+name+"}", value)
	}
	return text
}
