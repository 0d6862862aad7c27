package catalog

import (
	"sort"

	"golang.org/x/text/language"
)

// Label is a locale → text map stored as JSONB.
type Label map[string]string

// In returns the text best matching the requested locale. An exact key wins;
// otherwise the closest BCP 47 match is used, falling back to the first key
// in lexical order so the result is deterministic.
func (l Label) In(locale string) string {
	if len(l) == 0 {
		return ""
	}
	if v, ok := l[locale]; ok {
		return v
	}

	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tags := make([]language.Tag, 0, len(keys))
	valid := make([]string, 0, len(keys))
	for _, k := range keys {
		tag, err := language.Parse(k)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		valid = append(valid, k)
	}

	if want, err := language.Parse(locale); err == nil && len(tags) > 0 {
		matcher := language.NewMatcher(tags)
		if _, idx, conf := matcher.Match(want); conf > language.No {
			return l[valid[idx]]
		}
	}

	return l[keys[0]]
}

// Merge sets the text for one locale, allocating the map when needed.
func (l Label) Merge(locale, text string) Label {
	if l == nil {
		l = make(Label, 1)
	}
	l[locale] = text
	return l
}
