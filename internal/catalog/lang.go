package catalog

import (
	"strings"

	"golang.org/x/text/language"
)

// languageCandidates returns the keys to try, most specific first, when
// resolving a string for lang: the tag as given, its canonical form, its
// base language, then the default language.
func languageCandidates(lang string) []string {
	var out []string
	add := func(s string) {
		if s == "" {
			return
		}
		for _, existing := range out {
			if existing == s {
				return
			}
		}
		out = append(out, s)
	}

	add(strings.TrimSpace(lang))
	if tag, err := language.Parse(lang); err == nil {
		add(tag.String())
		base, _ := tag.Base()
		add(base.String())
	}
	add(DefaultLanguage)
	return out
}

// resolveTitle picks the best translation of a title for lang.
func resolveTitle(fallback string, titles map[string]string, lang string) string {
	for _, key := range languageCandidates(lang) {
		if t, ok := titles[key]; ok && t != "" {
			return t
		}
	}
	return fallback
}

// baseLanguage returns the base language subtag of lang ("pt-BR" → "pt").
// Unparseable input is returned lowercased.
func baseLanguage(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(lang))
	}
	base, _ := tag.Base()
	return base.String()
}

// CanonicalLanguage returns the BCP 47 canonical form of lang, or an error
// for malformed tags.
func CanonicalLanguage(lang string) (string, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return "", err
	}
	return tag.String(), nil
}
