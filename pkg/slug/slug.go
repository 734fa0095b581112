// Package slug turns display names into URL path segments.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnum   = regexp.MustCompile(`[^a-z0-9]+`)
	apostrophe = strings.NewReplacer("'", "", "’", "")
)

// Generate creates a URL-friendly slug from name: accents are folded to
// ASCII, apostrophes dropped and every other run of non-alphanumerics
// becomes one hyphen.
//
//   - "men's clothing" → "mens-clothing"
//   - "Crème Brûlée" → "creme-brulee"
//   - "Hello   World!" → "hello-world"
func Generate(name string) string {
	folded, _, err := transform.String(foldAccents(), name)
	if err != nil {
		folded = name
	}

	s := strings.ToLower(strings.TrimSpace(folded))
	s = strings.ReplaceAll(s, "ı", "i")
	s = apostrophe.Replace(s)
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Is reports whether s is already in slug form.
func Is(s string) bool {
	return s != "" && Generate(s) == s
}

// Match returns the first candidate whose slug equals s.
func Match(s string, candidates []string) (string, bool) {
	for _, c := range candidates {
		if Generate(c) == s {
			return c, true
		}
	}
	return "", false
}

// A transform.Transformer keeps state, so every call gets its own chain.
func foldAccents() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}
