package services

import (
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	reTrailingParens = regexp.MustCompile(`\s*\([^)]*\)\s*$`)
	reTrailingStamp  = regexp.MustCompile(`[-_\s]*\d{10,}$`)
	reNonAlnum       = regexp.MustCompile(`[^a-z0-9]+`)
)

// Canonicalize maps a display name or file name to its URL slug. Trailing
// parenthetical notes and long numeric stamps (upload timestamps) are
// dropped, diacritics are folded and every other non-alphanumeric run
// becomes a single dash. Canonicalize(Canonicalize(s)) == Canonicalize(s).
func Canonicalize(raw string) string {
	s := strings.TrimSpace(raw)
	for {
		next := reTrailingStamp.ReplaceAllString(reTrailingParens.ReplaceAllString(s, ""), "")
		if next == s {
			break
		}
		s = next
	}

	var b strings.Builder
	for _, r := range norm.NFD.String(strings.ToLower(s)) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	s = strings.Trim(reNonAlnum.ReplaceAllString(b.String(), "-"), "-")

	// Normalising can expose a stamp that punctuation hid, e.g. "a1234567890!".
	for {
		next := strings.TrimRight(reTrailingStamp.ReplaceAllString(s, ""), "-")
		if next == s {
			return s
		}
		s = next
	}
}

// rawSlug is the file name of p without its directory and .md extension.
func rawSlug(p string) string {
	return strings.TrimSuffix(path.Base(p), ".md")
}

// contentPath is where an item with the given canonical slug is stored.
func contentPath(kind ContentKind, slug string) string {
	return kind.Prefix() + slug + ".md"
}

// publicPath is the rendered page of an item, used for cache invalidation.
func publicPath(kind ContentKind, slug string) string {
	return "/" + string(kind) + "/" + slug
}
