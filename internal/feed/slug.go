package feed

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
	baseTitleSep = regexp.MustCompile(`\s*[-–]\s*`)
)

// Slugify lower-cases a title, folds accents, and joins the remaining
// alphanumeric runs with single dashes.
func Slugify(title string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		title,
	)
	if err != nil {
		folded = title
	}
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(folded), "-")
	return strings.Trim(slug, "-")
}

// CompatSlug is the legacy identifier form: lower-cased with spaces turned
// into dashes and nothing else.
func CompatSlug(title string) string {
	return strings.ReplaceAll(strings.ToLower(title), " ", "-")
}

// BaseTitle returns the part of a title before the first dash or en dash,
// so "Song - Live Version" yields "Song".
func BaseTitle(title string) string {
	return baseTitleSep.Split(title, 2)[0]
}
