package services

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	slugMinLen = 3
	slugMaxLen = 64
)

// NormalizeSlug folds s to lowercase ASCII: accents are decomposed and
// stripped, and every run of other characters becomes a single '-'.
// It returns ErrInvalidSlug when the result is outside 3..64 characters.
func NormalizeSlug(s string) (string, error) {
	out := foldSlug(s)
	if len(out) < slugMinLen || len(out) > slugMaxLen {
		return "", ErrInvalidSlug
	}
	return out, nil
}

// slugFromTitle derives a slug from a survey title, clipping long titles.
func slugFromTitle(title string) (string, error) {
	out := foldSlug(title)
	if len(out) > slugMaxLen {
		out = strings.TrimRight(out[:slugMaxLen], "-")
	}
	return NormalizeSlug(out)
}

func foldSlug(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
