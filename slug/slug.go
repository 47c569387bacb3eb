// Package slug derives URL- and key-safe name fragments.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxLen = 100

var (
	nonAlnum = regexp.MustCompile("[^a-z0-9-]+")
	hyphens  = regexp.MustCompile("-+")
)

// Generate creates a lowercase ASCII slug from an arbitrary string.
// Accented characters are transliterated, everything non-alphanumeric
// collapses to single hyphens, and the result is capped at 100 bytes.
func Generate(s string) string {
	if s == "" {
		return ""
	}

	s = transliterate(strings.ToLower(s))
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	s = nonAlnum.ReplaceAllString(s, "")
	s = hyphens.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > maxLen {
		s = strings.TrimRight(s[:maxLen], "-")
	}
	return s
}

// FromImageURL derives a slug from the filename part of an image URL,
// ignoring query parameters and the file extension. Used as the
// human-readable tail of archive storage keys.
func FromImageURL(url string) string {
	parts := strings.Split(url, "/")
	filename := parts[len(parts)-1]

	if idx := strings.Index(filename, "?"); idx != -1 {
		filename = filename[:idx]
	}
	if idx := strings.LastIndex(filename, "."); idx != -1 {
		filename = filename[:idx]
	}

	return Generate(filename)
}

// transliterate strips diacritics by decomposing to NFD, dropping
// nonspacing marks, and recomposing.
func transliterate(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}
