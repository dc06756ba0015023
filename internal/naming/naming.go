// Package naming turns raw scraped portal text into filesystem-safe
// folder and file names.
package naming

import (
	"regexp"
	"strings"
)

var (
	reservedChars = regexp.MustCompile(`[\\/*?:"<>|]`)
	whitespace    = regexp.MustCompile(`\s+`)
	yearSegment   = regexp.MustCompile(`/(20\d{2})(?:/|$)`)
)

// SanitizeName replaces filesystem-reserved characters with underscores and
// collapses whitespace runs (including newlines) to a single space. The
// result never contains any of \ / * ? : " < > | and the function is
// idempotent.
func SanitizeName(raw string) string {
	cleaned := reservedChars.ReplaceAllString(raw, "_")
	return strings.TrimSpace(whitespace.ReplaceAllString(cleaned, " "))
}

// DeriveYearOrFallback searches a URL path for a 4-digit year segment
// (20xx bounded by path separators or end of string) and returns its
// digits. When no year is present the path itself, stripped of any leading
// separator, serves as the disambiguating label.
func DeriveYearOrFallback(relativePath string) string {
	if m := yearSegment.FindStringSubmatch(relativePath); m != nil {
		return m[1]
	}
	return strings.TrimPrefix(relativePath, "/")
}
