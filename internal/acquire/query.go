// Package acquire finds, validates, tags and uploads the audio for one track.
package acquire

import (
	"regexp"
	"strings"
)

var (
	bracketedRe  = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)
	apostropheRe = regexp.MustCompile(`['’]`)
	symbolRe     = regexp.MustCompile(`[^\p{L}\p{M}\p{N}\s]+`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// CleanText drops bracketed qualifiers and punctuation and collapses
// whitespace. Letters and marks of any script are kept.
func CleanText(s string) string {
	s = bracketedRe.ReplaceAllString(s, " ")
	s = apostropheRe.ReplaceAllString(s, "")
	s = symbolRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// PrimaryArtist is the first name of a comma separated artist list.
func PrimaryArtist(artist string) string {
	first, _, _ := strings.Cut(artist, ",")
	return CleanText(first)
}

// BuildQuery is the search text handed to every provider.
func BuildQuery(title, artist string) string {
	return strings.TrimSpace(CleanText(title) + " " + PrimaryArtist(artist))
}
