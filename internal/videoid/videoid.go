// Package videoid derives canonical video keys from raw caller input.
package videoid

import (
	"regexp"

	"github.com/woktalk/recipe-engine/internal/recipe"
)

// A valid key is exactly 11 characters from the YouTube ID alphabet. Marker
// patterns are tried first so an ID embedded in a longer URL wins over any
// other 11-character run in the string.
var (
	markerPattern = regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/)([A-Za-z0-9_-]{11})`)
	barePattern   = regexp.MustCompile(`([A-Za-z0-9_-]{11})`)
	exactPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
)

// Normalize extracts the canonical key from a watch URL, a short URL, an
// embed URL, or a bare ID. It returns recipe.ErrInvalidKey when no
// 11-character token can be found.
//
// Normalize is idempotent: feeding a returned key back in yields the same key.
func Normalize(input string) (recipe.Key, error) {
	if m := markerPattern.FindStringSubmatch(input); m != nil {
		return recipe.Key(m[1]), nil
	}
	if m := barePattern.FindStringSubmatch(input); m != nil {
		return recipe.Key(m[1]), nil
	}
	return "", recipe.ErrInvalidKey
}

// Valid reports whether s already is a canonical key. Handlers use it to
// reject path parameters without re-running extraction.
func Valid(s string) bool {
	return exactPattern.MatchString(s)
}
