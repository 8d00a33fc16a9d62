package schema

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/juju/errors"
)

const wildcard = "*"

// ValidatePattern checks that pattern holds at most one wildcard, located at
// its first or last position.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return errors.NotValidf("empty dynamic field pattern")
	}
	switch n := strings.Count(pattern, wildcard); {
	case n == 0:
		return nil
	case n > 1:
		return errors.NotValidf("dynamic field pattern %q with %d wildcards", pattern, n)
	}
	if !strings.HasPrefix(pattern, wildcard) && !strings.HasSuffix(pattern, wildcard) {
		return errors.NotValidf("dynamic field pattern %q with inner wildcard", pattern)
	}
	return nil
}

// Match reports whether key belongs to the field family named by pattern.
//
// "*sfx" matches keys ending in sfx whose preceding rune is a word character;
// "pfx*" matches keys starting with pfx whose following rune is a word
// character. So "cs_*" matches "cs_name" but not "cs", and "*_term" matches
// "en_target_term" but not "term". A pattern without a wildcard matches
// only itself.
func Match(pattern, key string) bool {
	switch {
	case strings.HasPrefix(pattern, wildcard):
		suffix := pattern[len(wildcard):]
		if !strings.HasSuffix(key, suffix) {
			return false
		}
		r, size := utf8.DecodeLastRuneInString(key[:len(key)-len(suffix)])
		return size > 0 && isWordRune(r)
	case strings.HasSuffix(pattern, wildcard):
		prefix := pattern[:len(pattern)-len(wildcard)]
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		r, size := utf8.DecodeRuneInString(key[len(prefix):])
		return size > 0 && isWordRune(r)
	default:
		return pattern == key
	}
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
