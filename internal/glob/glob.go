// Package glob matches file names against shell patterns.
//
// Patterns follow path.Match, except that a bracket expression opened with
// "[!" is negated as in the shell (path.Match only knows "[^").
package glob

import (
	"path"
	"strings"
)

// Match reports whether name matches the shell pattern
func Match(pattern, name string) (bool, error) {
	return path.Match(translate(pattern), name)
}

// Validate returns path.ErrBadPattern for malformed patterns
func Validate(pattern string) error {
	_, err := path.Match(translate(pattern), "")
	return err
}

// translate rewrites "[!" at the start of a bracket expression to "[^".
// Escaped characters are copied as is.
func translate(pattern string) string {
	if !strings.Contains(pattern, "[!") {
		return pattern
	}

	var b strings.Builder
	b.Grow(len(pattern))
	inClass := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\' && i+1 < len(pattern):
			b.WriteByte(c)
			i++
			b.WriteByte(pattern[i])
			continue
		case c == '[' && !inClass:
			inClass = true
			b.WriteByte(c)
			if i+1 < len(pattern) && pattern[i+1] == '!' {
				b.WriteByte('^')
				i++
			}
			continue
		case c == ']' && inClass:
			inClass = false
		}
		b.WriteByte(c)
	}
	return b.String()
}
