// internal/domain/notification/chunk.go
package notification

import (
	"strings"
	"unicode/utf8"
)

// ChunkSeparator joins fragments back into the original body.
const ChunkSeparator = "\n"

// Chunk splits body into fragments of at most limit runes, breaking only at line
// boundaries. strings.Join(fragments, ChunkSeparator) == body whenever every line
// fits the limit. A line longer than limit is the one case that gets cut, at rune
// boundaries; Oversized reports it.
func Chunk(body string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(body) <= limit {
		return []string{body}
	}

	var (
		fragments []string
		current   strings.Builder
		size      int
	)
	flush := func() {
		fragments = append(fragments, current.String())
		current.Reset()
		size = 0
	}

	for i, line := range strings.Split(body, ChunkSeparator) {
		n := utf8.RuneCountInString(line)
		if n > limit {
			if i > 0 {
				flush()
			}
			pieces := splitRunes(line, limit)
			for _, p := range pieces[:len(pieces)-1] {
				fragments = append(fragments, p)
			}
			current.WriteString(pieces[len(pieces)-1])
			size = utf8.RuneCountInString(pieces[len(pieces)-1])
			continue
		}
		if i == 0 {
			current.WriteString(line)
			size = n
			continue
		}
		if size+1+n > limit {
			flush()
			current.WriteString(line)
			size = n
			continue
		}
		current.WriteString(ChunkSeparator)
		current.WriteString(line)
		size += 1 + n
	}
	flush()
	return fragments
}

// Oversized reports whether body contains a line that Chunk must cut.
func Oversized(body string, limit int) bool {
	if limit <= 0 {
		return false
	}
	for _, line := range strings.Split(body, ChunkSeparator) {
		if utf8.RuneCountInString(line) > limit {
			return true
		}
	}
	return false
}

func splitRunes(s string, limit int) []string {
	var out []string
	runes := []rune(s)
	for len(runes) > limit {
		out = append(out, string(runes[:limit]))
		runes = runes[limit:]
	}
	return append(out, string(runes))
}
