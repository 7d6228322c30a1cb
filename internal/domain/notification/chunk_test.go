package notification

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkRoundTrip(t *testing.T) {
	bodies := map[string]string{
		"single line":       "hello",
		"fits":              "a\nb\nc",
		"many short lines":  strings.Repeat("歩数: 8,000 歩\n", 300),
		"trailing newline":  strings.Repeat("line\n", 50),
		"blank lines":       "a\n\n\n" + strings.Repeat("b", 19) + "\n\nc",
		"exactly at limit":  strings.Repeat("z", 20),
		"line at the limit": strings.Repeat("q", 20) + "\n" + strings.Repeat("r", 20),
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			fragments := Chunk(body, 20)
			require.NotEmpty(t, fragments)

			assert.Equal(t, body, strings.Join(fragments, ChunkSeparator))
			bodyLines := map[string]bool{}
			for _, l := range strings.Split(body, ChunkSeparator) {
				bodyLines[l] = true
			}
			for _, f := range fragments {
				assert.LessOrEqual(t, utf8.RuneCountInString(f), 20)
				for _, l := range strings.Split(f, ChunkSeparator) {
					assert.True(t, bodyLines[l], "fragment line %q is not a whole body line", l)
				}
			}
		})
	}
}

func TestChunkKeepsSmallBodiesWhole(t *testing.T) {
	assert.Equal(t, []string{"short\nbody"}, Chunk("short\nbody", 2000))
	assert.Equal(t, []string{""}, Chunk("", 2000))
}

func TestChunkCutsOnlyOversizedLines(t *testing.T) {
	body := "ok\n" + strings.Repeat("x", 25) + "\nend"
	require.True(t, Oversized(body, 10))
	assert.False(t, Oversized("ok\nend", 10))

	fragments := Chunk(body, 10)
	assert.Equal(t, []string{"ok", "xxxxxxxxxx", "xxxxxxxxxx", "xxxxx\nend"}, fragments)
	for _, f := range fragments {
		assert.LessOrEqual(t, utf8.RuneCountInString(f), 10)
	}
}

func TestChunkCountsRunesNotBytes(t *testing.T) {
	body := strings.Repeat("あ", 10) + "\n" + strings.Repeat("い", 10)
	assert.Equal(t, []string{strings.Repeat("あ", 10), strings.Repeat("い", 10)}, Chunk(body, 15))
}
