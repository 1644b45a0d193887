package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmptyInput(t *testing.T) {
	c := New(50, 10)
	assert.Nil(t, c.Split(""))
}

func TestSplitShortInputSingleChunk(t *testing.T) {
	c := New(50, 10)
	chunks := c.Split("short text")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])
}

func TestSplitInputAtExactTarget(t *testing.T) {
	c := New(50, 10)
	text := strings.Repeat("a", 50)
	chunks := c.Split(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestSplitHardCutWithoutSeparators(t *testing.T) {
	c := New(50, 10)
	chunks := c.Split(strings.Repeat("a", 120))

	// 0..50, 40..90, 80..120
	require.Len(t, chunks, 3)
	assert.Equal(t, 50, len([]rune(chunks[0])))
	assert.Equal(t, 50, len([]rune(chunks[1])))
	assert.Equal(t, 40, len([]rune(chunks[2])))
}

func TestSplitPrefersParagraphBoundary(t *testing.T) {
	c := New(50, 10)
	text := strings.Repeat("a", 30) + "\n\n" + strings.Repeat("b", 40)
	chunks := c.Split(text)

	require.Len(t, chunks, 2)
	// The first fragment ends at the paragraph break, not at the hard target.
	assert.Equal(t, strings.Repeat("a", 30)+"\n\n", chunks[0])
	assert.True(t, strings.HasSuffix(chunks[1], strings.Repeat("b", 40)))
}

func TestSplitSentenceBoundaryFallback(t *testing.T) {
	c := New(40, 5)
	text := "First sentence here. Second sentence follows and keeps going on."
	chunks := c.Split(text)

	require.True(t, len(chunks) >= 2)
	assert.Equal(t, "First sentence here. ", chunks[0])
}

func TestSplitDeterministic(t *testing.T) {
	c := New(80, 15)
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20)

	first := c.Split(text)
	second := c.Split(text)
	assert.Equal(t, first, second)
}

func TestSplitOverlapRegionsMatch(t *testing.T) {
	c := New(60, 12)
	text := strings.Repeat("lorem ipsum dolor sit amet consectetur ", 15)
	chunks := c.Split(text)
	require.True(t, len(chunks) > 1)

	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		cur := []rune(chunks[i])
		require.True(t, len(prev) >= c.Overlap())
		require.True(t, len(cur) >= c.Overlap())
		assert.Equal(t, string(prev[len(prev)-c.Overlap():]), string(cur[:c.Overlap()]),
			"tail of chunk %d must equal head of chunk %d", i-1, i)
	}
}

func TestSplitReconstructsOriginal(t *testing.T) {
	c := New(70, 10)
	texts := []string{
		strings.Repeat("abcdefghij", 40),
		strings.Repeat("Вопрос и ответ. ", 30),
		strings.Repeat("один два три четыре пять ", 25),
	}

	for _, text := range texts {
		chunks := c.Split(text)
		require.NotEmpty(t, chunks)

		var b strings.Builder
		b.WriteString(chunks[0])
		for _, chunk := range chunks[1:] {
			runes := []rune(chunk)
			require.True(t, len(runes) > c.Overlap())
			b.WriteString(string(runes[c.Overlap():]))
		}
		assert.Equal(t, text, b.String())
	}
}

func TestSplitCountsRunesNotBytes(t *testing.T) {
	c := New(50, 10)
	// 120 Cyrillic runes, 240 bytes. Byte-based sizing would cut differently.
	chunks := c.Split(strings.Repeat("ж", 120))
	require.Len(t, chunks, 3)
	assert.Equal(t, 50, len([]rune(chunks[0])))
}

func TestNewClampsBadParameters(t *testing.T) {
	c := New(0, -1)
	assert.Equal(t, 500, c.TargetSize())
	assert.Equal(t, 0, c.Overlap())

	c = New(100, 100)
	assert.Equal(t, 20, c.Overlap())
}
