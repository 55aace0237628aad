package ingest

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_ShortTextSingleChunk(t *testing.T) {
	c := NewChunker(100, 20)
	chunks := c.Split("  Murabaha is a sale at cost plus an agreed profit.  ")
	assert.Equal(t, []string{"Murabaha is a sale at cost plus an agreed profit."}, chunks)
}

func TestChunker_Blank(t *testing.T) {
	assert.Nil(t, NewChunker(100, 20).Split(" \n\n "))
}

func TestChunker_PrefersParagraphs(t *testing.T) {
	p1 := strings.Repeat("a", 40)
	p2 := strings.Repeat("b", 40)
	p3 := strings.Repeat("c", 40)
	c := NewChunker(90, 0)

	chunks := c.Split(p1 + "\n\n" + p2 + "\n\n" + p3)
	require.Len(t, chunks, 2)
	assert.Equal(t, p1+"\n\n"+p2, chunks[0])
	assert.Equal(t, p3, chunks[1])
}

func TestChunker_RespectsSizeAndOverlaps(t *testing.T) {
	words := make([]string, 300)
	for i := range words {
		words[i] = "ijarah"
	}
	text := strings.Join(words, " ")
	c := NewChunker(100, 30)

	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 100)
	}
	// Consecutive chunks share trailing words.
	assert.True(t, strings.HasPrefix(chunks[1], "ijarah"))
	total := 0
	for _, ch := range chunks {
		total += utf8.RuneCountInString(ch)
	}
	assert.Greater(t, total, utf8.RuneCountInString(text))
}

func TestChunker_HardSplitsUnbrokenText(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := NewChunker(100, 20).Split(text)

	require.Len(t, chunks, 3)
	assert.Equal(t, strings.Repeat("x", 100), chunks[0])
	assert.Equal(t, strings.Repeat("x", 90), chunks[2])
}

func TestChunker_CountsRunes(t *testing.T) {
	text := strings.Repeat("ربا ", 60)
	for _, ch := range NewChunker(50, 10).Split(text) {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 50)
	}
}

func TestNewChunker_Defaults(t *testing.T) {
	c := NewChunker(0, -1)
	assert.Equal(t, DefaultChunkSize, c.Size)
	assert.Equal(t, 0, c.Overlap)

	c = NewChunker(100, 100)
	assert.Equal(t, 50, c.Overlap)
}
