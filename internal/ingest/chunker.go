package ingest

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 200
)

// separators are tried in order: paragraph, line, sentence, word, character.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits text into overlapping chunks of at most Size characters,
// preferring the coarsest boundary that keeps pieces within Size.
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker returns a Chunker, substituting defaults for non-positive size
// and clamping overlap below size.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{Size: size, Overlap: overlap}
}

// Split returns the chunks of text in document order. Blank input yields nil.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return c.split(text, separators)
}

func (c *Chunker) split(text string, seps []string) []string {
	sep, rest := "", []string(nil)
	for i, s := range seps {
		if s == "" || strings.Contains(text, s) {
			sep, rest = s, seps[i+1:]
			break
		}
	}
	if sep == "" {
		return c.hardSplit(text)
	}

	var out, fitting []string
	for _, piece := range strings.Split(text, sep) {
		if runeLen(piece) <= c.Size {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			out = append(out, c.merge(fitting, sep)...)
			fitting = nil
		}
		out = append(out, c.split(piece, rest)...)
	}
	if len(fitting) > 0 {
		out = append(out, c.merge(fitting, sep)...)
	}
	return out
}

// merge packs pieces joined by sep into chunks no longer than Size, carrying
// up to Overlap characters of trailing pieces into the next chunk.
func (c *Chunker) merge(pieces []string, sep string) []string {
	sepLen := runeLen(sep)
	joined := func(n int) int {
		if n > 0 {
			return sepLen
		}
		return 0
	}

	var out, window []string
	total := 0
	for _, p := range pieces {
		pl := runeLen(p)
		if len(window) > 0 && total+pl+joined(len(window)) > c.Size {
			if chunk := strings.TrimSpace(strings.Join(window, sep)); chunk != "" {
				out = append(out, chunk)
			}
			for len(window) > 0 && (total > c.Overlap || total+pl+joined(len(window)) > c.Size) {
				total -= runeLen(window[0]) + joined(len(window)-1)
				window = window[1:]
			}
		}
		total += pl + joined(len(window))
		window = append(window, p)
	}
	if chunk := strings.TrimSpace(strings.Join(window, sep)); chunk != "" {
		out = append(out, chunk)
	}
	return out
}

// hardSplit cuts text into Size-rune windows advancing by Size-Overlap.
func (c *Chunker) hardSplit(text string) []string {
	runes := []rune(text)
	step := c.Size - c.Overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := min(start+c.Size, len(runes))
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
