package chunker

import (
	"strings"
	"unicode/utf8"
)

type Chunker interface {
	Chunk(text string, opts Options) []TextChunk
}

type Options struct {
	Size     int    // target chunk size in characters
	Overlap  int    // characters shared with the previous chunk
	Strategy string // "window" or "sentence"
}

type TextChunk struct {
	Content string
	Index   int
	Start   int // rune offset
	End     int
}

func DefaultOptions() Options {
	return Options{
		Size:     1000,
		Overlap:  200,
		Strategy: "window",
	}
}

type chunkerImpl struct{}

func New() Chunker {
	return &chunkerImpl{}
}

func (c *chunkerImpl) Chunk(text string, opts Options) []TextChunk {
	if opts.Size <= 0 {
		opts.Size = 1000
	}
	// Overlap must stay strictly below Size or the window never advances.
	if opts.Overlap < 0 || opts.Overlap >= opts.Size {
		opts.Overlap = 0
	}

	switch opts.Strategy {
	case "sentence":
		return chunkBySentence(text, opts)
	default:
		return chunkWindow(text, opts)
	}
}

// chunkWindow slides a fixed window over the text. Window i starts at the
// previous window's end minus Overlap, so consecutive chunks share exactly
// Overlap runes and concatenating the non-overlapping suffixes reconstructs
// the input. The final partial window is emitted once even when shorter
// than Size.
func chunkWindow(text string, opts Options) []TextChunk {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	var chunks []TextChunk
	idx := 0

	start := 0
	for start < len(runes) {
		end := start + opts.Size
		if end > len(runes) {
			end = len(runes)
		}

		chunks = append(chunks, TextChunk{
			Content: string(runes[start:end]),
			Index:   idx,
			Start:   start,
			End:     end,
		})
		idx++

		if end == len(runes) {
			break
		}

		next := end - opts.Overlap
		if next <= start {
			// No forward progress; bail out rather than loop forever.
			break
		}
		start = next
	}

	return chunks
}

func chunkBySentence(text string, opts Options) []TextChunk {
	sentences := splitSentences(text)

	var chunks []TextChunk
	var current strings.Builder
	idx := 0

	for _, s := range sentences {
		if current.Len() > 0 && utf8.RuneCountInString(current.String()+s) > opts.Size {
			chunks = append(chunks, TextChunk{
				Content: strings.TrimSpace(current.String()),
				Index:   idx,
			})
			idx++
			current.Reset()
		}
		current.WriteString(s)
	}

	if current.Len() > 0 {
		chunks = append(chunks, TextChunk{
			Content: strings.TrimSpace(current.String()),
			Index:   idx,
		})
	}

	return chunks
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			sentences = append(sentences, current.String())
			current.Reset()
		}
	}

	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}

	return sentences
}
