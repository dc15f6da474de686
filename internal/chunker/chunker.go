// Package chunker splits raw document text into overlapping, bounded-size
// passages along sentence boundaries. Pure: same input, same output.
package chunker

import (
	"errors"
	"strings"

	"github.com/jdkato/prose/v2"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
	DefaultMinChunkSize = 50
)

// ErrNoChunks means the input produced no passage above the minimum length
// floor. Callers must treat this as a failure: ingestion may never mark a
// source ready with zero indexed content.
var ErrNoChunks = errors.New("no chunks produced from input text")

type Chunker struct {
	chunkSize    int
	chunkOverlap int
	minChunkSize int
}

func New(chunkSize, chunkOverlap, minChunkSize int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	if minChunkSize <= 0 {
		minChunkSize = DefaultMinChunkSize
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		minChunkSize: minChunkSize,
	}
}

// Chunk accumulates sentences into passages of at most chunkSize characters
// (a single oversized sentence still becomes its own passage), seeding each
// new passage with the trailing overlap of the previous one so adjacent
// chunks share context. Passages below the minimum floor are dropped as
// noise.
func (c *Chunker) Chunk(text string) ([]string, error) {
	sentences, err := splitSentences(text)
	if err != nil {
		return nil, err
	}

	var chunks []string
	var current strings.Builder

	for _, sentence := range sentences {
		trimmed := strings.TrimSpace(sentence)
		if trimmed == "" {
			continue
		}

		if current.Len() > 0 && current.Len()+len(trimmed)+1 > c.chunkSize {
			chunk := strings.TrimSpace(current.String())
			chunks = append(chunks, chunk)

			current.Reset()
			if overlap := trailingOverlap(chunk, c.chunkOverlap); overlap != "" {
				current.WriteString(overlap)
				current.WriteString(" ")
			}
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(trimmed)
	}

	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}

	filtered := chunks[:0]
	for _, chunk := range chunks {
		if len(chunk) >= c.minChunkSize {
			filtered = append(filtered, chunk)
		}
	}

	if len(filtered) == 0 {
		return nil, ErrNoChunks
	}

	return filtered, nil
}

func splitSentences(text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoChunks
	}

	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil, err
	}

	sentences := doc.Sentences()
	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		out = append(out, s.Text)
	}
	return out, nil
}

// trailingOverlap returns the last whole words of chunk totaling at most
// maxChars characters.
func trailingOverlap(chunk string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}

	words := strings.Fields(chunk)
	total := 0
	start := len(words)

	for i := len(words) - 1; i >= 0; i-- {
		next := total + len(words[i])
		if total > 0 {
			next++
		}
		if next > maxChars {
			break
		}
		total = next
		start = i
	}

	if start == len(words) {
		return ""
	}
	return strings.Join(words[start:], " ")
}
