package indexer

import (
	"fmt"
	"strings"
)

// Chunking defaults, in characters
const (
	DefaultChunkSize    = 2000
	DefaultChunkOverlap = 200
)

// ChunkerConfig controls how file content is sliced for embedding
type ChunkerConfig struct {
	// Size is the chunk length in characters
	Size int

	// Overlap is how many characters consecutive chunks share, so a
	// statement split across a boundary is still whole in one chunk
	Overlap int
}

// Validate checks the configuration for usable values
func (c ChunkerConfig) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("chunk overlap must not be negative, got %d", c.Overlap)
	}
	if c.Overlap >= c.Size {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", c.Overlap, c.Size)
	}
	return nil
}

// Chunk is one slice of a file with its position recorded for citations
type Chunk struct {
	Text      string
	StartLine int
}

// Chunker splits file content into fixed-size overlapping chunks
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker, applying defaults for zero values
func NewChunker(cfg ChunkerConfig) (*Chunker, error) {
	if cfg.Size == 0 {
		cfg.Size = DefaultChunkSize
	}
	if cfg.Overlap == 0 && cfg.Size > DefaultChunkOverlap {
		cfg.Overlap = DefaultChunkOverlap
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{size: cfg.Size, overlap: cfg.Overlap}, nil
}

// Split slices text into chunks. Whitespace-only chunks are dropped; a
// file shorter than one chunk yields a single chunk.
func (c *Chunker) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	step := c.size - c.overlap
	var chunks []Chunk
	for start := 0; start < len(text); start += step {
		end := start + c.size
		if end > len(text) {
			end = len(text)
		}

		piece := text[start:end]
		if strings.TrimSpace(piece) != "" {
			chunks = append(chunks, Chunk{
				Text:      piece,
				StartLine: 1 + strings.Count(text[:start], "\n"),
			})
		}

		if end == len(text) {
			break
		}
	}
	return chunks
}
