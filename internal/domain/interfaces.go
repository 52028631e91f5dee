package domain

import (
	"context"
	"time"
)

// Document represents a single uploaded file after text extraction.
type Document struct {
	ID      string
	Path    string
	Content string
}

// Chunk is a semantically meaningful part of a document used for indexing.
type Chunk struct {
	DocumentID string `json:"document_id"`
	ChunkID    string `json:"chunk_id"`
	Source     string `json:"source"`
	Text       string `json:"text"`
	Index      int    `json:"index"`
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// IngestReport describes one rebuild of the persisted index.
type IngestReport struct {
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Summary   string        `json:"summary"`
	Duration  time.Duration `json:"duration"`
}

// Answer is the result of a retrieval-augmented query.
type Answer struct {
	Response string         `json:"response"`
	Sources  []SearchResult `json:"sources,omitempty"`
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// StatefulEmbedder is an Embedder whose preparation must be persisted next to
// the index so that queries embed into the same space.
type StatefulEmbedder interface {
	Embedder
	State() ([]byte, error)
	Restore(state []byte) error
}

// BatchEmbedder is implemented by embedders that can embed many texts per call.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// VectorStore persists vectors and supports similarity search.
type VectorStore interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error)
	Clear(ctx context.Context) error
}

// ChunkLister is implemented by stores that can enumerate every indexed chunk.
type ChunkLister interface {
	Chunks(ctx context.Context) ([]Chunk, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// LLM is a hosted language model that completes a single prompt.
type LLM interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// RAGService defines the operations exposed by the application core.
type RAGService interface {
	Ingest(ctx context.Context) (IngestReport, error)
	Query(ctx context.Context, question string) (Answer, error)
}
