package vectorstore

import (
	"context"
	"errors"

	"docqa/internal/domain"
)

// Storage persists vectors and supports similarity search.
type Storage = domain.VectorStore

// Replacer is implemented by stores that can swap their whole contents
// atomically, so a failed rebuild leaves the previous index searchable.
type Replacer interface {
	Replace(ctx context.Context, dimension int, chunks []domain.Chunk, vectors [][]float32) error
}

// Errors shared by the store implementations.
var (
	ErrDimension   = errors.New("vector dimension mismatch")
	ErrLength      = errors.New("chunks and vectors length mismatch")
	ErrNotInit     = errors.New("vector store not initialized")
	ErrIndexAbsent = errors.New("persisted index not found")
)
