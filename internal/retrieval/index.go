// Package retrieval narrows the knowledge index to a caller's identity and
// ranks the remaining passages against a query vector.
package retrieval

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tjfontaine/hmo-assistant/internal/domain"
)

// Meta describes how an index was built.
type Meta struct {
	BuildID        string
	EmbeddingModel string
	BuiltAt        time.Time
}

// Index is an immutable, position-aligned collection of chunks and vectors.
type Index struct {
	chunks  []domain.KnowledgeChunk
	vectors [][]float32
	dim     int
	meta    Meta
}

// NewIndex validates alignment and builds an index. The slices are owned by
// the index afterwards.
func NewIndex(chunks []domain.KnowledgeChunk, vectors [][]float32, meta Meta) (*Index, error) {
	if len(chunks) != len(vectors) {
		return nil, domain.ErrRetrievalUnavailable(
			fmt.Sprintf("index has %d chunks but %d vectors", len(chunks), len(vectors)), nil)
	}
	if len(vectors) == 0 {
		return nil, domain.ErrRetrievalUnavailable("index is empty", nil)
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, domain.ErrRetrievalUnavailable("index vectors have zero dimension", nil)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, domain.ErrRetrievalUnavailable(
				fmt.Sprintf("vector %d has dimension %d, want %d", i, len(v), dim), nil)
		}
	}
	return &Index{chunks: chunks, vectors: vectors, dim: dim, meta: meta}, nil
}

// Len returns the number of chunks.
func (ix *Index) Len() int { return len(ix.chunks) }

// Dimension returns the vector dimension.
func (ix *Index) Dimension() int { return ix.dim }

// Meta returns build metadata.
func (ix *Index) Meta() Meta { return ix.meta }

// Chunk returns the chunk at position i.
func (ix *Index) Chunk(i int) domain.KnowledgeChunk { return ix.chunks[i] }

// Chunks returns the chunks in collection order. Callers must not modify it.
func (ix *Index) Chunks() []domain.KnowledgeChunk { return ix.chunks }

// Store publishes the live index to concurrent readers.
type Store struct {
	current atomic.Pointer[Index]
}

// NewStore returns a store with no index loaded.
func NewStore() *Store {
	return &Store{}
}

// Load returns the current snapshot, or RetrievalUnavailable when nothing has
// been loaded yet.
func (s *Store) Load() (*Index, error) {
	ix := s.current.Load()
	if ix == nil {
		return nil, domain.ErrRetrievalUnavailable("knowledge index is not loaded", nil)
	}
	return ix, nil
}

// Swap installs a new index and returns the previous one.
func (s *Store) Swap(ix *Index) *Index {
	return s.current.Swap(ix)
}

// Ready reports whether an index is loaded.
func (s *Store) Ready() bool {
	return s.current.Load() != nil
}
