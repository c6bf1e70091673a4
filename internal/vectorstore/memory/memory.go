// Package memory provides a non-persistent vector store using brute-force
// cosine similarity. Useful for tests and throwaway sessions.
package memory

import (
	"context"
	"fmt"
	"sync"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

// Store keeps chunks and vectors in parallel slices, in insertion order.
type Store struct {
	mu        sync.RWMutex
	dimension int
	chunks    []domain.Chunk
	vectors   [][]float64
}

func NewStore() *Store { return &Store{} }

func (s *Store) Add(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks, %d vectors", domain.ErrDimensionMismatch, len(chunks), len(vectors))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkDimensions(vectors); err != nil {
		return err
	}
	s.chunks = append(s.chunks, chunks...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

func (s *Store) Rebuild(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks, %d vectors", domain.ErrDimensionMismatch, len(chunks), len(vectors))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dim := 0
	for i, v := range vectors {
		if i == 0 {
			dim = len(v)
		} else if len(v) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", domain.ErrDimensionMismatch, i, len(v), dim)
		}
	}
	s.dimension = dim
	s.chunks = append([]domain.Chunk(nil), chunks...)
	s.vectors = append([][]float64(nil), vectors...)
	return nil
}

func (s *Store) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.vectors) == 0 {
		return nil, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query dimension %d, collection dimension %d", domain.ErrDimensionMismatch, len(vector), s.dimension)
	}
	ranked := vectorstore.RankTopK(s.vectors, vector, topK)
	results := make([]domain.SearchResult, len(ranked))
	for i, r := range ranked {
		results[i] = domain.SearchResult{Chunk: s.chunks[r.Index], Score: r.Score}
	}
	return results, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *Store) Close() error { return nil }

// checkDimensions validates vectors against the collection dimension,
// adopting the first vector's dimension for an empty collection.
func (s *Store) checkDimensions(vectors [][]float64) error {
	for _, v := range vectors {
		if s.dimension == 0 {
			s.dimension = len(v)
			continue
		}
		if len(v) != s.dimension {
			return fmt.Errorf("%w: got %d, collection holds %d", domain.ErrDimensionMismatch, len(v), s.dimension)
		}
	}
	return nil
}
