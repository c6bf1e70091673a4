// Package vectorstore defines the persisted collection contract shared by
// the in-memory and sqlite stores.
package vectorstore

import (
	"context"
	"math"
	"sort"

	"docqa/internal/domain"
)

// Store holds embedded chunks and answers nearest-neighbour queries by
// cosine similarity. The distance metric is fixed for the lifetime of a
// collection; changing it requires a full rebuild.
type Store interface {
	// Add appends entries to the collection. Every vector must match the
	// collection's dimensionality; a mismatch fails loudly rather than
	// corrupting similarity results.
	Add(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error

	// Rebuild atomically replaces the whole collection. A failed rebuild
	// leaves the previous contents intact.
	Rebuild(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error

	// Search returns at most topK results, highest similarity first, ties
	// broken by insertion order. An empty collection yields an empty result.
	Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error)

	// Count reports the number of entries in the collection.
	Count(ctx context.Context) (int, error)

	Close() error
}

// Ranked is one scored entry of a similarity ranking, identified by its
// insertion index.
type Ranked struct {
	Index int
	Score float64
}

// Cosine returns the cosine similarity of two equal-length vectors. A zero
// vector has similarity 0 with everything.
func Cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// RankTopK scores every stored vector against the query and returns the top
// K entries, score-descending. The stable sort keeps insertion order for
// equal scores so results are deterministic across backends.
func RankTopK(vectors [][]float64, query []float64, topK int) []Ranked {
	if topK <= 0 || len(vectors) == 0 {
		return nil
	}
	ranked := make([]Ranked, len(vectors))
	for i, v := range vectors {
		ranked[i] = Ranked{Index: i, Score: Cosine(v, query)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if topK > len(ranked) {
		topK = len(ranked)
	}
	return ranked[:topK]
}
