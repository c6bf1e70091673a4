// Package retriever is a thin similarity-search façade over a vector store.
// It decouples the answer pipeline from the store's query signature.
package retriever

import (
	"context"
	"fmt"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

// DefaultTopK is the default number of chunks returned per query.
const DefaultTopK = 5

// Retriever embeds a query and returns the most similar chunks.
type Retriever struct {
	embedder domain.Embedder
	store    vectorstore.Store
	topK     int
}

// New creates a retriever with the given default top-K. topK below 1 falls
// back to DefaultTopK.
func New(embedder domain.Embedder, store vectorstore.Store, topK int) *Retriever {
	if topK < 1 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, store: store, topK: topK}
}

// Retrieve returns up to the configured top-K chunks most similar to the
// query, best first, scores stripped. An empty index yields an empty result.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.Chunk, error) {
	return r.RetrieveK(ctx, query, r.topK)
}

// RetrieveK is Retrieve with an explicit result count.
func (r *Retriever) RetrieveK(ctx context.Context, query string, k int) ([]domain.Chunk, error) {
	if k < 1 {
		return nil, fmt.Errorf("top-k must be at least 1, got %d", k)
	}
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := r.store.Search(ctx, vector, k)
	if err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, len(results))
	for i, res := range results {
		chunks[i] = res.Chunk
	}
	return chunks, nil
}
