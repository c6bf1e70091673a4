// Package service wires extraction, chunking, enrichment, embedding, storage
// and generation into the two operations the application exposes: building
// an index from documents and answering questions against it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"docqa/internal/domain"
	"docqa/internal/enricher"
	"docqa/internal/extractor"
	"docqa/internal/generator"
	"docqa/internal/vectorstore"
)

// embedBatchSize bounds the number of chunk contents sent per embedding
// request.
const embedBatchSize = 64

// BuildStats summarizes one index build.
type BuildStats struct {
	Documents int
	Chunks    int
	Failed    int
}

// Service is the application core behind the CLI and the chat shell.
type Service struct {
	extractor domain.Extractor
	splitter  domain.Splitter
	enricher  *enricher.Enricher
	embedder  domain.Embedder
	store     vectorstore.Store
	generator *generator.Generator
	log       *slog.Logger
}

func New(ex domain.Extractor, sp domain.Splitter, en *enricher.Enricher, emb domain.Embedder, store vectorstore.Store, gen *generator.Generator) *Service {
	return &Service{
		extractor: ex,
		splitter:  sp,
		enricher:  en,
		embedder:  emb,
		store:     store,
		generator: gen,
		log:       slog.Default(),
	}
}

// BuildIndex extracts, chunks, enriches and embeds the given documents, then
// atomically replaces the store's collection with the result. A document
// that fails extraction is skipped and the batch continues; an embedding
// failure aborts the whole build with no partial persisted state.
func (s *Service) BuildIndex(ctx context.Context, paths []string) (BuildStats, error) {
	var stats BuildStats
	var allChunks []domain.Chunk
	var docErrs []error

	for _, path := range paths {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		doc, err := s.extractor.Extract(path)
		if err != nil {
			s.log.Warn("skipping document", "path", path, "error", err)
			docErrs = append(docErrs, err)
			stats.Failed++
			continue
		}
		windows := s.splitter.Split(doc)
		chunks, err := s.enricher.Enrich(ctx, doc, extractor.FullText(doc), windows)
		if err != nil {
			return stats, err
		}
		allChunks = append(allChunks, chunks...)
		stats.Documents++
	}

	if len(allChunks) == 0 {
		if len(docErrs) > 0 {
			return stats, errors.Join(docErrs...)
		}
		return stats, fmt.Errorf("%w: no chunks produced from %d document(s)", domain.ErrExtraction, len(paths))
	}

	vectors, err := s.embedChunks(ctx, allChunks)
	if err != nil {
		return stats, err
	}
	if err := s.store.Rebuild(ctx, allChunks, vectors); err != nil {
		return stats, err
	}
	stats.Chunks = len(allChunks)
	return stats, nil
}

func (s *Service) embedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float64, error) {
	vectors := make([][]float64, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}
		batch, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// Ask answers one question in the given mode. Failures are scoped to this
// turn and leave the index and any session history untouched.
func (s *Service) Ask(ctx context.Context, question string, mode domain.Mode) (domain.Answer, error) {
	return s.generator.Ask(ctx, question, mode)
}

// Count reports the number of indexed chunks.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}
