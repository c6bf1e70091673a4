// Package generator implements the three-variant answer pipeline: plain
// answer, answer with sources, and answer with verbatim citations. All
// variants share the retrieval step and diverge after it.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/retriever"
)

// Generator answers questions over retrieved context.
type Generator struct {
	llm       domain.TextGenerator
	retriever *retriever.Retriever
	log       *slog.Logger
}

func New(llm domain.TextGenerator, r *retriever.Retriever) *Generator {
	return &Generator{llm: llm, retriever: r, log: slog.Default()}
}

// Ask dispatches to the variant selected by mode.
func (g *Generator) Ask(ctx context.Context, question string, mode domain.Mode) (domain.Answer, error) {
	switch mode {
	case domain.ModeAnswer, "":
		return g.Answer(ctx, question)
	case domain.ModeSources:
		return g.AnswerWithSources(ctx, question)
	case domain.ModeCitations:
		return g.AnswerWithCitations(ctx, question)
	default:
		return domain.Answer{}, fmt.Errorf("unknown answer mode %q", mode)
	}
}

// Answer retrieves context and generates a plain answer, instructed to use
// only the retrieved context.
func (g *Generator) Answer(ctx context.Context, question string) (domain.Answer, error) {
	chunks, err := g.retriever.Retrieve(ctx, question)
	if err != nil {
		return domain.Answer{}, err
	}
	text, err := g.generate(ctx, question, formatChunks(chunks))
	if err != nil {
		return domain.Answer{}, err
	}
	return domain.Answer{Text: text}, nil
}

// AnswerWithSources is Answer plus the retrieved chunks, so the caller can
// display provenance without the generation step attributing claims itself.
func (g *Generator) AnswerWithSources(ctx context.Context, question string) (domain.Answer, error) {
	chunks, err := g.retriever.Retrieve(ctx, question)
	if err != nil {
		return domain.Answer{}, err
	}
	text, err := g.generate(ctx, question, formatChunks(chunks))
	if err != nil {
		return domain.Answer{}, err
	}
	return domain.Answer{Text: text, Sources: chunks}, nil
}

// AnswerWithCitations generates the answer over a metadata-rich context
// format, then runs a second, structured extraction pass that quotes the
// chunks justifying the answer. The extraction never alters the answer: if
// it fails schema validation the turn degrades to zero citations.
func (g *Generator) AnswerWithCitations(ctx context.Context, question string) (domain.Answer, error) {
	chunks, err := g.retriever.Retrieve(ctx, question)
	if err != nil {
		return domain.Answer{}, err
	}
	contextBlock := formatChunksWithMetadata(chunks)
	text, err := g.generate(ctx, question, contextBlock)
	if err != nil {
		return domain.Answer{}, err
	}

	citations, err := g.extractCitations(ctx, question, contextBlock, text, chunks)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidStructuredOutput) {
			return domain.Answer{}, err
		}
		g.log.Warn("citation extraction returned invalid structure, continuing without citations", "error", err)
		citations = nil
	}
	return domain.Answer{Text: text, Sources: chunks, Citations: citations}, nil
}

func (g *Generator) generate(ctx context.Context, question, contextBlock string) (string, error) {
	prompt := buildPrompt(answerPrompt,
		"{question}", question,
		"{context}", contextBlock,
	)
	text, err := g.llm.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (g *Generator) extractCitations(ctx context.Context, question, contextBlock, answer string, chunks []domain.Chunk) ([]domain.Citation, error) {
	prompt := buildPrompt(citationsPrompt,
		"{question}", question,
		"{context}", contextBlock,
		"{answer}", answer,
	)
	var out quotedCitations
	if err := g.llm.CompleteStructured(ctx, prompt, citationsSchemaName, citationsSchema, &out); err != nil {
		return nil, err
	}

	// Keep only citations whose ID matches a chunk actually present in the
	// context supplied to this call. Zero citations is a valid outcome.
	known := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		known[c.ID] = true
	}
	var citations []domain.Citation
	for _, c := range out.Citations {
		if !known[c.ID] {
			g.log.Warn("dropping citation with unknown chunk id", "id", c.ID)
			continue
		}
		citations = append(citations, c)
	}
	return citations, nil
}
