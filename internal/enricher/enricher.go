// Package enricher turns document windows into contextual chunks by
// prepending a short LLM-synthesized blurb describing where each window sits
// in the whole document.
package enricher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"docqa/internal/domain"
)

// ContextFunc synthesizes a short context string for a window given the full
// document text. It must behave as a pure function of its inputs: repeated
// calls may return different wording but equivalent meaning, so retries are
// safe and windows can be processed in any order.
type ContextFunc func(ctx context.Context, document, window string) (string, error)

// contextPrompt asks for a 2-3 sentence placement blurb for one window.
const contextPrompt = `You are an AI assistant specializing in research/document analysis.
Your task is to provide brief, relevant context for a chunk of text
based on the full document.

Here is the full document:
<paper>
%s
</paper>

Here is the chunk:
<chunk>
%s
</chunk>

In 2-3 sentences, explain:
- Where this chunk fits conceptually in the document (e.g., intro, methods, results, summary)
- The main topic or idea of this chunk
- How it relates to the overall document

Keep it concise, helpful, and neutral in tone.

Context:
`

// contextSeparator joins the synthesized blurb and the raw window text.
const contextSeparator = "\n\n"

// Generate builds a ContextFunc backed by a text generator.
func Generate(llm domain.TextGenerator) ContextFunc {
	return func(ctx context.Context, document, window string) (string, error) {
		out, err := llm.Complete(ctx, promptFor(document, window))
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(out), nil
	}
}

func promptFor(document, window string) string {
	return fmt.Sprintf(contextPrompt, document, window)
}

// Enricher produces chunks from windows, generating context for each window
// through a bounded worker pool.
type Enricher struct {
	generate   ContextFunc
	workers    int
	maxRetries int
	log        *slog.Logger
}

func New(generate ContextFunc, workers, maxRetries int) *Enricher {
	if workers <= 0 {
		workers = 4
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Enricher{
		generate:   generate,
		workers:    workers,
		maxRetries: maxRetries,
		log:        slog.Default(),
	}
}

// Enrich returns one chunk per window, in window order regardless of
// completion order. Every chunk gets a fresh ID and carries the metadata of
// its originating window. A window whose context generation fails after
// retries is still indexed with its raw text only: availability over
// completeness. Only cancellation aborts the whole pass.
func (e *Enricher) Enrich(ctx context.Context, doc domain.Document, fullText string, windows []domain.Window) ([]domain.Chunk, error) {
	chunks := make([]domain.Chunk, len(windows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, w := range windows {
		i, w := i, w
		g.Go(func() error {
			blurb, err := e.generateWithRetry(gctx, fullText, w.Text)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.log.Warn("context generation failed, indexing raw window",
					"source", doc.Source, "page", w.Page, "error", err)
				blurb = ""
			}
			content := w.Text
			if blurb != "" {
				content = blurb + contextSeparator + w.Text
			}
			chunks[i] = domain.Chunk{
				ID:      uuid.New().String(),
				Content: content,
				Source:  doc.Source,
				Title:   doc.Title,
				Page:    w.Page,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}

func (e *Enricher) generateWithRetry(ctx context.Context, document, window string) (string, error) {
	var err error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var blurb string
		blurb, err = e.generate(ctx, document, window)
		if err == nil {
			return blurb, nil
		}
	}
	return "", err
}
