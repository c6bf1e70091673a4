package generator

import (
	"fmt"
	"strings"

	"docqa/internal/domain"
)

// answerPrompt constrains the model to the retrieved context and tells it to
// admit when the answer is absent.
const answerPrompt = `You are an assistant who is an expert in question-answering tasks.
Answer the following question using only the retrieved context.
If the answer is not in the context, say that you don't know.
Keep the answer detailed and well formatted.

Question:
{question}

Context:
{context}

Answer:
`

// citationsPrompt drives the second, extraction-only pass. It receives the
// answer already produced and must not change it.
const citationsPrompt = `You are an assistant who is an expert in analyzing answers to questions
and finding referenced citations from context articles.

Given the question, the context articles, and the generated answer,
analyze the answer and quote citations from the context articles
that justify the answer.

Question:
{question}

Context Articles:
{context}

Answer:
{answer}
`

// buildPrompt fills the template's placeholders in a single pass over the
// template, so placeholder-like text inside the substituted values stays
// literal.
func buildPrompt(template string, pairs ...string) string {
	return strings.NewReplacer(pairs...).Replace(template)
}

// formatChunks joins chunk contents for the plain context format,
// order-preserving, double-newline separated.
func formatChunks(chunks []domain.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, "\n\n")
}

// formatChunksWithMetadata renders each chunk with its identity inline so
// the model can reference chunks by ID in citations.
func formatChunksWithMetadata(chunks []domain.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = fmt.Sprintf(`Context Article ID: %s
Context Article Source: %s
Context Article Title: %s
Context Article Page: %d

Content:
%s
`, c.ID, c.Source, c.Title, c.Page, c.Content)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// quotedCitations is the structured-output shape of the citation pass.
type quotedCitations struct {
	Citations []domain.Citation `json:"citations"`
}

const citationsSchemaName = "quoted_citations"

// citationsSchema is the JSON schema the citation extraction call is
// constrained to. Every citation must name a context article ID and carry a
// verbatim quote supporting the answer.
var citationsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"citations": map[string]any{
			"type":        "array",
			"description": "Citations from the context articles that justify the answer.",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "The string ID of a specific context article which justifies the answer.",
					},
					"source": map[string]any{
						"type":        "string",
						"description": "The source/path of the specific context article which justifies the answer.",
					},
					"title": map[string]any{
						"type":        "string",
						"description": "The title of the specific context article which justifies the answer.",
					},
					"page": map[string]any{
						"type":        "integer",
						"description": "The page number of the specific context article which justifies the answer.",
					},
					"quotes": map[string]any{
						"type":        "string",
						"description": "The verbatim sentences from the context article that are used to generate the answer.",
					},
				},
				"required":             []string{"id", "source", "title", "page", "quotes"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"citations"},
	"additionalProperties": false,
}
