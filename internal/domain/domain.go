package domain

import "context"

// Page is one page of extracted document text, in source order.
type Page struct {
	Number int
	Text   string
}

// Document is a source document after extraction, before chunking.
type Document struct {
	Source string
	Title  string
	Pages  []Page
}

// Window is a transient slice of raw page text produced by the splitter.
// It is consumed by the enricher and discarded once a Chunk exists.
type Window struct {
	Text string
	Page int
}

// Chunk is a persisted, uniquely identified unit of enriched document text.
// Content holds the synthesized context blurb followed by the raw window
// text. Chunks are never mutated after creation.
type Chunk struct {
	ID      string
	Content string
	Source  string
	Title   string
	Page    int
}

// SearchResult is a chunk ranked by similarity to a query.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Citation ties part of a generated answer back to a specific chunk and a
// verbatim quote. Citations are per-query and never persisted.
type Citation struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Title  string `json:"title"`
	Page   int    `json:"page"`
	Quotes string `json:"quotes"`
}

// Mode selects the answer pipeline variant.
type Mode string

const (
	ModeAnswer    Mode = "answer"
	ModeSources   Mode = "sources"
	ModeCitations Mode = "citations"
)

// Answer is the output of one question-answering turn. Sources is populated
// in sources and citations modes; Citations only in citations mode.
type Answer struct {
	Text      string
	Sources   []Chunk
	Citations []Citation
}

// Extractor turns a source file into ordered pages of text.
type Extractor interface {
	Extract(path string) (Document, error)
}

// Splitter cuts a document into ordered, overlapping windows.
type Splitter interface {
	Split(doc Document) []Window
}

// Embedder converts free text into a fixed-length vector representation.
// The same embedder identity must be used for building and querying a
// collection.
type Embedder interface {
	Model() string
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// TextGenerator is the chat-completion boundary used by the enricher and
// the answer pipeline. CompleteStructured unmarshals a schema-constrained
// response into out; schema violations surface as ErrInvalidStructuredOutput.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteStructured(ctx context.Context, prompt, schemaName string, schema map[string]any, out any) error
}
