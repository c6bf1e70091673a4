package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
	"docqa/internal/retriever"
	"docqa/internal/vectorstore/memory"
)

// fakeEmbedder maps whole texts to fixed vectors so retrieval is
// deterministic in tests.
type fakeEmbedder struct {
	vectors map[string][]float64
}

func (f *fakeEmbedder) Model() string { return "fake" }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float64{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// fakeLLM scripts the completion and structured-completion responses.
type fakeLLM struct {
	completion    string
	completionErr error
	structured    string
	structuredErr error
	prompts       []string
	structPrompts []string
	structSchemas []string
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.completion, f.completionErr
}

func (f *fakeLLM) CompleteStructured(ctx context.Context, prompt, schemaName string, schema map[string]any, out any) error {
	f.structPrompts = append(f.structPrompts, prompt)
	f.structSchemas = append(f.structSchemas, schemaName)
	if f.structuredErr != nil {
		return f.structuredErr
	}
	if err := json.Unmarshal([]byte(f.structured), out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidStructuredOutput, err)
	}
	return nil
}

func testSetup(t *testing.T, llm *fakeLLM) (*Generator, []domain.Chunk) {
	t.Helper()
	chunks := []domain.Chunk{
		{ID: "id-1", Content: "blurb one\n\nraw one", Source: "docs/a.pdf", Title: "a.pdf", Page: 1},
		{ID: "id-2", Content: "blurb two\n\nraw two", Source: "docs/a.pdf", Title: "a.pdf", Page: 2},
	}
	store := memory.NewStore()
	require.NoError(t, store.Add(context.Background(), chunks,
		[][]float64{{1, 0, 0}, {0, 1, 0}}))
	emb := &fakeEmbedder{vectors: map[string][]float64{}}
	r := retriever.New(emb, store, 2)
	return New(llm, r), chunks
}

func TestAnswerMode(t *testing.T) {
	llm := &fakeLLM{completion: " The answer. "}
	g, _ := testSetup(t, llm)

	ans, err := g.Ask(context.Background(), "what?", domain.ModeAnswer)
	require.NoError(t, err)

	assert.Equal(t, "The answer.", ans.Text)
	assert.Empty(t, ans.Sources, "plain mode carries no sources")
	assert.Empty(t, ans.Citations)

	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "what?")
	assert.Contains(t, llm.prompts[0], "blurb one\n\nraw one\n\nblurb two\n\nraw two",
		"plain context is chunk contents joined with blank lines, in retrieval order")
	assert.Contains(t, llm.prompts[0], "say that you don't know")
}

func TestSourcesMode(t *testing.T) {
	llm := &fakeLLM{completion: "answer"}
	g, chunks := testSetup(t, llm)

	ans, err := g.Ask(context.Background(), "what?", domain.ModeSources)
	require.NoError(t, err)

	assert.Equal(t, "answer", ans.Text)
	assert.Equal(t, chunks, ans.Sources)
	assert.Empty(t, ans.Citations)
}

func TestCitationsMode(t *testing.T) {
	llm := &fakeLLM{
		completion: "answer",
		structured: `{"citations":[{"id":"id-1","source":"docs/a.pdf","title":"a.pdf","page":1,"quotes":"raw one"}]}`,
	}
	g, chunks := testSetup(t, llm)

	ans, err := g.Ask(context.Background(), "what?", domain.ModeCitations)
	require.NoError(t, err)

	assert.Equal(t, "answer", ans.Text)
	assert.Equal(t, chunks, ans.Sources)
	require.Len(t, ans.Citations, 1)
	assert.Equal(t, "id-1", ans.Citations[0].ID)
	assert.Equal(t, "raw one", ans.Citations[0].Quotes)

	// Generation prompt uses the metadata-rich context format.
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "Context Article ID: id-1")
	assert.Contains(t, llm.prompts[0], "Context Article Page: 2")

	// The extraction pass sees the same context plus the produced answer.
	require.Len(t, llm.structPrompts, 1)
	assert.Contains(t, llm.structPrompts[0], "Context Article ID: id-1")
	assert.Contains(t, llm.structPrompts[0], "answer")
	assert.Equal(t, []string{"quoted_citations"}, llm.structSchemas)
}

func TestCitationsWithUnknownIDAreDropped(t *testing.T) {
	llm := &fakeLLM{
		completion: "answer",
		structured: `{"citations":[
			{"id":"id-2","source":"docs/a.pdf","title":"a.pdf","page":2,"quotes":"raw two"},
			{"id":"bogus","source":"x","title":"x","page":0,"quotes":"made up"}
		]}`,
	}
	g, _ := testSetup(t, llm)

	ans, err := g.Ask(context.Background(), "what?", domain.ModeCitations)
	require.NoError(t, err)
	require.Len(t, ans.Citations, 1)
	assert.Equal(t, "id-2", ans.Citations[0].ID)
}

func TestCitationsZeroIsValid(t *testing.T) {
	llm := &fakeLLM{completion: "answer", structured: `{"citations":[]}`}
	g, _ := testSetup(t, llm)

	ans, err := g.Ask(context.Background(), "what?", domain.ModeCitations)
	require.NoError(t, err)
	assert.Equal(t, "answer", ans.Text)
	assert.Empty(t, ans.Citations)
}

func TestInvalidStructuredOutputDegradesToZeroCitations(t *testing.T) {
	llm := &fakeLLM{completion: "answer", structured: "not json"}
	g, _ := testSetup(t, llm)

	ans, err := g.Ask(context.Background(), "what?", domain.ModeCitations)
	require.NoError(t, err, "the answer was already produced; a bad extraction must not fail the turn")
	assert.Equal(t, "answer", ans.Text)
	assert.Empty(t, ans.Citations)
}

func TestGenerationFailureSurfaces(t *testing.T) {
	llm := &fakeLLM{completionErr: fmt.Errorf("%w: boom", domain.ErrGeneration)}
	g, _ := testSetup(t, llm)

	_, err := g.Ask(context.Background(), "what?", domain.ModeCitations)
	assert.ErrorIs(t, err, domain.ErrGeneration)
}

func TestUnknownMode(t *testing.T) {
	llm := &fakeLLM{}
	g, _ := testSetup(t, llm)

	_, err := g.Ask(context.Background(), "what?", domain.Mode("wild"))
	assert.Error(t, err)
}

func TestEmptyIndexAnswers(t *testing.T) {
	llm := &fakeLLM{completion: "I don't know."}
	store := memory.NewStore()
	r := retriever.New(&fakeEmbedder{}, store, 3)
	g := New(llm, r)

	ans, err := g.Ask(context.Background(), "anything?", domain.ModeAnswer)
	require.NoError(t, err)
	assert.Equal(t, "I don't know.", ans.Text)
	require.Len(t, llm.prompts, 1)
	assert.True(t, strings.Contains(llm.prompts[0], "Context:\n\n"),
		"empty retrieval yields an empty context block, not an error")
}

func TestPlaceholderBearingChunkContentStaysLiteral(t *testing.T) {
	// Document text that happens to contain a template placeholder must
	// reach the model verbatim, never with another variable spliced in.
	llm := &fakeLLM{completion: "answer"}
	store := memory.NewStore()
	chunk := domain.Chunk{ID: "id-1", Content: "chunk says: {question} must stay literal"}
	require.NoError(t, store.Add(context.Background(),
		[]domain.Chunk{chunk}, [][]float64{{1, 0, 0}}))
	g := New(llm, retriever.New(&fakeEmbedder{}, store, 1))

	for n := 0; n < 20; n++ {
		llm.prompts = nil
		_, err := g.Ask(context.Background(), "what is the secret?", domain.ModeAnswer)
		require.NoError(t, err)
		require.Len(t, llm.prompts, 1)
		assert.Contains(t, llm.prompts[0], "chunk says: {question} must stay literal")
		assert.NotContains(t, llm.prompts[0], "chunk says: what is the secret?")
	}
}

func TestStructuredCallErrorOtherThanSchemaFails(t *testing.T) {
	llm := &fakeLLM{completion: "answer", structuredErr: errors.New("network down")}
	g, _ := testSetup(t, llm)

	_, err := g.Ask(context.Background(), "what?", domain.ModeCitations)
	assert.Error(t, err)
}
