package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func testChunks() ([]domain.Chunk, [][]float64) {
	chunks := []domain.Chunk{
		{ID: "a", Content: "first chunk", Source: "docs/a.pdf", Title: "a.pdf", Page: 1},
		{ID: "b", Content: "second chunk", Source: "docs/a.pdf", Title: "a.pdf", Page: 2},
		{ID: "c", Content: "third chunk", Source: "docs/b.pdf", Title: "b.pdf", Page: 1},
	}
	vectors := [][]float64{{1, 0, 0}, {0, 1, 0}, {0.8, 0.2, 0}}
	return chunks, vectors
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.sqlite"), "col")
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
}

func TestOpenMissingCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sqlite")
	s, err := Create(path, "exists")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path, "other")
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
}

func TestCreateThenOpenEmptyCollection(t *testing.T) {
	// A created-but-unpopulated collection reopens as valid and empty,
	// distinct from the not-found case.
	path := filepath.Join(t.TempDir(), "db.sqlite")
	s, err := Create(path, "col")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, "col")
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	results, err := s.Search(context.Background(), []float64{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAddPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sqlite")
	ctx := context.Background()
	chunks, vectors := testChunks()

	s, err := Create(path, "col")
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, chunks, vectors))
	require.NoError(t, s.Close())

	s, err = Open(path, "col")
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 3, s.Dimension())
	results, err := s.Search(ctx, []float64{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Chunk.ID)
	assert.Equal(t, "first chunk", results[0].Chunk.Content)
	assert.Equal(t, "docs/a.pdf", results[0].Chunk.Source)
	assert.Equal(t, 1, results[0].Chunk.Page)
}

func TestLoadIsIdempotent(t *testing.T) {
	// Loading a persisted collection twice yields identical query results.
	path := filepath.Join(t.TempDir(), "db.sqlite")
	ctx := context.Background()
	chunks, vectors := testChunks()

	s, err := Create(path, "col")
	require.NoError(t, err)
	require.NoError(t, s.Rebuild(ctx, chunks, vectors))
	require.NoError(t, s.Close())

	query := []float64{0.9, 0.1, 0}
	var runs [][]string
	for n := 0; n < 2; n++ {
		s, err := Open(path, "col")
		require.NoError(t, err)
		results, err := s.Search(ctx, query, 3)
		require.NoError(t, err)
		ids := make([]string, len(results))
		for i, r := range results {
			ids[i] = r.Chunk.ID
		}
		runs = append(runs, ids)
		require.NoError(t, s.Close())
	}
	assert.Equal(t, runs[0], runs[1])
}

func TestRebuildReplacesNotMerges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sqlite")
	ctx := context.Background()
	chunks, vectors := testChunks()

	s, err := Create(path, "col")
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, chunks, vectors))

	// Rebuild with a different dimensionality replaces the stale
	// collection wholesale; nothing of the old one may survive.
	fresh := []domain.Chunk{{ID: "x", Content: "new"}}
	require.NoError(t, s.Rebuild(ctx, fresh, [][]float64{{1, 1}}))
	require.NoError(t, s.Close())

	s, err = Open(path, "col")
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, s.Dimension())
}

func TestRebuildFailureLeavesPriorStateIntact(t *testing.T) {
	// An interrupted rebuild must roll back; the previously persisted
	// collection survives a reopen untouched.
	path := filepath.Join(t.TempDir(), "db.sqlite")
	ctx := context.Background()
	chunks, vectors := testChunks()

	s, err := Create(path, "col")
	require.NoError(t, err)
	require.NoError(t, s.Rebuild(ctx, chunks, vectors))
	require.NoError(t, s.Close())

	s, err = Open(path, "col")
	require.NoError(t, err)
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = s.Rebuild(cancelled, []domain.Chunk{{ID: "x", Content: "new"}}, [][]float64{{1}})
	require.Error(t, err, "a rebuild with a cancelled context must not commit")
	require.NoError(t, s.Close())

	s, err = Open(path, "col")
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, s.Dimension())
}

func TestAddRejectsDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sqlite")
	ctx := context.Background()

	s, err := Create(path, "col")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Add(ctx, []domain.Chunk{{ID: "a"}}, [][]float64{{1, 0, 0}}))

	err = s.Add(ctx, []domain.Chunk{{ID: "b"}}, [][]float64{{1, 0}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestAddEmptyBatchIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sqlite")
	ctx := context.Background()
	chunks, vectors := testChunks()

	s, err := Create(path, "col")
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, chunks, vectors))
	require.NoError(t, s.Add(ctx, nil, nil))
	require.NoError(t, s.Close())

	s, err = Open(path, "col")
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 3, s.Dimension(), "an empty add must not clobber the recorded dimension")
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSearchRejectsWrongQueryDimension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sqlite")
	ctx := context.Background()

	s, err := Create(path, "col")
	require.NoError(t, err)
	defer s.Close()
	chunks, vectors := testChunks()
	require.NoError(t, s.Add(ctx, chunks, vectors))

	_, err = s.Search(ctx, []float64{1, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestTwoCollectionsInOneFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sqlite")
	ctx := context.Background()

	first, err := Create(path, "first")
	require.NoError(t, err)
	require.NoError(t, first.Add(ctx, []domain.Chunk{{ID: "f"}}, [][]float64{{1, 0}}))
	require.NoError(t, first.Close())

	second, err := Create(path, "second")
	require.NoError(t, err)
	defer second.Close()
	n, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "collections must not leak into each other")
}
