// Package sqlite provides the persistent collection store. A collection is a
// named set of embedded chunks inside one sqlite file; vectors are cached in
// memory for brute-force cosine search and the database is the durable copy.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

const metricCosine = "cosine"

// Store is one open collection. Concurrent reads are safe; builds against
// the same Store are serialized.
type Store struct {
	db         *sql.DB
	collection string

	mu        sync.RWMutex
	dimension int
	chunks    []domain.Chunk
	vectors   [][]float64

	buildMu sync.Mutex
}

// Open reopens an existing collection without recomputing embeddings. A
// missing file or a file without the named collection yields
// ErrCollectionNotFound; an existing collection with zero entries opens as a
// valid empty store.
func Open(path, collection string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, path)
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, collection: collection}
	exists, err := s.collectionExists(context.Background())
	if err != nil {
		db.Close()
		return nil, domain.WrapOp("sqlite.Open", err)
	}
	if !exists {
		db.Close()
		return nil, fmt.Errorf("%w: collection %q in %s", domain.ErrCollectionNotFound, collection, path)
	}
	if err := s.load(context.Background()); err != nil {
		db.Close()
		return nil, domain.WrapOp("sqlite.Open", err)
	}
	return s, nil
}

// Create opens the collection, creating the file and the collection record
// if absent. The collection's dimensionality is fixed by the first vectors
// written to it.
func Create(path, collection string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, collection: collection}
	ctx := context.Background()
	exists, err := s.collectionExists(ctx)
	if err != nil {
		db.Close()
		return nil, domain.WrapOp("sqlite.Create", err)
	}
	if !exists {
		_, err = db.ExecContext(ctx,
			"INSERT INTO collections (name, dimension, metric, created_at) VALUES (?, 0, ?, ?)",
			collection, metricCosine, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			db.Close()
			return nil, domain.WrapOp("sqlite.Create", err)
		}
	}
	if err := s.load(ctx); err != nil {
		db.Close()
		return nil, domain.WrapOp("sqlite.Create", err)
	}
	return s, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma failed: %w", err)
		}
	}
	schema := `
		CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL,
			metric TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS chunks (
			collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			id TEXT NOT NULL,
			content TEXT NOT NULL,
			source TEXT NOT NULL,
			title TEXT NOT NULL,
			page INTEGER NOT NULL,
			embedding BLOB NOT NULL,
			PRIMARY KEY (collection, seq)
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema creation failed: %w", err)
	}
	return db, nil
}

func (s *Store) collectionExists(ctx context.Context) (bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM collections WHERE name = ?", s.collection).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// load fills the in-memory cache from the database, in insertion order.
func (s *Store) load(ctx context.Context) error {
	var dim int
	if err := s.db.QueryRowContext(ctx,
		"SELECT dimension FROM collections WHERE name = ?", s.collection).Scan(&dim); err != nil {
		return err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, content, source, title, page, embedding FROM chunks WHERE collection = ? ORDER BY seq",
		s.collection)
	if err != nil {
		return err
	}
	defer rows.Close()

	var chunks []domain.Chunk
	var vectors [][]float64
	for rows.Next() {
		var c domain.Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.Content, &c.Source, &c.Title, &c.Page, &blob); err != nil {
			return err
		}
		chunks = append(chunks, c)
		vectors = append(vectors, decodeVector(blob))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.dimension = dim
	s.chunks = chunks
	s.vectors = vectors
	s.mu.Unlock()
	return nil
}

func (s *Store) Add(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	dim, err := batchDimension(chunks, vectors)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	s.mu.RLock()
	current := s.dimension
	offset := len(s.chunks)
	s.mu.RUnlock()
	if current != 0 && dim != 0 && dim != current {
		return fmt.Errorf("%w: adding dimension %d to collection of dimension %d", domain.ErrDimensionMismatch, dim, current)
	}
	if err := s.write(ctx, chunks, vectors, dim, offset, false); err != nil {
		return domain.WrapOp("sqlite.Add", err)
	}
	s.mu.Lock()
	if s.dimension == 0 {
		s.dimension = dim
	}
	s.chunks = append(s.chunks, chunks...)
	s.vectors = append(s.vectors, vectors...)
	s.mu.Unlock()
	return nil
}

func (s *Store) Rebuild(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	dim, err := batchDimension(chunks, vectors)
	if err != nil {
		return err
	}
	if err := s.write(ctx, chunks, vectors, dim, 0, true); err != nil {
		return domain.WrapOp("sqlite.Rebuild", err)
	}
	s.mu.Lock()
	s.dimension = dim
	s.chunks = append([]domain.Chunk(nil), chunks...)
	s.vectors = append([][]float64(nil), vectors...)
	s.mu.Unlock()
	return nil
}

// write persists a batch in one transaction. With replace set, the previous
// contents are removed in the same transaction, so an interrupted rebuild
// rolls back to the prior valid state.
func (s *Store) write(ctx context.Context, chunks []domain.Chunk, vectors [][]float64, dim, offset int, replace bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if replace {
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE collection = ?", s.collection); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE collections SET dimension = ? WHERE name = ?", dim, s.collection); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (collection, seq, id, content, source, title, page, embedding) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, c := range chunks {
		if _, err := stmt.ExecContext(ctx,
			s.collection, offset+i, c.ID, c.Content, c.Source, c.Title, c.Page, encodeVector(vectors[i])); err != nil {
			return err
		}
	}
	return tx.Commit()
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

// Dimension reports the collection's fixed vector dimensionality, or 0 while
// the collection is still empty and undetermined.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *Store) Close() error { return s.db.Close() }

// batchDimension validates a batch and returns its common dimensionality.
func batchDimension(chunks []domain.Chunk, vectors [][]float64) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("%w: %d chunks, %d vectors", domain.ErrDimensionMismatch, len(chunks), len(vectors))
	}
	dim := 0
	for i, v := range vectors {
		if i == 0 {
			dim = len(v)
		} else if len(v) != dim {
			return 0, fmt.Errorf("%w: vector %d has dimension %d, want %d", domain.ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return dim, nil
}

// encodeVector converts []float64 to little-endian bytes.
func encodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

// decodeVector converts little-endian bytes back to []float64.
func decodeVector(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}
