// Package local persists the vector index to a SQLite file on local disk.
// Every search reloads the file into memory; nothing stays resident between calls.
package local

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/memory"
)

// IndexFileName is the name of the index file inside the persist directory.
const IndexFileName = "index.db"

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
  chunk_id    TEXT PRIMARY KEY,
  document_id TEXT NOT NULL,
  source      TEXT NOT NULL,
  idx         INTEGER NOT NULL,
  text        TEXT NOT NULL,
  vector      BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);
CREATE TABLE IF NOT EXISTS _meta (
  key   TEXT PRIMARY KEY,
  value TEXT
)`

const metaDimension = "dimension"

// Storage is a VectorStore backed by persist_dir/index.db.
type Storage struct {
	path string
}

// NewStorage creates the persist directory and returns a store for it.
func NewStorage(persistDir string) (*Storage, error) {
	if err := os.MkdirAll(persistDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating persist directory: %w", err)
	}
	return &Storage{path: filepath.Join(persistDir, IndexFileName)}, nil
}

// Path returns the index file location.
func (s *Storage) Path() string { return s.path }

// Exists reports whether an index file has been written.
func (s *Storage) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// openDB opens the index, creating the schema when create is set.
func (s *Storage) openDB(ctx context.Context, create bool) (*sql.DB, error) {
	if !create && !s.Exists() {
		return nil, vectorstore.ErrIndexAbsent
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return db, nil
}

// Init empties the index and records the vector dimension.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	db, err := s.openDB(ctx, true)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO _meta (key, value) VALUES (?, ?)`,
		metaDimension, strconv.Itoa(dimension)); err != nil {
		return fmt.Errorf("writing dimension: %w", err)
	}
	return tx.Commit()
}

// Upsert writes chunks and their vectors, replacing rows with the same chunk ID.
func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return vectorstore.ErrLength
	}
	db, err := s.openDB(ctx, false)
	if err != nil {
		return err
	}
	defer db.Close()

	dim, err := readDimension(ctx, db)
	if err != nil {
		return err
	}
	for _, v := range vectors {
		if len(v) != dim {
			return vectorstore.ErrDimension
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	if err := insertChunks(ctx, tx, chunks, vectors); err != nil {
		return err
	}
	return tx.Commit()
}

// Replace swaps the whole index for chunks in one transaction. On failure
// the previous contents stay in place.
func (s *Storage) Replace(ctx context.Context, dimension int, chunks []domain.Chunk, vectors [][]float32) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	if len(chunks) != len(vectors) {
		return vectorstore.ErrLength
	}
	for _, v := range vectors {
		if len(v) != dimension {
			return vectorstore.ErrDimension
		}
	}
	db, err := s.openDB(ctx, true)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO _meta (key, value) VALUES (?, ?)`,
		metaDimension, strconv.Itoa(dimension)); err != nil {
		return fmt.Errorf("writing dimension: %w", err)
	}
	if err := insertChunks(ctx, tx, chunks, vectors); err != nil {
		return err
	}
	return tx.Commit()
}

func insertChunks(ctx context.Context, tx *sql.Tx, chunks []domain.Chunk, vectors [][]float32) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO chunks
		(chunk_id, document_id, source, idx, text, vector) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()
	for i, ch := range chunks {
		if _, err := stmt.ExecContext(ctx, ch.ChunkID, ch.DocumentID, ch.Source, ch.Index, ch.Text, encodeVector(vectors[i])); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", ch.ChunkID, err)
		}
	}
	return nil
}

// Search reloads the persisted index and ranks its chunks against vector.
func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	mem, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return mem.Search(ctx, vector, topK)
}

// Load reads the whole index into an in-memory store.
func (s *Storage) Load(ctx context.Context) (*memory.Storage, error) {
	db, err := s.openDB(ctx, false)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	dim, err := readDimension(ctx, db)
	if err != nil {
		return nil, err
	}
	chunks, vectors, err := readChunks(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStorage()
	if err := mem.Init(ctx, dim); err != nil {
		return nil, err
	}
	if err := mem.Upsert(ctx, chunks, vectors); err != nil {
		return nil, fmt.Errorf("loading index: %w", err)
	}
	return mem, nil
}

// Chunks returns every persisted chunk ordered by document and position.
func (s *Storage) Chunks(ctx context.Context) ([]domain.Chunk, error) {
	db, err := s.openDB(ctx, false)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	chunks, _, err := readChunks(ctx, db)
	return chunks, err
}

// Clear removes all chunks but keeps the file.
func (s *Storage) Clear(ctx context.Context) error {
	if !s.Exists() {
		return nil
	}
	db, err := s.openDB(ctx, false)
	if err != nil {
		return err
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}
	return nil
}

func readDimension(ctx context.Context, db *sql.DB) (int, error) {
	var v string
	err := db.QueryRowContext(ctx, `SELECT value FROM _meta WHERE key = ?`, metaDimension).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, vectorstore.ErrNotInit
	}
	if err != nil {
		return 0, fmt.Errorf("reading dimension: %w", err)
	}
	dim, err := strconv.Atoi(v)
	if err != nil || dim <= 0 {
		return 0, fmt.Errorf("corrupt dimension %q in index", v)
	}
	return dim, nil
}

func readChunks(ctx context.Context, db *sql.DB) ([]domain.Chunk, [][]float32, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT chunk_id, document_id, source, idx, text, vector FROM chunks ORDER BY document_id, idx`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var (
		chunks  []domain.Chunk
		vectors [][]float32
	)
	for rows.Next() {
		var (
			ch   domain.Chunk
			blob []byte
		)
		if err := rows.Scan(&ch.ChunkID, &ch.DocumentID, &ch.Source, &ch.Index, &ch.Text, &blob); err != nil {
			return nil, nil, fmt.Errorf("scanning chunk: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, nil, fmt.Errorf("chunk %s: %w", ch.ChunkID, err)
		}
		chunks = append(chunks, ch)
		vectors = append(vectors, vec)
	}
	return chunks, vectors, rows.Err()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
