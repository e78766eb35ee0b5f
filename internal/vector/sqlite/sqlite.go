// Package sqlite persists embeddings in a single SQLite file and answers
// queries with an in-process cosine scan.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/efebarandurmaz/riskmap/internal/vector"
)

// DefaultCollection is the table holding historical case embeddings.
const DefaultCollection = "historical_cases"

var validCollection = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store implements vector.Store on modernc.org/sqlite.
type Store struct {
	db         *sql.DB
	path       string
	collection string
}

// Open creates dataDir if needed and opens <dataDir>/vectors.db.
func Open(dataDir, collection string) (*Store, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	if !validCollection.MatchString(collection) {
		return nil, fmt.Errorf("vector/sqlite: invalid collection name %q", collection)
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("vector/sqlite: creating data directory: %w", err)
	}
	path := filepath.Join(dataDir, "vectors.db")
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("vector/sqlite: opening database: %w", err)
	}
	return &Store{db: db, path: path, collection: collection}, nil
}

func (s *Store) Name() string { return "sqlite" }

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error { return s.db.Close() }

// ReplaceAll drops, recreates and fills the collection table in one
// transaction, so a failed insert leaves the previous contents in place.
func (s *Store) ReplaceAll(ctx context.Context, records []vector.Record) error {
	if _, err := vector.ValidateBatch(records); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vector/sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.collection),
		fmt.Sprintf(`CREATE TABLE %s (
			seq       INTEGER PRIMARY KEY,
			id        TEXT NOT NULL UNIQUE,
			name      TEXT NOT NULL,
			metadata  TEXT NOT NULL,
			embedding BLOB NOT NULL
		)`, s.collection),
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("vector/sqlite: recreate %s: %w", s.collection, err)
		}
	}

	ins, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (seq, id, name, metadata, embedding) VALUES (?, ?, ?, ?, ?)`, s.collection))
	if err != nil {
		return fmt.Errorf("vector/sqlite: prepare insert: %w", err)
	}
	defer ins.Close()

	for i, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("vector/sqlite: encode metadata for %s: %w", r.ID, err)
		}
		if _, err := ins.ExecContext(ctx, i, r.ID, r.Metadata["name"], string(meta), float32SliceToBytes(r.Embedding)); err != nil {
			return fmt.Errorf("vector/sqlite: insert %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vector/sqlite: commit: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, embedding []float32, n int) ([]vector.Hit, error) {
	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return vector.Rank(records, embedding, n), nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	exists, err := s.tableExists(ctx)
	if err != nil || !exists {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.collection)).Scan(&n); err != nil {
		return 0, fmt.Errorf("vector/sqlite: count: %w", err)
	}
	return n, nil
}

func (s *Store) tableExists(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, s.collection).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("vector/sqlite: inspect schema: %w", err)
	}
	return n > 0, nil
}

func (s *Store) load(ctx context.Context) ([]vector.Record, error) {
	exists, err := s.tableExists(ctx)
	if err != nil || !exists {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, name, embedding FROM %s ORDER BY seq`, s.collection))
	if err != nil {
		return nil, fmt.Errorf("vector/sqlite: scan: %w", err)
	}
	defer rows.Close()

	var out []vector.Record
	for rows.Next() {
		var id, name string
		var blob []byte
		if err := rows.Scan(&id, &name, &blob); err != nil {
			return nil, fmt.Errorf("vector/sqlite: scan row: %w", err)
		}
		out = append(out, vector.Record{
			ID:        id,
			Embedding: bytesToFloat32Slice(blob),
			Metadata:  map[string]string{"name": name},
		})
	}
	return out, rows.Err()
}

func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

var _ vector.Store = (*Store)(nil)
