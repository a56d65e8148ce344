package database

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"chatdigest/internal/cache"

	"github.com/jmoiron/sqlx"
)

// EmbeddingStore persists embedding cache entries in a SQL table keyed by the
// normalized-text hash. Rows are insert-only.
type EmbeddingStore struct {
	db     *sqlx.DB
	driver string
}

type embeddingRow struct {
	KeyHash    string    `db:"key_hash"`
	Dimensions int       `db:"dimensions"`
	Vector     []byte    `db:"vector"`
	CreatedAt  time.Time `db:"created_at"`
}

// NewEmbeddingStore creates a store on db. The SQL dialect follows db.DriverName().
func NewEmbeddingStore(db *sqlx.DB) *EmbeddingStore {
	return &EmbeddingStore{db: db, driver: db.DriverName()}
}

// DB returns the underlying database connection
func (s *EmbeddingStore) DB() *sqlx.DB {
	return s.db
}

// CreateTable creates the embedding_cache table if it doesn't exist
func (s *EmbeddingStore) CreateTable(ctx context.Context) error {
	var queries []string
	switch s.driver {
	case driverPostgres:
		queries = []string{
			`CREATE TABLE IF NOT EXISTS embedding_cache (
				key_hash CHAR(64) PRIMARY KEY,
				dimensions INT NOT NULL,
				vector BYTEA NOT NULL,
				created_at TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_embedding_cache_created_at ON embedding_cache(created_at)`,
		}
	case driverMySQL:
		queries = []string{
			`CREATE TABLE IF NOT EXISTS embedding_cache (
				key_hash CHAR(64) PRIMARY KEY,
				dimensions INT NOT NULL,
				vector MEDIUMBLOB NOT NULL,
				created_at TIMESTAMP(6) NOT NULL,
				INDEX idx_embedding_cache_created_at (created_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		queries = []string{
			`CREATE TABLE IF NOT EXISTS embedding_cache (
				key_hash TEXT PRIMARY KEY,
				dimensions INTEGER NOT NULL,
				vector BLOB NOT NULL,
				created_at TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_embedding_cache_created_at ON embedding_cache(created_at)`,
		}
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create embedding_cache table: %w", err)
		}
	}
	return nil
}

// Get loads the entry for key
func (s *EmbeddingStore) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	var row embeddingRow
	query := s.db.Rebind(`SELECT key_hash, dimensions, vector, created_at FROM embedding_cache WHERE key_hash = ?`)
	err := s.db.GetContext(ctx, &row, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("failed to load embedding: %w", err)
	}

	vector, err := DecodeVector(row.Vector, row.Dimensions)
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("corrupt embedding %s: %w", key, err)
	}

	return cache.Entry{Key: row.KeyHash, Vector: vector, CreatedAt: row.CreatedAt}, true, nil
}

// Put stores entry unless a row already exists for its key
func (s *EmbeddingStore) Put(ctx context.Context, entry cache.Entry) error {
	var query string
	switch s.driver {
	case driverMySQL:
		query = `INSERT IGNORE INTO embedding_cache (key_hash, dimensions, vector, created_at) VALUES (?, ?, ?, ?)`
	default:
		query = s.db.Rebind(`INSERT INTO embedding_cache (key_hash, dimensions, vector, created_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (key_hash) DO NOTHING`)
	}

	_, err := s.db.ExecContext(ctx, query, entry.Key, len(entry.Vector), EncodeVector(entry.Vector), entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

// Prune deletes entries created before cutoff and returns how many were removed
func (s *EmbeddingStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	query := s.db.Rebind(`DELETE FROM embedding_cache WHERE created_at < ?`)
	res, err := s.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune embeddings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned embeddings: %w", err)
	}
	return n, nil
}

// Count returns the number of persisted entries
func (s *EmbeddingStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := ExecuteReadOnlyQuerySingle(ctx, s.db, &count, `SELECT COUNT(*) FROM embedding_cache`); err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (s *EmbeddingStore) Close() error {
	return s.db.Close()
}

// EncodeVector packs v as little-endian float32s
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector unpacks a blob written by EncodeVector, checking it holds exactly dims floats
func DecodeVector(b []byte, dims int) ([]float32, error) {
	if dims <= 0 || len(b) != 4*dims {
		return nil, fmt.Errorf("vector blob is %d bytes, want %d dimensions", len(b), dims)
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
