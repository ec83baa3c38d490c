package vector

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/lib/pq" // PostgreSQL driver
	pgvector "github.com/pgvector/pgvector-go"
)

// PgvectorIndex implements Index on PostgreSQL with the pgvector
// extension. The message_vectors table is created lazily on first
// insert, with its vector column sized to the first vector's dimension.
type PgvectorIndex struct {
	db *sql.DB

	mu      sync.Mutex
	created bool
	dim     int
}

// OpenPgvector connects to Postgres and ensures the pgvector extension
// is available. The table itself is created lazily.
func OpenPgvector(dsn string) (*PgvectorIndex, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("vector: open postgres: %w", err)
	}

	if _, err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		db.Close()
		return nil, fmt.Errorf("vector: enable pgvector extension: %w", err)
	}

	idx := &PgvectorIndex{db: db}

	// Adopt a table created by an earlier run, reading back its width.
	var dim sql.NullInt64
	err = db.QueryRow(`
		SELECT a.atttypmod
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		WHERE c.relname = 'message_vectors' AND a.attname = 'embedding'`,
	).Scan(&dim)
	switch {
	case err == sql.ErrNoRows:
		// Table has never been created; semantic search stays a no-op.
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("vector: inspect message_vectors: %w", err)
	default:
		idx.created = true
		idx.dim = int(dim.Int64)
	}

	return idx, nil
}

// Insert appends one row, creating the table on first use.
func (x *PgvectorIndex) Insert(ctx context.Context, rec *Record) error {
	if rec == nil || len(rec.Vector) == 0 {
		return fmt.Errorf("vector: record with non-empty vector is required")
	}

	if err := x.ensureTable(ctx, len(rec.Vector)); err != nil {
		return err
	}

	_, err := x.db.ExecContext(ctx, `
		INSERT INTO message_vectors (id, user_id, role, content, ts, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.UserID, rec.Role, rec.Content, rec.Timestamp, pgvector.NewVector(rec.Vector),
	)
	if err != nil {
		return fmt.Errorf("vector: insert %s: %w", rec.ID, err)
	}
	return nil
}

// Nearest returns up to k records closest to vec (cosine distance) for
// the given user. Before the table exists it returns nothing.
func (x *PgvectorIndex) Nearest(ctx context.Context, vec []float32, userID string, k int) ([]Record, error) {
	x.mu.Lock()
	created := x.created
	x.mu.Unlock()

	if !created || k <= 0 {
		return nil, nil
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT id, user_id, role, content, ts
		FROM message_vectors
		WHERE user_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3`,
		userID, pgvector.NewVector(vec), k,
	)
	if err != nil {
		return nil, fmt.Errorf("vector: query: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.UserID, &r.Role, &r.Content, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("vector: query scan: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector: query rows: %w", err)
	}
	return records, nil
}

// Close releases the connection pool.
func (x *PgvectorIndex) Close() error {
	return x.db.Close()
}

// ensureTable creates message_vectors on first use, single-flight, with
// the vector column sized to the first insert's dimension.
func (x *PgvectorIndex) ensureTable(ctx context.Context, dim int) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.created {
		if dim != x.dim {
			return fmt.Errorf("%w: index width %d, got %d", ErrDimensionMismatch, x.dim, dim)
		}
		return nil
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS message_vectors (
			id      TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			role    TEXT NOT NULL,
			content TEXT NOT NULL,
			ts      BIGINT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, dim)

	if _, err := x.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("vector: create message_vectors: %w", err)
	}
	if _, err := x.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_message_vectors_user ON message_vectors(user_id)`,
	); err != nil {
		return fmt.Errorf("vector: index message_vectors: %w", err)
	}

	x.created = true
	x.dim = dim
	return nil
}

var _ Index = (*PgvectorIndex)(nil)
