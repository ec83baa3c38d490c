// Package vector provides the approximate-nearest-neighbor index over
// message embeddings, one record per embedded message. Two backends are
// available: an embedded disk-backed index (chromem) for single-node
// deployments, and a PostgreSQL/pgvector index for deployments that
// already run Postgres.
package vector

import (
	"context"
	"errors"

	"github.com/engramdev/engram/pkg/types"
)

// ErrDimensionMismatch is returned when a vector's length does not match
// the width the index was created with. The width is fixed by the first
// vector ever inserted and cannot change for the lifetime of the index.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Record is one embedded message. ID equals the message ID.
type Record struct {
	ID        string
	UserID    string
	Role      types.Role
	Content   string
	Timestamp int64
	Vector    []float32
}

// Index is the ANN index contract the engine wires against.
//
// Implementations create their backing storage lazily on first Insert,
// sized to the first vector's dimension, with single-flight guarding so
// concurrent first inserts do not race to create it twice. Nearest on
// an index that has never been created returns no results and no error,
// so semantic search is a no-op until the first embedding lands.
type Index interface {
	Insert(ctx context.Context, rec *Record) error
	Nearest(ctx context.Context, vec []float32, userID string, k int) ([]Record, error)
	Close() error
}
