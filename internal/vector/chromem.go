package vector

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/engramdev/engram/pkg/types"
)

// collectionName is the single chromem collection holding message
// vectors for all users; rows are scoped by a user_id metadata filter.
const collectionName = "message_vectors"

// ChromemIndex implements Index on chromem-go, a pure-Go embedded
// vector database persisted to a directory.
type ChromemIndex struct {
	db *chromem.DB

	mu  sync.Mutex
	col *chromem.Collection
	dim int
}

// OpenChromem opens (or creates) a persistent chromem database at dir.
// The message-vectors collection itself is NOT created here: it appears
// lazily on first Insert, and Nearest before that point returns nothing.
func OpenChromem(dir string) (*ChromemIndex, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("vector: open chromem db at %s: %w", dir, err)
	}

	idx := &ChromemIndex{db: db}

	// Pick up a collection persisted by an earlier run, if any.
	if col := db.GetCollection(collectionName, nil); col != nil {
		idx.col = col
	}

	return idx, nil
}

// Insert appends one row, creating the collection on first use. The
// collection width is fixed to the first inserted vector's dimension;
// later inserts with a different width are rejected.
func (x *ChromemIndex) Insert(ctx context.Context, rec *Record) error {
	if rec == nil || len(rec.Vector) == 0 {
		return fmt.Errorf("vector: record with non-empty vector is required")
	}

	col, err := x.collection(len(rec.Vector))
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Content,
		Embedding: rec.Vector,
		Metadata: map[string]string{
			"user_id": rec.UserID,
			"role":    string(rec.Role),
			"ts":      strconv.FormatInt(rec.Timestamp, 10),
		},
	}

	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("vector: insert %s: %w", rec.ID, err)
	}
	return nil
}

// Nearest returns up to k records closest to vec for the given user.
// An index whose collection has never been created yields no results.
func (x *ChromemIndex) Nearest(ctx context.Context, vec []float32, userID string, k int) ([]Record, error) {
	x.mu.Lock()
	col := x.col
	x.mu.Unlock()

	if col == nil || k <= 0 {
		return nil, nil
	}

	// chromem rejects nResults larger than the collection; clamp.
	if n := col.Count(); k > n {
		if n == 0 {
			return nil, nil
		}
		k = n
	}

	results, err := col.QueryEmbedding(ctx, vec, k, map[string]string{"user_id": userID}, nil)
	if err != nil {
		return nil, fmt.Errorf("vector: query: %w", err)
	}

	records := make([]Record, 0, len(results))
	for _, r := range results {
		ts, _ := strconv.ParseInt(r.Metadata["ts"], 10, 64)
		records = append(records, Record{
			ID:        r.ID,
			UserID:    r.Metadata["user_id"],
			Role:      types.Role(r.Metadata["role"]),
			Content:   r.Content,
			Timestamp: ts,
			Vector:    r.Embedding,
		})
	}
	return records, nil
}

// Close is a no-op: chromem persists each write as it happens.
func (x *ChromemIndex) Close() error {
	return nil
}

// collection returns the collection handle, creating it on first use.
// The mutex makes creation single-flight so concurrent first inserts
// cannot race to create two collections.
func (x *ChromemIndex) collection(dim int) (*chromem.Collection, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.col != nil {
		if x.dim != 0 && dim != x.dim {
			return nil, fmt.Errorf("%w: index width %d, got %d", ErrDimensionMismatch, x.dim, dim)
		}
		if x.dim == 0 {
			x.dim = dim
		}
		return x.col, nil
	}

	col, err := x.db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector: create collection: %w", err)
	}

	x.col = col
	x.dim = dim
	return col, nil
}

var _ Index = (*ChromemIndex)(nil)
