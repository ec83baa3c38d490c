package storage

import (
	"context"
	"time"

	"github.com/engramdev/engram/pkg/types"
)

// MessageLog provides the durable, append-only, per-user chat log.
type MessageLog interface {
	// AppendMessage persists a fully-populated message row.
	AppendMessage(ctx context.Context, msg *types.Message) error

	// History returns the most recent limit messages for a user in
	// ascending timestamp order. A limit of zero means unlimited.
	History(ctx context.Context, userID string, limit int) ([]types.Message, error)

	// CountMessages returns the total number of messages for a user.
	CountMessages(ctx context.Context, userID string) (int, error)

	// ClearMessages deletes all of a user's messages. Idempotent.
	ClearMessages(ctx context.Context, userID string) error
}

// GraphStore persists the derived knowledge graph produced by
// summarization: memories, entities, facts, edges, and provenance links.
type GraphStore interface {
	StoreMemory(ctx context.Context, mem *types.Memory) error
	StoreEntity(ctx context.Context, ent *types.Entity) error
	StoreFact(ctx context.Context, fact *types.Fact) error
	StoreEdge(ctx context.Context, edge *types.Edge) error
	StoreMemoryLink(ctx context.Context, link *types.MemoryLink) error

	// EntitiesByName returns a user's entities with an exact name match.
	// Used by tests and diagnostic tooling; duplicates are expected since
	// extraction runs do not merge entities.
	EntitiesByName(ctx context.Context, userID, name string) ([]types.Entity, error)

	// EdgesFrom returns edges whose source is the given node.
	EdgesFrom(ctx context.Context, userID, srcNodeID string) ([]types.Edge, error)
}

// LexicalSearcher provides full-text search over the message log and the
// memory summaries. Only user-role messages are lexically searchable so
// the agent's own phrasing is never matched back to the user.
type LexicalSearcher interface {
	// SearchLexical matches an already-sanitized phrase query against the
	// full-text indexes over memory summaries and user message content,
	// unioned, ordered by recency, capped at limit.
	SearchLexical(ctx context.Context, userID, phrase string, limit int) ([]SearchHit, error)
}

// Retention deletes aged rows from the primary store.
type Retention interface {
	// DeleteOlderThan removes all of a user's messages and memories whose
	// timestamp/created_at falls strictly before cutoff. Graph nodes
	// linked from deleted memories are left in place.
	DeleteOlderThan(ctx context.Context, userID string, cutoff time.Time) error
}

// Store is the full primary-store contract the engine wires against.
type Store interface {
	MessageLog
	GraphStore
	LexicalSearcher
	Retention

	// Close releases any resources held by the store.
	Close() error
}
