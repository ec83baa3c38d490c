// Package types defines the core domain types shared across the Engram
// memory engine: raw chat messages, derived memories, and the knowledge
// graph nodes (entities, facts) and relations produced by summarization.
package types

import "time"

// Role identifies which side of the conversation produced a message.
type Role string

const (
	// RoleUser marks a message written by the user.
	RoleUser Role = "user"

	// RoleAssistant marks a message written by the agent.
	RoleAssistant Role = "assistant"
)

// NodeType identifies the kind of knowledge-graph node a link or edge
// endpoint refers to.
type NodeType string

const (
	NodeMemory NodeType = "memory"
	NodeEntity NodeType = "entity"
	NodeFact   NodeType = "fact"
)

// EdgeType identifies the relation an Edge expresses.
type EdgeType string

const (
	// EdgeMentionedIn links a Memory to an Entity extracted from it.
	EdgeMentionedIn EdgeType = "MENTIONED_IN"

	// EdgeContains links a Memory to a Fact extracted from it.
	EdgeContains EdgeType = "CONTAINS"
)

// Message is one chat turn in a user's durable log. Messages are
// append-only: once written they are never mutated, and they are deleted
// only by the retention policy or an explicit Clear.
type Message struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // unix seconds
}

// Memory is a compacted summary of a window of conversation, produced
// only by the summarization engine and never edited by the user.
type Memory struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Summary   string    `json:"summary"`
	Tags      string    `json:"tags,omitempty"` // comma-joined
	Salience  float64   `json:"salience,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Entity is a named thing extracted during a summarization run.
// Entities are not merged across runs; the same name may appear more
// than once with distinct IDs.
type Entity struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	EntityType  string `json:"entity_type,omitempty"`
	CanonicalID string `json:"canonical_id,omitempty"`
}

// Fact is a subject/predicate/object triple extracted during a
// summarization run.
type Fact struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence,omitempty"`
	Source     string  `json:"source,omitempty"`
}

// Edge is a typed, weighted relation between two knowledge-graph nodes.
type Edge struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	SrcNodeType NodeType  `json:"src_node_type"`
	SrcNodeID   string    `json:"src_node_id"`
	DstNodeType NodeType  `json:"dst_node_type"`
	DstNodeID   string    `json:"dst_node_id"`
	EdgeType    EdgeType  `json:"edge_type"`
	Weight      float64   `json:"weight"`
	CreatedAt   time.Time `json:"created_at"`
}

// MemoryLink records that a Memory produced a particular graph node.
// It exists for provenance and cleanup, independent of typed edges.
type MemoryLink struct {
	ID        string    `json:"id"`
	MemoryID  string    `json:"memory_id"`
	NodeType  NodeType  `json:"node_type"`
	NodeID    string    `json:"node_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidRole reports whether r is a role the message log accepts.
func ValidRole(r Role) bool {
	return r == RoleUser || r == RoleAssistant
}
