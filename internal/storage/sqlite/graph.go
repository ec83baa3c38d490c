package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

// StoreMemory inserts one summarization result. Memories are produced
// only by the summarization engine and never updated afterwards.
func (s *Store) StoreMemory(ctx context.Context, mem *types.Memory) error {
	if mem == nil {
		return storage.ErrInvalidInput
	}
	if mem.ID == "" || mem.UserID == "" || mem.Summary == "" {
		return fmt.Errorf("%w: memory ID, user ID and summary are required", storage.ErrInvalidInput)
	}

	createdAt := mem.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, user_id, summary, tags, salience, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		mem.ID, mem.UserID, mem.Summary, nullableString(mem.Tags), nullableFloat(mem.Salience), createdAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: store memory: %w", err)
	}
	return nil
}

// StoreEntity inserts one extracted entity. Duplicate names across
// summarization runs are expected and kept as separate rows.
func (s *Store) StoreEntity(ctx context.Context, ent *types.Entity) error {
	if ent == nil {
		return storage.ErrInvalidInput
	}
	if ent.ID == "" || ent.UserID == "" || ent.Name == "" {
		return fmt.Errorf("%w: entity ID, user ID and name are required", storage.ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entities (id, user_id, name, entity_type, canonical_id) VALUES (?, ?, ?, ?, ?)`,
		ent.ID, ent.UserID, ent.Name, nullableString(ent.EntityType), nullableString(ent.CanonicalID),
	)
	if err != nil {
		return fmt.Errorf("sqlite: store entity: %w", err)
	}
	return nil
}

// StoreFact inserts one extracted subject/predicate/object triple.
func (s *Store) StoreFact(ctx context.Context, fact *types.Fact) error {
	if fact == nil {
		return storage.ErrInvalidInput
	}
	if fact.ID == "" || fact.UserID == "" {
		return fmt.Errorf("%w: fact ID and user ID are required", storage.ErrInvalidInput)
	}
	if fact.Subject == "" || fact.Predicate == "" || fact.Object == "" {
		return fmt.Errorf("%w: fact subject, predicate and object are required", storage.ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO facts (id, user_id, subject, predicate, object, confidence, source) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fact.ID, fact.UserID, fact.Subject, fact.Predicate, fact.Object,
		nullableFloat(fact.Confidence), nullableString(fact.Source),
	)
	if err != nil {
		return fmt.Errorf("sqlite: store fact: %w", err)
	}
	return nil
}

// StoreEdge inserts one typed relation between graph nodes.
func (s *Store) StoreEdge(ctx context.Context, edge *types.Edge) error {
	if edge == nil {
		return storage.ErrInvalidInput
	}
	if edge.ID == "" || edge.UserID == "" || edge.SrcNodeID == "" || edge.DstNodeID == "" {
		return fmt.Errorf("%w: edge ID, user ID and endpoints are required", storage.ErrInvalidInput)
	}

	createdAt := edge.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO edges (id, user_id, src_node_type, src_node_id, dst_node_type, dst_node_id, edge_type, weight, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		edge.ID, edge.UserID, edge.SrcNodeType, edge.SrcNodeID, edge.DstNodeType, edge.DstNodeID,
		edge.EdgeType, edge.Weight, createdAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: store edge: %w", err)
	}
	return nil
}

// StoreMemoryLink records that a memory produced a graph node.
func (s *Store) StoreMemoryLink(ctx context.Context, link *types.MemoryLink) error {
	if link == nil {
		return storage.ErrInvalidInput
	}
	if link.ID == "" || link.MemoryID == "" || link.NodeID == "" {
		return fmt.Errorf("%w: link ID, memory ID and node ID are required", storage.ErrInvalidInput)
	}

	createdAt := link.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_links (id, memory_id, node_type, node_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		link.ID, link.MemoryID, link.NodeType, link.NodeID, createdAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: store memory link: %w", err)
	}
	return nil
}

// EntitiesByName returns a user's entities with an exact name match.
func (s *Store) EntitiesByName(ctx context.Context, userID, name string) ([]types.Entity, error) {
	if userID == "" || name == "" {
		return nil, fmt.Errorf("%w: user ID and name are required", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, entity_type, canonical_id FROM entities WHERE user_id = ? AND name = ?`,
		userID, name,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: entities by name: %w", err)
	}
	defer rows.Close()

	var entities []types.Entity
	for rows.Next() {
		var e types.Entity
		var entityType, canonicalID sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Name, &entityType, &canonicalID); err != nil {
			return nil, fmt.Errorf("sqlite: entities by name scan: %w", err)
		}
		if entityType.Valid {
			e.EntityType = entityType.String
		}
		if canonicalID.Valid {
			e.CanonicalID = canonicalID.String
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: entities by name rows: %w", err)
	}
	return entities, nil
}

// EdgesFrom returns edges whose source is the given node.
func (s *Store) EdgesFrom(ctx context.Context, userID, srcNodeID string) ([]types.Edge, error) {
	if userID == "" || srcNodeID == "" {
		return nil, fmt.Errorf("%w: user ID and source node ID are required", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, src_node_type, src_node_id, dst_node_type, dst_node_id, edge_type, weight, created_at
		FROM edges
		WHERE user_id = ? AND src_node_id = ?`,
		userID, srcNodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: edges from: %w", err)
	}
	defer rows.Close()

	var edges []types.Edge
	for rows.Next() {
		var e types.Edge
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.SrcNodeType, &e.SrcNodeID, &e.DstNodeType, &e.DstNodeID,
			&e.EdgeType, &e.Weight, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: edges from scan: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: edges from rows: %w", err)
	}
	return edges, nil
}

// nullableString converts a string to sql.NullString; empty means NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullableFloat converts a float64 to sql.NullFloat64; zero means NULL.
func nullableFloat(f float64) sql.NullFloat64 {
	if f == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}
