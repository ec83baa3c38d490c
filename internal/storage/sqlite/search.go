package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

// SearchLexical matches a sanitized phrase against the full-text indexes
// over memory summaries and user-role message content. The two result
// sets are unioned, ordered by recency, and capped at limit.
//
// The phrase is expected to contain only alphanumerics and spaces; it is
// quoted here so FTS5 treats it as a phrase rather than as a boolean
// expression. An unbalanced quote or a stray AND/OR/NOT in raw user
// input would otherwise produce an fts5 syntax error.
func (s *Store) SearchLexical(ctx context.Context, userID, phrase string, limit int) ([]storage.SearchHit, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}
	if strings.TrimSpace(phrase) == "" || limit <= 0 {
		return nil, nil
	}

	match := `"` + phrase + `"`

	memoryHits, err := s.searchMemorySummaries(ctx, userID, match, limit)
	if err != nil {
		return nil, err
	}

	messageHits, err := s.searchUserMessages(ctx, userID, match, limit)
	if err != nil {
		return nil, err
	}

	hits := append(memoryHits, messageHits...)
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Timestamp > hits[j].Timestamp
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Store) searchMemorySummaries(ctx context.Context, userID, match string, limit int) ([]storage.SearchHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.summary, m.created_at
		FROM memories_fts fts
		JOIN memories m ON m.rowid = fts.rowid
		WHERE memories_fts MATCH ? AND m.user_id = ?
		ORDER BY m.created_at DESC
		LIMIT ?`,
		match, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: memory summary MATCH %q: %w", match, err)
	}
	defer rows.Close()

	return scanHits(rows)
}

// searchUserMessages restricts the lexical leg to role = 'user' so the
// agent's own phrasing is never matched back to the user.
func (s *Store) searchUserMessages(ctx context.Context, userID, match string, limit int) ([]storage.SearchHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.content, m.ts
		FROM messages_fts fts
		JOIN messages m ON m.rowid = fts.rowid
		WHERE messages_fts MATCH ? AND m.user_id = ? AND m.role = ?
		ORDER BY m.ts DESC
		LIMIT ?`,
		match, userID, types.RoleUser, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: message MATCH %q: %w", match, err)
	}
	defer rows.Close()

	return scanHits(rows)
}

type hitRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanHits(rows hitRows) ([]storage.SearchHit, error) {
	var hits []storage.SearchHit
	for rows.Next() {
		var h storage.SearchHit
		if err := rows.Scan(&h.Text, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("sqlite: search scan: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: search rows: %w", err)
	}
	return hits, nil
}
