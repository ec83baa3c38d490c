package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/engramdev/engram/internal/storage"
)

// DeleteOlderThan removes all of a user's messages and memories written
// strictly before cutoff. Entities, facts and edges linked from deleted
// memories are left in place: orphaned graph nodes are an accepted
// consequence of age-based pruning.
func (s *Store) DeleteOlderThan(ctx context.Context, userID string, cutoff time.Time) error {
	if userID == "" {
		return fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}

	unix := cutoff.Unix()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE user_id = ? AND ts < ?`, userID, unix,
	); err != nil {
		return fmt.Errorf("sqlite: retention delete messages: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE user_id = ? AND created_at < ?`, userID, unix,
	); err != nil {
		return fmt.Errorf("sqlite: retention delete memories: %w", err)
	}

	return nil
}
