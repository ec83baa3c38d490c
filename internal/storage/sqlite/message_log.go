package sqlite

import (
	"context"
	"fmt"

	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

// AppendMessage persists one chat turn. Messages are immutable once
// written; there is deliberately no update path.
func (s *Store) AppendMessage(ctx context.Context, msg *types.Message) error {
	if msg == nil {
		return storage.ErrInvalidInput
	}
	if msg.ID == "" || msg.UserID == "" {
		return fmt.Errorf("%w: message ID and user ID are required", storage.ErrInvalidInput)
	}
	if !types.ValidRole(msg.Role) {
		return fmt.Errorf("%w: unknown role %q", storage.ErrInvalidInput, msg.Role)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, user_id, role, content, ts) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.UserID, msg.Role, msg.Content, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("sqlite: append message: %w", err)
	}
	return nil
}

// History returns the most recent limit messages for a user in ascending
// timestamp order. The query fetches descending with a row cap and then
// reverses: the contract is "most recent N, chronological", not "oldest N".
// A limit of zero means unlimited.
func (s *Store) History(ctx context.Context, userID string, limit int) ([]types.Message, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, role, content, ts
		FROM messages
		WHERE user_id = ?
		ORDER BY ts DESC, rowid DESC
	`
	args := []interface{}{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: history: %w", err)
	}
	defer rows.Close()

	var messages []types.Message
	for rows.Next() {
		var m types.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("sqlite: history scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: history rows: %w", err)
	}

	// Reverse newest-first into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// CountMessages returns the total number of messages stored for a user.
func (s *Store) CountMessages(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE user_id = ?`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count messages: %w", err)
	}
	return count, nil
}

// ClearMessages deletes all of a user's messages. Calling it for a user
// with no messages is not an error.
func (s *Store) ClearMessages(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite: clear messages: %w", err)
	}
	return nil
}
