package engine

import (
	"context"
	"log"
	"time"
)

// pruneAged deletes a user's messages and memories older than the
// retention window. It runs in the background after assistant turns.
// Graph nodes linked from pruned memories are deliberately left in
// place: extracted knowledge outlives the conversations it came from.
func (e *Engine) pruneAged(ctx context.Context, userID string) {
	cutoff := time.Now().Add(-time.Duration(e.retentionDays) * 24 * time.Hour)
	if err := e.store.DeleteOlderThan(ctx, userID, cutoff); err != nil {
		log.Printf("engine: retention: prune for %s: %v", userID, err)
	}
}
