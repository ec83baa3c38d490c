// Package engine implements the memory engine core: the append path,
// history and clear operations, hybrid search, and the background
// compaction and retention pipelines.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/engramdev/engram/internal/cache"
	"github.com/engramdev/engram/internal/llm"
	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/internal/vector"
	"github.com/engramdev/engram/pkg/types"
)

// DefaultSummaryThreshold is the message count per user at which the
// most recent turns are compacted into a memory.
const DefaultSummaryThreshold = 12

// Options wires the engine's dependencies. Store is required; every
// other dependency is optional and its absence disables the feature it
// powers rather than failing construction.
type Options struct {
	// Store is the primary store (messages, memories, graph, FTS).
	Store storage.Store

	// Index and Embedder together enable semantic indexing and the
	// vector leg of search. Both must be set or both nil.
	Index    vector.Index
	Embedder llm.EmbeddingGenerator

	// Summarizer enables background compaction of recent turns into
	// memories. Nil disables compaction.
	Summarizer llm.TextGenerator

	// Reranker enables LLM reranking of oversized search result sets.
	// Nil disables reranking.
	Reranker llm.TextGenerator

	// SummaryThreshold overrides DefaultSummaryThreshold when positive.
	SummaryThreshold int

	// RetentionDays prunes messages and memories older than this many
	// days after each assistant turn. Zero disables pruning.
	RetentionDays int

	// EmbedCacheSize overrides the query-embedding cache capacity when
	// positive.
	EmbedCacheSize int
}

// Engine is the per-user conversational memory engine. All methods are
// safe for concurrent use.
type Engine struct {
	store      storage.Store
	index      vector.Index
	embedder   llm.EmbeddingGenerator
	summarizer llm.TextGenerator
	reranker   llm.TextGenerator

	embedCache *cache.EmbeddingCache

	summaryThreshold int
	retentionDays    int

	// wg tracks fire-and-forget background tasks so tests and shutdown
	// can drain them deterministically.
	wg sync.WaitGroup
}

// New constructs an engine from its dependencies.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if (opts.Index == nil) != (opts.Embedder == nil) {
		return nil, fmt.Errorf("engine: index and embedder must be configured together")
	}

	threshold := opts.SummaryThreshold
	if threshold <= 0 {
		threshold = DefaultSummaryThreshold
	}
	if opts.RetentionDays < 0 {
		return nil, fmt.Errorf("engine: retention days must not be negative, got %d", opts.RetentionDays)
	}

	return &Engine{
		store:            opts.Store,
		index:            opts.Index,
		embedder:         opts.Embedder,
		summarizer:       opts.Summarizer,
		reranker:         opts.Reranker,
		embedCache:       cache.NewEmbeddingCache(opts.EmbedCacheSize),
		summaryThreshold: threshold,
		retentionDays:    opts.RetentionDays,
	}, nil
}

// Append records one conversation turn. The message is persisted and,
// when an embedder is configured, indexed for semantic search before
// Append returns; an indexing failure fails the append. Assistant turns
// additionally kick off background compaction and retention, which
// never surface errors to the caller.
func (e *Engine) Append(ctx context.Context, userID string, role types.Role, content string) (*types.Message, error) {
	if userID == "" || content == "" {
		return nil, fmt.Errorf("engine: user ID and content are required: %w", storage.ErrInvalidInput)
	}
	if !types.ValidRole(role) {
		return nil, fmt.Errorf("engine: role %q: %w", role, storage.ErrInvalidInput)
	}

	msg := &types.Message{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Unix(),
	}

	if err := e.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("engine: append message: %w", err)
	}

	if e.embedder != nil {
		vec, err := e.embedder.Embed(ctx, content)
		if err != nil {
			return nil, fmt.Errorf("engine: embed message %s: %w", msg.ID, err)
		}
		rec := &vector.Record{
			ID:        msg.ID,
			UserID:    msg.UserID,
			Role:      msg.Role,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
			Vector:    vec,
		}
		if err := e.index.Insert(ctx, rec); err != nil {
			return nil, fmt.Errorf("engine: index message %s: %w", msg.ID, err)
		}
	}

	if role == types.RoleAssistant {
		if e.summarizer != nil {
			e.dispatch(func(ctx context.Context) { e.summarize(ctx, userID) })
		}
		if e.retentionDays > 0 {
			e.dispatch(func(ctx context.Context) { e.pruneAged(ctx, userID) })
		}
	}

	return msg, nil
}

// History returns the most recent limit messages for a user in
// chronological order. A limit of zero returns everything.
func (e *Engine) History(ctx context.Context, userID string, limit int) ([]types.Message, error) {
	if userID == "" {
		return nil, fmt.Errorf("engine: user ID is required: %w", storage.ErrInvalidInput)
	}
	return e.store.History(ctx, userID, limit)
}

// Clear deletes all of a user's messages. Memories and graph nodes
// derived from them are kept. Idempotent.
func (e *Engine) Clear(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("engine: user ID is required: %w", storage.ErrInvalidInput)
	}
	return e.store.ClearMessages(ctx, userID)
}

// WaitBackground blocks until all in-flight background tasks finish.
func (e *Engine) WaitBackground() {
	e.wg.Wait()
}

// Close drains background tasks. The store and index are owned by the
// caller and closed separately.
func (e *Engine) Close() error {
	e.wg.Wait()
	return nil
}

// dispatch runs f in a tracked goroutine detached from the request that
// triggered it. Background tasks carry no deadline: a stuck LLM call
// blocks only its own task, never a caller, and the provider clients
// enforce their own per-request timeouts.
func (e *Engine) dispatch(f func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		f(context.Background())
	}()
}
