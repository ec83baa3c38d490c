package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"

	"github.com/engramdev/engram/internal/llm"
	"github.com/engramdev/engram/internal/storage"
)

// Vector-leg gating: queries shorter than this are too thin for useful
// embeddings, so they stay lexical-only and never pay for a model call.
const (
	minVectorQueryTokens = 4
	minVectorQueryChars  = 18
)

// Search runs hybrid retrieval over a user's messages and memories.
//
// The pipeline: sanitize the query into an FTS phrase, run the lexical
// leg, and short-circuit if it already fills the limit. Otherwise, for
// queries long enough to embed meaningfully, run the vector leg through
// the query-embedding cache, merge lexical-first with exact-string
// dedup, and optionally rerank oversized merged sets with the LLM.
// Every degraded path (no embedder, embedding failure, index failure,
// malformed rerank output) falls back to the results already in hand
// rather than failing the search.
func (e *Engine) Search(ctx context.Context, userID, query string, limit int) ([]string, error) {
	if userID == "" {
		return nil, fmt.Errorf("engine: user ID is required: %w", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("engine: search limit must be positive, got %d: %w", limit, storage.ErrInvalidInput)
	}

	phrase := sanitizeQuery(query)
	if phrase == "" {
		return nil, nil
	}

	hits, err := e.store.SearchLexical(ctx, userID, phrase, limit)
	if err != nil {
		return nil, fmt.Errorf("engine: lexical search: %w", err)
	}

	results := make([]string, 0, len(hits))
	for _, h := range hits {
		results = append(results, formatHit(h.Timestamp, h.Text))
	}

	// Lexical alone filled the limit: skip the embedding call entirely.
	if len(results) >= limit {
		return results[:limit], nil
	}

	if e.embedder == nil || !embeddable(phrase) {
		return results, nil
	}

	vec, err := e.embedCache.GetOrCompute(ctx, e.embedder.GetEmbeddingModel(), phrase, e.embedder.Embed)
	if err != nil {
		log.Printf("engine: search: embed query for %s failed, lexical only: %v", userID, err)
		return results, nil
	}

	recs, err := e.index.Nearest(ctx, vec, userID, limit)
	if err != nil {
		log.Printf("engine: search: vector query for %s failed, lexical only: %v", userID, err)
		return results, nil
	}

	seen := make(map[string]bool, len(results)+len(recs))
	merged := make([]string, 0, len(results)+len(recs))
	for _, r := range results {
		if !seen[r] {
			seen[r] = true
			merged = append(merged, r)
		}
	}
	for _, rec := range recs {
		r := formatHit(rec.Timestamp, rec.Content)
		if !seen[r] {
			seen[r] = true
			merged = append(merged, r)
		}
	}

	if e.reranker != nil && len(merged) > limit {
		return e.rerank(ctx, query, merged, limit), nil
	}

	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// rerank asks the LLM to order candidates by relevance and applies the
// returned index order. Any failure, and any index outside the
// candidate range, degrades to the unreranked prefix.
func (e *Engine) rerank(ctx context.Context, query string, candidates []string, limit int) []string {
	completion, err := e.reranker.Complete(ctx, llm.RerankPrompt(query, candidates))
	if err != nil {
		log.Printf("engine: rerank failed, returning unreranked results: %v", err)
		return candidates[:limit]
	}

	resp, err := llm.ParseRerankResponse(completion)
	if err != nil {
		log.Printf("engine: rerank returned unparseable output, returning unreranked results: %v", err)
		return candidates[:limit]
	}

	ranked := make([]string, 0, limit)
	used := make(map[int]bool, len(resp.Order))
	for _, i := range resp.Order {
		if i < 0 || i >= len(candidates) || used[i] {
			continue
		}
		used[i] = true
		ranked = append(ranked, candidates[i])
		if len(ranked) == limit {
			break
		}
	}

	if len(ranked) == 0 {
		return candidates[:limit]
	}
	return ranked
}

// sanitizeQuery reduces a raw query to an FTS-safe phrase: everything
// but letters, digits, and spaces is stripped, and whitespace runs
// collapse to single spaces. The result is matched as a quoted phrase,
// so FTS query operators in user input carry no meaning.
func sanitizeQuery(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	for _, r := range query {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// embeddable reports whether a sanitized query carries enough signal to
// be worth an embedding-model call.
func embeddable(phrase string) bool {
	return len(strings.Fields(phrase)) >= minVectorQueryTokens && len(phrase) >= minVectorQueryChars
}

// formatHit renders one result line. Lexical and vector hits go through
// the same formatting so the merge step can dedup by exact string.
func formatHit(ts int64, text string) string {
	return fmt.Sprintf("[%s] %s", time.Unix(ts, 0).UTC().Format(time.RFC3339), text)
}
