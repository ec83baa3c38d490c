package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/internal/storage/sqlite"
	"github.com/engramdev/engram/internal/vector"
	"github.com/engramdev/engram/pkg/types"
)

// summaryJSON is the canonical well-formed compaction output used
// across the summarization tests.
const summaryJSON = `{
	"summary": "user enjoys hiking and recently visited the Alps",
	"tags": ["hobby", "travel"],
	"entities": [{"name": "Alps", "type": "place"}, {"name": "", "type": "mystery"}],
	"facts": [
		{"subject": "user", "predicate": "enjoys", "object": "hiking", "confidence": 0.9},
		{"subject": "user", "predicate": "", "object": "incomplete"}
	]
}`

type mockEmbedder struct {
	mu    sync.Mutex
	calls int
	vec   []float32
	err   error
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.vec, nil
}

func (m *mockEmbedder) GetEmbeddingModel() string { return "mock-embed" }

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockIndex keeps records in memory and returns a user's records in
// insertion order, ignoring distance. Good enough for pipeline tests.
type mockIndex struct {
	mu      sync.Mutex
	records []vector.Record
	err     error
}

func (m *mockIndex) Insert(ctx context.Context, rec *vector.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, *rec)
	return nil
}

func (m *mockIndex) Nearest(ctx context.Context, vec []float32, userID string, k int) ([]vector.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []vector.Record
	for _, r := range m.records {
		if r.UserID == userID && len(out) < k {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockIndex) Close() error { return nil }

type mockCompleter struct {
	mu       sync.Mutex
	calls    int
	response string
	err      error
}

func (m *mockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockCompleter) GetModel() string { return "mock-model" }

func (m *mockCompleter) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	eng, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

func countRows(t *testing.T, db *sql.DB, query string, args ...interface{}) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	store := newTestStore(t)

	_, err = New(Options{Store: store, Embedder: &mockEmbedder{}})
	assert.Error(t, err)

	_, err = New(Options{Store: store, RetentionDays: -1})
	assert.Error(t, err)
}

func TestAppendPersistsAndIndexes(t *testing.T) {
	store := newTestStore(t)
	embedder := &mockEmbedder{vec: []float32{1, 0}}
	index := &mockIndex{}
	eng := newTestEngine(t, Options{Store: store, Embedder: embedder, Index: index})

	msg, err := eng.Append(context.Background(), "u1", types.RoleUser, "I went hiking in the Alps")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	history, err := eng.History(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "I went hiking in the Alps", history[0].Content)

	require.Len(t, index.records, 1)
	assert.Equal(t, msg.ID, index.records[0].ID)
	assert.Equal(t, 1, embedder.callCount())
}

func TestAppendWithoutEmbedderSkipsIndexing(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, Options{Store: store})

	_, err := eng.Append(context.Background(), "u1", types.RoleUser, "no semantic search here")
	require.NoError(t, err)
}

func TestAppendValidation(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, Options{Store: store})
	ctx := context.Background()

	_, err := eng.Append(ctx, "", types.RoleUser, "content")
	assert.Error(t, err)

	_, err = eng.Append(ctx, "u1", types.RoleUser, "")
	assert.Error(t, err)

	_, err = eng.Append(ctx, "u1", "system", "content")
	assert.Error(t, err)
}

func TestAppendSurfacesEmbeddingFailure(t *testing.T) {
	store := newTestStore(t)
	embedder := &mockEmbedder{err: errors.New("embedder down")}
	eng := newTestEngine(t, Options{Store: store, Embedder: embedder, Index: &mockIndex{}})

	_, err := eng.Append(context.Background(), "u1", types.RoleUser, "this will not index")
	assert.Error(t, err)
}

func TestClearIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, Options{Store: store})
	ctx := context.Background()

	_, err := eng.Append(ctx, "u1", types.RoleUser, "ephemeral")
	require.NoError(t, err)

	require.NoError(t, eng.Clear(ctx, "u1"))
	require.NoError(t, eng.Clear(ctx, "u1"))

	history, err := eng.History(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSearchLexicalOnly(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, Options{Store: store})
	ctx := context.Background()

	_, err := eng.Append(ctx, "u1", types.RoleUser, "I love hiking every weekend")
	require.NoError(t, err)

	results, err := eng.Search(ctx, "u1", "hiking", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0], "I love hiking every weekend")
}

func TestSearchSanitizesQuery(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, Options{Store: store})
	ctx := context.Background()

	_, err := eng.Append(ctx, "u1", types.RoleUser, "discussed the quarterly budget")
	require.NoError(t, err)

	// Punctuation and FTS operators are stripped before matching.
	results, err := eng.Search(ctx, "u1", `"quarterly" OR budget); DROP`, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = eng.Search(ctx, "u1", "quarterly!! budget??", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearchEmptyQueryReturnsNothing(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, Options{Store: store})

	results, err := eng.Search(context.Background(), "u1", "?!...", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchValidation(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, Options{Store: store})
	ctx := context.Background()

	_, err := eng.Search(ctx, "", "query", 5)
	assert.Error(t, err)

	_, err = eng.Search(ctx, "u1", "query", 0)
	assert.Error(t, err)
}

func TestSearchShortCircuitSkipsEmbedding(t *testing.T) {
	store := newTestStore(t)
	embedder := &mockEmbedder{vec: []float32{1, 0}}
	index := &mockIndex{}
	eng := newTestEngine(t, Options{Store: store, Embedder: embedder, Index: index})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := eng.Append(ctx, "u1", types.RoleUser,
			fmt.Sprintf("notes on the quarterly project roadmap session %d", i))
		require.NoError(t, err)
	}
	appendCalls := embedder.callCount()

	// The query passes the vector gate, but lexical hits already fill
	// the limit, so no query embedding is computed.
	results, err := eng.Search(ctx, "u1", "quarterly project roadmap session", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, appendCalls, embedder.callCount())
}

func TestSearchShortQueryStaysLexical(t *testing.T) {
	store := newTestStore(t)
	embedder := &mockEmbedder{vec: []float32{1, 0}}
	eng := newTestEngine(t, Options{Store: store, Embedder: embedder, Index: &mockIndex{}})
	ctx := context.Background()

	results, err := eng.Search(ctx, "u1", "hi", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, embedder.callCount())

	// Three tokens is still below the gate regardless of length.
	_, err = eng.Search(ctx, "u1", "extraordinarily lengthy query", 5)
	require.NoError(t, err)
	assert.Equal(t, 0, embedder.callCount())
}

func TestSearchVectorLeg(t *testing.T) {
	store := newTestStore(t)
	embedder := &mockEmbedder{vec: []float32{1, 0}}
	index := &mockIndex{}
	eng := newTestEngine(t, Options{Store: store, Embedder: embedder, Index: index})
	ctx := context.Background()

	_, err := eng.Append(ctx, "u1", types.RoleUser, "I climbed a mountain last summer")
	require.NoError(t, err)
	appendCalls := embedder.callCount()

	// Lexically unrelated query; only the vector leg can find the turn.
	results, err := eng.Search(ctx, "u1", "what outdoor activities does this person like", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0], "I climbed a mountain last summer")
	assert.Equal(t, appendCalls+1, embedder.callCount())
}

func TestSearchReusesCachedQueryEmbedding(t *testing.T) {
	store := newTestStore(t)
	embedder := &mockEmbedder{vec: []float32{1, 0}}
	eng := newTestEngine(t, Options{Store: store, Embedder: embedder, Index: &mockIndex{}})
	ctx := context.Background()

	query := "what did we discuss about the roadmap"

	_, err := eng.Search(ctx, "u1", query, 5)
	require.NoError(t, err)
	_, err = eng.Search(ctx, "u1", query, 5)
	require.NoError(t, err)

	assert.Equal(t, 1, embedder.callCount())
}

func TestSearchMergeDeduplicates(t *testing.T) {
	store := newTestStore(t)
	embedder := &mockEmbedder{vec: []float32{1, 0}}
	index := &mockIndex{}
	eng := newTestEngine(t, Options{Store: store, Embedder: embedder, Index: index})
	ctx := context.Background()

	// One turn that both legs will return: it matches the query
	// lexically and lives in the vector index.
	_, err := eng.Append(ctx, "u1", types.RoleUser, "planning the annual hiking trip itinerary")
	require.NoError(t, err)

	results, err := eng.Search(ctx, "u1", "planning the annual hiking trip itinerary", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchDegradesOnEmbeddingFailure(t *testing.T) {
	store := newTestStore(t)
	index := &mockIndex{}
	eng := newTestEngine(t, Options{Store: store, Embedder: &mockEmbedder{vec: []float32{1, 0}}, Index: index})
	ctx := context.Background()

	_, err := eng.Append(ctx, "u1", types.RoleUser, "remember the hiking boots recommendation")
	require.NoError(t, err)

	// Swap in a failing engine sharing the same store and index.
	failing := newTestEngine(t, Options{Store: store, Embedder: &mockEmbedder{err: errors.New("down")}, Index: index})

	results, err := failing.Search(ctx, "u1", "what gear did the user ask about", 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Lexical hits survive the degraded vector leg.
	results, err = failing.Search(ctx, "u1", "the hiking boots recommendation", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchDegradesOnIndexFailure(t *testing.T) {
	store := newTestStore(t)
	index := &mockIndex{}
	eng := newTestEngine(t, Options{Store: store, Embedder: &mockEmbedder{vec: []float32{1, 0}}, Index: index})
	ctx := context.Background()

	_, err := eng.Append(ctx, "u1", types.RoleUser, "remember the hiking boots recommendation")
	require.NoError(t, err)

	index.mu.Lock()
	index.err = errors.New("index down")
	index.mu.Unlock()

	results, err := eng.Search(ctx, "u1", "the hiking boots recommendation", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

// newRerankEngine builds an engine whose search produces three merged
// candidates for "the hiking trip plan" with limit 2: one lexical hit
// plus two vector-only records. Candidate order after the merge:
//
//	[0] the lexical hit ("jotted down the hiking trip plan")
//	[1] "first vector candidate"
//	[2] "second vector candidate"
func newRerankEngine(t *testing.T, reranker *mockCompleter) *Engine {
	t.Helper()

	store := newTestStore(t)
	index := &mockIndex{}
	for i, c := range []string{"first vector candidate", "second vector candidate"} {
		index.records = append(index.records, vector.Record{
			ID: fmt.Sprintf("v%d", i), UserID: "u1", Role: types.RoleUser,
			Content: c, Timestamp: int64(1000 + i), Vector: []float32{1, 0},
		})
	}

	eng := newTestEngine(t, Options{
		Store: store, Embedder: &mockEmbedder{vec: []float32{1, 0}},
		Index: index, Reranker: reranker,
	})

	err := store.AppendMessage(context.Background(), &types.Message{
		ID: "lex1", UserID: "u1", Role: types.RoleUser,
		Content: "jotted down the hiking trip plan", Timestamp: 2000,
	})
	require.NoError(t, err)

	return eng
}

func TestSearchRerankAppliesOrder(t *testing.T) {
	reranker := &mockCompleter{response: `{"order": [2, 0, 1]}`}
	eng := newRerankEngine(t, reranker)

	// Three merged candidates exceed the limit of two, so the reranker
	// runs and its ordering wins.
	results, err := eng.Search(context.Background(), "u1", "the hiking trip plan", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Contains(t, results[0], "second vector candidate")
	assert.Contains(t, results[1], "hiking trip plan")
	assert.Equal(t, 1, reranker.callCount())
}

func TestSearchRerankMalformedOutputFallsBack(t *testing.T) {
	reranker := &mockCompleter{response: "I think the second one is best."}
	eng := newRerankEngine(t, reranker)

	// Unparseable reranker output degrades to the unreranked merge.
	results, err := eng.Search(context.Background(), "u1", "the hiking trip plan", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Contains(t, results[0], "hiking trip plan")
	assert.Contains(t, results[1], "first vector candidate")
}

func TestSearchRerankErrorFallsBack(t *testing.T) {
	reranker := &mockCompleter{err: errors.New("model down")}
	eng := newRerankEngine(t, reranker)

	results, err := eng.Search(context.Background(), "u1", "the hiking trip plan", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Contains(t, results[0], "hiking trip plan")
}

func TestSearchRerankDropsOutOfRangeIndices(t *testing.T) {
	reranker := &mockCompleter{response: `{"order": [7, -1, 1, 1, 0]}`}
	eng := newRerankEngine(t, reranker)

	results, err := eng.Search(context.Background(), "u1", "the hiking trip plan", 2)
	require.NoError(t, err)

	// 7 and -1 are dropped, the duplicate 1 is used once.
	require.Len(t, results, 2)
	assert.Contains(t, results[0], "first vector candidate")
	assert.Contains(t, results[1], "hiking trip plan")
}

func TestSearchRerankSkippedWhenMergeFitsLimit(t *testing.T) {
	reranker := &mockCompleter{response: `{"order": [2, 1, 0]}`}
	eng := newRerankEngine(t, reranker)

	// With limit 3 the merge fits, so the reranker is never consulted.
	results, err := eng.Search(context.Background(), "u1", "the hiking trip plan", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Contains(t, results[0], "hiking trip plan")
	assert.Equal(t, 0, reranker.callCount())
}

func TestSummarizationTriggersAtThreshold(t *testing.T) {
	store := newTestStore(t)
	summarizer := &mockCompleter{response: summaryJSON}
	eng := newTestEngine(t, Options{Store: store, Summarizer: summarizer, SummaryThreshold: 4})
	ctx := context.Background()

	turns := []struct {
		role    types.Role
		content string
	}{
		{types.RoleUser, "I went hiking in the Alps"},
		{types.RoleAssistant, "That sounds amazing"},
		{types.RoleUser, "It was a wonderful trip"},
	}
	for _, turn := range turns {
		_, err := eng.Append(ctx, "u1", turn.role, turn.content)
		require.NoError(t, err)
	}
	eng.WaitBackground()

	// Three messages: below threshold, nothing compacted.
	assert.Equal(t, 0, countRows(t, store.DB(), `SELECT COUNT(*) FROM memories WHERE user_id = ?`, "u1"))

	_, err := eng.Append(ctx, "u1", types.RoleAssistant, "Glad you enjoyed it")
	require.NoError(t, err)
	eng.WaitBackground()

	assert.Equal(t, 1, countRows(t, store.DB(), `SELECT COUNT(*) FROM memories WHERE user_id = ?`, "u1"))

	// The memory is immediately searchable.
	results, err := eng.Search(ctx, "u1", "hiking", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0], "user enjoys hiking")

	// The named entity landed with provenance; the nameless one and the
	// incomplete fact were skipped.
	entities, err := store.EntitiesByName(ctx, "u1", "Alps")
	require.NoError(t, err)
	require.Len(t, entities, 1)

	assert.Equal(t, 1, countRows(t, store.DB(),
		`SELECT COUNT(*) FROM edges WHERE user_id = ? AND edge_type = ?`, "u1", types.EdgeMentionedIn))
	assert.Equal(t, 1, countRows(t, store.DB(), `SELECT COUNT(*) FROM facts WHERE user_id = ?`, "u1"))
	assert.Equal(t, 1, countRows(t, store.DB(),
		`SELECT COUNT(*) FROM edges WHERE user_id = ? AND edge_type = ?`, "u1", types.EdgeContains))
	assert.Equal(t, 2, countRows(t, store.DB(), `SELECT COUNT(*) FROM memory_links`))
}

func TestSummarizationOnlyOnAssistantTurns(t *testing.T) {
	store := newTestStore(t)
	summarizer := &mockCompleter{response: summaryJSON}
	eng := newTestEngine(t, Options{Store: store, Summarizer: summarizer, SummaryThreshold: 2})
	ctx := context.Background()

	_, err := eng.Append(ctx, "u1", types.RoleUser, "first user turn")
	require.NoError(t, err)
	_, err = eng.Append(ctx, "u1", types.RoleUser, "second user turn")
	require.NoError(t, err)
	eng.WaitBackground()

	assert.Equal(t, 0, countRows(t, store.DB(), `SELECT COUNT(*) FROM memories WHERE user_id = ?`, "u1"))
	assert.Equal(t, 0, summarizer.callCount())
}

func TestSummarizationLLMFailureKeepsRawTranscript(t *testing.T) {
	store := newTestStore(t)
	summarizer := &mockCompleter{err: errors.New("model down")}
	eng := newTestEngine(t, Options{Store: store, Summarizer: summarizer, SummaryThreshold: 2})
	ctx := context.Background()

	_, err := eng.Append(ctx, "u1", types.RoleUser, "tell me about glaciers")
	require.NoError(t, err)
	_, err = eng.Append(ctx, "u1", types.RoleAssistant, "glaciers are rivers of ice")
	require.NoError(t, err)
	eng.WaitBackground()

	var summary string
	require.NoError(t, store.DB().QueryRow(
		`SELECT summary FROM memories WHERE user_id = ?`, "u1",
	).Scan(&summary))
	assert.Contains(t, summary, "user: tell me about glaciers")
	assert.Contains(t, summary, "assistant: glaciers are rivers of ice")
}

func TestSummarizationEmptySummarySkipped(t *testing.T) {
	cases := []struct {
		name     string
		response string
	}{
		{"empty", `{"summary": ""}`},
		{"whitespace only", "{\"summary\": \"   \\n\\t \"}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newTestStore(t)
			summarizer := &mockCompleter{response: tc.response}
			eng := newTestEngine(t, Options{Store: store, Summarizer: summarizer, SummaryThreshold: 2})
			ctx := context.Background()

			_, err := eng.Append(ctx, "u1", types.RoleUser, "hello")
			require.NoError(t, err)
			_, err = eng.Append(ctx, "u1", types.RoleAssistant, "hi there")
			require.NoError(t, err)
			eng.WaitBackground()

			assert.Equal(t, 0, countRows(t, store.DB(), `SELECT COUNT(*) FROM memories WHERE user_id = ?`, "u1"))
		})
	}
}

func TestRetentionPrunesAfterAssistantTurn(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, Options{Store: store, RetentionDays: 1})
	ctx := context.Background()

	// Seed a message well past the retention window.
	old := &types.Message{
		ID: "old", UserID: "u1", Role: types.RoleUser,
		Content: "ancient message", Timestamp: time.Now().Add(-48 * time.Hour).Unix(),
	}
	require.NoError(t, store.AppendMessage(ctx, old))

	_, err := eng.Append(ctx, "u1", types.RoleAssistant, "a fresh reply")
	require.NoError(t, err)
	eng.WaitBackground()

	history, err := eng.History(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "a fresh reply", history[0].Content)
}

func TestHistoryLimitThroughEngine(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(t, Options{Store: store})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		msg := &types.Message{
			ID: fmt.Sprintf("m%d", i), UserID: "u1", Role: types.RoleUser,
			Content: fmt.Sprintf("message %d", i), Timestamp: int64(1000 + i),
		}
		require.NoError(t, store.AppendMessage(ctx, msg))
	}

	history, err := eng.History(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "message 2", history[0].Content)
	assert.Equal(t, "message 3", history[1].Content)
}
