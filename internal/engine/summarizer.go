package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/engramdev/engram/internal/llm"
	"github.com/engramdev/engram/pkg/types"
)

// summarize compacts a user's most recent turns into a Memory, plus
// extracted entities and facts, once the message count reaches a
// multiple of the threshold. It runs in the background after assistant
// turns and is strictly best-effort: every failure is logged and
// swallowed, never surfaced to the conversation.
func (e *Engine) summarize(ctx context.Context, userID string) {
	count, err := e.store.CountMessages(ctx, userID)
	if err != nil {
		log.Printf("engine: summarize: count messages for %s: %v", userID, err)
		return
	}
	if count == 0 || count%e.summaryThreshold != 0 {
		return
	}

	msgs, err := e.store.History(ctx, userID, e.summaryThreshold)
	if err != nil {
		log.Printf("engine: summarize: fetch window for %s: %v", userID, err)
		return
	}
	if len(msgs) == 0 {
		return
	}

	transcript := buildTranscript(msgs)

	resp := e.summarizeTranscript(ctx, transcript)
	if strings.TrimSpace(resp.Summary) == "" {
		log.Printf("engine: summarize: empty summary for %s, skipping", userID)
		return
	}

	mem := &types.Memory{
		ID:        uuid.NewString(),
		UserID:    userID,
		Summary:   resp.Summary,
		Tags:      strings.Join(resp.Tags, ","),
		CreatedAt: time.Now(),
	}
	if err := e.store.StoreMemory(ctx, mem); err != nil {
		log.Printf("engine: summarize: store memory for %s: %v", userID, err)
		return
	}

	e.persistEntities(ctx, mem, resp.Entities)
	e.persistFacts(ctx, mem, resp.Facts)
}

// summarizeTranscript runs the compaction prompt. When the model fails
// or returns garbage, the raw transcript becomes the summary so the
// window is never silently lost.
func (e *Engine) summarizeTranscript(ctx context.Context, transcript string) *llm.SummaryResponse {
	completion, err := e.summarizer.Complete(ctx, llm.SummarizationPrompt(transcript))
	if err != nil {
		log.Printf("engine: summarize: completion failed, keeping raw transcript: %v", err)
		return &llm.SummaryResponse{Summary: transcript}
	}

	resp, err := llm.ParseSummaryResponse(completion)
	if err != nil {
		log.Printf("engine: summarize: unparseable completion, keeping raw transcript: %v", err)
		return &llm.SummaryResponse{Summary: transcript}
	}
	return resp
}

// persistEntities stores extracted entities with provenance: a
// MemoryLink back to the memory and a MENTIONED_IN edge. Nameless
// entities are skipped; individual failures do not stop the batch.
func (e *Engine) persistEntities(ctx context.Context, mem *types.Memory, entities []llm.SummaryEntity) {
	for _, se := range entities {
		if se.Name == "" {
			continue
		}

		ent := &types.Entity{
			ID:         uuid.NewString(),
			UserID:     mem.UserID,
			Name:       se.Name,
			EntityType: se.Type,
		}
		if err := e.store.StoreEntity(ctx, ent); err != nil {
			log.Printf("engine: summarize: store entity %q: %v", se.Name, err)
			continue
		}

		e.linkNode(ctx, mem, types.NodeEntity, ent.ID, types.EdgeMentionedIn)
	}
}

// persistFacts stores extracted triples with provenance and a CONTAINS
// edge. Incomplete triples are skipped.
func (e *Engine) persistFacts(ctx context.Context, mem *types.Memory, facts []llm.SummaryFact) {
	for _, sf := range facts {
		if sf.Subject == "" || sf.Predicate == "" || sf.Object == "" {
			continue
		}

		fact := &types.Fact{
			ID:         uuid.NewString(),
			UserID:     mem.UserID,
			Subject:    sf.Subject,
			Predicate:  sf.Predicate,
			Object:     sf.Object,
			Confidence: sf.Confidence,
			Source:     mem.ID,
		}
		if err := e.store.StoreFact(ctx, fact); err != nil {
			log.Printf("engine: summarize: store fact %s/%s/%s: %v", sf.Subject, sf.Predicate, sf.Object, err)
			continue
		}

		e.linkNode(ctx, mem, types.NodeFact, fact.ID, types.EdgeContains)
	}
}

// linkNode records the provenance link and typed edge from a memory to
// a node it produced.
func (e *Engine) linkNode(ctx context.Context, mem *types.Memory, nodeType types.NodeType, nodeID string, edgeType types.EdgeType) {
	link := &types.MemoryLink{
		ID:        uuid.NewString(),
		MemoryID:  mem.ID,
		NodeType:  nodeType,
		NodeID:    nodeID,
		CreatedAt: time.Now(),
	}
	if err := e.store.StoreMemoryLink(ctx, link); err != nil {
		log.Printf("engine: summarize: store memory link for %s: %v", nodeID, err)
	}

	edge := &types.Edge{
		ID:          uuid.NewString(),
		UserID:      mem.UserID,
		SrcNodeType: types.NodeMemory,
		SrcNodeID:   mem.ID,
		DstNodeType: nodeType,
		DstNodeID:   nodeID,
		EdgeType:    edgeType,
		Weight:      1,
		CreatedAt:   time.Now(),
	}
	if err := e.store.StoreEdge(ctx, edge); err != nil {
		log.Printf("engine: summarize: store edge for %s: %v", nodeID, err)
	}
}

// buildTranscript renders the window as "[timestamp] role: content"
// lines in chronological order.
func buildTranscript(msgs []types.Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] %s: %s", time.Unix(m.Timestamp, 0).UTC().Format(time.RFC3339), m.Role, m.Content)
	}
	return b.String()
}
