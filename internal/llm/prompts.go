package llm

import (
	"fmt"
	"strings"
)

// SummarizationPrompt builds the compaction prompt for a conversation
// transcript. The model is asked for a single JSON object matching the
// schema parsed by ParseSummaryResponse.
func SummarizationPrompt(transcript string) string {
	var b strings.Builder
	b.WriteString("You compact conversation history into durable memory for a personal assistant.\n")
	b.WriteString("Summarize the following transcript and extract notable entities and facts.\n\n")
	b.WriteString("Respond with ONLY a JSON object, no prose, matching this schema:\n")
	b.WriteString(`{
  "summary": "one concise paragraph capturing what matters long-term",
  "tags": ["optional", "topic", "tags"],
  "entities": [{"name": "Alps", "type": "place"}],
  "facts": [{"subject": "user", "predicate": "enjoys", "object": "hiking", "confidence": 0.9}]
}`)
	b.WriteString("\n\nTranscript:\n")
	b.WriteString(transcript)
	return b.String()
}

// RerankPrompt builds the reranking prompt. Candidates are presented
// with their zero-based indices; the model returns the indices sorted by
// descending relevance as {"order": [...]}.
func RerankPrompt(query string, candidates []string) string {
	var b strings.Builder
	b.WriteString("Rank the following memory snippets by relevance to the query.\n")
	b.WriteString("Respond with ONLY a JSON object of the form {\"order\": [indices sorted most relevant first]}.\n\n")
	fmt.Fprintf(&b, "Query: %s\n\nCandidates:\n", query)
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] %s\n", i, c)
	}
	return b.String()
}
