package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SummaryEntity is one entity extracted by the summarization model.
type SummaryEntity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// SummaryFact is one subject/predicate/object triple extracted by the
// summarization model.
type SummaryFact struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence,omitempty"`
}

// SummaryResponse is the structured compaction result.
type SummaryResponse struct {
	Summary  string          `json:"summary"`
	Tags     []string        `json:"tags,omitempty"`
	Entities []SummaryEntity `json:"entities,omitempty"`
	Facts    []SummaryFact   `json:"facts,omitempty"`
}

// RerankResponse carries candidate indices sorted by descending
// relevance.
type RerankResponse struct {
	Order []int `json:"order"`
}

// ParseSummaryResponse parses the summarization model's JSON output.
// It tolerates markdown fences and prose around the JSON object; it
// returns an error only when no well-formed object can be recovered.
func ParseSummaryResponse(raw string) (*SummaryResponse, error) {
	var resp SummaryResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return nil, fmt.Errorf("llm: parse summary response: %w", err)
	}
	return &resp, nil
}

// ParseRerankResponse parses the reranker's JSON output. Out-of-range
// indices are the caller's concern; this only validates JSON shape.
func ParseRerankResponse(raw string) (*RerankResponse, error) {
	var resp RerankResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return nil, fmt.Errorf("llm: parse rerank response: %w", err)
	}
	return &resp, nil
}

// extractJSON extracts the first balanced JSON object from a string that
// may contain extra text. LLMs add explanations and markdown fences
// around JSON despite instructions, so the parsers run on the recovered
// object rather than the raw completion.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	depth := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		ch := text[i]

		if escape {
			escape = false
			continue
		}
		if ch == '\\' {
			escape = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}

	return text
}
