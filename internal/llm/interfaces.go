// Package llm abstracts the language-model capabilities the memory
// engine consumes: text completion (summarization, reranking) and
// vector embeddings. Every capability is optional at the engine level;
// the engine degrades gracefully when one is absent.
package llm

import "context"

// TextGenerator is the interface for LLM text completion. Structured
// outputs (summaries, rerank orders) are requested by embedding a JSON
// schema in the prompt and parsed with the tolerant parsers in this
// package.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
// GetEmbeddingModel names the embedding model specifically: providers
// often run completions and embeddings on different models, and cache
// keys derived from this name must change when the embedding model does.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetEmbeddingModel() string
}
