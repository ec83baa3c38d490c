package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOllamaClientReportsModelsPerCapability(t *testing.T) {
	client := NewOllamaClient(OllamaConfig{Model: "gen-model", EmbeddingModel: "embed-model"})

	// The embedding facet must name the embedding model: cache keys are
	// prefixed with it, so reporting the completion model here would
	// serve stale vectors after an embedding-model change.
	assert.Equal(t, "gen-model", client.GetModel())
	assert.Equal(t, "embed-model", client.GetEmbeddingModel())
}

func TestOllamaClientEmbeddingModelDefaultsToModel(t *testing.T) {
	client := NewOllamaClient(OllamaConfig{Model: "gen-model"})

	assert.Equal(t, "gen-model", client.GetEmbeddingModel())
}

func TestOpenAIClientReportsModelsPerCapability(t *testing.T) {
	client := NewOpenAIClient(OpenAIConfig{Model: "gen-model", EmbeddingModel: "embed-model"})

	assert.Equal(t, "gen-model", client.GetModel())
	assert.Equal(t, "embed-model", client.GetEmbeddingModel())
}
