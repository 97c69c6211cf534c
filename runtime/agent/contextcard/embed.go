package contextcard

import (
	"context"
	"fmt"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Embedder turns summaries into embedding vectors. Embed is always called
// with a batch of texts — the worker pool never embeds one summary at a
// time (§4.11: "batched via the embedding provider").
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingsClient captures the subset of the OpenAI SDK client used by
// OpenAIEmbedder, the same narrow-interface seam
// features/model/openai.ChatCompletionsClient uses for chat completions.
type EmbeddingsClient interface {
	New(ctx context.Context, body sdk.EmbeddingNewParams, opts ...option.RequestOption) (*sdk.CreateEmbeddingResponse, error)
}

// OpenAIEmbedder implements Embedder via the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	Client EmbeddingsClient
	Model  string
}

const defaultEmbeddingModel = "text-embedding-3-small"

// Embed implements Embedder.
func (e OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	model := e.Model
	if model == "" {
		model = defaultEmbeddingModel
	}

	resp, err := e.Client.New(ctx, sdk.EmbeddingNewParams{
		Input: sdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: sdk.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("contextcard: embed: %w", err)
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			vec[j] = float32(f)
		}
		vectors[i] = vec
	}
	return vectors, nil
}
