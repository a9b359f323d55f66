package index

import (
	"context"
	"errors"

	"archrag/config"
	"archrag/pkg/logger"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// embeddingBatchSize caps one embeddings request.
const embeddingBatchSize = 100

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// EmbedTexts embeds the inputs through the OpenAI embeddings endpoint in
// batches and returns one vector per input, in order.
func EmbedTexts(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	key := config.Cfg.OpenAI.Key
	if key == "" {
		return nil, errors.New("missing openai key")
	}

	var all [][]float32
	for i := 0; i < len(inputs); i += embeddingBatchSize {
		j := i + embeddingBatchSize
		if j > len(inputs) {
			j = len(inputs)
		}
		batch := inputs[i:j]

		vectors, err := embedBatch(ctx, key, batch)
		if err != nil {
			logger.Error(err, "embedding batch [%d:%d] failed", i, j)
			return nil, err
		}
		logger.Debug("embedded batch [%d:%d] -> %d vector(s)", i, j, len(vectors))
		all = append(all, vectors...)
	}
	return all, nil
}

func embedBatch(ctx context.Context, apiKey string, batch []string) ([][]float32, error) {
	client := openai.NewClient(option.WithAPIKey(apiKey))

	reqBody := embeddingRequest{Model: config.Cfg.OpenAI.EmbeddingModel, Input: batch}
	var out embeddingResponse
	if err := client.Post(ctx, "/embeddings", reqBody, &out); err != nil {
		return nil, err
	}
	if out.Error != nil {
		return nil, errors.New(out.Error.Message)
	}

	vectors := make([][]float32, len(out.Data))
	for i := range out.Data {
		src := out.Data[i].Embedding
		vec := make([]float32, len(src))
		for k := range src {
			vec[k] = float32(src[k])
		}
		vectors[i] = vec
	}
	return vectors, nil
}
