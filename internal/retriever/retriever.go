package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"archrag/config"
	"archrag/internal/index"
	"archrag/pkg/logger"

	milvusclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	milvusentity "github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// Filters constrains a search. An empty Category matches everything.
type Filters struct {
	Category string
}

// Hit is a single vector search result with chunk metadata.
type Hit struct {
	ChunkID   int64
	Score     float32
	DocID     string
	Category  string
	Page      int32
	ChunkHash string
	Content   string
}

// EmbedQuestion embeds a single question string and returns its vector.
func EmbedQuestion(ctx context.Context, question string) ([]float32, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New("question is empty")
	}
	vecs, err := index.EmbedTexts(ctx, []string{question})
	if err != nil {
		logger.Error(err, "%v: embed question failed", config.ModuleRetriever)
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, errors.New("no embedding returned")
	}
	return vecs[0], nil
}

// Search performs a vector similarity search and returns topK hits.
func Search(ctx context.Context, query []float32, topK int, filters Filters) ([]Hit, error) {
	if topK <= 0 {
		topK = config.Cfg.Retriever.TopK
	}
	if len(query) == 0 {
		return []Hit{}, nil
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	cli, err := milvusclient.NewClient(ctx, milvusclient.Config{Address: config.Cfg.Milvus.Address})
	if err != nil {
		return nil, err
	}
	defer cli.Close()

	collection := config.Cfg.Milvus.Collection
	exists, err := cli.HasCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("collection %q not found, run index first", collection)
	}
	if err := cli.LoadCollection(ctx, collection, false); err != nil {
		return nil, err
	}

	searchParam, err := milvusentity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, err
	}

	expr := buildExpr(filters)
	outputFields := []string{"id", "doc_id", "category", "page", "chunk_hash", "content"}
	vectors := []milvusentity.Vector{milvusentity.FloatVector(query)}

	start := time.Now()
	results, err := cli.Search(
		ctx,
		collection,
		nil,
		expr,
		outputFields,
		vectors,
		"embedding",
		milvusentity.MetricType(config.Cfg.Milvus.IndexHNSWConfig.MetricType),
		topK,
		searchParam,
	)
	if err != nil {
		logger.Error(err, "%v: milvus search failed", config.ModuleRetriever)
		return nil, err
	}
	logger.Debug("%v: milvus search done in %dms", config.ModuleRetriever, time.Since(start).Milliseconds())

	if len(results) == 0 {
		return []Hit{}, nil
	}
	it := results[0]

	hits := make([]Hit, 0, it.ResultCount)
	for i := 0; i < it.ResultCount; i++ {
		var h Hit
		if ids, ok := it.IDs.(*milvusentity.ColumnInt64); ok {
			h.ChunkID = ids.Data()[i]
		}
		h.Score = float32(it.Scores[i])

		for _, field := range it.Fields {
			switch col := field.(type) {
			case *milvusentity.ColumnInt32:
				if col.Name() == "page" {
					h.Page = col.Data()[i]
				}
			case *milvusentity.ColumnVarChar:
				switch col.Name() {
				case "doc_id":
					h.DocID = col.Data()[i]
				case "category":
					h.Category = col.Data()[i]
				case "chunk_hash":
					h.ChunkHash = col.Data()[i]
				case "content":
					h.Content = col.Data()[i]
				}
			}
		}
		hits = append(hits, h)
	}
	return hits, nil
}

func buildExpr(f Filters) string {
	if f.Category == "" {
		return ""
	}
	return fmt.Sprintf("category == %q", f.Category)
}
