package index

import (
	"context"
	"fmt"
	"strconv"

	"archrag/config"
	"archrag/internal/chunk"

	milvusclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	milvusentity "github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const maxContentLength = 65535

// ChunkID derives a deterministic int64 primary key from a chunk's content
// hash, so re-indexing the same corpus produces the same keys.
func ChunkID(chunkHash string) int64 {
	if len(chunkHash) < 16 {
		return 0
	}
	v, err := strconv.ParseUint(chunkHash[:16], 16, 64)
	if err != nil {
		return 0
	}
	return int64(v >> 1)
}

// UpsertVectors ensures the collection exists and inserts the chunks with
// their embeddings. Returns the number of rows written.
func UpsertVectors(ctx context.Context, recs []chunk.ChunkRecord, vectors [][]float32) (int, error) {
	if len(recs) != len(vectors) {
		return 0, fmt.Errorf("record/vector count mismatch: %d vs %d", len(recs), len(vectors))
	}
	if len(recs) == 0 {
		return 0, nil
	}

	cli, err := milvusclient.NewClient(ctx, milvusclient.Config{Address: config.Cfg.Milvus.Address})
	if err != nil {
		return 0, err
	}
	defer cli.Close()

	collection := config.Cfg.Milvus.Collection
	exists, err := cli.HasCollection(ctx, collection)
	if err != nil {
		return 0, err
	}
	if !exists {
		if err := createCollection(ctx, cli, collection); err != nil {
			return 0, err
		}
	}

	ids := make([]int64, len(recs))
	docIDs := make([]string, len(recs))
	categories := make([]string, len(recs))
	pages := make([]int32, len(recs))
	hashes := make([]string, len(recs))
	contents := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = ChunkID(r.ChunkHash)
		docIDs[i] = r.DocID
		categories[i] = r.Category
		pages[i] = int32(r.PageSpan[0])
		hashes[i] = r.ChunkHash
		contents[i] = r.Text
	}

	cols := []milvusentity.Column{
		milvusentity.NewColumnInt64("id", ids),
		milvusentity.NewColumnVarChar("doc_id", docIDs),
		milvusentity.NewColumnVarChar("category", categories),
		milvusentity.NewColumnInt32("page", pages),
		milvusentity.NewColumnVarChar("chunk_hash", hashes),
		milvusentity.NewColumnVarChar("content", contents),
		milvusentity.NewColumnFloatVector("embedding", config.Cfg.Milvus.VectorDim, vectors),
	}
	if _, err := cli.Insert(ctx, collection, "", cols...); err != nil {
		return 0, err
	}
	return len(recs), nil
}

func createCollection(ctx context.Context, cli milvusclient.Client, collection string) error {
	mc := config.Cfg.Milvus

	schema := milvusentity.NewSchema().WithName(collection).WithDescription("architecture document chunks")
	schema.WithField(milvusentity.NewField().WithName("id").WithDataType(milvusentity.FieldTypeInt64).WithIsPrimaryKey(true))
	schema.WithField(milvusentity.NewField().WithName("doc_id").WithDataType(milvusentity.FieldTypeVarChar).WithMaxLength(512))
	schema.WithField(milvusentity.NewField().WithName("category").WithDataType(milvusentity.FieldTypeVarChar).WithMaxLength(256))
	schema.WithField(milvusentity.NewField().WithName("page").WithDataType(milvusentity.FieldTypeInt32))
	schema.WithField(milvusentity.NewField().WithName("chunk_hash").WithDataType(milvusentity.FieldTypeVarChar).WithMaxLength(64))
	schema.WithField(milvusentity.NewField().WithName("content").WithDataType(milvusentity.FieldTypeVarChar).WithMaxLength(maxContentLength))
	schema.WithField(milvusentity.NewField().WithName("embedding").WithDataType(milvusentity.FieldTypeFloatVector).WithDim(int64(mc.VectorDim)))

	if err := cli.CreateCollection(ctx, schema, 2); err != nil {
		return err
	}

	idx, err := milvusentity.NewIndexHNSW(
		milvusentity.MetricType(mc.IndexHNSWConfig.MetricType),
		mc.IndexHNSWConfig.M,
		mc.IndexHNSWConfig.EfConstruction,
	)
	if err != nil {
		return err
	}
	return cli.CreateIndex(ctx, collection, "embedding", idx, false)
}
