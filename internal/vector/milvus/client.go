package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/helpdesk-agent/backend/pkg/logger"
)

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

// ChunkVector is one embedded knowledge chunk as stored in the collection.
type ChunkVector struct {
	ChunkID    string
	BusinessID string
	SourceID   string
	Content    string
	Embedding  []float32
}

// Match is a similarity-search hit. Similarity is a cosine score in [0, 1].
type Match struct {
	ChunkID    string
	SourceID   string
	Content    string
	Similarity float64
}

func NewClient(endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(
		context.Background(),
		endpoint,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) CreateCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Business knowledge base embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "business_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "source_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "content",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "4096",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// COSINE keeps search scores directly comparable to the similarity
	// floor and handoff threshold, both expressed in [0, 1].
	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

func (m *Client) Insert(ctx context.Context, vectors []ChunkVector) error {
	if len(vectors) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(vectors))
	businessIDs := make([]string, len(vectors))
	sourceIDs := make([]string, len(vectors))
	contents := make([]string, len(vectors))
	embeddings := make([][]float32, len(vectors))

	for i, v := range vectors {
		chunkIDs[i] = v.ChunkID
		businessIDs[i] = v.BusinessID
		sourceIDs[i] = v.SourceID
		contents[i] = v.Content
		embeddings[i] = v.Embedding
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnVarChar("business_id", businessIDs),
		entity.NewColumnVarChar("source_id", sourceIDs),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
	)
	if err != nil {
		return fmt.Errorf("failed to insert vectors: %w", err)
	}

	err = m.client.Flush(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Debug("Vectors inserted", zap.Int("count", len(vectors)))

	return nil
}

// Search runs a similarity search strictly scoped to one business. The
// expression filter is non-optional: rows from other businesses can never
// appear in the result set. Matches below the similarity threshold are
// dropped.
func (m *Client) Search(ctx context.Context, businessID string, queryEmbedding []float32, similarityThreshold float64, limit int) ([]Match, error) {
	expr := fmt.Sprintf(`business_id == "%s"`, businessID)

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"chunk_id", "source_id", "content"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.COSINE,
		limit,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	matches := make([]Match, 0)
	for _, sr := range searchResult {
		chunkIDCol := sr.Fields.GetColumn("chunk_id")
		sourceIDCol := sr.Fields.GetColumn("source_id")
		contentCol := sr.Fields.GetColumn("content")

		for i := 0; i < sr.ResultCount; i++ {
			similarity := float64(sr.Scores[i])
			if similarity < similarityThreshold {
				continue
			}

			chunkID, _ := chunkIDCol.Get(i)
			sourceID, _ := sourceIDCol.Get(i)
			content, _ := contentCol.Get(i)

			matches = append(matches, Match{
				ChunkID:    chunkID.(string),
				SourceID:   sourceID.(string),
				Content:    content.(string),
				Similarity: similarity,
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.String("business_id", businessID),
		zap.Int("limit", limit),
		zap.Int("matches", len(matches)),
	)

	return matches, nil
}

func (m *Client) DeleteBySource(ctx context.Context, sourceID string) error {
	expr := fmt.Sprintf(`source_id == "%s"`, sourceID)

	err := m.client.Delete(ctx, m.collectionName, "", expr)
	if err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}

	logger.Info("Vectors deleted for source", zap.String("source_id", sourceID))
	return nil
}
