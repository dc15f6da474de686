// Package ingestion turns a raw knowledge source into embedded, searchable
// chunks. Source status is all-or-nothing: ready only when every chunk is
// durably embedded, error otherwise. A source is never left in processing.
package ingestion

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpdesk-agent/backend/internal/chunker"
	"github.com/helpdesk-agent/backend/internal/metrics"
	"github.com/helpdesk-agent/backend/internal/storage/models"
	"github.com/helpdesk-agent/backend/internal/vector/milvus"
	"github.com/helpdesk-agent/backend/pkg/logger"
)

// Store is the slice of the relational client the pipeline needs.
type Store interface {
	UpdateSourceStatus(ctx context.Context, sourceID, status string) error
	DeleteChunksBySource(ctx context.Context, sourceID string) error
	InsertChunk(ctx context.Context, chunk *models.KnowledgeChunk) error
	MarkChunkEmbedded(ctx context.Context, chunkID, embeddingID string) error
	GetChunk(ctx context.Context, chunkID string) (*models.KnowledgeChunk, error)
	ListChunksMissingEmbedding(ctx context.Context) ([]models.KnowledgeChunk, error)
}

type VectorStore interface {
	Insert(ctx context.Context, vectors []milvus.ChunkVector) error
	DeleteBySource(ctx context.Context, sourceID string) error
}

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Stats reports partial progress for operability even though the source
// status itself is all-or-nothing.
type Stats struct {
	TotalChunks int
	Succeeded   int
	Failed      int
	Skipped     int
}

type Pipeline struct {
	store    Store
	vectors  VectorStore
	embedder Embedder
	chunker  *chunker.Chunker
}

func NewPipeline(store Store, vectors VectorStore, embedder Embedder, c *chunker.Chunker) *Pipeline {
	if c == nil {
		c = chunker.New(chunker.DefaultChunkSize, chunker.DefaultChunkOverlap, chunker.DefaultMinChunkSize)
	}
	return &Pipeline{
		store:    store,
		vectors:  vectors,
		embedder: embedder,
		chunker:  c,
	}
}

// IngestSource chunks and embeds rawText for an existing source record.
// Re-running after a failed attempt deletes and recreates the source's
// chunks, so the end state is always fully-embedded-ready or marked error,
// never a mix exposed to retrieval.
func (p *Pipeline) IngestSource(ctx context.Context, sourceID, businessID, rawText, sourceType string) (*Stats, error) {
	logger.Info("Ingesting knowledge source",
		zap.String("source_id", sourceID),
		zap.String("business_id", businessID),
		zap.String("type", sourceType),
	)

	stats := &Stats{}

	text := rawText
	if sourceType == models.SourceTypeHTML {
		text = cleanHTML(rawText)
	}

	chunks, err := p.chunker.Chunk(text)
	if err != nil {
		p.markError(ctx, sourceID)
		return stats, fmt.Errorf("chunking failed for source %s: %w", sourceID, err)
	}
	stats.TotalChunks = len(chunks)

	// Delete-and-recreate keeps re-ingestion idempotent.
	if err := p.store.DeleteChunksBySource(ctx, sourceID); err != nil {
		p.markError(ctx, sourceID)
		return stats, err
	}
	if err := p.vectors.DeleteBySource(ctx, sourceID); err != nil {
		p.markError(ctx, sourceID)
		return stats, err
	}

	for i, content := range chunks {
		chunkID := uuid.New().String()
		chunk := &models.KnowledgeChunk{
			ID:         chunkID,
			BusinessID: businessID,
			SourceID:   sourceID,
			ChunkIndex: i,
			Content:    content,
			CreatedAt:  time.Now(),
		}

		if err := p.store.InsertChunk(ctx, chunk); err != nil {
			logger.Error("Failed to persist chunk",
				zap.String("source_id", sourceID),
				zap.Int("chunk_index", i),
				zap.Error(err),
			)
			stats.Failed++
			continue
		}

		if err := p.embedChunk(ctx, chunk); err != nil {
			logger.Error("Failed to embed chunk after retries",
				zap.String("chunk_id", chunkID),
				zap.Int("chunk_index", i),
				zap.Error(err),
			)
			stats.Failed++
			continue
		}

		stats.Succeeded++
	}

	metrics.ChunksIngested.Add(float64(stats.Succeeded))

	status := models.SourceStatusReady
	if stats.Failed > 0 || stats.Succeeded == 0 {
		status = models.SourceStatusError
	}
	if err := p.store.UpdateSourceStatus(ctx, sourceID, status); err != nil {
		return stats, err
	}
	metrics.SourcesProcessed.WithLabelValues(status).Inc()

	logger.Info("Ingestion finished",
		zap.String("source_id", sourceID),
		zap.String("status", status),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
	)

	if status == models.SourceStatusError {
		return stats, fmt.Errorf("ingestion failed for source %s: %d of %d chunks failed",
			sourceID, stats.Failed, stats.TotalChunks)
	}
	return stats, nil
}

// embedChunk embeds one chunk and writes the vector; the chunk row is only
// marked embedded after the vector write succeeds, so a crash in between
// leaves it discoverable by the backfill sweep.
func (p *Pipeline) embedChunk(ctx context.Context, chunk *models.KnowledgeChunk) error {
	embedding, err := p.embedder.GenerateEmbedding(ctx, chunk.Content)
	if err != nil {
		return err
	}
	metrics.EmbeddingsGenerated.Inc()

	err = p.vectors.Insert(ctx, []milvus.ChunkVector{{
		ChunkID:    chunk.ID,
		BusinessID: chunk.BusinessID,
		SourceID:   chunk.SourceID,
		Content:    chunk.Content,
		Embedding:  embedding,
	}})
	if err != nil {
		return err
	}

	return p.store.MarkChunkEmbedded(ctx, chunk.ID, chunk.ID)
}

func (p *Pipeline) markError(ctx context.Context, sourceID string) {
	if err := p.store.UpdateSourceStatus(ctx, sourceID, models.SourceStatusError); err != nil {
		logger.Error("Failed to mark source as error",
			zap.String("source_id", sourceID),
			zap.Error(err),
		)
	}
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func cleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()
	text = whitespaceRe.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}
