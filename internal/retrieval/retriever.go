// Package retrieval builds the grounding context for a visitor question from
// the business's embedded knowledge base.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/helpdesk-agent/backend/internal/metrics"
	"github.com/helpdesk-agent/backend/internal/vector/milvus"
	"github.com/helpdesk-agent/backend/pkg/logger"
	"github.com/helpdesk-agent/backend/pkg/utils"
)

const embeddingCacheTTL = time.Hour

type ChunkCounter interface {
	CountEmbeddedChunks(ctx context.Context, businessID string) (int, error)
}

type VectorSearcher interface {
	Search(ctx context.Context, businessID string, queryEmbedding []float32, similarityThreshold float64, limit int) ([]milvus.Match, error)
}

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingCache is optional; a nil cache disables caching without changing
// behavior.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

// Result carries the assembled context block and the highest similarity
// among returned matches. TopSimilarity is nil when nothing was searched or
// nothing matched, which callers treat differently from a low score.
type Result struct {
	Context       string
	TopSimilarity *float64
	Matches       []milvus.Match
}

type Retriever struct {
	counter         ChunkCounter
	vectors         VectorSearcher
	embedder        Embedder
	cache           EmbeddingCache
	similarityFloor float64
	matchCount      int
}

func NewRetriever(counter ChunkCounter, vectors VectorSearcher, embedder Embedder, cache EmbeddingCache, similarityFloor float64, matchCount int) *Retriever {
	return &Retriever{
		counter:         counter,
		vectors:         vectors,
		embedder:        embedder,
		cache:           cache,
		similarityFloor: similarityFloor,
		matchCount:      matchCount,
	}
}

// Retrieve embeds the query and searches the business's knowledge. When the
// business has no embedded chunks at all it returns an empty result without
// calling the embedding provider, so knowledge-less businesses cost nothing
// per message.
func (r *Retriever) Retrieve(ctx context.Context, businessID, query string) (*Result, error) {
	count, err := r.counter.CountEmbeddedChunks(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		logger.Debug("No embedded knowledge for business, skipping retrieval",
			zap.String("business_id", businessID),
		)
		return &Result{}, nil
	}

	embedding, err := r.queryEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := r.vectors.Search(ctx, businessID, embedding, r.similarityFloor, r.matchCount)
	if err != nil {
		return nil, err
	}

	metrics.RetrievalMatches.Observe(float64(len(matches)))

	if len(matches) == 0 {
		return &Result{}, nil
	}

	// Matches arrive ordered by similarity descending; the first one is the
	// confidence signal.
	top := matches[0].Similarity
	for _, m := range matches[1:] {
		if m.Similarity > top {
			top = m.Similarity
		}
	}
	metrics.TopSimilarity.Observe(top)

	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = fmt.Sprintf("[Context %d]:\n%s", i+1, m.Content)
	}

	return &Result{
		Context:       strings.Join(parts, "\n\n"),
		TopSimilarity: &top,
		Matches:       matches,
	}, nil
}

func (r *Retriever) queryEmbedding(ctx context.Context, query string) ([]float32, error) {
	if r.cache == nil {
		return r.embedder.GenerateEmbedding(ctx, query)
	}

	hash := utils.HashString(query)

	cached, ok, err := r.cache.GetEmbedding(ctx, hash)
	if err != nil {
		logger.Warn("Embedding cache read failed", zap.Error(err))
	}
	if ok {
		metrics.EmbeddingCacheHits.WithLabelValues("hit").Inc()
		return cached, nil
	}
	metrics.EmbeddingCacheHits.WithLabelValues("miss").Inc()

	embedding, err := r.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}

	if err := r.cache.SetEmbedding(ctx, hash, embedding, embeddingCacheTTL); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}

	return embedding, nil
}
