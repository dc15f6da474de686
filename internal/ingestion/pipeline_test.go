package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk-agent/backend/internal/storage/models"
	"github.com/helpdesk-agent/backend/internal/vector/milvus"
)

type mockStore struct {
	mu             sync.Mutex
	chunks         map[string]*models.KnowledgeChunk
	statuses       map[string]string
	deleteCalls    int
	insertFailures int
}

func newMockStore() *mockStore {
	return &mockStore{
		chunks:   make(map[string]*models.KnowledgeChunk),
		statuses: make(map[string]string),
	}
}

func (s *mockStore) UpdateSourceStatus(ctx context.Context, sourceID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[sourceID] = status
	return nil
}

func (s *mockStore) DeleteChunksBySource(ctx context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	for id, chunk := range s.chunks {
		if chunk.SourceID == sourceID {
			delete(s.chunks, id)
		}
	}
	return nil
}

func (s *mockStore) InsertChunk(ctx context.Context, chunk *models.KnowledgeChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertFailures > 0 {
		s.insertFailures--
		return errors.New("insert failed")
	}
	copied := *chunk
	s.chunks[chunk.ID] = &copied
	return nil
}

func (s *mockStore) MarkChunkEmbedded(ctx context.Context, chunkID, embeddingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chunk, ok := s.chunks[chunkID]
	if !ok {
		return errors.New("chunk not found")
	}
	chunk.EmbeddingID = embeddingID
	return nil
}

func (s *mockStore) GetChunk(ctx context.Context, chunkID string) (*models.KnowledgeChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chunk, ok := s.chunks[chunkID]
	if !ok {
		return nil, errors.New("chunk not found")
	}
	copied := *chunk
	return &copied, nil
}

func (s *mockStore) ListChunksMissingEmbedding(ctx context.Context) ([]models.KnowledgeChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.KnowledgeChunk
	for _, chunk := range s.chunks {
		if !chunk.Embedded() {
			out = append(out, *chunk)
		}
	}
	return out, nil
}

func (s *mockStore) status(sourceID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[sourceID]
}

func (s *mockStore) embeddedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, chunk := range s.chunks {
		if chunk.Embedded() {
			n++
		}
	}
	return n
}

type mockVectors struct {
	mu          sync.Mutex
	inserted    []milvus.ChunkVector
	deleteCalls int
	failInsert  bool
}

func (v *mockVectors) Insert(ctx context.Context, vectors []milvus.ChunkVector) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failInsert {
		return errors.New("vector insert failed")
	}
	v.inserted = append(v.inserted, vectors...)
	return nil
}

func (v *mockVectors) DeleteBySource(ctx context.Context, sourceID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.deleteCalls++
	return nil
}

type mockEmbedder struct {
	mu       sync.Mutex
	calls    int
	failures int
}

func (e *mockEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.failures > 0 {
		e.failures--
		return nil, errors.New("embedding failed")
	}
	return make([]float32, 4), nil
}

func ingestText(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteString(fmt.Sprintf("Feature number %d lets customers configure their workspace in a useful way. ", i))
	}
	return sb.String()
}

func TestIngestSourceSuccess(t *testing.T) {
	store := newMockStore()
	vectors := &mockVectors{}
	embedder := &mockEmbedder{}
	p := NewPipeline(store, vectors, embedder, nil)

	stats, err := p.IngestSource(context.Background(), "src-1", "biz-1", ingestText(20), models.SourceTypeText)
	require.NoError(t, err)

	assert.Equal(t, stats.TotalChunks, stats.Succeeded)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, models.SourceStatusReady, store.status("src-1"))
	assert.Equal(t, stats.Succeeded, store.embeddedCount())
	assert.Len(t, vectors.inserted, stats.Succeeded)
}

func TestIngestSourceAllOrNothing(t *testing.T) {
	store := newMockStore()
	vectors := &mockVectors{}
	embedder := &mockEmbedder{failures: 1}
	p := NewPipeline(store, vectors, embedder, nil)

	stats, err := p.IngestSource(context.Background(), "src-1", "biz-1", ingestText(40), models.SourceTypeText)
	require.Error(t, err)

	// One chunk failed to embed, so the whole source is marked error even
	// though the rest succeeded.
	assert.Equal(t, 1, stats.Failed)
	assert.Greater(t, stats.Succeeded, 0)
	assert.Equal(t, models.SourceStatusError, store.status("src-1"))
}

func TestIngestSourceEmptyInput(t *testing.T) {
	store := newMockStore()
	vectors := &mockVectors{}
	embedder := &mockEmbedder{}
	p := NewPipeline(store, vectors, embedder, nil)

	_, err := p.IngestSource(context.Background(), "src-1", "biz-1", "", models.SourceTypeText)
	require.Error(t, err)
	assert.Equal(t, models.SourceStatusError, store.status("src-1"))
	assert.Zero(t, embedder.calls)
}

func TestIngestSourceIdempotentRerun(t *testing.T) {
	store := newMockStore()
	vectors := &mockVectors{}
	embedder := &mockEmbedder{}
	p := NewPipeline(store, vectors, embedder, nil)

	text := ingestText(20)

	first, err := p.IngestSource(context.Background(), "src-1", "biz-1", text, models.SourceTypeText)
	require.NoError(t, err)

	second, err := p.IngestSource(context.Background(), "src-1", "biz-1", text, models.SourceTypeText)
	require.NoError(t, err)

	// The rerun replaced, not duplicated, the chunks.
	assert.Equal(t, first.Succeeded, second.Succeeded)
	assert.Equal(t, second.Succeeded, len(store.chunks))
	assert.Equal(t, 2, store.deleteCalls)
	assert.Equal(t, 2, vectors.deleteCalls)
}

func TestIngestSourceHTMLCleaning(t *testing.T) {
	store := newMockStore()
	vectors := &mockVectors{}
	embedder := &mockEmbedder{}
	p := NewPipeline(store, vectors, embedder, nil)

	html := `<html><head><style>.x{color:red}</style></head><body>
<nav>Home About Pricing</nav>
<p>Our premium plan includes unlimited projects and priority support for every member of the team.</p>
<script>alert("hi")</script>
</body></html>`

	_, err := p.IngestSource(context.Background(), "src-1", "biz-1", html, models.SourceTypeHTML)
	require.NoError(t, err)

	for _, chunk := range store.chunks {
		assert.NotContains(t, chunk.Content, "alert")
		assert.NotContains(t, chunk.Content, "color:red")
		assert.Contains(t, chunk.Content, "premium plan")
	}
}

func TestBackfillEmbedsMissingChunks(t *testing.T) {
	store := newMockStore()
	vectors := &mockVectors{}
	embedder := &mockEmbedder{}
	p := NewPipeline(store, vectors, embedder, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.InsertChunk(context.Background(), &models.KnowledgeChunk{
			ID:         fmt.Sprintf("chunk-%d", i),
			BusinessID: "biz-1",
			SourceID:   "src-1",
			ChunkIndex: i,
			Content:    "Some knowledge content that was never embedded.",
		}))
	}
	require.NoError(t, store.InsertChunk(context.Background(), &models.KnowledgeChunk{
		ID:          "chunk-done",
		BusinessID:  "biz-1",
		SourceID:    "src-1",
		Content:     "Already embedded.",
		EmbeddingID: "chunk-done",
	}))

	stats, err := p.Backfill(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalChunks)
	assert.Equal(t, 3, stats.Succeeded)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, 4, store.embeddedCount())
	assert.Equal(t, 3, embedder.calls)
}

func TestBackfillSkipsEmptyContent(t *testing.T) {
	store := newMockStore()
	vectors := &mockVectors{}
	embedder := &mockEmbedder{}
	p := NewPipeline(store, vectors, embedder, nil)

	require.NoError(t, store.InsertChunk(context.Background(), &models.KnowledgeChunk{
		ID:         "chunk-empty",
		BusinessID: "biz-1",
		SourceID:   "src-1",
	}))

	stats, err := p.Backfill(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Succeeded)
	assert.Zero(t, embedder.calls)
}

func TestBackfillCountsFailures(t *testing.T) {
	store := newMockStore()
	vectors := &mockVectors{failInsert: true}
	embedder := &mockEmbedder{}
	p := NewPipeline(store, vectors, embedder, nil)

	require.NoError(t, store.InsertChunk(context.Background(), &models.KnowledgeChunk{
		ID:         "chunk-1",
		BusinessID: "biz-1",
		SourceID:   "src-1",
		Content:    "Knowledge that will fail to reach the vector store.",
	}))

	stats, err := p.Backfill(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Failed)
	assert.Zero(t, stats.Succeeded)
}
