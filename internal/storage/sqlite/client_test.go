package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/helpdesk-agent/backend/internal/errors"
	"github.com/helpdesk-agent/backend/internal/storage/models"
)

func testClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.InitSchema())
	return client
}

func insertTestSource(t *testing.T, c *Client, businessID string) *models.KnowledgeSource {
	t.Helper()

	source := &models.KnowledgeSource{
		ID:         fmt.Sprintf("src-%d", time.Now().UnixNano()),
		BusinessID: businessID,
		Name:       "FAQ",
		Type:       models.SourceTypeText,
		Status:     models.SourceStatusProcessing,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, c.InsertSource(context.Background(), source))
	return source
}

func TestSourceLifecycle(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	source := insertTestSource(t, c, "biz-1")

	got, err := c.GetSource(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusProcessing, got.Status)

	require.NoError(t, c.UpdateSourceStatus(ctx, source.ID, models.SourceStatusReady))
	got, err = c.GetSource(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusReady, got.Status)

	_, err = c.GetSource(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrSourceNotFoundError)
}

func TestDeleteSourceCrossBusiness(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	source := insertTestSource(t, c, "biz-1")

	err := c.DeleteSource(ctx, source.ID, "biz-2")
	assert.ErrorIs(t, err, apperrors.ErrCrossBusinessError)

	// Still present for the owner.
	_, err = c.GetSource(ctx, source.ID)
	assert.NoError(t, err)

	require.NoError(t, c.DeleteSource(ctx, source.ID, "biz-1"))
	_, err = c.GetSource(ctx, source.ID)
	assert.ErrorIs(t, err, apperrors.ErrSourceNotFoundError)
}

func TestDeleteSourceCascadesChunks(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	source := insertTestSource(t, c, "biz-1")
	require.NoError(t, c.InsertChunk(ctx, &models.KnowledgeChunk{
		ID:          "chunk-1",
		BusinessID:  "biz-1",
		SourceID:    source.ID,
		Content:     "content",
		EmbeddingID: "chunk-1",
		CreatedAt:   time.Now(),
	}))

	count, err := c.CountEmbeddedChunks(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, c.DeleteSource(ctx, source.ID, "biz-1"))

	count, err = c.CountEmbeddedChunks(ctx, "biz-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestChunkEmbeddingStates(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	source := insertTestSource(t, c, "biz-1")

	require.NoError(t, c.InsertChunk(ctx, &models.KnowledgeChunk{
		ID:         "chunk-pending",
		BusinessID: "biz-1",
		SourceID:   source.ID,
		Content:    "not embedded yet",
		CreatedAt:  time.Now(),
	}))

	count, err := c.CountEmbeddedChunks(ctx, "biz-1")
	require.NoError(t, err)
	assert.Zero(t, count, "unembedded chunks must not count toward retrieval")

	missing, err := c.ListChunksMissingEmbedding(ctx)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "chunk-pending", missing[0].ID)

	require.NoError(t, c.MarkChunkEmbedded(ctx, "chunk-pending", "chunk-pending"))

	count, err = c.CountEmbeddedChunks(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	missing, err = c.ListChunksMissingEmbedding(ctx)
	require.NoError(t, err)
	assert.Empty(t, missing)

	chunk, err := c.GetChunk(ctx, "chunk-pending")
	require.NoError(t, err)
	assert.True(t, chunk.Embedded())
}

func TestSourceCoverageReport(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	source := insertTestSource(t, c, "biz-1")
	for i := 0; i < 3; i++ {
		chunk := &models.KnowledgeChunk{
			ID:         fmt.Sprintf("chunk-%d", i),
			BusinessID: "biz-1",
			SourceID:   source.ID,
			ChunkIndex: i,
			Content:    "content",
			CreatedAt:  time.Now(),
		}
		if i < 2 {
			chunk.EmbeddingID = chunk.ID
		}
		require.NoError(t, c.InsertChunk(ctx, chunk))
	}

	coverage, err := c.ListSourceCoverage(ctx, "biz-1")
	require.NoError(t, err)
	require.Len(t, coverage, 1)

	assert.Equal(t, 3, coverage[0].TotalChunks)
	assert.Equal(t, 2, coverage[0].ChunksWithEmbeddings)
	assert.Equal(t, 1, coverage[0].ChunksMissingEmbedding)
	assert.False(t, coverage[0].Ready())
}

func TestGetOrCreateVisitorConversation(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	first, err := c.GetOrCreateVisitorConversation(ctx, "biz-1", "visitor-1")
	require.NoError(t, err)
	assert.Equal(t, models.ConversationOpen, first.Status)

	second, err := c.GetOrCreateVisitorConversation(ctx, "biz-1", "visitor-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "same visitor must get the same conversation")

	other, err := c.GetOrCreateVisitorConversation(ctx, "biz-2", "visitor-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID, "same visitor id under another business is a separate conversation")
}

func TestMessageOrderingBySeq(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	conv, err := c.GetOrCreateVisitorConversation(ctx, "biz-1", "visitor-1")
	require.NoError(t, err)

	// Insert with identical timestamps; seq must still give a total order.
	now := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, c.InsertMessage(ctx, &models.Message{
			ID:             fmt.Sprintf("msg-%d", i),
			ConversationID: conv.ID,
			Role:           models.RoleVisitor,
			Content:        fmt.Sprintf("message %d", i),
			CreatedAt:      now,
		}))
	}

	messages, err := c.GetMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 10)

	for i := 0; i < 10; i++ {
		assert.Equal(t, fmt.Sprintf("msg-%d", i), messages[i].ID)
		if i > 0 {
			assert.Greater(t, messages[i].Seq, messages[i-1].Seq)
		}
	}
}

func TestMarkEscalationNotifiedOnce(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	conv, err := c.GetOrCreateVisitorConversation(ctx, "biz-1", "visitor-1")
	require.NoError(t, err)

	first, err := c.MarkEscalationNotified(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := c.MarkEscalationNotified(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, second, "only the first caller wins the notification gate")
}

func TestEscalateIfOpenGuard(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	conv, err := c.GetOrCreateVisitorConversation(ctx, "biz-1", "visitor-1")
	require.NoError(t, err)

	escalated, err := c.EscalateIfOpen(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, escalated)

	got, err := c.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationWaitingForHuman, got.Status)

	// Already waiting; the second escalation does not win.
	escalated, err = c.EscalateIfOpen(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, escalated)

	// Closed is terminal; escalation must not overwrite it.
	require.NoError(t, c.UpdateConversationStatus(ctx, conv.ID, models.ConversationClosed))
	escalated, err = c.EscalateIfOpen(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, escalated)

	got, err = c.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationClosed, got.Status)
}

func TestReopenIfWaitingGuard(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	conv, err := c.GetOrCreateVisitorConversation(ctx, "biz-1", "visitor-1")
	require.NoError(t, err)

	// Open conversations are untouched.
	reopened, err := c.ReopenIfWaiting(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, reopened)

	require.NoError(t, c.UpdateConversationStatus(ctx, conv.ID, models.ConversationWaitingForHuman))
	reopened, err = c.ReopenIfWaiting(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, reopened)

	got, err := c.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationOpen, got.Status)

	// Closed is terminal; reopen must not resurrect it.
	require.NoError(t, c.UpdateConversationStatus(ctx, conv.ID, models.ConversationClosed))
	reopened, err = c.ReopenIfWaiting(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, reopened)
}

func TestHasHumanReply(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	conv, err := c.GetOrCreateVisitorConversation(ctx, "biz-1", "visitor-1")
	require.NoError(t, err)

	require.NoError(t, c.InsertMessage(ctx, &models.Message{
		ID:             "msg-ai",
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Sender:         models.SenderAI,
		Content:        "AI reply",
		CreatedAt:      time.Now(),
	}))

	has, err := c.HasHumanReply(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, c.InsertMessage(ctx, &models.Message{
		ID:             "msg-human",
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Sender:         models.SenderHuman,
		Content:        "human reply",
		CreatedAt:      time.Now(),
	}))

	has, err = c.HasHumanReply(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestSetConversationTitleOnce(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	conv, err := c.GetOrCreateVisitorConversation(ctx, "biz-1", "visitor-1")
	require.NoError(t, err)

	require.NoError(t, c.SetConversationTitle(ctx, conv.ID, "First title"))
	require.NoError(t, c.SetConversationTitle(ctx, conv.ID, "Second title"))

	got, err := c.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "First title", got.Title)
}

func TestAgentPresence(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	conv, err := c.GetOrCreateVisitorConversation(ctx, "biz-1", "visitor-1")
	require.NoError(t, err)

	require.NoError(t, c.SetAgentTyping(ctx, conv.ID, true))
	require.NoError(t, c.SetAgentSending(ctx, conv.ID))
	got, err := c.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.AgentTypingAt)
	assert.NotNil(t, got.AgentSendingAt)

	require.NoError(t, c.ClearAgentPresence(ctx, conv.ID))
	got, err = c.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AgentTypingAt)
	assert.Nil(t, got.AgentSendingAt)
}

func TestSettingsDefaultsAndUpsert(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	settings, err := c.GetSettings(ctx, "biz-1")
	require.NoError(t, err)
	assert.True(t, settings.EscalationNotificationsEnabled, "notifications default to enabled")
	assert.Empty(t, settings.NotificationEmail)

	require.NoError(t, c.UpsertSettings(ctx, &models.BusinessSettings{
		BusinessID:                     "biz-1",
		EscalationNotificationsEnabled: false,
		NotificationEmail:              "owner@example.com",
	}))

	settings, err = c.GetSettings(ctx, "biz-1")
	require.NoError(t, err)
	assert.False(t, settings.EscalationNotificationsEnabled)
	assert.Equal(t, "owner@example.com", settings.NotificationEmail)

	require.NoError(t, c.UpsertSettings(ctx, &models.BusinessSettings{
		BusinessID:                     "biz-1",
		EscalationNotificationsEnabled: true,
		NotificationEmail:              "new@example.com",
	}))

	settings, err = c.GetSettings(ctx, "biz-1")
	require.NoError(t, err)
	assert.True(t, settings.EscalationNotificationsEnabled)
	assert.Equal(t, "new@example.com", settings.NotificationEmail)
}

func TestCorruptMetadataDoesNotBreakReads(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	source := insertTestSource(t, c, "biz-1")
	require.NoError(t, c.InsertChunk(ctx, &models.KnowledgeChunk{
		ID:         "chunk-1",
		BusinessID: "biz-1",
		SourceID:   source.ID,
		Content:    "content",
		CreatedAt:  time.Now(),
	}))

	conv, err := c.GetOrCreateVisitorConversation(ctx, "biz-1", "visitor-1")
	require.NoError(t, err)
	require.NoError(t, c.InsertMessage(ctx, &models.Message{
		ID:             "msg-1",
		ConversationID: conv.ID,
		Role:           models.RoleVisitor,
		Content:        "hello",
		CreatedAt:      time.Now(),
	}))

	// Rows written by older builds can carry unparseable metadata.
	_, err = c.db.ExecContext(ctx, `UPDATE knowledge_chunks SET metadata = '{not json' WHERE id = 'chunk-1'`)
	require.NoError(t, err)
	_, err = c.db.ExecContext(ctx, `UPDATE messages SET metadata = '{not json' WHERE id = 'msg-1'`)
	require.NoError(t, err)

	chunk, err := c.GetChunk(ctx, "chunk-1")
	require.NoError(t, err)
	assert.Equal(t, "content", chunk.Content)
	assert.Empty(t, chunk.Metadata)

	messages, err := c.GetMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Empty(t, messages[0].Metadata)
}

func TestGetConversationNotFound(t *testing.T) {
	c := testClient(t)

	_, err := c.GetConversation(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperrors.ErrConversationNotFoundError))
}
