package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	apperrors "github.com/helpdesk-agent/backend/internal/errors"
	"github.com/helpdesk-agent/backend/internal/storage/models"
	"github.com/helpdesk-agent/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS knowledge_sources (
		id TEXT PRIMARY KEY,
		business_id TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sources_business ON knowledge_sources(business_id);

	CREATE TABLE IF NOT EXISTS knowledge_chunks (
		id TEXT PRIMARY KEY,
		business_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding_id TEXT,
		metadata TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (source_id) REFERENCES knowledge_sources(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_source ON knowledge_chunks(source_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_business ON knowledge_chunks(business_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_missing ON knowledge_chunks(embedding_id) WHERE embedding_id IS NULL;

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		business_id TEXT NOT NULL,
		visitor_id TEXT,
		status TEXT NOT NULL DEFAULT 'open',
		title TEXT,
		agent_typing_at INTEGER,
		agent_sending_at INTEGER,
		escalation_notified_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_business ON conversations(business_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_visitor ON conversations(business_id, visitor_id) WHERE visitor_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		sender TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);

	CREATE TABLE IF NOT EXISTS business_settings (
		business_id TEXT PRIMARY KEY,
		escalation_notifications_enabled INTEGER NOT NULL DEFAULT 1,
		notification_email TEXT
	);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// ---- knowledge sources ----

func (c *Client) InsertSource(ctx context.Context, source *models.KnowledgeSource) error {
	query := `INSERT INTO knowledge_sources (id, business_id, name, type, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx, query,
		source.ID,
		source.BusinessID,
		source.Name,
		source.Type,
		source.Status,
		source.CreatedAt.Unix(),
	)
	if err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to insert source: %w", err))
	}

	logger.Debug("Knowledge source inserted",
		zap.String("source_id", source.ID),
		zap.String("business_id", source.BusinessID),
	)
	return nil
}

func (c *Client) UpdateSourceStatus(ctx context.Context, sourceID, status string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE knowledge_sources SET status = ? WHERE id = ?`, status, sourceID)
	if err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to update source status: %w", err))
	}

	logger.Info("Knowledge source status updated",
		zap.String("source_id", sourceID),
		zap.String("status", status),
	)
	return nil
}

func (c *Client) GetSource(ctx context.Context, sourceID string) (*models.KnowledgeSource, error) {
	query := `SELECT id, business_id, name, type, status, created_at FROM knowledge_sources WHERE id = ?`

	var s models.KnowledgeSource
	var createdAt int64

	err := c.db.QueryRowContext(ctx, query, sourceID).Scan(
		&s.ID, &s.BusinessID, &s.Name, &s.Type, &s.Status, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrSourceNotFoundError
	}
	if err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("failed to get source: %w", err))
	}

	s.CreatedAt = time.Unix(createdAt, 0)
	return &s, nil
}

func (c *Client) ListSources(ctx context.Context, businessID string) ([]models.KnowledgeSource, error) {
	query := `SELECT id, business_id, name, type, status, created_at FROM knowledge_sources WHERE business_id = ? ORDER BY created_at DESC`

	rows, err := c.db.QueryContext(ctx, query, businessID)
	if err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("failed to list sources: %w", err))
	}
	defer rows.Close()

	var sources []models.KnowledgeSource
	for rows.Next() {
		var s models.KnowledgeSource
		var createdAt int64
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.Name, &s.Type, &s.Status, &createdAt); err != nil {
			return nil, apperrors.Persistence(fmt.Errorf("failed to scan source: %w", err))
		}
		s.CreatedAt = time.Unix(createdAt, 0)
		sources = append(sources, s)
	}

	return sources, rows.Err()
}

// DeleteSource removes a source and, via cascade, its chunks. The caller's
// business id must match the owner; a mismatch is an authorization failure,
// not a no-op.
func (c *Client) DeleteSource(ctx context.Context, sourceID, businessID string) error {
	source, err := c.GetSource(ctx, sourceID)
	if err != nil {
		return err
	}
	if source.BusinessID != businessID {
		return apperrors.ErrCrossBusinessError
	}

	_, err = c.db.ExecContext(ctx, `DELETE FROM knowledge_sources WHERE id = ?`, sourceID)
	if err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to delete source: %w", err))
	}

	logger.Info("Knowledge source deleted", zap.String("source_id", sourceID))
	return nil
}

// ---- knowledge chunks ----

func (c *Client) InsertChunk(ctx context.Context, chunk *models.KnowledgeChunk) error {
	metadataJSON, _ := json.Marshal(chunk.Metadata)

	query := `INSERT INTO knowledge_chunks (id, business_id, source_id, chunk_index, content, embedding_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var embeddingID any
	if chunk.EmbeddingID != "" {
		embeddingID = chunk.EmbeddingID
	}

	_, err := c.db.ExecContext(ctx, query,
		chunk.ID,
		chunk.BusinessID,
		chunk.SourceID,
		chunk.ChunkIndex,
		chunk.Content,
		embeddingID,
		string(metadataJSON),
		chunk.CreatedAt.Unix(),
	)
	if err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to insert chunk: %w", err))
	}

	return nil
}

func (c *Client) MarkChunkEmbedded(ctx context.Context, chunkID, embeddingID string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE knowledge_chunks SET embedding_id = ? WHERE id = ?`, embeddingID, chunkID)
	if err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to mark chunk embedded: %w", err))
	}
	return nil
}

func (c *Client) GetChunk(ctx context.Context, chunkID string) (*models.KnowledgeChunk, error) {
	query := `SELECT id, business_id, source_id, chunk_index, content, embedding_id, metadata, created_at
		FROM knowledge_chunks WHERE id = ?`

	var chunk models.KnowledgeChunk
	var embeddingID sql.NullString
	var metadataJSON sql.NullString
	var createdAt int64

	err := c.db.QueryRowContext(ctx, query, chunkID).Scan(
		&chunk.ID, &chunk.BusinessID, &chunk.SourceID, &chunk.ChunkIndex,
		&chunk.Content, &embeddingID, &metadataJSON, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.Persistence(fmt.Errorf("chunk %s not found", chunkID))
	}
	if err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("failed to get chunk: %w", err))
	}

	chunk.EmbeddingID = embeddingID.String
	chunk.CreatedAt = time.Unix(createdAt, 0)
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &chunk.Metadata); err != nil {
			logger.Warn("Failed to decode chunk metadata",
				zap.String("chunk_id", chunk.ID),
				zap.Error(err),
			)
		}
	}

	return &chunk, nil
}

func (c *Client) DeleteChunksBySource(ctx context.Context, sourceID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM knowledge_chunks WHERE source_id = ?`, sourceID)
	if err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to delete chunks: %w", err))
	}
	return nil
}

// CountEmbeddedChunks backs the retrieval fast path: when it returns zero
// the retriever skips the embedding provider entirely.
func (c *Client) CountEmbeddedChunks(ctx context.Context, businessID string) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM knowledge_chunks WHERE business_id = ? AND embedding_id IS NOT NULL`,
		businessID,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.Persistence(fmt.Errorf("failed to count embedded chunks: %w", err))
	}
	return count, nil
}

// ListChunksMissingEmbedding spans all businesses; the backfill sweep is a
// maintenance operation, not a tenant-scoped one.
func (c *Client) ListChunksMissingEmbedding(ctx context.Context) ([]models.KnowledgeChunk, error) {
	query := `SELECT id, business_id, source_id, chunk_index, content, created_at
		FROM knowledge_chunks WHERE embedding_id IS NULL ORDER BY created_at`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("failed to list chunks: %w", err))
	}
	defer rows.Close()

	var chunks []models.KnowledgeChunk
	for rows.Next() {
		var chunk models.KnowledgeChunk
		var createdAt int64
		if err := rows.Scan(&chunk.ID, &chunk.BusinessID, &chunk.SourceID, &chunk.ChunkIndex, &chunk.Content, &createdAt); err != nil {
			return nil, apperrors.Persistence(fmt.Errorf("failed to scan chunk: %w", err))
		}
		chunk.CreatedAt = time.Unix(createdAt, 0)
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

func (c *Client) ListSourceCoverage(ctx context.Context, businessID string) ([]models.SourceCoverage, error) {
	query := `
		SELECT s.id, s.name, s.status,
			COUNT(k.id),
			COALESCE(SUM(CASE WHEN k.embedding_id IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM knowledge_sources s
		LEFT JOIN knowledge_chunks k ON k.source_id = s.id
		WHERE s.business_id = ?
		GROUP BY s.id, s.name, s.status
		ORDER BY s.created_at DESC`

	rows, err := c.db.QueryContext(ctx, query, businessID)
	if err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("failed to list source coverage: %w", err))
	}
	defer rows.Close()

	var coverage []models.SourceCoverage
	for rows.Next() {
		var sc models.SourceCoverage
		if err := rows.Scan(&sc.SourceID, &sc.SourceName, &sc.SourceStatus, &sc.TotalChunks, &sc.ChunksWithEmbeddings); err != nil {
			return nil, apperrors.Persistence(fmt.Errorf("failed to scan coverage: %w", err))
		}
		sc.ChunksMissingEmbedding = sc.TotalChunks - sc.ChunksWithEmbeddings
		coverage = append(coverage, sc)
	}

	return coverage, rows.Err()
}

// ---- conversations ----

func (c *Client) GetOrCreateVisitorConversation(ctx context.Context, businessID, visitorID string) (*models.Conversation, error) {
	conv, err := c.getConversationByVisitor(ctx, businessID, visitorID)
	if err == nil {
		return conv, nil
	}
	if err != sql.ErrNoRows {
		return nil, apperrors.Persistence(fmt.Errorf("failed to look up conversation: %w", err))
	}

	now := time.Now()
	id := uuid.New().String()

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO conversations (id, business_id, visitor_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, businessID, visitorID, models.ConversationOpen, now.Unix(), now.Unix(),
	)
	if err != nil {
		// Lost a create race; the unique (business_id, visitor_id) index
		// guarantees the row now exists.
		conv, raceErr := c.getConversationByVisitor(ctx, businessID, visitorID)
		if raceErr == nil {
			return conv, nil
		}
		return nil, apperrors.Persistence(fmt.Errorf("failed to create conversation: %w", err))
	}

	logger.Info("Visitor conversation created",
		zap.String("conversation_id", id),
		zap.String("business_id", businessID),
	)

	return &models.Conversation{
		ID:         id,
		BusinessID: businessID,
		VisitorID:  visitorID,
		Status:     models.ConversationOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (c *Client) getConversationByVisitor(ctx context.Context, businessID, visitorID string) (*models.Conversation, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, business_id, visitor_id, status, title, agent_typing_at, agent_sending_at, escalation_notified_at, created_at, updated_at
		FROM conversations WHERE business_id = ? AND visitor_id = ?`,
		businessID, visitorID,
	)
	return scanConversation(row)
}

func (c *Client) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, business_id, visitor_id, status, title, agent_typing_at, agent_sending_at, escalation_notified_at, created_at, updated_at
		FROM conversations WHERE id = ?`,
		conversationID,
	)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrConversationNotFoundError
	}
	if err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("failed to get conversation: %w", err))
	}
	return conv, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var conv models.Conversation
	var visitorID, title sql.NullString
	var typingAt, sendingAt, notifiedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&conv.ID, &conv.BusinessID, &visitorID, &conv.Status, &title,
		&typingAt, &sendingAt, &notifiedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	conv.VisitorID = visitorID.String
	conv.Title = title.String
	conv.AgentTypingAt = unixPtr(typingAt)
	conv.AgentSendingAt = unixPtr(sendingAt)
	conv.EscalationNotifiedAt = unixPtr(notifiedAt)
	conv.CreatedAt = time.Unix(createdAt, 0)
	conv.UpdatedAt = time.Unix(updatedAt, 0)

	return &conv, nil
}

func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}

func (c *Client) UpdateConversationStatus(ctx context.Context, conversationID, status string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().Unix(), conversationID,
	)
	if err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to update conversation status: %w", err))
	}

	logger.Info("Conversation status updated",
		zap.String("conversation_id", conversationID),
		zap.String("status", status),
	)
	return nil
}

// EscalateIfOpen moves an open conversation to waiting_for_human. Guarded by
// the current status so a close that lands while the reply is being composed
// is never overwritten; closed stays terminal.
func (c *Client) EscalateIfOpen(ctx context.Context, conversationID string) (bool, error) {
	res, err := c.db.ExecContext(ctx,
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.ConversationWaitingForHuman, time.Now().Unix(), conversationID, models.ConversationOpen,
	)
	if err != nil {
		return false, apperrors.Persistence(fmt.Errorf("failed to escalate conversation: %w", err))
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ReopenIfWaiting flips waiting_for_human back to open. Guarded by the
// current status so a concurrent close is never overwritten.
func (c *Client) ReopenIfWaiting(ctx context.Context, conversationID string) (bool, error) {
	res, err := c.db.ExecContext(ctx,
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.ConversationOpen, time.Now().Unix(), conversationID, models.ConversationWaitingForHuman,
	)
	if err != nil {
		return false, apperrors.Persistence(fmt.Errorf("failed to reopen conversation: %w", err))
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (c *Client) SetAgentTyping(ctx context.Context, conversationID string, typing bool) error {
	var typingAt any
	if typing {
		typingAt = time.Now().Unix()
	}

	_, err := c.db.ExecContext(ctx,
		`UPDATE conversations SET agent_typing_at = ? WHERE id = ?`, typingAt, conversationID)
	if err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to set agent typing: %w", err))
	}
	return nil
}

// SetAgentSending marks a human reply in flight so the widget can show the
// sending state.
func (c *Client) SetAgentSending(ctx context.Context, conversationID string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE conversations SET agent_sending_at = ? WHERE id = ?`, time.Now().Unix(), conversationID)
	if err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to set agent sending: %w", err))
	}
	return nil
}

// ClearAgentPresence wipes both presence columns, used when a human reply
// is sent so the widget stops showing the typing indicator.
func (c *Client) ClearAgentPresence(ctx context.Context, conversationID string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE conversations SET agent_typing_at = NULL, agent_sending_at = NULL WHERE id = ?`, conversationID)
	if err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to clear agent presence: %w", err))
	}
	return nil
}

// MarkEscalationNotified is the notification dedupe gate: the conditional
// update wins for exactly one caller per escalation episode.
func (c *Client) MarkEscalationNotified(ctx context.Context, conversationID string) (bool, error) {
	res, err := c.db.ExecContext(ctx,
		`UPDATE conversations SET escalation_notified_at = ? WHERE id = ? AND escalation_notified_at IS NULL`,
		time.Now().Unix(), conversationID,
	)
	if err != nil {
		return false, apperrors.Persistence(fmt.Errorf("failed to mark escalation notified: %w", err))
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetConversationTitle writes the derived title only once; an existing
// title is never overwritten by the message flow.
func (c *Client) SetConversationTitle(ctx context.Context, conversationID, title string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE conversations SET title = ? WHERE id = ? AND (title IS NULL OR title = '')`,
		title, conversationID,
	)
	if err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to set conversation title: %w", err))
	}
	return nil
}

// ---- messages ----

func (c *Client) InsertMessage(ctx context.Context, msg *models.Message) error {
	metadataJSON, _ := json.Marshal(msg.Metadata)

	res, err := c.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, sender, content, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Sender, msg.Content, string(metadataJSON), msg.CreatedAt.Unix(),
	)
	if err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to insert message: %w", err))
	}

	msg.Seq, _ = res.LastInsertId()
	return nil
}

func (c *Client) GetMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	query := `SELECT seq, id, conversation_id, role, sender, content, metadata, created_at
		FROM messages WHERE conversation_id = ? ORDER BY seq`

	rows, err := c.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("failed to get messages: %w", err))
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var metadataJSON sql.NullString
		var createdAt int64
		if err := rows.Scan(&msg.Seq, &msg.ID, &msg.ConversationID, &msg.Role, &msg.Sender, &msg.Content, &metadataJSON, &createdAt); err != nil {
			return nil, apperrors.Persistence(fmt.Errorf("failed to scan message: %w", err))
		}
		msg.CreatedAt = time.Unix(createdAt, 0)
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &msg.Metadata); err != nil {
				logger.Warn("Failed to decode message metadata",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
			}
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// HasHumanReply reports whether any human-sent message exists. Transitions
// out of waiting_for_human key off this, not the status column, because
// status updates can race message delivery.
func (c *Client) HasHumanReply(ctx context.Context, conversationID string) (bool, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND sender = ?`,
		conversationID, models.SenderHuman,
	).Scan(&count)
	if err != nil {
		return false, apperrors.Persistence(fmt.Errorf("failed to check human reply: %w", err))
	}
	return count > 0, nil
}

// ---- business settings ----

// GetSettings returns defaults (notifications enabled) when no row exists.
func (c *Client) GetSettings(ctx context.Context, businessID string) (*models.BusinessSettings, error) {
	var settings models.BusinessSettings
	var enabled int
	var email sql.NullString

	err := c.db.QueryRowContext(ctx,
		`SELECT business_id, escalation_notifications_enabled, notification_email FROM business_settings WHERE business_id = ?`,
		businessID,
	).Scan(&settings.BusinessID, &enabled, &email)
	if err == sql.ErrNoRows {
		return &models.BusinessSettings{
			BusinessID:                     businessID,
			EscalationNotificationsEnabled: true,
		}, nil
	}
	if err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("failed to get settings: %w", err))
	}

	settings.EscalationNotificationsEnabled = enabled != 0
	settings.NotificationEmail = email.String
	return &settings, nil
}

func (c *Client) UpsertSettings(ctx context.Context, settings *models.BusinessSettings) error {
	enabled := 0
	if settings.EscalationNotificationsEnabled {
		enabled = 1
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO business_settings (business_id, escalation_notifications_enabled, notification_email)
		VALUES (?, ?, ?)
		ON CONFLICT(business_id) DO UPDATE SET
			escalation_notifications_enabled = excluded.escalation_notifications_enabled,
			notification_email = excluded.notification_email`,
		settings.BusinessID, enabled, settings.NotificationEmail,
	)
	if err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to upsert settings: %w", err))
	}
	return nil
}
