package models

import "time"

// Knowledge source lifecycle. A source is only ready once every derived
// chunk is durably embedded; any permanent failure marks it error.
const (
	SourceStatusProcessing = "processing"
	SourceStatusReady      = "ready"
	SourceStatusError      = "error"
)

const (
	SourceTypeText = "text"
	SourceTypeHTML = "html"
)

// Conversation status values. Transitions are restricted to
// open -> waiting_for_human -> open|closed and open -> closed.
const (
	ConversationOpen            = "open"
	ConversationWaitingForHuman = "waiting_for_human"
	ConversationClosed          = "closed"
)

const (
	RoleVisitor   = "visitor"
	RoleAssistant = "assistant"
)

const (
	SenderAI    = "ai"
	SenderHuman = "human"
)

type KnowledgeSource struct {
	ID         string
	BusinessID string
	Name       string
	Type       string
	Status     string
	CreatedAt  time.Time
}

// KnowledgeChunk is the unit of embedding and retrieval. EmbeddingID is
// empty until the vector write succeeds; chunks in that state must never be
// served by retrieval.
type KnowledgeChunk struct {
	ID          string
	BusinessID  string
	SourceID    string
	ChunkIndex  int
	Content     string
	EmbeddingID string
	Metadata    map[string]string
	CreatedAt   time.Time
}

func (c *KnowledgeChunk) Embedded() bool {
	return c.EmbeddingID != ""
}

type Conversation struct {
	ID                   string
	BusinessID           string
	VisitorID            string
	Status               string
	Title                string
	AgentTypingAt        *time.Time
	AgentSendingAt       *time.Time
	EscalationNotifiedAt *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type Message struct {
	ID             string
	ConversationID string
	Seq            int64
	Role           string
	Sender         string
	Content        string
	Metadata       map[string]string
	CreatedAt      time.Time
}

type BusinessSettings struct {
	BusinessID                     string
	EscalationNotificationsEnabled bool
	NotificationEmail              string
}

// SourceCoverage summarizes embedding progress for one source, used by the
// knowledge status report.
type SourceCoverage struct {
	SourceID               string
	SourceName             string
	SourceStatus           string
	TotalChunks            int
	ChunksWithEmbeddings   int
	ChunksMissingEmbedding int
}

func (s SourceCoverage) Ready() bool {
	return s.TotalChunks > 0 && s.ChunksMissingEmbedding == 0
}
