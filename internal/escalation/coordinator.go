// Package escalation owns the conversation state machine: when the AI
// answers, when it hands off to a human, when the human takes over, and when
// the business owner gets notified.
package escalation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/helpdesk-agent/backend/internal/errors"
	"github.com/helpdesk-agent/backend/internal/llm"
	"github.com/helpdesk-agent/backend/internal/metrics"
	"github.com/helpdesk-agent/backend/internal/response"
	"github.com/helpdesk-agent/backend/internal/storage/models"
	"github.com/helpdesk-agent/backend/pkg/logger"
)

type Store interface {
	GetOrCreateVisitorConversation(ctx context.Context, businessID, visitorID string) (*models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)
	UpdateConversationStatus(ctx context.Context, conversationID, status string) error
	EscalateIfOpen(ctx context.Context, conversationID string) (bool, error)
	ReopenIfWaiting(ctx context.Context, conversationID string) (bool, error)
	SetAgentTyping(ctx context.Context, conversationID string, typing bool) error
	SetAgentSending(ctx context.Context, conversationID string) error
	ClearAgentPresence(ctx context.Context, conversationID string) error
	MarkEscalationNotified(ctx context.Context, conversationID string) (bool, error)
	SetConversationTitle(ctx context.Context, conversationID, title string) error
	InsertMessage(ctx context.Context, msg *models.Message) error
	GetMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	HasHumanReply(ctx context.Context, conversationID string) (bool, error)
	GetSettings(ctx context.Context, businessID string) (*models.BusinessSettings, error)
}

type Composer interface {
	Compose(ctx context.Context, businessID string, history []llm.Message) (*response.Reply, error)
}

type Mailer interface {
	SendEscalationEmail(ctx context.Context, to, conversationID, visitorID string) error
}

type Coordinator struct {
	store    Store
	composer Composer
	mailer   Mailer
}

func NewCoordinator(store Store, composer Composer, mailer Mailer) *Coordinator {
	return &Coordinator{
		store:    store,
		composer: composer,
		mailer:   mailer,
	}
}

// VisitorTurn is the result of one visitor message: the persisted visitor
// message, and the assistant reply when the AI responded. Reply is nil while
// a human owns the conversation or the conversation is closed.
type VisitorTurn struct {
	Conversation *models.Conversation
	Visitor      *models.Message
	Reply        *models.Message
	Outcome      response.Outcome
}

// RecordVisitorMessage persists the visitor's message and, when the AI still
// owns the conversation, composes and persists the assistant reply. Messages
// arriving while a human owns the conversation (or after close) are recorded
// for the transcript but trigger no model call.
func (c *Coordinator) RecordVisitorMessage(ctx context.Context, businessID, visitorID, content string) (*VisitorTurn, error) {
	start := time.Now()

	conv, err := c.store.GetOrCreateVisitorConversation(ctx, businessID, visitorID)
	if err != nil {
		return nil, err
	}
	if conv.BusinessID != businessID {
		return nil, apperrors.ErrCrossBusinessError
	}

	visitorMsg := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           models.RoleVisitor,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if err := c.store.InsertMessage(ctx, visitorMsg); err != nil {
		return nil, err
	}

	if conv.Title == "" {
		title := response.TitleFromFirstMessage(content)
		if err := c.store.SetConversationTitle(ctx, conv.ID, title); err != nil {
			logger.Warn("Failed to set conversation title",
				zap.String("conversation_id", conv.ID),
				zap.Error(err),
			)
		} else {
			conv.Title = title
		}
	}

	turn := &VisitorTurn{Conversation: conv, Visitor: visitorMsg}

	// A human reply anywhere in the conversation means a human owns it, even
	// after the status moved back to open.
	if conv.Status != models.ConversationOpen {
		logger.Debug("Conversation not open, visitor message recorded without AI reply",
			zap.String("conversation_id", conv.ID),
			zap.String("status", conv.Status),
		)
		return turn, nil
	}
	humanOwned, err := c.store.HasHumanReply(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if humanOwned {
		return turn, nil
	}

	history, err := c.history(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	reply, err := c.composer.Compose(ctx, businessID, history)
	if err != nil {
		return nil, err
	}
	turn.Outcome = reply.Outcome

	if reply.Outcome == response.OutcomeHandoff {
		if err := c.escalate(ctx, conv); err != nil {
			return nil, err
		}
	}

	assistantMsg := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Sender:         models.SenderAI,
		Content:        reply.Content,
		CreatedAt:      time.Now(),
	}
	if err := c.store.InsertMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}
	turn.Reply = assistantMsg

	metrics.MessageDuration.WithLabelValues(string(reply.Outcome)).Observe(time.Since(start).Seconds())

	return turn, nil
}

// escalate flips the conversation to waiting_for_human and notifies the
// business owner at most once per conversation. The status write is guarded
// on the conversation still being open: a close that raced the model call
// wins, and the notification side effects are skipped. The notified marker
// is a conditional update, so concurrent handoffs send a single email. An
// email failure is logged and swallowed: the chat must keep working without
// it.
func (c *Coordinator) escalate(ctx context.Context, conv *models.Conversation) error {
	escalated, err := c.store.EscalateIfOpen(ctx, conv.ID)
	if err != nil {
		return err
	}
	if !escalated {
		logger.Info("Escalation skipped, conversation no longer open",
			zap.String("conversation_id", conv.ID),
		)
		return nil
	}
	conv.Status = models.ConversationWaitingForHuman
	metrics.Escalations.Inc()

	logger.Info("Conversation escalated to human",
		zap.String("conversation_id", conv.ID),
		zap.String("business_id", conv.BusinessID),
	)

	settings, err := c.store.GetSettings(ctx, conv.BusinessID)
	if err != nil {
		logger.Error("Failed to load notification settings",
			zap.String("business_id", conv.BusinessID),
			zap.Error(err),
		)
		return nil
	}
	if !settings.EscalationNotificationsEnabled || settings.NotificationEmail == "" {
		metrics.EscalationEmails.WithLabelValues("disabled").Inc()
		return nil
	}

	first, err := c.store.MarkEscalationNotified(ctx, conv.ID)
	if err != nil {
		logger.Error("Failed to mark escalation notified",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
		return nil
	}
	if !first {
		metrics.EscalationEmails.WithLabelValues("deduplicated").Inc()
		return nil
	}

	if err := c.mailer.SendEscalationEmail(ctx, settings.NotificationEmail, conv.ID, conv.VisitorID); err != nil {
		logger.Error("Failed to send escalation email",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
		metrics.EscalationEmails.WithLabelValues("failed").Inc()
		return nil
	}
	metrics.EscalationEmails.WithLabelValues("sent").Inc()

	return nil
}

// RecordHumanReply persists a business-side human message. A waiting
// conversation moves back to open; the human keeps ownership from here on
// because the reply itself marks the conversation human-owned.
func (c *Coordinator) RecordHumanReply(ctx context.Context, businessID, conversationID, content string) (*models.Message, error) {
	conv, err := c.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.BusinessID != businessID {
		return nil, apperrors.ErrCrossBusinessError
	}

	if err := c.store.SetAgentSending(ctx, conversationID); err != nil {
		logger.Warn("Failed to mark agent sending",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}

	msg := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           models.RoleAssistant,
		Sender:         models.SenderHuman,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if err := c.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	if err := c.store.ClearAgentPresence(ctx, conversationID); err != nil {
		logger.Warn("Failed to clear agent presence",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}

	reopened, err := c.store.ReopenIfWaiting(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if reopened {
		logger.Info("Conversation reopened by human reply",
			zap.String("conversation_id", conversationID),
		)
	}

	return msg, nil
}

// SetAgentTyping records the human agent's typing indicator.
func (c *Coordinator) SetAgentTyping(ctx context.Context, businessID, conversationID string, typing bool) error {
	conv, err := c.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.BusinessID != businessID {
		return apperrors.ErrCrossBusinessError
	}
	return c.store.SetAgentTyping(ctx, conversationID, typing)
}

// CloseConversation moves the conversation to the terminal closed state from
// any current state.
func (c *Coordinator) CloseConversation(ctx context.Context, businessID, conversationID string) error {
	conv, err := c.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.BusinessID != businessID {
		return apperrors.ErrCrossBusinessError
	}
	return c.store.UpdateConversationStatus(ctx, conversationID, models.ConversationClosed)
}

func (c *Coordinator) history(ctx context.Context, conversationID string) ([]llm.Message, error) {
	messages, err := c.store.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	history := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		role := llm.RoleUser
		if m.Role == models.RoleAssistant {
			role = llm.RoleAssistant
		}
		history = append(history, llm.Message{Role: role, Content: m.Content})
	}
	return history, nil
}
