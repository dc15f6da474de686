package handlers

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/helpdesk-agent/backend/internal/escalation"
	"github.com/helpdesk-agent/backend/internal/middleware/validation"
	"github.com/helpdesk-agent/backend/pkg/logger"
)

// WebSocketHandler is the widget's live channel. Visitors send messages over
// it and receive the assistant reply streamed word by word, plus state
// events when the conversation is handed to a human.
type WebSocketHandler struct {
	coordinator      *escalation.Coordinator
	maxMessageLength int
}

// NewWebSocketHandler caps visitor message content at maxMessageLength bytes.
// The HTTP validation middleware never sees websocket frames, so the limit is
// enforced here.
func NewWebSocketHandler(coordinator *escalation.Coordinator, maxMessageLength int) *WebSocketHandler {
	return &WebSocketHandler{coordinator: coordinator, maxMessageLength: maxMessageLength}
}

func validWidgetMessage(businessID, visitorID, content string, maxContent int) bool {
	if !validation.IsUUID(businessID) || !validation.IsUUID(visitorID) {
		return false
	}
	if content == "" {
		return false
	}
	if maxContent > 0 && len(content) > maxContent {
		return false
	}
	return true
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("Widget connection established")

	defer func() {
		c.Close()
		logger.Info("Widget connection closed")
	}()

	for {
		var msg struct {
			Type       string `json:"type"`
			BusinessID string `json:"business_id"`
			VisitorID  string `json:"visitor_id"`
			Content    string `json:"content"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("Widget read failed", zap.Error(err))
			break
		}

		if msg.Type != "message" {
			continue
		}

		if !validWidgetMessage(msg.BusinessID, msg.VisitorID, msg.Content, h.maxMessageLength) {
			h.sendError(c, "Invalid message")
			continue
		}

		if err := h.handleMessage(c, msg.BusinessID, msg.VisitorID, msg.Content); err != nil {
			logger.Error("Failed to handle widget message", zap.Error(err))
			h.sendError(c, "Failed to process message")
		}
	}
}

func (h *WebSocketHandler) handleMessage(c *websocket.Conn, businessID, visitorID, content string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	turn, err := h.coordinator.RecordVisitorMessage(ctx, businessID, visitorID, content)
	if err != nil {
		return err
	}

	if err := c.WriteJSON(map[string]interface{}{
		"type":            "ack",
		"conversation_id": turn.Conversation.ID,
		"message_id":      turn.Visitor.ID,
	}); err != nil {
		return err
	}

	// No reply means a human owns the conversation or it is closed.
	if turn.Reply == nil {
		return c.WriteJSON(map[string]interface{}{
			"type":   "state",
			"status": turn.Conversation.Status,
		})
	}

	words := splitIntoWords(turn.Reply.Content)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}
		if err := c.WriteJSON(map[string]interface{}{
			"type":    "chunk",
			"content": chunk,
		}); err != nil {
			return err
		}
	}

	return c.WriteJSON(map[string]interface{}{
		"type":       "complete",
		"message_id": turn.Reply.ID,
		"outcome":    string(turn.Outcome),
		"status":     turn.Conversation.Status,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
