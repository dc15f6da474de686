package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/helpdesk-agent/backend/internal/errors"
	"github.com/helpdesk-agent/backend/internal/escalation"
	"github.com/helpdesk-agent/backend/internal/middleware/validation"
	"github.com/helpdesk-agent/backend/internal/storage/models"
	"github.com/helpdesk-agent/backend/pkg/logger"
)

type ChatHandler struct {
	coordinator *escalation.Coordinator
}

func NewChatHandler(coordinator *escalation.Coordinator) *ChatHandler {
	return &ChatHandler{coordinator: coordinator}
}

// HandleVisitorMessage records one visitor message and returns the assistant
// reply when the AI still owns the conversation. While a human owns it the
// message is stored and the response carries no reply.
func (h *ChatHandler) HandleVisitorMessage(c *fiber.Ctx) error {
	var req struct {
		BusinessID string `json:"business_id"`
		VisitorID  string `json:"visitor_id"`
		Content    string `json:"content"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if !validation.IsUUID(req.BusinessID) || !validation.IsUUID(req.VisitorID) {
		return apiError(c, apperrors.ErrInvalidIDError)
	}
	if req.Content == "" {
		return apiError(c, apperrors.ErrEmptyContentError)
	}

	turn, err := h.coordinator.RecordVisitorMessage(c.Context(), req.BusinessID, req.VisitorID, req.Content)
	if err != nil {
		logger.Error("Failed to process visitor message", zap.Error(err))
		return apiError(c, err)
	}

	resp := fiber.Map{
		"conversation_id": turn.Conversation.ID,
		"status":          turn.Conversation.Status,
		"message":         messageJSON(turn.Visitor),
	}
	if turn.Reply != nil {
		resp["reply"] = messageJSON(turn.Reply)
		resp["outcome"] = string(turn.Outcome)
	}

	return c.JSON(resp)
}

func messageJSON(m *models.Message) fiber.Map {
	return fiber.Map{
		"id":         m.ID,
		"seq":        m.Seq,
		"role":       m.Role,
		"sender":     m.Sender,
		"content":    m.Content,
		"created_at": m.CreatedAt.Unix(),
	}
}
