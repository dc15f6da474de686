package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/helpdesk-agent/backend/internal/errors"
	"github.com/helpdesk-agent/backend/internal/escalation"
	"github.com/helpdesk-agent/backend/internal/middleware/validation"
	"github.com/helpdesk-agent/backend/internal/storage/models"
	"github.com/helpdesk-agent/backend/internal/storage/sqlite"
	"github.com/helpdesk-agent/backend/pkg/logger"
)

// ConversationHandler serves the dashboard side of a conversation: the
// transcript, the human takeover actions, and notification settings.
type ConversationHandler struct {
	store       *sqlite.Client
	coordinator *escalation.Coordinator
}

func NewConversationHandler(store *sqlite.Client, coordinator *escalation.Coordinator) *ConversationHandler {
	return &ConversationHandler{
		store:       store,
		coordinator: coordinator,
	}
}

func (h *ConversationHandler) GetMessages(c *fiber.Ctx) error {
	conversationID := c.Params("id")
	businessID := c.Query("business_id")
	if !validation.IsUUID(conversationID) || !validation.IsUUID(businessID) {
		return apiError(c, apperrors.ErrInvalidIDError)
	}

	conv, err := h.store.GetConversation(c.Context(), conversationID)
	if err != nil {
		return apiError(c, err)
	}
	if conv.BusinessID != businessID {
		return apiError(c, apperrors.ErrCrossBusinessError)
	}

	messages, err := h.store.GetMessages(c.Context(), conversationID)
	if err != nil {
		logger.Error("Failed to load messages", zap.Error(err))
		return apiError(c, err)
	}

	out := make([]fiber.Map, 0, len(messages))
	for i := range messages {
		out = append(out, messageJSON(&messages[i]))
	}

	return c.JSON(fiber.Map{
		"conversation": fiber.Map{
			"id":     conv.ID,
			"status": conv.Status,
			"title":  conv.Title,
		},
		"messages": out,
	})
}

// HumanReply records a message from the business-side human agent. If the
// conversation was waiting for a human it moves back to open.
func (h *ConversationHandler) HumanReply(c *fiber.Ctx) error {
	conversationID := c.Params("id")

	var req struct {
		BusinessID string `json:"business_id"`
		Content    string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if !validation.IsUUID(conversationID) || !validation.IsUUID(req.BusinessID) {
		return apiError(c, apperrors.ErrInvalidIDError)
	}
	if req.Content == "" {
		return apiError(c, apperrors.ErrEmptyContentError)
	}

	msg, err := h.coordinator.RecordHumanReply(c.Context(), req.BusinessID, conversationID, req.Content)
	if err != nil {
		logger.Error("Failed to record human reply", zap.Error(err))
		return apiError(c, err)
	}

	return c.JSON(fiber.Map{"message": messageJSON(msg)})
}

func (h *ConversationHandler) SetTyping(c *fiber.Ctx) error {
	conversationID := c.Params("id")

	var req struct {
		BusinessID string `json:"business_id"`
		Typing     bool   `json:"typing"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if !validation.IsUUID(conversationID) || !validation.IsUUID(req.BusinessID) {
		return apiError(c, apperrors.ErrInvalidIDError)
	}

	if err := h.coordinator.SetAgentTyping(c.Context(), req.BusinessID, conversationID, req.Typing); err != nil {
		return apiError(c, err)
	}

	return c.JSON(fiber.Map{"ok": true})
}

func (h *ConversationHandler) Close(c *fiber.Ctx) error {
	conversationID := c.Params("id")
	businessID := c.Query("business_id")
	if !validation.IsUUID(conversationID) || !validation.IsUUID(businessID) {
		return apiError(c, apperrors.ErrInvalidIDError)
	}

	if err := h.coordinator.CloseConversation(c.Context(), businessID, conversationID); err != nil {
		return apiError(c, err)
	}

	return c.JSON(fiber.Map{"status": models.ConversationClosed})
}

func (h *ConversationHandler) GetSettings(c *fiber.Ctx) error {
	businessID := c.Query("business_id")
	if !validation.IsUUID(businessID) {
		return apiError(c, apperrors.ErrInvalidIDError)
	}

	settings, err := h.store.GetSettings(c.Context(), businessID)
	if err != nil {
		return apiError(c, err)
	}

	return c.JSON(fiber.Map{
		"escalation_notifications_enabled": settings.EscalationNotificationsEnabled,
		"notification_email":               settings.NotificationEmail,
	})
}

func (h *ConversationHandler) UpdateSettings(c *fiber.Ctx) error {
	var req struct {
		BusinessID                     string `json:"business_id"`
		EscalationNotificationsEnabled bool   `json:"escalation_notifications_enabled"`
		NotificationEmail              string `json:"notification_email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if !validation.IsUUID(req.BusinessID) {
		return apiError(c, apperrors.ErrInvalidIDError)
	}

	settings := &models.BusinessSettings{
		BusinessID:                     req.BusinessID,
		EscalationNotificationsEnabled: req.EscalationNotificationsEnabled,
		NotificationEmail:              req.NotificationEmail,
	}
	if err := h.store.UpsertSettings(c.Context(), settings); err != nil {
		return apiError(c, err)
	}

	return c.JSON(fiber.Map{"ok": true})
}
