package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/helpdesk-agent/backend/internal/errors"
	"github.com/helpdesk-agent/backend/internal/ingestion"
	"github.com/helpdesk-agent/backend/internal/middleware/validation"
	"github.com/helpdesk-agent/backend/internal/storage/models"
	"github.com/helpdesk-agent/backend/internal/storage/sqlite"
	"github.com/helpdesk-agent/backend/pkg/logger"
)

type KnowledgeHandler struct {
	store    *sqlite.Client
	vectors  ingestion.VectorStore
	pipeline *ingestion.Pipeline
}

func NewKnowledgeHandler(store *sqlite.Client, vectors ingestion.VectorStore, pipeline *ingestion.Pipeline) *KnowledgeHandler {
	return &KnowledgeHandler{
		store:    store,
		vectors:  vectors,
		pipeline: pipeline,
	}
}

// AddSource registers a knowledge source and ingests it in the background.
// The response returns immediately with status processing; clients poll the
// status endpoint for the outcome.
func (h *KnowledgeHandler) AddSource(c *fiber.Ctx) error {
	var req struct {
		BusinessID string `json:"business_id"`
		Name       string `json:"name"`
		Type       string `json:"type"`
		Content    string `json:"content"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if !validation.IsUUID(req.BusinessID) {
		return apiError(c, apperrors.ErrInvalidIDError)
	}
	if req.Type == "" {
		req.Type = models.SourceTypeText
	}

	source := &models.KnowledgeSource{
		ID:         uuid.New().String(),
		BusinessID: req.BusinessID,
		Name:       req.Name,
		Type:       req.Type,
		Status:     models.SourceStatusProcessing,
		CreatedAt:  time.Now(),
	}

	if err := h.store.InsertSource(c.Context(), source); err != nil {
		logger.Error("Failed to insert source", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create knowledge source",
		})
	}

	content := req.Content
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if _, err := h.pipeline.IngestSource(ctx, source.ID, source.BusinessID, content, source.Type); err != nil {
			logger.Error("Background ingestion failed",
				zap.String("source_id", source.ID),
				zap.Error(err),
			)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"id":     source.ID,
		"name":   source.Name,
		"type":   source.Type,
		"status": source.Status,
	})
}

func (h *KnowledgeHandler) ListSources(c *fiber.Ctx) error {
	businessID := c.Query("business_id")
	if !validation.IsUUID(businessID) {
		return apiError(c, apperrors.ErrInvalidIDError)
	}

	sources, err := h.store.ListSources(c.Context(), businessID)
	if err != nil {
		logger.Error("Failed to list sources", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list knowledge sources",
		})
	}

	out := make([]fiber.Map, 0, len(sources))
	for _, s := range sources {
		out = append(out, fiber.Map{
			"id":         s.ID,
			"name":       s.Name,
			"type":       s.Type,
			"status":     s.Status,
			"created_at": s.CreatedAt.Unix(),
		})
	}

	return c.JSON(fiber.Map{"sources": out})
}

// DeleteSource removes the source, its chunk rows (by cascade), and its
// vectors.
func (h *KnowledgeHandler) DeleteSource(c *fiber.Ctx) error {
	sourceID := c.Params("id")
	businessID := c.Query("business_id")
	if !validation.IsUUID(sourceID) || !validation.IsUUID(businessID) {
		return apiError(c, apperrors.ErrInvalidIDError)
	}

	if err := h.store.DeleteSource(c.Context(), sourceID, businessID); err != nil {
		return apiError(c, err)
	}

	if err := h.vectors.DeleteBySource(c.Context(), sourceID); err != nil {
		logger.Error("Failed to delete vectors for source",
			zap.String("source_id", sourceID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete knowledge source",
		})
	}

	return c.JSON(fiber.Map{"deleted": true})
}

// Status reports per-source embedding coverage for a business, so operators
// can see stuck or partially embedded sources.
func (h *KnowledgeHandler) Status(c *fiber.Ctx) error {
	businessID := c.Query("business_id")
	if !validation.IsUUID(businessID) {
		return apiError(c, apperrors.ErrInvalidIDError)
	}

	coverage, err := h.store.ListSourceCoverage(c.Context(), businessID)
	if err != nil {
		logger.Error("Failed to load source coverage", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load knowledge status",
		})
	}

	out := make([]fiber.Map, 0, len(coverage))
	allReady := true
	for _, s := range coverage {
		if !s.Ready() {
			allReady = false
		}
		out = append(out, fiber.Map{
			"source_id":                s.SourceID,
			"source_name":              s.SourceName,
			"status":                   s.SourceStatus,
			"total_chunks":             s.TotalChunks,
			"chunks_with_embeddings":   s.ChunksWithEmbeddings,
			"chunks_missing_embedding": s.ChunksMissingEmbedding,
			"ready":                    s.Ready(),
		})
	}

	return c.JSON(fiber.Map{
		"sources":   out,
		"all_ready": allReady,
	})
}

// apiError maps application errors to their HTTP representation.
func apiError(c *fiber.Ctx, err error) error {
	var apiErr *apperrors.APIError
	if errors.As(err, &apiErr) {
		return c.Status(apiErr.HTTPStatus).JSON(fiber.Map{
			"code":  apiErr.Code,
			"error": apiErr.Message,
		})
	}
	return c.Status(apperrors.HTTPStatus(err)).JSON(fiber.Map{
		"error": "Internal server error",
	})
}
