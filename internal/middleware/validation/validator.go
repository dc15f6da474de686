// Package validation enforces input shape and size limits before requests
// reach the handlers.
package validation

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsUUID reports whether s looks like a canonical UUID. Used by handlers for
// path and body identifiers.
func IsUUID(s string) bool {
	return uuidPattern.MatchString(s)
}

type Config struct {
	MaxMessageLength    int
	MaxSourceNameLength int
	MaxSourceContent    int
	Logger              *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxMessageLength == 0 {
		cfg.MaxMessageLength = 10000
	}
	if cfg.MaxSourceNameLength == 0 {
		cfg.MaxSourceNameLength = 200
	}
	if cfg.MaxSourceContent == 0 {
		cfg.MaxSourceContent = 2000000
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := c.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "application/json") {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		path := c.Path()

		if strings.Contains(path, "/messages") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			content, ok := req["content"].(string)
			if !ok || strings.TrimSpace(content) == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Message content is required",
				})
			}
			if len(content) > cfg.MaxMessageLength {
				cfg.Logger.Warn("Oversized message rejected",
					zap.String("ip", c.IP()),
					zap.Int("length", len(content)),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Message exceeds maximum length",
				})
			}
		}

		if strings.Contains(path, "/knowledge/sources") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			name, ok := req["name"].(string)
			if !ok || strings.TrimSpace(name) == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Source name is required",
				})
			}
			if len(name) > cfg.MaxSourceNameLength {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Source name exceeds maximum length",
				})
			}

			content, ok := req["content"].(string)
			if !ok || strings.TrimSpace(content) == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Source content is required",
				})
			}
			if len(content) > cfg.MaxSourceContent {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "Source content exceeds maximum size",
				})
			}

			if srcType, ok := req["type"].(string); ok && srcType != "" {
				if srcType != "text" && srcType != "html" {
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
						"error": "Source type must be text or html",
					})
				}
			}
		}

		return c.Next()
	}
}
