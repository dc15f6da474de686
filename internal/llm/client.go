package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "github.com/helpdesk-agent/backend/internal/errors"
	"github.com/helpdesk-agent/backend/pkg/circuitbreaker"
	"github.com/helpdesk-agent/backend/pkg/logger"
	"github.com/helpdesk-agent/backend/pkg/retry"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type CompletionResponse struct {
	Content string
	Model   string
	Usage   Usage
}

type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	embeddingDim   int
	temperature    float32
	maxTokens      int
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

func NewClient(apiKey, model, embeddingModel string, embeddingDim int, temperature float32, maxTokens int) *Client {
	client := openai.NewClient(apiKey)

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized",
		zap.String("model", model),
		zap.String("embedding_model", embeddingModel),
		zap.Int("embedding_dim", embeddingDim),
	)

	return &Client{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		embeddingDim:   embeddingDim,
		temperature:    temperature,
		maxTokens:      maxTokens,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

// Complete sends the system prompt plus the full conversation history.
// No retry here: a stalled reply is worse than a degraded one, so callers
// fall back to a fixed message on the first failure.
func (c *Client) Complete(ctx context.Context, systemPrompt string, history []Message) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, msg := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    toOpenAIRole(msg.Role),
			Content: msg.Content,
		})
	}

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		resp, err := c.client.CreateChatCompletion(
			ctx,
			openai.ChatCompletionRequest{
				Model:       c.model,
				Messages:    messages,
				Temperature: c.temperature,
				MaxTokens:   c.maxTokens,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to create completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("completion returned no choices")
		}

		logger.Debug("Completion generated",
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		)

		result = &CompletionResponse{
			Content: resp.Choices[0].Message.Content,
			Model:   resp.Model,
			Usage: Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}
		return nil
	})

	if err != nil {
		return nil, apperrors.Provider(err)
	}

	return result, nil
}

// GenerateEmbedding returns a fixed-length vector for the text. A vector of
// the wrong dimensionality is fatal for the unit of work; it is never
// truncated or padded.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var embedding []float32

	err := c.cb.Execute(ctx, func() error {
		got, err := retry.DoWithResult(ctx, c.retryConfig, func() ([]float32, error) {
			resp, err := c.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: []string{strings.TrimSpace(text)},
					Model: openai.EmbeddingModel(c.embeddingModel),
				},
			)
			if err != nil {
				return nil, fmt.Errorf("failed to generate embedding: %w", err)
			}
			if len(resp.Data) == 0 {
				return nil, fmt.Errorf("embedding response contained no data")
			}
			return resp.Data[0].Embedding, nil
		})
		if err != nil {
			return err
		}

		// A wrong-sized vector is the provider misconfigured, not a
		// transient fault; retrying the same request cannot fix it.
		if len(got) != c.embeddingDim {
			return fmt.Errorf("%w: expected %d dimensions, got %d",
				apperrors.ErrEmbeddingDimension, c.embeddingDim, len(got))
		}

		embedding = make([]float32, len(got))
		copy(embedding, got)
		return nil
	})

	if err != nil {
		return nil, apperrors.Provider(err)
	}

	return embedding, nil
}

func toOpenAIRole(role string) string {
	switch role {
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}
