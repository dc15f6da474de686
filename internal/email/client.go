// Package email sends the escalation notification through the Resend HTTP
// API. Fire-and-forget from the engine's perspective: a failed send is the
// caller's to log, never to retry synchronously.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/helpdesk-agent/backend/pkg/logger"
)

const defaultEndpoint = "https://api.resend.com/emails"

type Client struct {
	apiKey       string
	fromAddress  string
	dashboardURL string
	endpoint     string
	httpClient   *http.Client
}

func NewClient(apiKey, fromAddress, dashboardURL string) *Client {
	return &Client{
		apiKey:       apiKey,
		fromAddress:  fromAddress,
		dashboardURL: dashboardURL,
		endpoint:     defaultEndpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetEndpoint overrides the API endpoint, used by tests.
func (c *Client) SetEndpoint(endpoint string) {
	c.endpoint = endpoint
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// SendEscalationEmail notifies the business owner that a visitor needs a
// human. With no API key configured the send is skipped, matching local
// development setups.
func (c *Client) SendEscalationEmail(ctx context.Context, to, conversationID, visitorID string) error {
	if c.apiKey == "" {
		logger.Warn("Email API key not set, skipping escalation email",
			zap.String("conversation_id", conversationID),
		)
		return nil
	}

	visitorLabel := visitorID
	if len(visitorLabel) > 8 {
		visitorLabel = visitorLabel[:8] + "..."
	}

	body := sendRequest{
		From:    c.fromAddress,
		To:      []string{to},
		Subject: "New customer needs help",
		HTML: fmt.Sprintf(`<div style="font-family: sans-serif; padding: 20px;">
<h2>A customer needs your attention</h2>
<p>Visitor <strong>%s</strong> has requested human support.</p>
<p><a href="%s/dashboard/customer-chats/%s">View Conversation</a></p>
<p style="color: #666; font-size: 12px;">You received this because escalation notifications are enabled for your workspace.</p>
</div>`, visitorLabel, c.dashboardURL, conversationID),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("email provider returned status %d: %s", resp.StatusCode, string(respBody))
	}

	logger.Info("Escalation email sent",
		zap.String("conversation_id", conversationID),
		zap.String("to", to),
	)

	return nil
}
