// Package slack implements the staff-facing notification channel over a
// Slack incoming webhook, with Block Kit actions for outcomes a reviewer
// needs to act on.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cs161-staff/extensions/internal/application/policy"
	"github.com/cs161-staff/extensions/pkg/logger"
	"github.com/cs161-staff/extensions/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the webhook client.
type ClientConfig struct {
	// WebhookURL is the Slack incoming webhook endpoint.
	WebhookURL string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *logger.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(webhookURL string) ClientConfig {
	return ClientConfig{
		WebhookURL: webhookURL,
		Timeout:    15 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// APIError is a non-200 response from the webhook.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack: webhook error %d: %s", e.StatusCode, e.Body)
}

// Client implements policy.Notifier over an incoming webhook.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	retrier    *retry.Retrier
	log        *logger.Logger
}

// NewClient creates a new webhook client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retrier:    retry.SlackRetrier(),
		log:        cfg.Logger.With(logger.Component("slack")),
	}
}

// Block Kit payload types, limited to what the webhook actually sends.
type textObject struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type buttonElement struct {
	Type string     `json:"type"`
	Text textObject `json:"text"`
	URL  string     `json:"url"`
}

type block struct {
	Type     string          `json:"type"`
	BlockID  string          `json:"block_id,omitempty"`
	Text     *textObject     `json:"text,omitempty"`
	Elements []buttonElement `json:"elements,omitempty"`
}

type message struct {
	Text   string  `json:"text,omitempty"`
	Blocks []block `json:"blocks,omitempty"`
}

// SendPlainMessage sends a plain text message.
func (c *Client) SendPlainMessage(ctx context.Context, text string) error {
	return c.post(ctx, message{Text: text})
}

// SendInteractiveMessage sends a message with action buttons.
func (c *Client) SendInteractiveMessage(ctx context.Context, text string, actions []policy.Action) error {
	elements := make([]buttonElement, 0, len(actions))
	for _, action := range actions {
		elements = append(elements, buttonElement{
			Type: "button",
			Text: textObject{Type: "plain_text", Text: action.Text},
			URL:  action.URL,
		})
	}

	return c.post(ctx, message{
		Blocks: []block{
			{Type: "section", Text: &textObject{Type: "mrkdwn", Text: text}},
			{Type: "actions", BlockID: "approve_extension", Elements: elements},
		},
	})
}

// SendError reports a processing failure to the channel.
func (c *Client) SendError(ctx context.Context, errText string) error {
	return c.SendPlainMessage(ctx, "An error occurred: \n```\n"+errText+"\n```")
}

func (c *Client) post(ctx context.Context, msg message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	return c.retrier.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("slack: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.Retryable(fmt.Errorf("slack: request failed: %w", err))
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode != http.StatusOK {
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return retry.Retryable(apiErr)
			}
			return apiErr
		}
		return nil
	})
}
