// Package mailer implements the outbound email sender over the course mail
// API. The API is a simple authenticated JSON endpoint; the sender identity
// is impersonated server-side, so the client only needs the master secret.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cs161-staff/extensions/internal/application/policy"
	"github.com/cs161-staff/extensions/internal/domain/shared"
	"github.com/cs161-staff/extensions/pkg/logger"
	"github.com/cs161-staff/extensions/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the mail API client.
type ClientConfig struct {
	// Endpoint is the mail API URL.
	Endpoint string

	// MasterSecret authenticates the client against the mail API.
	MasterSecret string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *logger.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(endpoint string) ClientConfig {
	return ClientConfig{
		Endpoint: endpoint,
		Timeout:  30 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// APIError is a non-2xx response from the mail API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mailer: API error %d: %s", e.StatusCode, e.Body)
}

// Client implements policy.EmailSender.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	retrier    *retry.Retrier
	log        *logger.Logger
}

// NewClient creates a new mail API client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retrier:    retry.MailRetrier(),
		log:        cfg.Logger.With(logger.Component("mailer")),
	}
}

type sendRequest struct {
	Sender       string      `json:"sender"`
	Target       string      `json:"target"`
	Targets      []string    `json:"targets,omitempty"`
	Subject      string      `json:"subject"`
	Body         string      `json:"body"`
	ExtraHeaders [][2]string `json:"extra_headers,omitempty"`
}

// Send delivers one email. Reply-To and Cc are passed as extra headers, the
// way the mail API expects them.
func (c *Client) Send(ctx context.Context, msg policy.Message) error {
	if c.cfg.MasterSecret == "" {
		return shared.NewKnownError("mailer", "send", shared.ErrConfiguration,
			"master secret not set, so cannot send emails via the mail API")
	}

	payload := sendRequest{
		Sender:  msg.From,
		Target:  msg.To,
		Targets: msg.CC,
		Subject: msg.Subject,
		Body:    msg.Body,
	}
	if msg.ReplyTo != "" {
		payload.ExtraHeaders = append(payload.ExtraHeaders, [2]string{"Reply-To", msg.ReplyTo})
	}
	if len(msg.CC) > 0 {
		cc := msg.CC[0]
		for _, addr := range msg.CC[1:] {
			cc += ", " + addr
		}
		payload.ExtraHeaders = append(payload.ExtraHeaders, [2]string{"Cc", cc})
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mailer: marshal request: %w", err)
	}

	start := time.Now()
	err = c.retrier.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("mailer: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.MasterSecret)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.Retryable(fmt.Errorf("mailer: request failed: %w", err))
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}
			if resp.StatusCode >= 500 {
				return retry.Retryable(apiErr)
			}
			return apiErr
		}
		return nil
	})
	if err != nil {
		return shared.WrapKnownError("mailer", "send", shared.ErrEmailDelivery,
			"an error occurred while sending an email", err)
	}

	c.log.Info("email sent",
		logger.String("to", msg.To),
		logger.Latency(time.Since(start)),
	)
	return nil
}
