// Package gradescope implements the extension applier against the Gradescope
// API. One catalog assignment may map to several Gradescope assignments
// (e.g. a written and a coding component), so targets come in as URL lists.
package gradescope

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cs161-staff/extensions/pkg/logger"
	"github.com/cs161-staff/extensions/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the Gradescope client.
type ClientConfig struct {
	// BaseURL is the Gradescope API base URL.
	BaseURL string

	// Email and Password are the course staff account credentials.
	Email    string
	Password string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *logger.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(email, password string) ClientConfig {
	return ClientConfig{
		BaseURL:  "https://www.gradescope.com",
		Email:    email,
		Password: password,
		Timeout:  60 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// APIError is a non-2xx response from Gradescope.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gradescope: API error %d: %s", e.StatusCode, e.Body)
}

// Client implements policy.ExtensionApplier. The session token is obtained
// lazily on first use and refreshed when Gradescope rejects it.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	retrier    *retry.Retrier
	log        *logger.Logger

	token   string
	tokenMu sync.Mutex
}

// NewClient creates a new Gradescope client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.gradescope.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retrier:    retry.SheetsRetrier(),
		log:        cfg.Logger.With(logger.Component("gradescope")),
	}
}

// Apply extends the student's deadline by numDays on every target assignment
// URL. A failure on one target is reported as a warning so the remaining
// targets still get their extensions; err is reserved for failures that make
// all targets unreachable (e.g. sign-in rejected).
func (c *Client) Apply(ctx context.Context, targets []string, email string, numDays int) ([]string, error) {
	token, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	var warnings []string
	for _, target := range targets {
		if err := c.createExtension(ctx, token, target, email, numDays); err != nil {
			c.log.Error("extension failed",
				logger.StudentEmail(email),
				logger.String("target", target),
				logger.Err(err),
			)
			warnings = append(warnings, fmt.Sprintf(
				"Failed to create Gradescope assignment extension for %s on %s: %v", email, target, err))
			continue
		}
		c.log.Info("extension applied",
			logger.StudentEmail(email),
			logger.String("target", target),
			logger.DaysRequested(numDays),
		)
	}
	return warnings, nil
}

type sessionRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string `json:"token"`
}

// session returns a cached token, signing in if needed.
func (c *Client) session(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" {
		return c.token, nil
	}

	raw, err := json.Marshal(sessionRequest{Email: c.cfg.Email, Password: c.cfg.Password})
	if err != nil {
		return "", fmt.Errorf("gradescope: marshal sign-in: %w", err)
	}

	var response sessionResponse
	err = c.retrier.Do(ctx, func(ctx context.Context) error {
		return c.doRequest(ctx, http.MethodPost, "/api/v1/user_session", "", bytes.NewReader(raw), &response)
	})
	if err != nil {
		return "", fmt.Errorf("gradescope: failed to sign in: %w", err)
	}

	c.token = response.Token
	return c.token, nil
}

type extensionRequest struct {
	UserEmail string `json:"user_email"`
	ExtraDays int    `json:"extra_days"`
}

// createExtension posts one extension to the extensions endpoint of the
// target assignment URL.
func (c *Client) createExtension(ctx context.Context, token, target, email string, numDays int) error {
	raw, err := json.Marshal(extensionRequest{UserEmail: email, ExtraDays: numDays})
	if err != nil {
		return fmt.Errorf("gradescope: marshal extension: %w", err)
	}

	endpoint := strings.TrimSuffix(target, "/") + "/extensions"
	return c.retrier.Do(ctx, func(ctx context.Context) error {
		return c.doRequestURL(ctx, http.MethodPost, endpoint, token, bytes.NewReader(raw), nil)
	})
}

func (c *Client) doRequest(ctx context.Context, method, path, token string, body io.Reader, result interface{}) error {
	return c.doRequestURL(ctx, method, c.cfg.BaseURL+path, token, body, result)
}

func (c *Client) doRequestURL(ctx context.Context, method, fullURL, token string, body io.Reader, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return fmt.Errorf("gradescope: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.Retryable(fmt.Errorf("gradescope: request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("gradescope: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.Retryable(apiErr)
		}
		return apiErr
	}

	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("gradescope: decode response: %w", err)
		}
	}
	return nil
}
