// Package sheets implements the Google Sheets roster backend. One spreadsheet
// holds the course state across four tabs: the student roster, the assignment
// catalog, the form question mapping and the environment overrides.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cs161-staff/extensions/pkg/logger"
	"github.com/cs161-staff/extensions/pkg/retry"
)

// Sheet tab names. The layout is fixed: staff manage all four tabs by hand.
const (
	SheetRoster        = "Roster"
	SheetAssignments   = "Assignments"
	SheetFormQuestions = "Form Questions"
	SheetEnvironment   = "Environment Variables"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the Sheets API client.
type ClientConfig struct {
	// BaseURL is the Sheets API base URL.
	BaseURL string

	// SpreadsheetID identifies the course spreadsheet.
	SpreadsheetID string

	// AccessToken is the OAuth2 bearer token of the service account.
	AccessToken string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *logger.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(spreadsheetID string) ClientConfig {
	return ClientConfig{
		BaseURL:       "https://sheets.googleapis.com/v4/spreadsheets",
		SpreadsheetID: spreadsheetID,
		Timeout:       30 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// APIError is a non-2xx response from the Sheets API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sheets: API error %d: %s", e.StatusCode, e.Body)
}

// Client is a thin client over the Sheets values API. Reads and writes are
// retried with backoff; quota errors (429) surface as APIError after the
// retry budget is exhausted.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	retrier    *retry.Retrier
	log        *logger.Logger
}

// NewClient creates a new Sheets API client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://sheets.googleapis.com/v4/spreadsheets"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retrier:    retry.SheetsRetrier(),
		log:        cfg.Logger.With(logger.Component("sheets")),
	}
}

type valueRange struct {
	Range          string     `json:"range,omitempty"`
	MajorDimension string     `json:"majorDimension,omitempty"`
	Values         [][]string `json:"values"`
}

// Values reads all rows of one sheet tab as formatted strings.
func (c *Client) Values(ctx context.Context, sheetName string) ([][]string, error) {
	path := fmt.Sprintf("/%s/values/%s", c.cfg.SpreadsheetID, url.PathEscape(sheetName))

	var response valueRange
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		return c.doRequest(ctx, http.MethodGet, path, nil, &response)
	})
	if err != nil {
		return nil, err
	}
	return response.Values, nil
}

// Update writes one rectangular block of values at the given A1 range.
func (c *Client) Update(ctx context.Context, rangeA1 string, values [][]string) error {
	path := fmt.Sprintf("/%s/values/%s?valueInputOption=USER_ENTERED",
		c.cfg.SpreadsheetID, url.PathEscape(rangeA1))
	body := valueRange{Range: rangeA1, MajorDimension: "ROWS", Values: values}

	return c.retrier.Do(ctx, func(ctx context.Context) error {
		return c.doRequest(ctx, http.MethodPut, path, body, nil)
	})
}

// Append adds one row after the last data row of the sheet.
func (c *Client) Append(ctx context.Context, sheetName string, values []string) error {
	path := fmt.Sprintf("/%s/values/%s:append?valueInputOption=USER_ENTERED&insertDataOption=INSERT_ROWS",
		c.cfg.SpreadsheetID, url.PathEscape(sheetName))
	body := valueRange{MajorDimension: "ROWS", Values: [][]string{values}}

	return c.retrier.Do(ctx, func(ctx context.Context) error {
		return c.doRequest(ctx, http.MethodPost, path, body, nil)
	})
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("sheets: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("sheets: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.Retryable(fmt.Errorf("sheets: request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("sheets: read response: %w", err)
	}

	c.log.Debug("sheets request",
		logger.Operation(method+" "+path),
		logger.Int("status", resp.StatusCode),
		logger.Latency(time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
		// Quota exhaustion and server-side errors are transient.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.Retryable(apiErr)
		}
		return apiErr
	}

	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("sheets: decode response: %w", err)
		}
	}
	return nil
}

// columnLetter converts a zero-based column index to A1 letters (0 -> A,
// 25 -> Z, 26 -> AA).
func columnLetter(colIndex int) string {
	letters := ""
	n := colIndex
	for {
		letters = string(rune('A'+n%26)) + letters
		n = n/26 - 1
		if n < 0 {
			break
		}
	}
	return letters
}
