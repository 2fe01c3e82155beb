// Package n8n sends ad script tasks to an n8n workflow webhook.
package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/adscript-api/internal/platform/logger"
)

// APIKeyHeader carries the shared key on outbound dispatches and inbound callbacks.
const APIKeyHeader = "X-N8N-API-KEY"

// SignatureHeader carries the hex HMAC-SHA256 of an inbound callback body.
const SignatureHeader = "X-N8N-Signature"

// maxErrorBodyBytes bounds how much of a failed response is kept in error messages.
const maxErrorBodyBytes = 1024

// ErrNotConfigured is returned when no webhook URL is configured.
var ErrNotConfigured = errors.New("N8N webhook URL is not configured")

// StatusError reports a non-2xx response from the webhook.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("N8N webhook returned status %d: %s", e.StatusCode, e.Body)
}

// ConnectionError reports a transport failure, including timeouts.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("Connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Config configures a Client.
type Config struct {
	WebhookURL string
	APIKey     string
	Timeout    time.Duration
}

// DispatchPayload is the JSON body posted to the webhook.
type DispatchPayload struct {
	TaskID             int64  `json:"task_id"`
	ReferenceScript    string `json:"reference_script"`
	OutcomeDescription string `json:"outcome_description"`
	CallbackURL        string `json:"callback_url"`
}

// Client posts tasks to the configured webhook.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client. A zero timeout means 120 seconds.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "n8n_client"),
	}
}

// Configured reports whether a webhook URL is set.
func (c *Client) Configured() bool {
	return c.cfg.WebhookURL != ""
}

// Dispatch posts the payload once. It returns ErrNotConfigured, a *StatusError,
// a *ConnectionError, or a wrapped request-building error.
func (c *Client) Dispatch(ctx context.Context, payload DispatchPayload) error {
	log := logger.FromContextOrDefault(ctx, c.logger)

	if !c.Configured() {
		log.Error(ErrNotConfigured.Error(), "task_id", payload.TaskID)
		return ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode dispatch payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(APIKeyHeader, c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error("n8n webhook connection failed",
			"task_id", payload.TaskID,
			"error", err)
		return &ConnectionError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		log.Error("n8n webhook returned error status",
			"task_id", payload.TaskID,
			"status", resp.StatusCode)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))

	log.Info("successfully sent ad script task to n8n", "task_id", payload.TaskID)
	return nil
}
