// File: internal/notification/webhook.go
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smartdevs17/qrcode-generator/internal/config"
	"github.com/smartdevs17/qrcode-generator/internal/models"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
)

const (
	payloadSource  = "qrcode-generator"
	payloadType    = "history_event"
	payloadVersion = "1.0"
	maxBodyPreview = 1024
)

// WebhookSender delivers history events to webhook endpoints
type WebhookSender struct {
	headers    map[string]string
	retry      WebhookRetryConfig
	logger     *NotificationLogger
	httpClient *http.Client
}

// WebhookPayload defines the webhook payload structure
type WebhookPayload struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
	Type      string      `json:"type"`
	Data      WebhookData `json:"data"`
	Version   string      `json:"version"`
}

// WebhookData carries the affected record, or the number of removed records for a clear
type WebhookData struct {
	QRCode *models.QRCode `json:"qr_code,omitempty"`
	Count  int64          `json:"count,omitempty"`
}

// WebhookRetryConfig defines retry configuration for webhooks
type WebhookRetryConfig struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
	Backoff     string        `json:"backoff"` // fixed, linear, exponential
}

// WebhookResponse represents a webhook response
type WebhookResponse struct {
	StatusCode   int           `json:"status_code"`
	ResponseTime time.Duration `json:"response_time"`
	Success      bool          `json:"success"`
	Retryable    bool          `json:"retryable"`
	Error        error         `json:"error,omitempty"`
	Body         string        `json:"body,omitempty"`
}

// NewWebhookSender creates a new webhook sender
func NewWebhookSender(cfg *config.NotificationConfig, logger *NotificationLogger) *WebhookSender {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &WebhookSender{
		headers: cfg.Headers,
		retry: WebhookRetryConfig{
			MaxAttempts: attempts,
			BaseDelay:   cfg.RetryDelay,
			MaxDelay:    30 * time.Second,
			Backoff:     "exponential",
		},
		logger: logger.WithField("component", "webhook_sender"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// BuildPayload converts a history event into the webhook payload
func BuildPayload(event models.HistoryEvent) *WebhookPayload {
	ts := event.At
	if ts.IsZero() {
		ts = time.Now()
	}
	return &WebhookPayload{
		Event:     string(event.Action),
		Timestamp: ts,
		Source:    payloadSource,
		Type:      payloadType,
		Data:      WebhookData{QRCode: event.QRCode, Count: event.Count},
		Version:   payloadVersion,
	}
}

// Send posts payload to url, retrying transport failures and server errors
func (ws *WebhookSender) Send(ctx context.Context, url string, payload *WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal webhook payload", err.Error())
	}

	var lastErr error
	for attempt := 1; attempt <= ws.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := ws.calculateRetryDelay(attempt)
			ws.logger.LogRetryAttempt("webhook", attempt, ws.retry.MaxAttempts, delay)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		ws.logger.LogWebhookAttempt(url, payload.Event, attempt)
		response := ws.sendSingleWebhook(ctx, url, body)
		ws.logger.LogWebhookResponse(url, response.StatusCode, response.ResponseTime, response.Error)

		if response.Success {
			return nil
		}
		lastErr = response.Error
		if !response.Retryable {
			break
		}
	}

	return lastErr
}

func (ws *WebhookSender) sendSingleWebhook(ctx context.Context, url string, body []byte) *WebhookResponse {
	startTime := time.Now()
	response := &WebhookResponse{}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		response.Error = utils.NewAppError(utils.ErrCodeValidation, "Failed to create webhook request", err.Error())
		response.ResponseTime = time.Since(startTime)
		return response
	}

	ws.setRequestHeaders(req)

	resp, err := ws.httpClient.Do(req)
	response.ResponseTime = time.Since(startTime)
	if err != nil {
		response.Error = utils.NewAppError(utils.ErrCodeExternal, "Failed to send webhook", err.Error())
		response.Retryable = ctx.Err() == nil
		return response
	}
	defer resp.Body.Close()

	response.StatusCode = resp.StatusCode
	preview, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyPreview))
	response.Body = string(preview)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		response.Success = true
	default:
		response.Error = utils.NewAppError(utils.ErrCodeExternal,
			"Webhook returned non-success status",
			fmt.Sprintf("status: %d, body: %s", resp.StatusCode, response.Body))
		response.Retryable = resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
	}

	return response
}

// setRequestHeaders sets HTTP request headers
func (ws *WebhookSender) setRequestHeaders(req *http.Request) {
	for key, value := range ws.headers {
		req.Header.Set(key, value)
	}

	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "QRCode-Generator/1.0")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	req.Header.Set("X-Request-ID", utils.GenerateID())
}

// calculateRetryDelay calculates the delay before the given attempt
func (ws *WebhookSender) calculateRetryDelay(attempt int) time.Duration {
	var delay time.Duration

	switch ws.retry.Backoff {
	case "exponential":
		// base_delay * 2^(attempt-2), so the first retry waits base_delay
		delay = time.Duration(int64(ws.retry.BaseDelay) << uint(attempt-2))
	case "linear":
		delay = time.Duration(int64(ws.retry.BaseDelay) * int64(attempt-1))
	default:
		delay = ws.retry.BaseDelay
	}

	if delay > ws.retry.MaxDelay {
		delay = ws.retry.MaxDelay
	}

	return delay
}
