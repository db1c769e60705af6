// Package delivery sends template, text, and media messages through the
// external messaging gateway. It performs no retries itself; callers wrap
// these operations with internal/retry.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/flightops/tripnotifier/internal/metrics"
)

// HTTPClient is satisfied by *http.Client; tests supply a stub.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	defaultTemplateTimeout = 30 * time.Second
	defaultMediaTimeout    = 60 * time.Second
)

// Result is the gateway's response to a send attempt.
type Result struct {
	ProviderID   string
	Status       string
	ErrorCode    string
	ErrorMessage string
	StatusCode   int
}

// Client wraps the messaging gateway's template/text/media APIs.
type Client struct {
	http            HTTPClient
	baseURL         string
	apiKey          string
	templateTimeout time.Duration
	mediaTimeout    time.Duration
	metrics         *metrics.Metrics
}

// NewClient builds a messaging gateway client with the default timeouts
// (30s for template/text, 60s for media). Use NewClientWithTimeouts to
// override them from configuration.
func NewClient(httpClient HTTPClient, baseURL, apiKey string, m *metrics.Metrics) *Client {
	return NewClientWithTimeouts(httpClient, baseURL, apiKey, defaultTemplateTimeout, defaultMediaTimeout, m)
}

// NewClientWithTimeouts builds a messaging gateway client with explicit
// per-operation timeouts; a zero duration falls back to the default.
func NewClientWithTimeouts(httpClient HTTPClient, baseURL, apiKey string, templateTimeout, mediaTimeout time.Duration, m *metrics.Metrics) *Client {
	if templateTimeout <= 0 {
		templateTimeout = defaultTemplateTimeout
	}
	if mediaTimeout <= 0 {
		mediaTimeout = defaultMediaTimeout
	}
	return &Client{
		http:            httpClient,
		baseURL:         strings.TrimRight(baseURL, "/"),
		apiKey:          apiKey,
		templateTimeout: templateTimeout,
		mediaTimeout:    mediaTimeout,
		metrics:         m,
	}
}

// SendTemplate sends a template message with positional variables.
func (c *Client) SendTemplate(ctx context.Context, to, templateID string, variables map[string]string) (Result, error) {
	return c.send(ctx, "/messages/template", "template", c.templateTimeout, map[string]interface{}{
		"to":          to,
		"template_id": templateID,
		"variables":   variables,
	})
}

// SendText sends a free-text message.
func (c *Client) SendText(ctx context.Context, to, body string) (Result, error) {
	return c.send(ctx, "/messages/text", "text", c.templateTimeout, map[string]interface{}{
		"to":   to,
		"body": body,
	})
}

// SendMedia sends a media message with an optional caption.
func (c *Client) SendMedia(ctx context.Context, to, url, caption string) (Result, error) {
	return c.send(ctx, "/messages/media", "media", c.mediaTimeout, map[string]interface{}{
		"to":      to,
		"url":     url,
		"caption": caption,
	})
}

type gatewayResponse struct {
	ProviderID   string `json:"provider_id"`
	Status       string `json:"status"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func (c *Client) send(ctx context.Context, path, operation string, timeout time.Duration, payload map[string]interface{}) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshalling delivery payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("building delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.DeliveryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.DeliveryAttemptsTotal.WithLabelValues(operation, "error").Inc()
		return Result{}, fmt.Errorf("sending delivery request: %w", err)
	}
	defer resp.Body.Close()

	var parsed gatewayResponse
	_ = json.NewDecoder(resp.Body).Decode(&parsed)

	result := Result{
		ProviderID:   parsed.ProviderID,
		Status:       parsed.Status,
		ErrorCode:    parsed.ErrorCode,
		ErrorMessage: parsed.ErrorMessage,
		StatusCode:   resp.StatusCode,
	}

	isError := resp.StatusCode < 200 || resp.StatusCode >= 300
	if isError {
		c.metrics.DeliveryAttemptsTotal.WithLabelValues(operation, "failed").Inc()
		if result.ErrorMessage == "" {
			result.ErrorMessage = fmt.Sprintf("messaging gateway returned %d", resp.StatusCode)
		}
	} else {
		c.metrics.DeliveryAttemptsTotal.WithLabelValues(operation, "sent").Inc()
	}

	// Non-2xx responses are surfaced through Result, not a Go error — the
	// caller (wrapped by internal/retry) classifies StatusCode into
	// retryable vs terminal; this client never retries on its own.
	return result, nil
}
