// Package graphapi is the outbound client for the WhatsApp Cloud (Graph) API.
package graphapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aradsms/wa_gateway/internal/platform/circuitbreaker"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	maxBackoff         = 8 * time.Second
	maxLoggedBody      = 500
	maxResponseBody    = 1 << 20
)

// Config for the client. Paths passed to Do are relative to BaseURL.
type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	MaxAttempts int
}

// Client retries transient failures with exponential backoff, behind an
// optional circuit breaker.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

// WithBreaker gates every attempt through b.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSleep replaces the backoff wait.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

func NewClient(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With("component", "graph_api_client"),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// BackoffDelay is the wait after the given failed attempt: 1s, 2s, 4s, then 8s.
func BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 4 {
		return maxBackoff
	}
	d := time.Duration(1<<(attempt-1)) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func (c *Client) Get(ctx context.Context, path string) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

func (c *Client) Post(ctx context.Context, path string, body any) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

func (c *Client) Delete(ctx context.Context, path string) (map[string]any, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

// Do sends a JSON request and decodes the JSON object response.
func (c *Client) Do(ctx context.Context, method, path string, body any) (map[string]any, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = b
	}

	var lastErr *APIError
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		result, apiErr := c.attempt(ctx, method, path, payload, attempt)
		if apiErr == nil {
			return result, nil
		}
		apiErr.Attempts = attempt
		lastErr = apiErr

		if !apiErr.Transient() || attempt == c.cfg.MaxAttempts {
			break
		}
		delay := BackoffDelay(attempt)
		c.logger.WarnContext(ctx, "Retrying Graph API call",
			"method", method, "endpoint", path, "attempt", attempt, "kind", apiErr.Kind, "backoff", delay)
		if err := c.sleep(ctx, delay); err != nil {
			lastErr.Err = err
			break
		}
	}

	c.logger.ErrorContext(ctx, "Graph API call failed",
		"method", method, "endpoint", path, "attempts", lastErr.Attempts, "kind", lastErr.Kind,
		"status", lastErr.StatusCode, "body", truncate(lastErr.Body))
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, attempt int) (map[string]any, *APIError) {
	var result map[string]any
	var apiErr *APIError
	call := func(ctx context.Context) error {
		result, apiErr = c.send(ctx, method, path, payload, attempt)
		if apiErr != nil {
			return apiErr
		}
		return nil
	}

	if c.breaker == nil {
		_ = call(ctx)
		return result, apiErr
	}

	_ = c.breaker.Execute(ctx, call, func(_ context.Context, cause error) error {
		apiErr = &APIError{Kind: KindCircuitOpen, Method: method, Endpoint: path, Message: cause.Error(), Err: cause}
		apiAttempts.WithLabelValues(method, string(KindCircuitOpen)).Inc()
		return apiErr
	})
	return result, apiErr
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, attempt int) (map[string]any, *APIError) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, &APIError{Kind: KindNetwork, Method: method, Endpoint: path, Message: err.Error(), Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	timer := prometheus.NewTimer(apiRequestDuration.WithLabelValues(method))
	resp, err := c.http.Do(req)
	timer.ObserveDuration()
	if err != nil {
		c.logger.WarnContext(ctx, "Graph API attempt failed", "method", method, "endpoint", path, "attempt", attempt, "error", err)
		apiAttempts.WithLabelValues(method, string(KindNetwork)).Inc()
		return nil, &APIError{Kind: KindNetwork, Method: method, Endpoint: path, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	c.logger.InfoContext(ctx, "Graph API attempt",
		"method", method, "endpoint", path, "attempt", attempt, "status", resp.StatusCode, "body", truncate(string(raw)))
	if readErr != nil {
		apiAttempts.WithLabelValues(method, string(KindNetwork)).Inc()
		return nil, &APIError{Kind: KindNetwork, Method: method, Endpoint: path, StatusCode: resp.StatusCode, Message: readErr.Error(), Err: readErr}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result := map[string]any{}
		if len(bytes.TrimSpace(raw)) == 0 {
			apiAttempts.WithLabelValues(method, "success").Inc()
			return result, nil
		}
		if err := json.Unmarshal(raw, &result); err != nil {
			apiAttempts.WithLabelValues(method, string(KindMalformedResponse)).Inc()
			return nil, &APIError{
				Kind: KindMalformedResponse, Method: method, Endpoint: path, StatusCode: resp.StatusCode,
				Message: "response body is not a JSON object", Body: string(raw), Err: err,
			}
		}
		apiAttempts.WithLabelValues(method, "success").Inc()
		return result, nil
	}

	apiErr := &APIError{Method: method, Endpoint: path, StatusCode: resp.StatusCode, Body: string(raw)}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.Kind = KindRateLimited
	case resp.StatusCode >= 500:
		apiErr.Kind = KindServer
	default:
		apiErr.Kind = KindApplication
	}
	fillGraphError(apiErr, raw)
	apiAttempts.WithLabelValues(method, string(apiErr.Kind)).Inc()
	return nil, apiErr
}

type graphErrorEnvelope struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
	} `json:"error"`
}

func fillGraphError(apiErr *APIError, raw []byte) {
	var env graphErrorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || (env.Error.Message == "" && env.Error.Code == 0) {
		apiErr.Message = truncate(string(raw))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(apiErr.StatusCode)
		}
		return
	}
	apiErr.Message = env.Error.Message
	apiErr.Type = env.Error.Type
	apiErr.Code = env.Error.Code
	apiErr.Subcode = env.Error.ErrorSubcode
}

func truncate(s string) string {
	if len(s) <= maxLoggedBody {
		return s
	}
	return s[:maxLoggedBody] + "...(truncated)"
}

// MarkRead sends a read receipt for an inbound message.
func (c *Client) MarkRead(ctx context.Context, phoneNumberID, messageID string) error {
	_, err := c.Post(ctx, phoneNumberID+"/messages", map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	})
	return err
}
