// Package claude implements the Claude messages API client used by the suite.
// The client retries transient failures with exponential backoff, records
// token usage for every terminal outcome, and supports outbound proxies.
package claude

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/optisuite/optisuite/internal/config"
	"github.com/optisuite/optisuite/internal/usage"
	"github.com/optisuite/optisuite/internal/util"
)

// anthropicVersion is the API version header sent with every request.
const anthropicVersion = "2023-06-01"

// ErrNoAPIKey indicates that no Claude API key could be resolved.
var ErrNoAPIKey = errors.New("claude: api key is not configured")

// Client talks to the Claude messages API.
type Client struct {
	apiKey       string
	model        string
	baseURL      string
	maxTokens    int
	temperature  float64
	topP         float64
	attempts     int
	costPerToken float64
	httpClient   *http.Client
	usage        *usage.Manager
}

// NewClient builds a client from the application configuration. Usage records
// are published to the given manager; pass nil to use the default manager.
func NewClient(cfg *config.Config, manager *usage.Manager) (*Client, error) {
	apiKey := cfg.ResolveAPIKey()
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if manager == nil {
		manager = usage.DefaultManager()
	}
	httpClient := &http.Client{Timeout: time.Duration(cfg.Claude.TimeoutSeconds) * time.Second}
	httpClient = util.SetProxy(cfg.ProxyURL, httpClient)
	return &Client{
		apiKey:       apiKey,
		model:        cfg.Claude.Model,
		baseURL:      cfg.Claude.BaseURL,
		maxTokens:    cfg.Claude.MaxTokens,
		temperature:  cfg.Claude.EffectiveTemperature(),
		topP:         cfg.Claude.EffectiveTopP(),
		attempts:     cfg.Claude.RetryAttempts,
		costPerToken: cfg.CostPerToken,
		httpClient:   httpClient,
		usage:        manager,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Preflight estimates the token count and upstream cost of a prompt before it
// is sent, using the configured per-token rate.
func (c *Client) Preflight(prompt string) (int, float64, error) {
	tokens, err := EstimateTokens(prompt)
	if err != nil {
		return 0, 0, err
	}
	return tokens, EstimateCost(tokens, c.costPerToken), nil
}

// Messages sends a single message request, retrying transient failures with
// exponential backoff. A usage record is published for every terminal
// outcome, successful or not.
func (c *Client) Messages(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	payload, err := c.buildPayload(req)
	if err != nil {
		return nil, err
	}

	if log.IsLevelEnabled(log.DebugLevel) {
		if tokens, cost, errEst := c.Preflight(req.Prompt); errEst == nil {
			log.WithFields(log.Fields{"tokens": tokens, "cost": cost}).Debug("prompt preflight estimate")
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 2^attempt seconds between attempts.
			if err = sleepContext(ctx, time.Duration(1<<attempt)*time.Second); err != nil {
				break
			}
		}

		resp, errSend := c.send(ctx, payload)
		if errSend == nil {
			c.publish(ctx, resp, false)
			return resp, nil
		}
		lastErr = errSend

		var apiErr *APIError
		if errors.As(errSend, &apiErr) && !retryableStatus(apiErr.StatusCode) {
			break
		}
		if errors.Is(errSend, context.Canceled) || errors.Is(errSend, context.DeadlineExceeded) {
			break
		}
		log.WithField("attempt", attempt+1).WithError(errSend).Warn("claude request failed, retrying")
	}

	c.publish(ctx, nil, true)
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return nil, fmt.Errorf("claude: request failed after %d attempts: %w", c.attempts, lastErr)
}

// buildPayload assembles the messages API request body.
func (c *Client) buildPayload(req MessageRequest) ([]byte, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	payload := []byte(`{}`)
	var err error
	if payload, err = sjson.SetBytes(payload, "model", c.model); err != nil {
		return nil, fmt.Errorf("claude: build payload failed: %w", err)
	}
	payload, _ = sjson.SetBytes(payload, "max_tokens", maxTokens)
	payload, _ = sjson.SetBytes(payload, "temperature", c.temperature)
	payload, _ = sjson.SetBytes(payload, "top_p", c.topP)
	payload, _ = sjson.SetBytes(payload, "messages.0.role", "user")
	payload, _ = sjson.SetBytes(payload, "messages.0.content", req.Prompt)
	if req.System != "" {
		payload, _ = sjson.SetBytes(payload, "system", req.System)
	}
	return payload, nil
}

// send performs one HTTP round trip and parses the response.
func (c *Client) send(ctx context.Context, payload []byte) (*MessageResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("claude: create request failed: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("content-type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("claude: read response failed: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &APIError{
			StatusCode: httpResp.StatusCode,
			Type:       gjson.GetBytes(body, "error.type").String(),
			Message:    gjson.GetBytes(body, "error.message").String(),
		}
	}

	return parseResponse(body), nil
}

// parseResponse extracts the fields the suite cares about from a successful
// messages API response body.
func parseResponse(body []byte) *MessageResponse {
	root := gjson.ParseBytes(body)

	var text string
	root.Get("content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			text += block.Get("text").String()
		}
		return true
	})

	detail := usage.Detail{
		InputTokens:  root.Get("usage.input_tokens").Int(),
		OutputTokens: root.Get("usage.output_tokens").Int(),
		TotalTokens:  root.Get("usage.total_tokens").Int(),
	}
	// The messages API reports input and output separately; derive the total
	// when it is absent.
	if detail.TotalTokens == 0 {
		detail.TotalTokens = detail.InputTokens + detail.OutputTokens
	}

	return &MessageResponse{
		ID:         root.Get("id").String(),
		Model:      root.Get("model").String(),
		Text:       text,
		StopReason: root.Get("stop_reason").String(),
		Usage:      detail,
		Raw:        body,
	}
}

// publish emits a usage record for a terminal request outcome.
func (c *Client) publish(ctx context.Context, resp *MessageResponse, failed bool) {
	record := usage.Record{
		Model:       c.model,
		Source:      "client",
		RequestedAt: time.Now(),
		Failed:      failed,
	}
	if resp != nil {
		record.Detail = resp.Usage
		record.Cost = float64(resp.Usage.TotalTokens) * c.costPerToken
	}
	c.usage.Publish(ctx, record)
}

// retryableStatus reports whether a status code is worth another attempt.
func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// sleepContext waits for the given duration or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
