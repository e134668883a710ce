package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Generator produces the narrative portion of a summary document.
type Generator interface {
	Narrative(ctx context.Context, data *Data) (string, error)
}

// AnthropicGenerator implements Generator using Claude via the Messages API.
type AnthropicGenerator struct {
	APIKey     string
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
	logger     zerolog.Logger
}

// NewAnthropicGenerator returns a configured generator.
func NewAnthropicGenerator(model, apiKey string, maxTokens int, logger zerolog.Logger) *AnthropicGenerator {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &AnthropicGenerator{
		APIKey:    apiKey,
		Model:     model,
		MaxTokens: maxTokens,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.With().Str("component", "narrativeGenerator").Logger(),
	}
}

// Narrative implements Generator.
func (g *AnthropicGenerator) Narrative(ctx context.Context, data *Data) (string, error) {
	if g.APIKey == "" {
		return "", fmt.Errorf("AnthropicGenerator: missing API key")
	}
	if g.Model == "" {
		return "", fmt.Errorf("AnthropicGenerator: missing model name")
	}

	payload := map[string]interface{}{
		"model":       g.Model,
		"max_tokens":  g.MaxTokens,
		"temperature": 0.3,
		"system":      narrativePrompt(data),
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": "Write the narrative summary now.",
			},
		},
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("AnthropicGenerator: marshal request: %w", err)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 1 * time.Second
	eb.Multiplier = 2.0
	eb.MaxInterval = 60 * time.Second
	eb.MaxElapsedTime = 5 * time.Minute
	eb.RandomizationFactor = 0.2
	eb.Reset()

	backoffConfig := backoff.WithMaxRetries(eb, 5)

	var result string
	var retryAfter time.Duration

	operation := func() error {
		req, err := http.NewRequestWithContext(
			ctx,
			http.MethodPost,
			"https://api.anthropic.com/v1/messages",
			bytes.NewReader(bodyBytes),
		)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("AnthropicGenerator: create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", g.APIKey)
		req.Header.Set("anthropic-version", "2023-06-01")

		resp, err := g.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("AnthropicGenerator: request failed: %w", err)
		}
		defer resp.Body.Close() //nolint:errcheck // Body close error can be ignored

		if resp.StatusCode >= 400 {
			var apiErr map[string]interface{}
			_ = json.NewDecoder(resp.Body).Decode(&apiErr)

			if resp.StatusCode == http.StatusTooManyRequests {
				retryAfter = extractRetryAfter(resp)
				if retryAfter > 0 {
					eb.InitialInterval = retryAfter
					eb.Multiplier = 1.5
					eb.RandomizationFactor = 0.1
					eb.Reset()
				}
				g.logger.Warn().Dur("retryAfter", retryAfter).Msg("AnthropicGenerator: Rate limit encountered, retrying")
				return fmt.Errorf("AnthropicGenerator: rate limit: %s: %v", resp.Status, apiErr)
			}

			// Don't retry on 4xx errors (except 429)
			if resp.StatusCode < 500 {
				return backoff.Permanent(fmt.Errorf("AnthropicGenerator: API error %s: %v", resp.Status, apiErr))
			}

			g.logger.Warn().Str("status", resp.Status).Msg("AnthropicGenerator: Server error, retrying")
			return fmt.Errorf("AnthropicGenerator: server error %s: %v", resp.Status, apiErr)
		}

		var msgResp struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
			return fmt.Errorf("AnthropicGenerator: decode response: %w", err)
		}
		if len(msgResp.Content) == 0 {
			return fmt.Errorf("AnthropicGenerator: empty content in response")
		}

		narrative := strings.TrimSpace(msgResp.Content[0].Text)
		if narrative == "" {
			return fmt.Errorf("AnthropicGenerator: empty narrative text")
		}

		result = narrative
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(backoffConfig, ctx)); err != nil {
		return "", err
	}
	return result, nil
}

// extractRetryAfter reads the Retry-After header from a rate limit response.
func extractRetryAfter(resp *http.Response) time.Duration {
	if retryAfterStr := resp.Header.Get("Retry-After"); retryAfterStr != "" {
		if seconds, err := strconv.Atoi(retryAfterStr); err == nil {
			return time.Duration(seconds) * time.Second
		}
		if retryTime, err := time.Parse(time.RFC1123, retryAfterStr); err == nil {
			if now := time.Now(); retryTime.After(now) {
				return retryTime.Sub(now)
			}
		}
	}
	return 60 * time.Second
}
