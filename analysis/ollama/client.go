// Package ollama provides an analysis client backed by a local Ollama
// instance.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/danfors/topicd/analysis"
	"github.com/danfors/topicd/conversations"
	"github.com/danfors/topicd/memory"
)

// Client implements analysis.Analyzer and analysis.ProfileExtractor for
// Ollama's API.
type Client struct {
	client *api.Client
	model  string
}

// NewClient creates a new Client.
// If host is empty, it will use the default from environment
// (OLLAMA_HOST or http://localhost:11434).
func NewClient(host, model string) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	var client *api.Client
	if host != "" {
		baseURL, err := parseHost(host)
		if err != nil {
			return nil, fmt.Errorf("invalid host: %w", err)
		}
		client = api.NewClient(baseURL, &http.Client{})
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
	}

	return &Client{client: client, model: model}, nil
}

func parseHost(host string) (*url.URL, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
}

// AssessTopic implements analysis.Analyzer.
func (c *Client) AssessTopic(ctx context.Context, req *analysis.Request) (*analysis.Assessment, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	text, err := c.complete(ctx, analysis.BuildTopicPrompt(req),
		"Assess the topic against the conversation above.")
	if err != nil {
		return nil, err
	}
	return analysis.ParseAssessment(text)
}

// ExtractProfile implements analysis.ProfileExtractor.
func (c *Client) ExtractProfile(ctx context.Context, window []conversations.Message) (memory.ProfileUpdate, error) {
	text, err := c.complete(ctx, analysis.BuildProfilePrompt(window),
		"Extract user profile information from the conversation above.")
	if err != nil {
		return memory.ProfileUpdate{}, err
	}
	return analysis.ParseProfileUpdate(text)
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	chatReq := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Stream: new(bool), // false for non-streaming
		Options: map[string]interface{}{
			"temperature": 0.1,
		},
	}

	var chatResp api.ChatResponse
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		chatResp = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat request failed: %w", err)
	}
	return chatResp.Message.Content, nil
}
